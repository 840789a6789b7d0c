// Package wire defines the JSON payloads exchanged with the remote
// verification service. Binary fields (challenges, client data, attestation
// and assertion objects, signatures, raw ids, public keys) travel as
// unpadded base64url text via protocol.URLEncodedBase64.
package wire

import (
	"encoding/base64"

	"github.com/go-webauthn/webauthn/protocol"
)

// Endpoint paths on the remote verification service.
const (
	PathRegister   = "/api/v1/auth/register"
	PathAuth       = "/api/v1/auth/authenticate"
	PathAccess     = "/api/v1/auth/access"
	PathSession    = "/api/v1/auth/session"
	PathDeviceLink = "/api/v1/auth/device-link"
	PathMagicLink  = "/api/v1/auth/magic-link"
)

// Action values carried in the request body.
const (
	ActionRegisterChallenge = "register-challenge"
	ActionRegisterVerify    = "register-verify"
	ActionAuthChallenge     = "auth-challenge"
	ActionAuthVerify        = "auth-verify"
	ActionCheckAccess       = "check-access"
	ActionVerifySession     = "verify-session"
	ActionLinkCreate        = "create"
	ActionLinkClaim         = "claim"
	ActionMagicSend         = "send"
	ActionMagicVerify       = "verify"
)

// CodeConfigError marks a server misconfiguration, distinct from "no access".
const CodeConfigError = "CONFIG_ERROR"

// EncodeBase64URL encodes raw bytes as unpadded base64url text.
func EncodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeBase64URL decodes unpadded base64url text, tolerating padded input.
func DecodeBase64URL(s string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// RegisterChallengeRequest requests a registration challenge keyed by
// (userId, deviceId).
type RegisterChallengeRequest struct {
	Action   string `json:"action"`
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
}

// RegisterChallengeResponse carries the challenge or a lock rejection.
type RegisterChallengeResponse struct {
	Success   bool                        `json:"success"`
	Challenge protocol.URLEncodedBase64   `json:"challenge,omitempty"`
	RPID      string                      `json:"rpId,omitempty"`
	RPName    string                      `json:"rpName,omitempty"`
	UserName  string                      `json:"userName,omitempty"`
	Exclude   []protocol.URLEncodedBase64 `json:"excludeCredentials,omitempty"`
	IsLocked  bool                        `json:"isLocked,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Code      string                      `json:"code,omitempty"`
}

// RegisterVerifyRequest submits the attestation payload for owner-lock
// registration.
type RegisterVerifyRequest struct {
	Action            string                    `json:"action"`
	UserID            string                    `json:"userId"`
	DeviceID          string                    `json:"deviceId"`
	CredentialID      string                    `json:"credentialId"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AttestationObject protocol.URLEncodedBase64 `json:"attestationObject"`
	AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData,omitempty"`
	PublicKey         protocol.URLEncodedBase64 `json:"publicKey,omitempty"`
	Transports        []string                  `json:"transports,omitempty"`
}

// RegisterVerifyResponse reports the outcome of owner-lock registration.
// UserID, when present, is the server's canonical user id and supersedes
// the locally minted one.
type RegisterVerifyResponse struct {
	Success  bool   `json:"success"`
	UserID   string `json:"userId,omitempty"`
	Message  string `json:"message,omitempty"`
	IsLocked bool   `json:"isLocked,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AuthChallengeRequest requests an authentication challenge. CredentialID
// is a hint from the local cache, not a requirement.
type AuthChallengeRequest struct {
	Action       string `json:"action"`
	DeviceID     string `json:"deviceId"`
	CredentialID string `json:"credentialId,omitempty"`
}

// AllowedCredential is one entry of the server's allow-list.
type AllowedCredential struct {
	ID         protocol.URLEncodedBase64 `json:"id"`
	Transports []string                  `json:"transports,omitempty"`
}

// AuthChallengeResponse carries the assertion challenge and allow-list, or
// one of the distinguished rejections.
type AuthChallengeResponse struct {
	Success          bool                      `json:"success"`
	Challenge        protocol.URLEncodedBase64 `json:"challenge,omitempty"`
	RPID             string                    `json:"rpId,omitempty"`
	AllowCredentials []AllowedCredential       `json:"allowCredentials,omitempty"`
	IsLocked         bool                      `json:"isLocked,omitempty"`
	RequiresSetup    bool                      `json:"requiresSetup,omitempty"`
	Error            string                    `json:"error,omitempty"`
	Code             string                    `json:"code,omitempty"`
}

// AuthVerifyRequest submits the signed assertion for verification.
type AuthVerifyRequest struct {
	Action            string                    `json:"action"`
	DeviceID          string                    `json:"deviceId"`
	CredentialID      string                    `json:"credentialId"`
	AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	Signature         protocol.URLEncodedBase64 `json:"signature"`
	UserHandle        protocol.URLEncodedBase64 `json:"userHandle,omitempty"`
}

// AuthVerifyResponse reports the verification outcome and, on success, the
// session token and server-confirmed identity.
type AuthVerifyResponse struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"sessionToken,omitempty"`
	UserID       string `json:"userId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// AccessCheckRequest asks whether an owner exists and whether this device
// is that owner.
type AccessCheckRequest struct {
	Action   string `json:"action"`
	DeviceID string `json:"deviceId"`
}

// AccessCheckResponse is the server's answer. HasOwner and IsOwnerDevice
// are only meaningful when Success is true and Code is empty.
type AccessCheckResponse struct {
	Success       bool   `json:"success"`
	HasOwner      bool   `json:"hasOwner"`
	IsOwnerDevice bool   `json:"isOwnerDevice"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

// SessionVerifyRequest asks the server to confirm a session token.
type SessionVerifyRequest struct {
	Action       string `json:"action"`
	SessionToken string `json:"sessionToken"`
	DeviceID     string `json:"deviceId"`
}

// SessionVerifyResponse confirms or rejects the session token.
type SessionVerifyResponse struct {
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

// LinkCreateRequest mints a device-link code. The session token is the
// bearer proof that the caller is already trusted.
type LinkCreateRequest struct {
	Action       string `json:"action"`
	SessionToken string `json:"sessionToken"`
	DeviceID     string `json:"deviceId"`
}

// LinkCreateResponse carries the short code and its lifetime in seconds.
type LinkCreateResponse struct {
	Success   bool   `json:"success"`
	LinkCode  string `json:"linkCode,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LinkClaimRequest redeems a device-link code for the current device.
type LinkClaimRequest struct {
	Action   string `json:"action"`
	LinkCode string `json:"linkCode"`
	DeviceID string `json:"deviceId"`
}

// LinkClaimResponse grants the claiming device a session on success.
type LinkClaimResponse struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"sessionToken,omitempty"`
	Error        string `json:"error,omitempty"`
}

// MagicSendRequest asks the server to email a one-time proof-of-possession
// link for the named page context.
type MagicSendRequest struct {
	Action string `json:"action"`
	Page   string `json:"page"`
}

// MagicSendResponse carries a display message and an expiry hint in seconds.
type MagicSendResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MagicVerifyRequest redeems a magic-link token.
type MagicVerifyRequest struct {
	Action   string `json:"action"`
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
}

// MagicVerifyResponse grants a session on success.
type MagicVerifyResponse struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"sessionToken,omitempty"`
	Error        string `json:"error,omitempty"`
}
