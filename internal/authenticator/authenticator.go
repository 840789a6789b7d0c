// Package authenticator models the user-facing platform credential
// ceremony: the biometric/PIN gesture that creates or asserts a public-key
// credential bound to the device. Native integrations implement
// Authenticator; everything above it is platform-agnostic.
package authenticator

import (
	"context"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// Ceremony failure classes. The ceremony is the only user-cancellable
// operation in the module, so cancellation gets its own sentinel.
var (
	// ErrCancelled means the user dismissed or timed out the gesture.
	ErrCancelled = errors.New("ceremony cancelled by user")
	// ErrNotSupported means the platform rejected the requested
	// authenticator class.
	ErrNotSupported = errors.New("requested authenticator not supported")
	// ErrInvalidState means the referenced credential no longer exists on
	// this authenticator.
	ErrInvalidState = errors.New("credential no longer present")
	// ErrUnavailable means the credential protocol is absent entirely.
	ErrUnavailable = errors.New("platform credential API unavailable")
)

// COSE algorithm identifiers, in preference order for creation.
const (
	AlgES256 int64 = -7
	AlgRS256 int64 = -257
)

// CreationOptions parameterizes a credential-creation ceremony.
type CreationOptions struct {
	Challenge       protocol.URLEncodedBase64
	RPID            string
	RPName          string
	UserID          []byte
	UserName        string
	UserDisplayName string
	// Algorithms lists acceptable COSE algorithms in preference order.
	Algorithms []int64
	Attachment protocol.AuthenticatorAttachment
	// UserVerification is always required by this module's protocols.
	UserVerification protocol.UserVerificationRequirement
	ResidentKey      protocol.ResidentKeyRequirement
	Exclude          []protocol.CredentialDescriptor
	Timeout          time.Duration
}

// AttestationResult is the signed proof that a new credential was created.
type AttestationResult struct {
	CredentialID      protocol.URLEncodedBase64
	ClientDataJSON    protocol.URLEncodedBase64
	AttestationObject protocol.URLEncodedBase64
	AuthenticatorData protocol.URLEncodedBase64
	PublicKey         protocol.URLEncodedBase64
	Transports        []string
}

// RequestOptions parameterizes a credential-assertion ceremony.
type RequestOptions struct {
	Challenge        protocol.URLEncodedBase64
	RPID             string
	AllowCredentials []protocol.CredentialDescriptor
	UserVerification protocol.UserVerificationRequirement
	Timeout          time.Duration
}

// AssertionResult is the signed proof that the credential holder is present.
type AssertionResult struct {
	CredentialID      protocol.URLEncodedBase64
	AuthenticatorData protocol.URLEncodedBase64
	ClientDataJSON    protocol.URLEncodedBase64
	Signature         protocol.URLEncodedBase64
	UserHandle        protocol.URLEncodedBase64
}

// Authenticator runs platform credential ceremonies. A ceremony can block
// for seconds to minutes awaiting a human gesture; once started it runs to
// completion or user cancellation and cannot be programmatically aborted.
// Callers must never run two ceremonies concurrently.
type Authenticator interface {
	Create(ctx context.Context, opts CreationOptions) (*AttestationResult, error)
	Assert(ctx context.Context, opts RequestOptions) (*AssertionResult, error)
}

// PulseStrength selects a haptic feedback intensity.
type PulseStrength int

const (
	// PulseLight fires immediately before prompting for a gesture.
	PulseLight PulseStrength = iota
	// PulseStrong fires on ceremony success.
	PulseStrong
)

// Feedback delivers non-essential haptic UX feedback around ceremonies.
// Implementations must never fail the ceremony.
type Feedback interface {
	Pulse(strength PulseStrength)
}

// NopFeedback is the default Feedback for platforms without haptics.
type NopFeedback struct{}

func (NopFeedback) Pulse(PulseStrength) {}
