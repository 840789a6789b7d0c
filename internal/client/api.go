package client

import (
	"context"

	"dash-lock-agent/internal/wire"
)

// RegisterChallenge requests a registration challenge keyed by user and
// device.
func (c *Client) RegisterChallenge(ctx context.Context, userID, deviceID string) (*wire.RegisterChallengeResponse, error) {
	req := &wire.RegisterChallengeRequest{
		Action:   wire.ActionRegisterChallenge,
		UserID:   userID,
		DeviceID: deviceID,
	}
	var resp wire.RegisterChallengeResponse
	if err := c.postJSON(ctx, wire.PathRegister, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitAttestation submits the attestation payload for owner-lock
// registration.
func (c *Client) SubmitAttestation(ctx context.Context, req *wire.RegisterVerifyRequest) (*wire.RegisterVerifyResponse, error) {
	req.Action = wire.ActionRegisterVerify
	var resp wire.RegisterVerifyResponse
	if err := c.postJSON(ctx, wire.PathRegister, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuthChallenge requests an authentication challenge, hinting the locally
// cached credential id when present.
func (c *Client) AuthChallenge(ctx context.Context, deviceID, credentialID string) (*wire.AuthChallengeResponse, error) {
	req := &wire.AuthChallengeRequest{
		Action:       wire.ActionAuthChallenge,
		DeviceID:     deviceID,
		CredentialID: credentialID,
	}
	var resp wire.AuthChallengeResponse
	if err := c.postJSON(ctx, wire.PathAuth, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitAssertion submits the signed assertion for verification.
func (c *Client) SubmitAssertion(ctx context.Context, req *wire.AuthVerifyRequest) (*wire.AuthVerifyResponse, error) {
	req.Action = wire.ActionAuthVerify
	var resp wire.AuthVerifyResponse
	if err := c.postJSON(ctx, wire.PathAuth, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckAccess asks whether an owner exists and whether this device is it.
func (c *Client) CheckAccess(ctx context.Context, deviceID string) (*wire.AccessCheckResponse, error) {
	req := &wire.AccessCheckRequest{
		Action:   wire.ActionCheckAccess,
		DeviceID: deviceID,
	}
	var resp wire.AccessCheckResponse
	if err := c.postJSON(ctx, wire.PathAccess, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifySession asks the server to confirm a session token for a device.
func (c *Client) VerifySession(ctx context.Context, sessionToken, deviceID string) (*wire.SessionVerifyResponse, error) {
	req := &wire.SessionVerifyRequest{
		Action:       wire.ActionVerifySession,
		SessionToken: sessionToken,
		DeviceID:     deviceID,
	}
	var resp wire.SessionVerifyResponse
	if err := c.postJSON(ctx, wire.PathSession, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateDeviceLink mints a short link code scoped to the current owner.
func (c *Client) CreateDeviceLink(ctx context.Context, sessionToken, deviceID string) (*wire.LinkCreateResponse, error) {
	req := &wire.LinkCreateRequest{
		Action:       wire.ActionLinkCreate,
		SessionToken: sessionToken,
		DeviceID:     deviceID,
	}
	var resp wire.LinkCreateResponse
	if err := c.postJSON(ctx, wire.PathDeviceLink, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClaimDeviceLink redeems a link code for the current device.
func (c *Client) ClaimDeviceLink(ctx context.Context, linkCode, deviceID string) (*wire.LinkClaimResponse, error) {
	req := &wire.LinkClaimRequest{
		Action:   wire.ActionLinkClaim,
		LinkCode: linkCode,
		DeviceID: deviceID,
	}
	var resp wire.LinkClaimResponse
	if err := c.postJSON(ctx, wire.PathDeviceLink, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMagicLink asks the server to email a one-time proof-of-possession
// link for the named page.
func (c *Client) SendMagicLink(ctx context.Context, page string) (*wire.MagicSendResponse, error) {
	req := &wire.MagicSendRequest{
		Action: wire.ActionMagicSend,
		Page:   page,
	}
	var resp wire.MagicSendResponse
	if err := c.postJSON(ctx, wire.PathMagicLink, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyMagicLink redeems a magic-link token.
func (c *Client) VerifyMagicLink(ctx context.Context, token, deviceID string) (*wire.MagicVerifyResponse, error) {
	req := &wire.MagicVerifyRequest{
		Action:   wire.ActionMagicVerify,
		Token:    token,
		DeviceID: deviceID,
	}
	var resp wire.MagicVerifyResponse
	if err := c.postJSON(ctx, wire.PathMagicLink, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
