// Package magiclink implements the email fallback: the server mails a
// one-time link, and redeeming its token grants a session without a
// credential ceremony.
package magiclink

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/credential"
	"dash-lock-agent/internal/session"
	"dash-lock-agent/internal/wire"
)

// minTokenLength rejects obviously truncated tokens before any network
// call; real tokens are far longer.
const minTokenLength = 32

// Service is the remote side of the magic-link flow.
type Service interface {
	SendMagicLink(ctx context.Context, page string) (*wire.MagicSendResponse, error)
	VerifyMagicLink(ctx context.Context, token, deviceID string) (*wire.MagicVerifyResponse, error)
}

// DeviceIdentity supplies the correlating device id.
type DeviceIdentity interface {
	DeviceID() string
}

// Flow runs both halves of the magic-link fallback.
type Flow struct {
	service  Service
	sessions *session.Manager
	creds    *credential.Store
	identity DeviceIdentity
	page     string
	logger   *logrus.Entry
}

// Receipt describes a requested magic link.
type Receipt struct {
	Message   string
	ExpiresIn time.Duration
}

// NewFlow creates a magic-link flow. page names the landing context the
// emailed link should return to.
func NewFlow(service Service, sessions *session.Manager, creds *credential.Store, identity DeviceIdentity, page string, logger *logrus.Logger) (*Flow, error) {
	if service == nil || sessions == nil || creds == nil || identity == nil {
		return nil, fmt.Errorf("service, sessions, credentials and identity are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Flow{
		service:  service,
		sessions: sessions,
		creds:    creds,
		identity: identity,
		page:     page,
		logger:   logger.WithField("component", "magiclink"),
	}, nil
}

// Request asks the server to email a one-time link. The server decides
// the recipient; the client never learns the address.
func (f *Flow) Request(ctx context.Context) (*Receipt, error) {
	resp, err := f.service.SendMagicLink(ctx, f.page)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		message := resp.Error
		if message == "" {
			message = "could not send the sign-in email"
		}
		return nil, autherr.New(autherr.CodeServiceUnavailable, message)
	}

	message := resp.Message
	if message == "" {
		message = "Check your email for a sign-in link."
	}

	f.logger.WithField("expires_in", resp.ExpiresIn).Info("Magic link requested")

	return &Receipt{
		Message:   message,
		ExpiresIn: time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// Verify redeems a magic-link token for a session. Structurally invalid
// tokens are refused before any network traffic.
func (f *Flow) Verify(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength {
		return autherr.New(autherr.CodeVerificationFailed, "the sign-in link is invalid or incomplete")
	}

	resp, err := f.service.VerifyMagicLink(ctx, token, f.identity.DeviceID())
	if err != nil {
		return err
	}
	if !resp.Success || resp.SessionToken == "" {
		message := resp.Error
		if message == "" {
			message = "the sign-in link was not accepted, it may have expired"
		}
		return autherr.New(autherr.CodeVerificationFailed, message)
	}

	// Redeeming the link is a trust bootstrap equivalent to registration:
	// the server gated it through email possession, so this device now acts
	// as the owner.
	f.sessions.Store(resp.SessionToken)
	f.creds.MarkOwner()
	f.logger.Info("Magic link verified")
	return nil
}

// ExtractToken pulls the one-time token out of a clicked link and returns
// the URL with the token scrubbed, suitable for history replacement so the
// secret never lingers in the address bar.
func ExtractToken(rawURL string) (token, scrubbed string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing link: %w", err)
	}

	q := u.Query()
	token = q.Get("token")
	if token == "" {
		return "", rawURL, nil
	}

	q.Del("token")
	u.RawQuery = q.Encode()
	return token, u.String(), nil
}
