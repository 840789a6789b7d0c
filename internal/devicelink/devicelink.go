// Package devicelink transfers trust to a second device through a
// short-lived, single-use link code: the trusted device mints the code,
// the new device claims it.
package devicelink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/credential"
	"dash-lock-agent/internal/session"
	"dash-lock-agent/internal/wire"
)

// Service is the remote side of the device-link protocol.
type Service interface {
	CreateDeviceLink(ctx context.Context, sessionToken, deviceID string) (*wire.LinkCreateResponse, error)
	ClaimDeviceLink(ctx context.Context, linkCode, deviceID string) (*wire.LinkClaimResponse, error)
}

// DeviceIdentity supplies the correlating device id.
type DeviceIdentity interface {
	DeviceID() string
}

// Linker runs both sides of the device-link flow.
type Linker struct {
	service  Service
	sessions *session.Manager
	creds    *credential.Store
	identity DeviceIdentity
	logger   *logrus.Entry
}

// Code is a minted link code together with its lifetime.
type Code struct {
	LinkCode  string
	ExpiresIn time.Duration
}

// NewLinker creates a device linker.
func NewLinker(service Service, sessions *session.Manager, creds *credential.Store, identity DeviceIdentity, logger *logrus.Logger) (*Linker, error) {
	if service == nil || sessions == nil || creds == nil || identity == nil {
		return nil, fmt.Errorf("service, sessions, credentials and identity are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Linker{
		service:  service,
		sessions: sessions,
		creds:    creds,
		identity: identity,
		logger:   logger.WithField("component", "devicelink"),
	}, nil
}

// Create mints a link code on behalf of the trusted device. Without a
// local session token the call is refused before any network traffic.
func (l *Linker) Create(ctx context.Context) (*Code, error) {
	token, ok := l.sessions.Token()
	if !ok {
		return nil, autherr.New(autherr.CodeNotAuthenticated,
			"sign in on this device before linking another one")
	}

	resp, err := l.service.CreateDeviceLink(ctx, token, l.identity.DeviceID())
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.LinkCode == "" {
		message := resp.Error
		if message == "" {
			message = "could not create a link code"
		}
		return nil, autherr.New(autherr.CodeServiceUnavailable, message)
	}

	l.logger.WithField("expires_in", resp.ExpiresIn).Info("Link code created")

	return &Code{
		LinkCode:  resp.LinkCode,
		ExpiresIn: time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// Claim redeems a link code on the new device. The code is normalized the
// way operators actually type it: surrounding whitespace stripped,
// lowercase accepted.
func (l *Linker) Claim(ctx context.Context, linkCode string) error {
	code := NormalizeCode(linkCode)
	if code == "" {
		return autherr.New(autherr.CodeInvalidLinkCode, "enter the code shown on the trusted device")
	}

	resp, err := l.service.ClaimDeviceLink(ctx, code, l.identity.DeviceID())
	if err != nil {
		return err
	}
	if !resp.Success || resp.SessionToken == "" {
		message := resp.Error
		if message == "" {
			message = "the code was not accepted, it may have expired"
		}
		return autherr.New(autherr.CodeInvalidLinkCode, message)
	}

	// The claiming device is now trusted: it holds a session and acts as
	// the owner device from here on.
	l.sessions.Store(resp.SessionToken)
	l.creds.MarkOwner()

	l.logger.Info("Device link claimed")
	return nil
}

// NormalizeCode canonicalizes operator input for a link code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
