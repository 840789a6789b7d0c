// Package assertion orchestrates the sign-in ceremony: the owner device
// asserts its cached credential and exchanges the signed proof for a
// session token.
package assertion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/authenticator"
	"dash-lock-agent/internal/capability"
	"dash-lock-agent/internal/credential"
	"dash-lock-agent/internal/phase"
	"dash-lock-agent/internal/session"
	"dash-lock-agent/internal/wire"
)

// Service is the remote side of the authentication protocol.
type Service interface {
	AuthChallenge(ctx context.Context, deviceID, credentialID string) (*wire.AuthChallengeResponse, error)
	SubmitAssertion(ctx context.Context, req *wire.AuthVerifyRequest) (*wire.AuthVerifyResponse, error)
}

// DeviceIdentity supplies the correlating device id.
type DeviceIdentity interface {
	DeviceID() string
}

// Params wires the protocol's collaborators.
type Params struct {
	Service       Service
	Credentials   *credential.Store
	Sessions      *session.Manager
	Identity      DeviceIdentity
	Detector      *capability.Detector
	Authenticator authenticator.Authenticator
	Feedback      authenticator.Feedback
	Tracker       *phase.Tracker
	RPID          string
	Timeout       time.Duration
	Logger        *logrus.Logger
}

// Protocol runs the sign-in state machine: FetchingChallenge ->
// AwaitingUserGesture -> SubmittingAssertion -> Done | Failed.
type Protocol struct {
	service  Service
	creds    *credential.Store
	sessions *session.Manager
	identity DeviceIdentity
	detector *capability.Detector
	authn    authenticator.Authenticator
	feedback authenticator.Feedback
	tracker  *phase.Tracker
	rpID     string
	timeout  time.Duration
	logger   *logrus.Entry
}

// Result is returned on successful sign-in.
type Result struct {
	UserID       string
	SessionToken string
}

// New creates an authentication protocol.
func New(p Params) (*Protocol, error) {
	if p.Service == nil || p.Credentials == nil || p.Sessions == nil || p.Identity == nil {
		return nil, fmt.Errorf("service, credentials, sessions and identity are required")
	}
	if p.Detector == nil || p.Authenticator == nil {
		return nil, fmt.Errorf("detector and authenticator are required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if p.Feedback == nil {
		p.Feedback = authenticator.NopFeedback{}
	}
	if p.Tracker == nil {
		p.Tracker = phase.NewTracker()
	}
	if p.Timeout == 0 {
		p.Timeout = 60 * time.Second
	}

	return &Protocol{
		service:  p.Service,
		creds:    p.Credentials,
		sessions: p.Sessions,
		identity: p.Identity,
		detector: p.Detector,
		authn:    p.Authenticator,
		feedback: p.Feedback,
		tracker:  p.Tracker,
		rpID:     p.RPID,
		timeout:  p.Timeout,
		logger:   p.Logger.WithField("component", "assertion"),
	}, nil
}

// Run executes the sign-in ceremony. The cached credential id is sent as
// a hint; the server's allow-list is authoritative, so sign-in still works
// after a cache wipe as long as the platform holds the credential.
func (p *Protocol) Run(ctx context.Context) (result *Result, err error) {
	defer func() {
		if err != nil {
			p.tracker.Set(phase.Failed)
		} else {
			p.tracker.Set(phase.Done)
		}
	}()

	support := p.detector.CheckSupport()
	if !support.Supported {
		return nil, autherr.New(autherr.CodeUnsupported,
			"this device does not support passkeys")
	}

	deviceID := p.identity.DeviceID()
	cachedID := ""
	if ref, ok := p.creds.Read(); ok {
		cachedID = ref.CredentialID
	}

	p.tracker.Set(phase.FetchingChallenge)
	challenge, err := p.service.AuthChallenge(ctx, deviceID, cachedID)
	if err != nil {
		return nil, err
	}
	switch {
	case challenge.IsLocked:
		return nil, autherr.New(autherr.CodeLocked,
			"this dashboard is locked to a different device")
	case challenge.RequiresSetup:
		return nil, autherr.New(autherr.CodeRequiresSetup,
			"no owner is registered yet, run setup first")
	case !challenge.Success:
		message := challenge.Error
		if message == "" {
			message = "could not start sign-in"
		}
		if challenge.Code == wire.CodeConfigError {
			return nil, autherr.New(autherr.CodeConfigError, message)
		}
		return nil, autherr.New(autherr.CodeServiceUnavailable, message)
	}

	opts, err := p.requestOptions(challenge, cachedID)
	if err != nil {
		return nil, err
	}

	p.feedback.Pulse(authenticator.PulseLight)
	p.tracker.Set(phase.AwaitingUserGesture)

	proof, err := p.authn.Assert(ctx, opts)
	if err != nil {
		return nil, p.mapCeremonyError(err)
	}
	p.feedback.Pulse(authenticator.PulseStrong)

	credentialID := wire.EncodeBase64URL(proof.CredentialID)

	p.tracker.Set(phase.SubmittingAssertion)
	verify, err := p.service.SubmitAssertion(ctx, &wire.AuthVerifyRequest{
		DeviceID:          deviceID,
		CredentialID:      credentialID,
		AuthenticatorData: proof.AuthenticatorData,
		ClientDataJSON:    proof.ClientDataJSON,
		Signature:         proof.Signature,
		UserHandle:        proof.UserHandle,
	})
	if err != nil {
		return nil, err
	}
	if !verify.Success {
		message := verify.Error
		if message == "" {
			message = "the verification service rejected the sign-in"
		}
		return nil, autherr.New(autherr.CodeVerificationFailed, message)
	}

	p.sessions.Store(verify.SessionToken)

	// Refresh the cached reference: the asserted credential may differ from
	// the hint when the server's allow-list resolved it.
	userID := verify.UserID
	if userID == "" {
		userID = p.creds.CachedUserID()
	}
	if userID != "" {
		p.creds.Write(credential.Ref{CredentialID: credentialID, UserID: userID})
	}

	p.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"user_id":   userID,
	}).Info("Sign-in complete")

	return &Result{UserID: userID, SessionToken: verify.SessionToken}, nil
}

// requestOptions builds the ceremony parameters from the challenge
// response. When the server returns no allow-list, the cached credential
// id stands in with the default internal transport, covering credentials
// that predate server-side transport metadata.
func (p *Protocol) requestOptions(challenge *wire.AuthChallengeResponse, cachedID string) (authenticator.RequestOptions, error) {
	rpID := challenge.RPID
	if rpID == "" {
		rpID = p.rpID
	}

	var allow []protocol.CredentialDescriptor
	for _, cred := range challenge.AllowCredentials {
		transports := make([]protocol.AuthenticatorTransport, 0, len(cred.Transports))
		for _, tr := range cred.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(tr))
		}
		allow = append(allow, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    transports,
		})
	}

	if len(allow) == 0 {
		if cachedID == "" {
			return authenticator.RequestOptions{}, autherr.New(autherr.CodeCredentialNotFound,
				"no credential is available on this device, run setup first")
		}
		rawID, err := wire.DecodeBase64URL(cachedID)
		if err != nil {
			p.creds.Clear()
			return authenticator.RequestOptions{}, autherr.Wrap(autherr.CodeCredentialNotFound,
				"the cached credential reference is corrupt, run setup again", err)
		}
		allow = append(allow, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: rawID,
			Transport:    []protocol.AuthenticatorTransport{protocol.Internal},
		})
	}

	return authenticator.RequestOptions{
		Challenge:        challenge.Challenge,
		RPID:             rpID,
		AllowCredentials: allow,
		UserVerification: protocol.VerificationRequired,
		Timeout:          p.timeout,
	}, nil
}

// mapCeremonyError translates authenticator failures into the typed
// taxonomy. A missing credential clears the stale cache so the caller can
// steer the operator back to setup.
func (p *Protocol) mapCeremonyError(err error) error {
	switch {
	case errors.Is(err, authenticator.ErrCancelled):
		return autherr.Wrap(autherr.CodeNotAllowed,
			"sign-in was cancelled, try again when ready", err)
	case errors.Is(err, authenticator.ErrInvalidState):
		p.creds.Clear()
		return autherr.Wrap(autherr.CodeCredentialNotFound,
			"the credential is no longer on this device, run setup again", err)
	case errors.Is(err, authenticator.ErrNotSupported):
		return autherr.Wrap(autherr.CodeNotSupportedOnDevice,
			"this device cannot assert the required credential", err)
	case errors.Is(err, authenticator.ErrUnavailable):
		return autherr.Wrap(autherr.CodeUnsupported,
			"this device does not support passkeys", err)
	default:
		return autherr.Wrap(autherr.CodeNotSupportedOnDevice,
			"credential assertion failed on this device", err)
	}
}
