// Package register orchestrates the owner-lock credential-creation
// ceremony: the first (or re-registering owner) device creates a platform
// credential and locks the dashboard to it.
package register

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/access"
	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/authenticator"
	"dash-lock-agent/internal/capability"
	"dash-lock-agent/internal/credential"
	"dash-lock-agent/internal/phase"
	"dash-lock-agent/internal/wire"
)

// AccessChecker queries whether registration is permitted.
type AccessChecker interface {
	Check(ctx context.Context) (access.Status, error)
}

// Service is the remote side of the registration protocol.
type Service interface {
	RegisterChallenge(ctx context.Context, userID, deviceID string) (*wire.RegisterChallengeResponse, error)
	SubmitAttestation(ctx context.Context, req *wire.RegisterVerifyRequest) (*wire.RegisterVerifyResponse, error)
}

// DeviceIdentity supplies the correlating device id.
type DeviceIdentity interface {
	DeviceID() string
}

// Params wires the protocol's collaborators.
type Params struct {
	Access        AccessChecker
	Service       Service
	Credentials   *credential.Store
	Identity      DeviceIdentity
	Detector      *capability.Detector
	Authenticator authenticator.Authenticator
	Feedback      authenticator.Feedback
	Tracker       *phase.Tracker
	RPID          string
	RPName        string
	Timeout       time.Duration
	Logger        *logrus.Logger
}

// Protocol runs the registration state machine:
// CheckingAccess -> FetchingChallenge -> AwaitingUserGesture ->
// SubmittingAttestation -> Done | Failed.
type Protocol struct {
	access   AccessChecker
	service  Service
	creds    *credential.Store
	identity DeviceIdentity
	detector *capability.Detector
	authn    authenticator.Authenticator
	feedback authenticator.Feedback
	tracker  *phase.Tracker
	rpID     string
	rpName   string
	timeout  time.Duration
	logger   *logrus.Entry
}

// Result is returned on successful registration.
type Result struct {
	UserID       string
	CredentialID string
	Message      string
}

// New creates a registration protocol.
func New(p Params) (*Protocol, error) {
	if p.Access == nil || p.Service == nil || p.Credentials == nil || p.Identity == nil {
		return nil, fmt.Errorf("access, service, credentials and identity are required")
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
		access:   p.Access,
		service:  p.Service,
		creds:    p.Credentials,
		identity: p.Identity,
		detector: p.Detector,
		authn:    p.Authenticator,
		feedback: p.Feedback,
		tracker:  p.Tracker,
		rpID:     p.RPID,
		rpName:   p.RPName,
		timeout:  p.Timeout,
		logger:   p.Logger.WithField("component", "register"),
	}, nil
}

// Run executes the owner-lock ceremony. Callers must not run another
// ceremony while this one is outstanding.
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

	p.tracker.Set(phase.CheckingAccess)
	status, err := p.access.Check(ctx)
	if err != nil {
		// Unknown server state: fail closed, never register.
		return nil, err
	}
	if !status.CanRegister {
		return nil, autherr.New(autherr.CodeLocked,
			"this dashboard is already locked to a different device")
	}

	// Reuse a previously cached userId so the logical user identity stays
	// stable across re-registrations and device swaps.
	userID := p.creds.CachedUserID()
	if userID == "" {
		userID = uuid.NewString()
	}
	deviceID := p.identity.DeviceID()

	p.tracker.Set(phase.FetchingChallenge)
	challenge, err := p.service.RegisterChallenge(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if challenge.IsLocked {
		return nil, autherr.New(autherr.CodeLocked,
			"this dashboard is already locked to a different device")
	}
	if !challenge.Success {
		message := challenge.Error
		if message == "" {
			message = "could not start registration"
		}
		if challenge.Code == wire.CodeConfigError {
			return nil, autherr.New(autherr.CodeConfigError, message)
		}
		return nil, autherr.New(autherr.CodeServiceUnavailable, message)
	}

	opts := p.creationOptions(challenge, userID, support)

	p.feedback.Pulse(authenticator.PulseLight)
	p.tracker.Set(phase.AwaitingUserGesture)

	attestation, err := p.authn.Create(ctx, opts)
	if err != nil {
		return nil, mapCeremonyError(err)
	}
	p.feedback.Pulse(authenticator.PulseStrong)

	credentialID := wire.EncodeBase64URL(attestation.CredentialID)

	// Cache locally before contacting the server: a network failure past
	// this point must not orphan a credential the platform already created.
	p.creds.Write(credential.Ref{CredentialID: credentialID, UserID: userID})

	p.tracker.Set(phase.SubmittingAttestation)
	verify, err := p.service.SubmitAttestation(ctx, &wire.RegisterVerifyRequest{
		UserID:            userID,
		DeviceID:          deviceID,
		CredentialID:      credentialID,
		ClientDataJSON:    attestation.ClientDataJSON,
		AttestationObject: attestation.AttestationObject,
		AuthenticatorData: attestation.AuthenticatorData,
		PublicKey:         attestation.PublicKey,
		Transports:        attestation.Transports,
	})
	if err != nil {
		return nil, err
	}
	if !verify.Success {
		// The server did not honor the credential; drop the local cache so
		// the operator is offered a fresh setup path instead of a stale ref.
		p.creds.Clear()
		message := verify.Error
		if message == "" {
			message = "the verification service rejected the new credential"
		}
		if verify.IsLocked {
			return nil, autherr.New(autherr.CodeLocked, message)
		}
		return nil, autherr.New(autherr.CodeVerificationFailed, message)
	}

	// Adopt the server's canonical identity when it returns one.
	if verify.UserID != "" {
		userID = verify.UserID
	}
	p.creds.Write(credential.Ref{CredentialID: credentialID, UserID: userID})
	p.creds.MarkOwner()

	message := verify.Message
	if message == "" {
		message = "This dashboard is now locked to this device."
	}

	p.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"user_id":   userID,
	}).Info("Owner-lock registration complete")

	return &Result{UserID: userID, CredentialID: credentialID, Message: message}, nil
}

// creationOptions builds the ceremony parameters from the challenge
// response, falling back to configured relying-party identity.
func (p *Protocol) creationOptions(challenge *wire.RegisterChallengeResponse, userID string, support capability.Support) authenticator.CreationOptions {
	rpID := challenge.RPID
	if rpID == "" {
		rpID = p.rpID
	}
	rpName := challenge.RPName
	if rpName == "" {
		rpName = p.rpName
	}
	userName := challenge.UserName
	if userName == "" {
		userName = "owner"
	}

	residentKey := protocol.ResidentKeyRequirementPreferred
	if support.ResidentKeyRequired {
		// Apple-family platforms silently fail to create a durable passkey
		// unless the resident key is required outright.
		residentKey = protocol.ResidentKeyRequirementRequired
	}

	var exclude []protocol.CredentialDescriptor
	for _, id := range challenge.Exclude {
		exclude = append(exclude, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: id,
		})
	}

	return authenticator.CreationOptions{
		Challenge:        challenge.Challenge,
		RPID:             rpID,
		RPName:           rpName,
		UserID:           []byte(userID),
		UserName:         userName,
		UserDisplayName:  userName,
		Algorithms:       []int64{authenticator.AlgES256, authenticator.AlgRS256},
		Attachment:       protocol.Platform,
		UserVerification: protocol.VerificationRequired,
		ResidentKey:      residentKey,
		Exclude:          exclude,
		Timeout:          p.timeout,
	}
}

// mapCeremonyError translates authenticator failures into the typed
// taxonomy.
func mapCeremonyError(err error) error {
	switch {
	case errors.Is(err, authenticator.ErrCancelled):
		return autherr.Wrap(autherr.CodeNotAllowed,
			"setup was cancelled, try again when ready", err)
	case errors.Is(err, authenticator.ErrNotSupported):
		return autherr.Wrap(autherr.CodeNotSupportedOnDevice,
			"this device cannot create the required credential", err)
	case errors.Is(err, authenticator.ErrUnavailable):
		return autherr.Wrap(autherr.CodeUnsupported,
			"this device does not support passkeys", err)
	default:
		return autherr.Wrap(autherr.CodeNotSupportedOnDevice,
			"credential creation failed on this device", err)
	}
}
