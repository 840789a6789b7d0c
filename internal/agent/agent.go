// Package agent wires the device-trust components into a single facade:
// storage tiers, device identity, the service client, and the
// registration, sign-in, linking and magic-link protocols.
package agent

import (
	"context"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/access"
	"dash-lock-agent/internal/assertion"
	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/authenticator"
	"dash-lock-agent/internal/capability"
	"dash-lock-agent/internal/client"
	"dash-lock-agent/internal/config"
	"dash-lock-agent/internal/credential"
	"dash-lock-agent/internal/devicelink"
	"dash-lock-agent/internal/identity"
	"dash-lock-agent/internal/magiclink"
	"dash-lock-agent/internal/phase"
	"dash-lock-agent/internal/register"
	"dash-lock-agent/internal/session"
	"dash-lock-agent/internal/storage"
)

// Agent is the composition root for the device-trust module.
type Agent struct {
	cfg    *config.Config
	logger *logrus.Logger

	durable  *storage.SQLiteStore
	sessDB   *storage.SessionStore
	resolver *storage.Resolver

	identity *identity.Manager
	creds    *credential.Store
	sessions *session.Manager
	detector *capability.Detector
	client   *client.Client
	tracker  *phase.Tracker

	authn    authenticator.Authenticator
	feedback authenticator.Feedback

	registration *register.Protocol
	signIn       *assertion.Protocol
	accessQuery  *access.Query
	linker       *devicelink.Linker
	magic        *magiclink.Flow
}

// Option customizes agent construction.
type Option func(*options)

type options struct {
	authn    authenticator.Authenticator
	platform capability.Platform
	feedback authenticator.Feedback
}

// WithAuthenticator installs a native platform authenticator.
func WithAuthenticator(a authenticator.Authenticator) Option {
	return func(o *options) { o.authn = a }
}

// WithPlatform installs a native capability source.
func WithPlatform(p capability.Platform) Option {
	return func(o *options) { o.platform = p }
}

// WithFeedback installs a haptic feedback sink.
func WithFeedback(f authenticator.Feedback) Option {
	return func(o *options) { o.feedback = f }
}

// New builds an agent from configuration. Storage tier failures degrade
// silently; only client or protocol construction can fail.
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Agent, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Agent{cfg: cfg, logger: logger, tracker: phase.NewTracker()}

	durable, err := storage.OpenSQLite(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		logger.WithError(err).Warn("Durable storage unavailable, state will not survive restarts")
	} else {
		a.durable = durable
	}

	sessDB, err := storage.OpenSession("")
	if err != nil {
		logger.WithError(err).Warn("Session storage unavailable, session state is memory-only")
	} else {
		a.sessDB = sessDB
	}

	var durableStore, sessionStore storage.Store
	if a.durable != nil {
		durableStore = a.durable
	}
	if a.sessDB != nil {
		sessionStore = a.sessDB
	}
	a.resolver = storage.NewResolver(durableStore, sessionStore, logger)

	a.identity = identity.NewManager(a.resolver, logger)
	a.creds = credential.NewStore(a.resolver, logger)

	a.client, err = client.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.sessions = session.NewManager(sessionStore, a.client, a.identity, logger)

	a.authn = o.authn
	platform := o.platform
	if cfg.DevFakeAuthenticator {
		if a.authn == nil {
			a.authn = authenticator.NewFake()
		}
		if platform == nil {
			platform = capability.StaticPlatform{
				IsAvailable:      true,
				HasPlatformAuthn: true,
				PlatformHints:    capability.Hints{OS: "linux", Model: "fingerprint"},
			}
		}
	}
	if a.authn == nil {
		a.authn = unavailableAuthenticator{}
	}
	if platform == nil {
		platform = capability.UnavailablePlatform{}
	}
	a.feedback = o.feedback
	if a.feedback == nil {
		a.feedback = authenticator.NopFeedback{}
	}

	a.detector = capability.NewDetector(platform, logger)
	a.accessQuery = access.NewQuery(a.client, a.identity, logger)

	a.registration, err = register.New(register.Params{
		Access:        a.accessQuery,
		Service:       a.client,
		Credentials:   a.creds,
		Identity:      a.identity,
		Detector:      a.detector,
		Authenticator: a.authn,
		Feedback:      a.feedback,
		Tracker:       a.tracker,
		RPID:          cfg.RPID,
		RPName:        cfg.RPDisplayName,
		Timeout:       cfg.CeremonyTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	a.signIn, err = assertion.New(assertion.Params{
		Service:       a.client,
		Credentials:   a.creds,
		Sessions:      a.sessions,
		Identity:      a.identity,
		Detector:      a.detector,
		Authenticator: a.authn,
		Feedback:      a.feedback,
		Tracker:       a.tracker,
		RPID:          cfg.RPID,
		Timeout:       cfg.CeremonyTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	a.linker, err = devicelink.NewLinker(a.client, a.sessions, a.creds, a.identity, logger)
	if err != nil {
		return nil, err
	}

	a.magic, err = magiclink.NewFlow(a.client, a.sessions, a.creds, a.identity, cfg.MagicLinkPage, logger)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Register runs the owner-lock registration ceremony.
func (a *Agent) Register(ctx context.Context) (*register.Result, error) {
	return a.registration.Run(ctx)
}

// Authenticate runs the sign-in ceremony.
func (a *Agent) Authenticate(ctx context.Context) (*assertion.Result, error) {
	return a.signIn.Run(ctx)
}

// CheckAccess asks the server whether an owner exists and whether this
// device is that owner.
func (a *Agent) CheckAccess(ctx context.Context) (access.Status, error) {
	return a.accessQuery.Check(ctx)
}

// CheckSupport reports what the platform credential API offers.
func (a *Agent) CheckSupport() capability.Support {
	return a.detector.CheckSupport()
}

// CreateLink mints a device-link code for transferring trust.
func (a *Agent) CreateLink(ctx context.Context) (*devicelink.Code, error) {
	return a.linker.Create(ctx)
}

// ClaimLink redeems a device-link code on this device.
func (a *Agent) ClaimLink(ctx context.Context, code string) error {
	return a.linker.Claim(ctx, code)
}

// RequestMagicLink asks the server to email a one-time sign-in link.
func (a *Agent) RequestMagicLink(ctx context.Context) (*magiclink.Receipt, error) {
	return a.magic.Request(ctx)
}

// VerifyMagicLink redeems a magic-link token for a session.
func (a *Agent) VerifyMagicLink(ctx context.Context, token string) error {
	return a.magic.Verify(ctx, token)
}

// IsAuthenticated reports session validity, optionally confirmed by the
// server.
func (a *Agent) IsAuthenticated(ctx context.Context, serverCheck bool) bool {
	return a.sessions.IsVerified(ctx, serverCheck)
}

// SignOut discards the local session. The server-side session, if any,
// simply expires; there is nothing to revoke remotely.
func (a *Agent) SignOut() {
	a.sessions.Clear()
	a.logger.Info("Signed out")
}

// ForgetCredential drops the cached credential reference and owner
// marker, forcing the next setup to mint a fresh ceremony. The platform
// keychain entry is untouched.
func (a *Agent) ForgetCredential() {
	a.creds.Clear()
}

// Phases exposes the protocol phase tracker for presentation layers.
func (a *Agent) Phases() *phase.Tracker {
	return a.tracker
}

// Snapshot is a point-in-time view of local trust state for status
// display. Everything here is a local claim; only the server holds truth.
type Snapshot struct {
	DeviceID      string
	StorageTier   storage.Tier
	HasCredential bool
	IsOwner       bool
	HasSession    bool
	SessionExpiry time.Time
	Support       capability.Support
	Phase         phase.Phase
}

// Snapshot reads local state without contacting the server.
func (a *Agent) Snapshot() Snapshot {
	snap := Snapshot{
		DeviceID:      a.identity.DeviceID(),
		StorageTier:   a.resolver.Tier(),
		HasCredential: a.creds.Has(),
		IsOwner:       a.creds.IsOwner(),
		Support:       a.detector.CheckSupport(),
		Phase:         a.tracker.Current(),
	}
	if _, ok := a.sessions.Token(); ok {
		snap.HasSession = true
		if expiry, ok := a.sessions.ExpiryHint(); ok {
			snap.SessionExpiry = expiry
		}
	}
	return snap
}

// Close releases the storage tiers. The session store's backing file is
// removed, taking any stored session token with it.
func (a *Agent) Close() error {
	var err error
	if a.durable != nil {
		err = a.durable.Close()
	}
	if a.sessDB != nil {
		if closeErr := a.sessDB.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// unavailableAuthenticator stands in when no native integration is wired.
type unavailableAuthenticator struct{}

func (unavailableAuthenticator) Create(context.Context, authenticator.CreationOptions) (*authenticator.AttestationResult, error) {
	return nil, autherr.Wrap(autherr.CodeUnsupported, "no platform authenticator integration", authenticator.ErrUnavailable)
}

func (unavailableAuthenticator) Assert(context.Context, authenticator.RequestOptions) (*authenticator.AssertionResult, error) {
	return nil, autherr.Wrap(autherr.CodeUnsupported, "no platform authenticator integration", authenticator.ErrUnavailable)
}
