package assertion

import (
	"context"
	"errors"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/authenticator"
	"dash-lock-agent/internal/capability"
	"dash-lock-agent/internal/credential"
	"dash-lock-agent/internal/logging"
	"dash-lock-agent/internal/phase"
	"dash-lock-agent/internal/session"
	"dash-lock-agent/internal/storage"
	"dash-lock-agent/internal/wire"
)

type staticIdentity string

func (s staticIdentity) DeviceID() string { return string(s) }

type mockService struct {
	challengeResp *wire.AuthChallengeResponse
	challengeErr  error
	verifyResp    *wire.AuthVerifyResponse
	verifyErr     error

	challengeCalls int
	verifyCalls    int
	lastHint       string
	lastVerify     *wire.AuthVerifyRequest
}

func (m *mockService) AuthChallenge(ctx context.Context, deviceID, credentialID string) (*wire.AuthChallengeResponse, error) {
	m.challengeCalls++
	m.lastHint = credentialID
	return m.challengeResp, m.challengeErr
}

func (m *mockService) SubmitAssertion(ctx context.Context, req *wire.AuthVerifyRequest) (*wire.AuthVerifyResponse, error) {
	m.verifyCalls++
	m.lastVerify = req
	return m.verifyResp, m.verifyErr
}

func (m *mockService) VerifySession(ctx context.Context, sessionToken, deviceID string) (*wire.SessionVerifyResponse, error) {
	return &wire.SessionVerifyResponse{Success: true, Verified: true}, nil
}

type fixture struct {
	protocol *Protocol
	service  *mockService
	authn    *authenticator.Fake
	creds    *credential.Store
	sessions *session.Manager
	tracker  *phase.Tracker
}

func newFixture(t *testing.T, svc *mockService) *fixture {
	t.Helper()
	logger := logging.Initialize("error")

	creds := credential.NewStore(storage.NewResolver(nil, nil, logger), logger)
	sessions := session.NewManager(nil, svc, staticIdentity("dev-1"), logger)
	authn := authenticator.NewFake()
	tracker := phase.NewTracker()

	p, err := New(Params{
		Service:     svc,
		Credentials: creds,
		Sessions:    sessions,
		Identity:    staticIdentity("dev-1"),
		Detector: capability.NewDetector(capability.StaticPlatform{
			IsAvailable:      true,
			HasPlatformAuthn: true,
			PlatformHints:    capability.Hints{OS: "android", Model: "fingerprint"},
		}, logger),
		Authenticator: authn,
		Tracker:       tracker,
		RPID:          "fallback.example.com",
		Logger:        logger,
	})
	require.NoError(t, err)

	return &fixture{protocol: p, service: svc, authn: authn, creds: creds, sessions: sessions, tracker: tracker}
}

func seededFixture(t *testing.T, svc *mockService) *fixture {
	t.Helper()
	fx := newFixture(t, svc)
	fx.authn.SeedCredential([]byte("seeded-credential-id-32-bytes!!!"), []byte("user-1"))
	fx.creds.Write(credential.Ref{
		CredentialID: wire.EncodeBase64URL([]byte("seeded-credential-id-32-bytes!!!")),
		UserID:       "user-1",
	})
	return fx
}

func challengeFor(fx *fixture) *wire.AuthChallengeResponse {
	return &wire.AuthChallengeResponse{
		Success:   true,
		Challenge: protocol.URLEncodedBase64("challenge-bytes"),
		RPID:      "dash.example.com",
		AllowCredentials: []wire.AllowedCredential{
			{ID: protocol.URLEncodedBase64(fx.authn.CredentialID()), Transports: []string{"internal"}},
		},
	}
}

func TestRunSuccess(t *testing.T) {
	svc := &mockService{
		verifyResp: &wire.AuthVerifyResponse{Success: true, SessionToken: "tok-1", UserID: "user-1"},
	}
	fx := seededFixture(t, svc)
	svc.challengeResp = challengeFor(fx)

	result, err := fx.protocol.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "tok-1", result.SessionToken)

	token, ok := fx.sessions.Token()
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)

	assert.Equal(t, wire.EncodeBase64URL(fx.authn.CredentialID()), svc.lastHint)
	assert.Equal(t, phase.Done, fx.tracker.Current())
}

func TestRunWorksWithoutLocalCache(t *testing.T) {
	// Cache wiped but the platform still holds the credential: the server
	// allow-list resolves it and the cache is rebuilt from the outcome.
	svc := &mockService{
		verifyResp: &wire.AuthVerifyResponse{Success: true, SessionToken: "tok-2", UserID: "user-1"},
	}
	fx := newFixture(t, svc)
	fx.authn.SeedCredential([]byte("seeded-credential-id-32-bytes!!!"), []byte("user-1"))
	svc.challengeResp = challengeFor(fx)

	result, err := fx.protocol.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, svc.lastHint)
	assert.Equal(t, "user-1", result.UserID)

	ref, ok := fx.creds.Read()
	require.True(t, ok)
	assert.Equal(t, wire.EncodeBase64URL(fx.authn.CredentialID()), ref.CredentialID)
	assert.Equal(t, "user-1", ref.UserID)
}

func TestRunChallengeRejections(t *testing.T) {
	tests := []struct {
		name     string
		resp     *wire.AuthChallengeResponse
		wantCode autherr.Code
	}{
		{
			name:     "locked to another device",
			resp:     &wire.AuthChallengeResponse{Success: false, IsLocked: true},
			wantCode: autherr.CodeLocked,
		},
		{
			name:     "no owner registered",
			resp:     &wire.AuthChallengeResponse{Success: false, RequiresSetup: true},
			wantCode: autherr.CodeRequiresSetup,
		},
		{
			name:     "server misconfigured",
			resp:     &wire.AuthChallengeResponse{Success: false, Code: wire.CodeConfigError},
			wantCode: autherr.CodeConfigError,
		},
		{
			name:     "unspecified failure",
			resp:     &wire.AuthChallengeResponse{Success: false, Error: "boom"},
			wantCode: autherr.CodeServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{challengeResp: tt.resp}
			fx := seededFixture(t, svc)

			_, err := fx.protocol.Run(context.Background())
			assert.Equal(t, tt.wantCode, autherr.CodeOf(err))

			_, asserts := fx.authn.Ceremonies()
			assert.Zero(t, asserts)
			assert.Equal(t, phase.Failed, fx.tracker.Current())
		})
	}
}

func TestRunUserCancelsMutatesNothing(t *testing.T) {
	svc := &mockService{}
	fx := seededFixture(t, svc)
	svc.challengeResp = challengeFor(fx)
	fx.authn.CancelNext = true

	_, err := fx.protocol.Run(context.Background())
	assert.Equal(t, autherr.CodeNotAllowed, autherr.CodeOf(err))

	// Cancellation must leave the cached credential and session untouched.
	assert.True(t, fx.creds.Has())
	_, ok := fx.sessions.Token()
	assert.False(t, ok)
	assert.Zero(t, svc.verifyCalls)
}

func TestRunLostCredentialClearsCache(t *testing.T) {
	svc := &mockService{}
	fx := seededFixture(t, svc)
	svc.challengeResp = challengeFor(fx)
	fx.authn.LoseCredential = true

	_, err := fx.protocol.Run(context.Background())
	assert.Equal(t, autherr.CodeCredentialNotFound, autherr.CodeOf(err))

	// A stale reference would keep steering the operator into a dead
	// ceremony; clearing it reopens the setup path.
	assert.False(t, fx.creds.Has())
	assert.Zero(t, svc.verifyCalls)
}

func TestRunServerRejectsAssertion(t *testing.T) {
	svc := &mockService{
		verifyResp: &wire.AuthVerifyResponse{Success: false, Error: "signature mismatch"},
	}
	fx := seededFixture(t, svc)
	svc.challengeResp = challengeFor(fx)

	_, err := fx.protocol.Run(context.Background())
	assert.Equal(t, autherr.CodeVerificationFailed, autherr.CodeOf(err))
	assert.Contains(t, err.Error(), "signature mismatch")

	_, ok := fx.sessions.Token()
	assert.False(t, ok)
}

func TestRunTransportErrorSurfaces(t *testing.T) {
	svc := &mockService{
		challengeErr: autherr.Wrap(autherr.CodeNetworkError, "offline", errors.New("dial")),
	}
	fx := seededFixture(t, svc)

	_, err := fx.protocol.Run(context.Background())
	assert.Equal(t, autherr.CodeNetworkError, autherr.CodeOf(err))
	assert.True(t, fx.creds.Has())
}

func TestRunFallsBackToCachedCredential(t *testing.T) {
	svc := &mockService{
		verifyResp: &wire.AuthVerifyResponse{Success: true, SessionToken: "tok-3", UserID: "user-1"},
	}
	fx := seededFixture(t, svc)

	// Server returned no allow-list; the cached id must stand in.
	svc.challengeResp = &wire.AuthChallengeResponse{
		Success:   true,
		Challenge: protocol.URLEncodedBase64("challenge-bytes"),
		RPID:      "dash.example.com",
	}

	result, err := fx.protocol.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-3", result.SessionToken)
}

func TestRunNoCredentialAnywhere(t *testing.T) {
	svc := &mockService{
		challengeResp: &wire.AuthChallengeResponse{
			Success:   true,
			Challenge: protocol.URLEncodedBase64("challenge-bytes"),
		},
	}
	fx := newFixture(t, svc)

	_, err := fx.protocol.Run(context.Background())
	assert.Equal(t, autherr.CodeCredentialNotFound, autherr.CodeOf(err))

	_, asserts := fx.authn.Ceremonies()
	assert.Zero(t, asserts)
}

func TestRunUnsupportedDevice(t *testing.T) {
	logger := logging.Initialize("error")
	svc := &mockService{}
	p, err := New(Params{
		Service:       svc,
		Credentials:   credential.NewStore(storage.NewResolver(nil, nil, logger), logger),
		Sessions:      session.NewManager(nil, svc, staticIdentity("dev-1"), logger),
		Identity:      staticIdentity("dev-1"),
		Detector:      capability.NewDetector(capability.UnavailablePlatform{}, logger),
		Authenticator: authenticator.NewFake(),
		Logger:        logger,
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.Equal(t, autherr.CodeUnsupported, autherr.CodeOf(err))
	assert.Zero(t, svc.challengeCalls)
}
