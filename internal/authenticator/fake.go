package authenticator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
)

// Fake is a simulated authenticator for tests and local development
// against the mock service. It fabricates structurally plausible
// attestation and assertion payloads without any real cryptography.
type Fake struct {
	mu sync.Mutex

	// CancelNext makes the next ceremony fail as user-cancelled.
	CancelNext bool
	// RejectClass makes creation fail as not-supported-on-device.
	RejectClass bool
	// LoseCredential makes assertion fail as invalid-state, simulating a
	// credential deleted from the platform keychain.
	LoseCredential bool

	credentialID protocol.URLEncodedBase64
	userHandle   protocol.URLEncodedBase64

	creates int
	asserts int
}

// NewFake creates a simulated authenticator holding no credential.
func NewFake() *Fake {
	return &Fake{}
}

// Create simulates the credential-creation gesture.
func (f *Fake) Create(ctx context.Context, opts CreationOptions) (*AttestationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++

	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	if f.CancelNext {
		f.CancelNext = false
		return nil, ErrCancelled
	}
	if f.RejectClass {
		return nil, ErrNotSupported
	}
	if len(opts.Challenge) == 0 {
		return nil, fmt.Errorf("empty challenge")
	}

	f.credentialID = randomBytes(32)
	f.userHandle = append(protocol.URLEncodedBase64(nil), opts.UserID...)

	clientData, _ := json.Marshal(map[string]interface{}{
		"type":      "webauthn.create",
		"challenge": opts.Challenge.String(),
		"origin":    "https://" + opts.RPID,
	})

	return &AttestationResult{
		CredentialID:      f.credentialID,
		ClientDataJSON:    clientData,
		AttestationObject: randomBytes(64),
		AuthenticatorData: randomBytes(37),
		PublicKey:         randomBytes(65),
		Transports:        []string{"internal"},
	}, nil
}

// Assert simulates the credential-assertion gesture.
func (f *Fake) Assert(ctx context.Context, opts RequestOptions) (*AssertionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asserts++

	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	if f.CancelNext {
		f.CancelNext = false
		return nil, ErrCancelled
	}
	if f.LoseCredential || f.credentialID == nil {
		return nil, ErrInvalidState
	}

	if len(opts.AllowCredentials) > 0 {
		allowed := false
		for _, desc := range opts.AllowCredentials {
			if string(desc.CredentialID) == string(f.credentialID) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, ErrInvalidState
		}
	}

	clientData, _ := json.Marshal(map[string]interface{}{
		"type":      "webauthn.get",
		"challenge": opts.Challenge.String(),
		"origin":    "https://" + opts.RPID,
	})

	return &AssertionResult{
		CredentialID:      f.credentialID,
		AuthenticatorData: randomBytes(37),
		ClientDataJSON:    clientData,
		Signature:         randomBytes(70),
		UserHandle:        f.userHandle,
	}, nil
}

// SeedCredential installs a credential as if a prior creation succeeded.
func (f *Fake) SeedCredential(credentialID, userHandle []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentialID = append(protocol.URLEncodedBase64(nil), credentialID...)
	f.userHandle = append(protocol.URLEncodedBase64(nil), userHandle...)
}

// CredentialID returns the currently held credential id, if any.
func (f *Fake) CredentialID() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credentialID
}

// Ceremonies reports how many create and assert gestures ran.
func (f *Fake) Ceremonies() (creates, asserts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.asserts
}

// RecordingFeedback captures haptic pulses for assertions in tests.
type RecordingFeedback struct {
	mu     sync.Mutex
	Pulses []PulseStrength
}

func (r *RecordingFeedback) Pulse(strength PulseStrength) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Pulses = append(r.Pulses, strength)
}

func randomBytes(n int) protocol.URLEncodedBase64 {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("authenticator: crypto/rand unavailable: " + err.Error())
	}
	return buf
}
