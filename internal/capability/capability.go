package capability

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// AuthenticatorType classifies the platform authenticator presented to the
// operator.
type AuthenticatorType string

const (
	TypeFaceID       AuthenticatorType = "face_id"
	TypeTouchID      AuthenticatorType = "touch_id"
	TypeFingerprint  AuthenticatorType = "fingerprint"
	TypeWindowsHello AuthenticatorType = "windows_hello"
	TypeBiometric    AuthenticatorType = "biometric"
)

// Hints carries the platform signals used to classify the authenticator.
type Hints struct {
	OS     string // e.g. "macos", "ios", "windows", "android", "linux"
	Vendor string
	Model  string // e.g. "face", "fingerprint", "hello"
}

// Platform is the duck-typed platform credential API made explicit. A
// browser runtime, a native biometric stack, or the test fake all sit
// behind this interface.
type Platform interface {
	// Available reports whether the credential protocol exists at all.
	Available() bool
	// PlatformAuthenticator reports whether a platform (built-in)
	// authenticator is user-verifying and reachable.
	PlatformAuthenticator() bool
	// ConditionalMediation reports whether conditional-mediation
	// (autofill-style) assertion is offered.
	ConditionalMediation() bool
	// Hints exposes the signals used for authenticator classification.
	Hints() Hints
}

// Support is the result of a capability query.
type Support struct {
	Supported             bool
	PlatformAuthenticator bool
	ConditionalMediation  bool
	Type                  AuthenticatorType
	// ResidentKeyRequired is true when discoverable-credential creation
	// must be forced rather than merely preferred. Apple-family platforms
	// silently fail to create a durable passkey otherwise.
	ResidentKeyRequired bool
}

// Detector answers capability queries. It fails soft: an absent platform
// yields Supported=false, never an error.
type Detector struct {
	platform Platform
	logger   *logrus.Entry
}

// NewDetector creates a capability detector for the given platform.
func NewDetector(platform Platform, logger *logrus.Logger) *Detector {
	return &Detector{
		platform: platform,
		logger:   logger.WithField("component", "capability"),
	}
}

// CheckSupport queries the platform and classifies its authenticator.
func (d *Detector) CheckSupport() Support {
	if d.platform == nil || !d.platform.Available() {
		d.logger.Debug("Platform credential protocol unavailable")
		return Support{Supported: false, Type: TypeBiometric}
	}

	hints := d.platform.Hints()
	support := Support{
		Supported:             true,
		PlatformAuthenticator: d.platform.PlatformAuthenticator(),
		ConditionalMediation:  d.platform.ConditionalMediation(),
		Type:                  classify(hints),
		ResidentKeyRequired:   isAppleFamily(hints.OS),
	}

	d.logger.WithFields(logrus.Fields{
		"type":                  support.Type,
		"platform_authn":        support.PlatformAuthenticator,
		"resident_key_required": support.ResidentKeyRequired,
	}).Debug("Capability check complete")

	return support
}

// classify maps platform signals to an authenticator type. Unrecognized
// platforms fall back to the generic biometric label.
func classify(hints Hints) AuthenticatorType {
	os := strings.ToLower(hints.OS)
	model := strings.ToLower(hints.Model)

	switch {
	case isAppleFamily(os) && strings.Contains(model, "face"):
		return TypeFaceID
	case isAppleFamily(os):
		return TypeTouchID
	case os == "windows":
		return TypeWindowsHello
	case strings.Contains(model, "fingerprint"):
		return TypeFingerprint
	case os == "android":
		return TypeFingerprint
	default:
		return TypeBiometric
	}
}

// isAppleFamily reports whether the OS belongs to the Apple platform family.
func isAppleFamily(os string) bool {
	switch strings.ToLower(os) {
	case "darwin", "macos", "ios", "ipados":
		return true
	default:
		return false
	}
}

// UnavailablePlatform is a Platform with no credential protocol at all.
// It is the default when no native integration is wired in.
type UnavailablePlatform struct{}

func (UnavailablePlatform) Available() bool             { return false }
func (UnavailablePlatform) PlatformAuthenticator() bool { return false }
func (UnavailablePlatform) ConditionalMediation() bool  { return false }
func (UnavailablePlatform) Hints() Hints                { return Hints{} }

// StaticPlatform is a fixed-answer Platform, useful for development and
// tests.
type StaticPlatform struct {
	IsAvailable      bool
	HasPlatformAuthn bool
	HasConditional   bool
	PlatformHints    Hints
}

func (p StaticPlatform) Available() bool             { return p.IsAvailable }
func (p StaticPlatform) PlatformAuthenticator() bool { return p.HasPlatformAuthn }
func (p StaticPlatform) ConditionalMediation() bool  { return p.HasConditional }
func (p StaticPlatform) Hints() Hints                { return p.PlatformHints }
