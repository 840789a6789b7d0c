// Package mockservice is an in-memory stand-in for the remote
// verification service, used for integration tests and local development.
// It enforces the single-owner model and the one-shot semantics of link
// codes and magic tokens, but performs no real signature verification.
package mockservice

import (
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/devicelink"
	"dash-lock-agent/internal/wire"
)

const (
	linkCodeTTL   = 5 * time.Minute
	magicTokenTTL = 15 * time.Minute
	linkCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type owner struct {
	userID       string
	deviceID     string
	credentialID string
}

type linkEntry struct {
	expiresAt time.Time
	used      bool
}

type magicEntry struct {
	expiresAt time.Time
	used      bool
}

// Server holds the mock service state. The zero value is not usable; use
// New.
type Server struct {
	mu sync.Mutex

	rpID   string
	rpName string

	hasOwner bool
	owner    owner

	challenges  map[string]string // deviceID -> outstanding challenge
	sessions    map[string]string // token -> deviceID
	links       map[string]*linkEntry
	magicTokens map[string]*magicEntry

	lastMagicToken string

	degraded    bool
	configError bool

	logger *logrus.Entry
}

// New creates a mock service with no registered owner.
func New(rpID, rpName string, logger *logrus.Logger) *Server {
	return &Server{
		rpID:        rpID,
		rpName:      rpName,
		challenges:  make(map[string]string),
		sessions:    make(map[string]string),
		links:       make(map[string]*linkEntry),
		magicTokens: make(map[string]*magicEntry),
		logger:      logger.WithField("component", "mockservice"),
	}
}

// Handler returns the HTTP handler serving the verification API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(wire.PathRegister, s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc(wire.PathAuth, s.handleAuth).Methods(http.MethodPost)
	r.HandleFunc(wire.PathAccess, s.handleAccess).Methods(http.MethodPost)
	r.HandleFunc(wire.PathSession, s.handleSession).Methods(http.MethodPost)
	r.HandleFunc(wire.PathDeviceLink, s.handleDeviceLink).Methods(http.MethodPost)
	r.HandleFunc(wire.PathMagicLink, s.handleMagicLink).Methods(http.MethodPost)
	return r
}

// SetDegraded toggles 503 responses on every endpoint, simulating an
// outage the client should retry and then fail closed on.
func (s *Server) SetDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = degraded
}

// SetConfigError toggles CONFIG_ERROR rejections on challenge endpoints,
// simulating relying-party misconfiguration.
func (s *Server) SetConfigError(configError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configError = configError
}

// HasOwner reports whether an owner has been registered.
func (s *Server) HasOwner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasOwner
}

// OwnerDeviceID returns the registered owner's device id, if any.
func (s *Server) OwnerDeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner.deviceID
}

// MintMagicToken mints a valid magic token directly, standing in for the
// emailed link in tests.
func (s *Server) MintMagicToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString() + uuid.NewString()
	s.magicTokens[token] = &magicEntry{expiresAt: time.Now().Add(magicTokenTTL)}
	return token
}

// LastMagicToken returns the most recently emailed token, standing in for
// reading the email in tests and local development.
func (s *Server) LastMagicToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMagicToken
}

// ExpireMagicToken force-expires a token.
func (s *Server) ExpireMagicToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.magicTokens[token]; ok {
		entry.expiresAt = time.Now().Add(-time.Minute)
	}
}

// ExpireLink force-expires a link code.
func (s *Server) ExpireLink(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.links[devicelink.NormalizeCode(code)]; ok {
		entry.expiresAt = time.Now().Add(-time.Minute)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, action, ok := s.readAction(w, r)
	if !ok {
		return
	}

	switch action {
	case wire.ActionRegisterChallenge:
		var req wire.RegisterChallengeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.registerChallenge(w, &req)
	case wire.ActionRegisterVerify:
		var req wire.RegisterVerifyRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.registerVerify(w, &req)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Server) registerChallenge(w http.ResponseWriter, req *wire.RegisterChallengeRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configError {
		writeJSON(w, &wire.RegisterChallengeResponse{
			Success: false,
			Error:   "relying party misconfigured",
			Code:    wire.CodeConfigError,
		})
		return
	}
	if s.hasOwner && req.DeviceID != s.owner.deviceID {
		writeJSON(w, &wire.RegisterChallengeResponse{Success: false, IsLocked: true})
		return
	}

	challenge := randomChallenge()
	s.challenges[req.DeviceID] = string(challenge)

	writeJSON(w, &wire.RegisterChallengeResponse{
		Success:   true,
		Challenge: challenge,
		RPID:      s.rpID,
		RPName:    s.rpName,
		UserName:  "owner",
	})
}

func (s *Server) registerVerify(w http.ResponseWriter, req *wire.RegisterVerifyRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[req.DeviceID]; !ok {
		writeJSON(w, &wire.RegisterVerifyResponse{Success: false, Error: "no outstanding challenge"})
		return
	}
	delete(s.challenges, req.DeviceID)

	if s.hasOwner && req.DeviceID != s.owner.deviceID {
		writeJSON(w, &wire.RegisterVerifyResponse{Success: false, IsLocked: true})
		return
	}
	if req.CredentialID == "" || len(req.ClientDataJSON) == 0 {
		writeJSON(w, &wire.RegisterVerifyResponse{Success: false, Error: "incomplete attestation"})
		return
	}

	// Re-registration keeps the canonical user id from the first ceremony.
	userID := req.UserID
	if s.hasOwner {
		userID = s.owner.userID
	}

	s.hasOwner = true
	s.owner = owner{userID: userID, deviceID: req.DeviceID, credentialID: req.CredentialID}
	s.logger.WithField("device_id", req.DeviceID).Info("Owner registered")

	writeJSON(w, &wire.RegisterVerifyResponse{
		Success: true,
		UserID:  userID,
		Message: "This dashboard is now locked to this device.",
	})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	body, action, ok := s.readAction(w, r)
	if !ok {
		return
	}

	switch action {
	case wire.ActionAuthChallenge:
		var req wire.AuthChallengeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.authChallenge(w, &req)
	case wire.ActionAuthVerify:
		var req wire.AuthVerifyRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.authVerify(w, &req)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Server) authChallenge(w http.ResponseWriter, req *wire.AuthChallengeRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configError {
		writeJSON(w, &wire.AuthChallengeResponse{
			Success: false,
			Error:   "relying party misconfigured",
			Code:    wire.CodeConfigError,
		})
		return
	}
	if !s.hasOwner {
		writeJSON(w, &wire.AuthChallengeResponse{Success: false, RequiresSetup: true})
		return
	}
	if req.DeviceID != s.owner.deviceID {
		writeJSON(w, &wire.AuthChallengeResponse{Success: false, IsLocked: true})
		return
	}

	challenge := randomChallenge()
	s.challenges[req.DeviceID] = string(challenge)

	credID, err := wire.DecodeBase64URL(s.owner.credentialID)
	if err != nil {
		writeJSON(w, &wire.AuthChallengeResponse{Success: false, Error: "corrupt credential record"})
		return
	}

	writeJSON(w, &wire.AuthChallengeResponse{
		Success:   true,
		Challenge: challenge,
		RPID:      s.rpID,
		AllowCredentials: []wire.AllowedCredential{
			{ID: credID, Transports: []string{"internal"}},
		},
	})
}

func (s *Server) authVerify(w http.ResponseWriter, req *wire.AuthVerifyRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[req.DeviceID]; !ok {
		writeJSON(w, &wire.AuthVerifyResponse{Success: false, Error: "no outstanding challenge"})
		return
	}
	delete(s.challenges, req.DeviceID)

	if !s.hasOwner || req.DeviceID != s.owner.deviceID || req.CredentialID != s.owner.credentialID {
		writeJSON(w, &wire.AuthVerifyResponse{Success: false, Error: "assertion rejected"})
		return
	}
	if len(req.Signature) == 0 || len(req.ClientDataJSON) == 0 {
		writeJSON(w, &wire.AuthVerifyResponse{Success: false, Error: "incomplete assertion"})
		return
	}

	token := uuid.NewString()
	s.sessions[token] = req.DeviceID

	writeJSON(w, &wire.AuthVerifyResponse{
		Success:      true,
		SessionToken: token,
		UserID:       s.owner.userID,
	})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	body, action, ok := s.readAction(w, r)
	if !ok {
		return
	}
	if action != wire.ActionCheckAccess {
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	var req wire.AccessCheckRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, &wire.AccessCheckResponse{
		Success:       true,
		HasOwner:      s.hasOwner,
		IsOwnerDevice: s.hasOwner && req.DeviceID == s.owner.deviceID,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	body, action, ok := s.readAction(w, r)
	if !ok {
		return
	}
	if action != wire.ActionVerifySession {
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	var req wire.SessionVerifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deviceID, ok := s.sessions[req.SessionToken]
	writeJSON(w, &wire.SessionVerifyResponse{
		Success:  true,
		Verified: ok && deviceID == req.DeviceID,
	})
}

func (s *Server) handleDeviceLink(w http.ResponseWriter, r *http.Request) {
	body, action, ok := s.readAction(w, r)
	if !ok {
		return
	}

	switch action {
	case wire.ActionLinkCreate:
		var req wire.LinkCreateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.linkCreate(w, &req)
	case wire.ActionLinkClaim:
		var req wire.LinkClaimRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.linkClaim(w, &req)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Server) linkCreate(w http.ResponseWriter, req *wire.LinkCreateRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceID, ok := s.sessions[req.SessionToken]
	if !ok || deviceID != req.DeviceID {
		writeJSON(w, &wire.LinkCreateResponse{Success: false, Error: "not authenticated"})
		return
	}

	code := randomLinkCode()
	s.links[code] = &linkEntry{expiresAt: time.Now().Add(linkCodeTTL)}

	writeJSON(w, &wire.LinkCreateResponse{
		Success:   true,
		LinkCode:  code,
		ExpiresIn: int(linkCodeTTL.Seconds()),
	})
}

func (s *Server) linkClaim(w http.ResponseWriter, req *wire.LinkClaimRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.links[devicelink.NormalizeCode(req.LinkCode)]
	if !ok || entry.used || time.Now().After(entry.expiresAt) {
		writeJSON(w, &wire.LinkClaimResponse{Success: false, Error: "invalid or expired code"})
		return
	}
	entry.used = true

	token := uuid.NewString()
	s.sessions[token] = req.DeviceID
	s.logger.WithField("device_id", req.DeviceID).Info("Device link claimed")

	writeJSON(w, &wire.LinkClaimResponse{Success: true, SessionToken: token})
}

func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	body, action, ok := s.readAction(w, r)
	if !ok {
		return
	}

	switch action {
	case wire.ActionMagicSend:
		var req wire.MagicSendRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.magicSend(w, &req)
	case wire.ActionMagicVerify:
		var req wire.MagicVerifyRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.magicVerify(w, &req)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Server) magicSend(w http.ResponseWriter, req *wire.MagicSendRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString() + uuid.NewString()
	s.magicTokens[token] = &magicEntry{expiresAt: time.Now().Add(magicTokenTTL)}
	s.lastMagicToken = token
	s.logger.WithField("page", req.Page).Info("Magic link minted")

	writeJSON(w, &wire.MagicSendResponse{
		Success:   true,
		Message:   "Check your email for a sign-in link.",
		ExpiresIn: int(magicTokenTTL.Seconds()),
	})
}

func (s *Server) magicVerify(w http.ResponseWriter, req *wire.MagicVerifyRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.magicTokens[req.Token]
	if !ok || entry.used || time.Now().After(entry.expiresAt) {
		writeJSON(w, &wire.MagicVerifyResponse{Success: false, Error: "invalid or expired link"})
		return
	}
	entry.used = true

	token := uuid.NewString()
	s.sessions[token] = req.DeviceID

	writeJSON(w, &wire.MagicVerifyResponse{Success: true, SessionToken: token})
}

// readAction consumes the request body, extracts the action field, and
// short-circuits 503 when the service is in degraded mode.
func (s *Server) readAction(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	s.mu.Lock()
	degraded := s.degraded
	s.mu.Unlock()

	if degraded {
		http.Error(w, "service degraded", http.StatusServiceUnavailable)
		return nil, "", false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, "", false
	}

	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, "", false
	}
	return body, envelope.Action, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
	}
}

func randomChallenge() protocol.URLEncodedBase64 {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("mockservice: crypto/rand unavailable: " + err.Error())
	}
	return buf
}

func randomLinkCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("mockservice: crypto/rand unavailable: " + err.Error())
	}
	code := make([]byte, 6)
	for i, b := range buf {
		code[i] = linkCodeChars[int(b)%len(linkCodeChars)]
	}
	return string(code)
}
