package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/config"
	"dash-lock-agent/internal/logging"
	"dash-lock-agent/internal/wire"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServerURL = serverURL
	cfg.RequestTimeout = 5 * time.Second

	c, err := NewWithOptions(cfg, logging.Initialize("error"), Options{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	logger := logging.Initialize("error")

	_, err := New(nil, logger)
	assert.Error(t, err)

	_, err = New(config.DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestCheckAccessSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, wire.PathAccess, r.URL.Path)

		var req wire.AccessCheckRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, wire.ActionCheckAccess, req.Action)
		assert.Equal(t, "dev-1", req.DeviceID)

		json.NewEncoder(w).Encode(wire.AccessCheckResponse{
			Success:       true,
			HasOwner:      true,
			IsOwnerDevice: true,
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.CheckAccess(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.HasOwner)
	assert.True(t, resp.IsOwnerDevice)
}

func TestRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(wire.AccessCheckResponse{Success: true})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.CheckAccess(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestServiceUnavailableAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.CheckAccess(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Equal(t, autherr.CodeServiceUnavailable, autherr.CodeOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "2 retries after the first attempt")
}

func TestNetworkErrorOnUnreachableServer(t *testing.T) {
	// Closed server: connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.CheckAccess(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Equal(t, autherr.CodeNetworkError, autherr.CodeOf(err))
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(wire.RegisterChallengeResponse{
			Success:  false,
			IsLocked: true,
			Error:    "locked to another device",
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.RegisterChallenge(context.Background(), "user-1", "dev-1")
	require.NoError(t, err, "protocol-level rejections decode normally")
	assert.True(t, resp.IsLocked)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.CheckAccess(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Equal(t, autherr.CodeServiceUnavailable, autherr.CodeOf(err))
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CheckAccess(ctx, "dev-1")
	require.Error(t, err)
	assert.Equal(t, autherr.CodeNetworkError, autherr.CodeOf(err))
}
