package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/config"
)

// Client provides JSON-over-HTTPS communication with the remote
// verification service. Every call is a POST with an action field; retries
// cover transport failures and explicit service degradation, never
// protocol-level rejections.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	logger       *logrus.Entry
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	jitterFactor float64
}

// Options tunes retry behavior; zero values take defaults.
type Options struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// New creates a client for the configured service.
func New(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	return NewWithOptions(cfg, logger, Options{})
}

// NewWithOptions creates a client with explicit retry tuning.
func NewWithOptions(cfg *config.Config, logger *logrus.Logger, opts Options) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.JitterFactor == 0 {
		opts.JitterFactor = 0.1
	}

	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimSuffix(cfg.ServerURL, "/"),
		logger:       logger.WithField("component", "client"),
		maxRetries:   opts.MaxRetries,
		baseDelay:    opts.BaseDelay,
		maxDelay:     opts.MaxDelay,
		jitterFactor: opts.JitterFactor,
	}, nil
}

// response is the raw outcome of one attempt.
type response struct {
	statusCode int
	body       []byte
}

// postJSON sends body to path and decodes the JSON reply into out.
// Transport failures map to NetworkError, explicit degradation (429/5xx)
// to ServiceUnavailable; both only after retries are exhausted. Responses
// with protocol-level rejections (4xx carrying a JSON body) decode
// normally so callers can inspect markers like isLocked.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	var lastErr error
	var resp *response

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateDelay(attempt)
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
				"path":    path,
			}).Debug("Retrying request")

			select {
			case <-ctx.Done():
				return autherr.Wrap(autherr.CodeNetworkError, "request cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		var err error
		resp, err = c.doRequest(ctx, path, body)
		if err != nil {
			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return autherr.Wrap(autherr.CodeNetworkError, "request cancelled", err)
			}
			if !isNetworkError(err) {
				return autherr.Wrap(autherr.CodeNetworkError, "request failed", err)
			}
			c.logger.WithError(err).WithField("attempt", attempt+1).Warn("Request failed, will retry")
			continue
		}

		if resp.statusCode == http.StatusTooManyRequests || resp.statusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.statusCode, truncate(resp.body, 200))
			c.logger.WithFields(logrus.Fields{
				"status":  resp.statusCode,
				"attempt": attempt + 1,
				"path":    path,
			}).Warn("Service degraded, will retry")
			continue
		}

		return c.decode(resp, out)
	}

	if resp != nil && (resp.statusCode == http.StatusTooManyRequests || resp.statusCode >= 500) {
		return autherr.Wrap(autherr.CodeServiceUnavailable,
			"verification service is unavailable, try again later", lastErr)
	}
	return autherr.Wrap(autherr.CodeNetworkError,
		fmt.Sprintf("could not reach verification service after %d attempts", c.maxRetries+1), lastErr)
}

// doRequest performs a single HTTP POST.
func (c *Client) doRequest(ctx context.Context, path string, body interface{}) (*response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"path":        path,
		"body_length": len(bodyBytes),
	}).Debug("Making HTTP request")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code": httpResp.StatusCode,
		"body_length": len(respBody),
	}).Debug("HTTP response received")

	return &response{statusCode: httpResp.StatusCode, body: respBody}, nil
}

// decode unmarshals a reply body into out.
func (c *Client) decode(resp *response, out interface{}) error {
	if out == nil {
		return nil
	}
	if len(resp.body) == 0 {
		return autherr.New(autherr.CodeServiceUnavailable, "verification service returned an empty response")
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return autherr.Wrap(autherr.CodeServiceUnavailable,
			"verification service returned a malformed response", err)
	}
	return nil
}

// calculateDelay computes exponential backoff with jitter.
func (c *Client) calculateDelay(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}

	jitter := delay * c.jitterFactor * (rand.Float64()*2 - 1)
	delay += jitter

	if delay < float64(c.baseDelay) {
		delay = float64(c.baseDelay)
	}
	return time.Duration(delay)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// isNetworkError reports whether the error is transport-level and worth
// retrying.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
	}
	for _, marker := range networkErrors {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
