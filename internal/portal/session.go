// Package portal talks to the upstream diarium portal: a server-side-rendered
// ASP.NET search application with no public API. It covers the HTTP session,
// the search-result and detail-page parsers, and the postback pagination
// navigator.
package portal

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/peer-digital/medla-projects/internal/circuitbreaker"
	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/retry"
)

// Response is the portal's reply to one request
type Response struct {
	StatusCode int
	Body       string
}

// Session manages the HTTP connection to the portal: connection reuse,
// default headers, bounded retry on transient server errors, and a randomized
// inter-request delay. The delay is a deliberate throttle against the
// portal's anti-scraping defenses, not a performance knob. A circuit breaker
// sits in front of every request; when the portal fails consistently the
// session stops hammering it and later partitions fail fast instead of
// walking the full retry ladder page by page.
type Session struct {
	client    *http.Client
	userAgent string

	minDelay time.Duration
	maxDelay time.Duration

	mu          sync.Mutex
	lastRequest time.Time

	retryConfig *retry.Config
	breaker     *circuitbreaker.CircuitBreaker
}

// NewSession creates a portal session from configuration
func NewSession(cfg *config.PortalConfig) *Session {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Session{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		userAgent: cfg.UserAgent,
		minDelay:  cfg.MinRequestDelay,
		maxDelay:  cfg.MaxRequestDelay,
		// 1s, 2s, 4s between the up-to-3 retries of an idempotent GET
		retryConfig: &retry.Config{
			MaxAttempts:  4,
			InitialDelay: 1 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("portal")),
	}
}

// Get fetches a URL, retrying on transient server errors. The referer must
// name the page being navigated from; the portal degrades requests without it.
func (s *Session) Get(ctx context.Context, rawURL, referer string) (*Response, error) {
	var response *Response

	result := retry.WithExponentialBackoff(ctx, s.retryConfig, func(ctx context.Context, attempt int) error {
		resp, err := s.do(ctx, http.MethodGet, rawURL, referer, nil)
		if err != nil {
			return errors.NewTransientError(fmt.Sprintf("GET %s failed", rawURL), err)
		}
		if isTransientStatus(resp.StatusCode) {
			return errors.NewTransientError(fmt.Sprintf("GET %s returned %d", rawURL, resp.StatusCode), nil)
		}
		response = resp
		return nil
	})

	if !result.Success {
		return nil, result.LastError
	}
	return response, nil
}

// PostForm submits a form to the portal. Postbacks carry server-side state,
// so a failed POST is never retried automatically.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values, referer string) (*Response, error) {
	resp, err := s.do(ctx, http.MethodPost, rawURL, referer, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewTransientError(fmt.Sprintf("POST %s failed", rawURL), err)
	}
	return resp, nil
}

func (s *Session) do(ctx context.Context, method, rawURL, referer string, body io.Reader) (*Response, error) {
	// Checked before the throttle so an open circuit fails without sleeping
	if err := s.breaker.Allow(); err != nil {
		return nil, err
	}

	s.throttle(ctx)

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if origin := originOf(rawURL); origin != "" {
			req.Header.Set("Origin", origin)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}

	if isTransientStatus(resp.StatusCode) {
		s.breaker.RecordFailure()
	} else {
		s.breaker.RecordSuccess()
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"method": method,
		"url":    rawURL,
		"status": resp.StatusCode,
	}).Debug("Portal request completed")

	return &Response{StatusCode: resp.StatusCode, Body: string(data)}, nil
}

// throttle sleeps a randomized interval since the previous request. Requests
// from all callers of one session share the same pacing.
func (s *Session) throttle(ctx context.Context) {
	s.mu.Lock()
	elapsed := time.Since(s.lastRequest)
	window := s.maxDelay - s.minDelay
	delay := s.minDelay
	if window > 0 {
		delay += time.Duration(rand.Int63n(int64(window)))
	}
	wait := delay - elapsed
	s.lastRequest = time.Now().Add(wait)
	s.mu.Unlock()

	if wait <= 0 {
		return
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
