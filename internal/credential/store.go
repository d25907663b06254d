package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"docintake/internal/metrics"
	"docintake/internal/model"
)

const maxTokenResponseBytes = 1 << 20

var errMalformedToken = errors.New("malformed token response")

// Credential is a bearer token for the banking API. It is immutable once issued.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Source hands out credentials that are valid at the time of the call.
// Invalidate drops c from any cache so the next Get acquires a fresh one.
type Source interface {
	Get(ctx context.Context) (Credential, error)
	Invalidate(c Credential)
}

// HeaderScheme describes how a credential is attached to an outbound request.
type HeaderScheme struct {
	Name   string
	Prefix string
}

// Attach sets the credential header on req, replacing any value set by the caller.
func (h HeaderScheme) Attach(req *http.Request, c Credential) {
	req.Header.Set(h.Name, h.Prefix+c.Token)
}

// Config configures token acquisition against an OAuth2 client-credentials endpoint.
type Config struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	Scope        string
	// RefreshSkew treats a cached credential as stale this long before it expires.
	RefreshSkew time.Duration
	// DefaultTTL applies when the token endpoint omits expires_in.
	DefaultTTL time.Duration
	// Timeout bounds a single token request.
	Timeout time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Store caches one credential for the whole process and refreshes it on demand.
// Concurrent callers that observe a stale credential share a single token request.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Gateway
	now     func() time.Time

	flight singleflight.Group

	mu      sync.Mutex
	current Credential
	// refreshAt is when current stops being served from cache.
	refreshAt time.Time
}

var _ Source = (*Store)(nil)

// NewStore creates a Store. No token is requested until the first Get.
func NewStore(cfg Config, client *http.Client, logger *slog.Logger, m *metrics.Gateway) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{cfg: cfg, client: client, logger: logger, metrics: m, now: now}
}

// Get returns a credential whose ExpiresAt lies in the future, acquiring a new one
// when the cached credential is missing or within RefreshSkew of expiry. If that
// early refresh fails, the held credential is returned until it actually expires.
func (s *Store) Get(ctx context.Context) (Credential, error) {
	if c, ok := s.cached(); ok {
		return c, nil
	}

	ch := s.flight.DoChan("token", func() (any, error) {
		if c, ok := s.cached(); ok {
			return c, nil
		}
		// The refresh outlives the caller that started it; others may be waiting on it.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()

		c, refreshAt, err := s.acquire(refreshCtx)
		s.metrics.CredentialRefreshed(err)
		if err != nil {
			if cur, ok := s.unexpired(); ok {
				s.logger.Warn("credential refresh failed, serving unexpired credential",
					"expires_at", cur.ExpiresAt,
					"error", err,
				)
				return cur, nil
			}
			s.logger.Error("credential refresh failed", "error", err)
			return Credential{}, err
		}

		s.mu.Lock()
		s.current = c
		s.refreshAt = refreshAt
		s.mu.Unlock()

		s.logger.Info("credential refreshed", "expires_at", c.ExpiresAt)
		return c, nil
	})

	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		c := res.Val.(Credential)
		if !s.now().Before(c.ExpiresAt) {
			return Credential{}, &model.AuthenticationError{Err: errors.New("issued credential is already expired")}
		}
		return c, nil
	}
}

// Invalidate drops c if it is still the cached credential. A credential that has
// already been replaced by a concurrent refresh is left alone.
func (s *Store) Invalidate(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Token != "" && s.current.Token == c.Token {
		s.current = Credential{}
		s.refreshAt = time.Time{}
		s.logger.Warn("credential invalidated")
	}
}

func (s *Store) cached() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current
	now := s.now()
	if c.Token == "" || !now.Before(s.refreshAt) || !now.Before(c.ExpiresAt) {
		return Credential{}, false
	}
	return c, true
}

// unexpired returns the held credential while it is still valid, even inside
// the refresh window.
func (s *Store) unexpired() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current
	if c.Token == "" || !s.now().Before(c.ExpiresAt) {
		return Credential{}, false
	}
	return c, true
}

// refreshPoint is when a credential with the given lifetime should be renewed.
// The skew is capped at half the lifetime so short-lived tokens are still reused.
func (s *Store) refreshPoint(issuedAt time.Time, ttl time.Duration) time.Time {
	return issuedAt.Add(ttl - min(s.cfg.RefreshSkew, ttl/2))
}

func (s *Store) acquire(ctx context.Context) (Credential, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	if s.cfg.Scope != "" {
		form.Set("scope", s.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, time.Time{}, &model.AuthenticationError{Err: fmt.Errorf("build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := s.now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Credential{}, time.Time{}, &model.AuthenticationError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return Credential{}, time.Time{}, &model.AuthenticationError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, time.Time{}, &model.AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return Credential{}, time.Time{}, &model.AuthenticationError{StatusCode: resp.StatusCode, Body: string(body), Err: errMalformedToken}
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	return Credential{Token: tr.AccessToken, ExpiresAt: issuedAt.Add(ttl)}, s.refreshPoint(issuedAt, ttl), nil
}
