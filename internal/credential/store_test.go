package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintake/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// tokenServer issues token-<n> with the given lifetime and counts calls.
func tokenServer(t *testing.T, expiresIn int, calls *atomic.Int32, gate <-chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if gate != nil {
			<-gate
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":%d}`, n, expiresIn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestStore(url string, clock *fakeClock) *Store {
	return NewStore(Config{
		AuthURL:      url,
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshSkew:  10 * time.Second,
		Timeout:      5 * time.Second,
		Now:          clock.Now,
	}, nil, nil, nil)
}

func TestStore_GetCachesCredential(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, 60, &calls, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(srv.URL, clock)

	first, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", first.Token)
	assert.Equal(t, clock.Now().Add(60*time.Second), first.ExpiresAt)

	clock.Advance(30 * time.Second)
	second, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStore_RefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, 60, &calls, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(srv.URL, clock)

	_, err := store.Get(context.Background())
	require.NoError(t, err)

	// Inside the refresh skew window.
	clock.Advance(55 * time.Second)
	c, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", c.Token)
	assert.True(t, c.ExpiresAt.After(clock.Now()))
	assert.Equal(t, int32(2), calls.Load())

	// Well past expiry.
	clock.Advance(10 * time.Minute)
	c, err = store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-3", c.Token)
	assert.True(t, c.ExpiresAt.After(clock.Now()))
}

func TestStore_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	srv := tokenServer(t, 300, &calls, gate)
	clock := &fakeClock{t: time.Now()}
	store := newTestStore(srv.URL, clock)

	const callers = 64
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := store.Get(context.Background())
			tokens[i], errs[i] = c.Token, err
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "token-1", tokens[i])
	}
}

func TestStore_Invalidate(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, 300, &calls, nil)
	clock := &fakeClock{t: time.Now()}
	store := newTestStore(srv.URL, clock)

	first, err := store.Get(context.Background())
	require.NoError(t, err)

	store.Invalidate(first)
	second, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", second.Token)

	// A stale credential must not evict its replacement.
	store.Invalidate(first)
	third, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, third)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_DefaultTTL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"abc"}`)
	}))
	defer srv.Close()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := NewStore(Config{AuthURL: srv.URL, DefaultTTL: time.Minute, Now: clock.Now}, nil, nil, nil)

	c, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), c.ExpiresAt)
}

func TestStore_CachesTokenShorterThanSkew(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, 5, &calls, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(srv.URL, clock)

	for i := 0; i < 5; i++ {
		c, err := store.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token-1", c.Token)
	}
	assert.Equal(t, int32(1), calls.Load())

	// The skew is capped at half of the 5s lifetime.
	clock.Advance(2 * time.Second)
	_, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	c, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", c.Token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_FailedEarlyRefreshKeepsUnexpiredCredential(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "maintenance")
			return
		}
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":60}`, n)
	}))
	defer srv.Close()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(srv.URL, clock)

	first, err := store.Get(context.Background())
	require.NoError(t, err)

	failing.Store(true)
	clock.Advance(55 * time.Second)

	c, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, c)
	assert.Equal(t, int32(2), calls.Load())

	// Once the held credential expires the failure surfaces.
	clock.Advance(10 * time.Second)
	_, err = store.Get(context.Background())
	var authErr *model.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusServiceUnavailable, authErr.StatusCode)
}

func TestStore_FailedRefreshAfterInvalidateIsAnError(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":60}`, n)
	}))
	defer srv.Close()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(srv.URL, clock)

	rejected, err := store.Get(context.Background())
	require.NoError(t, err)

	failing.Store(true)
	store.Invalidate(rejected)

	_, err = store.Get(context.Background())
	var authErr *model.AuthenticationError
	assert.True(t, errors.As(err, &authErr))
}

func TestStore_AuthenticationErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "rejected", status: http.StatusUnauthorized, body: `{"error":"invalid_client"}`, wantStatus: 401, wantBody: `{"error":"invalid_client"}`},
		{name: "malformed json", status: http.StatusOK, body: `not json`, wantStatus: 200, wantBody: "not json"},
		{name: "missing token", status: http.StatusOK, body: `{"expires_in":60}`, wantStatus: 200, wantBody: `{"expires_in":60}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			store := NewStore(Config{AuthURL: srv.URL}, nil, nil, nil)
			_, err := store.Get(context.Background())

			var authErr *model.AuthenticationError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.wantStatus, authErr.StatusCode)
			assert.Equal(t, tt.wantBody, authErr.Body)
		})
	}
}

func TestStore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := NewStore(Config{AuthURL: url}, nil, nil, nil)
	_, err := store.Get(context.Background())

	var authErr *model.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Zero(t, authErr.StatusCode)
	assert.Error(t, authErr.Err)
}

func TestHeaderScheme_Attach(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer spoofed")

	HeaderScheme{Name: "Authorization", Prefix: "Bearer "}.Attach(req, Credential{Token: "abc"})
	HeaderScheme{Name: "ApiKey"}.Attach(req, Credential{Token: "abc"})

	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	assert.Equal(t, "abc", req.Header.Get("ApiKey"))
}
