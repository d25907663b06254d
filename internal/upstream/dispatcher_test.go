package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docintake/internal/credential"
	credMocks "docintake/internal/credential/mocks"
	"docintake/internal/metrics"
	"docintake/internal/model"
)

type captured struct {
	Method      string
	Path        string
	RawQuery    string
	Body        string
	ContentType string
	Auth        string
}

func upstreamServer(t *testing.T, status int, respBody string) (*httptest.Server, *[]captured) {
	t.Helper()
	var mu sync.Mutex
	var seen []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			Method:      r.Method,
			Path:        r.URL.Path,
			RawQuery:    r.URL.RawQuery,
			Body:        string(b),
			ContentType: r.Header.Get("Content-Type"),
			Auth:        r.Header.Get("Authorization"),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func validCredential() credential.Credential {
	return credential.Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
}

func newTestDispatcher(t *testing.T, baseURL string, src credential.Source) Dispatcher {
	t.Helper()
	m, err := metrics.NewGateway(prometheus.NewRegistry())
	require.NoError(t, err)
	d, err := NewDispatcher(DispatcherConfig{
		BaseURL: baseURL + "/api/v5.8.0",
		Header:  credential.HeaderScheme{Name: "Authorization", Prefix: "Bearer "},
		Timeout: 2 * time.Second,
	}, src, nil, nil, m)
	require.NoError(t, err)
	return d
}

func TestDispatch_ForwardsByMethod(t *testing.T) {
	tests := []struct {
		name string
		req  ProxyRequest
		want captured
	}{
		{
			name: "get forwards query",
			req:  ProxyRequest{Method: "get", SubPath: "/holdings/accounts", RawQuery: "customerId=C1&page=2"},
			want: captured{Method: "GET", Path: "/api/v5.8.0/holdings/accounts", RawQuery: "customerId=C1&page=2", Auth: "Bearer tok"},
		},
		{
			name: "post forwards body",
			req:  ProxyRequest{Method: "POST", SubPath: "order/payments", RawQuery: "ignored=1", Body: []byte(`{"amount":10}`)},
			want: captured{Method: "POST", Path: "/api/v5.8.0/order/payments", Body: `{"amount":10}`, ContentType: "application/json", Auth: "Bearer tok"},
		},
		{
			name: "put keeps content type",
			req:  ProxyRequest{Method: "PUT", SubPath: "party/customers/C1", Body: []byte("a=b"), ContentType: "application/x-www-form-urlencoded"},
			want: captured{Method: "PUT", Path: "/api/v5.8.0/party/customers/C1", Body: "a=b", ContentType: "application/x-www-form-urlencoded", Auth: "Bearer tok"},
		},
		{
			name: "delete carries no body",
			req:  ProxyRequest{Method: "DELETE", SubPath: "party/customers/C1", RawQuery: "x=1", Body: []byte("dropped")},
			want: captured{Method: "DELETE", Path: "/api/v5.8.0/party/customers/C1", Auth: "Bearer tok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, seen := upstreamServer(t, http.StatusOK, `{"ok":true}`)
			src := new(credMocks.MockSource)
			src.On("Get", mock.Anything).Return(validCredential(), nil).Once()

			resp, err := newTestDispatcher(t, srv.URL, src).Dispatch(context.Background(), tt.req)

			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, `{"ok":true}`, string(resp.Body))
			assert.Equal(t, "tok", resp.IssuedWith.Token)
			require.Len(t, *seen, 1)
			assert.Equal(t, tt.want, (*seen)[0])
			src.AssertExpectations(t)
		})
	}
}

func TestDispatch_UnsupportedMethod(t *testing.T) {
	srv, seen := upstreamServer(t, http.StatusOK, `{}`)
	src := new(credMocks.MockSource)

	resp, err := newTestDispatcher(t, srv.URL, src).Dispatch(context.Background(), ProxyRequest{Method: "PATCH", SubPath: "x"})

	assert.Nil(t, resp)
	var methodErr *model.UnsupportedMethodError
	require.True(t, errors.As(err, &methodErr))
	assert.Equal(t, "PATCH", methodErr.Method)
	assert.Empty(t, *seen)
	src.AssertNotCalled(t, "Get", mock.Anything)
}

func TestDispatch_UpstreamErrorStatusIsVerbatim(t *testing.T) {
	srv, _ := upstreamServer(t, http.StatusUnprocessableEntity, `{"error":{"code":"E-42"}}`)
	src := new(credMocks.MockSource)
	src.On("Get", mock.Anything).Return(validCredential(), nil)

	resp, err := newTestDispatcher(t, srv.URL, src).Dispatch(context.Background(), ProxyRequest{Method: "GET", SubPath: "x"})

	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, `{"error":{"code":"E-42"}}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestDispatch_UpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	src := new(credMocks.MockSource)
	src.On("Get", mock.Anything).Return(validCredential(), nil)

	_, err := newTestDispatcher(t, url, src).Dispatch(context.Background(), ProxyRequest{Method: "GET", SubPath: "x"})

	var unavailable *model.UpstreamUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestDispatch_AuthenticationErrorMakesNoCall(t *testing.T) {
	srv, seen := upstreamServer(t, http.StatusOK, `{}`)
	src := new(credMocks.MockSource)
	src.On("Get", mock.Anything).Return(credential.Credential{}, &model.AuthenticationError{StatusCode: 401, Body: "nope"})

	_, err := newTestDispatcher(t, srv.URL, src).Dispatch(context.Background(), ProxyRequest{Method: "GET", SubPath: "x"})

	var authErr *model.AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 401, authErr.StatusCode)
	assert.Empty(t, *seen)
}

func TestDispatch_NeverAttachesExpiredCredential(t *testing.T) {
	srv, seen := upstreamServer(t, http.StatusOK, `{}`)
	src := new(credMocks.MockSource)
	expired := credential.Credential{Token: "old", ExpiresAt: time.Now().Add(-time.Second)}
	src.On("Get", mock.Anything).Return(expired, nil)

	_, err := newTestDispatcher(t, srv.URL, src).Dispatch(context.Background(), ProxyRequest{Method: "GET", SubPath: "x"})

	var authErr *model.AuthenticationError
	assert.True(t, errors.As(err, &authErr))
	assert.Empty(t, *seen)
}

func TestDispatch_StoreRefreshesExpiredCredential(t *testing.T) {
	var issued atomic.Int32
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":60}`, issued.Add(1))
	}))
	defer auth.Close()
	srv, seen := upstreamServer(t, http.StatusOK, `{}`)

	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := credential.NewStore(credential.Config{AuthURL: auth.URL, Now: clock}, nil, nil, nil)
	d := newTestDispatcher(t, srv.URL, store)

	_, err := d.Dispatch(context.Background(), ProxyRequest{Method: "GET", SubPath: "x"})
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	_, err = d.Dispatch(context.Background(), ProxyRequest{Method: "GET", SubPath: "x"})
	require.NoError(t, err)

	require.Len(t, *seen, 2)
	assert.Equal(t, "Bearer token-1", (*seen)[0].Auth)
	assert.Equal(t, "Bearer token-2", (*seen)[1].Auth)
}

func TestNewDispatcher_Validation(t *testing.T) {
	src := new(credMocks.MockSource)

	_, err := NewDispatcher(DispatcherConfig{Header: credential.HeaderScheme{Name: "ApiKey"}}, src, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherConfig{BaseURL: "http://example.test"}, src, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherConfig{BaseURL: "http://example.test", Header: credential.HeaderScheme{Name: "ApiKey"}}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSingleJoiningSlash(t *testing.T) {
	assert.Equal(t, "/a/b", singleJoiningSlash("/a/", "/b"))
	assert.Equal(t, "/a/b", singleJoiningSlash("/a", "b"))
	assert.Equal(t, "/a/b", singleJoiningSlash("/a", "/b"))
	assert.Equal(t, "/a/b", singleJoiningSlash("/a/", "b"))
}
