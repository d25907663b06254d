package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docintake/internal/credential"
	"docintake/internal/metrics"
	"docintake/internal/model"
)

const defaultMaxResponseBytes = 10 << 20

var errExpiredCredential = errors.New("credential source returned an expired credential")

// ProxyRequest is an inbound call to forward to the banking API.
// SubPath is relative to the configured base URL.
type ProxyRequest struct {
	Method      string
	SubPath     string
	RawQuery    string
	Body        []byte
	ContentType string
}

// ProxyResponse is the upstream answer, unmodified.
type ProxyResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
	// IssuedWith is the credential the request carried, for invalidation after a 401.
	IssuedWith credential.Credential
}

// OK reports whether the upstream answered with a 2xx status.
func (r *ProxyResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Dispatcher forwards a single request to the banking API with a credential attached.
type Dispatcher interface {
	// Dispatch issues exactly one upstream request. Non-2xx answers are returned as
	// a ProxyResponse, not as an error; a missing answer is an UpstreamUnavailableError.
	Dispatch(ctx context.Context, req ProxyRequest) (*ProxyResponse, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	BaseURL          string
	Header           credential.HeaderScheme
	Timeout          time.Duration
	MaxResponseBytes int64
}

type dispatcher struct {
	base     *url.URL
	header   credential.HeaderScheme
	timeout  time.Duration
	maxBytes int64
	creds    credential.Source
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.Gateway
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher targeting cfg.BaseURL.
func NewDispatcher(cfg DispatcherConfig, creds credential.Source, client *http.Client, logger *slog.Logger, m *metrics.Gateway) (Dispatcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if cfg.Header.Name == "" {
		return nil, fmt.Errorf("credential header name is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	return &dispatcher{
		base:     base,
		header:   cfg.Header,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxResponseBytes,
		creds:    creds,
		client:   client,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}, nil
}

func (d *dispatcher) Dispatch(ctx context.Context, req ProxyRequest) (*ProxyResponse, error) {
	method := strings.ToUpper(req.Method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, &model.UnsupportedMethodError{Method: req.Method}
	}

	cred, err := d.creds.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !d.now().Before(cred.ExpiresAt) {
		return nil, &model.AuthenticationError{Err: errExpiredCredential}
	}

	target := *d.base
	target.Path = singleJoiningSlash(d.base.Path, req.SubPath)
	target.RawPath = ""

	var body io.Reader
	switch method {
	case http.MethodGet:
		target.RawQuery = req.RawQuery
	case http.MethodPost, http.MethodPut:
		body = bytes.NewReader(req.Body)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	out, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	out.Header.Set("Accept", "application/json")
	if body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		out.Header.Set("Content-Type", ct)
	}
	d.header.Attach(out, cred)

	start := time.Now()
	resp, err := d.client.Do(out)
	if err != nil {
		d.metrics.Proxied(method, 0)
		d.logger.Error("upstream request failed",
			"method", method,
			"path", target.Path,
			"error", err,
		)
		return nil, &model.UpstreamUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		d.metrics.Proxied(method, 0)
		return nil, &model.UpstreamUnavailableError{Err: fmt.Errorf("read upstream response: %w", err)}
	}

	d.metrics.Proxied(method, resp.StatusCode)
	d.logger.Info("upstream request",
		"method", method,
		"path", target.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &ProxyResponse{
		StatusCode:  resp.StatusCode,
		Body:        payload,
		ContentType: resp.Header.Get("Content-Type"),
		IssuedWith:  cred,
	}, nil
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
