package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway(t *testing.T) {
	reg := prometheus.NewRegistry()
	g, err := NewGateway(reg)
	require.NoError(t, err)

	g.CredentialRefreshed(nil)
	g.CredentialRefreshed(errors.New("boom"))
	g.Dispatched("partial")
	g.Proxied("GET", 200)
	g.Proxied("GET", 200)

	assert.Equal(t, float64(1), testutil.ToFloat64(g.credentialRefresh.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(g.credentialRefresh.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(g.dispatch.WithLabelValues("partial")))
	assert.Equal(t, float64(2), testutil.ToFloat64(g.proxyRequests.WithLabelValues("GET", "200")))
}

func TestGateway_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewGateway(reg)
	require.NoError(t, err)

	_, err = NewGateway(reg)
	assert.Error(t, err)
}

func TestGateway_NilIsNoop(t *testing.T) {
	var g *Gateway
	assert.NotPanics(t, func() {
		g.CredentialRefreshed(nil)
		g.Dispatched("success")
		g.Proxied("POST", 500)
	})
}
