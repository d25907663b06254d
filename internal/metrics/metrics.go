package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Gateway holds the domain counters of the integration gateway.
// A nil *Gateway records nothing, which keeps wiring optional in tests.
type Gateway struct {
	credentialRefresh *prometheus.CounterVec
	dispatch          *prometheus.CounterVec
	proxyRequests     *prometheus.CounterVec
}

// NewGateway creates the gateway counters and registers them with reg.
func NewGateway(reg prometheus.Registerer) (*Gateway, error) {
	g := &Gateway{
		credentialRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docintake_credential_refresh_total",
				Help: "Token endpoint calls made by the credential store, by result.",
			},
			[]string{"result"},
		),
		dispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docintake_dispatch_total",
				Help: "Document dispatches that passed validation, by outcome.",
			},
			[]string{"outcome"},
		),
		proxyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docintake_proxy_requests_total",
				Help: "Requests forwarded to the banking API, by method and upstream status.",
			},
			[]string{"method", "status"},
		),
	}

	for _, c := range []prometheus.Collector{g.credentialRefresh, g.dispatch, g.proxyRequests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Gateway) CredentialRefreshed(err error) {
	if g == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	g.credentialRefresh.WithLabelValues(result).Inc()
}

func (g *Gateway) Dispatched(outcome string) {
	if g == nil {
		return
	}
	g.dispatch.WithLabelValues(outcome).Inc()
}

// Proxied records a forwarded request; status 0 means no upstream response.
func (g *Gateway) Proxied(method string, status int) {
	if g == nil {
		return
	}
	g.proxyRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
