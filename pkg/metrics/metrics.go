// Package metrics exposes the gateway's Prometheus instruments: access
// decisions, tenant cache lookups and identity provider fetch latency.
//
// A nil *Recorder is valid and records nothing, so packages can take an
// optional recorder without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "realm_gateway"

// Lookup results for tenant cache resolutions.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Recorder holds the gateway's collectors.
type Recorder struct {
	decisions     *prometheus.CounterVec
	tenantLookups *prometheus.CounterVec
	idpFetch      *prometheus.HistogramVec
	gatherer      prometheus.Gatherer
}

// New creates a Recorder and registers its collectors with reg. A nil reg
// uses a fresh private registry.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Access decisions by outcome.",
			},
			[]string{"outcome"},
		),
		tenantLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_lookups_total",
				Help:      "Tenant cache resolutions by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		idpFetch: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "idp_fetch_duration_seconds",
				Help:      "Latency of tenant metadata fetches from the identity provider.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
	}

	for _, c := range []prometheus.Collector{r.decisions, r.tenantLookups, r.idpFetch} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	}
	return r, nil
}

// MustNew is like New but panics on registration failure.
func MustNew(reg prometheus.Registerer) *Recorder {
	r, err := New(reg)
	if err != nil {
		panic(err)
	}
	return r
}

// Decision counts one access decision.
func (r *Recorder) Decision(outcome string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(outcome).Inc()
}

// TenantLookup counts one tenant cache resolution.
func (r *Recorder) TenantLookup(result string) {
	if r == nil {
		return
	}
	r.tenantLookups.WithLabelValues(result).Inc()
}

// IdentityProviderFetch observes the duration of one tenant metadata fetch.
// status is "ok" or "error".
func (r *Recorder) IdentityProviderFetch(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.idpFetch.WithLabelValues(status).Observe(d.Seconds())
}

// Handler serves the registry the recorder was registered with. Recorders
// registered with a Registerer that is not also a Gatherer fall back to the
// default gatherer.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
