// Package metrics exposes the runtime's Prometheus surface: circuit
// breaker state per instance (C6), load-balancer pick counts (C8), and
// API-stat call outcomes (C10). Grounded on a typical client's
// pkg/agent/loadbalancer/metrics.go idiom of package-level vecs plus a
// MustRegister entry point, generalized from a single registerer-global
// to one owned by each Context so multiple SDK contexts in a process
// don't collide on metric names.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the vecs one Context publishes, plus the registerer
// they're attached to.
type Registry struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	CircuitBreakerState *prometheus.GaugeVec
	LoadBalancerPicks   *prometheus.CounterVec
	APICallTotal        *prometheus.CounterVec
	APICallLatency      *prometheus.HistogramVec
	RateLimitResult     *prometheus.CounterVec
}

// New builds a Registry backed by a fresh prometheus.Registry, so
// distinct Contexts in the same process never collide on metric names.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registerer: reg,
		gatherer:   reg,
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "polaris_circuitbreaker_state",
			Help: "Circuit breaker state per instance (0=Closed,1=Open,2=HalfOpen,3=Preserved)",
		}, []string{"service", "instance"}),
		LoadBalancerPicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_loadbalancer_picks_total",
			Help: "Count of instances chosen by the load balancer",
		}, []string{"service", "policy", "instance"}),
		APICallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_api_calls_total",
			Help: "Count of facade API calls by kind and return code",
		}, []string{"kind", "return_code"}),
		APICallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "polaris_api_call_duration_seconds",
			Help:    "Facade API call latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"kind"}),
		RateLimitResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polaris_ratelimit_result_total",
			Help: "Count of GetQuota outcomes",
		}, []string{"service", "allowed"}),
	}
	reg.MustRegister(r.CircuitBreakerState, r.LoadBalancerPicks, r.APICallTotal, r.APICallLatency, r.RateLimitResult)
	return r
}

// Handler serves the Context's own metric set, independent of any
// process-wide default registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
