package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is what the app layer records. Services accept it so tests can pass a fresh registry.
type Metrics interface {
	RecordGatewayCall(op string, err error, elapsed time.Duration)
	RecordCaseCreated()
	RecordStorageFault(op string)
	RecordAccessCheck(result string)
	RecordStaleReply()
}

// Collector is the Prometheus implementation of Metrics.
type Collector struct {
	gatewayCalls   *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
	casesCreated   prometheus.Counter
	storageFaults  *prometheus.CounterVec
	accessChecks   *prometheus.CounterVec
	staleReplies   prometheus.Counter
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suma_gateway_calls_total",
			Help: "AI gateway calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suma_gateway_latency_seconds",
			Help:    "AI gateway call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		casesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suma_cases_created_total",
			Help: "Cases persisted for the first time.",
		}),
		storageFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suma_storage_faults_total",
			Help: "Case store failures by operation.",
		}, []string{"op"}),
		accessChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suma_access_checks_total",
			Help: "Access gate checks by result.",
		}, []string{"result"}),
		staleReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suma_stale_replies_total",
			Help: "Assistant replies discarded because the user moved to another case.",
		}),
	}

	reg.MustRegister(
		c.gatewayCalls,
		c.gatewayLatency,
		c.casesCreated,
		c.storageFaults,
		c.accessChecks,
		c.staleReplies,
	)

	return c
}

func (c *Collector) RecordGatewayCall(op string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.gatewayCalls.WithLabelValues(op, outcome).Inc()
	c.gatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (c *Collector) RecordCaseCreated() {
	c.casesCreated.Inc()
}

func (c *Collector) RecordStorageFault(op string) {
	c.storageFaults.WithLabelValues(op).Inc()
}

func (c *Collector) RecordAccessCheck(result string) {
	c.accessChecks.WithLabelValues(result).Inc()
}

func (c *Collector) RecordStaleReply() {
	c.staleReplies.Inc()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordGatewayCall(string, error, time.Duration) {}
func (NopMetrics) RecordCaseCreated() {}
func (NopMetrics) RecordStorageFault(string) {}
func (NopMetrics) RecordAccessCheck(string) {}
func (NopMetrics) RecordStaleReply() {}

// Handler serves the registry for Prometheus scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
