package prometheus

import (
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ ports.MetricsCollector = (*Collector)(nil)

var loadLevels = []domain.LoadLevel{domain.LoadLight, domain.LoadModerate, domain.LoadCritical}

var credentialStatuses = []domain.CredentialStatus{
	domain.CredentialAlive,
	domain.CredentialExhausted,
	domain.CredentialCooldown,
}

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	scalingEvents    prometheus.Counter
	maxConcurrency   prometheus.Gauge
	loadLevel        *prometheus.GaugeVec
	cpuPercent       prometheus.Gauge
	memoryPercent    prometheus.Gauge
	inFlight         prometheus.Gauge
	nodesExecuted    *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
	healingDecisions *prometheus.CounterVec
	credentials      *prometheus.GaugeVec
	backendCalls     *prometheus.CounterVec
	backendFailures  *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	runsCompleted    *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		scalingEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dagent_scaling_events_total",
				Help: "Total number of concurrency policy changes",
			},
		),
		maxConcurrency: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_max_concurrency",
				Help: "Current concurrency limit of the scheduler",
			},
		),
		loadLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dagent_load_level",
				Help: "Current load tier (1 for the active tier)",
			},
			[]string{"level"},
		),
		cpuPercent: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_host_cpu_percent",
				Help: "Last sampled host CPU utilization",
			},
		),
		memoryPercent: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_host_memory_percent",
				Help: "Last sampled host memory utilization",
			},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagent_nodes_in_flight",
				Help: "Node executions currently holding a slot",
			},
		),
		nodesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_nodes_executed_total",
				Help: "Total number of nodes executed",
			},
			[]string{"node", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagent_node_duration_seconds",
				Help:    "Node execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"node"},
		),
		healingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_healing_decisions_total",
				Help: "Healing middleware decisions",
			},
			[]string{"decision"},
		),
		credentials: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dagent_credential_entries",
				Help: "Credential entries by provider and status",
			},
			[]string{"provider", "status"},
		),
		backendCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_backend_calls_total",
				Help: "Total number of backend generate calls",
			},
			[]string{"backend", "model"},
		),
		backendFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_backend_failures_total",
				Help: "Total number of failed backend generate calls",
			},
			[]string{"backend", "kind"},
		),
		backendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagent_backend_latency_seconds",
				Help:    "Backend generate latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"backend"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_hybrid_fallbacks_total",
				Help: "Hybrid cascade fallbacks between backends",
			},
			[]string{"from", "to"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagent_runs_completed_total",
				Help: "Total number of finished workflow runs",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagent_run_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
			},
			[]string{"status"},
		),
	}
}

// RecordScaling records an adopted concurrency policy
func (c *Collector) RecordScaling(policy domain.ConcurrencyPolicy) {
	c.scalingEvents.Inc()
	c.maxConcurrency.Set(float64(policy.MaxConcurrency))
	for _, level := range loadLevels {
		v := 0.0
		if level == policy.LoadLevel {
			v = 1
		}
		c.loadLevel.WithLabelValues(string(level)).Set(v)
	}
}

// RecordResourceSnapshot records a host sample
func (c *Collector) RecordResourceSnapshot(snapshot domain.ResourceSnapshot) {
	c.cpuPercent.Set(snapshot.CPUPercent)
	c.memoryPercent.Set(snapshot.MemoryPercent)
}

// RecordNodeExecuted records node execution
func (c *Collector) RecordNodeExecuted(node, status string, duration time.Duration) {
	c.nodesExecuted.WithLabelValues(node, status).Inc()
	c.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// RecordHealingDecision records a middleware decision
func (c *Collector) RecordHealingDecision(decision string) {
	c.healingDecisions.WithLabelValues(decision).Inc()
}

// RecordInFlight records slot usage
func (c *Collector) RecordInFlight(inFlight, capacity int) {
	c.inFlight.Set(float64(inFlight))
	c.maxConcurrency.Set(float64(capacity))
}

// RecordCredentialStatus records the entries of one provider
func (c *Collector) RecordCredentialStatus(provider string, entries []domain.EntryStatus) {
	counts := make(map[domain.CredentialStatus]int, len(credentialStatuses))
	for _, e := range entries {
		counts[e.Status]++
	}
	for _, status := range credentialStatuses {
		c.credentials.WithLabelValues(provider, string(status)).Set(float64(counts[status]))
	}
}

// RecordBackendCall records one generate call
func (c *Collector) RecordBackendCall(backend, model string, duration time.Duration, err error) {
	c.backendCalls.WithLabelValues(backend, model).Inc()
	c.backendLatency.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		c.backendFailures.WithLabelValues(backend, failureKind(err)).Inc()
	}
}

// RecordFallback records a hybrid cascade step
func (c *Collector) RecordFallback(from, to string) {
	c.fallbacks.WithLabelValues(from, to).Inc()
}

// RecordRunCompleted records run completion
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}
