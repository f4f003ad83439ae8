package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector holds the pipeline's Prometheus instruments. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	stageFailure *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	rows         prometheus.Counter
	duration     prometheus.Histogram
}

// New registers the pipeline metrics plus Go/process collectors on a fresh
// registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		stageFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "stage_failures_total",
			Help:      "Failed runs by the stage that failed.",
		}, []string{"stage"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "fetch_attempts_total",
			Help:      "Upstream HTTP attempts by result.",
		}, []string{"result"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_etl",
			Name:      "rows_upserted_total",
			Help:      "Rows presented to the merge.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_etl",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
	c.registry.MustRegister(
		c.runs, c.stageFailure, c.attempts, c.rows, c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RunFinished(outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.duration.Observe(seconds)
}

func (c *Collector) StageFailed(stage string) {
	if c == nil {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	c.stageFailure.WithLabelValues(stage).Inc()
}

func (c *Collector) RowsUpserted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.rows.Add(float64(n))
}

func (c *Collector) FetchAttempt(result string) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(result).Inc()
}
