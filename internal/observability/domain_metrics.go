package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Total number of query pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	generationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "generation_seconds",
			Help:      "Latency of code generation collaborator calls in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	executionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "execution_seconds",
			Help:      "Latency of analysis script execution in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
	)
	executionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "execution_failures_total",
			Help:      "Total number of classified execution failures by category.",
		},
		[]string{"category"},
	)
	chartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "charts_total",
			Help:      "Total number of rendered charts by chart type.",
		},
		[]string{"type"},
	)
	reportFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "report_fallbacks_total",
			Help:      "Total number of reports served from the deterministic fallback template.",
		},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uploads_total",
			Help:      "Total number of file uploads by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		generationSeconds,
		executionSeconds,
		executionFailuresTotal,
		chartsTotal,
		reportFallbacksTotal,
		uploadsTotal,
	)
}

func IncrementQuery(outcome string) {
	queriesTotal.WithLabelValues(outcome).Inc()
}

func ObserveGeneration(elapsed time.Duration) {
	generationSeconds.Observe(elapsed.Seconds())
}

func ObserveExecution(elapsed time.Duration) {
	executionSeconds.Observe(elapsed.Seconds())
}

func IncrementExecutionFailure(category string) {
	executionFailuresTotal.WithLabelValues(category).Inc()
}

func IncrementChart(chartType string) {
	chartsTotal.WithLabelValues(chartType).Inc()
}

func IncrementReportFallback() {
	reportFallbacksTotal.Inc()
}

func IncrementUpload(status string) {
	uploadsTotal.WithLabelValues(status).Inc()
}
