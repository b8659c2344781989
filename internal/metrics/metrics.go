package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postovik",
			Name:      "jobs_scheduled_total",
			Help:      "Jobs accepted by the scheduler, by kind.",
		},
		[]string{"kind"},
	)

	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postovik",
			Name:      "jobs_completed_total",
			Help:      "Job firings by kind and final status.",
		},
		[]string{"kind", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "postovik",
			Name:      "job_duration_seconds",
			Help:      "Handler run time by job kind.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	watchCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postovik",
			Name:      "watch_cycles_total",
			Help:      "Folder-watch polls by outcome.",
		},
		[]string{"outcome"},
	)

	rowsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postovik",
			Name:      "rows_processed_total",
			Help:      "Spreadsheet rows handled by the pipeline, by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postovik",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			jobsScheduled,
			jobsCompleted,
			jobDuration,
			watchCycles,
			rowsProcessed,
			httpRequests,
		)
	})
}

// IncScheduled counts one accepted job of the given kind.
func IncScheduled(kind string) {
	jobsScheduled.WithLabelValues(kind).Inc()
}

// IncCompleted counts one finished firing with its final status.
func IncCompleted(kind, status string) {
	jobsCompleted.WithLabelValues(kind, status).Inc()
}

// ObserveJobDuration records how long one handler run took.
func ObserveJobDuration(kind string, d time.Duration) {
	jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncWatchCycle counts one folder poll with its outcome label.
func IncWatchCycle(outcome string) {
	watchCycles.WithLabelValues(outcome).Inc()
}

// AddRowsProcessed counts pipeline rows by result.
func AddRowsProcessed(result string, n int) {
	rowsProcessed.WithLabelValues(result).Add(float64(n))
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
