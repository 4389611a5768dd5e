package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job and cron gauges are set from a live store query by the Control
// API's /metrics handler, not incremented as the scheduler/worker run.
// This keeps both service processes stateless: any replica can answer
// /metrics correctly from the store alone.
var (
	JobsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_jobs_total",
			Help: "Total number of job records in the store",
		},
	)

	JobsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_jobs_pending",
			Help: "Number of job records in the pending state",
		},
	)

	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_jobs_running",
			Help: "Number of job records in the running state",
		},
	)

	JobsSuccessfulTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_jobs_successful_total",
			Help: "Total number of completed job records with result true",
		},
	)

	JobsFailedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_jobs_failed_total",
			Help: "Total number of completed job records with result false",
		},
	)

	CronsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_crons_total",
			Help: "Total number of cron specs in the store",
		},
	)

	CronsEnabledTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_crons_enabled_total",
			Help: "Total number of cron specs that are not disabled",
		},
	)

	// PublishDuration times the Scheduler's publish path: InsertOne
	// followed by broker.Send.
	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_publish_duration_seconds",
			Help:    "Time taken to insert a job record and publish it to the broker",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RedeliveryScanDuration times one pass of the Scheduler's
	// redelivery scan.
	RedeliveryScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_redelivery_scan_duration_seconds",
			Help:    "Time taken for one redelivery scan pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// JobExecutionDuration times a worker's full execution of one job,
	// from claim to final persist.
	JobExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_execution_duration_seconds",
			Help:    "Time taken for a worker to execute a job, by script kind",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobsPending)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobsSuccessfulTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(CronsTotal)
	prometheus.MustRegister(CronsEnabledTotal)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(RedeliveryScanDuration)
	prometheus.MustRegister(JobExecutionDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
