package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adsync/backend/internal/domain/integration"
)

// Metrics holds the queue and scheduler instruments served on /metrics
type Metrics struct {
	jobsEnqueued      *prometheus.CounterVec
	jobsClaimed       *prometheus.CounterVec
	jobsFinished      *prometheus.CounterVec
	jobRetries        *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	claimConflicts    prometheus.Counter
	scheduleDecisions *prometheus.CounterVec
	hourlySweeps      prometheus.Counter
	hourlyEnqueued    prometheus.Counter
	staleReleased     prometheus.Counter
}

// NewMetrics creates and registers the instruments. reg may be nil to skip registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adsync_jobs_enqueued_total",
			Help: "Jobs appended to the queue.",
		}, []string{"type", "priority"}),
		jobsClaimed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adsync_jobs_claimed_total",
			Help: "Jobs claimed by a worker.",
		}, []string{"type"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adsync_jobs_finished_total",
			Help: "Jobs that reached a terminal status.",
		}, []string{"type", "status"}),
		jobRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adsync_job_retries_total",
			Help: "Retry jobs enqueued after a retryable failure.",
		}, []string{"type"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adsync_job_duration_seconds",
			Help:    "Handler execution time per job.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"type", "status"}),
		claimConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "adsync_job_claim_conflicts_total",
			Help: "Claim attempts lost to another worker or a busy partition.",
		}),
		scheduleDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adsync_schedule_decisions_total",
			Help: "ScheduleNext outcomes.",
		}, []string{"outcome"}),
		hourlySweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "adsync_hourly_sweeps_total",
			Help: "Hourly due-profile sweeps run.",
		}),
		hourlyEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "adsync_hourly_jobs_enqueued_total",
			Help: "Jobs enqueued by the hourly sweep.",
		}),
		staleReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "adsync_stale_claims_released_total",
			Help: "Claimed jobs returned to the queue after their worker went away.",
		}),
	}
}

func (m *Metrics) enqueued(job *integration.Job) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(job.Type.String(), job.Priority.String()).Inc()
}

func (m *Metrics) claimed(job *integration.Job) {
	if m == nil {
		return
	}
	m.jobsClaimed.WithLabelValues(job.Type.String()).Inc()
}

func (m *Metrics) claimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

func (m *Metrics) finished(job *integration.Job, took time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(job.Type.String(), string(job.Status)).Inc()
	m.jobDuration.WithLabelValues(job.Type.String(), string(job.Status)).Observe(took.Seconds())
}

func (m *Metrics) retried(job *integration.Job) {
	if m == nil {
		return
	}
	m.jobRetries.WithLabelValues(job.Type.String()).Inc()
}

func (m *Metrics) decision(outcome ScheduleOutcome) {
	if m == nil {
		return
	}
	m.scheduleDecisions.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) sweep(enqueued int) {
	if m == nil {
		return
	}
	m.hourlySweeps.Inc()
	m.hourlyEnqueued.Add(float64(enqueued))
}

func (m *Metrics) released(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.staleReleased.Add(float64(n))
}
