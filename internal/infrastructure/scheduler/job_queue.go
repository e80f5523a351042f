package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/cache"
	logging "github.com/adsync/backend/internal/infrastructure/logger"
)

// JobQueueConfig holds claim settings
type JobQueueConfig struct {
	// ClaimBatch is how many claimable candidates a single Claim inspects
	ClaimBatch int
	// LockTTL bounds how long a partition lock is held while claiming
	LockTTL time.Duration
}

// DefaultJobQueueConfig returns default queue configuration
func DefaultJobQueueConfig() JobQueueConfig {
	return JobQueueConfig{
		ClaimBatch: 10,
		LockTTL:    10 * time.Second,
	}
}

// JobQueue is the durable priority queue in front of the job store.
// Jobs sharing an (organization, platform) partition never run concurrently.
type JobQueue struct {
	store    integration.JobStore
	config   JobQueueConfig
	locker   cache.PartitionLocker
	validate *validator.Validate
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// JobQueueOption is a functional option for configuring JobQueue
type JobQueueOption func(*JobQueue)

// WithQueueConfig overrides the claim settings
func WithQueueConfig(cfg JobQueueConfig) JobQueueOption {
	return func(q *JobQueue) {
		if cfg.ClaimBatch > 0 {
			q.config.ClaimBatch = cfg.ClaimBatch
		}
		if cfg.LockTTL > 0 {
			q.config.LockTTL = cfg.LockTTL
		}
	}
}

// WithQueueLogger sets the logger
func WithQueueLogger(logger *zap.Logger) JobQueueOption {
	return func(q *JobQueue) {
		q.logger = logger
	}
}

// WithQueueClock sets the time source
func WithQueueClock(now func() time.Time) JobQueueOption {
	return func(q *JobQueue) {
		q.now = now
	}
}

// WithPartitionLocker serialises claims across processes with a shared lock
func WithPartitionLocker(locker cache.PartitionLocker) JobQueueOption {
	return func(q *JobQueue) {
		q.locker = locker
	}
}

// WithQueueMetrics sets the metrics sink
func WithQueueMetrics(m *Metrics) JobQueueOption {
	return func(q *JobQueue) {
		q.metrics = m
	}
}

// NewJobQueue creates a queue over store
func NewJobQueue(store integration.JobStore, opts ...JobQueueOption) *JobQueue {
	q := &JobQueue{
		store:    store,
		config:   DefaultJobQueueConfig(),
		validate: validator.New(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ---------------------------------------------------------------------------
// Enqueue
// ---------------------------------------------------------------------------

type jobOptions struct {
	runAt   time.Time
	attempt int
}

// JobOption tunes a single CreateJob call
type JobOption func(*jobOptions)

// WithRunAt delays the job until t
func WithRunAt(t time.Time) JobOption {
	return func(o *jobOptions) {
		o.runAt = t
	}
}

// WithAttempt sets the retry attempt number
func WithAttempt(attempt int) JobOption {
	return func(o *jobOptions) {
		o.attempt = attempt
	}
}

// CreateJob validates the payload and appends a queued job
func (q *JobQueue) CreateJob(ctx context.Context, jobType integration.JobType, priority integration.JobPriority, payload integration.JobPayload, opts ...JobOption) (*integration.Job, error) {
	var o jobOptions
	for _, opt := range opts {
		opt(&o)
	}

	if jobType.IsSync() {
		if err := q.validatePayload(payload); err != nil {
			return nil, err
		}
	}

	now := q.now()
	job, err := integration.NewJob(jobType, priority, payload, o.runAt, o.attempt, now)
	if err != nil {
		return nil, err
	}
	if err := q.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}

	q.metrics.enqueued(job)
	q.logger.Debug("Job enqueued", append(logging.JobFields(job), zap.Time("run_at", job.RunAt))...)
	return job, nil
}

func (q *JobQueue) validatePayload(payload integration.JobPayload) error {
	if err := q.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrJobInvalidPayload, err)
	}
	if payload.DateRange != nil {
		if _, _, err := payload.DateRange.Bounds(); err != nil {
			return err
		}
	}
	return nil
}

// Retry appends a fresh copy of job with the next attempt number, due after delay
func (q *JobQueue) Retry(ctx context.Context, job *integration.Job, delay time.Duration) (*integration.Job, error) {
	next, err := q.CreateJob(ctx, job.Type, job.Priority, job.Payload,
		WithRunAt(q.now().Add(delay)),
		WithAttempt(job.Attempt+1),
	)
	if err != nil {
		return nil, err
	}
	q.metrics.retried(job)
	return next, nil
}

// ---------------------------------------------------------------------------
// Claim
// ---------------------------------------------------------------------------

// Claim returns the highest-priority due job whose partition is free, marked as
// claimed by workerID. It returns nil when nothing is claimable.
func (q *JobQueue) Claim(ctx context.Context, workerID string) (*integration.Job, error) {
	now := q.now()
	candidates, err := q.store.FindClaimable(ctx, now, q.config.ClaimBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to find claimable jobs: %w", err)
	}

	for _, job := range candidates {
		claimed, err := q.tryClaim(ctx, job, workerID, now)
		if err != nil {
			return nil, err
		}
		if !claimed {
			q.metrics.claimConflict()
			continue
		}
		if err := job.MarkClaimed(workerID, now); err != nil {
			return nil, err
		}
		q.metrics.claimed(job)
		return job, nil
	}
	return nil, nil
}

func (q *JobQueue) tryClaim(ctx context.Context, job *integration.Job, workerID string, now time.Time) (bool, error) {
	var lock *cache.Lock
	if q.locker != nil && job.Payload.OrganizationID != uuid.Nil {
		var err error
		lock, err = q.locker.TryLock(ctx, job.PartitionKey(), q.config.LockTTL)
		if err != nil {
			return false, fmt.Errorf("failed to lock partition %s: %w", job.PartitionKey(), err)
		}
		if lock == nil {
			return false, nil
		}
		defer func() {
			if err := q.locker.Unlock(context.WithoutCancel(ctx), lock); err != nil {
				q.logger.Warn("Failed to release partition lock",
					zap.String("partition", lock.Key),
					zap.Error(err),
				)
			}
		}()
	}

	claimed, err := q.store.TryClaim(ctx, job.ID, workerID, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	return claimed, nil
}

// ---------------------------------------------------------------------------
// Bookkeeping
// ---------------------------------------------------------------------------

// Complete records the handler result as the job's terminal status and frees its partition
func (q *JobQueue) Complete(ctx context.Context, job *integration.Job, result integration.SyncResult) error {
	now := q.now()
	if result.Success {
		job.MarkSucceeded(now)
	} else {
		cause := strings.Join(result.Errors, "; ")
		if cause == "" {
			cause = "job failed"
		}
		job.MarkFailed(cause, now)
	}
	return q.finish(ctx, job)
}

// Fail records cause as the job's failure and frees its partition
func (q *JobQueue) Fail(ctx context.Context, job *integration.Job, cause error) error {
	msg := "job failed"
	if cause != nil {
		msg = cause.Error()
	}
	job.MarkFailed(msg, q.now())
	return q.finish(ctx, job)
}

func (q *JobQueue) finish(ctx context.Context, job *integration.Job) error {
	if err := q.store.Finish(ctx, job); err != nil {
		return fmt.Errorf("failed to finish job %s: %w", job.ID, err)
	}
	return nil
}

// HasPending reports whether a queued or claimed job exists for the pair
func (q *JobQueue) HasPending(ctx context.Context, orgID uuid.UUID, platform integration.PlatformCode) (bool, error) {
	return q.store.HasPending(ctx, orgID, platform)
}

// ReleaseStaleClaims returns jobs claimed longer than olderThan ago to the queue
func (q *JobQueue) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := q.store.ReleaseStaleClaims(ctx, q.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	q.metrics.released(n)
	if n > 0 {
		q.logger.Warn("Released stale job claims", zap.Int64("count", n))
	}
	return n, nil
}

// Now returns the queue's current time
func (q *JobQueue) Now() time.Time {
	return q.now()
}
