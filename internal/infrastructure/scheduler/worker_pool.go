package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	logging "github.com/adsync/backend/internal/infrastructure/logger"
	"github.com/adsync/backend/internal/infrastructure/telemetry"
)

// JobHandler executes one claimed job.
// Implementations report failures through the result and never panic on bad input.
type JobHandler interface {
	HandleJob(ctx context.Context, job *integration.Job) integration.SyncResult
}

// JobHandlerFunc adapts a function to JobHandler
type JobHandlerFunc func(ctx context.Context, job *integration.Job) integration.SyncResult

// HandleJob calls f(ctx, job)
func (f JobHandlerFunc) HandleJob(ctx context.Context, job *integration.Job) integration.SyncResult {
	return f(ctx, job)
}

// WorkerPoolConfig holds worker pool configuration
type WorkerPoolConfig struct {
	Concurrency     int
	PollInterval    time.Duration
	JobTimeout      time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	HistorySize     int
	StaleClaimAfter time.Duration
}

// DefaultWorkerPoolConfig returns default worker pool configuration
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Concurrency:     4,
		PollInterval:    2 * time.Second,
		JobTimeout:      15 * time.Minute,
		RetryAttempts:   3,
		RetryDelay:      time.Minute,
		MaxRetryDelay:   30 * time.Minute,
		HistorySize:     200,
		StaleClaimAfter: 30 * time.Minute,
	}
}

// Validate checks the configuration
func (c WorkerPoolConfig) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry settings cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// RetryDelayFor returns RetryDelay·2^attempt, capped at MaxRetryDelay
func (c WorkerPoolConfig) RetryDelayFor(attempt int) time.Duration {
	maxDelay := c.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Minute
	}
	delay := c.RetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay || delay <= 0 {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// JobRecord is one entry of the in-memory execution history
type JobRecord struct {
	JobID            uuid.UUID                `json:"jobId"`
	Type             integration.JobType      `json:"type"`
	Priority         string                   `json:"priority"`
	OrganizationID   uuid.UUID                `json:"organizationId"`
	Platform         integration.PlatformCode `json:"platform,omitempty"`
	Attempt          int                      `json:"attempt"`
	WorkerID         string                   `json:"workerId"`
	Status           integration.JobStatus    `json:"status"`
	Skipped          bool                     `json:"skipped"`
	SkipReason       string                   `json:"skipReason,omitempty"`
	RecordsProcessed int64                    `json:"recordsProcessed"`
	Error            string                   `json:"error,omitempty"`
	RetryJobID       *uuid.UUID               `json:"retryJobId,omitempty"`
	StartedAt        time.Time                `json:"startedAt"`
	FinishedAt       time.Time                `json:"finishedAt"`
	Duration         time.Duration            `json:"duration"`
}

// WorkerPool runs N workers that poll the queue and dispatch claimed jobs by type
type WorkerPool struct {
	config      WorkerPoolConfig
	queue       *JobQueue
	syncHandler JobHandler
	maintenance JobHandler
	logger      *zap.Logger
	hostname    string

	historyMu sync.RWMutex
	history   []JobRecord

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// WorkerPoolOption is a functional option for configuring WorkerPool
type WorkerPoolOption func(*WorkerPool)

// WithMaintenanceHandler routes maintenance:* jobs to h
func WithMaintenanceHandler(h JobHandler) WorkerPoolOption {
	return func(p *WorkerPool) {
		p.maintenance = h
	}
}

// WithPoolLogger sets the logger
func WithPoolLogger(logger *zap.Logger) WorkerPoolOption {
	return func(p *WorkerPool) {
		p.logger = logger
	}
}

// NewWorkerPool creates a worker pool; sync:* jobs go to syncHandler
func NewWorkerPool(config WorkerPoolConfig, queue *JobQueue, syncHandler JobHandler, opts ...WorkerPoolOption) *WorkerPool {
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 30 * time.Minute
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	p := &WorkerPool{
		config:      config,
		queue:       queue,
		syncHandler: syncHandler,
		logger:      zap.NewNop(),
		hostname:    host,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start releases claims left by dead workers and starts polling
func (p *WorkerPool) Start(ctx context.Context) error {
	if err := p.config.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	if p.config.StaleClaimAfter > 0 {
		if _, err := p.queue.ReleaseStaleClaims(ctx, p.config.StaleClaimAfter); err != nil {
			p.logger.Warn("Failed to release stale claims on start", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, fmt.Sprintf("%s-%d", p.hostname, i))
	}

	p.logger.Info("Worker pool started",
		zap.Int("workers", p.config.Concurrency),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("job_timeout", p.config.JobTimeout),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to return
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the pool is running
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *WorkerPool) worker(ctx context.Context, workerID string) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.String("worker_id", workerID))

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before waiting for the next poll
		for {
			if ctx.Err() != nil {
				break
			}
			processed, err := p.ProcessNext(ctx, workerID)
			if err != nil {
				p.logger.Error("Worker poll failed", zap.String("worker_id", workerID), zap.Error(err))
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("Worker stopping", zap.String("worker_id", workerID))
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job was run.
func (p *WorkerPool) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	job, err := p.queue.Claim(ctx, workerID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.run(ctx, job, workerID)
	return true, nil
}

func (p *WorkerPool) run(ctx context.Context, job *integration.Job, workerID string) {
	startedAt := p.queue.Now()
	logger := p.logger.With(logging.JobFields(job)...).With(zap.String("worker_id", workerID))
	logger.Info("Processing job")

	result := p.execute(ctx, job)

	// Bookkeeping must land even when the pool is shutting down
	bookCtx := context.WithoutCancel(ctx)
	if err := p.queue.Complete(bookCtx, job, result); err != nil {
		logger.Error("Failed to record job result", zap.Error(err))
	}

	finishedAt := p.queue.Now()
	p.queue.metrics.finished(job, finishedAt.Sub(startedAt))

	record := JobRecord{
		JobID:            job.ID,
		Type:             job.Type,
		Priority:         job.Priority.String(),
		OrganizationID:   job.Payload.OrganizationID,
		Platform:         job.Payload.Platform,
		Attempt:          job.Attempt,
		WorkerID:         workerID,
		Status:           job.Status,
		Skipped:          result.Skipped,
		SkipReason:       result.SkipReason,
		RecordsProcessed: result.RecordsProcessed,
		Error:            job.LastError,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		Duration:         finishedAt.Sub(startedAt),
	}

	switch {
	case result.Success:
		logger.Info("Job completed",
			zap.Bool("skipped", result.Skipped),
			zap.String("skip_reason", result.SkipReason),
			zap.Int64("records_processed", result.RecordsProcessed),
			zap.Duration("duration", record.Duration),
		)
	case result.Retryable && job.Attempt < p.config.RetryAttempts:
		delay := p.config.RetryDelayFor(job.Attempt)
		retry, err := p.queue.Retry(bookCtx, job, delay)
		if err != nil {
			logger.Error("Failed to enqueue retry", zap.Error(err))
			break
		}
		record.RetryJobID = &retry.ID
		logger.Warn("Job failed, retry scheduled",
			zap.String("error", job.LastError),
			zap.String("retry_job_id", retry.ID.String()),
			zap.Duration("retry_delay", delay),
		)
	default:
		logger.Error("Job failed",
			zap.String("error", job.LastError),
			zap.Bool("retryable", result.Retryable),
		)
	}

	p.remember(record)
}

// execute runs the routed handler under the job timeout and converts panics and
// timeouts into failed results
func (p *WorkerPool) execute(ctx context.Context, job *integration.Job) (result integration.SyncResult) {
	handler := p.handlerFor(job.Type)
	if handler == nil {
		return integration.FailedResult(fmt.Errorf("%w: %s", ErrNoHandler, job.Type), false)
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	platform := string(job.Payload.Platform)
	jobCtx, span := telemetry.StartJobSpan(jobCtx, job.Type.String(), platform, job.Attempt)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Job handler panicked",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result = integration.FailedResult(fmt.Errorf("%w: %v", ErrHandlerPanic, r), false)
			telemetry.RecordError(span, ErrHandlerPanic)
		}
	}()

	telemetry.WithProfilingLabels(jobCtx, telemetry.JobLabels(job.Type.String(), platform), func(c context.Context) {
		result = handler.HandleJob(c, job)
	})
	if !result.Success && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		result.Errors = append(result.Errors, ErrJobTimeout.Error())
		result.Retryable = true
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrJobID, job.ID.String(),
		telemetry.SpanAttrRecords, result.RecordsProcessed,
	)
	if result.Success {
		telemetry.SetOK(span)
	} else {
		telemetry.RecordError(span, errors.New(strings.Join(result.Errors, "; ")))
	}
	return result
}

func (p *WorkerPool) handlerFor(t integration.JobType) JobHandler {
	switch {
	case t.IsSync():
		return p.syncHandler
	case t.IsMaintenance():
		return p.maintenance
	default:
		return nil
	}
}

func (p *WorkerPool) remember(record JobRecord) {
	if p.config.HistorySize <= 0 {
		return
	}
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	p.history = append(p.history, record)
	if over := len(p.history) - p.config.HistorySize; over > 0 {
		p.history = append([]JobRecord(nil), p.history[over:]...)
	}
}

// History returns up to limit executed jobs, newest first. limit <= 0 returns all.
func (p *WorkerPool) History(limit int) []JobRecord {
	p.historyMu.RLock()
	defer p.historyMu.RUnlock()

	n := len(p.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]JobRecord, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, p.history[i])
	}
	return out
}

// FailedHistory returns the failed records in History order
func (p *WorkerPool) FailedHistory(limit int) []JobRecord {
	var out []JobRecord
	for _, r := range p.History(0) {
		if r.Status != integration.JobStatusFailed {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
