package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/cache"
)

const hourlyCheckLockKey = "hourly-check"

// HourlyTriggerConfig holds the sweep cadence
type HourlyTriggerConfig struct {
	Interval time.Duration
	// PurgeInterval is how often a maintenance:purge job is enqueued; zero disables it
	PurgeInterval time.Duration
	// StaleClaimAfter returns claims older than this to the queue on every tick; zero disables it
	StaleClaimAfter time.Duration
	// RunOnStart sweeps immediately instead of waiting one interval
	RunOnStart bool
}

// DefaultHourlyTriggerConfig returns default trigger configuration
func DefaultHourlyTriggerConfig() HourlyTriggerConfig {
	return HourlyTriggerConfig{
		Interval:        time.Hour,
		PurgeInterval:   24 * time.Hour,
		StaleClaimAfter: 30 * time.Minute,
		RunOnStart:      true,
	}
}

// HourlyTrigger runs RunHourlyCheck on a ticker. With a shared locker only one
// replica sweeps per interval.
type HourlyTrigger struct {
	config    HourlyTriggerConfig
	scheduler *SyncScheduler
	queue     *JobQueue
	locker    cache.PartitionLocker
	logger    *zap.Logger

	lastPurge time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// HourlyTriggerOption is a functional option for configuring HourlyTrigger
type HourlyTriggerOption func(*HourlyTrigger)

// WithTriggerLocker elects a single sweeping replica through locker
func WithTriggerLocker(locker cache.PartitionLocker) HourlyTriggerOption {
	return func(t *HourlyTrigger) {
		t.locker = locker
	}
}

// WithTriggerLogger sets the logger
func WithTriggerLogger(logger *zap.Logger) HourlyTriggerOption {
	return func(t *HourlyTrigger) {
		t.logger = logger
	}
}

// NewHourlyTrigger creates a trigger
func NewHourlyTrigger(config HourlyTriggerConfig, scheduler *SyncScheduler, queue *JobQueue, opts ...HourlyTriggerOption) *HourlyTrigger {
	t := &HourlyTrigger{
		config:    config,
		scheduler: scheduler,
		queue:     queue,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start starts the ticker loop
func (t *HourlyTrigger) Start(ctx context.Context) error {
	if t.config.Interval <= 0 {
		return fmt.Errorf("%w: hourly interval must be positive", ErrInvalidConfig)
	}

	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.loop(ctx)

	t.logger.Info("Hourly sync trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("purge_interval", t.config.PurgeInterval),
	)
	return nil
}

// Stop stops the ticker loop and waits for a running sweep
func (t *HourlyTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Hourly sync trigger stopped gracefully")
		return nil
	case <-ctx.Done():
		t.logger.Warn("Hourly sync trigger stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the trigger is running
func (t *HourlyTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

func (t *HourlyTrigger) loop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.Tick(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick releases stale claims, runs one sweep, and enqueues a purge when one is
// due. It reports whether this replica ran the sweep.
func (t *HourlyTrigger) Tick(ctx context.Context) bool {
	if t.locker != nil {
		// Held until it expires so other replicas skip this interval
		lock, err := t.locker.TryLock(ctx, hourlyCheckLockKey, t.config.Interval*9/10)
		if err != nil {
			t.logger.Error("Failed to acquire hourly check lock", zap.Error(err))
			return false
		}
		if lock == nil {
			t.logger.Debug("Hourly check already run by another replica")
			return false
		}
	}

	t.releaseStaleClaims(ctx)
	if _, err := t.scheduler.RunHourlyCheck(ctx); err != nil {
		t.logger.Error("Hourly sync check failed", zap.Error(err))
	}
	t.maybePurge(ctx)
	return true
}

func (t *HourlyTrigger) releaseStaleClaims(ctx context.Context) {
	if t.config.StaleClaimAfter <= 0 || t.queue == nil {
		return
	}
	if _, err := t.queue.ReleaseStaleClaims(ctx, t.config.StaleClaimAfter); err != nil {
		t.logger.Error("Failed to release stale claims", zap.Error(err))
	}
}

func (t *HourlyTrigger) maybePurge(ctx context.Context) {
	if t.config.PurgeInterval <= 0 || t.queue == nil {
		return
	}
	now := t.queue.Now()
	if !t.lastPurge.IsZero() && now.Sub(t.lastPurge) < t.config.PurgeInterval {
		return
	}

	job, err := t.queue.CreateJob(ctx, integration.JobTypeMaintenancePurge, integration.PriorityBackground, integration.JobPayload{})
	if err != nil {
		t.logger.Error("Failed to enqueue purge job", zap.Error(err))
		return
	}
	t.lastPurge = now
	t.logger.Info("Purge job enqueued", zap.String("job_id", job.ID.String()))
}
