package telemetry

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a metrics component is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Sync outcomes for metrics labeling
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// SessionCountProvider reports syncing sessions per platform
type SessionCountProvider interface {
	CountSyncingByPlatform(ctx context.Context) (map[string]int64, error)
}

// JobCountProvider reports jobs per status
type JobCountProvider interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// SyncMetricsConfig holds configuration for sync metrics
type SyncMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	Sessions        SessionCountProvider
	Jobs            JobCountProvider
}

// SyncMetrics records sync runs and platform fetch traffic.
// It also satisfies the fetch client's Recorder contract.
type SyncMetrics struct {
	logger   *zap.Logger
	interval time.Duration

	syncTotal       *Counter
	syncRecords     *Counter
	syncDuration    *Histogram
	fetchRequests   *Counter
	fetchThrottled  *Counter
	fetchDuration   *Histogram
	fetchSleep      *Histogram
	sessionsSyncing *Gauge
	jobsByStatus    *Gauge

	sessions SessionCountProvider
	jobs     JobCountProvider

	stopChan  chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewSyncMetrics creates the sync instruments on cfg.Meter
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = time.Minute
	}

	sm := &SyncMetrics{
		logger:   logger,
		interval: interval,
		sessions: cfg.Sessions,
		jobs:     cfg.Jobs,
		stopChan: make(chan struct{}),
	}

	var err error
	if sm.syncTotal, err = NewCounter(cfg.Meter, "adsync_sync_total", "Sync runs by platform and outcome", "{runs}"); err != nil {
		return nil, err
	}
	if sm.syncRecords, err = NewCounter(cfg.Meter, "adsync_sync_records_total", "Canonical records written by sync runs", "{records}"); err != nil {
		return nil, err
	}
	if sm.fetchRequests, err = NewCounter(cfg.Meter, "adsync_fetch_requests_total", "Platform HTTP requests by status class", "{requests}"); err != nil {
		return nil, err
	}
	if sm.fetchThrottled, err = NewCounter(cfg.Meter, "adsync_fetch_throttled_total", "Platform responses classified as throttled", "{responses}"); err != nil {
		return nil, err
	}
	if sm.syncDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "adsync_sync_duration_seconds",
		Description: "Sync run wall time",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.fetchDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "adsync_fetch_request_duration_seconds",
		Description: "Platform HTTP request latency",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.fetchSleep, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "adsync_fetch_sleep_seconds",
		Description: "Time spent waiting on pacing, quota and backoff",
		Unit:        "s",
		Boundaries:  SleepBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.sessionsSyncing, err = NewGauge(cfg.Meter, "adsync_sync_sessions_syncing", "Sessions currently holding the syncing slot", "{sessions}"); err != nil {
		return nil, err
	}
	if sm.jobsByStatus, err = NewGauge(cfg.Meter, "adsync_jobs", "Jobs in the durable queue by status", "{jobs}"); err != nil {
		return nil, err
	}

	return sm, nil
}

// =============================================================================
// Sync runs
// =============================================================================

// RecordSync records one finished sync run
func (sm *SyncMetrics) RecordSync(ctx context.Context, platform, outcome string, records int64, duration time.Duration) {
	sm.syncTotal.Inc(ctx, AttrPlatform.String(platform), AttrOutcome.String(outcome))
	if records > 0 {
		sm.syncRecords.Add(ctx, records, AttrPlatform.String(platform))
	}
	if outcome != OutcomeSkipped {
		sm.syncDuration.RecordDuration(ctx, duration, AttrPlatform.String(platform), AttrOutcome.String(outcome))
	}
}

// =============================================================================
// Fetch client
// =============================================================================

// RecordRequest records one HTTP exchange; status 0 means a transport failure
func (sm *SyncMetrics) RecordRequest(ctx context.Context, platform string, statusCode int, duration time.Duration) {
	class := statusClass(statusCode)
	sm.fetchRequests.Inc(ctx, AttrPlatform.String(platform), AttrStatusClass.String(class))
	sm.fetchDuration.RecordDuration(ctx, duration, AttrPlatform.String(platform), AttrStatusClass.String(class))
}

// RecordThrottle records one throttled response
func (sm *SyncMetrics) RecordThrottle(ctx context.Context, platform string, attempt int) {
	sm.fetchThrottled.Inc(ctx, AttrPlatform.String(platform))
	sm.logger.Debug("platform throttled request",
		zap.String("platform", platform),
		zap.Int("attempt", attempt),
	)
}

// RecordSleep records time spent waiting before a request
func (sm *SyncMetrics) RecordSleep(ctx context.Context, platform, reason string, duration time.Duration) {
	sm.fetchSleep.RecordDuration(ctx, duration, AttrPlatform.String(platform), AttrSleepReason.String(reason))
}

func statusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// =============================================================================
// Periodic collection
// =============================================================================

// Start begins periodic gauge collection. It is a no-op without providers.
func (sm *SyncMetrics) Start(ctx context.Context) {
	if sm.sessions == nil && sm.jobs == nil {
		return
	}
	sm.startOnce.Do(func() {
		sm.wg.Add(1)
		go sm.collectLoop(ctx)
		sm.logger.Info("Sync metrics collector started", zap.Duration("interval", sm.interval))
	})
}

// Stop halts periodic collection and waits for the loop to exit
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
	sm.wg.Wait()
}

func (sm *SyncMetrics) collectLoop(ctx context.Context) {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	sm.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case <-ticker.C:
			sm.Collect(ctx)
		}
	}
}

// Collect samples the gauge providers once
func (sm *SyncMetrics) Collect(ctx context.Context) {
	if sm.sessions != nil {
		counts, err := sm.sessions.CountSyncingByPlatform(ctx)
		if err != nil {
			sm.logger.Warn("Failed to collect syncing sessions", zap.Error(err))
		} else {
			for platform, n := range counts {
				sm.sessionsSyncing.Record(ctx, n, AttrPlatform.String(platform))
			}
		}
	}
	if sm.jobs != nil {
		counts, err := sm.jobs.CountByStatus(ctx)
		if err != nil {
			sm.logger.Warn("Failed to collect job counts", zap.Error(err))
			return
		}
		for status, n := range counts {
			sm.jobsByStatus.Record(ctx, n, AttrJobStatus.String(status))
		}
	}
}
