package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	logging "github.com/adsync/backend/internal/infrastructure/logger"
)

// ScheduleOutcome is the decision ScheduleNext took
type ScheduleOutcome string

const (
	OutcomeScheduled        ScheduleOutcome = "scheduled"
	OutcomeInFlight         ScheduleOutcome = "in_flight"
	OutcomeDuplicate        ScheduleOutcome = "duplicate"
	OutcomePaused           ScheduleOutcome = "paused"
	OutcomeAlreadyScheduled ScheduleOutcome = "already_scheduled"
	OutcomeNoPlatforms      ScheduleOutcome = "no_platforms"
)

// ScheduleResult describes a ScheduleNext decision
type ScheduleResult struct {
	Outcome ScheduleOutcome `json:"outcome"`
	// NextRun is the tenant's next scheduled sync after the decision
	NextRun time.Time `json:"nextRun,omitempty"`
	// Platforms are the platforms jobs were enqueued for
	Platforms []integration.PlatformCode `json:"platforms,omitempty"`
	// SkippedPlatforms had a sync in flight
	SkippedPlatforms []integration.PlatformCode `json:"skippedPlatforms,omitempty"`
	JobIDs           []uuid.UUID                `json:"jobIds,omitempty"`
}

// Scheduled returns true if jobs were enqueued
func (r ScheduleResult) Scheduled() bool {
	return r.Outcome == OutcomeScheduled
}

// HourlyCheckResult summarises one sweep over due profiles
type HourlyCheckResult struct {
	ProfilesChecked int      `json:"profilesChecked"`
	StaleRecovered  int      `json:"staleRecovered"`
	JobsEnqueued    int      `json:"jobsEnqueued"`
	SkippedInFlight int      `json:"skippedInFlight"`
	SkippedPending  int      `json:"skippedPending"`
	Errors          []string `json:"errors,omitempty"`
}

// BusinessHours is the local [Start, End) hour window syncs are snapped into
type BusinessHours struct {
	Start int
	End   int
}

func (b BusinessHours) valid() bool {
	return b.Start >= 0 && b.End <= 24 && b.Start < b.End
}

// SyncSchedulerConfig holds scheduling policy
type SyncSchedulerConfig struct {
	// DuplicateWindow suppresses a second ScheduleNext shortly after the first
	DuplicateWindow time.Duration
	// JitterRatio spreads runs over interval·(1 ± ratio)
	JitterRatio float64
	// InitialLookbackDays is how far back an initial sync reaches
	InitialLookbackDays int
	// SweepBatchSize bounds each page of the hourly sweep
	SweepBatchSize int
	// StaleSessionAfter fails unfinished sessions not updated for this long; zero disables it
	StaleSessionAfter time.Duration
	Policy            integration.TierPolicy
	BusinessHours     BusinessHours
}

// DefaultSyncSchedulerConfig returns the default scheduling policy
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		DuplicateWindow:     30 * time.Second,
		JitterRatio:         0.1,
		InitialLookbackDays: 60,
		SweepBatchSize:      100,
		StaleSessionAfter:   30 * time.Minute,
		Policy:              integration.DefaultTierPolicy(),
		BusinessHours:       BusinessHours{Start: 8, End: 20},
	}
}

// SyncScheduler decides when each tenant syncs next and enqueues the jobs
type SyncScheduler struct {
	config      SyncSchedulerConfig
	profiles    integration.SyncProfileRepository
	sessions    integration.SyncSessionRepository
	connections integration.ConnectionRepository
	queue       *JobQueue
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time
	random      func() float64
}

// SyncSchedulerOption is a functional option for configuring SyncScheduler
type SyncSchedulerOption func(*SyncScheduler)

// WithSchedulerLogger sets the logger
func WithSchedulerLogger(logger *zap.Logger) SyncSchedulerOption {
	return func(s *SyncScheduler) {
		s.logger = logger
	}
}

// WithSchedulerClock sets the time source
func WithSchedulerClock(now func() time.Time) SyncSchedulerOption {
	return func(s *SyncScheduler) {
		s.now = now
	}
}

// WithSchedulerRandom sets the jitter source; it must return values in [0, 1)
func WithSchedulerRandom(random func() float64) SyncSchedulerOption {
	return func(s *SyncScheduler) {
		s.random = random
	}
}

// WithSchedulerMetrics sets the metrics sink
func WithSchedulerMetrics(m *Metrics) SyncSchedulerOption {
	return func(s *SyncScheduler) {
		s.metrics = m
	}
}

// NewSyncScheduler creates a scheduler
func NewSyncScheduler(
	config SyncSchedulerConfig,
	profiles integration.SyncProfileRepository,
	sessions integration.SyncSessionRepository,
	connections integration.ConnectionRepository,
	queue *JobQueue,
	opts ...SyncSchedulerOption,
) *SyncScheduler {
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = 100
	}
	if config.InitialLookbackDays <= 0 {
		config.InitialLookbackDays = 60
	}
	s := &SyncScheduler{
		config:      config,
		profiles:    profiles,
		sessions:    sessions,
		connections: connections,
		queue:       queue,
		logger:      zap.NewNop(),
		now:         time.Now,
		random:      rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// ScheduleNext
// ---------------------------------------------------------------------------

// ScheduleNext plans the tenant's next incremental sync. An empty platforms
// list means every enabled platform with an active connection.
func (s *SyncScheduler) ScheduleNext(ctx context.Context, orgID uuid.UUID, platforms []integration.PlatformCode) (ScheduleResult, error) {
	if orgID == uuid.Nil {
		return ScheduleResult{}, integration.ErrProfileInvalidOrg
	}
	now := s.now()
	logger := s.logger.With(logging.OrganizationField(orgID))

	platforms, err := s.resolvePlatforms(ctx, orgID, platforms)
	if err != nil {
		return ScheduleResult{}, err
	}
	if len(platforms) == 0 {
		return s.decide(ScheduleResult{Outcome: OutcomeNoPlatforms}), nil
	}

	s.recoverStale(ctx, &orgID, now)

	var result ScheduleResult
	for _, platform := range platforms {
		syncing, err := s.sessions.ExistsSyncing(ctx, orgID, platform)
		if err != nil {
			return ScheduleResult{}, fmt.Errorf("failed to check in-flight sync: %w", err)
		}
		if syncing {
			result.SkippedPlatforms = append(result.SkippedPlatforms, platform)
			continue
		}
		result.Platforms = append(result.Platforms, platform)
	}
	if len(result.Platforms) == 0 {
		result.Outcome = OutcomeInFlight
		logger.Debug("Sync in flight, not scheduling")
		return s.decide(result), nil
	}

	profile, err := s.loadOrCreateProfile(ctx, orgID, now)
	if err != nil {
		return ScheduleResult{}, err
	}
	result.NextRun = profile.NextScheduledSync

	if profile.Paused {
		result.Outcome = OutcomePaused
		result.Platforms = nil
		return s.decide(result), nil
	}
	if profile.HasNearTermSchedule(now, s.config.DuplicateWindow) {
		result.Outcome = OutcomeDuplicate
		result.Platforms = nil
		logger.Debug("Duplicate schedule trigger ignored", zap.Time("next_scheduled_sync", profile.NextScheduledSync))
		return s.decide(result), nil
	}

	next := s.CalculateOptimalSyncTime(profile, now)
	if profile.IsScheduledAfter(next, now) {
		result.Outcome = OutcomeAlreadyScheduled
		result.Platforms = nil
		return s.decide(result), nil
	}

	// Persist the decision before enqueueing so a concurrent trigger sees it
	profile.ScheduleAt(next, now)
	if err := s.profiles.Save(ctx, profile); err != nil {
		return ScheduleResult{}, fmt.Errorf("failed to save sync profile: %w", err)
	}
	result.NextRun = next

	for _, platform := range result.Platforms {
		job, err := s.queue.CreateJob(ctx, integration.JobTypeSyncIncremental, integration.PriorityNormal,
			integration.JobPayload{
				OrganizationID: orgID,
				Platform:       platform,
				SyncType:       integration.SyncTypeIncremental,
			},
			WithRunAt(next),
		)
		if err != nil {
			return result, err
		}
		result.JobIDs = append(result.JobIDs, job.ID)
	}

	result.Outcome = OutcomeScheduled
	logger.Info("Next sync scheduled",
		zap.Time("next_run", next),
		zap.String("tier", profile.SyncTier.String()),
		zap.Int("jobs", len(result.JobIDs)),
	)
	return s.decide(result), nil
}

func (s *SyncScheduler) decide(result ScheduleResult) ScheduleResult {
	s.metrics.decision(result.Outcome)
	return result
}

// CalculateOptimalSyncTime returns now plus the profile's interval with jitter,
// snapped to the next business-hours start when the profile opts in and the
// result falls outside business hours. The result is in UTC.
func (s *SyncScheduler) CalculateOptimalSyncTime(profile *integration.SyncProfile, now time.Time) time.Time {
	interval := profile.SyncInterval
	if interval <= 0 {
		interval = s.config.Policy.IntervalFor(profile.SyncTier)
	}

	factor := 1.0
	if ratio := s.config.JitterRatio; ratio > 0 {
		factor += (2*s.random() - 1) * ratio
	}
	next := now.Add(time.Duration(float64(interval) * factor))

	if profile.BusinessHoursEnabled && s.config.BusinessHours.valid() {
		next = snapToBusinessHours(next, profile.Location(), s.config.BusinessHours)
	}
	return next.UTC()
}

func snapToBusinessHours(t time.Time, loc *time.Location, hours BusinessHours) time.Time {
	local := t.In(loc)
	switch {
	case local.Hour() < hours.Start:
		return time.Date(local.Year(), local.Month(), local.Day(), hours.Start, 0, 0, 0, loc)
	case local.Hour() >= hours.End:
		return time.Date(local.Year(), local.Month(), local.Day()+1, hours.Start, 0, 0, 0, loc)
	default:
		return t
	}
}

// ---------------------------------------------------------------------------
// Initial and manual syncs
// ---------------------------------------------------------------------------

// ScheduleInitialSync enqueues a HIGH priority historical sync per platform and
// seeds the tenant's profile when it has none
func (s *SyncScheduler) ScheduleInitialSync(ctx context.Context, orgID uuid.UUID, platforms []integration.PlatformCode) ([]*integration.Job, error) {
	if orgID == uuid.Nil {
		return nil, integration.ErrProfileInvalidOrg
	}
	now := s.now()

	platforms, err := s.resolvePlatforms(ctx, orgID, platforms)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		return nil, integration.ErrProfileNoActivePlatforms
	}

	if _, err := s.profiles.FindByOrganization(ctx, orgID); err != nil {
		if !errors.Is(err, integration.ErrProfileNotFound) {
			return nil, fmt.Errorf("failed to load sync profile: %w", err)
		}
		profile, err := integration.NewSyncProfile(orgID, integration.InitialActivityScore, s.config.Policy, now)
		if err != nil {
			return nil, err
		}
		profile.NextScheduledSync = now.Add(profile.SyncInterval)
		if err := s.profiles.Save(ctx, profile); err != nil {
			return nil, fmt.Errorf("failed to seed sync profile: %w", err)
		}
	}

	dateRange := integration.NewDateRange(now, s.config.InitialLookbackDays+1)
	jobs := make([]*integration.Job, 0, len(platforms))
	for _, platform := range platforms {
		r := dateRange
		job, err := s.queue.CreateJob(ctx, integration.JobTypeSyncInitial, integration.PriorityHigh,
			integration.JobPayload{
				OrganizationID: orgID,
				Platform:       platform,
				SyncType:       integration.SyncTypeInitial,
				DateRange:      &r,
			},
			WithRunAt(now),
		)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}

	s.logger.Info("Initial sync scheduled",
		logging.OrganizationField(orgID),
		zap.String("start", dateRange.Start),
		zap.String("end", dateRange.End),
		zap.Int("jobs", len(jobs)),
	)
	return jobs, nil
}

// ScheduleManualSync enqueues an operator-requested HIGH priority sync.
// A nil dateRange uses the incremental window.
func (s *SyncScheduler) ScheduleManualSync(ctx context.Context, orgID uuid.UUID, platform integration.PlatformCode, dateRange *integration.DateRange) (*integration.Job, error) {
	if orgID == uuid.Nil {
		return nil, integration.ErrProfileInvalidOrg
	}
	if !platform.IsValid() {
		return nil, integration.ErrPlatformInvalidCode
	}
	if _, err := s.connections.FindActive(ctx, orgID, platform); err != nil {
		return nil, err
	}

	s.recoverStale(ctx, &orgID, s.now())
	syncing, err := s.sessions.ExistsSyncing(ctx, orgID, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to check in-flight sync: %w", err)
	}
	if syncing {
		return nil, integration.ErrSessionAlreadySyncing
	}

	return s.queue.CreateJob(ctx, integration.JobTypeSyncManual, integration.PriorityHigh,
		integration.JobPayload{
			OrganizationID: orgID,
			Platform:       platform,
			SyncType:       integration.SyncTypeIncremental,
			DateRange:      dateRange,
		},
		WithRunAt(s.now()),
	)
}

// ---------------------------------------------------------------------------
// Hourly sweep
// ---------------------------------------------------------------------------

// RunHourlyCheck enqueues a scheduled sync for every due, unpaused profile and
// advances their schedules. Per-profile failures are collected, not returned.
func (s *SyncScheduler) RunHourlyCheck(ctx context.Context) (HourlyCheckResult, error) {
	now := s.now()
	var result HourlyCheckResult
	result.StaleRecovered = s.recoverStale(ctx, nil, now)

	after := uuid.Nil
	for {
		profiles, err := s.profiles.FindDue(ctx, now, after, s.config.SweepBatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to find due profiles: %w", err)
		}

		for _, profile := range profiles {
			after = profile.OrganizationID
			result.ProfilesChecked++
			if err := s.sweepProfile(ctx, profile, now, &result); err != nil {
				s.logger.Error("Hourly check failed for tenant",
					logging.OrganizationField(profile.OrganizationID),
					zap.Error(err),
				)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", profile.OrganizationID, err))
			}
		}

		if len(profiles) < s.config.SweepBatchSize || ctx.Err() != nil {
			break
		}
	}

	s.metrics.sweep(result.JobsEnqueued)
	s.logger.Info("Hourly sync check finished",
		zap.Int("profiles_checked", result.ProfilesChecked),
		zap.Int("stale_recovered", result.StaleRecovered),
		zap.Int("jobs_enqueued", result.JobsEnqueued),
		zap.Int("skipped_in_flight", result.SkippedInFlight),
		zap.Int("skipped_pending", result.SkippedPending),
		zap.Int("errors", len(result.Errors)),
	)
	return result, ctx.Err()
}

func (s *SyncScheduler) sweepProfile(ctx context.Context, profile *integration.SyncProfile, now time.Time, result *HourlyCheckResult) error {
	orgID := profile.OrganizationID
	platforms, err := s.connections.ListActivePlatforms(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list platforms: %w", err)
	}

	enqueued := 0
	for _, platform := range platforms {
		syncing, err := s.sessions.ExistsSyncing(ctx, orgID, platform)
		if err != nil {
			return err
		}
		if syncing {
			result.SkippedInFlight++
			continue
		}
		pending, err := s.queue.HasPending(ctx, orgID, platform)
		if err != nil {
			return err
		}
		if pending {
			result.SkippedPending++
			continue
		}

		_, err = s.queue.CreateJob(ctx, integration.JobTypeSyncScheduled, integration.PriorityNormal,
			integration.JobPayload{
				OrganizationID: orgID,
				Platform:       platform,
				SyncType:       integration.SyncTypeIncremental,
			},
			WithRunAt(now),
		)
		if err != nil {
			return err
		}
		enqueued++
	}

	result.JobsEnqueued += enqueued
	if enqueued == 0 {
		return nil
	}
	profile.Advance(now)
	return s.profiles.Save(ctx, profile)
}

// ---------------------------------------------------------------------------
// Profile operations
// ---------------------------------------------------------------------------

// GetProfile returns the tenant's sync profile
func (s *SyncScheduler) GetProfile(ctx context.Context, orgID uuid.UUID) (*integration.SyncProfile, error) {
	return s.profiles.FindByOrganization(ctx, orgID)
}

// RecordActivity appends an activity sample and recomputes the tenant's tier
func (s *SyncScheduler) RecordActivity(ctx context.Context, orgID uuid.UUID, score int) (*integration.SyncProfile, error) {
	now := s.now()
	profile, err := s.profiles.FindByOrganization(ctx, orgID)
	switch {
	case errors.Is(err, integration.ErrProfileNotFound):
		profile, err = integration.NewSyncProfile(orgID, score, s.config.Policy, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load sync profile: %w", err)
	default:
		if err := profile.RecordActivity(score, s.config.Policy, now); err != nil {
			return nil, err
		}
	}

	if err := s.profiles.Save(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save sync profile: %w", err)
	}
	return profile, nil
}

// PauseProfile stops automatic scheduling for the tenant
func (s *SyncScheduler) PauseProfile(ctx context.Context, orgID uuid.UUID) (*integration.SyncProfile, error) {
	return s.updateProfile(ctx, orgID, func(p *integration.SyncProfile, now time.Time) error {
		return p.Pause(now)
	})
}

// ResumeProfile re-enables scheduling one interval from now
func (s *SyncScheduler) ResumeProfile(ctx context.Context, orgID uuid.UUID) (*integration.SyncProfile, error) {
	return s.updateProfile(ctx, orgID, func(p *integration.SyncProfile, now time.Time) error {
		return p.Resume(now)
	})
}

// ConfigureBusinessHours toggles business-hours snapping in the given IANA timezone
func (s *SyncScheduler) ConfigureBusinessHours(ctx context.Context, orgID uuid.UUID, enabled bool, timezone string) (*integration.SyncProfile, error) {
	return s.updateProfile(ctx, orgID, func(p *integration.SyncProfile, now time.Time) error {
		if err := p.SetTimezone(timezone); err != nil {
			return err
		}
		p.BusinessHoursEnabled = enabled
		p.UpdatedAt = now
		return nil
	})
}

func (s *SyncScheduler) updateProfile(ctx context.Context, orgID uuid.UUID, mutate func(*integration.SyncProfile, time.Time) error) (*integration.SyncProfile, error) {
	profile, err := s.profiles.FindByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := mutate(profile, s.now()); err != nil {
		return nil, err
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save sync profile: %w", err)
	}
	return profile, nil
}

// recoverStale releases slots held by dead sessions; failures are logged since
// the gate that follows still reads the current state
func (s *SyncScheduler) recoverStale(ctx context.Context, orgID *uuid.UUID, now time.Time) int {
	n, err := RecoverStaleSessions(ctx, s.sessions, orgID, s.config.StaleSessionAfter, now, s.logger)
	if err != nil {
		s.logger.Warn("Stale session recovery incomplete", zap.Error(err))
	}
	return n
}

func (s *SyncScheduler) loadOrCreateProfile(ctx context.Context, orgID uuid.UUID, now time.Time) (*integration.SyncProfile, error) {
	profile, err := s.profiles.FindByOrganization(ctx, orgID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, integration.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to load sync profile: %w", err)
	}
	return integration.NewSyncProfile(orgID, integration.InitialActivityScore, s.config.Policy, now)
}

func (s *SyncScheduler) resolvePlatforms(ctx context.Context, orgID uuid.UUID, platforms []integration.PlatformCode) ([]integration.PlatformCode, error) {
	if len(platforms) == 0 {
		active, err := s.connections.ListActivePlatforms(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("failed to list active platforms: %w", err)
		}
		return active, nil
	}

	seen := make(map[integration.PlatformCode]struct{}, len(platforms))
	out := make([]integration.PlatformCode, 0, len(platforms))
	for _, p := range platforms {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: %s", integration.ErrPlatformInvalidCode, p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
