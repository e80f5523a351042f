package scheduler

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// CalculateOptimalSyncTime
// ---------------------------------------------------------------------------

func TestSyncScheduler_CalculateOptimalSyncTime_Jitter(t *testing.T) {
	f := newFixture(t)
	profile, err := integration.NewSyncProfile(uuid.New(), 80, integration.DefaultTierPolicy(), fixedNow)
	require.NoError(t, err)
	require.Equal(t, time.Hour, profile.SyncInterval)

	tests := []struct {
		name   string
		random float64
		want   time.Duration
	}{
		{name: "lowest draw", random: 0, want: 54 * time.Minute},
		{name: "middle draw", random: 0.5, want: time.Hour},
		{name: "upper draw", random: 0.75, want: 63 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSyncScheduler(DefaultSyncSchedulerConfig(), f.profiles, f.sessions, f.connections, f.queue,
				WithSchedulerRandom(func() float64 { return tt.random }))
			got := s.CalculateOptimalSyncTime(profile, fixedNow)
			assert.WithinDuration(t, fixedNow.Add(tt.want), got, time.Millisecond)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	t.Run("jitter stays within ten percent", func(t *testing.T) {
		s := NewSyncScheduler(DefaultSyncSchedulerConfig(), f.profiles, f.sessions, f.connections, f.queue)
		for i := 0; i < 200; i++ {
			d := s.CalculateOptimalSyncTime(profile, fixedNow).Sub(fixedNow)
			assert.GreaterOrEqual(t, d, 54*time.Minute)
			assert.LessOrEqual(t, d, 66*time.Minute)
		}
	})
}

func TestSyncScheduler_CalculateOptimalSyncTime_BusinessHours(t *testing.T) {
	f := newFixture(t)
	profile, err := integration.NewSyncProfile(uuid.New(), 80, integration.DefaultTierPolicy(), fixedNow)
	require.NoError(t, err)
	require.NoError(t, profile.SetTimezone("America/New_York"))
	profile.BusinessHoursEnabled = true

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			// 21:00 EST + 1h lands after closing; snap to 08:00 the next local day
			name: "after hours snaps to next morning",
			now:  time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			// 05:00 EST + 1h is before opening; snap to 08:00 the same day
			name: "before hours snaps to opening",
			now:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "inside hours is unchanged",
			now:  time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.scheduler.CalculateOptimalSyncTime(profile, tt.now)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}

	t.Run("disabled profile is not snapped", func(t *testing.T) {
		plain := *profile
		plain.BusinessHoursEnabled = false
		now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
		assert.True(t, now.Add(time.Hour).Equal(f.scheduler.CalculateOptimalSyncTime(&plain, now)))
	})
}

// ---------------------------------------------------------------------------
// ScheduleNext
// ---------------------------------------------------------------------------

func TestSyncScheduler_ScheduleNext_BackToBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()
	f.connect(t, orgID, integration.PlatformAds)

	first, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeScheduled, first.Outcome)
	assert.Equal(t, []integration.PlatformCode{integration.PlatformAds}, first.Platforms)
	require.Len(t, first.JobIDs, 1)

	second, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Empty(t, second.JobIDs)

	f.clock.Advance(10 * time.Second)
	third, err := f.scheduler.ScheduleNext(ctx, orgID, []integration.PlatformCode{integration.PlatformAds})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, third.Outcome)

	assert.Equal(t, int64(1), f.countJobs(t, integration.JobTypeSyncIncremental, integration.JobStatusQueued))

	job, err := f.jobs.FindByID(ctx, first.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, integration.PriorityNormal, job.Priority)
	assert.Equal(t, integration.SyncTypeIncremental, job.Payload.SyncType)
	assert.True(t, job.RunAt.Equal(first.NextRun))

	profile, err := f.scheduler.GetProfile(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, integration.InitialActivityScore, profile.ActivityScore)
	assert.Equal(t, integration.SyncTierMedium, profile.SyncTier)
	assert.True(t, profile.NextScheduledSync.Equal(fixedNow.Add(4*time.Hour)))
	assert.True(t, profile.LastScheduledAt.Equal(fixedNow))
}

func TestSyncScheduler_ScheduleNext_SyncingSessionBlocksPlatform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()
	f.connect(t, orgID, integration.PlatformAds, integration.PlatformStorefront)
	f.startSyncing(t, orgID, integration.PlatformAds)

	t.Run("only the syncing platform is blocked", func(t *testing.T) {
		result, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeScheduled, result.Outcome)
		assert.Equal(t, []integration.PlatformCode{integration.PlatformStorefront}, result.Platforms)
		assert.Equal(t, []integration.PlatformCode{integration.PlatformAds}, result.SkippedPlatforms)

		adsPending, err := f.queue.HasPending(ctx, orgID, integration.PlatformAds)
		require.NoError(t, err)
		assert.False(t, adsPending)
		storePending, err := f.queue.HasPending(ctx, orgID, integration.PlatformStorefront)
		require.NoError(t, err)
		assert.True(t, storePending)
	})

	t.Run("all requested platforms in flight", func(t *testing.T) {
		other := uuid.New()
		f.connect(t, other, integration.PlatformAds)
		f.startSyncing(t, other, integration.PlatformAds)

		result, err := f.scheduler.ScheduleNext(ctx, other, []integration.PlatformCode{integration.PlatformAds})
		require.NoError(t, err)
		assert.Equal(t, OutcomeInFlight, result.Outcome)
		assert.Empty(t, result.JobIDs)

		_, err = f.scheduler.GetProfile(ctx, other)
		assert.ErrorIs(t, err, integration.ErrProfileNotFound, "in-flight decision leaves the profile untouched")
	})
}

func TestSyncScheduler_StaleSessionsReleasePlatform(t *testing.T) {
	ctx := context.Background()

	t.Run("schedule next recovers a dead session", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		stuck := f.startSyncing(t, orgID, integration.PlatformAds)

		f.clock.Advance(72 * time.Hour)

		result, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeScheduled, result.Outcome)
		assert.Equal(t, []integration.PlatformCode{integration.PlatformAds}, result.Platforms)
		assert.Empty(t, result.SkippedPlatforms)

		session, err := f.sessions.FindByID(ctx, stuck.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.SessionStatusFailed, session.Status)
		require.NotEmpty(t, session.Errors)
		assert.Equal(t, integration.ErrSessionStale.Error(), session.Errors[len(session.Errors)-1])
		require.NotNil(t, session.CompletedAt)
	})

	t.Run("recent session still gates", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		f.startSyncing(t, orgID, integration.PlatformAds)

		f.clock.Advance(10 * time.Minute)

		result, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInFlight, result.Outcome)
	})

	t.Run("recovery disabled", func(t *testing.T) {
		f := newFixture(t)
		cfg := DefaultSyncSchedulerConfig()
		cfg.StaleSessionAfter = 0
		s := NewSyncScheduler(cfg, f.profiles, f.sessions, f.connections, f.queue, WithSchedulerClock(f.clock.Now))
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		f.startSyncing(t, orgID, integration.PlatformAds)

		f.clock.Advance(72 * time.Hour)

		result, err := s.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInFlight, result.Outcome)
	})

	t.Run("hourly check recovers before sweeping", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		f.startSyncing(t, orgID, integration.PlatformAds)
		f.clock.Advance(time.Hour)
		f.saveProfile(t, orgID, 80, f.clock.Now().Add(-time.Minute), f.clock.Now().Add(-time.Hour))

		result, err := f.scheduler.RunHourlyCheck(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.StaleRecovered)
		assert.Equal(t, 1, result.JobsEnqueued)
		assert.Zero(t, result.SkippedInFlight)

		syncing, err := f.sessions.ExistsSyncing(ctx, orgID, integration.PlatformAds)
		require.NoError(t, err)
		assert.False(t, syncing)
	})

	t.Run("manual sync recovers too", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformStorefront)
		f.startSyncing(t, orgID, integration.PlatformStorefront)
		f.clock.Advance(time.Hour)

		job, err := f.scheduler.ScheduleManualSync(ctx, orgID, integration.PlatformStorefront, nil)
		require.NoError(t, err)
		assert.Equal(t, integration.JobTypeSyncManual, job.Type)
	})
}

func TestSyncScheduler_ScheduleNext_Decisions(t *testing.T) {
	ctx := context.Background()

	t.Run("paused profile", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		profile := f.saveProfile(t, orgID, 50, fixedNow.Add(-time.Hour), fixedNow.Add(-2*time.Hour))
		require.NoError(t, profile.Pause(fixedNow))
		require.NoError(t, f.profiles.Save(ctx, profile))

		result, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomePaused, result.Outcome)
		assert.Zero(t, f.countJobs(t, integration.JobTypeSyncIncremental, integration.JobStatusQueued))
	})

	t.Run("near-term schedule in the future", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		f.saveProfile(t, orgID, 50, fixedNow.Add(20*time.Second), fixedNow.Add(-time.Hour))

		result, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, result.Outcome)
	})

	t.Run("later existing schedule stands", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		f.saveProfile(t, orgID, 80, fixedNow.Add(3*time.Hour), fixedNow.Add(-time.Hour))

		result, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyScheduled, result.Outcome)
		assert.True(t, result.NextRun.Equal(fixedNow.Add(3*time.Hour)))

		profile, err := f.scheduler.GetProfile(ctx, orgID)
		require.NoError(t, err)
		assert.True(t, profile.NextScheduledSync.Equal(fixedNow.Add(3*time.Hour)), "schedule never moves backwards")
	})

	t.Run("earlier existing schedule is replaced", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformStorefront)
		f.saveProfile(t, orgID, 80, fixedNow.Add(-10*time.Minute), fixedNow.Add(-time.Hour))

		result, err := f.scheduler.ScheduleNext(ctx, orgID, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeScheduled, result.Outcome)
		assert.True(t, result.NextRun.Equal(fixedNow.Add(time.Hour)))
	})

	t.Run("no connected platforms", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.scheduler.ScheduleNext(ctx, uuid.New(), nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoPlatforms, result.Outcome)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.scheduler.ScheduleNext(ctx, uuid.Nil, nil)
		assert.ErrorIs(t, err, integration.ErrProfileInvalidOrg)

		_, err = f.scheduler.ScheduleNext(ctx, uuid.New(), []integration.PlatformCode{"pos"})
		assert.ErrorIs(t, err, integration.ErrPlatformInvalidCode)
	})
}

// ---------------------------------------------------------------------------
// Initial and manual syncs
// ---------------------------------------------------------------------------

func TestSyncScheduler_ScheduleInitialSync(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues a high priority historical job per platform", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds, integration.PlatformStorefront)

		jobs, err := f.scheduler.ScheduleInitialSync(ctx, orgID, nil)
		require.NoError(t, err)
		require.Len(t, jobs, 2)

		for _, job := range jobs {
			assert.Equal(t, integration.JobTypeSyncInitial, job.Type)
			assert.Equal(t, integration.PriorityHigh, job.Priority)
			assert.Equal(t, integration.SyncTypeInitial, job.Payload.SyncType)
			require.NotNil(t, job.Payload.DateRange)
			assert.Equal(t, "2024-01-01", job.Payload.DateRange.Start)
			assert.Equal(t, "2024-03-01", job.Payload.DateRange.End)
			assert.True(t, job.RunAt.Equal(fixedNow))
		}

		profile, err := f.scheduler.GetProfile(ctx, orgID)
		require.NoError(t, err)
		assert.Equal(t, integration.InitialActivityScore, profile.ActivityScore)
		assert.True(t, profile.NextScheduledSync.Equal(fixedNow.Add(profile.SyncInterval)))
		assert.True(t, profile.LastScheduledAt.IsZero())
	})

	t.Run("existing profile is kept", func(t *testing.T) {
		f := newFixture(t)
		orgID := uuid.New()
		f.connect(t, orgID, integration.PlatformAds)
		f.saveProfile(t, orgID, 90, fixedNow.Add(time.Hour), fixedNow)

		_, err := f.scheduler.ScheduleInitialSync(ctx, orgID, []integration.PlatformCode{integration.PlatformAds})
		require.NoError(t, err)

		profile, err := f.scheduler.GetProfile(ctx, orgID)
		require.NoError(t, err)
		assert.Equal(t, 90, profile.ActivityScore)
	})

	t.Run("no active platforms", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.scheduler.ScheduleInitialSync(ctx, uuid.New(), nil)
		assert.ErrorIs(t, err, integration.ErrProfileNoActivePlatforms)
	})
}

func TestSyncScheduler_ScheduleManualSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()
	f.connect(t, orgID, integration.PlatformAds)

	t.Run("not connected", func(t *testing.T) {
		_, err := f.scheduler.ScheduleManualSync(ctx, orgID, integration.PlatformStorefront, nil)
		assert.ErrorIs(t, err, integration.ErrPlatformNotConnected)
	})

	t.Run("enqueues a high priority job", func(t *testing.T) {
		r := integration.DateRange{Start: "2024-02-01", End: "2024-02-07"}
		job, err := f.scheduler.ScheduleManualSync(ctx, orgID, integration.PlatformAds, &r)
		require.NoError(t, err)
		assert.Equal(t, integration.JobTypeSyncManual, job.Type)
		assert.Equal(t, integration.PriorityHigh, job.Priority)
		assert.Equal(t, &r, job.Payload.DateRange)
	})

	t.Run("rejects while syncing", func(t *testing.T) {
		f.startSyncing(t, orgID, integration.PlatformAds)
		_, err := f.scheduler.ScheduleManualSync(ctx, orgID, integration.PlatformAds, nil)
		assert.ErrorIs(t, err, integration.ErrSessionAlreadySyncing)
	})
}

// ---------------------------------------------------------------------------
// RunHourlyCheck
// ---------------------------------------------------------------------------

func TestSyncScheduler_RunHourlyCheck(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultSyncSchedulerConfig()
	cfg.SweepBatchSize = 1
	s := NewSyncScheduler(cfg, f.profiles, f.sessions, f.connections, f.queue,
		WithSchedulerClock(f.clock.Now), WithSchedulerRandom(func() float64 { return 0.5 }))
	ctx := context.Background()

	// Tenant A: both platforms connected, ads already has a pending job
	orgA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	f.connect(t, orgA, integration.PlatformAds, integration.PlatformStorefront)
	f.saveProfile(t, orgA, 80, fixedNow.Add(-5*time.Minute), fixedNow.Add(-time.Hour))
	f.enqueue(t, integration.JobTypeSyncIncremental, integration.PriorityNormal, orgA, integration.PlatformAds,
		WithRunAt(fixedNow.Add(time.Minute)))

	// Tenant B: its only platform is syncing
	orgB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	f.connect(t, orgB, integration.PlatformAds)
	f.saveProfile(t, orgB, 80, fixedNow.Add(-time.Minute), fixedNow.Add(-time.Hour))
	f.startSyncing(t, orgB, integration.PlatformAds)

	// Tenant C: long overdue
	orgC := uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	f.connect(t, orgC, integration.PlatformStorefront)
	f.saveProfile(t, orgC, 80, fixedNow.Add(-10*time.Hour), fixedNow.Add(-11*time.Hour))

	// Tenant D: not due, Tenant E: paused
	orgD := uuid.MustParse("00000000-0000-0000-0000-00000000000d")
	f.connect(t, orgD, integration.PlatformAds)
	f.saveProfile(t, orgD, 80, fixedNow.Add(time.Hour), fixedNow)
	orgE := uuid.MustParse("00000000-0000-0000-0000-00000000000e")
	f.connect(t, orgE, integration.PlatformAds)
	paused := f.saveProfile(t, orgE, 80, fixedNow.Add(-time.Hour), fixedNow.Add(-2*time.Hour))
	require.NoError(t, paused.Pause(fixedNow))
	require.NoError(t, f.profiles.Save(ctx, paused))

	result, err := s.RunHourlyCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ProfilesChecked)
	assert.Equal(t, 2, result.JobsEnqueued)
	assert.Equal(t, 1, result.SkippedPending)
	assert.Equal(t, 1, result.SkippedInFlight)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(2), f.countJobs(t, integration.JobTypeSyncScheduled, integration.JobStatusQueued))

	t.Run("enqueued tenants are advanced", func(t *testing.T) {
		a, err := s.GetProfile(ctx, orgA)
		require.NoError(t, err)
		assert.True(t, a.NextScheduledSync.Equal(fixedNow.Add(55*time.Minute)))

		c, err := s.GetProfile(ctx, orgC)
		require.NoError(t, err)
		assert.True(t, c.NextScheduledSync.Equal(fixedNow.Add(time.Hour)), "overdue schedules move past now")
	})

	t.Run("tenant with nothing enqueued stays due", func(t *testing.T) {
		b, err := s.GetProfile(ctx, orgB)
		require.NoError(t, err)
		assert.True(t, b.IsDue(fixedNow))
	})

	t.Run("second sweep skips the jobs it just enqueued", func(t *testing.T) {
		again, err := s.RunHourlyCheck(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, again.ProfilesChecked)
		assert.Zero(t, again.JobsEnqueued)
	})
}

// ---------------------------------------------------------------------------
// Profile operations
// ---------------------------------------------------------------------------

func TestSyncScheduler_ProfileOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("pause without profile", func(t *testing.T) {
		_, err := f.scheduler.PauseProfile(ctx, orgID)
		assert.ErrorIs(t, err, integration.ErrProfileNotFound)
	})

	t.Run("record activity creates then averages", func(t *testing.T) {
		profile, err := f.scheduler.RecordActivity(ctx, orgID, 90)
		require.NoError(t, err)
		assert.Equal(t, 90, profile.ActivityScore)
		assert.Equal(t, integration.SyncTierHigh, profile.SyncTier)

		f.clock.Advance(time.Hour)
		profile, err = f.scheduler.RecordActivity(ctx, orgID, 10)
		require.NoError(t, err)
		assert.Equal(t, 50, profile.ActivityScore)
		assert.Equal(t, integration.SyncTierMedium, profile.SyncTier)
		assert.Len(t, profile.ActivityHistory, 2)

		_, err = f.scheduler.RecordActivity(ctx, orgID, 101)
		assert.ErrorIs(t, err, integration.ErrProfileInvalidScore)
	})

	t.Run("pause and resume", func(t *testing.T) {
		profile, err := f.scheduler.PauseProfile(ctx, orgID)
		require.NoError(t, err)
		assert.True(t, profile.Paused)

		_, err = f.scheduler.PauseProfile(ctx, orgID)
		assert.ErrorIs(t, err, integration.ErrProfileAlreadyPaused)

		profile, err = f.scheduler.ResumeProfile(ctx, orgID)
		require.NoError(t, err)
		assert.False(t, profile.Paused)
		assert.True(t, profile.NextScheduledSync.Equal(f.clock.Now().Add(profile.SyncInterval)))

		_, err = f.scheduler.ResumeProfile(ctx, orgID)
		assert.ErrorIs(t, err, integration.ErrProfileNotPaused)
	})

	t.Run("business hours", func(t *testing.T) {
		profile, err := f.scheduler.ConfigureBusinessHours(ctx, orgID, true, "Europe/Berlin")
		require.NoError(t, err)
		assert.True(t, profile.BusinessHoursEnabled)
		assert.Equal(t, "Europe/Berlin", profile.Timezone)

		_, err = f.scheduler.ConfigureBusinessHours(ctx, orgID, true, "Mars/Olympus")
		assert.ErrorIs(t, err, integration.ErrProfileInvalidTimezone)
	})
}
