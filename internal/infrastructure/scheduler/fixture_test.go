package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence"
	"github.com/adsync/backend/internal/infrastructure/persistence/models"
	"github.com/adsync/backend/tests/testutil"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type fixture struct {
	db          *gorm.DB
	clock       *testutil.FakeClock
	jobs        *persistence.GormJobStore
	profiles    *persistence.GormSyncProfileRepository
	sessions    *persistence.GormSyncSessionRepository
	connections *persistence.GormConnectionRepository
	queue       *JobQueue
	scheduler   *SyncScheduler
}

func newFixture(t *testing.T, queueOpts ...JobQueueOption) *fixture {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	clock := testutil.NewFakeClock(fixedNow)
	f := &fixture{
		db:          db,
		clock:       clock,
		jobs:        persistence.NewGormJobStore(db),
		profiles:    persistence.NewGormSyncProfileRepository(db),
		sessions:    persistence.NewGormSyncSessionRepository(db),
		connections: persistence.NewGormConnectionRepository(db),
	}

	opts := append([]JobQueueOption{WithQueueClock(clock.Now), WithQueueLogger(newTestLogger())}, queueOpts...)
	f.queue = NewJobQueue(f.jobs, opts...)
	f.scheduler = NewSyncScheduler(DefaultSyncSchedulerConfig(), f.profiles, f.sessions, f.connections, f.queue,
		WithSchedulerClock(clock.Now),
		WithSchedulerRandom(func() float64 { return 0.5 }),
		WithSchedulerLogger(newTestLogger()),
	)
	return f
}

func (f *fixture) connect(t *testing.T, orgID uuid.UUID, platforms ...integration.PlatformCode) {
	t.Helper()
	for _, p := range platforms {
		testutil.SeedConnection(t, f.db, orgID, p)
	}
}

func (f *fixture) startSyncing(t *testing.T, orgID uuid.UUID, platform integration.PlatformCode) *integration.SyncSession {
	t.Helper()
	now := f.clock.Now()
	session, err := integration.NewSyncSession(orgID, platform, uuid.New(), now)
	require.NoError(t, err)
	require.NoError(t, session.StartProcessing(now))
	require.NoError(t, session.StartSyncing(now))
	require.NoError(t, f.sessions.Create(context.Background(), session))
	return session
}

func (f *fixture) saveProfile(t *testing.T, orgID uuid.UUID, score int, next, last time.Time) *integration.SyncProfile {
	t.Helper()
	profile, err := integration.NewSyncProfile(orgID, score, integration.DefaultTierPolicy(), f.clock.Now())
	require.NoError(t, err)
	profile.ScheduleAt(next, last)
	require.NoError(t, f.profiles.Save(context.Background(), profile))
	return profile
}

func (f *fixture) enqueue(t *testing.T, jobType integration.JobType, priority integration.JobPriority, orgID uuid.UUID, platform integration.PlatformCode, opts ...JobOption) *integration.Job {
	t.Helper()
	job, err := f.queue.CreateJob(context.Background(), jobType, priority, integration.JobPayload{
		OrganizationID: orgID,
		Platform:       platform,
		SyncType:       integration.SyncTypeIncremental,
	}, opts...)
	require.NoError(t, err)
	return job
}

func (f *fixture) countJobs(t *testing.T, jobType integration.JobType, status integration.JobStatus) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.JobModel{}).
		Where("type = ? AND status = ?", string(jobType), string(status)).
		Count(&n).Error)
	return n
}

func (f *fixture) queuedJobs(t *testing.T) []models.JobModel {
	t.Helper()
	var rows []models.JobModel
	require.NoError(t, f.db.Where("status = ?", string(integration.JobStatusQueued)).
		Order("created_at ASC").Find(&rows).Error)
	return rows
}
