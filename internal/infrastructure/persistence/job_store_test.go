package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSyncJob(t *testing.T, orgID uuid.UUID, platform integration.PlatformCode, priority integration.JobPriority, runAt time.Time) *integration.Job {
	t.Helper()
	job, err := integration.NewJob(integration.JobTypeSyncScheduled, priority, integration.JobPayload{
		OrganizationID: orgID,
		Platform:       platform,
		SyncType:       integration.SyncTypeIncremental,
	}, runAt, 0, fixedNow)
	require.NoError(t, err)
	return job
}

func TestGormJobStore_FindClaimable_Ordering(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()

	normalEarly := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow.Add(-time.Hour))
	highLate := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityHigh, fixedNow.Add(-time.Minute))
	background := newSyncJob(t, uuid.New(), integration.PlatformStorefront, integration.PriorityBackground, fixedNow.Add(-2*time.Hour))
	future := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityHigh, fixedNow.Add(time.Minute))

	for _, job := range []*integration.Job{normalEarly, highLate, background, future} {
		require.NoError(t, store.Insert(ctx, job))
	}

	jobs, err := store.FindClaimable(ctx, fixedNow, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, highLate.ID, jobs[0].ID)
	assert.Equal(t, normalEarly.ID, jobs[1].ID)
	assert.Equal(t, background.ID, jobs[2].ID)
	assert.Equal(t, integration.SyncTypeIncremental, jobs[0].Payload.SyncType)
}

func TestGormJobStore_TryClaim_Partition(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()
	orgID := uuid.New()

	first := newSyncJob(t, orgID, integration.PlatformAds, integration.PriorityNormal, fixedNow.Add(-time.Minute))
	second := newSyncJob(t, orgID, integration.PlatformAds, integration.PriorityHigh, fixedNow)
	otherPlatform := newSyncJob(t, orgID, integration.PlatformStorefront, integration.PriorityNormal, fixedNow)
	for _, job := range []*integration.Job{first, second, otherPlatform} {
		require.NoError(t, store.Insert(ctx, job))
	}

	claimed, err := store.TryClaim(ctx, first.ID, "worker-1", fixedNow)
	require.NoError(t, err)
	assert.True(t, claimed)

	t.Run("same job cannot be claimed twice", func(t *testing.T) {
		claimed, err := store.TryClaim(ctx, first.ID, "worker-2", fixedNow)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("partition with a claimed job is skipped", func(t *testing.T) {
		jobs, err := store.FindClaimable(ctx, fixedNow, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, otherPlatform.ID, jobs[0].ID)

		claimed, err := store.TryClaim(ctx, second.ID, "worker-2", fixedNow)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("finishing frees the partition", func(t *testing.T) {
		job, err := store.FindByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusClaimed, job.Status)
		assert.Equal(t, "worker-1", job.ClaimedBy)

		job.MarkSucceeded(fixedNow.Add(time.Minute))
		require.NoError(t, store.Finish(ctx, job))

		claimed, err := store.TryClaim(ctx, second.ID, "worker-2", fixedNow.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, claimed)
	})
}

func TestGormJobStore_MaintenanceJobsHaveNoPartition(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 2; i++ {
		job, err := integration.NewJob(integration.JobTypeMaintenancePurge, integration.PriorityBackground, integration.JobPayload{}, fixedNow, 0, fixedNow)
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, job))
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		claimed, err := store.TryClaim(ctx, id, "worker", fixedNow)
		require.NoError(t, err)
		assert.True(t, claimed)
	}
}

func TestGormJobStore_HasPending(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()
	orgID := uuid.New()

	pending, err := store.HasPending(ctx, orgID, integration.PlatformAds)
	require.NoError(t, err)
	assert.False(t, pending)

	job := newSyncJob(t, orgID, integration.PlatformAds, integration.PriorityNormal, fixedNow.Add(time.Hour))
	require.NoError(t, store.Insert(ctx, job))

	pending, err = store.HasPending(ctx, orgID, integration.PlatformAds)
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = store.HasPending(ctx, orgID, integration.PlatformStorefront)
	require.NoError(t, err)
	assert.False(t, pending)

	job.MarkFailed("boom", fixedNow)
	require.NoError(t, store.Finish(ctx, job))

	pending, err = store.HasPending(ctx, orgID, integration.PlatformAds)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestGormJobStore_Finish(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()

	t.Run("rejects non-terminal status", func(t *testing.T) {
		job := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow)
		err := store.Finish(ctx, job)
		assert.ErrorIs(t, err, integration.ErrJobInvalidPayload)
	})

	t.Run("unknown job", func(t *testing.T) {
		job := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow)
		job.MarkSucceeded(fixedNow)
		assert.ErrorIs(t, store.Finish(ctx, job), integration.ErrJobNotFound)
	})

	t.Run("persists last error", func(t *testing.T) {
		job := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow)
		require.NoError(t, store.Insert(ctx, job))
		job.MarkFailed("throttled", fixedNow)
		require.NoError(t, store.Finish(ctx, job))

		found, err := store.FindByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusFailed, found.Status)
		assert.Equal(t, "throttled", found.LastError)
		require.NotNil(t, found.FinishedAt)
	})

	t.Run("find missing job", func(t *testing.T) {
		_, err := store.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, integration.ErrJobNotFound)
	})
}

func TestGormJobStore_Cleanup(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()

	old := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow)
	recent := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow)
	stale := newSyncJob(t, uuid.New(), integration.PlatformStorefront, integration.PriorityNormal, fixedNow)
	for _, job := range []*integration.Job{old, recent, stale} {
		require.NoError(t, store.Insert(ctx, job))
	}

	old.MarkSucceeded(fixedNow.AddDate(0, 0, -40))
	recent.MarkSucceeded(fixedNow.AddDate(0, 0, -1))
	require.NoError(t, store.Finish(ctx, old))
	require.NoError(t, store.Finish(ctx, recent))

	deleted, err := store.DeleteFinishedBefore(ctx, fixedNow.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	claimed, err := store.TryClaim(ctx, stale.ID, "dead-worker", fixedNow.Add(-2*time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	released, err := store.ReleaseStaleClaims(ctx, fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	job, err := store.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.JobStatusQueued, job.Status)
	assert.Empty(t, job.ClaimedBy)
}

func TestGormJobStore_CountByStatus(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()

	queued := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow)
	done := newSyncJob(t, uuid.New(), integration.PlatformStorefront, integration.PriorityNormal, fixedNow)
	require.NoError(t, store.Insert(ctx, queued))
	require.NoError(t, store.Insert(ctx, done))

	claimed, err := store.TryClaim(ctx, done.ID, "worker-1", fixedNow)
	require.NoError(t, err)
	require.True(t, claimed)
	done.MarkSucceeded(fixedNow)
	require.NoError(t, store.Finish(ctx, done))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[string(integration.JobStatusQueued)])
	assert.Equal(t, int64(1), counts[string(integration.JobStatusSucceeded)])
	assert.Zero(t, counts[string(integration.JobStatusClaimed)])
}

func TestGormJobStore_FindClaimable_OneHeadPerPartition(t *testing.T) {
	store := NewGormJobStore(setupTestDB(t))
	ctx := context.Background()
	busyOrg := uuid.New()

	var backlog []*integration.Job
	for i := 0; i < 12; i++ {
		job := newSyncJob(t, busyOrg, integration.PlatformAds, integration.PriorityHigh, fixedNow.Add(-time.Duration(12-i)*time.Minute))
		require.NoError(t, store.Insert(ctx, job))
		backlog = append(backlog, job)
	}
	other := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityNormal, fixedNow)
	require.NoError(t, store.Insert(ctx, other))
	for i := 0; i < 2; i++ {
		purge, err := integration.NewJob(integration.JobTypeMaintenancePurge, integration.PriorityBackground, integration.JobPayload{}, fixedNow, 0, fixedNow)
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, purge))
	}

	jobs, err := store.FindClaimable(ctx, fixedNow, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, backlog[0].ID, jobs[0].ID, "earliest job heads the busy partition")
	assert.Equal(t, other.ID, jobs[1].ID)
	assert.Equal(t, integration.JobTypeMaintenancePurge, jobs[2].Type)
	assert.Equal(t, integration.JobTypeMaintenancePurge, jobs[3].Type)

	t.Run("limit still applies across partitions", func(t *testing.T) {
		jobs, err := store.FindClaimable(ctx, fixedNow, 2)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, backlog[0].ID, jobs[0].ID)
		assert.Equal(t, other.ID, jobs[1].ID)
	})
}

func TestGormJobStore_FindClaimable_UndecodablePayload(t *testing.T) {
	db := setupTestDB(t)
	core, logs := observer.New(zapcore.WarnLevel)
	store := NewGormJobStore(db, WithJobStoreLogger(zap.New(core)))
	ctx := context.Background()

	corrupt := newSyncJob(t, uuid.New(), integration.PlatformAds, integration.PriorityHigh, fixedNow.Add(-time.Hour))
	good := newSyncJob(t, uuid.New(), integration.PlatformStorefront, integration.PriorityNormal, fixedNow)
	require.NoError(t, store.Insert(ctx, corrupt))
	require.NoError(t, store.Insert(ctx, good))
	require.NoError(t, db.Model(&models.JobModel{}).Where("id = ?", corrupt.ID).
		Update("payload", `{"organizationId":`).Error)

	jobs, err := store.FindClaimable(ctx, fixedNow, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, good.ID, jobs[0].ID)

	var row models.JobModel
	require.NoError(t, db.Where("id = ?", corrupt.ID).First(&row).Error)
	assert.Equal(t, string(integration.JobStatusFailed), row.Status)
	assert.Contains(t, row.LastError, "payload")
	require.NotNil(t, row.FinishedAt)

	require.Equal(t, 1, logs.FilterMessage("Failing job with undecodable payload").Len())
	assert.Equal(t, corrupt.ID.String(), logs.All()[0].ContextMap()["job_id"])

	t.Run("failed row is not offered again", func(t *testing.T) {
		jobs, err := store.FindClaimable(ctx, fixedNow, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, good.ID, jobs[0].ID)
		assert.Equal(t, 1, logs.Len())
	})
}
