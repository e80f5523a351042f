package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence"
	"github.com/adsync/backend/internal/infrastructure/scheduler"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newQueue(store integration.JobStore, now time.Time) *scheduler.JobQueue {
	return scheduler.NewJobQueue(store, scheduler.WithQueueClock(func() time.Time { return now }))
}

func enqueueSync(t *testing.T, q *scheduler.JobQueue, orgID uuid.UUID, platform integration.PlatformCode, priority integration.JobPriority, runAt time.Time) *integration.Job {
	t.Helper()
	job, err := q.CreateJob(context.Background(), integration.JobTypeSyncScheduled, priority,
		integration.JobPayload{
			OrganizationID: orgID,
			Platform:       platform,
			SyncType:       integration.SyncTypeIncremental,
		},
		scheduler.WithRunAt(runAt),
	)
	require.NoError(t, err)
	return job
}

func TestJobQueue_ConcurrentClaimsRespectPartition(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	store := persistence.NewGormJobStore(tdb.DB)
	queue := newQueue(store, baseTime)
	ctx := context.Background()
	orgID := uuid.New()

	for i := 0; i < 5; i++ {
		enqueueSync(t, queue, orgID, integration.PlatformAds, integration.PriorityNormal, baseTime.Add(-time.Duration(i)*time.Minute))
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []*integration.Job
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := queue.Claim(ctx, uuid.NewString())
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				claimed = append(claimed, job)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, 1, "only one job per partition may be claimed at a time")

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[string(integration.JobStatusClaimed)])
	assert.Equal(t, int64(4), counts[string(integration.JobStatusQueued)])

	t.Run("finishing frees the partition", func(t *testing.T) {
		require.NoError(t, queue.Complete(ctx, claimed[0], integration.SyncResult{Success: true}))

		next, err := queue.Claim(ctx, "worker-next")
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.NotEqual(t, claimed[0].ID, next.ID)
		assert.Equal(t, orgID, next.Payload.OrganizationID)
	})
}

func TestJobQueue_ClaimOrderAcrossPartitions(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	store := persistence.NewGormJobStore(tdb.DB)
	queue := newQueue(store, baseTime)
	ctx := context.Background()

	normal := enqueueSync(t, queue, uuid.New(), integration.PlatformStorefront, integration.PriorityNormal, baseTime.Add(-time.Hour))
	high := enqueueSync(t, queue, uuid.New(), integration.PlatformAds, integration.PriorityHigh, baseTime.Add(-time.Minute))
	enqueueSync(t, queue, uuid.New(), integration.PlatformAds, integration.PriorityHigh, baseTime.Add(time.Hour))

	first, err := queue.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, high.ID, first.ID)

	second, err := queue.Claim(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, normal.ID, second.ID)

	none, err := queue.Claim(ctx, "w3")
	require.NoError(t, err)
	assert.Nil(t, none, "future jobs are not claimable")
}

func TestJobQueue_ReleaseStaleClaimsAndPurge(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	store := persistence.NewGormJobStore(tdb.DB)
	ctx := context.Background()
	orgID := uuid.New()

	early := newQueue(store, baseTime)
	job := enqueueSync(t, early, orgID, integration.PlatformAds, integration.PriorityNormal, baseTime)
	claimed, err := early.Claim(ctx, "crashed-worker")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	pending, err := store.HasPending(ctx, orgID, integration.PlatformAds)
	require.NoError(t, err)
	assert.True(t, pending)

	later := newQueue(store, baseTime.Add(time.Hour))
	released, err := later.ReleaseStaleClaims(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	reclaimed, err := later.Claim(ctx, "healthy-worker")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, "healthy-worker", reclaimed.ClaimedBy)

	require.NoError(t, later.Fail(ctx, reclaimed, assert.AnError))

	stored, err := store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.JobStatusFailed, stored.Status)
	assert.Equal(t, assert.AnError.Error(), stored.LastError)

	deleted, err := store.DeleteFinishedBefore(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.FindByID(ctx, job.ID)
	assert.ErrorIs(t, err, integration.ErrJobNotFound)
}
