package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence/models"
)

// tryClaimSQL flips one queued job to claimed unless its partition already holds a claim.
// The partial unique index on claimed partition keys rejects a racing writer.
const tryClaimSQL = `UPDATE sync_jobs
SET status = ?, claimed_by = ?, claimed_at = ?
WHERE id = ? AND status = ?
AND (partition_key IS NULL OR NOT EXISTS (
	SELECT 1 FROM sync_jobs AS held
	WHERE held.partition_key = sync_jobs.partition_key AND held.status = ?
))`

// partitionHeadColumns ranks queued jobs inside their partition in claim order.
// Maintenance jobs have no partition and each ranks first on its own.
const partitionHeadColumns = `sync_jobs.*, ROW_NUMBER() OVER (
	PARTITION BY COALESCE(partition_key, CAST(id AS TEXT))
	ORDER BY priority DESC, run_at ASC, created_at ASC
) AS partition_rank`

// GormJobStore implements integration.JobStore using GORM
type GormJobStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// JobStoreOption configures a GormJobStore
type JobStoreOption func(*GormJobStore)

// WithJobStoreLogger sets the logger used to report undecodable jobs
func WithJobStoreLogger(logger *zap.Logger) JobStoreOption {
	return func(s *GormJobStore) {
		s.logger = logger
	}
}

// NewGormJobStore creates a new GormJobStore
func NewGormJobStore(db *gorm.DB, opts ...JobStoreOption) *GormJobStore {
	s := &GormJobStore{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert appends a job
func (s *GormJobStore) Insert(ctx context.Context, job *integration.Job) error {
	model, err := models.JobModelFromDomain(job)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrJobInvalidPayload, err)
	}
	return s.db.WithContext(ctx).Create(model).Error
}

// FindClaimable returns due queued jobs, highest priority first then earliest runAt.
// Partitions that already hold a claimed job are skipped, and each free partition
// contributes only its head job so one backlog cannot fill the whole batch.
// Rows whose payload no longer decodes are failed in place and left out.
func (s *GormJobStore) FindClaimable(ctx context.Context, now time.Time, limit int) ([]*integration.Job, error) {
	if limit <= 0 {
		limit = 10
	}

	held := s.db.Model(&models.JobModel{}).
		Select("partition_key").
		Where("status = ? AND partition_key IS NOT NULL", string(integration.JobStatusClaimed))
	ranked := s.db.Model(&models.JobModel{}).
		Select(partitionHeadColumns).
		Where("status = ? AND run_at <= ?", string(integration.JobStatusQueued), now.UTC()).
		Where("(partition_key IS NULL OR partition_key NOT IN (?))", held)

	var rows []models.JobModel
	err := s.db.WithContext(ctx).
		Table("(?) AS heads", ranked).
		Where("partition_rank = 1").
		Order("priority DESC").
		Order("run_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return s.decodeClaimable(ctx, rows, now), nil
}

func (s *GormJobStore) decodeClaimable(ctx context.Context, rows []models.JobModel, now time.Time) []*integration.Job {
	jobs := make([]*integration.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].ToDomain()
		if err != nil {
			s.failUndecodable(ctx, &rows[i], err, now)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// failUndecodable marks a queued row failed so it stops heading its partition
func (s *GormJobStore) failUndecodable(ctx context.Context, row *models.JobModel, cause error, now time.Time) {
	s.logger.Error("Failing job with undecodable payload",
		zap.String("job_id", row.ID.String()),
		zap.String("job_type", row.Type),
		zap.Error(cause),
	)
	err := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("id = ? AND status = ?", row.ID, string(integration.JobStatusQueued)).
		Updates(map[string]any{
			"status":      string(integration.JobStatusFailed),
			"finished_at": now.UTC(),
			"last_error":  fmt.Sprintf("%v: %v", integration.ErrJobInvalidPayload, cause),
		}).Error
	if err != nil {
		s.logger.Warn("Failed to mark undecodable job failed",
			zap.String("job_id", row.ID.String()),
			zap.Error(err),
		)
	}
}

// TryClaim claims a queued job for workerID.
// It returns false without error when the job or its partition was taken first.
func (s *GormJobStore) TryClaim(ctx context.Context, jobID uuid.UUID, workerID string, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Exec(tryClaimSQL,
		string(integration.JobStatusClaimed), workerID, now.UTC(),
		jobID, string(integration.JobStatusQueued),
		string(integration.JobStatusClaimed),
	)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Finish persists a job's terminal bookkeeping and frees its partition
func (s *GormJobStore) Finish(ctx context.Context, job *integration.Job) error {
	if !job.Status.IsTerminal() {
		return fmt.Errorf("%w: status %s is not terminal", integration.ErrJobInvalidPayload, job.Status)
	}
	result := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":      string(job.Status),
			"finished_at": job.FinishedAt,
			"last_error":  job.LastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrJobNotFound
	}
	return nil
}

// FindByID finds a job by its id
func (s *GormJobStore) FindByID(ctx context.Context, id uuid.UUID) (*integration.Job, error) {
	var model models.JobModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// HasPending reports whether a queued or claimed job exists for the organization and platform
func (s *GormJobStore) HasPending(ctx context.Context, orgID uuid.UUID, platform integration.PlatformCode) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("organization_id = ? AND platform = ?", orgID, string(platform)).
		Where("status IN ?", []string{string(integration.JobStatusQueued), string(integration.JobStatusClaimed)}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteFinishedBefore removes succeeded and failed jobs finished before cutoff
func (s *GormJobStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?",
			[]string{string(integration.JobStatusSucceeded), string(integration.JobStatusFailed)},
			cutoff.UTC()).
		Delete(&models.JobModel{})
	return result.RowsAffected, result.Error
}

// ReleaseStaleClaims puts jobs claimed before cutoff back in the queue
func (s *GormJobStore) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("status = ? AND claimed_at < ?", string(integration.JobStatusClaimed), cutoff.UTC()).
		Updates(map[string]any{
			"status":     string(integration.JobStatusQueued),
			"claimed_by": "",
			"claimed_at": nil,
		})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the number of jobs per status
func (s *GormJobStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
