package integration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
)

// JobPurger removes finished queue rows
type JobPurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceServiceConfig contains configuration for MaintenanceService
type MaintenanceServiceConfig struct {
	// Retention is how long finished jobs and terminal sessions are kept
	Retention time.Duration
}

// DefaultMaintenanceServiceConfig returns default configuration
func DefaultMaintenanceServiceConfig() MaintenanceServiceConfig {
	return MaintenanceServiceConfig{
		Retention: 30 * 24 * time.Hour,
	}
}

// PurgeResult reports what one purge removed
type PurgeResult struct {
	Cutoff          time.Time `json:"cutoff"`
	SessionsDeleted int64     `json:"sessionsDeleted"`
	JobsDeleted     int64     `json:"jobsDeleted"`
}

// MaintenanceService handles maintenance:* jobs
type MaintenanceService struct {
	sessions integration.SyncSessionRepository
	jobs     JobPurger
	logger   *zap.Logger
	now      func() time.Time

	retention time.Duration
}

// NewMaintenanceService creates a new MaintenanceService
func NewMaintenanceService(
	sessions integration.SyncSessionRepository,
	jobs JobPurger,
	logger *zap.Logger,
	config MaintenanceServiceConfig,
) *MaintenanceService {
	if config.Retention <= 0 {
		config.Retention = DefaultMaintenanceServiceConfig().Retention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MaintenanceService{
		sessions:  sessions,
		jobs:      jobs,
		logger:    logger,
		now:       time.Now,
		retention: config.Retention,
	}
}

// HandleJob routes a maintenance job
func (s *MaintenanceService) HandleJob(ctx context.Context, job *integration.Job) integration.SyncResult {
	if job == nil {
		return integration.FailedResult(integration.ErrJobInvalidType, false)
	}

	switch job.Type {
	case integration.JobTypeMaintenancePurge:
		result, err := s.Purge(ctx)
		if err != nil {
			return integration.FailedResult(err, true)
		}
		return integration.SyncResult{
			Success:          true,
			RecordsProcessed: result.SessionsDeleted + result.JobsDeleted,
			DataChanged:      result.SessionsDeleted+result.JobsDeleted > 0,
		}
	default:
		return integration.FailedResult(fmt.Errorf("%w: %s", integration.ErrJobInvalidType, job.Type), false)
	}
}

// Purge deletes terminal sessions and finished jobs older than the retention
func (s *MaintenanceService) Purge(ctx context.Context) (PurgeResult, error) {
	result := PurgeResult{Cutoff: s.now().Add(-s.retention)}

	sessions, err := s.sessions.DeleteTerminalBefore(ctx, result.Cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to purge sync sessions: %w", err)
	}
	result.SessionsDeleted = sessions

	jobs, err := s.jobs.DeleteFinishedBefore(ctx, result.Cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to purge jobs: %w", err)
	}
	result.JobsDeleted = jobs

	s.logger.Info("Purge completed",
		zap.Time("cutoff", result.Cutoff),
		zap.Int64("sessions_deleted", result.SessionsDeleted),
		zap.Int64("jobs_deleted", result.JobsDeleted),
	)
	return result, nil
}
