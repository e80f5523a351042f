package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	logging "github.com/adsync/backend/internal/infrastructure/logger"
)

// RecoverStaleSessions fails processing and syncing sessions that have not been
// updated for staleAfter, which frees their organization/platform slot. A
// crashed worker leaves such rows behind; a live sync touches its session on
// every page and never outlives the job timeout. orgID nil sweeps every tenant.
func RecoverStaleSessions(
	ctx context.Context,
	sessions integration.SyncSessionRepository,
	orgID *uuid.UUID,
	staleAfter time.Duration,
	now time.Time,
	logger *zap.Logger,
) (int, error) {
	if staleAfter <= 0 {
		return 0, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stale, err := sessions.FindStale(ctx, orgID, now.Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to find stale sessions: %w", err)
	}

	recovered := 0
	var errs []error
	for _, session := range stale {
		lastUpdate := session.UpdatedAt
		if err := session.Fail(integration.ErrSessionStale, now); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := sessions.Update(ctx, session); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID, err))
			continue
		}
		recovered++
		logger.Warn("Stale sync session marked failed",
			append(logging.SessionFields(session), zap.Time("last_update", lastUpdate))...)
	}
	return recovered, errors.Join(errs...)
}
