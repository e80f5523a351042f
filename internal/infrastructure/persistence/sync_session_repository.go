package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence/models"
)

// Session listing bounds
const (
	DefaultSessionPageSize = 20
	MaxSessionPageSize     = 100
)

// GormSyncSessionRepository implements integration.SyncSessionRepository using GORM
type GormSyncSessionRepository struct {
	db *gorm.DB
}

// NewGormSyncSessionRepository creates a new GormSyncSessionRepository
func NewGormSyncSessionRepository(db *gorm.DB) *GormSyncSessionRepository {
	return &GormSyncSessionRepository{db: db}
}

// Create inserts a new session
func (r *GormSyncSessionRepository) Create(ctx context.Context, session *integration.SyncSession) error {
	err := r.db.WithContext(ctx).Create(models.SyncSessionModelFromDomain(session)).Error
	if isDuplicateKey(err) {
		return integration.ErrSessionAlreadySyncing
	}
	return err
}

// Update persists status, counters and errors.
// A write rejected by the syncing uniqueness index yields ErrSessionAlreadySyncing.
func (r *GormSyncSessionRepository) Update(ctx context.Context, session *integration.SyncSession) error {
	model := models.SyncSessionModelFromDomain(session)
	result := r.db.WithContext(ctx).
		Model(&models.SyncSessionModel{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"status":            model.Status,
			"completed_at":      model.CompletedAt,
			"records_processed": model.RecordsProcessed,
			"orders_processed":  model.OrdersProcessed,
			"total_orders_seen": model.TotalOrdersSeen,
			"data_changed":      model.DataChanged,
			"errors":            model.ErrorsJSON,
			"updated_at":        model.UpdatedAt,
		})
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return integration.ErrSessionAlreadySyncing
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrSessionNotFound
	}
	return nil
}

// FindByID finds a session by its id
func (r *GormSyncSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncSession, error) {
	var model models.SyncSessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSessionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsSyncing reports whether a session is syncing for the organization and platform
func (r *GormSyncSessionRepository) ExistsSyncing(ctx context.Context, orgID uuid.UUID, platform integration.PlatformCode) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SyncSessionModel{}).
		Where("organization_id = ? AND platform = ? AND status = ?", orgID, string(platform), string(integration.SessionStatusSyncing)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindStale returns unfinished sessions that have not been updated since cutoff
func (r *GormSyncSessionRepository) FindStale(ctx context.Context, orgID *uuid.UUID, cutoff time.Time) ([]*integration.SyncSession, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{string(integration.SessionStatusProcessing), string(integration.SessionStatusSyncing)},
			cutoff.UTC())
	if orgID != nil {
		query = query.Where("organization_id = ?", *orgID)
	}

	var rows []models.SyncSessionModel
	if err := query.Order("updated_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	sessions := make([]*integration.SyncSession, len(rows))
	for i := range rows {
		sessions[i] = rows[i].ToDomain()
	}
	return sessions, nil
}

// List returns a page of sessions, newest first unless the filter sorts otherwise, and the total match count
func (r *GormSyncSessionRepository) List(ctx context.Context, filter integration.SessionFilter) ([]*integration.SyncSession, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncSessionModel{})
	if filter.OrganizationID != nil {
		query = query.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.Platform != nil {
		query = query.Where("platform = ?", string(*filter.Platform))
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultSessionPageSize
	}
	if size > MaxSessionPageSize {
		size = MaxSessionPageSize
	}

	sortBy := ValidateSortField(filter.SortBy, SessionSortFields, "started_at")
	order := sortBy + " " + ValidateSortOrder(filter.SortOrder)

	var rows []models.SyncSessionModel
	err := query.
		Order(order).
		Order("id ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	sessions := make([]*integration.SyncSession, len(rows))
	for i := range rows {
		sessions[i] = rows[i].ToDomain()
	}
	return sessions, total, nil
}

// DeleteTerminalBefore removes complete and failed sessions started before cutoff
func (r *GormSyncSessionRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?",
			[]string{string(integration.SessionStatusComplete), string(integration.SessionStatusFailed)},
			cutoff.UTC()).
		Delete(&models.SyncSessionModel{})
	return result.RowsAffected, result.Error
}

// CountSyncingByPlatform returns the number of syncing sessions per platform
func (r *GormSyncSessionRepository) CountSyncingByPlatform(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Platform string
		Count    int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.SyncSessionModel{}).
		Select("platform, COUNT(*) AS count").
		Where("status = ?", string(integration.SessionStatusSyncing)).
		Group("platform").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Platform] = row.Count
	}
	return counts, nil
}
