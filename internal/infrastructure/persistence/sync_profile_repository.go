package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence/models"
)

// GormSyncProfileRepository implements integration.SyncProfileRepository using GORM
type GormSyncProfileRepository struct {
	db *gorm.DB
}

// NewGormSyncProfileRepository creates a new GormSyncProfileRepository
func NewGormSyncProfileRepository(db *gorm.DB) *GormSyncProfileRepository {
	return &GormSyncProfileRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormSyncProfileRepository) WithTx(tx *gorm.DB) *GormSyncProfileRepository {
	return &GormSyncProfileRepository{db: tx}
}

// FindByOrganization finds the profile of an organization
func (r *GormSyncProfileRepository) FindByOrganization(ctx context.Context, orgID uuid.UUID) (*integration.SyncProfile, error) {
	var model models.SyncProfileModel
	err := r.db.WithContext(ctx).Where("organization_id = ?", orgID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrProfileNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts the profile or overwrites the organization's existing row.
// The row keeps its original id and created_at on conflict.
func (r *GormSyncProfileRepository) Save(ctx context.Context, profile *integration.SyncProfile) error {
	model := models.SyncProfileModelFromDomain(profile)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"activity_score",
				"activity_history",
				"sync_interval_ms",
				"sync_tier",
				"next_scheduled_sync",
				"last_scheduled_at",
				"business_hours_enabled",
				"timezone",
				"paused",
				"updated_at",
			}),
		}).
		Create(model).Error
}

// FindDue returns unpaused profiles whose next sync is due, keyset-paginated by organization
func (r *GormSyncProfileRepository) FindDue(ctx context.Context, now time.Time, afterOrgID uuid.UUID, limit int) ([]*integration.SyncProfile, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []models.SyncProfileModel
	err := r.db.WithContext(ctx).
		Where("paused = ?", false).
		Where("next_scheduled_sync IS NOT NULL AND next_scheduled_sync <= ?", now.UTC()).
		Where("organization_id > ?", afterOrgID).
		Order("organization_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	profiles := make([]*integration.SyncProfile, len(rows))
	for i := range rows {
		profiles[i] = rows[i].ToDomain()
	}
	return profiles, nil
}
