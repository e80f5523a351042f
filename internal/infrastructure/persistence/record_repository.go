package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence/models"
)

// ---------------------------------------------------------------------------
// Insight records
// ---------------------------------------------------------------------------

// insightKeyColumns identify a row and are never patched
var insightKeyColumns = []string{"id", "organization_id", "entity_type", "entity_id", "date"}

// GormInsightRepository implements integration.InsightRepository using GORM
type GormInsightRepository struct {
	db *gorm.DB
}

// NewGormInsightRepository creates a new GormInsightRepository
func NewGormInsightRepository(db *gorm.DB) *GormInsightRepository {
	return &GormInsightRepository{db: db}
}

// FindByKey finds the record with the natural key
func (r *GormInsightRepository) FindByKey(ctx context.Context, key integration.InsightKey) (*integration.CanonicalInsightRecord, error) {
	var model models.InsightRecordModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ? AND date = ?",
			key.OrganizationID, string(key.EntityType), key.EntityID, key.Date).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Insert stores a new record, assigning an id when missing
func (r *GormInsightRepository) Insert(ctx context.Context, record *integration.CanonicalInsightRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(models.InsightRecordModelFromDomain(record)).Error
}

// Patch overwrites every metric column of an existing record
func (r *GormInsightRepository) Patch(ctx context.Context, record *integration.CanonicalInsightRecord) error {
	model := models.InsightRecordModelFromDomain(record)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").
		Omit(insightKeyColumns...).
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrRecordNotFound
	}
	return nil
}

// ListByOrganizationDate returns every record of an organization for one day
func (r *GormInsightRepository) ListByOrganizationDate(ctx context.Context, orgID uuid.UUID, date string) ([]*integration.CanonicalInsightRecord, error) {
	var rows []models.InsightRecordModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND date = ?", orgID, date).
		Order("entity_type ASC").
		Order("entity_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]*integration.CanonicalInsightRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}

// ---------------------------------------------------------------------------
// Order records
// ---------------------------------------------------------------------------

var orderKeyColumns = []string{"id", "organization_id", "order_id"}

// GormOrderRepository implements integration.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByKey finds the order with the natural key
func (r *GormOrderRepository) FindByKey(ctx context.Context, key integration.OrderKey) (*integration.CanonicalOrderRecord, error) {
	var model models.OrderRecordModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND order_id = ?", key.OrganizationID, key.OrderID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Insert stores a new order, assigning an id when missing
func (r *GormOrderRepository) Insert(ctx context.Context, record *integration.CanonicalOrderRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(models.OrderRecordModelFromDomain(record)).Error
}

// Patch overwrites every value column of an existing order
func (r *GormOrderRepository) Patch(ctx context.Context, record *integration.CanonicalOrderRecord) error {
	model := models.OrderRecordModelFromDomain(record)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").
		Omit(orderKeyColumns...).
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrRecordNotFound
	}
	return nil
}
