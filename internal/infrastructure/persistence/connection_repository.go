package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence/models"
)

// GormConnectionRepository reads platform connections and serves their access tokens.
// It implements integration.ConnectionRepository and integration.AccessTokenProvider.
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// FindActive returns the organization's connection to platform.
// A missing row yields ErrPlatformNotConnected, a disabled or revoked one ErrPlatformNotEnabled.
func (r *GormConnectionRepository) FindActive(ctx context.Context, orgID uuid.UUID, platform integration.PlatformCode) (*integration.PlatformConnection, error) {
	var model models.PlatformConnectionModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND platform = ?", orgID, string(platform)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrPlatformNotConnected
		}
		return nil, err
	}

	conn := model.ToDomain()
	if !conn.IsActive() {
		return nil, integration.ErrPlatformNotEnabled
	}
	return conn, nil
}

// ListActivePlatforms returns the platforms with an enabled, active connection
func (r *GormConnectionRepository) ListActivePlatforms(ctx context.Context, orgID uuid.UUID) ([]integration.PlatformCode, error) {
	var platforms []string
	err := r.db.WithContext(ctx).
		Model(&models.PlatformConnectionModel{}).
		Where("organization_id = ? AND enabled = ? AND status = ?", orgID, true, string(integration.ConnectionStatusActive)).
		Order("platform ASC").
		Pluck("platform", &platforms).Error
	if err != nil {
		return nil, err
	}

	codes := make([]integration.PlatformCode, 0, len(platforms))
	for _, p := range platforms {
		code := integration.PlatformCode(p)
		if code.IsValid() {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// Save inserts or replaces the organization's connection to a platform
func (r *GormConnectionRepository) Save(ctx context.Context, conn *integration.PlatformConnection) error {
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_id", "shop_domain", "access_token", "status", "enabled", "updated_at"}),
		}).
		Create(models.PlatformConnectionModelFromDomain(conn)).Error
}

// GetValidAccessToken returns the stored token of an active connection
func (r *GormConnectionRepository) GetValidAccessToken(ctx context.Context, orgID uuid.UUID, platform integration.PlatformCode) (string, error) {
	conn, err := r.FindActive(ctx, orgID, platform)
	if err != nil {
		return "", err
	}
	if conn.AccessToken == "" {
		return "", integration.ErrPlatformTokenNotFound
	}
	return conn.AccessToken, nil
}
