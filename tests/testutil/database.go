package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence"
)

// NewSQLiteDB opens a private in-memory SQLite database with every sync table.
// The single connection keeps the shared-cache database alive until cleanup.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "Failed to open SQLite database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(persistence.AllModels()...), "Failed to migrate sync tables")
	return db
}

// ConnectionOption tunes a seeded platform connection
type ConnectionOption func(*integration.PlatformConnection)

// WithAccountID sets the ads account id
func WithAccountID(id string) ConnectionOption {
	return func(c *integration.PlatformConnection) {
		c.AccountID = id
	}
}

// WithShopDomain sets the storefront host
func WithShopDomain(domain string) ConnectionOption {
	return func(c *integration.PlatformConnection) {
		c.ShopDomain = domain
	}
}

// WithConnectionStatus sets the connection status
func WithConnectionStatus(status integration.ConnectionStatus) ConnectionOption {
	return func(c *integration.PlatformConnection) {
		c.Status = status
	}
}

// SeedConnection stores an enabled, active connection for the organization and platform
func SeedConnection(t *testing.T, db *gorm.DB, orgID uuid.UUID, platform integration.PlatformCode, opts ...ConnectionOption) *integration.PlatformConnection {
	t.Helper()

	now := time.Now().UTC()
	conn := &integration.PlatformConnection{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		AccessToken:    "token-" + string(platform),
		Status:         integration.ConnectionStatusActive,
		Enabled:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch platform {
	case integration.PlatformAds:
		conn.AccountID = "act_1001"
	case integration.PlatformStorefront:
		conn.ShopDomain = "shop.example.com"
	}
	for _, opt := range opts {
		opt(conn)
	}

	repo := persistence.NewGormConnectionRepository(db)
	require.NoError(t, repo.Save(context.Background(), conn), "Failed to seed connection")
	return conn
}
