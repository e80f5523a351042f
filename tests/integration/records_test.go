package integration

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/persistence"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

func TestInsightRecords_NumericPrecision(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	repo := persistence.NewGormInsightRepository(tdb.DB)
	ctx := context.Background()
	orgID := uuid.New()

	record := &integration.CanonicalInsightRecord{
		OrganizationID:  orgID,
		EntityType:      integration.EntityTypeCampaign,
		EntityID:        "c-42",
		EntityName:      "Spring carousel",
		AccountID:       "act_1001",
		Date:            "2024-03-01",
		Currency:        "EUR",
		Spend:           12.345,
		Impressions:     2000,
		Clicks:          40,
		CTR:             2,
		ConversionValue: 99.999,
		ROAS:            8.1004,
		SyncedAt:        baseTime,
	}
	require.NoError(t, repo.Insert(ctx, record))

	found, err := repo.FindByKey(ctx, record.Key())
	require.NoError(t, err)
	assert.Equal(t, 12.35, found.Spend)
	assert.Equal(t, 100.0, found.ConversionValue)
	assert.Equal(t, 8.1004, found.ROAS)
	assert.True(t, found.SyncedAt.Equal(baseTime))

	dup := *record
	dup.ID = uuid.Nil
	assert.Error(t, repo.Insert(ctx, &dup), "natural key is unique")

	sameDay, err := repo.ListByOrganizationDate(ctx, orgID, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, sameDay, 1)
	assert.Equal(t, record.ID, sameDay[0].ID)
}

func TestOrderRecords_PatchKeepsIdentity(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	repo := persistence.NewGormOrderRepository(tdb.DB)
	ctx := context.Background()

	record := &integration.CanonicalOrderRecord{
		OrganizationID: uuid.New(),
		OrderID:        "gid://shop/Order/7",
		OrderName:      "#1007",
		Date:           "2024-03-01",
		Currency:       "USD",
		TotalPrice:     120,
		SubtotalPrice:  100,
		TotalTax:       12,
		TotalShipping:  8,
		NetSales:       100,
		LineItemCount:  3,
		SyncedAt:       baseTime,
	}
	require.NoError(t, repo.Insert(ctx, record))

	refunded := *record
	refunded.TotalRefunded = 20
	refunded.NetSales = 80
	require.NoError(t, repo.Patch(ctx, &refunded))

	found, err := repo.FindByKey(ctx, record.Key())
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
	assert.Equal(t, 20.0, found.TotalRefunded)
	assert.Equal(t, 80.0, found.NetSales)
	assert.True(t, refunded.SameMetrics(found))
}
