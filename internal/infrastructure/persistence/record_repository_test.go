package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/domain/integration"
)

func TestGormInsightRepository_InsertFindPatch(t *testing.T) {
	repo := NewGormInsightRepository(setupTestDB(t))
	ctx := context.Background()
	orgID := uuid.New()

	record := &integration.CanonicalInsightRecord{
		OrganizationID:    orgID,
		EntityType:        integration.EntityTypeCampaign,
		EntityID:          "c-1",
		EntityName:        "Spring sale",
		AccountID:         "123",
		Date:              "2024-03-01",
		Currency:          "USD",
		Spend:             50.125,
		Impressions:       1000,
		Clicks:            25,
		CTR:               2.5,
		Conversions:       3,
		ConversionValue:   150,
		CostPerConversion: 16.71,
		ROAS:              3,
		SyncedAt:          fixedNow,
	}

	_, err := repo.FindByKey(ctx, record.Key())
	assert.ErrorIs(t, err, integration.ErrRecordNotFound)

	require.NoError(t, repo.Insert(ctx, record))
	assert.NotEqual(t, uuid.Nil, record.ID)

	found, err := repo.FindByKey(ctx, record.Key())
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
	assert.Equal(t, 50.13, found.Spend)
	assert.Equal(t, 150.0, found.ConversionValue)
	assert.Equal(t, 2.5, found.CTR)
	assert.Equal(t, int64(3), found.Conversions)

	t.Run("duplicate natural key is rejected", func(t *testing.T) {
		dup := *record
		dup.ID = uuid.Nil
		assert.Error(t, repo.Insert(ctx, &dup))
	})

	t.Run("patch overwrites metrics including zeroes", func(t *testing.T) {
		patched := *found
		patched.Clicks = 0
		patched.Spend = 60
		patched.SyncedAt = fixedNow.AddDate(0, 0, 1)
		require.NoError(t, repo.Patch(ctx, &patched))

		reloaded, err := repo.FindByKey(ctx, record.Key())
		require.NoError(t, err)
		assert.Equal(t, int64(0), reloaded.Clicks)
		assert.Equal(t, 60.0, reloaded.Spend)
		assert.Equal(t, record.ID, reloaded.ID)
	})

	t.Run("patch of unknown id", func(t *testing.T) {
		missing := *record
		missing.ID = uuid.New()
		assert.ErrorIs(t, repo.Patch(ctx, &missing), integration.ErrRecordNotFound)
	})

	t.Run("list by organization and date", func(t *testing.T) {
		account := *record
		account.ID = uuid.Nil
		account.EntityType = integration.EntityTypeAccount
		account.EntityID = "123"
		require.NoError(t, repo.Insert(ctx, &account))

		records, err := repo.ListByOrganizationDate(ctx, orgID, "2024-03-01")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, integration.EntityTypeAccount, records[0].EntityType)
		assert.Equal(t, integration.EntityTypeCampaign, records[1].EntityType)

		records, err = repo.ListByOrganizationDate(ctx, orgID, "2024-03-02")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestGormOrderRepository_InsertFindPatch(t *testing.T) {
	repo := NewGormOrderRepository(setupTestDB(t))
	ctx := context.Background()

	record := &integration.CanonicalOrderRecord{
		OrganizationID: uuid.New(),
		OrderID:        "gid://shop/Order/1",
		OrderName:      "#1001",
		Date:           "2024-03-01",
		Currency:       "USD",
		TotalPrice:     19.99,
		SubtotalPrice:  17.5,
		TotalRefunded:  2.5,
		NetSales:       15,
		LineItemCount:  2,
		SyncedAt:       fixedNow,
	}
	require.NoError(t, repo.Insert(ctx, record))

	found, err := repo.FindByKey(ctx, record.Key())
	require.NoError(t, err)
	assert.True(t, record.SameMetrics(found))

	found.Cancelled = true
	require.NoError(t, repo.Patch(ctx, found))

	reloaded, err := repo.FindByKey(ctx, record.Key())
	require.NoError(t, err)
	assert.True(t, reloaded.Cancelled)
	assert.Equal(t, 19.99, reloaded.TotalPrice)

	_, err = repo.FindByKey(ctx, integration.OrderKey{OrganizationID: record.OrganizationID, OrderID: "missing"})
	assert.ErrorIs(t, err, integration.ErrRecordNotFound)
}
