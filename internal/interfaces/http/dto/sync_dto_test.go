package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/domain/integration"
)

func TestParsePlatforms(t *testing.T) {
	t.Run("empty means all connected", func(t *testing.T) {
		got, err := ParsePlatforms(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("deduplicates preserving order", func(t *testing.T) {
		got, err := ParsePlatforms([]string{"ads", "storefront", "ads"})
		require.NoError(t, err)
		assert.Equal(t, []integration.PlatformCode{integration.PlatformAds, integration.PlatformStorefront}, got)
	})

	t.Run("rejects unknown code", func(t *testing.T) {
		_, err := ParsePlatforms([]string{"ads", "tiktok"})
		assert.ErrorIs(t, err, integration.ErrPlatformInvalidCode)
	})
}

func TestDateRangeRequest_ToDateRange(t *testing.T) {
	var nilRange *DateRangeRequest
	dr, err := nilRange.ToDateRange()
	require.NoError(t, err)
	assert.Nil(t, dr)

	dr, err = (&DateRangeRequest{Start: "2024-01-01", End: "2024-01-07"}).ToDateRange()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", dr.Start)
	assert.Equal(t, "2024-01-07", dr.End)

	_, err = (&DateRangeRequest{Start: "2024-01-07", End: "2024-01-01"}).ToDateRange()
	assert.ErrorIs(t, err, integration.ErrJobInvalidPayload)
}

func TestSessionListQuery_ToFilter(t *testing.T) {
	q := SessionListQuery{
		OrganizationID: "6f1c1c5e-8a53-4f7e-9a51-1c0d5a8b7e01",
		Platform:       "ads",
		Status:         "failed",
		SortBy:         "records_processed",
		SortOrder:      "asc",
	}
	f := q.ToFilter()

	require.NotNil(t, f.OrganizationID)
	assert.Equal(t, "6f1c1c5e-8a53-4f7e-9a51-1c0d5a8b7e01", f.OrganizationID.String())
	require.NotNil(t, f.Platform)
	assert.Equal(t, integration.PlatformAds, *f.Platform)
	require.NotNil(t, f.Status)
	assert.Equal(t, integration.SessionStatusFailed, *f.Status)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPageSize, f.PageSize)
	assert.Equal(t, "records_processed", f.SortBy)
	assert.Equal(t, "asc", f.SortOrder)

	empty := SessionListQuery{}.ToFilter()
	assert.Nil(t, empty.OrganizationID)
	assert.Nil(t, empty.Platform)
	assert.Nil(t, empty.Status)
}

func TestHistoryQuery_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, HistoryQuery{}.EffectiveLimit())
	assert.Equal(t, 10, HistoryQuery{Limit: 10}.EffectiveLimit())
}
