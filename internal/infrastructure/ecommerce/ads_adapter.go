package ecommerce

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/fetch"
)

// AdsAdapter talks to the ads Graph REST API
type AdsAdapter struct {
	config *AdsConfig
}

// NewAdsAdapter creates an ads adapter with the given configuration
func NewAdsAdapter(config *AdsConfig) (*AdsAdapter, error) {
	if config == nil {
		config = NewAdsConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AdsAdapter{config: config}, nil
}

// PlatformCode returns the platform code this adapter handles
func (a *AdsAdapter) PlatformCode() integration.PlatformCode {
	return integration.PlatformAds
}

// ClientConfig derives the fetch policy and client options for ads credentials.
// Requests use the default bearer Authorization header.
func (a *AdsAdapter) ClientConfig(base fetch.Config) (fetch.Config, []fetch.Option) {
	return a.config.clientConfig(base), nil
}

// ---------------------------------------------------------------------------
// Insights
// ---------------------------------------------------------------------------

// InsightsURL builds the first insights page URL for an ad account.
// Rows are daily (time_increment=1) within the inclusive date range.
func (a *AdsAdapter) InsightsURL(accountID string, level integration.EntityType, r integration.DateRange) (string, error) {
	accountID = strings.TrimPrefix(strings.TrimSpace(accountID), "act_")
	if accountID == "" {
		return "", integration.ErrPlatformMissingAccount
	}
	if _, _, err := r.Bounds(); err != nil {
		return "", err
	}

	timeRange, err := json.Marshal(map[string]string{"since": r.Start, "until": r.End})
	if err != nil {
		return "", err
	}

	fields := adsInsightFields
	if level == integration.EntityTypeCampaign {
		fields = append(append([]string{}, adsCampaignFields...), adsInsightFields...)
	}

	q := url.Values{}
	q.Set("level", adsLevel(level))
	q.Set("time_increment", "1")
	q.Set("time_range", string(timeRange))
	q.Set("fields", strings.Join(fields, ","))
	q.Set("limit", strconv.Itoa(a.config.PageLimit))

	return fmt.Sprintf("%s/%s/act_%s/insights?%s",
		a.config.BaseURL, a.config.APIVersion, url.PathEscape(accountID), q.Encode()), nil
}

// InsightsPager pages through an account's insights at the given level
func (a *AdsAdapter) InsightsPager(client *fetch.Client, accountID string, level integration.EntityType, r integration.DateRange) (*fetch.Pager, error) {
	u, err := a.InsightsURL(accountID, level, r)
	if err != nil {
		return nil, err
	}
	return client.Paginate(u), nil
}

// DecodeInsights decodes insight rows leniently. Only items that are not JSON
// objects are counted and skipped; rows without a date are kept so the
// builder can assign a fallback date.
func (a *AdsAdapter) DecodeInsights(items []json.RawMessage) ([]integration.RawInsight, int) {
	rows := make([]integration.RawInsight, 0, len(items))
	skipped := 0
	for _, item := range items {
		row, err := integration.DecodeRawInsight(item)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}
