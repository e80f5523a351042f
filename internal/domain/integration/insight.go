package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adsync/backend/internal/domain/shared/valueobject"
)

// ---------------------------------------------------------------------------
// FlexNumber
// ---------------------------------------------------------------------------

// FlexNumber is a numeric-like raw field that platforms send either as a JSON
// number or as a string. Anything else decodes to the empty value, which reads as 0.
type FlexNumber string

// UnmarshalJSON accepts numbers, strings and null; other shapes are kept empty
func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = ""
			return nil
		}
		*n = FlexNumber(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*n = FlexNumber(data)
	default:
		*n = ""
	}
	return nil
}

// IsSet returns true if the field was present and parses as a number
func (n FlexNumber) IsSet() bool {
	if n == "" {
		return false
	}
	_, err := decimal.NewFromString(strings.TrimSpace(string(n)))
	return err == nil
}

// Money returns the value rounded to cents (0 for garbage)
func (n FlexNumber) Money() float64 {
	return valueobject.ParseMoney(string(n), 0)
}

// Count returns the value rounded to the nearest integer (0 for garbage)
func (n FlexNumber) Count() int64 {
	return valueobject.ParseCount(string(n))
}

// Ratio returns the value rounded to ratio precision (0 for garbage)
func (n FlexNumber) Ratio() float64 {
	return valueobject.ParseRatio(string(n))
}

// Float returns the unrounded value (0 for garbage)
func (n FlexNumber) Float() float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(string(n)))
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// ---------------------------------------------------------------------------
// Raw ads payload
// ---------------------------------------------------------------------------

// ActionEntry is one {action_type, value} pair of an insight's actions arrays
type ActionEntry struct {
	ActionType string     `json:"action_type"`
	Value      FlexNumber `json:"value"`
}

// ActionList is an actions array. Entries that are not {action_type, value}
// objects are dropped, and a value that is not an array decodes as empty.
type ActionList []ActionEntry

// UnmarshalJSON never fails; malformed shapes read as absent
func (l *ActionList) UnmarshalJSON(data []byte) error {
	*l = nil
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make(ActionList, 0, len(items))
	for _, item := range items {
		var e ActionEntry
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	*l = out
	return nil
}

// RawInsight is one row of the ads platform's insights endpoint
type RawInsight struct {
	AccountID       string     `json:"account_id"`
	AccountName     string     `json:"account_name"`
	AccountCurrency string     `json:"account_currency"`
	CampaignID      string     `json:"campaign_id"`
	CampaignName    string     `json:"campaign_name"`
	DateStart       string     `json:"date_start"`
	DateStop        string     `json:"date_stop"`
	Spend           FlexNumber `json:"spend"`
	Impressions     FlexNumber `json:"impressions"`
	Clicks          FlexNumber `json:"clicks"`
	Reach           FlexNumber `json:"reach"`
	Frequency       FlexNumber `json:"frequency"`
	CTR             FlexNumber `json:"ctr"`
	CPC             FlexNumber `json:"cpc"`
	CPM             FlexNumber `json:"cpm"`

	InlineLinkClicks FlexNumber `json:"inline_link_clicks"`
	Conversions      FlexNumber `json:"conversions"`
	ConversionValues FlexNumber `json:"conversion_values"`
	ROAS             FlexNumber `json:"roas"`

	Actions             ActionList `json:"actions"`
	ActionValues        ActionList `json:"action_values"`
	WebsitePurchaseROAS ActionList `json:"website_purchase_roas"`
	PurchaseROAS        ActionList `json:"purchase_roas"`
	VideoPlayActions    ActionList `json:"video_play_actions"`
	VideoP25Watched     ActionList `json:"video_p25_watched_actions"`
	VideoP50Watched     ActionList `json:"video_p50_watched_actions"`
	VideoP75Watched     ActionList `json:"video_p75_watched_actions"`
	VideoP100Watched    ActionList `json:"video_p100_watched_actions"`
}

// EntityID returns the id of the entity the row reports on at the given level
func (r RawInsight) EntityID(t EntityType) string {
	if t == EntityTypeCampaign {
		return r.CampaignID
	}
	return r.AccountID
}

// DecodeRawInsight decodes one insight row field by field. A field whose
// shape does not match is left empty instead of rejecting the row; only a
// payload that is not a JSON object is an error.
func DecodeRawInsight(data []byte) (RawInsight, error) {
	var row RawInsight
	if err := json.Unmarshal(data, &row); err == nil {
		return row, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return RawInsight{}, fmt.Errorf("%w: insight row is not an object", ErrPlatformInvalidResponse)
	}
	row = RawInsight{}
	for name, value := range fields {
		single, err := json.Marshal(map[string]json.RawMessage{name: value})
		if err != nil {
			continue
		}
		var field RawInsight
		if err := json.Unmarshal(single, &field); err != nil {
			continue
		}
		mergeInsightField(&row, &field)
	}
	return row, nil
}

// mergeInsightField copies the non-empty fields of src into dst
func mergeInsightField(dst, src *RawInsight) {
	for _, f := range []struct{ dst, src *string }{
		{&dst.AccountID, &src.AccountID},
		{&dst.AccountName, &src.AccountName},
		{&dst.AccountCurrency, &src.AccountCurrency},
		{&dst.CampaignID, &src.CampaignID},
		{&dst.CampaignName, &src.CampaignName},
		{&dst.DateStart, &src.DateStart},
		{&dst.DateStop, &src.DateStop},
	} {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
	for _, f := range []struct{ dst, src *FlexNumber }{
		{&dst.Spend, &src.Spend},
		{&dst.Impressions, &src.Impressions},
		{&dst.Clicks, &src.Clicks},
		{&dst.Reach, &src.Reach},
		{&dst.Frequency, &src.Frequency},
		{&dst.CTR, &src.CTR},
		{&dst.CPC, &src.CPC},
		{&dst.CPM, &src.CPM},
		{&dst.InlineLinkClicks, &src.InlineLinkClicks},
		{&dst.Conversions, &src.Conversions},
		{&dst.ConversionValues, &src.ConversionValues},
		{&dst.ROAS, &src.ROAS},
	} {
		if *f.src != "" {
			*f.dst = *f.src
		}
	}
	for _, f := range []struct{ dst, src *ActionList }{
		{&dst.Actions, &src.Actions},
		{&dst.ActionValues, &src.ActionValues},
		{&dst.WebsitePurchaseROAS, &src.WebsitePurchaseROAS},
		{&dst.PurchaseROAS, &src.PurchaseROAS},
		{&dst.VideoPlayActions, &src.VideoPlayActions},
		{&dst.VideoP25Watched, &src.VideoP25Watched},
		{&dst.VideoP50Watched, &src.VideoP50Watched},
		{&dst.VideoP75Watched, &src.VideoP75Watched},
		{&dst.VideoP100Watched, &src.VideoP100Watched},
	} {
		if *f.src != nil {
			*f.dst = *f.src
		}
	}
}

// ---------------------------------------------------------------------------
// CanonicalInsightRecord
// ---------------------------------------------------------------------------

// EntityType is the level an insight row is reported at
type EntityType string

const (
	// EntityTypeAccount is an account-level daily row
	EntityTypeAccount EntityType = "account"
	// EntityTypeCampaign is a campaign-level daily row
	EntityTypeCampaign EntityType = "campaign"
)

// IsValid returns true if the entity type is known
func (t EntityType) IsValid() bool {
	return t == EntityTypeAccount || t == EntityTypeCampaign
}

// InsightKey is the natural upsert key of an insight record
type InsightKey struct {
	OrganizationID uuid.UUID
	EntityType     EntityType
	EntityID       string
	Date           string
}

// CanonicalInsightRecord is the normalized daily metrics row.
// Currency fields always carry exactly 2 decimal places.
type CanonicalInsightRecord struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	EntityType     EntityType
	EntityID       string
	EntityName     string
	AccountID      string
	Date           string
	Currency       string

	Spend             float64
	Impressions       int64
	Clicks            int64
	Reach             int64
	Frequency         float64
	CTR               float64
	CPC               float64
	CPM               float64
	Conversions       int64
	ConversionValue   float64
	CostPerConversion float64
	ROAS              float64

	LinkClicks       int64
	LandingPageViews int64
	AddToCart        int64
	InitiateCheckout int64
	AddPaymentInfo   int64
	VideoViews       int64
	VideoP25         int64
	VideoP50         int64
	VideoP75         int64
	VideoP100        int64

	SyncedAt time.Time
}

// Key returns the record's natural key
func (r *CanonicalInsightRecord) Key() InsightKey {
	return InsightKey{
		OrganizationID: r.OrganizationID,
		EntityType:     r.EntityType,
		EntityID:       r.EntityID,
		Date:           r.Date,
	}
}

// SameMetrics reports whether two records carry identical data, ignoring identity and sync time
func (r *CanonicalInsightRecord) SameMetrics(o *CanonicalInsightRecord) bool {
	a, b := *r, *o
	a.ID, b.ID = uuid.Nil, uuid.Nil
	a.SyncedAt, b.SyncedAt = time.Time{}, time.Time{}
	return a == b
}
