package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adsync/backend/internal/domain/shared/valueobject"
)

// ---------------------------------------------------------------------------
// Alias tables
// ---------------------------------------------------------------------------

// insightMetric names a canonical bucket filled from the actions arrays
type insightMetric string

const (
	metricPurchases        insightMetric = "purchases"
	metricAddToCart        insightMetric = "add_to_cart"
	metricInitiateCheckout insightMetric = "initiate_checkout"
	metricAddPaymentInfo   insightMetric = "add_payment_info"
	metricLinkClicks       insightMetric = "link_clicks"
	metricLandingPageViews insightMetric = "landing_page_views"
	metricVideoViews       insightMetric = "video_views"
	metricPurchaseValue    insightMetric = "purchase_value"
)

// actionAlias lists the action types feeding one metric, highest priority first.
// The aliases report overlapping aggregates, so only the first present alias counts.
type actionAlias struct {
	metric  insightMetric
	aliases []string
}

var actionAliases = []actionAlias{
	{metricPurchases, []string{
		"purchase",
		"omni_purchase",
		"offline_conversion.purchase",
		"offsite_conversion.fb_pixel_purchase",
	}},
	{metricAddToCart, []string{
		"add_to_cart",
		"omni_add_to_cart",
		"offsite_conversion.fb_pixel_add_to_cart",
	}},
	{metricInitiateCheckout, []string{
		"initiate_checkout",
		"omni_initiated_checkout",
		"offsite_conversion.fb_pixel_initiate_checkout",
	}},
	{metricAddPaymentInfo, []string{
		"add_payment_info",
		"offsite_conversion.fb_pixel_add_payment_info",
	}},
	{metricLinkClicks, []string{"link_click"}},
	{metricLandingPageViews, []string{"landing_page_view", "omni_landing_page_view"}},
	{metricVideoViews, []string{"video_view"}},
}

var actionValueAliases = []actionAlias{
	{metricPurchaseValue, []string{
		"purchase",
		"omni_purchase",
		"offline_conversion.purchase",
		"offsite_conversion.fb_pixel_purchase",
	}},
}

// roasActionTypes are the entries of the ROAS arrays that represent purchase ROAS
var roasActionTypes = map[string]bool{
	"purchase":      true,
	"omni_purchase": true,
}

// scanActions walks entries once, summing duplicate rows per action type, then
// resolves every metric of the table to the value of its first present alias.
func scanActions(entries []ActionEntry, table []actionAlias) map[insightMetric]decimal.Decimal {
	byType := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		t := strings.TrimSpace(e.ActionType)
		if t == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(string(e.Value)))
		if err != nil {
			d = decimal.Zero
		}
		byType[t] = byType[t].Add(d)
	}

	buckets := make(map[insightMetric]decimal.Decimal, len(table))
	for _, row := range table {
		for _, alias := range row.aliases {
			if v, ok := byType[alias]; ok {
				buckets[row.metric] = v
				break
			}
		}
	}
	return buckets
}

// sumEntries adds every value of an actions array regardless of type
func sumEntries(entries []ActionEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if d, err := decimal.NewFromString(strings.TrimSpace(string(e.Value))); err == nil {
			total = total.Add(d)
		}
	}
	return total
}

func decimalCount(d decimal.Decimal) int64 {
	return valueobject.RoundHalfUp(d, 0).IntPart()
}

// positiveCount prefers the actions-derived count when strictly positive, else the flat field
func positiveCount(fromActions decimal.Decimal, flat FlexNumber) int64 {
	if n := decimalCount(fromActions); n > 0 {
		return n
	}
	return flat.Count()
}

// positiveMoney prefers the actions-derived amount when strictly positive, else the flat field
func positiveMoney(fromActions decimal.Decimal, flat FlexNumber) float64 {
	if v := valueobject.RoundHalfUp(fromActions, valueobject.MoneyPlaces); v.IsPositive() {
		return v.InexactFloat64()
	}
	return flat.Money()
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// BuildInsightRecord maps one raw insight row into a canonical record.
// It never fails: unparsable numeric fields read as 0. fallbackDate is used
// when the row echoes neither date_start nor date_stop.
func BuildInsightRecord(orgID uuid.UUID, entityType EntityType, raw RawInsight, fallbackDate string) CanonicalInsightRecord {
	counts := scanActions(raw.Actions, actionAliases)
	values := scanActions(raw.ActionValues, actionValueAliases)

	rec := CanonicalInsightRecord{
		OrganizationID: orgID,
		EntityType:     entityType,
		AccountID:      raw.AccountID,
		Date:           raw.DateStart,
		Currency:       valueobject.NormalizeCurrency(raw.AccountCurrency),
	}
	if rec.Date == "" {
		rec.Date = raw.DateStop
	}
	if rec.Date == "" {
		rec.Date = fallbackDate
	}
	rec.EntityID = raw.EntityID(entityType)
	if entityType == EntityTypeCampaign {
		rec.EntityName = raw.CampaignName
	} else {
		rec.EntityName = raw.AccountName
	}

	rec.Spend = raw.Spend.Money()
	rec.Impressions = raw.Impressions.Count()
	rec.Clicks = raw.Clicks.Count()
	rec.Reach = raw.Reach.Count()

	rec.Frequency = resolveFrequency(raw.Frequency, rec.Impressions, rec.Reach)
	rec.CTR = resolveCTR(raw.CTR, rec.Clicks, rec.Impressions)
	rec.CPC = resolveCostPer(raw.CPC, rec.Spend, rec.Clicks, 1)
	rec.CPM = resolveCostPer(raw.CPM, rec.Spend, rec.Impressions, 1000)

	rec.LinkClicks = positiveCount(counts[metricLinkClicks], raw.InlineLinkClicks)
	rec.Conversions = positiveCount(counts[metricPurchases], raw.Conversions)
	rec.ConversionValue = positiveMoney(values[metricPurchaseValue], raw.ConversionValues)

	rec.VideoViews = decimalCount(counts[metricVideoViews])
	if rec.VideoViews <= 0 {
		rec.VideoViews = decimalCount(sumEntries(raw.VideoPlayActions))
	}
	rec.VideoP25 = decimalCount(sumEntries(raw.VideoP25Watched))
	rec.VideoP50 = decimalCount(sumEntries(raw.VideoP50Watched))
	rec.VideoP75 = decimalCount(sumEntries(raw.VideoP75Watched))
	rec.VideoP100 = decimalCount(sumEntries(raw.VideoP100Watched))

	rec.LandingPageViews = decimalCount(counts[metricLandingPageViews])
	rec.AddToCart = decimalCount(counts[metricAddToCart])
	rec.InitiateCheckout = decimalCount(counts[metricInitiateCheckout])
	rec.AddPaymentInfo = decimalCount(counts[metricAddPaymentInfo])

	if rec.Conversions > 0 {
		rec.CostPerConversion = valueobject.DivideMoney(rec.Spend, float64(rec.Conversions))
	}
	rec.ROAS = resolveROAS(raw, rec.ConversionValue, rec.Spend)

	return rec
}

// resolveROAS walks the three tiers in order and stops at the first that yields a value:
// the platform ROAS arrays, the single-value roas field, then value / spend.
func resolveROAS(raw RawInsight, conversionValue, spend float64) float64 {
	for _, arr := range [][]ActionEntry{raw.WebsitePurchaseROAS, raw.PurchaseROAS} {
		for _, e := range arr {
			if roasActionTypes[e.ActionType] && e.Value.IsSet() {
				return e.Value.Ratio()
			}
		}
	}
	if raw.ROAS.IsSet() {
		return raw.ROAS.Ratio()
	}
	if spend > 0 {
		return valueobject.RoundRatio(conversionValue / spend)
	}
	return 0
}

func resolveFrequency(flat FlexNumber, impressions, reach int64) float64 {
	if flat.IsSet() {
		return flat.Ratio()
	}
	if reach > 0 {
		return valueobject.RoundRatio(float64(impressions) / float64(reach))
	}
	return 0
}

func resolveCTR(flat FlexNumber, clicks, impressions int64) float64 {
	if flat.IsSet() {
		return flat.Ratio()
	}
	if impressions > 0 {
		return valueobject.RoundRatio(float64(clicks) / float64(impressions) * 100)
	}
	return 0
}

func resolveCostPer(flat FlexNumber, spend float64, units int64, per float64) float64 {
	if flat.IsSet() {
		return flat.Money()
	}
	if units > 0 {
		return valueobject.DivideMoney(spend*per, float64(units))
	}
	return 0
}

// ---------------------------------------------------------------------------
// Fallback dates
// ---------------------------------------------------------------------------

// InsightDates assigns fallback dates to daily rows that omit their own date.
// Daily rows of one entity arrive in ascending date order, so a dateless row
// takes the day after that entity's previous row, starting at the range start
// and never passing the range end.
type InsightDates struct {
	start string
	end   string
	last  map[string]string
}

// NewInsightDates returns a fallback tracker for one requested range
func NewInsightDates(r DateRange) *InsightDates {
	return &InsightDates{start: r.Start, end: r.End, last: make(map[string]string)}
}

// Fallback returns the date a dateless row of the entity should take
func (d *InsightDates) Fallback(entityID string) string {
	last, ok := d.last[entityID]
	if !ok {
		return d.start
	}
	t, err := time.Parse(DateLayout, last)
	if err != nil {
		return d.end
	}
	next := t.AddDate(0, 0, 1).Format(DateLayout)
	if next > d.end {
		return d.end
	}
	return next
}

// Observe records the date a row of the entity was stored under
func (d *InsightDates) Observe(entityID, date string) {
	d.last[entityID] = date
}
