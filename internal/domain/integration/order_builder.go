package integration

import (
	"time"

	"github.com/google/uuid"

	"github.com/adsync/backend/internal/domain/shared/valueobject"
)

// ---------------------------------------------------------------------------
// Raw storefront payload
// ---------------------------------------------------------------------------

// RawMoney is the storefront's MoneyV2 shape
type RawMoney struct {
	Amount       FlexNumber `json:"amount"`
	CurrencyCode string     `json:"currencyCode"`
}

// RawMoneyBag is the storefront's MoneyBag shape; only shop money is used
type RawMoneyBag struct {
	ShopMoney RawMoney `json:"shopMoney"`
}

// RawOrder is one order node of the storefront's orders connection
type RawOrder struct {
	ID                        string      `json:"id"`
	Name                      string      `json:"name"`
	CreatedAt                 string      `json:"createdAt"`
	UpdatedAt                 string      `json:"updatedAt"`
	CancelledAt               *string     `json:"cancelledAt"`
	Test                      bool        `json:"test"`
	CurrencyCode              string      `json:"currencyCode"`
	SubtotalLineItemsQuantity FlexNumber  `json:"subtotalLineItemsQuantity"`
	TotalPriceSet             RawMoneyBag `json:"totalPriceSet"`
	SubtotalPriceSet          RawMoneyBag `json:"subtotalPriceSet"`
	TotalTaxSet               RawMoneyBag `json:"totalTaxSet"`
	TotalDiscountsSet         RawMoneyBag `json:"totalDiscountsSet"`
	TotalShippingPriceSet     RawMoneyBag `json:"totalShippingPriceSet"`
	TotalRefundedSet          RawMoneyBag `json:"totalRefundedSet"`
}

// ---------------------------------------------------------------------------
// CanonicalOrderRecord
// ---------------------------------------------------------------------------

// OrderKey is the natural upsert key of an order record
type OrderKey struct {
	OrganizationID uuid.UUID
	OrderID        string
}

// CanonicalOrderRecord is the normalized storefront order
type CanonicalOrderRecord struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	OrderID        string
	OrderName      string
	Date           string
	Currency       string
	TotalPrice     float64
	SubtotalPrice  float64
	TotalTax       float64
	TotalDiscounts float64
	TotalShipping  float64
	TotalRefunded  float64
	NetSales       float64
	LineItemCount  int64
	Cancelled      bool
	Test           bool
	SyncedAt       time.Time
}

// Key returns the record's natural key
func (r *CanonicalOrderRecord) Key() OrderKey {
	return OrderKey{OrganizationID: r.OrganizationID, OrderID: r.OrderID}
}

// SameMetrics reports whether two records carry identical data, ignoring identity and sync time
func (r *CanonicalOrderRecord) SameMetrics(o *CanonicalOrderRecord) bool {
	a, b := *r, *o
	a.ID, b.ID = uuid.Nil, uuid.Nil
	a.SyncedAt, b.SyncedAt = time.Time{}, time.Time{}
	return a == b
}

// BuildOrderRecord maps one raw order into a canonical record.
// The order date is the UTC calendar date of createdAt, else fallbackDate.
func BuildOrderRecord(orgID uuid.UUID, raw RawOrder, fallbackDate string) CanonicalOrderRecord {
	rec := CanonicalOrderRecord{
		OrganizationID: orgID,
		OrderID:        raw.ID,
		OrderName:      raw.Name,
		Date:           fallbackDate,
		Cancelled:      raw.CancelledAt != nil && *raw.CancelledAt != "",
		Test:           raw.Test,
		LineItemCount:  raw.SubtotalLineItemsQuantity.Count(),
		TotalPrice:     raw.TotalPriceSet.ShopMoney.Amount.Money(),
		SubtotalPrice:  raw.SubtotalPriceSet.ShopMoney.Amount.Money(),
		TotalTax:       raw.TotalTaxSet.ShopMoney.Amount.Money(),
		TotalDiscounts: raw.TotalDiscountsSet.ShopMoney.Amount.Money(),
		TotalShipping:  raw.TotalShippingPriceSet.ShopMoney.Amount.Money(),
		TotalRefunded:  raw.TotalRefundedSet.ShopMoney.Amount.Money(),
	}
	if t, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
		rec.Date = t.UTC().Format(DateLayout)
	}

	rec.Currency = valueobject.NormalizeCurrency(raw.CurrencyCode)
	if rec.Currency == "" {
		rec.Currency = valueobject.NormalizeCurrency(raw.TotalPriceSet.ShopMoney.CurrencyCode)
	}
	rec.NetSales = valueobject.SumMoney(rec.SubtotalPrice, -rec.TotalRefunded)

	return rec
}
