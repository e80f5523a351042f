package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/domain/shared/valueobject"
)

// ---------------------------------------------------------------------------
// InsightRecordModel
// ---------------------------------------------------------------------------

// InsightRecordModel is the persistence model for canonical daily insight rows.
// Money columns are numeric(18,2); ratios keep four decimal places.
type InsightRecordModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_insight_records_key,priority:1;index:idx_insight_records_org_date,priority:1"`
	EntityType     string    `gorm:"type:varchar(20);not null;uniqueIndex:uq_insight_records_key,priority:2;index:idx_insight_records_entity_date,priority:1"`
	EntityID       string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_insight_records_key,priority:3;index:idx_insight_records_entity_date,priority:2"`
	EntityName     string    `gorm:"type:varchar(255)"`
	AccountID      string    `gorm:"type:varchar(64)"`
	Date           string    `gorm:"type:varchar(10);not null;uniqueIndex:uq_insight_records_key,priority:4;index:idx_insight_records_org_date,priority:2;index:idx_insight_records_entity_date,priority:3"`
	Currency       string    `gorm:"type:varchar(3)"`

	Spend             decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	Impressions       int64           `gorm:"not null;default:0"`
	Clicks            int64           `gorm:"not null;default:0"`
	Reach             int64           `gorm:"not null;default:0"`
	Frequency         float64         `gorm:"type:numeric(12,4);not null;default:0"`
	CTR               float64         `gorm:"column:ctr;type:numeric(12,4);not null;default:0"`
	CPC               decimal.Decimal `gorm:"column:cpc;type:numeric(18,2);not null;default:0"`
	CPM               decimal.Decimal `gorm:"column:cpm;type:numeric(18,2);not null;default:0"`
	Conversions       int64           `gorm:"not null;default:0"`
	ConversionValue   decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	CostPerConversion decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	ROAS              float64         `gorm:"column:roas;type:numeric(12,4);not null;default:0"`

	LinkClicks       int64 `gorm:"not null;default:0"`
	LandingPageViews int64 `gorm:"not null;default:0"`
	AddToCart        int64 `gorm:"not null;default:0"`
	InitiateCheckout int64 `gorm:"not null;default:0"`
	AddPaymentInfo   int64 `gorm:"not null;default:0"`
	VideoViews       int64 `gorm:"not null;default:0"`
	VideoP25         int64 `gorm:"column:video_p25;not null;default:0"`
	VideoP50         int64 `gorm:"column:video_p50;not null;default:0"`
	VideoP75         int64 `gorm:"column:video_p75;not null;default:0"`
	VideoP100        int64 `gorm:"column:video_p100;not null;default:0"`

	SyncedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InsightRecordModel) TableName() string {
	return "insight_records"
}

// ToDomain converts the persistence model to a domain record
func (m *InsightRecordModel) ToDomain() *integration.CanonicalInsightRecord {
	return &integration.CanonicalInsightRecord{
		ID:                m.ID,
		OrganizationID:    m.OrganizationID,
		EntityType:        integration.EntityType(m.EntityType),
		EntityID:          m.EntityID,
		EntityName:        m.EntityName,
		AccountID:         m.AccountID,
		Date:              m.Date,
		Currency:          m.Currency,
		Spend:             m.Spend.InexactFloat64(),
		Impressions:       m.Impressions,
		Clicks:            m.Clicks,
		Reach:             m.Reach,
		Frequency:         m.Frequency,
		CTR:               m.CTR,
		CPC:               m.CPC.InexactFloat64(),
		CPM:               m.CPM.InexactFloat64(),
		Conversions:       m.Conversions,
		ConversionValue:   m.ConversionValue.InexactFloat64(),
		CostPerConversion: m.CostPerConversion.InexactFloat64(),
		ROAS:              m.ROAS,
		LinkClicks:        m.LinkClicks,
		LandingPageViews:  m.LandingPageViews,
		AddToCart:         m.AddToCart,
		InitiateCheckout:  m.InitiateCheckout,
		AddPaymentInfo:    m.AddPaymentInfo,
		VideoViews:        m.VideoViews,
		VideoP25:          m.VideoP25,
		VideoP50:          m.VideoP50,
		VideoP75:          m.VideoP75,
		VideoP100:         m.VideoP100,
		SyncedAt:          m.SyncedAt,
	}
}

// InsightRecordModelFromDomain creates a persistence model, rounding money columns to cents
func InsightRecordModelFromDomain(r *integration.CanonicalInsightRecord) *InsightRecordModel {
	return &InsightRecordModel{
		ID:                r.ID,
		OrganizationID:    r.OrganizationID,
		EntityType:        string(r.EntityType),
		EntityID:          r.EntityID,
		EntityName:        r.EntityName,
		AccountID:         r.AccountID,
		Date:              r.Date,
		Currency:          r.Currency,
		Spend:             valueobject.MoneyDecimal(r.Spend),
		Impressions:       r.Impressions,
		Clicks:            r.Clicks,
		Reach:             r.Reach,
		Frequency:         r.Frequency,
		CTR:               r.CTR,
		CPC:               valueobject.MoneyDecimal(r.CPC),
		CPM:               valueobject.MoneyDecimal(r.CPM),
		Conversions:       r.Conversions,
		ConversionValue:   valueobject.MoneyDecimal(r.ConversionValue),
		CostPerConversion: valueobject.MoneyDecimal(r.CostPerConversion),
		ROAS:              r.ROAS,
		LinkClicks:        r.LinkClicks,
		LandingPageViews:  r.LandingPageViews,
		AddToCart:         r.AddToCart,
		InitiateCheckout:  r.InitiateCheckout,
		AddPaymentInfo:    r.AddPaymentInfo,
		VideoViews:        r.VideoViews,
		VideoP25:          r.VideoP25,
		VideoP50:          r.VideoP50,
		VideoP75:          r.VideoP75,
		VideoP100:         r.VideoP100,
		SyncedAt:          r.SyncedAt,
	}
}

// ---------------------------------------------------------------------------
// OrderRecordModel
// ---------------------------------------------------------------------------

// OrderRecordModel is the persistence model for canonical storefront orders
type OrderRecordModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_order_records_key,priority:1;index:idx_order_records_org_date,priority:1"`
	OrderID        string          `gorm:"type:varchar(100);not null;uniqueIndex:uq_order_records_key,priority:2"`
	OrderName      string          `gorm:"type:varchar(100)"`
	Date           string          `gorm:"type:varchar(10);not null;index:idx_order_records_org_date,priority:2"`
	Currency       string          `gorm:"type:varchar(3)"`
	TotalPrice     decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	SubtotalPrice  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	TotalTax       decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	TotalDiscounts decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	TotalShipping  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	TotalRefunded  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	NetSales       decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	LineItemCount  int64           `gorm:"not null;default:0"`
	Cancelled      bool            `gorm:"not null;default:false"`
	Test           bool            `gorm:"not null;default:false"`
	SyncedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderRecordModel) TableName() string {
	return "order_records"
}

// ToDomain converts the persistence model to a domain record
func (m *OrderRecordModel) ToDomain() *integration.CanonicalOrderRecord {
	return &integration.CanonicalOrderRecord{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		OrderID:        m.OrderID,
		OrderName:      m.OrderName,
		Date:           m.Date,
		Currency:       m.Currency,
		TotalPrice:     m.TotalPrice.InexactFloat64(),
		SubtotalPrice:  m.SubtotalPrice.InexactFloat64(),
		TotalTax:       m.TotalTax.InexactFloat64(),
		TotalDiscounts: m.TotalDiscounts.InexactFloat64(),
		TotalShipping:  m.TotalShipping.InexactFloat64(),
		TotalRefunded:  m.TotalRefunded.InexactFloat64(),
		NetSales:       m.NetSales.InexactFloat64(),
		LineItemCount:  m.LineItemCount,
		Cancelled:      m.Cancelled,
		Test:           m.Test,
		SyncedAt:       m.SyncedAt,
	}
}

// OrderRecordModelFromDomain creates a persistence model, rounding money columns to cents
func OrderRecordModelFromDomain(r *integration.CanonicalOrderRecord) *OrderRecordModel {
	return &OrderRecordModel{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		OrderID:        r.OrderID,
		OrderName:      r.OrderName,
		Date:           r.Date,
		Currency:       r.Currency,
		TotalPrice:     valueobject.MoneyDecimal(r.TotalPrice),
		SubtotalPrice:  valueobject.MoneyDecimal(r.SubtotalPrice),
		TotalTax:       valueobject.MoneyDecimal(r.TotalTax),
		TotalDiscounts: valueobject.MoneyDecimal(r.TotalDiscounts),
		TotalShipping:  valueobject.MoneyDecimal(r.TotalShipping),
		TotalRefunded:  valueobject.MoneyDecimal(r.TotalRefunded),
		NetSales:       valueobject.MoneyDecimal(r.NetSales),
		LineItemCount:  r.LineItemCount,
		Cancelled:      r.Cancelled,
		Test:           r.Test,
		SyncedAt:       r.SyncedAt,
	}
}

// ---------------------------------------------------------------------------
// PlatformConnectionModel
// ---------------------------------------------------------------------------

// PlatformConnectionModel is the persistence model for platform connections.
// Rows are written by the onboarding flow; the sync core only reads them.
type PlatformConnectionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_platform_connections_org_platform,priority:1"`
	Platform       string    `gorm:"type:varchar(20);not null;uniqueIndex:uq_platform_connections_org_platform,priority:2"`
	AccountID      string    `gorm:"type:varchar(64)"`
	ShopDomain     string    `gorm:"type:varchar(255)"`
	AccessToken    string    `gorm:"type:text"`
	Status         string    `gorm:"type:varchar(20);not null;default:'active'"`
	Enabled        bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM
func (PlatformConnectionModel) TableName() string {
	return "platform_connections"
}

// ToDomain converts the persistence model to a domain PlatformConnection
func (m *PlatformConnectionModel) ToDomain() *integration.PlatformConnection {
	return &integration.PlatformConnection{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Platform:       integration.PlatformCode(m.Platform),
		AccountID:      m.AccountID,
		ShopDomain:     m.ShopDomain,
		AccessToken:    m.AccessToken,
		Status:         integration.ConnectionStatus(m.Status),
		Enabled:        m.Enabled,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// PlatformConnectionModelFromDomain creates a persistence model from a domain PlatformConnection
func PlatformConnectionModelFromDomain(c *integration.PlatformConnection) *PlatformConnectionModel {
	return &PlatformConnectionModel{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		Platform:       string(c.Platform),
		AccountID:      c.AccountID,
		ShopDomain:     c.ShopDomain,
		AccessToken:    c.AccessToken,
		Status:         string(c.Status),
		Enabled:        c.Enabled,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
