package dto

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/adsync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// InitialSyncRequest seeds historical backfills for a newly connected tenant.
// An empty platform list means every platform with an active connection.
type InitialSyncRequest struct {
	OrganizationID string   `json:"organizationId" binding:"required,uuid"`
	Platforms      []string `json:"platforms" binding:"omitempty,dive,oneof=storefront ads"`
}

// ScheduleRequest asks the scheduler for the tenant's next incremental sync
type ScheduleRequest struct {
	OrganizationID string   `json:"organizationId" binding:"required,uuid"`
	Platforms      []string `json:"platforms" binding:"omitempty,dive,oneof=storefront ads"`
}

// DateRangeRequest is an inclusive YYYY-MM-DD range
type DateRangeRequest struct {
	Start string `json:"start" binding:"required,datetime=2006-01-02"`
	End   string `json:"end" binding:"required,datetime=2006-01-02"`
}

// ManualSyncRequest enqueues an operator-triggered sync for one platform
type ManualSyncRequest struct {
	OrganizationID string            `json:"organizationId" binding:"required,uuid"`
	Platform       string            `json:"platform" binding:"required,oneof=storefront ads"`
	DateRange      *DateRangeRequest `json:"dateRange" binding:"omitempty"`
}

// ActivityRequest records a new activity score sample
type ActivityRequest struct {
	Score *int `json:"score" binding:"required,min=0,max=100"`
}

// BusinessHoursRequest toggles business-hours snapping for a tenant
type BusinessHoursRequest struct {
	Enabled  *bool  `json:"enabled" binding:"required"`
	Timezone string `json:"timezone" binding:"omitempty,timezone"`
}

// OrgURI binds the :org path parameter
type OrgURI struct {
	Org string `uri:"org" binding:"required,uuid"`
}

// SessionListQuery filters GET /sessions
type SessionListQuery struct {
	PageRequest
	OrganizationID string `form:"organization_id" binding:"omitempty,uuid"`
	Platform       string `form:"platform" binding:"omitempty,oneof=storefront ads"`
	Status         string `form:"status" binding:"omitempty,oneof=pending processing syncing complete failed"`
	SortBy         string `form:"sort_by" binding:"omitempty,oneof=started_at completed_at records_processed status platform"`
	SortOrder      string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// HistoryQuery selects worker pool history
type HistoryQuery struct {
	Limit  int  `form:"limit" binding:"omitempty,min=1,max=500"`
	Failed bool `form:"failed"`
}

// DefaultHistoryLimit is used when the caller omits limit
const DefaultHistoryLimit = 50

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// ParsePlatforms converts platform strings to codes, dropping duplicates
func ParsePlatforms(values []string) ([]integration.PlatformCode, error) {
	if len(values) == 0 {
		return nil, nil
	}
	seen := make(map[integration.PlatformCode]bool, len(values))
	out := make([]integration.PlatformCode, 0, len(values))
	for _, v := range values {
		code, err := integration.ParsePlatformCode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, v)
		}
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out, nil
}

// ToDateRange converts the request range, rejecting an end before start
func (r *DateRangeRequest) ToDateRange() (*integration.DateRange, error) {
	if r == nil {
		return nil, nil
	}
	dr := integration.DateRange{Start: r.Start, End: r.End}
	if _, _, err := dr.Bounds(); err != nil {
		return nil, err
	}
	return &dr, nil
}

// ToFilter converts the query to a repository filter. Values must already be validated.
func (q SessionListQuery) ToFilter() integration.SessionFilter {
	q.Normalize()
	filter := integration.SessionFilter{
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	}
	if q.OrganizationID != "" {
		if id, err := uuid.Parse(q.OrganizationID); err == nil {
			filter.OrganizationID = &id
		}
	}
	if q.Platform != "" {
		p := integration.PlatformCode(q.Platform)
		filter.Platform = &p
	}
	if q.Status != "" {
		s := integration.SessionStatus(q.Status)
		filter.Status = &s
	}
	return filter
}

// EffectiveLimit returns the requested limit or DefaultHistoryLimit
func (q HistoryQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}
