package integration

import (
	"time"

	"github.com/google/uuid"

	"github.com/adsync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Sync Profile DTOs
// ---------------------------------------------------------------------------

// ProfileResponse represents a sync profile in API responses
type ProfileResponse struct {
	OrganizationID       uuid.UUID                    `json:"organizationId"`
	ActivityScore        int                          `json:"activityScore"`
	ActivityHistory      []integration.ActivitySample `json:"activityHistory"`
	SyncTier             integration.SyncTier         `json:"syncTier"`
	SyncIntervalMs       int64                        `json:"syncIntervalMs"`
	NextScheduledSync    *time.Time                   `json:"nextScheduledSync,omitempty"`
	LastScheduledAt      *time.Time                   `json:"lastScheduledAt,omitempty"`
	BusinessHoursEnabled bool                         `json:"businessHoursEnabled"`
	Timezone             string                       `json:"timezone,omitempty"`
	Paused               bool                         `json:"paused"`
	UpdatedAt            time.Time                    `json:"updatedAt"`
}

// ToProfileResponse converts a domain profile
func ToProfileResponse(p *integration.SyncProfile) ProfileResponse {
	return ProfileResponse{
		OrganizationID:       p.OrganizationID,
		ActivityScore:        p.ActivityScore,
		ActivityHistory:      p.ActivityHistory,
		SyncTier:             p.SyncTier,
		SyncIntervalMs:       p.SyncInterval.Milliseconds(),
		NextScheduledSync:    optionalTime(p.NextScheduledSync),
		LastScheduledAt:      optionalTime(p.LastScheduledAt),
		BusinessHoursEnabled: p.BusinessHoursEnabled,
		Timezone:             p.Timezone,
		Paused:               p.Paused,
		UpdatedAt:            p.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Sync Session DTOs
// ---------------------------------------------------------------------------

// SessionResponse represents a sync session in API responses
type SessionResponse struct {
	ID               uuid.UUID                 `json:"id"`
	OrganizationID   uuid.UUID                 `json:"organizationId"`
	Platform         integration.PlatformCode  `json:"platform"`
	JobID            uuid.UUID                 `json:"jobId"`
	Status           integration.SessionStatus `json:"status"`
	StartedAt        time.Time                 `json:"startedAt"`
	CompletedAt      *time.Time                `json:"completedAt,omitempty"`
	DurationMs       int64                     `json:"durationMs"`
	RecordsProcessed int64                     `json:"recordsProcessed"`
	OrdersProcessed  int64                     `json:"ordersProcessed,omitempty"`
	TotalOrdersSeen  int64                     `json:"totalOrdersSeen,omitempty"`
	DataChanged      bool                      `json:"dataChanged"`
	Errors           []string                  `json:"errors"`
}

// ToSessionResponse converts a domain session; now bounds running sessions' duration
func ToSessionResponse(s *integration.SyncSession, now time.Time) SessionResponse {
	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}
	return SessionResponse{
		ID:               s.ID,
		OrganizationID:   s.OrganizationID,
		Platform:         s.Platform,
		JobID:            s.JobID,
		Status:           s.Status,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		DurationMs:       s.Duration(now).Milliseconds(),
		RecordsProcessed: s.RecordsProcessed,
		OrdersProcessed:  s.OrdersProcessed,
		TotalOrdersSeen:  s.TotalOrdersSeen,
		DataChanged:      s.DataChanged,
		Errors:           errs,
	}
}

// ToSessionResponses converts a slice of sessions
func ToSessionResponses(sessions []*integration.SyncSession, now time.Time) []SessionResponse {
	out := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = ToSessionResponse(s, now)
	}
	return out
}

// ---------------------------------------------------------------------------
// Job DTOs
// ---------------------------------------------------------------------------

// JobResponse represents an enqueued job in API responses
type JobResponse struct {
	ID        uuid.UUID              `json:"id"`
	Type      integration.JobType    `json:"type"`
	Priority  string                 `json:"priority"`
	Payload   integration.JobPayload `json:"payload"`
	RunAt     time.Time              `json:"runAt"`
	Attempt   int                    `json:"attempt"`
	Status    integration.JobStatus  `json:"status"`
	CreatedAt time.Time              `json:"createdAt"`
}

// ToJobResponse converts a domain job
func ToJobResponse(j *integration.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Priority:  j.Priority.String(),
		Payload:   j.Payload,
		RunAt:     j.RunAt,
		Attempt:   j.Attempt,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
	}
}

// ToJobResponses converts a slice of jobs
func ToJobResponses(jobs []*integration.Job) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = ToJobResponse(j)
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
