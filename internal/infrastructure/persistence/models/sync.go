package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/adsync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// SyncProfileModel
// ---------------------------------------------------------------------------

// SyncProfileModel is the persistence model for the SyncProfile entity.
// Durations are stored in milliseconds.
type SyncProfileModel struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OrganizationID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_sync_profiles_organization"`
	ActivityScore        int        `gorm:"not null;default:50"`
	ActivityHistoryJSON  string     `gorm:"type:jsonb;column:activity_history"`
	SyncIntervalMs       int64      `gorm:"not null"`
	SyncTier             string     `gorm:"type:varchar(10);not null"`
	NextScheduledSync    *time.Time `gorm:"index:idx_sync_profiles_due,priority:2"`
	LastScheduledAt      *time.Time
	BusinessHoursEnabled bool   `gorm:"not null;default:false"`
	Timezone             string `gorm:"type:varchar(64)"`
	Paused               bool   `gorm:"not null;default:false;index:idx_sync_profiles_due,priority:1"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName returns the table name for GORM
func (SyncProfileModel) TableName() string {
	return "sync_profiles"
}

// ToDomain converts the persistence model to a domain SyncProfile
func (m *SyncProfileModel) ToDomain() *integration.SyncProfile {
	p := &integration.SyncProfile{
		ID:                   m.ID,
		OrganizationID:       m.OrganizationID,
		ActivityScore:        m.ActivityScore,
		ActivityHistory:      make([]integration.ActivitySample, 0),
		SyncInterval:         time.Duration(m.SyncIntervalMs) * time.Millisecond,
		SyncTier:             integration.SyncTier(m.SyncTier),
		BusinessHoursEnabled: m.BusinessHoursEnabled,
		Timezone:             m.Timezone,
		Paused:               m.Paused,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	if m.NextScheduledSync != nil {
		p.NextScheduledSync = *m.NextScheduledSync
	}
	if m.LastScheduledAt != nil {
		p.LastScheduledAt = *m.LastScheduledAt
	}
	if m.ActivityHistoryJSON != "" {
		var history []integration.ActivitySample
		if err := json.Unmarshal([]byte(m.ActivityHistoryJSON), &history); err == nil {
			p.ActivityHistory = history
		}
	}
	return p
}

// SyncProfileModelFromDomain creates a persistence model from a domain SyncProfile
func SyncProfileModelFromDomain(p *integration.SyncProfile) *SyncProfileModel {
	m := &SyncProfileModel{
		ID:                   p.ID,
		OrganizationID:       p.OrganizationID,
		ActivityScore:        p.ActivityScore,
		SyncIntervalMs:       p.SyncInterval.Milliseconds(),
		SyncTier:             string(p.SyncTier),
		NextScheduledSync:    optionalTime(p.NextScheduledSync),
		LastScheduledAt:      optionalTime(p.LastScheduledAt),
		BusinessHoursEnabled: p.BusinessHoursEnabled,
		Timezone:             p.Timezone,
		Paused:               p.Paused,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if data, err := json.Marshal(p.ActivityHistory); err == nil {
		m.ActivityHistoryJSON = string(data)
	}
	return m
}

// ---------------------------------------------------------------------------
// SyncSessionModel
// ---------------------------------------------------------------------------

// SyncSessionModel is the persistence model for the SyncSession entity.
// The partial unique index keeps at most one syncing session per organization and platform.
type SyncSessionModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OrganizationID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_sync_sessions_org_platform_status,priority:1;uniqueIndex:uq_sync_sessions_syncing,priority:1,where:status = 'syncing'"`
	Platform         string     `gorm:"type:varchar(20);not null;index:idx_sync_sessions_org_platform_status,priority:2;uniqueIndex:uq_sync_sessions_syncing,priority:2,where:status = 'syncing'"`
	JobID            *uuid.UUID `gorm:"type:uuid"`
	Status           string     `gorm:"type:varchar(20);not null;index:idx_sync_sessions_org_platform_status,priority:3"`
	StartedAt        time.Time  `gorm:"not null;index"`
	CompletedAt      *time.Time
	RecordsProcessed int64  `gorm:"not null;default:0"`
	OrdersProcessed  int64  `gorm:"not null;default:0"`
	TotalOrdersSeen  int64  `gorm:"not null;default:0"`
	DataChanged      bool   `gorm:"not null;default:false"`
	ErrorsJSON       string `gorm:"type:jsonb;column:errors"`
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (SyncSessionModel) TableName() string {
	return "sync_sessions"
}

// ToDomain converts the persistence model to a domain SyncSession
func (m *SyncSessionModel) ToDomain() *integration.SyncSession {
	s := &integration.SyncSession{
		ID:               m.ID,
		OrganizationID:   m.OrganizationID,
		Platform:         integration.PlatformCode(m.Platform),
		Status:           integration.SessionStatus(m.Status),
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		RecordsProcessed: m.RecordsProcessed,
		OrdersProcessed:  m.OrdersProcessed,
		TotalOrdersSeen:  m.TotalOrdersSeen,
		DataChanged:      m.DataChanged,
		Errors:           make([]string, 0),
		UpdatedAt:        m.UpdatedAt,
	}
	if m.JobID != nil {
		s.JobID = *m.JobID
	}
	if m.ErrorsJSON != "" {
		var errs []string
		if err := json.Unmarshal([]byte(m.ErrorsJSON), &errs); err == nil && errs != nil {
			s.Errors = errs
		}
	}
	return s
}

// SyncSessionModelFromDomain creates a persistence model from a domain SyncSession
func SyncSessionModelFromDomain(s *integration.SyncSession) *SyncSessionModel {
	m := &SyncSessionModel{
		ID:               s.ID,
		OrganizationID:   s.OrganizationID,
		Platform:         string(s.Platform),
		Status:           string(s.Status),
		StartedAt:        s.StartedAt.UTC(),
		CompletedAt:      s.CompletedAt,
		RecordsProcessed: s.RecordsProcessed,
		OrdersProcessed:  s.OrdersProcessed,
		TotalOrdersSeen:  s.TotalOrdersSeen,
		DataChanged:      s.DataChanged,
		ErrorsJSON:       "[]",
		UpdatedAt:        s.UpdatedAt,
	}
	if s.JobID != uuid.Nil {
		id := s.JobID
		m.JobID = &id
	}
	if len(s.Errors) > 0 {
		if data, err := json.Marshal(s.Errors); err == nil {
			m.ErrorsJSON = string(data)
		}
	}
	return m
}

// ---------------------------------------------------------------------------
// JobModel
// ---------------------------------------------------------------------------

// JobModel is the persistence model for queued jobs.
// Partition columns are null for jobs that do not belong to an organization and platform,
// so the claimed-partition unique index never blocks them.
type JobModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Type           string     `gorm:"type:varchar(50);not null"`
	Priority       int        `gorm:"not null;index:idx_sync_jobs_claimable,priority:2,sort:desc"`
	PayloadJSON    string     `gorm:"type:jsonb;column:payload;not null"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index:idx_sync_jobs_org_platform_status,priority:1"`
	Platform       *string    `gorm:"type:varchar(20);index:idx_sync_jobs_org_platform_status,priority:2"`
	PartitionKey   *string    `gorm:"type:varchar(64);uniqueIndex:uq_sync_jobs_partition_claimed,where:status = 'claimed'"`
	RunAt          time.Time  `gorm:"not null;index:idx_sync_jobs_claimable,priority:3"`
	Attempt        int        `gorm:"not null;default:0"`
	Status         string     `gorm:"type:varchar(20);not null;index:idx_sync_jobs_claimable,priority:1;index:idx_sync_jobs_org_platform_status,priority:3"`
	ClaimedBy      string     `gorm:"type:varchar(100)"`
	ClaimedAt      *time.Time
	FinishedAt     *time.Time `gorm:"index"`
	LastError      string     `gorm:"type:text"`
	CreatedAt      time.Time
}

// TableName returns the table name for GORM
func (JobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job
func (m *JobModel) ToDomain() (*integration.Job, error) {
	var payload integration.JobPayload
	if m.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(m.PayloadJSON), &payload); err != nil {
			return nil, err
		}
	}
	return &integration.Job{
		ID:         m.ID,
		Type:       integration.JobType(m.Type),
		Priority:   integration.JobPriority(m.Priority),
		Payload:    payload,
		RunAt:      m.RunAt,
		Attempt:    m.Attempt,
		Status:     integration.JobStatus(m.Status),
		ClaimedBy:  m.ClaimedBy,
		ClaimedAt:  m.ClaimedAt,
		FinishedAt: m.FinishedAt,
		LastError:  m.LastError,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// JobModelFromDomain creates a persistence model from a domain Job
func JobModelFromDomain(j *integration.Job) (*JobModel, error) {
	data, err := json.Marshal(j.Payload)
	if err != nil {
		return nil, err
	}
	m := &JobModel{
		ID:          j.ID,
		Type:        string(j.Type),
		Priority:    int(j.Priority),
		PayloadJSON: string(data),
		RunAt:       j.RunAt.UTC(),
		Attempt:     j.Attempt,
		Status:      string(j.Status),
		ClaimedBy:   j.ClaimedBy,
		ClaimedAt:   j.ClaimedAt,
		FinishedAt:  j.FinishedAt,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
	}
	if j.Payload.OrganizationID != uuid.Nil && j.Payload.Platform.IsValid() {
		org := j.Payload.OrganizationID
		platform := string(j.Payload.Platform)
		key := j.PartitionKey()
		m.OrganizationID = &org
		m.Platform = &platform
		m.PartitionKey = &key
	}
	return m, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
