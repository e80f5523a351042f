package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Repository ports
// ---------------------------------------------------------------------------

// SyncProfileRepository persists sync profiles
type SyncProfileRepository interface {
	// FindByOrganization returns ErrProfileNotFound when the tenant has no profile
	FindByOrganization(ctx context.Context, orgID uuid.UUID) (*SyncProfile, error)

	// Save inserts or updates the profile keyed by organization
	Save(ctx context.Context, profile *SyncProfile) error

	// FindDue returns unpaused profiles with NextScheduledSync <= now, ordered by
	// organization ID and starting strictly after afterOrgID (keyset pagination)
	FindDue(ctx context.Context, now time.Time, afterOrgID uuid.UUID, limit int) ([]*SyncProfile, error)
}

// SessionFilter narrows a session listing
type SessionFilter struct {
	OrganizationID *uuid.UUID
	Platform       *PlatformCode
	Status         *SessionStatus
	// SortBy and SortOrder are whitelisted by the repository; unknown values fall back to started_at DESC
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// SyncSessionRepository persists sync sessions
type SyncSessionRepository interface {
	Create(ctx context.Context, session *SyncSession) error

	// Update persists status and counters; returns ErrSessionAlreadySyncing when
	// the syncing uniqueness constraint rejects the write
	Update(ctx context.Context, session *SyncSession) error

	FindByID(ctx context.Context, id uuid.UUID) (*SyncSession, error)

	// ExistsSyncing reports whether a session is currently syncing for the pair
	ExistsSyncing(ctx context.Context, orgID uuid.UUID, platform PlatformCode) (bool, error)

	// FindStale returns processing or syncing sessions last updated before
	// cutoff, optionally limited to one organization
	FindStale(ctx context.Context, orgID *uuid.UUID, cutoff time.Time) ([]*SyncSession, error)

	List(ctx context.Context, filter SessionFilter) ([]*SyncSession, int64, error)

	// DeleteTerminalBefore removes complete/failed sessions started before cutoff
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InsightRepository is the get/insert/patch contract for insight records
type InsightRepository interface {
	// FindByKey returns ErrRecordNotFound when no record has the key
	FindByKey(ctx context.Context, key InsightKey) (*CanonicalInsightRecord, error)
	Insert(ctx context.Context, record *CanonicalInsightRecord) error
	Patch(ctx context.Context, record *CanonicalInsightRecord) error
	ListByOrganizationDate(ctx context.Context, orgID uuid.UUID, date string) ([]*CanonicalInsightRecord, error)
}

// OrderRepository is the get/insert/patch contract for order records
type OrderRepository interface {
	// FindByKey returns ErrRecordNotFound when no record has the key
	FindByKey(ctx context.Context, key OrderKey) (*CanonicalOrderRecord, error)
	Insert(ctx context.Context, record *CanonicalOrderRecord) error
	Patch(ctx context.Context, record *CanonicalOrderRecord) error
}

// ConnectionRepository reads platform connections owned by the onboarding flow
type ConnectionRepository interface {
	// FindActive returns ErrPlatformNotConnected when the tenant has no usable connection
	FindActive(ctx context.Context, orgID uuid.UUID, platform PlatformCode) (*PlatformConnection, error)

	// ListActivePlatforms returns enabled platforms with an active connection
	ListActivePlatforms(ctx context.Context, orgID uuid.UUID) ([]PlatformCode, error)
}

// JobStore is the durable storage behind the job queue
type JobStore interface {
	Insert(ctx context.Context, job *Job) error

	// FindClaimable returns due queued jobs, highest priority then earliest runAt,
	// excluding partitions that already hold a claimed job
	FindClaimable(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// TryClaim flips a queued job to claimed; returns false when another worker
	// won the job or the partition
	TryClaim(ctx context.Context, jobID uuid.UUID, workerID string, now time.Time) (bool, error)

	// Finish persists a terminal status
	Finish(ctx context.Context, job *Job) error

	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// HasPending reports whether a queued or claimed job exists for the pair
	HasPending(ctx context.Context, orgID uuid.UUID, platform PlatformCode) (bool, error)

	// DeleteFinishedBefore removes terminal jobs finished before cutoff
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ReleaseStaleClaims returns jobs claimed before cutoff to the queue, so a
	// crashed worker cannot hold its partition forever
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
}

// ---------------------------------------------------------------------------
// Collaborator ports
// ---------------------------------------------------------------------------

// AccessTokenProvider supplies a currently valid bearer token for a tenant's platform
type AccessTokenProvider interface {
	GetValidAccessToken(ctx context.Context, orgID uuid.UUID, platform PlatformCode) (string, error)
}

// ArchiveKey identifies one archived raw page
type ArchiveKey struct {
	OrganizationID uuid.UUID
	Platform       PlatformCode
	SessionID      uuid.UUID
	Page           int
}

// RawPayloadArchive stores raw platform pages for audit and replay
type RawPayloadArchive interface {
	Archive(ctx context.Context, key ArchiveKey, payload []byte) error
}
