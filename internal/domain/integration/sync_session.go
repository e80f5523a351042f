package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxSessionErrors bounds the error list kept on a session
const MaxSessionErrors = 50

// ---------------------------------------------------------------------------
// SessionStatus
// ---------------------------------------------------------------------------

// SessionStatus is the lifecycle state of a sync run
type SessionStatus string

const (
	// SessionStatusPending is the state right after creation
	SessionStatusPending SessionStatus = "pending"
	// SessionStatusProcessing means credentials and clients are being resolved
	SessionStatusProcessing SessionStatus = "processing"
	// SessionStatusSyncing means pages are being fetched; at most one per org/platform
	SessionStatusSyncing SessionStatus = "syncing"
	// SessionStatusComplete is terminal success
	SessionStatusComplete SessionStatus = "complete"
	// SessionStatusFailed is terminal failure
	SessionStatusFailed SessionStatus = "failed"
)

// IsValid returns true if the status is known
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusPending, SessionStatusProcessing, SessionStatusSyncing,
		SessionStatusComplete, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for complete and failed
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusComplete || s == SessionStatusFailed
}

// String returns the string representation of SessionStatus
func (s SessionStatus) String() string {
	return string(s)
}

// CanTransitionTo returns true if moving to next is allowed
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusPending:
		return next == SessionStatusProcessing || next == SessionStatusFailed
	case SessionStatusProcessing:
		return next == SessionStatusSyncing || next == SessionStatusFailed
	case SessionStatusSyncing:
		return next == SessionStatusComplete || next == SessionStatusFailed
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// SyncSession Entity
// ---------------------------------------------------------------------------

// SyncSession records the lifecycle and progress of one sync run
type SyncSession struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	Platform         PlatformCode
	JobID            uuid.UUID
	Status           SessionStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	RecordsProcessed int64
	OrdersProcessed  int64
	TotalOrdersSeen  int64
	DataChanged      bool
	Errors           []string
	UpdatedAt        time.Time
}

// NewSyncSession creates a pending session for a job
func NewSyncSession(orgID uuid.UUID, platform PlatformCode, jobID uuid.UUID, now time.Time) (*SyncSession, error) {
	if orgID == uuid.Nil {
		return nil, ErrProfileInvalidOrg
	}
	if !platform.IsValid() {
		return nil, ErrPlatformInvalidCode
	}
	return &SyncSession{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		JobID:          jobID,
		Status:         SessionStatusPending,
		StartedAt:      now,
		Errors:         make([]string, 0),
		UpdatedAt:      now,
	}, nil
}

func (s *SyncSession) transition(next SessionStatus, now time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrSessionInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	if next.IsTerminal() {
		s.CompletedAt = &now
	}
	return nil
}

// StartProcessing moves pending -> processing
func (s *SyncSession) StartProcessing(now time.Time) error {
	return s.transition(SessionStatusProcessing, now)
}

// StartSyncing moves processing -> syncing
func (s *SyncSession) StartSyncing(now time.Time) error {
	return s.transition(SessionStatusSyncing, now)
}

// RecordProgress adds processed records to the counters
func (s *SyncSession) RecordProgress(records int, changed bool, now time.Time) {
	s.RecordsProcessed += int64(records)
	s.DataChanged = s.DataChanged || changed
	s.UpdatedAt = now
}

// RecordOrders adds storefront order counters
func (s *SyncSession) RecordOrders(processed, seen int, now time.Time) {
	s.OrdersProcessed += int64(processed)
	s.TotalOrdersSeen += int64(seen)
	s.UpdatedAt = now
}

// AddError appends an error message, keeping at most MaxSessionErrors
func (s *SyncSession) AddError(msg string) {
	if len(s.Errors) >= MaxSessionErrors {
		return
	}
	s.Errors = append(s.Errors, msg)
}

// Complete moves syncing -> complete
func (s *SyncSession) Complete(now time.Time) error {
	return s.transition(SessionStatusComplete, now)
}

// Fail records cause and moves any non-terminal session to failed
func (s *SyncSession) Fail(cause error, now time.Time) error {
	if cause != nil {
		s.AddError(cause.Error())
	}
	return s.transition(SessionStatusFailed, now)
}

// Duration returns how long the session ran, or has been running
func (s *SyncSession) Duration(now time.Time) time.Duration {
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
