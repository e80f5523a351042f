package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format of calendar dates
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// JobType
// ---------------------------------------------------------------------------

// JobType is the tagged kind of a queued job
type JobType string

const (
	// JobTypeSyncInitial pulls the historical window after onboarding
	JobTypeSyncInitial JobType = "sync:initial"
	// JobTypeSyncIncremental is enqueued by ScheduleNext
	JobTypeSyncIncremental JobType = "sync:incremental"
	// JobTypeSyncScheduled is enqueued by the hourly sweep
	JobTypeSyncScheduled JobType = "sync:scheduled"
	// JobTypeSyncManual is enqueued by an operator
	JobTypeSyncManual JobType = "sync:manual"
	// JobTypeMaintenancePurge removes old sessions and finished jobs
	JobTypeMaintenancePurge JobType = "maintenance:purge"
)

const (
	syncPrefix        = "sync:"
	maintenancePrefix = "maintenance:"
)

// IsSync returns true for sync:* jobs
func (t JobType) IsSync() bool {
	return strings.HasPrefix(string(t), syncPrefix)
}

// IsMaintenance returns true for maintenance:* jobs
func (t JobType) IsMaintenance() bool {
	return strings.HasPrefix(string(t), maintenancePrefix)
}

// IsValid returns true for the known sync types and any named maintenance type
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeSyncInitial, JobTypeSyncIncremental, JobTypeSyncScheduled, JobTypeSyncManual:
		return true
	}
	return t.IsMaintenance() && len(t) > len(maintenancePrefix)
}

// String returns the string representation of JobType
func (t JobType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// JobPriority
// ---------------------------------------------------------------------------

// JobPriority orders claims; a larger value is claimed first
type JobPriority int

const (
	// PriorityBackground is claimed last
	PriorityBackground JobPriority = 10
	// PriorityNormal is used for scheduled syncs
	PriorityNormal JobPriority = 20
	// PriorityHigh is used for initial syncs and beats any due lower-priority job
	PriorityHigh JobPriority = 30
)

// IsValid returns true if the priority is known
func (p JobPriority) IsValid() bool {
	switch p {
	case PriorityBackground, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// String returns the priority name
func (p JobPriority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityBackground:
		return "BACKGROUND"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// ParseJobPriority parses HIGH, NORMAL or BACKGROUND (case-insensitive)
func ParseJobPriority(s string) (JobPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return PriorityHigh, nil
	case "NORMAL", "":
		return PriorityNormal, nil
	case "BACKGROUND":
		return PriorityBackground, nil
	default:
		return 0, ErrJobInvalidPriority
	}
}

// ---------------------------------------------------------------------------
// JobPayload
// ---------------------------------------------------------------------------

// SyncType distinguishes a historical pull from a rolling window
type SyncType string

const (
	// SyncTypeInitial pulls the full historical window
	SyncTypeInitial SyncType = "initial"
	// SyncTypeIncremental pulls the recent window
	SyncTypeIncremental SyncType = "incremental"
)

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

// NewDateRange returns the inclusive range of the given number of days ending on end's date
func NewDateRange(end time.Time, days int) DateRange {
	if days < 1 {
		days = 1
	}
	end = end.UTC()
	return DateRange{
		Start: end.AddDate(0, 0, -(days - 1)).Format(DateLayout),
		End:   end.Format(DateLayout),
	}
}

// Bounds parses the range into times at midnight UTC
func (r DateRange) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date: %v", ErrJobInvalidPayload, err)
	}
	end, err := time.Parse(DateLayout, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date: %v", ErrJobInvalidPayload, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date before start date", ErrJobInvalidPayload)
	}
	return start, end, nil
}

// Days returns each date in the range in ascending order
func (r DateRange) Days() ([]string, error) {
	start, end, err := r.Bounds()
	if err != nil {
		return nil, err
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days, nil
}

// JobPayload is the scheduling intent carried by a job
type JobPayload struct {
	OrganizationID uuid.UUID    `json:"organizationId" validate:"required"`
	Platform       PlatformCode `json:"platform" validate:"required,oneof=storefront ads"`
	SyncType       SyncType     `json:"syncType" validate:"required,oneof=initial incremental"`
	DateRange      *DateRange   `json:"dateRange,omitempty" validate:"omitempty"`
	AccountID      string       `json:"accountId,omitempty" validate:"omitempty,max=64"`
}

// PartitionKey identifies the (organization, platform) pair jobs are serialised on
func (p JobPayload) PartitionKey() string {
	return p.OrganizationID.String() + ":" + string(p.Platform)
}

// ---------------------------------------------------------------------------
// Job Entity
// ---------------------------------------------------------------------------

// JobStatus is the queue bookkeeping state of a job
type JobStatus string

const (
	// JobStatusQueued is waiting to be claimed
	JobStatusQueued JobStatus = "queued"
	// JobStatusClaimed is held by a worker
	JobStatusClaimed JobStatus = "claimed"
	// JobStatusSucceeded finished successfully
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed finished with an error
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal returns true for succeeded and failed jobs
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job is one unit of queued work.
// Type, Priority, Payload and RunAt never change after enqueue; retries append a new job.
type Job struct {
	ID         uuid.UUID
	Type       JobType
	Priority   JobPriority
	Payload    JobPayload
	RunAt      time.Time
	Attempt    int
	Status     JobStatus
	ClaimedBy  string
	ClaimedAt  *time.Time
	FinishedAt *time.Time
	LastError  string
	CreatedAt  time.Time
}

// NewJob creates a queued job
func NewJob(jobType JobType, priority JobPriority, payload JobPayload, runAt time.Time, attempt int, now time.Time) (*Job, error) {
	if !jobType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrJobInvalidType, jobType)
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrJobInvalidPriority, int(priority))
	}
	if attempt < 0 {
		return nil, fmt.Errorf("%w: negative attempt", ErrJobInvalidPayload)
	}
	if jobType.IsSync() && (payload.OrganizationID == uuid.Nil || !payload.Platform.IsValid()) {
		return nil, fmt.Errorf("%w: sync jobs need an organization and a platform", ErrJobInvalidPayload)
	}
	if runAt.IsZero() {
		runAt = now
	}

	return &Job{
		ID:        uuid.New(),
		Type:      jobType,
		Priority:  priority,
		Payload:   payload,
		RunAt:     runAt,
		Attempt:   attempt,
		Status:    JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// PartitionKey returns the payload's partition key
func (j *Job) PartitionKey() string {
	return j.Payload.PartitionKey()
}

// IsDue returns true if the job may run at now
func (j *Job) IsDue(now time.Time) bool {
	return !j.RunAt.After(now)
}

// MarkClaimed records the claiming worker
func (j *Job) MarkClaimed(workerID string, now time.Time) error {
	if j.Status != JobStatusQueued {
		return ErrJobAlreadyClaimed
	}
	j.Status = JobStatusClaimed
	j.ClaimedBy = workerID
	j.ClaimedAt = &now
	return nil
}

// MarkSucceeded records successful completion
func (j *Job) MarkSucceeded(now time.Time) {
	j.Status = JobStatusSucceeded
	j.FinishedAt = &now
	j.LastError = ""
}

// MarkFailed records a failure
func (j *Job) MarkFailed(cause string, now time.Time) {
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	j.LastError = cause
}
