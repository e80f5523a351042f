package integration

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxActivityHistory bounds SyncProfile.ActivityHistory; the oldest sample is dropped first
const MaxActivityHistory = 24

// InitialActivityScore is the moderate score seeded for freshly onboarded tenants
const InitialActivityScore = 50

// ---------------------------------------------------------------------------
// SyncTier
// ---------------------------------------------------------------------------

// SyncTier is the coarse activity bucket that drives the base sync interval
type SyncTier string

const (
	// SyncTierLow syncs least often
	SyncTierLow SyncTier = "low"
	// SyncTierMedium is the default tier for new tenants
	SyncTierMedium SyncTier = "medium"
	// SyncTierHigh syncs most often
	SyncTierHigh SyncTier = "high"
)

// IsValid returns true if the tier is known
func (t SyncTier) IsValid() bool {
	switch t {
	case SyncTierLow, SyncTierMedium, SyncTierHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncTier
func (t SyncTier) String() string {
	return string(t)
}

// TierPolicy maps activity scores to tiers and tiers to intervals
type TierPolicy struct {
	HighThreshold   int
	MediumThreshold int
	HighInterval    time.Duration
	MediumInterval  time.Duration
	LowInterval     time.Duration
}

// DefaultTierPolicy returns the stock thresholds (70/30) and intervals (1h/4h/12h)
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		HighThreshold:   70,
		MediumThreshold: 30,
		HighInterval:    time.Hour,
		MediumInterval:  4 * time.Hour,
		LowInterval:     12 * time.Hour,
	}
}

// TierFor returns the tier for an activity score
func (p TierPolicy) TierFor(score int) SyncTier {
	switch {
	case score >= p.HighThreshold:
		return SyncTierHigh
	case score >= p.MediumThreshold:
		return SyncTierMedium
	default:
		return SyncTierLow
	}
}

// IntervalFor returns the base sync interval of a tier
func (p TierPolicy) IntervalFor(tier SyncTier) time.Duration {
	switch tier {
	case SyncTierHigh:
		return p.HighInterval
	case SyncTierMedium:
		return p.MediumInterval
	default:
		return p.LowInterval
	}
}

// ---------------------------------------------------------------------------
// SyncProfile Entity
// ---------------------------------------------------------------------------

// ActivitySample is one observation of tenant activity
type ActivitySample struct {
	At    time.Time `json:"at"`
	Score int       `json:"score"`
}

// SyncProfile is the per-tenant scheduling state.
// NextScheduledSync only moves forward, except through Pause/Resume.
type SyncProfile struct {
	ID                   uuid.UUID
	OrganizationID       uuid.UUID
	ActivityScore        int
	ActivityHistory      []ActivitySample
	SyncInterval         time.Duration
	SyncTier             SyncTier
	NextScheduledSync    time.Time
	LastScheduledAt      time.Time
	BusinessHoursEnabled bool
	Timezone             string
	Paused               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewSyncProfile creates a profile seeded with a single activity sample
func NewSyncProfile(orgID uuid.UUID, score int, policy TierPolicy, now time.Time) (*SyncProfile, error) {
	if orgID == uuid.Nil {
		return nil, ErrProfileInvalidOrg
	}
	if score < 0 || score > 100 {
		return nil, ErrProfileInvalidScore
	}

	p := &SyncProfile{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		ActivityHistory: []ActivitySample{{At: now, Score: score}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p.applyScore(score, policy)
	return p, nil
}

// RecordActivity appends a sample and recomputes score, tier and interval
func (p *SyncProfile) RecordActivity(score int, policy TierPolicy, now time.Time) error {
	if score < 0 || score > 100 {
		return ErrProfileInvalidScore
	}

	p.ActivityHistory = append(p.ActivityHistory, ActivitySample{At: now, Score: score})
	if n := len(p.ActivityHistory); n > MaxActivityHistory {
		p.ActivityHistory = append([]ActivitySample(nil), p.ActivityHistory[n-MaxActivityHistory:]...)
	}

	p.applyScore(meanScore(p.ActivityHistory), policy)
	p.UpdatedAt = now
	return nil
}

func (p *SyncProfile) applyScore(score int, policy TierPolicy) {
	p.ActivityScore = score
	p.SyncTier = policy.TierFor(score)
	p.SyncInterval = policy.IntervalFor(p.SyncTier)
}

func meanScore(samples []ActivitySample) int {
	if len(samples) == 0 {
		return 0
	}
	total := 0
	for _, s := range samples {
		total += s.Score
	}
	return int(math.Round(float64(total) / float64(len(samples))))
}

// Location returns the profile's timezone, falling back to UTC
func (p *SyncProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SetTimezone validates and stores an IANA timezone name
func (p *SyncProfile) SetTimezone(name string) error {
	if name != "" {
		if _, err := time.LoadLocation(name); err != nil {
			return ErrProfileInvalidTimezone
		}
	}
	p.Timezone = name
	return nil
}

// HasNearTermSchedule reports whether a sync is already planned within window from now,
// or the profile was scheduled less than window ago
func (p *SyncProfile) HasNearTermSchedule(now time.Time, window time.Duration) bool {
	if !p.NextScheduledSync.IsZero() && p.NextScheduledSync.After(now) && p.NextScheduledSync.Sub(now) <= window {
		return true
	}
	if !p.LastScheduledAt.IsZero() && !p.LastScheduledAt.After(now) && now.Sub(p.LastScheduledAt) < window {
		return true
	}
	return false
}

// IsScheduledAfter reports whether the current schedule is in the future and later than t
func (p *SyncProfile) IsScheduledAfter(t, now time.Time) bool {
	return p.NextScheduledSync.After(now) && p.NextScheduledSync.After(t)
}

// IsDue reports whether the profile should be picked up by the hourly sweep
func (p *SyncProfile) IsDue(now time.Time) bool {
	return !p.Paused && !p.NextScheduledSync.After(now)
}

// ScheduleAt records an accepted schedule
func (p *SyncProfile) ScheduleAt(next, now time.Time) {
	p.NextScheduledSync = next
	p.LastScheduledAt = now
	p.UpdatedAt = now
}

// Advance moves NextScheduledSync forward by one interval, and past now when long overdue
func (p *SyncProfile) Advance(now time.Time) {
	base := p.NextScheduledSync
	if base.IsZero() {
		base = now
	}
	next := base.Add(p.SyncInterval)
	if !next.After(now) {
		next = now.Add(p.SyncInterval)
	}
	p.NextScheduledSync = next
	p.LastScheduledAt = now
	p.UpdatedAt = now
}

// Pause stops automatic scheduling for the tenant
func (p *SyncProfile) Pause(now time.Time) error {
	if p.Paused {
		return ErrProfileAlreadyPaused
	}
	p.Paused = true
	p.UpdatedAt = now
	return nil
}

// Resume re-enables scheduling and resets the next run to one interval from now
func (p *SyncProfile) Resume(now time.Time) error {
	if !p.Paused {
		return ErrProfileNotPaused
	}
	p.Paused = false
	p.NextScheduledSync = now.Add(p.SyncInterval)
	p.UpdatedAt = now
	return nil
}
