package integration

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	// Platform errors
	ErrPlatformInvalidCode     = errors.New("integration: invalid platform code")
	ErrPlatformNotConnected    = errors.New("integration: platform not connected")
	ErrPlatformNotEnabled      = errors.New("integration: platform not enabled")
	ErrPlatformMissingAccount  = errors.New("integration: ads account id not configured")
	ErrPlatformMissingShop     = errors.New("integration: storefront shop domain not configured")
	ErrPlatformTokenNotFound   = errors.New("integration: access token not available")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")

	// Profile errors
	ErrProfileNotFound          = errors.New("integration: sync profile not found")
	ErrProfileInvalidOrg        = errors.New("integration: invalid organization ID")
	ErrProfileInvalidScore      = errors.New("integration: activity score must be between 0 and 100")
	ErrProfileInvalidTimezone   = errors.New("integration: invalid profile timezone")
	ErrProfileAlreadyPaused     = errors.New("integration: sync profile already paused")
	ErrProfileNotPaused         = errors.New("integration: sync profile not paused")
	ErrProfileNoActivePlatforms = errors.New("integration: no enabled platform with an active connection")

	// Job errors
	ErrJobInvalidType     = errors.New("integration: invalid job type")
	ErrJobInvalidPriority = errors.New("integration: invalid job priority")
	ErrJobInvalidPayload  = errors.New("integration: invalid job payload")
	ErrJobNotFound        = errors.New("integration: job not found")
	ErrJobAlreadyClaimed  = errors.New("integration: job already claimed")
	ErrJobPartitionBusy   = errors.New("integration: job partition already has a claimed job")

	// Session errors
	ErrSessionNotFound          = errors.New("integration: sync session not found")
	ErrSessionInvalidTransition = errors.New("integration: invalid sync session status transition")
	ErrSessionAlreadySyncing    = errors.New("integration: a sync session is already syncing for this platform")
	ErrSessionStale             = errors.New("integration: sync session stopped making progress")
	ErrSessionPanicked          = errors.New("integration: sync aborted by a panic")

	// Record errors
	ErrRecordNotFound = errors.New("integration: record not found")
)

// ---------------------------------------------------------------------------
// PlatformCode represents a third-party data source
// ---------------------------------------------------------------------------

// PlatformCode represents a third-party data source
type PlatformCode string

const (
	// PlatformStorefront is the commerce platform (orders, GraphQL cost bucket)
	PlatformStorefront PlatformCode = "storefront"
	// PlatformAds is the advertising platform (insights, REST with flat rate limit headers)
	PlatformAds PlatformCode = "ads"
)

// AllPlatforms returns every supported platform in a stable order
func AllPlatforms() []PlatformCode {
	return []PlatformCode{PlatformStorefront, PlatformAds}
}

// IsValid returns true if the platform code is known
func (c PlatformCode) IsValid() bool {
	switch c {
	case PlatformStorefront, PlatformAds:
		return true
	default:
		return false
	}
}

// String returns the string representation of PlatformCode
func (c PlatformCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the platform
func (c PlatformCode) DisplayName() string {
	switch c {
	case PlatformStorefront:
		return "Storefront"
	case PlatformAds:
		return "Ads"
	default:
		return string(c)
	}
}

// ParsePlatformCode parses a platform code, returning ErrPlatformInvalidCode for unknown values
func ParsePlatformCode(s string) (PlatformCode, error) {
	c := PlatformCode(s)
	if !c.IsValid() {
		return "", ErrPlatformInvalidCode
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// PlatformConnection
// ---------------------------------------------------------------------------

// ConnectionStatus is the lifecycle state of a platform connection
type ConnectionStatus string

const (
	// ConnectionStatusActive means the connection's credential is usable
	ConnectionStatusActive ConnectionStatus = "active"
	// ConnectionStatusRevoked means the credential was revoked or expired for good
	ConnectionStatusRevoked ConnectionStatus = "revoked"
)

// PlatformConnection is a tenant's link to one platform.
// It is owned by the onboarding flow; the sync core only reads it.
type PlatformConnection struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Platform       PlatformCode
	// AccountID is the ads account to pull insights for (ads only)
	AccountID string
	// ShopDomain is the storefront host (storefront only)
	ShopDomain  string
	AccessToken string
	Status      ConnectionStatus
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive returns true if the connection is enabled and its credential is usable
func (c *PlatformConnection) IsActive() bool {
	return c != nil && c.Enabled && c.Status == ConnectionStatusActive
}

// Validate checks that the connection carries the identifiers a sync needs
func (c *PlatformConnection) Validate() error {
	if c == nil {
		return ErrPlatformNotConnected
	}
	if !c.Platform.IsValid() {
		return ErrPlatformInvalidCode
	}
	if !c.IsActive() {
		return ErrPlatformNotEnabled
	}
	switch c.Platform {
	case PlatformAds:
		if c.AccountID == "" {
			return ErrPlatformMissingAccount
		}
	case PlatformStorefront:
		if c.ShopDomain == "" {
			return ErrPlatformMissingShop
		}
	}
	return nil
}
