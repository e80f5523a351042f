// Package fetch implements a throttle-aware HTTP client for platform APIs that
// either cap requests per second or meter a cost-based leaky bucket.
//
// One Client exists per credential. Its pacing state lives on the instance so
// tenants never share rate-limit state.
package fetch

import (
	"errors"
	"time"
)

const (
	// DefaultMaxResponseSize bounds a single response body (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024
	// DefaultMaxPages bounds one pagination run
	DefaultMaxPages = 10000
)

// Errors for client configuration
var (
	ErrConfigInvalidMultiplier = errors.New("fetch: multiplier must be >= 1")
	ErrConfigInvalidJitter     = errors.New("fetch: jitter ratio must be within [0, 1)")
	ErrConfigInvalidAttempts   = errors.New("fetch: max attempts must be positive")
)

// Config holds the pacing and retry policy of a Client
type Config struct {
	// Platform labels spans, metrics and logs
	Platform string
	// Endpoint is the GraphQL endpoint used by Query; REST calls pass absolute URLs
	Endpoint string

	// MinRequestInterval is the fixed-window pacing between two requests
	MinRequestInterval time.Duration
	// SafetyBuffer is the cost headroom kept in the bucket; below it the client sleeps proactively
	SafetyBuffer float64
	// HeaderSafetyBuffer is the headroom kept for flat header protocols, whose buckets are small
	HeaderSafetyBuffer float64
	// DefaultRestoreRate is assumed (units/second) when a flat header protocol reports no rate
	DefaultRestoreRate float64

	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
	// JitterRatio spreads each backoff delay by ±ratio
	JitterRatio float64

	// RequestTimeout bounds one HTTP exchange
	RequestTimeout  time.Duration
	MaxResponseSize int64
	MaxPages        int
}

// DefaultConfig returns the stock policy
func DefaultConfig() Config {
	return Config{
		MinRequestInterval: 500 * time.Millisecond,
		SafetyBuffer:       200,
		HeaderSafetyBuffer: 5,
		DefaultRestoreRate: 2,
		BaseDelay:          time.Second,
		Multiplier:         2,
		MaxDelay:           30 * time.Second,
		MaxAttempts:        5,
		JitterRatio:        0.1,
		RequestTimeout:     30 * time.Second,
		MaxResponseSize:    DefaultMaxResponseSize,
		MaxPages:           DefaultMaxPages,
	}
}

// Validate checks the policy and fills zero values with defaults
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.MinRequestInterval < 0 {
		c.MinRequestInterval = 0
	}
	if c.SafetyBuffer < 0 {
		c.SafetyBuffer = 0
	}
	if c.HeaderSafetyBuffer < 0 {
		c.HeaderSafetyBuffer = 0
	}
	if c.DefaultRestoreRate <= 0 {
		c.DefaultRestoreRate = def.DefaultRestoreRate
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	}
	if c.Multiplier < 1 {
		return ErrConfigInvalidMultiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MaxAttempts < 0 {
		return ErrConfigInvalidAttempts
	}
	if c.JitterRatio < 0 || c.JitterRatio >= 1 {
		return ErrConfigInvalidJitter
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.MaxResponseSize <= 0 {
		c.MaxResponseSize = def.MaxResponseSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	return nil
}
