package fetch

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ThrottleStatus is the rate-limit state reported with one response
type ThrottleStatus struct {
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
	MaximumAvailable   float64 `json:"maximumAvailable"`
	// RequestedCost and ActualCost come from GraphQL cost extensions
	RequestedCost float64 `json:"-"`
	ActualCost    float64 `json:"-"`
}

// Exhausted reports whether the bucket has nothing left
func (s *ThrottleStatus) Exhausted() bool {
	return s != nil && s.CurrentlyAvailable <= 0
}

// ProactiveWait returns how long to sleep after a successful response so the
// bucket refills to buffer: ceil((buffer - available) / restoreRate) seconds.
func ProactiveWait(status *ThrottleStatus, buffer float64) time.Duration {
	if status == nil || status.RestoreRate <= 0 || status.CurrentlyAvailable >= buffer {
		return 0
	}
	secs := math.Ceil((buffer - status.CurrentlyAvailable) / status.RestoreRate)
	return time.Duration(secs*1000) * time.Millisecond
}

// DeficitDelay returns the wait until the bucket can afford the requested cost.
// Retry-After, when given, takes precedence.
func DeficitDelay(status *ThrottleStatus, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	if status == nil || status.RestoreRate <= 0 || status.RequestedCost <= 0 {
		return 0
	}
	missing := status.RequestedCost - status.CurrentlyAvailable
	if missing <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing/status.RestoreRate)) * time.Second
}

// BackoffDelay returns max(base * multiplier^attempt, deficit) capped at MaxDelay, before jitter
func (c Config) BackoffDelay(attempt int, deficit time.Duration) time.Duration {
	exp := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	d := time.Duration(math.Min(exp, float64(c.MaxDelay)))
	if deficit > d {
		d = deficit
	}
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// withJitter spreads d by ±ratio using r in [0, 1)
func withJitter(d time.Duration, ratio, r float64) time.Duration {
	if ratio <= 0 || d <= 0 {
		return d
	}
	factor := 1 + ratio*(2*r-1)
	return time.Duration(float64(d) * factor)
}

// ---------------------------------------------------------------------------
// Flat header protocols
// ---------------------------------------------------------------------------

// parseHeaderThrottle reads the flat rate-limit headers REST platforms send.
// Supported shapes: X-RateLimit-Remaining/X-RateLimit-Limit, a "used/max"
// call-limit header, and an X-App-Usage JSON document with call_count percent.
func parseHeaderThrottle(h http.Header, defaultRestore float64) *ThrottleStatus {
	if remaining := h.Get("X-RateLimit-Remaining"); remaining != "" {
		avail, err := strconv.ParseFloat(strings.TrimSpace(remaining), 64)
		if err == nil {
			status := &ThrottleStatus{CurrentlyAvailable: avail, RestoreRate: defaultRestore}
			if limit, err := strconv.ParseFloat(strings.TrimSpace(h.Get("X-RateLimit-Limit")), 64); err == nil {
				status.MaximumAvailable = limit
			}
			return status
		}
	}

	if callLimit := h.Get("X-Api-Call-Limit"); callLimit != "" {
		parts := strings.SplitN(callLimit, "/", 2)
		if len(parts) == 2 {
			used, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			limit, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 == nil && err2 == nil {
				return &ThrottleStatus{
					CurrentlyAvailable: limit - used,
					MaximumAvailable:   limit,
					RestoreRate:        defaultRestore,
				}
			}
		}
	}

	if usage := h.Get("X-App-Usage"); usage != "" {
		var doc struct {
			CallCount float64 `json:"call_count"`
		}
		if err := json.Unmarshal([]byte(usage), &doc); err == nil {
			return &ThrottleStatus{
				CurrentlyAvailable: 100 - doc.CallCount,
				MaximumAvailable:   100,
				RestoreRate:        defaultRestore,
			}
		}
	}

	return nil
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
