package fetch

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProactiveWait(t *testing.T) {
	tests := []struct {
		name   string
		status *ThrottleStatus
		buffer float64
		want   time.Duration
	}{
		{"empty bucket", &ThrottleStatus{CurrentlyAvailable: 0, RestoreRate: 50}, 200, 4000 * time.Millisecond},
		{"partial deficit rounds up", &ThrottleStatus{CurrentlyAvailable: 150, RestoreRate: 40}, 200, 2 * time.Second},
		{"above buffer", &ThrottleStatus{CurrentlyAvailable: 500, RestoreRate: 50}, 200, 0},
		{"exactly at buffer", &ThrottleStatus{CurrentlyAvailable: 200, RestoreRate: 50}, 200, 0},
		{"no restore rate", &ThrottleStatus{CurrentlyAvailable: 0}, 200, 0},
		{"no status", nil, 200, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProactiveWait(tt.status, tt.buffer))
		})
	}
}

func TestDeficitDelay(t *testing.T) {
	status := &ThrottleStatus{CurrentlyAvailable: 20, RestoreRate: 50, RequestedCost: 100}
	assert.Equal(t, 2*time.Second, DeficitDelay(status, 0))
	assert.Equal(t, 9*time.Second, DeficitDelay(status, 9*time.Second))
	assert.Equal(t, time.Duration(0), DeficitDelay(&ThrottleStatus{CurrentlyAvailable: 500, RestoreRate: 50, RequestedCost: 100}, 0))
	assert.Equal(t, time.Duration(0), DeficitDelay(nil, 0))
}

func TestConfig_BackoffDelay(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, time.Second, cfg.BackoffDelay(0, 0))
	assert.Equal(t, 2*time.Second, cfg.BackoffDelay(1, 0))
	assert.Equal(t, 16*time.Second, cfg.BackoffDelay(4, 0))
	assert.Equal(t, 30*time.Second, cfg.BackoffDelay(10, 0), "capped at MaxDelay")
	assert.Equal(t, 5*time.Second, cfg.BackoffDelay(0, 5*time.Second), "deficit wins")
	assert.Equal(t, 30*time.Second, cfg.BackoffDelay(0, time.Hour), "deficit is capped too")
}

func TestWithJitter(t *testing.T) {
	d := 10 * time.Second
	assert.InDelta(t, float64(9*time.Second), float64(withJitter(d, 0.1, 0)), float64(time.Millisecond))
	assert.Equal(t, d, withJitter(d, 0.1, 0.5))
	assert.InDelta(t, float64(11*time.Second), float64(withJitter(d, 0.1, 0.999999)), float64(time.Millisecond))
	assert.Equal(t, d, withJitter(d, 0, 0.9))
}

func TestParseHeaderThrottle(t *testing.T) {
	t.Run("rate limit remaining", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "12")
		h.Set("X-RateLimit-Limit", "100")
		s := parseHeaderThrottle(h, 2)
		require.NotNil(t, s)
		assert.Equal(t, 12.0, s.CurrentlyAvailable)
		assert.Equal(t, 100.0, s.MaximumAvailable)
		assert.Equal(t, 2.0, s.RestoreRate)
	})

	t.Run("call limit", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Api-Call-Limit", "32/40")
		s := parseHeaderThrottle(h, 2)
		require.NotNil(t, s)
		assert.Equal(t, 8.0, s.CurrentlyAvailable)
		assert.Equal(t, 40.0, s.MaximumAvailable)
	})

	t.Run("app usage percent", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-App-Usage", `{"call_count":97,"total_time":10,"total_cputime":5}`)
		s := parseHeaderThrottle(h, 1)
		require.NotNil(t, s)
		assert.Equal(t, 3.0, s.CurrentlyAvailable)
	})

	t.Run("no headers", func(t *testing.T) {
		assert.Nil(t, parseHeaderThrottle(http.Header{}, 2))
	})

	t.Run("malformed", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Api-Call-Limit", "lots")
		assert.Nil(t, parseHeaderThrottle(h, 2))
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	h := http.Header{}
	h.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, parseRetryAfter(h, now))

	h.Set("Retry-After", now.Add(10*time.Second).Format(http.TimeFormat))
	assert.Equal(t, 10*time.Second, parseRetryAfter(h, now))

	h.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), parseRetryAfter(h, now))
}
