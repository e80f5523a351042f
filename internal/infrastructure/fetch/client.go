package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/infrastructure/logger"
	"github.com/adsync/backend/internal/infrastructure/telemetry"
)

// ErrInvalidResponse indicates a response body that could not be decoded
var ErrInvalidResponse = errors.New("fetch: invalid response body")

// Recorder receives client instrumentation
type Recorder interface {
	RecordRequest(ctx context.Context, platform string, statusCode int, duration time.Duration)
	RecordThrottle(ctx context.Context, platform string, attempt int)
	RecordSleep(ctx context.Context, platform, reason string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(context.Context, string, int, time.Duration)  {}
func (nopRecorder) RecordThrottle(context.Context, string, int)                {}
func (nopRecorder) RecordSleep(context.Context, string, string, time.Duration) {}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Response is a decoded REST response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Throttle   *ThrottleStatus
}

// Client issues paced, throttle-aware requests for one credential
type Client struct {
	cfg        Config
	token      string
	authHeader string
	authPrefix string
	httpClient *http.Client
	logger     *zap.Logger
	recorder   Recorder
	sleep      Sleeper
	now        func() time.Time
	random     func() float64

	mu           sync.Mutex
	nextSlot     time.Time
	requestCount int64
	lastThrottle *ThrottleStatus
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the transport client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRecorder sets the instrumentation sink
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithSleeper replaces the blocking sleep, mainly for tests
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRandom replaces the jitter source; it must return values in [0, 1)
func WithRandom(r func() float64) Option {
	return func(c *Client) { c.random = r }
}

// WithAuthHeader sets the header carrying the token and its value prefix.
// The default is "Authorization: Bearer <token>".
func WithAuthHeader(name, prefix string) Option {
	return func(c *Client) {
		c.authHeader = name
		c.authPrefix = prefix
	}
}

// New creates a Client for one credential
func New(cfg Config, token string, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, &ValidationError{Field: "token", Message: "access token is required"}
	}

	c := &Client{
		cfg:        cfg,
		token:      token,
		authHeader: "Authorization",
		authPrefix: "Bearer ",
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
		recorder:   nopRecorder{},
		sleep:      sleepContext,
		now:        time.Now,
		random:     rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("platform", cfg.Platform))
	return c, nil
}

// Config returns the client's policy
func (c *Client) Config() Config {
	return c.cfg
}

// RequestCount returns the number of HTTP requests issued
func (c *Client) RequestCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCount
}

// LastThrottle returns the most recent bucket state, if any
func (c *Client) LastThrottle() *ThrottleStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastThrottle == nil {
		return nil
	}
	s := *c.lastThrottle
	return &s
}

// ---------------------------------------------------------------------------
// Public operations
// ---------------------------------------------------------------------------

// Query posts a GraphQL query to the configured endpoint.
// Non-throttling GraphQL errors are returned in the response, not as an error.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any) (*GraphQLResponse, error) {
	if c.cfg.Endpoint == "" {
		return nil, &ValidationError{Field: "endpoint", Message: "GraphQL endpoint is not configured"}
	}
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "query is empty"}
	}
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, &ValidationError{Field: "variables", Message: err.Error()}
	}

	var out *GraphQLResponse
	_, err = c.do(ctx, http.MethodPost, c.cfg.Endpoint, payload, func(ex *exchange) (verdict, error) {
		var r GraphQLResponse
		if err := json.Unmarshal(ex.body, &r); err != nil {
			return verdict{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		r.resolveThrottle()
		out = &r
		return verdict{throttled: r.throttled(), status: r.Throttle, buffer: c.cfg.SafetyBuffer}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get issues a REST GET against an absolute URL
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var status *ThrottleStatus
	ex, err := c.do(ctx, http.MethodGet, rawURL, nil, func(ex *exchange) (verdict, error) {
		status = parseHeaderThrottle(ex.header, c.cfg.DefaultRestoreRate)
		throttled := status.Exhausted() && len(bytes.TrimSpace(ex.body)) == 0
		return verdict{throttled: throttled, status: status, buffer: c.cfg.HeaderSafetyBuffer}, nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: ex.statusCode, Header: ex.header, Body: ex.body, Throttle: status}, nil
}

// ---------------------------------------------------------------------------
// Retry loop
// ---------------------------------------------------------------------------

type exchange struct {
	statusCode int
	header     http.Header
	body       []byte
}

// verdict classifies a 2xx exchange
type verdict struct {
	throttled bool
	status    *ThrottleStatus
	buffer    float64
}

type inspectFunc func(ex *exchange) (verdict, error)

type failureKind int

const (
	failureNone failureKind = iota
	failureNetwork
	failureThrottled
)

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte, inspect inspectFunc) (*exchange, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, &ValidationError{Field: "url", Message: err.Error()}
	}

	ctx, span := telemetry.StartSpan(ctx, "fetch.request",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("fetch.platform", c.cfg.Platform),
		telemetry.WithAttribute("http.method", method),
	)
	defer span.End()
	log := logger.WithLogger(ctx, c.logger)

	var (
		lastKind   failureKind
		lastErr    error
		lastStatus *ThrottleStatus
		lastHTTP   int
	)

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		ex, err := c.send(ctx, method, rawURL, payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				telemetry.RecordError(span, ctxErr)
				return nil, ctxErr
			}
			var fatal *fatalError
			if errors.As(err, &fatal) {
				telemetry.RecordError(span, fatal.err)
				return nil, fatal.err
			}
			lastKind, lastErr = failureNetwork, err
			log.Warn("Platform request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			if err := c.backoff(ctx, attempt, 0, "network"); err != nil {
				return nil, err
			}
			continue
		}
		lastHTTP = ex.statusCode

		var retryAfter time.Duration
		throttled := false
		switch {
		case ex.statusCode == http.StatusTooManyRequests:
			throttled = true
			retryAfter = parseRetryAfter(ex.header, c.now())
			if st := parseHeaderThrottle(ex.header, c.cfg.DefaultRestoreRate); st != nil {
				lastStatus = st
			}
		case ex.statusCode >= 500:
			lastKind, lastErr = failureNetwork, fmt.Errorf("server error: HTTP %d", ex.statusCode)
			log.Warn("Platform returned server error", zap.Int("attempt", attempt+1), zap.Int("status", ex.statusCode))
			if err := c.backoff(ctx, attempt, 0, "server_error"); err != nil {
				return nil, err
			}
			continue
		case ex.statusCode >= 400:
			if !isThrottleBody(ex.body) {
				reqErr := newRequestError(ex.statusCode, ex.body)
				telemetry.RecordError(span, reqErr)
				return nil, reqErr
			}
			throttled = true
			retryAfter = parseRetryAfter(ex.header, c.now())
		default:
			v, err := inspect(ex)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
			if v.status != nil {
				lastStatus = v.status
				c.mu.Lock()
				c.lastThrottle = v.status
				c.mu.Unlock()
			}
			if !v.throttled {
				if wait := ProactiveWait(v.status, v.buffer); wait > 0 {
					log.Debug("Bucket below safety buffer, waiting before next request",
						zap.Float64("available", v.status.CurrentlyAvailable),
						zap.Duration("wait", wait))
					c.recorder.RecordSleep(ctx, c.cfg.Platform, "proactive", wait)
					if err := c.sleep(ctx, wait); err != nil {
						return nil, err
					}
				}
				telemetry.SetAttribute(span, "fetch.attempts", attempt+1)
				telemetry.SetOK(span)
				return ex, nil
			}
			throttled = true
		}

		if throttled {
			lastKind = failureThrottled
			c.recorder.RecordThrottle(ctx, c.cfg.Platform, attempt+1)
			telemetry.AddEvent(span, "throttled", "attempt", attempt+1, "http.status_code", ex.statusCode)
			deficit := DeficitDelay(lastStatus, retryAfter)
			log.Info("Platform throttled request, backing off",
				zap.Int("attempt", attempt+1),
				zap.Int("status", ex.statusCode),
				zap.Duration("deficit", deficit))
			if err := c.backoff(ctx, attempt, deficit, "throttled"); err != nil {
				return nil, err
			}
		}
	}

	var err error
	if lastKind == failureThrottled {
		err = &ThrottledError{Attempts: c.cfg.MaxAttempts, LastStatus: lastStatus, LastHTTPStatus: lastHTTP}
	} else {
		err = &NetworkError{Attempts: c.cfg.MaxAttempts, Err: lastErr}
	}
	telemetry.RecordError(span, err)
	return nil, err
}

// pace reserves the next send slot and sleeps until it
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	start := now
	if c.nextSlot.After(now) {
		start = c.nextSlot
	}
	c.nextSlot = start.Add(c.cfg.MinRequestInterval)
	c.requestCount++
	c.mu.Unlock()

	wait := start.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}
	c.recorder.RecordSleep(ctx, c.cfg.Platform, "pacing", wait)
	return c.sleep(ctx, wait)
}

// backoff sleeps the jittered ladder delay unless attempt was the last one
func (c *Client) backoff(ctx context.Context, attempt int, deficit time.Duration, reason string) error {
	if attempt >= c.cfg.MaxAttempts-1 {
		return nil
	}
	d := withJitter(c.cfg.BackoffDelay(attempt, deficit), c.cfg.JitterRatio, c.random())
	c.recorder.RecordSleep(ctx, c.cfg.Platform, reason, d)
	return c.sleep(ctx, d)
}

// fatalError marks a send failure that must not be retried
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (c *Client) send(ctx context.Context, method, rawURL string, payload []byte) (*exchange, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, &fatalError{err: &ValidationError{Field: "url", Message: err.Error()}}
	}
	req.Header.Set(c.authHeader, c.authPrefix+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordRequest(ctx, c.cfg.Platform, 0, c.now().Sub(start))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1))
	c.recorder.RecordRequest(ctx, c.cfg.Platform, resp.StatusCode, c.now().Sub(start))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxResponseSize {
		return nil, &fatalError{err: fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidResponse, c.cfg.MaxResponseSize)}
	}

	return &exchange{statusCode: resp.StatusCode, header: resp.Header, body: data}, nil
}

// rateLimitErrorCodes are the ads platform error codes that mean "slow down"
// even though they arrive with a 4xx status.
var rateLimitErrorCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80000: true, 80004: true}

func isThrottleBody(body []byte) bool {
	var doc struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil || doc.Error == nil {
		return false
	}
	return rateLimitErrorCodes[doc.Error.Code]
}
