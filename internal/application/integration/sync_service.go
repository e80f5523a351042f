package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/ecommerce"
	"github.com/adsync/backend/internal/infrastructure/fetch"
	"github.com/adsync/backend/internal/infrastructure/logger"
	"github.com/adsync/backend/internal/infrastructure/scheduler"
)

// Skip reasons reported on SyncResult
const (
	SkipReasonInFlight = "sync already in progress"
)

// NextSyncScheduler plans the tenant's next run after a sync finishes
type NextSyncScheduler interface {
	ScheduleNext(ctx context.Context, orgID uuid.UUID, platforms []integration.PlatformCode) (scheduler.ScheduleResult, error)
}

// SyncRecorder receives one observation per finished sync
type SyncRecorder interface {
	RecordSync(ctx context.Context, platform, outcome string, records int64, duration time.Duration)
}

// SyncRepositories groups the persistence ports a sync touches
type SyncRepositories struct {
	Connections integration.ConnectionRepository
	Tokens      integration.AccessTokenProvider
	Sessions    integration.SyncSessionRepository
	Insights    integration.InsightRepository
	Orders      integration.OrderRepository
}

// SyncServiceConfig holds sync windows
type SyncServiceConfig struct {
	// IncrementalWindowDays is the trailing window pulled when a job carries no date range
	IncrementalWindowDays int
	// InitialLookbackDays is how far back an initial job without range reaches
	InitialLookbackDays int
	// StaleSessionAfter fails unfinished sessions of the job's tenant that
	// stopped updating this long ago; zero disables it
	StaleSessionAfter time.Duration
}

// DefaultSyncServiceConfig returns default sync windows
func DefaultSyncServiceConfig() SyncServiceConfig {
	return SyncServiceConfig{
		IncrementalWindowDays: 3,
		InitialLookbackDays:   60,
		StaleSessionAfter:     30 * time.Minute,
	}
}

// SyncService executes sync jobs: it pulls a platform's pages for the job's
// date range, normalizes them and upserts the canonical records while
// tracking progress on a SyncSession.
type SyncService struct {
	config     SyncServiceConfig
	repos      SyncRepositories
	clients    ClientProvider
	ads        *ecommerce.AdsAdapter
	storefront *ecommerce.StorefrontAdapter
	next       NextSyncScheduler
	archive    integration.RawPayloadArchive
	recorder   SyncRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// SyncServiceOption is a functional option for configuring SyncService
type SyncServiceOption func(*SyncService)

// WithNextScheduler re-plans the tenant after each sync
func WithNextScheduler(next NextSyncScheduler) SyncServiceOption {
	return func(s *SyncService) {
		s.next = next
	}
}

// WithPayloadArchive stores every raw page before it is normalized
func WithPayloadArchive(archive integration.RawPayloadArchive) SyncServiceOption {
	return func(s *SyncService) {
		s.archive = archive
	}
}

// WithSyncRecorder sets the metrics recorder
func WithSyncRecorder(r SyncRecorder) SyncServiceOption {
	return func(s *SyncService) {
		s.recorder = r
	}
}

// WithSyncLogger sets the logger
func WithSyncLogger(l *zap.Logger) SyncServiceOption {
	return func(s *SyncService) {
		s.logger = l
	}
}

// WithSyncClock overrides the time source
func WithSyncClock(now func() time.Time) SyncServiceOption {
	return func(s *SyncService) {
		s.now = now
	}
}

// NewSyncService creates a new SyncService
func NewSyncService(
	config SyncServiceConfig,
	repos SyncRepositories,
	clients ClientProvider,
	ads *ecommerce.AdsAdapter,
	storefront *ecommerce.StorefrontAdapter,
	opts ...SyncServiceOption,
) *SyncService {
	def := DefaultSyncServiceConfig()
	if config.IncrementalWindowDays <= 0 {
		config.IncrementalWindowDays = def.IncrementalWindowDays
	}
	if config.InitialLookbackDays <= 0 {
		config.InitialLookbackDays = def.InitialLookbackDays
	}

	s := &SyncService{
		config:     config,
		repos:      repos,
		clients:    clients,
		ads:        ads,
		storefront: storefront,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Job handling
// ---------------------------------------------------------------------------

// HandleJob runs one sync job. Failures are reported on the result, never returned.
func (s *SyncService) HandleJob(ctx context.Context, job *integration.Job) integration.SyncResult {
	if job == nil || !job.Type.IsSync() {
		return integration.FailedResult(integration.ErrJobInvalidType, false)
	}
	payload := job.Payload
	if payload.OrganizationID == uuid.Nil || !payload.Platform.IsValid() {
		return integration.FailedResult(
			fmt.Errorf("%w: organization and platform are required", integration.ErrJobInvalidPayload), false)
	}

	ctx, log := logger.WithJobID(ctx, s.logger, job.ID.String())
	ctx, log = logger.WithOrganizationID(ctx, log, payload.OrganizationID.String())
	ctx, log = logger.WithPlatform(ctx, log, string(payload.Platform))

	started := s.now()
	result := s.run(ctx, job, log)

	outcome := "succeeded"
	switch {
	case result.Skipped:
		outcome = "skipped"
	case !result.Success:
		outcome = "failed"
	}
	if s.recorder != nil {
		s.recorder.RecordSync(ctx, string(payload.Platform), outcome, result.RecordsProcessed, s.now().Sub(started))
	}

	if !result.Skipped && result.SessionID != uuid.Nil {
		s.scheduleNext(context.WithoutCancel(ctx), payload, log)
	}
	return result
}

func (s *SyncService) run(ctx context.Context, job *integration.Job, log *zap.Logger) (result integration.SyncResult) {
	payload := job.Payload

	conn, err := s.repos.Connections.FindActive(ctx, payload.OrganizationID, payload.Platform)
	if err != nil {
		if errors.Is(err, integration.ErrPlatformNotConnected) || errors.Is(err, integration.ErrPlatformNotEnabled) {
			return integration.FailedResult(&fetch.ValidationError{Field: "connection", Message: err.Error()}, false)
		}
		return integration.FailedResult(fmt.Errorf("failed to load connection: %w", err), false)
	}
	if err := conn.Validate(); err != nil {
		return integration.FailedResult(&fetch.ValidationError{Field: "connection", Message: err.Error()}, false)
	}

	dateRange, err := s.dateRange(payload)
	if err != nil {
		return integration.FailedResult(err, false)
	}

	orgID := payload.OrganizationID
	if _, err := scheduler.RecoverStaleSessions(ctx, s.repos.Sessions, &orgID, s.config.StaleSessionAfter, s.now(), log); err != nil {
		log.Warn("Stale session recovery incomplete", zap.Error(err))
	}

	syncing, err := s.repos.Sessions.ExistsSyncing(ctx, payload.OrganizationID, payload.Platform)
	if err != nil {
		return integration.FailedResult(fmt.Errorf("failed to check in-flight sync: %w", err), false)
	}
	if syncing {
		log.Info("Sync already in progress, skipping job")
		return integration.SkippedResult(SkipReasonInFlight)
	}

	now := s.now()
	session, err := integration.NewSyncSession(payload.OrganizationID, payload.Platform, job.ID, now)
	if err != nil {
		return integration.FailedResult(err, false)
	}
	if err := session.StartProcessing(now); err != nil {
		return integration.FailedResult(err, false)
	}
	if err := s.repos.Sessions.Create(ctx, session); err != nil {
		return integration.FailedResult(fmt.Errorf("failed to create sync session: %w", err), false)
	}
	log = log.With(zap.String("session_id", session.ID.String()))

	defer func() {
		if r := recover(); r != nil {
			result = s.fail(ctx, session, fmt.Errorf("%w: %v", integration.ErrSessionPanicked, r), log)
		}
	}()

	client, err := s.client(ctx, conn)
	if err != nil {
		return s.fail(ctx, session, err, log)
	}

	if err := session.StartSyncing(s.now()); err != nil {
		return s.fail(ctx, session, err, log)
	}
	if err := s.repos.Sessions.Update(ctx, session); err != nil {
		if errors.Is(err, integration.ErrSessionAlreadySyncing) {
			// Another worker won the syncing slot; the row is still processing
			session.Status = integration.SessionStatusProcessing
			_ = session.Fail(err, s.now())
			s.persist(ctx, session, log)
			skipped := integration.SkippedResult(SkipReasonInFlight)
			skipped.SessionID = session.ID
			return skipped
		}
		return s.fail(ctx, session, err, log)
	}

	log.Info("Sync started",
		zap.String("start", dateRange.Start),
		zap.String("end", dateRange.End),
		zap.String("type", string(job.Type)),
	)

	switch payload.Platform {
	case integration.PlatformAds:
		err = s.syncInsights(ctx, client, session, conn, dateRange, log)
	case integration.PlatformStorefront:
		err = s.syncOrders(ctx, client, session, dateRange, log)
	}
	if err != nil {
		return s.fail(ctx, session, err, log)
	}

	if err := session.Complete(s.now()); err != nil {
		return s.fail(ctx, session, err, log)
	}
	s.persist(ctx, session, log)

	log.Info("Sync completed",
		zap.Int64("records_processed", session.RecordsProcessed),
		zap.Bool("data_changed", session.DataChanged),
		zap.Duration("duration", session.Duration(s.now())),
	)
	return integration.SyncResult{
		Success:          true,
		SessionID:        session.ID,
		RecordsProcessed: session.RecordsProcessed,
		DataChanged:      session.DataChanged,
		Errors:           session.Errors,
	}
}

func (s *SyncService) dateRange(payload integration.JobPayload) (integration.DateRange, error) {
	if payload.DateRange != nil {
		if _, _, err := payload.DateRange.Bounds(); err != nil {
			return integration.DateRange{}, err
		}
		return *payload.DateRange, nil
	}
	days := s.config.IncrementalWindowDays
	if payload.SyncType == integration.SyncTypeInitial {
		days = s.config.InitialLookbackDays + 1
	}
	return integration.NewDateRange(s.now(), days), nil
}

func (s *SyncService) client(ctx context.Context, conn *integration.PlatformConnection) (*fetch.Client, error) {
	token, err := s.repos.Tokens.GetValidAccessToken(ctx, conn.OrganizationID, conn.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access token: %w", err)
	}
	cred := fetch.Credential{
		OrganizationID: conn.OrganizationID.String(),
		Platform:       string(conn.Platform),
		Token:          token,
	}
	if conn.Platform == integration.PlatformStorefront {
		endpoint, err := s.storefront.Endpoint(conn)
		if err != nil {
			return nil, err
		}
		cred.Endpoint = endpoint
	}
	return s.clients.Client(cred)
}

// fail marks the session failed and converts err into a failed result
func (s *SyncService) fail(ctx context.Context, session *integration.SyncSession, err error, log *zap.Logger) integration.SyncResult {
	retryable := fetch.IsRetryable(err)
	if ferr := session.Fail(err, s.now()); ferr != nil {
		log.Warn("Session already terminal", zap.Error(ferr))
	}
	s.persist(ctx, session, log)

	log.Error("Sync failed", zap.Error(err), zap.Bool("retryable", retryable))
	result := integration.FailedResult(err, retryable)
	result.SessionID = session.ID
	result.RecordsProcessed = session.RecordsProcessed
	result.DataChanged = session.DataChanged
	return result
}

// persist writes session state even when the job context is already cancelled
func (s *SyncService) persist(ctx context.Context, session *integration.SyncSession, log *zap.Logger) {
	if err := s.repos.Sessions.Update(context.WithoutCancel(ctx), session); err != nil {
		log.Error("Failed to persist sync session", zap.Error(err))
	}
}

func (s *SyncService) scheduleNext(ctx context.Context, payload integration.JobPayload, log *zap.Logger) {
	if s.next == nil {
		return
	}
	result, err := s.next.ScheduleNext(ctx, payload.OrganizationID, []integration.PlatformCode{payload.Platform})
	if err != nil {
		log.Warn("Failed to schedule next sync", zap.Error(err))
		return
	}
	log.Debug("Next sync planned",
		zap.String("outcome", string(result.Outcome)),
		zap.Time("next_run", result.NextRun),
	)
}

// ---------------------------------------------------------------------------
// Ads insights
// ---------------------------------------------------------------------------

var insightLevels = []integration.EntityType{integration.EntityTypeAccount, integration.EntityTypeCampaign}

func (s *SyncService) syncInsights(ctx context.Context, client *fetch.Client, session *integration.SyncSession, conn *integration.PlatformConnection, r integration.DateRange, log *zap.Logger) error {
	archived := 0
	for _, level := range insightLevels {
		pager, err := s.ads.InsightsPager(client, conn.AccountID, level, r)
		if err != nil {
			return err
		}
		dates := integration.NewInsightDates(r)

		for {
			page, err := pager.Next(ctx)
			if errors.Is(err, fetch.Done) {
				break
			}
			if err != nil {
				return fmt.Errorf("%s insights page %d: %w", level, pager.Requests()+1, err)
			}

			archived++
			s.archivePage(ctx, session, archived, page, log)

			rows, skipped := s.ads.DecodeInsights(page.Items)
			if skipped > 0 {
				session.AddError(fmt.Sprintf("%s insights page %d: %d rows could not be decoded", level, page.Number, skipped))
			}

			changed := false
			stored := 0
			for _, row := range rows {
				entityID := row.EntityID(level)
				record := integration.BuildInsightRecord(session.OrganizationID, level, row, dates.Fallback(entityID))
				dates.Observe(entityID, record.Date)
				if record.EntityID == "" {
					session.AddError(fmt.Sprintf("%s insight row on %s has no entity id", level, record.Date))
					continue
				}
				c, err := s.upsertInsight(ctx, &record)
				if err != nil {
					return fmt.Errorf("failed to upsert insight: %w", err)
				}
				stored++
				changed = changed || c
			}

			session.RecordProgress(stored, changed, s.now())
			if err := s.repos.Sessions.Update(ctx, session); err != nil {
				return fmt.Errorf("failed to update sync session: %w", err)
			}
		}
	}
	return nil
}

// upsertInsight inserts a new record or patches an existing one whose metrics changed
func (s *SyncService) upsertInsight(ctx context.Context, record *integration.CanonicalInsightRecord) (bool, error) {
	record.SyncedAt = s.now()
	existing, err := s.repos.Insights.FindByKey(ctx, record.Key())
	if errors.Is(err, integration.ErrRecordNotFound) {
		return true, s.repos.Insights.Insert(ctx, record)
	}
	if err != nil {
		return false, err
	}
	if existing.SameMetrics(record) {
		return false, nil
	}
	record.ID = existing.ID
	return true, s.repos.Insights.Patch(ctx, record)
}

// ---------------------------------------------------------------------------
// Storefront orders
// ---------------------------------------------------------------------------

func (s *SyncService) syncOrders(ctx context.Context, client *fetch.Client, session *integration.SyncSession, r integration.DateRange, log *zap.Logger) error {
	pager, err := s.storefront.OrdersPager(client, r)
	if err != nil {
		return err
	}

	for {
		page, err := pager.Next(ctx)
		if errors.Is(err, fetch.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("orders page %d: %w", pager.Requests()+1, err)
		}

		s.archivePage(ctx, session, page.Number, page, log)
		for _, gqlErr := range page.Errors {
			session.AddError(fmt.Sprintf("orders page %d: %s", page.Number, gqlErr.Message))
		}

		orders, skipped := s.storefront.DecodeOrders(page.Items)
		if skipped > 0 {
			session.AddError(fmt.Sprintf("orders page %d: %d orders could not be decoded", page.Number, skipped))
		}

		changed := false
		for _, raw := range orders {
			record := integration.BuildOrderRecord(session.OrganizationID, raw, r.End)
			c, err := s.upsertOrder(ctx, &record)
			if err != nil {
				return fmt.Errorf("failed to upsert order: %w", err)
			}
			changed = changed || c
		}

		now := s.now()
		session.RecordOrders(len(orders), len(page.Items), now)
		session.RecordProgress(len(orders), changed, now)
		if err := s.repos.Sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("failed to update sync session: %w", err)
		}
	}
}

func (s *SyncService) upsertOrder(ctx context.Context, record *integration.CanonicalOrderRecord) (bool, error) {
	record.SyncedAt = s.now()
	existing, err := s.repos.Orders.FindByKey(ctx, record.Key())
	if errors.Is(err, integration.ErrRecordNotFound) {
		return true, s.repos.Orders.Insert(ctx, record)
	}
	if err != nil {
		return false, err
	}
	if existing.SameMetrics(record) {
		return false, nil
	}
	record.ID = existing.ID
	return true, s.repos.Orders.Patch(ctx, record)
}

// archivePage stores the raw page. Archive failures are logged, not fatal.
func (s *SyncService) archivePage(ctx context.Context, session *integration.SyncSession, n int, page *fetch.Page, log *zap.Logger) {
	if s.archive == nil {
		return
	}
	payload, err := json.Marshal(page.Items)
	if err != nil {
		log.Warn("Failed to encode raw page", zap.Int("page", n), zap.Error(err))
		return
	}
	key := integration.ArchiveKey{
		OrganizationID: session.OrganizationID,
		Platform:       session.Platform,
		SessionID:      session.ID,
		Page:           n,
	}
	if err := s.archive.Archive(ctx, key, payload); err != nil {
		log.Warn("Failed to archive raw page", zap.Int("page", n), zap.Error(err))
	}
}
