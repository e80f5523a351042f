package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/adsync/backend/internal/application/integration"
	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/logger"
	"github.com/adsync/backend/internal/infrastructure/scheduler"
	"github.com/adsync/backend/internal/interfaces/http/dto"
	"github.com/adsync/backend/internal/interfaces/http/middleware"
)

// SyncScheduler is the scheduling surface the admin API drives
type SyncScheduler interface {
	ScheduleNext(ctx context.Context, orgID uuid.UUID, platforms []integration.PlatformCode) (scheduler.ScheduleResult, error)
	ScheduleInitialSync(ctx context.Context, orgID uuid.UUID, platforms []integration.PlatformCode) ([]*integration.Job, error)
	ScheduleManualSync(ctx context.Context, orgID uuid.UUID, platform integration.PlatformCode, dateRange *integration.DateRange) (*integration.Job, error)
	RunHourlyCheck(ctx context.Context) (scheduler.HourlyCheckResult, error)
	GetProfile(ctx context.Context, orgID uuid.UUID) (*integration.SyncProfile, error)
	RecordActivity(ctx context.Context, orgID uuid.UUID, score int) (*integration.SyncProfile, error)
	PauseProfile(ctx context.Context, orgID uuid.UUID) (*integration.SyncProfile, error)
	ResumeProfile(ctx context.Context, orgID uuid.UUID) (*integration.SyncProfile, error)
	ConfigureBusinessHours(ctx context.Context, orgID uuid.UUID, enabled bool, timezone string) (*integration.SyncProfile, error)
}

// SessionLister pages through sync sessions
type SessionLister interface {
	List(ctx context.Context, filter integration.SessionFilter) ([]*integration.SyncSession, int64, error)
}

// JobHistory exposes the worker pool's recent executions
type JobHistory interface {
	History(limit int) []scheduler.JobRecord
	FailedHistory(limit int) []scheduler.JobRecord
}

// SyncHandler serves /api/v1/sync
type SyncHandler struct {
	BaseHandler
	scheduler SyncScheduler
	sessions  SessionLister
	history   JobHistory
	now       func() time.Time
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(s SyncScheduler, sessions SessionLister, history JobHistory) *SyncHandler {
	return &SyncHandler{
		scheduler: s,
		sessions:  sessions,
		history:   history,
		now:       time.Now,
	}
}

// InitialSyncResponse lists the backfill jobs seeded for a tenant
type InitialSyncResponse struct {
	Jobs []appintegration.JobResponse `json:"jobs"`
}

// JobHistoryResponse lists recent worker executions, newest first
type JobHistoryResponse struct {
	Records []scheduler.JobRecord `json:"records"`
}

// ---------------------------------------------------------------------------
// Triggers
// ---------------------------------------------------------------------------

// InitialSync handles POST /initial
func (h *SyncHandler) InitialSync(c *gin.Context) {
	var req dto.InitialSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	orgID, platforms, ok := h.parseTarget(c, req.OrganizationID, req.Platforms)
	if !ok {
		return
	}

	jobs, err := h.scheduler.ScheduleInitialSync(c.Request.Context(), orgID, platforms)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.audit(c, "initial sync requested", orgID, zap.Int("jobs", len(jobs)))
	h.Created(c, InitialSyncResponse{Jobs: appintegration.ToJobResponses(jobs)})
}

// Schedule handles POST /schedule
func (h *SyncHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	orgID, platforms, ok := h.parseTarget(c, req.OrganizationID, req.Platforms)
	if !ok {
		return
	}

	result, err := h.scheduler.ScheduleNext(c.Request.Context(), orgID, platforms)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.audit(c, "schedule requested", orgID, zap.String("outcome", string(result.Outcome)))
	h.Success(c, result)
}

// ManualSync handles POST /manual
func (h *SyncHandler) ManualSync(c *gin.Context) {
	var req dto.ManualSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	orgID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidOrganization, "organizationId must be a UUID")
		return
	}
	platform, err := integration.ParsePlatformCode(req.Platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	dateRange, err := req.DateRange.ToDateRange()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	job, err := h.scheduler.ScheduleManualSync(c.Request.Context(), orgID, platform, dateRange)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.audit(c, "manual sync requested", orgID,
		zap.String("platform", platform.String()),
		zap.String("job_id", job.ID.String()),
	)
	h.Created(c, appintegration.ToJobResponse(job))
}

// HourlyCheck handles POST /hourly-check
func (h *SyncHandler) HourlyCheck(c *gin.Context) {
	result, err := h.scheduler.RunHourlyCheck(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ---------------------------------------------------------------------------
// Sessions and history
// ---------------------------------------------------------------------------

// ListSessions handles GET /sessions
func (h *SyncHandler) ListSessions(c *gin.Context) {
	var q dto.SessionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	filter := q.ToFilter()

	sessions, total, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, appintegration.ToSessionResponses(sessions, h.now()), total, filter.Page, filter.PageSize)
}

// JobHistory handles GET /jobs/history
func (h *SyncHandler) JobHistory(c *gin.Context) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	var records []scheduler.JobRecord
	if q.Failed {
		records = h.history.FailedHistory(q.EffectiveLimit())
	} else {
		records = h.history.History(q.EffectiveLimit())
	}
	if records == nil {
		records = []scheduler.JobRecord{}
	}
	h.Success(c, JobHistoryResponse{Records: records})
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// GetProfile handles GET /profiles/:org
func (h *SyncHandler) GetProfile(c *gin.Context) {
	orgID, ok := h.orgParam(c)
	if !ok {
		return
	}
	profile, err := h.scheduler.GetProfile(c.Request.Context(), orgID)
	h.respondProfile(c, profile, err)
}

// PauseProfile handles POST /profiles/:org/pause
func (h *SyncHandler) PauseProfile(c *gin.Context) {
	orgID, ok := h.orgParam(c)
	if !ok {
		return
	}
	profile, err := h.scheduler.PauseProfile(c.Request.Context(), orgID)
	if err == nil {
		h.audit(c, "sync profile paused", orgID)
	}
	h.respondProfile(c, profile, err)
}

// ResumeProfile handles POST /profiles/:org/resume
func (h *SyncHandler) ResumeProfile(c *gin.Context) {
	orgID, ok := h.orgParam(c)
	if !ok {
		return
	}
	profile, err := h.scheduler.ResumeProfile(c.Request.Context(), orgID)
	if err == nil {
		h.audit(c, "sync profile resumed", orgID)
	}
	h.respondProfile(c, profile, err)
}

// RecordActivity handles POST /profiles/:org/activity
func (h *SyncHandler) RecordActivity(c *gin.Context) {
	orgID, ok := h.orgParam(c)
	if !ok {
		return
	}
	var req dto.ActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	profile, err := h.scheduler.RecordActivity(c.Request.Context(), orgID, *req.Score)
	h.respondProfile(c, profile, err)
}

// ConfigureBusinessHours handles PUT /profiles/:org/business-hours
func (h *SyncHandler) ConfigureBusinessHours(c *gin.Context) {
	orgID, ok := h.orgParam(c)
	if !ok {
		return
	}
	var req dto.BusinessHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	profile, err := h.scheduler.ConfigureBusinessHours(c.Request.Context(), orgID, *req.Enabled, req.Timezone)
	h.respondProfile(c, profile, err)
}

func (h *SyncHandler) respondProfile(c *gin.Context, profile *integration.SyncProfile, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToProfileResponse(profile))
}

// parseTarget converts an organization id and optional platform list
func (h *SyncHandler) parseTarget(c *gin.Context, org string, rawPlatforms []string) (uuid.UUID, []integration.PlatformCode, bool) {
	orgID, err := uuid.Parse(org)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidOrganization, "organizationId must be a UUID")
		return uuid.Nil, nil, false
	}
	platforms, err := dto.ParsePlatforms(rawPlatforms)
	if err != nil {
		h.HandleError(c, err)
		return uuid.Nil, nil, false
	}
	return orgID, platforms, true
}

// audit logs operator-initiated changes with the acting subject
func (h *SyncHandler) audit(c *gin.Context, msg string, orgID uuid.UUID, fields ...zap.Field) {
	fields = append(fields,
		zap.String("organization_id", orgID.String()),
		zap.String("operator", middleware.GetJWTSubject(c)),
	)
	logger.GetGinLogger(c).Info(msg, fields...)
}
