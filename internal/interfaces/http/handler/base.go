// Package handler implements the admin HTTP API: sync triggers, profile
// management, session listing, worker history and service health.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/logger"
	"github.com/adsync/backend/internal/interfaces/http/dto"
	"github.com/adsync/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID set by the RequestID middleware
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// ValidationError reports binding failures with per-field details. A body cut
// off by the size limit is reported as ERR_REQUEST_TOO_LARGE instead.
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge, "Request body exceeds the configured limit")
		return
	}
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(err, getRequestID(c)))
}

// errorMapping ties a domain sentinel to an API error code
type errorMapping struct {
	target error
	code   string
}

// domainErrors is checked in order; the first errors.Is match wins
var domainErrors = []errorMapping{
	{integration.ErrProfileNotFound, dto.ErrCodeNotFound},
	{integration.ErrSessionNotFound, dto.ErrCodeNotFound},
	{integration.ErrJobNotFound, dto.ErrCodeNotFound},
	{integration.ErrPlatformInvalidCode, dto.ErrCodeInvalidPlatform},
	{integration.ErrProfileInvalidOrg, dto.ErrCodeInvalidOrganization},
	{integration.ErrProfileInvalidScore, dto.ErrCodeValidation},
	{integration.ErrProfileInvalidTimezone, dto.ErrCodeValidation},
	{integration.ErrJobInvalidPayload, dto.ErrCodeInvalidDateRange},
	{integration.ErrPlatformNotConnected, dto.ErrCodePlatformNotConnected},
	{integration.ErrPlatformNotEnabled, dto.ErrCodePlatformNotConnected},
	{integration.ErrPlatformTokenNotFound, dto.ErrCodePlatformNotConnected},
	{integration.ErrPlatformMissingAccount, dto.ErrCodePlatformNotConnected},
	{integration.ErrPlatformMissingShop, dto.ErrCodePlatformNotConnected},
	{integration.ErrProfileNoActivePlatforms, dto.ErrCodePlatformNotConnected},
	{integration.ErrProfileAlreadyPaused, dto.ErrCodeInvalidState},
	{integration.ErrProfileNotPaused, dto.ErrCodeInvalidState},
	{integration.ErrSessionAlreadySyncing, dto.ErrCodeConflict},
	{integration.ErrJobPartitionBusy, dto.ErrCodeConflict},
	{context.DeadlineExceeded, dto.ErrCodeTimeout},
}

// HandleError converts domain errors to HTTP responses. Unmapped errors are
// logged and reported as ERR_INTERNAL without leaking their text.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			h.ErrorWithCode(c, m.code, err.Error())
			return
		}
	}

	logger.GetGinLogger(c).Error("Unhandled error in admin API", zap.Error(err))
	_ = c.Error(err)
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

// orgParam binds and parses the :org path parameter, writing the error response on failure
func (h *BaseHandler) orgParam(c *gin.Context) (uuid.UUID, bool) {
	var uri dto.OrgURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidOrganization, "organization must be a UUID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(uri.Org)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidOrganization, "organization must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
