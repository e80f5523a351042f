package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/interfaces/http/dto"
)

func bindRouter[T any]() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/bind", func(c *gin.Context) {
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func postJSON(router *gin.Engine, body string) (*httptest.ResponseRecorder, dto.Response) {
	req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestValidation_ActivityRequest(t *testing.T) {
	router := bindRouter[dto.ActivityRequest]()

	w, _ := postJSON(router, `{"score": 0}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := postJSON(router, `{"score": 150}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "score", resp.Error.Details[0].Field)
	assert.Equal(t, "Must be at most 100", resp.Error.Details[0].Message)
	assert.NotEmpty(t, resp.Error.RequestID)

	w, resp = postJSON(router, `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This field is required", resp.Error.Details[0].Message)
}

func TestValidation_ManualSyncRequest(t *testing.T) {
	router := bindRouter[dto.ManualSyncRequest]()

	w, _ := postJSON(router, `{"organizationId":"6f1c1c5e-8a53-4f7e-9a51-1c0d5a8b7e01","platform":"ads","dateRange":{"start":"2024-01-01","end":"2024-01-07"}}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := postJSON(router, `{"organizationId":"nope","platform":"tiktok"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := map[string]string{}
	for _, d := range resp.Error.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Invalid UUID format", fields["organizationId"])
	assert.Equal(t, "Must be one of: storefront ads", fields["platform"])

	w, resp = postJSON(router, `{"organizationId":"6f1c1c5e-8a53-4f7e-9a51-1c0d5a8b7e01","platform":"ads","dateRange":{"start":"01/01/2024","end":"2024-01-07"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "start", resp.Error.Details[0].Field)
}

func TestValidation_BusinessHoursRequest(t *testing.T) {
	router := bindRouter[dto.BusinessHoursRequest]()

	w, _ := postJSON(router, `{"enabled":true,"timezone":"UTC"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := postJSON(router, `{"enabled":true,"timezone":"Mars/Olympus"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "timezone", resp.Error.Details[0].Field)
}

func TestFormatValidationErrors_NonValidatorError(t *testing.T) {
	resp := FormatValidationErrors(errors.New("unexpected EOF"), "req-1")
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "unexpected EOF", resp.Error.Message)
	assert.Empty(t, resp.Error.Details)
}
