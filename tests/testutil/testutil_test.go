package testutil

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/interfaces/http/dto"
)

func TestNewMockDB(t *testing.T) {
	mockDB := NewMockDB(t)
	defer mockDB.Close()

	assert.NotNil(t, mockDB.DB)
	assert.NotNil(t, mockDB.Mock)
	assert.NotNil(t, mockDB.SqlDB)
}

func TestMockDB_ExpectationsWereMet(t *testing.T) {
	mockDB := NewMockDB(t)
	defer mockDB.Close()

	// No expectations set, should pass
	mockDB.ExpectationsWereMet(t)
}

func TestNewTestContext(t *testing.T) {
	tc := NewTestContext(t)

	assert.NotNil(t, tc.Context)
	assert.NotNil(t, tc.Recorder)
	assert.NotNil(t, tc.Engine)
	assert.Equal(t, http.MethodGet, tc.Context.Request.Method)
}

func TestTestContext_SetRequestID(t *testing.T) {
	tc := NewTestContext(t)

	tc.SetRequestID("req-123")

	val, exists := tc.Context.Get("X-Request-ID")
	assert.True(t, exists)
	assert.Equal(t, "req-123", val)
}

func TestTestContext_SetParam(t *testing.T) {
	tc := NewTestContext(t)

	tc.SetParam("org", TestOrganizationID().String())

	assert.Equal(t, TestOrganizationID().String(), tc.Context.Param("org"))
}

func TestTestContext_SetHeader(t *testing.T) {
	tc := NewTestContext(t)

	tc.SetHeader("Authorization", "Bearer token")

	assert.Equal(t, "Bearer token", tc.Context.Request.Header.Get("Authorization"))
}

func TestTestContext_ResponseCode(t *testing.T) {
	tc := NewTestContext(t)
	tc.Recorder.WriteHeader(http.StatusCreated)

	assert.Equal(t, http.StatusCreated, tc.ResponseCode())
}

func TestNewTestUUID(t *testing.T) {
	uuid1 := NewTestUUID("test-seed")
	uuid2 := NewTestUUID("test-seed")
	uuid3 := NewTestUUID("different-seed")

	// Same seed should produce same UUID
	assert.Equal(t, uuid1, uuid2)

	// Different seed should produce different UUID
	assert.NotEqual(t, uuid1, uuid3)
}

func TestNewRandomUUID(t *testing.T) {
	uuid1 := NewRandomUUID()
	uuid2 := NewRandomUUID()

	// Random UUIDs should be different
	assert.NotEqual(t, uuid1, uuid2)
}

func TestTestOrganizationID(t *testing.T) {
	orgID := TestOrganizationID()

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", orgID.String())
	assert.Equal(t, TestOrganizationID(), orgID)
}

func TestContextWithTimeout(t *testing.T) {
	ctx, cancel := ContextWithTimeout(t, 100*time.Millisecond)
	defer cancel()

	require.NotNil(t, ctx)

	// Context should have deadline
	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.True(t, deadline.After(time.Now()))
}

func TestContextWithCancel(t *testing.T) {
	ctx, cancel := ContextWithCancel(t)

	select {
	case <-ctx.Done():
		t.Fatal("Context should not be cancelled yet")
	default:
		// Expected
	}

	cancel()

	select {
	case <-ctx.Done():
		// Expected
	default:
		t.Fatal("Context should be cancelled")
	}
}

func TestAssertEventually(t *testing.T) {
	var counter atomic.Int32
	go func() {
		time.Sleep(50 * time.Millisecond)
		counter.Store(1)
	}()

	AssertEventually(t, func() bool {
		return counter.Load() == 1
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestAssertNever(t *testing.T) {
	value := false

	AssertNever(t, func() bool {
		return value
	}, 50*time.Millisecond, 10*time.Millisecond)
}

func apiRouter() *gin.Engine {
	router := gin.New()
	router.POST("/api/v1/sync/schedule", func(c *gin.Context) {
		var req map[string]string
		if err := c.ShouldBindJSON(&req); err != nil || c.ContentType() != "application/json" {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeValidation, "bad body"))
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req))
	})
	router.GET("/api/v1/sync/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta([]string{"a", "b"}, 12, 2, 5))
	})
	return router
}

func TestServeJSON(t *testing.T) {
	router := apiRouter()

	t.Run("body is sent as json", func(t *testing.T) {
		w := ServeJSON(router, http.MethodPost, "/api/v1/sync/schedule", `{"organizationId":"org-1"}`)

		require.Equal(t, http.StatusOK, w.Code)
		got := DataAs[map[string]string](t, w)
		assert.Equal(t, "org-1", got["organizationId"])
	})

	t.Run("pagination meta is decoded", func(t *testing.T) {
		w := ServeJSON(router, http.MethodGet, "/api/v1/sync/sessions", "")

		env := DecodeEnvelope(t, w)
		require.NotNil(t, env.Meta)
		assert.Equal(t, int64(12), env.Meta.Total)
		assert.Equal(t, 3, env.Meta.TotalPages)
		assert.Equal(t, []string{"a", "b"}, DataAs[[]string](t, w))
	})

	t.Run("error envelope", func(t *testing.T) {
		w := ServeJSON(router, http.MethodPost, "/api/v1/sync/schedule", `not json`)

		info := RequireAPIError(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
		assert.Equal(t, "bad body", info.Message)
	})
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	assert.Equal(t, start, clock.Now())
	clock.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), clock.Now())
	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}
