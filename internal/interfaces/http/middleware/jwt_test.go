package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adsync/backend/internal/infrastructure/auth"
	"github.com/adsync/backend/internal/infrastructure/config"
)

const testJWTSecret = "test-secret-key-that-is-long-enough-for-hs256"

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{Secret: testJWTSecret, Issuer: "adsync-backend"})
}

func issue(t *testing.T, svc *auth.JWTService, ttl time.Duration, scopes ...string) string {
	t.Helper()
	token, err := svc.IssueToken("ops@example.com", scopes, ttl)
	require.NoError(t, err)
	return token
}

func authRouter(svc *auth.JWTService, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	handlers := append(extra, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": GetJWTSubject(c)})
	})
	router.GET("/api/v1/sync/sessions", handlers...)
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := newTestJWTService()
	router := authRouter(svc)

	t.Run("valid token exposes the subject", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/sessions", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, svc, time.Hour, auth.ScopeSyncRead))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ops@example.com")
	})

	t.Run("skip paths bypass authentication", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "ERR_INVALID_TOKEN"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "ERR_INVALID_TOKEN"},
		{"empty bearer", BearerPrefix, "ERR_INVALID_TOKEN"},
		{"garbage token", BearerPrefix + "not.a.jwt", "ERR_INVALID_TOKEN"},
		{"expired token", BearerPrefix + issue(t, svc, -time.Hour, auth.ScopeSyncRead), "ERR_TOKEN_EXPIRED"},
		{
			"foreign issuer",
			BearerPrefix + issue(t, auth.NewJWTService(config.JWTConfig{Secret: testJWTSecret, Issuer: "other"}), time.Hour),
			"ERR_UNAUTHORIZED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/sessions", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestJWTAuthMiddleware_OnError(t *testing.T) {
	var seen error
	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		JWTService: newTestJWTService(),
		OnError: func(c *gin.Context, err error) {
			seen = err
			c.AbortWithStatus(http.StatusTeapot)
		},
	}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.ErrorIs(t, seen, auth.ErrInvalidToken)
}

func TestRequireScope(t *testing.T) {
	svc := newTestJWTService()
	router := authRouter(svc, RequireScope(auth.ScopeSyncWrite))

	t.Run("read token is forbidden from write routes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/sessions", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, svc, time.Hour, auth.ScopeSyncRead))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "ERR_FORBIDDEN", errorCode(t, w))
	})

	t.Run("write token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/sessions", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, svc, time.Hour, auth.ScopeSyncWrite))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no claims is unauthorized", func(t *testing.T) {
		bare := gin.New()
		bare.GET("/x", RequireScope(auth.ScopeSyncRead), func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
