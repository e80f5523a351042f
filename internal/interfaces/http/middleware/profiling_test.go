package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfiling(t *testing.T) {
	var route, method string
	var labelled bool
	capture := func(c *gin.Context) {
		route, labelled = pprof.Label(c.Request.Context(), "route")
		method, _ = pprof.Label(c.Request.Context(), "method")
		c.Status(http.StatusOK)
	}

	t.Run("labels matched routes", func(t *testing.T) {
		router := gin.New()
		router.Use(Profiling(true))
		router.GET("/api/v1/sync/profiles/:org", capture)

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sync/profiles/abc", nil))

		assert.True(t, labelled)
		assert.Equal(t, "/api/v1/sync/profiles/:org", route)
		assert.Equal(t, http.MethodGet, method)
	})

	t.Run("skip paths are not labelled", func(t *testing.T) {
		labelled = false
		router := gin.New()
		router.Use(Profiling(true, "/health"))
		router.GET("/health", capture)

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.False(t, labelled)
	})

	t.Run("disabled is a pass-through", func(t *testing.T) {
		labelled = false
		router := gin.New()
		router.Use(Profiling(false))
		router.GET("/x", capture)

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.False(t, labelled)
	})
}
