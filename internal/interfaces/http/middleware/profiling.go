package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/adsync/backend/internal/infrastructure/telemetry"
)

// Profiling tags CPU spent in each request with its route pattern and method.
// Requests that match no route, such as probes answered by NoRoute, are not tagged.
func Profiling(enabled bool, skipPaths ...string) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		labels := telemetry.HTTPRequestLabels(route, c.Request.Method)
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
