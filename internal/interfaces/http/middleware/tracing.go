package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adsync/backend/internal/infrastructure/telemetry"
)

// MaxRequestIDLength bounds request ids copied into span attributes
const MaxRequestIDLength = 128

// Tracing wraps otelgin and adds request, operator and tenant attributes.
// Responses with status >= 500 mark the span as failed.
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	base := otelgin.Middleware(serviceName)

	return func(c *gin.Context) {
		// otelgin calls c.Next; everything below runs after the handler chain
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		enrichSpan(c, span)
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if id := c.GetString(RequestIDKey); id != "" {
		if len(id) > MaxRequestIDLength {
			id = id[:MaxRequestIDLength]
		}
		span.SetAttributes(attribute.String("request_id", id))
	}
	if subject := GetJWTSubject(c); subject != "" {
		span.SetAttributes(attribute.String("enduser.id", subject))
	}
	if org := c.Param("org"); org != "" {
		span.SetAttributes(attribute.String(telemetry.SpanAttrOrganizationID, org))
	}
}
