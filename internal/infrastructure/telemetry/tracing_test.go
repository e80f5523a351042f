package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/adsync/backend/internal/infrastructure/telemetry"
)

// setupTestTracer installs an in-memory span recorder as the global provider
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "sync.insights",
		telemetry.WithAttribute("page", 3),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.insights", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	assert.Equal(t, int64(3), attrMap(spans[0].Attributes())["page"].AsInt64())
}

func TestStartJobSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartJobSpan(context.Background(), "sync:scheduled", "ads", 2)
	assert.NotEmpty(t, telemetry.GetTraceID(ctx))
	assert.NotEmpty(t, telemetry.GetSpanID(ctx))
	telemetry.SetAttributes(span, telemetry.SpanAttrRecords, int64(42), 7, "ignored")
	telemetry.SetOK(span)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, "job.sync:scheduled", got.Name())
	assert.Equal(t, trace.SpanKindConsumer, got.SpanKind())
	assert.Equal(t, codes.Ok, got.Status().Code)

	attrs := attrMap(got.Attributes())
	assert.Equal(t, "sync:scheduled", attrs[telemetry.SpanAttrJobType].AsString())
	assert.Equal(t, "ads", attrs[telemetry.SpanAttrPlatform].AsString())
	assert.Equal(t, int64(2), attrs[telemetry.SpanAttrAttempt].AsInt64())
	assert.Equal(t, int64(42), attrs[telemetry.SpanAttrRecords].AsInt64())
	_, hasIgnored := attrs["ignored"]
	assert.False(t, hasIgnored)
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "sync.orders")
	telemetry.RecordError(span, errors.New("fetch: throttled after 5 attempts (HTTP 429)"))
	telemetry.RecordError(span, nil)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "throttled")
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, telemetry.GetTraceID(context.Background()))
	assert.Empty(t, telemetry.GetSpanID(context.Background()))
}
