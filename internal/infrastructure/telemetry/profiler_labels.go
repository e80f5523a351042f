package telemetry

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelJobType  = "job_type"
	ProfilingLabelPlatform = "platform"
	ProfilingLabelRoute    = "route"
	ProfilingLabelMethod   = "method"
)

// MaxLabelValueLength caps label values to bound profile cardinality
const MaxLabelValueLength = 128

// highCardinalityLabels are dropped from profiling labels.
// Organization ids are unbounded across tenants, so they are excluded too.
var highCardinalityLabels = map[string]bool{
	"organization_id": true,
	"job_id":          true,
	"session_id":      true,
	"request_id":      true,
	"trace_id":        true,
	"span_id":         true,
}

// WithProfilingLabels runs fn with pprof labels that Pyroscope uses to slice profiles.
// Empty and high-cardinality labels are dropped.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// JobLabels labels CPU spent on one job
func JobLabels(jobType, platform string) map[string]string {
	return map[string]string{
		ProfilingLabelJobType:  jobType,
		ProfilingLabelPlatform: platform,
	}
}

// HTTPRequestLabels labels CPU spent serving one route
func HTTPRequestLabels(route, method string) map[string]string {
	return map[string]string{
		ProfilingLabelRoute:  route,
		ProfilingLabelMethod: method,
	}
}

// sanitizeLabels returns sorted key/value pairs with normalized keys
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if value == "" {
			continue
		}
		normalized := sanitizeLabelKey(key)
		if normalized == "" || highCardinalityLabels[normalized] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, normalized, value)
	}
	return pairs
}

// sanitizeLabelKey lowercases key and keeps only [a-z0-9_]
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)

	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
