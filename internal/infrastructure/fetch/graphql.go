package fetch

import (
	"bytes"
	"encoding/json"
)

// throttledCode is the GraphQL error extension code signalling an exhausted bucket
const throttledCode = "THROTTLED"

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLError is one entry of a GraphQL response's errors array
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code, or "" when absent
func (e GraphQLError) Code() string {
	if code, ok := e.Extensions["code"].(string); ok {
		return code
	}
	return ""
}

type costExtension struct {
	RequestedQueryCost float64         `json:"requestedQueryCost"`
	ActualQueryCost    float64         `json:"actualQueryCost"`
	ThrottleStatus     *ThrottleStatus `json:"throttleStatus"`
}

type responseExtensions struct {
	Cost *costExtension `json:"cost"`
}

// GraphQLResponse is a decoded GraphQL response.
// Errors are platform-reported and returned alongside Data, never as a Go error.
type GraphQLResponse struct {
	Data       json.RawMessage     `json:"data"`
	Errors     []GraphQLError      `json:"errors,omitempty"`
	Extensions *responseExtensions `json:"extensions,omitempty"`
	// Throttle is the bucket state from extensions.cost.throttleStatus
	Throttle *ThrottleStatus `json:"-"`
}

// HasData reports whether the response carries a non-null data object
func (r *GraphQLResponse) HasData() bool {
	d := bytes.TrimSpace(r.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

func (r *GraphQLResponse) throttled() bool {
	for _, e := range r.Errors {
		if e.Code() == throttledCode {
			return true
		}
	}
	return r.Throttle.Exhausted() && !r.HasData()
}

func (r *GraphQLResponse) resolveThrottle() {
	if r.Extensions == nil || r.Extensions.Cost == nil || r.Extensions.Cost.ThrottleStatus == nil {
		return
	}
	status := *r.Extensions.Cost.ThrottleStatus
	status.RequestedCost = r.Extensions.Cost.RequestedQueryCost
	status.ActualCost = r.Extensions.Cost.ActualQueryCost
	r.Throttle = &status
}
