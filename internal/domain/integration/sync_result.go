package integration

import "github.com/google/uuid"

// SyncResult is the structured outcome a job handler reports to the worker pool.
// Handlers never return raw errors; failures are described here.
type SyncResult struct {
	Success          bool
	Skipped          bool
	SkipReason       string
	SessionID        uuid.UUID
	RecordsProcessed int64
	DataChanged      bool
	// Retryable marks throttling and transport failures worth re-enqueueing
	Retryable bool
	Errors    []string
}

// SkippedResult returns a successful no-op result
func SkippedResult(reason string) SyncResult {
	return SyncResult{Success: true, Skipped: true, SkipReason: reason}
}

// FailedResult returns a failed result carrying err
func FailedResult(err error, retryable bool) SyncResult {
	r := SyncResult{Retryable: retryable}
	if err != nil {
		r.Errors = []string{err.Error()}
	}
	return r
}
