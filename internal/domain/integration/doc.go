// Package integration contains the Integration bounded context.
// This context owns everything needed to pull advertising and commerce data
// from third-party platforms into the canonical store on a per-tenant schedule.
//
// Key concepts:
//   - PlatformConnection: a tenant's link to the storefront or ads platform
//   - SyncProfile: per-tenant activity profile driving the adaptive schedule
//   - Job: immutable unit of scheduled work consumed by the worker pool
//   - SyncSession: lifecycle and progress of one sync run
//   - CanonicalInsightRecord / CanonicalOrderRecord: normalized, money-safe records
//     produced by the builders from raw platform payloads
//
// Design Pattern: Ports & Adapters
//   - Ports (repositories, token provider, archive) are defined here
//   - Adapters (GORM, HTTP clients, S3) are in the infrastructure layer
package integration
