package main

import (
	"github.com/adsync/backend/internal/application/integration"
	domain "github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/config"
	"github.com/adsync/backend/internal/infrastructure/ecommerce"
	"github.com/adsync/backend/internal/infrastructure/fetch"
	"github.com/adsync/backend/internal/infrastructure/scheduler"
	"github.com/adsync/backend/internal/infrastructure/telemetry"
)

// fetchConfig overlays configured values on the stock client policy
func fetchConfig(c config.FetchConfig) fetch.Config {
	cfg := fetch.DefaultConfig()
	if c.MinRequestInterval > 0 {
		cfg.MinRequestInterval = c.MinRequestInterval
	}
	if c.SafetyBuffer > 0 {
		cfg.SafetyBuffer = c.SafetyBuffer
	}
	if c.BaseDelay > 0 {
		cfg.BaseDelay = c.BaseDelay
	}
	if c.Multiplier > 0 {
		cfg.Multiplier = c.Multiplier
	}
	if c.MaxDelay > 0 {
		cfg.MaxDelay = c.MaxDelay
	}
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.JitterRatio > 0 {
		cfg.JitterRatio = c.JitterRatio
	}
	if c.RequestTimeout > 0 {
		cfg.RequestTimeout = c.RequestTimeout
	}
	if c.DefaultRestoreRate > 0 {
		cfg.DefaultRestoreRate = c.DefaultRestoreRate
	}
	if c.MaxResponseSize > 0 {
		cfg.MaxResponseSize = c.MaxResponseSize
	}
	return cfg
}

func adsAdapter(c config.AdsConfig) (*ecommerce.AdsAdapter, error) {
	cfg := ecommerce.NewAdsConfig()
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.APIVersion != "" {
		cfg.APIVersion = c.APIVersion
	}
	if c.PageLimit > 0 {
		cfg.PageLimit = c.PageLimit
	}
	cfg.HeaderSafetyBuffer = c.HeaderSafetyBuffer
	return ecommerce.NewAdsAdapter(cfg)
}

func storefrontAdapter(c config.StorefrontConfig) (*ecommerce.StorefrontAdapter, error) {
	cfg := ecommerce.NewStorefrontConfig()
	if c.APIVersion != "" {
		cfg.APIVersion = c.APIVersion
	}
	if c.EndpointTemplate != "" {
		cfg.EndpointTemplate = c.EndpointTemplate
	}
	if c.PageSize > 0 {
		cfg.PageSize = c.PageSize
	}
	cfg.SafetyBuffer = c.SafetyBuffer
	return ecommerce.NewStorefrontAdapter(cfg)
}

// schedulerConfig maps scheduler settings; sessions count as stale after the
// same interval as worker claims
func schedulerConfig(c config.SchedulerConfig, w config.WorkerConfig) scheduler.SyncSchedulerConfig {
	return scheduler.SyncSchedulerConfig{
		DuplicateWindow:     c.DuplicateWindow,
		JitterRatio:         c.JitterRatio,
		InitialLookbackDays: c.InitialLookback,
		SweepBatchSize:      c.SweepBatchSize,
		StaleSessionAfter:   w.StaleClaimAfter,
		Policy: domain.TierPolicy{
			HighThreshold:   c.HighThreshold,
			MediumThreshold: c.MediumThreshold,
			HighInterval:    c.HighInterval,
			MediumInterval:  c.MediumInterval,
			LowInterval:     c.LowInterval,
		},
		BusinessHours: scheduler.BusinessHours{
			Start: c.BusinessHoursStart,
			End:   c.BusinessHoursEnd,
		},
	}
}

func workerPoolConfig(c config.WorkerConfig) scheduler.WorkerPoolConfig {
	cfg := scheduler.DefaultWorkerPoolConfig()
	cfg.Concurrency = c.Concurrency
	cfg.PollInterval = c.PollInterval
	cfg.JobTimeout = c.JobTimeout
	cfg.RetryAttempts = c.RetryAttempts
	cfg.RetryDelay = c.RetryDelay
	cfg.HistorySize = c.HistorySize
	cfg.StaleClaimAfter = c.StaleClaimAfter
	return cfg
}

func syncServiceConfig(c config.SchedulerConfig, w config.WorkerConfig) integration.SyncServiceConfig {
	return integration.SyncServiceConfig{
		IncrementalWindowDays: c.IncrementalWindow,
		InitialLookbackDays:   c.InitialLookback,
		StaleSessionAfter:     w.StaleClaimAfter,
	}
}

func tracerConfig(c config.TelemetryConfig) telemetry.Config {
	return telemetry.Config{
		Enabled:           c.Enabled,
		CollectorEndpoint: c.CollectorEndpoint,
		SamplingRatio:     c.SamplingRatio,
		ServiceName:       c.ServiceName,
		Insecure:          c.Insecure,
	}
}

func meterConfig(c config.TelemetryConfig) telemetry.MetricsConfig {
	return telemetry.MetricsConfig{
		Enabled:           c.Enabled && c.MetricsEnabled,
		CollectorEndpoint: c.CollectorEndpoint,
		ExportInterval:    c.MetricsInterval,
		ServiceName:       c.ServiceName,
		Insecure:          c.Insecure,
	}
}

func logsConfig(c config.TelemetryConfig) telemetry.LogsConfig {
	return telemetry.LogsConfig{
		Enabled:           c.Enabled && c.LogsEnabled,
		CollectorEndpoint: c.CollectorEndpoint,
		ServiceName:       c.ServiceName,
		Insecure:          c.Insecure,
	}
}

func profilerConfig(c config.ProfilingConfig) telemetry.ProfilerConfig {
	return telemetry.ProfilerConfig{
		Enabled:           c.Enabled,
		ServerAddress:     c.ServerAddress,
		ApplicationName:   c.ApplicationName,
		BasicAuthUser:     c.BasicAuthUser,
		BasicAuthPassword: c.BasicAuthPassword,
	}
}
