package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	Profiling  ProfilingConfig
	Worker     WorkerConfig
	Scheduler  SchedulerConfig
	Fetch      FetchConfig
	Storefront StorefrontConfig
	Ads        AdsConfig
	Storage    StorageConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// AutoMigrate applies the embedded schema migrations on server start
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings.
// An empty Host selects the in-memory partition locker.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the admin API bearer token settings
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	// RequestTimeout bounds a handler's context; zero disables it
	RequestTimeout time.Duration
	// RateLimitRequests per RateLimitWindow are allowed per operator or client IP
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	LogsEnabled       bool          // Tee zap logs to the collector
	MetricsEnabled    bool          // Export OTel metrics to the collector
	MetricsInterval   time.Duration // OTel metric export interval
}

// ProfilingConfig holds Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// WorkerConfig holds job queue worker pool configuration
type WorkerConfig struct {
	Enabled      bool
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
	// RetryAttempts is the number of re-enqueues after the first attempt
	RetryAttempts int
	// RetryDelay is the base delay, doubled per attempt and capped at 30m
	RetryDelay time.Duration
	// ClaimLockTTL bounds a partition lock taken while claiming
	ClaimLockTTL time.Duration
	// StaleClaimAfter returns claims older than this to the queue
	StaleClaimAfter time.Duration
	HistorySize     int
	// PurgeRetention is the age after which finished jobs and terminal sessions are purged
	PurgeRetention time.Duration
}

// SchedulerConfig holds the adaptive sync scheduler configuration
type SchedulerConfig struct {
	Enabled            bool
	HourlyInterval     time.Duration
	DuplicateWindow    time.Duration
	JitterRatio        float64
	InitialLookback    int // days
	IncrementalWindow  int // days
	SweepBatchSize     int
	HighThreshold      int
	MediumThreshold    int
	HighInterval       time.Duration
	MediumInterval     time.Duration
	LowInterval        time.Duration
	BusinessHoursStart int // hour of day, inclusive
	BusinessHoursEnd   int // hour of day, exclusive
}

// FetchConfig holds the throttle-aware fetch client policy
type FetchConfig struct {
	MinRequestInterval time.Duration
	SafetyBuffer       float64
	BaseDelay          time.Duration
	Multiplier         float64
	MaxDelay           time.Duration
	MaxAttempts        int
	JitterRatio        float64
	RequestTimeout     time.Duration
	DefaultRestoreRate float64
	MaxResponseSize    int64
	ClientCacheSize    int
	ClientCacheTTL     time.Duration
}

// StorefrontConfig holds storefront GraphQL Admin API settings
type StorefrontConfig struct {
	APIVersion       string
	EndpointTemplate string
	PageSize         int
	SafetyBuffer     float64
}

// AdsConfig holds ads Graph API settings
type AdsConfig struct {
	BaseURL            string
	APIVersion         string
	PageLimit          int
	HeaderSafetyBuffer float64
}

// StorageConfig holds the raw payload archive settings (S3-compatible)
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ADSYNC_ prefix (e.g., ADSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	// Enable environment variable override
	v.SetEnvPrefix("ADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Background loops run unless explicitly switched off
	v.SetDefault("worker.enabled", true)
	v.SetDefault("scheduler.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout:    v.GetDuration("http.request_timeout"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
		},
		Worker: WorkerConfig{
			Enabled:         v.GetBool("worker.enabled"),
			Concurrency:     v.GetInt("worker.concurrency"),
			PollInterval:    v.GetDuration("worker.poll_interval"),
			JobTimeout:      v.GetDuration("worker.job_timeout"),
			RetryAttempts:   v.GetInt("worker.retry_attempts"),
			RetryDelay:      v.GetDuration("worker.retry_delay"),
			ClaimLockTTL:    v.GetDuration("worker.claim_lock_ttl"),
			StaleClaimAfter: v.GetDuration("worker.stale_claim_after"),
			HistorySize:     v.GetInt("worker.history_size"),
			PurgeRetention:  v.GetDuration("worker.purge_retention"),
		},
		Scheduler: SchedulerConfig{
			Enabled:            v.GetBool("scheduler.enabled"),
			HourlyInterval:     v.GetDuration("scheduler.hourly_interval"),
			DuplicateWindow:    v.GetDuration("scheduler.duplicate_window"),
			JitterRatio:        v.GetFloat64("scheduler.jitter_ratio"),
			InitialLookback:    v.GetInt("scheduler.initial_lookback_days"),
			IncrementalWindow:  v.GetInt("scheduler.incremental_window_days"),
			SweepBatchSize:     v.GetInt("scheduler.sweep_batch_size"),
			HighThreshold:      v.GetInt("scheduler.high_threshold"),
			MediumThreshold:    v.GetInt("scheduler.medium_threshold"),
			HighInterval:       v.GetDuration("scheduler.high_interval"),
			MediumInterval:     v.GetDuration("scheduler.medium_interval"),
			LowInterval:        v.GetDuration("scheduler.low_interval"),
			BusinessHoursStart: v.GetInt("scheduler.business_hours_start"),
			BusinessHoursEnd:   v.GetInt("scheduler.business_hours_end"),
		},
		Fetch: FetchConfig{
			MinRequestInterval: v.GetDuration("fetch.min_request_interval"),
			SafetyBuffer:       v.GetFloat64("fetch.safety_buffer"),
			BaseDelay:          v.GetDuration("fetch.base_delay"),
			Multiplier:         v.GetFloat64("fetch.multiplier"),
			MaxDelay:           v.GetDuration("fetch.max_delay"),
			MaxAttempts:        v.GetInt("fetch.max_attempts"),
			JitterRatio:        v.GetFloat64("fetch.jitter_ratio"),
			RequestTimeout:     v.GetDuration("fetch.request_timeout"),
			DefaultRestoreRate: v.GetFloat64("fetch.default_restore_rate"),
			MaxResponseSize:    v.GetInt64("fetch.max_response_size"),
			ClientCacheSize:    v.GetInt("fetch.client_cache_size"),
			ClientCacheTTL:     v.GetDuration("fetch.client_cache_ttl"),
		},
		Storefront: StorefrontConfig{
			APIVersion:       v.GetString("storefront.api_version"),
			EndpointTemplate: v.GetString("storefront.endpoint_template"),
			PageSize:         v.GetInt("storefront.page_size"),
			SafetyBuffer:     v.GetFloat64("storefront.safety_buffer"),
		},
		Ads: AdsConfig{
			BaseURL:            v.GetString("ads.base_url"),
			APIVersion:         v.GetString("ads.api_version"),
			PageLimit:          v.GetInt("ads.page_limit"),
			HeaderSafetyBuffer: v.GetFloat64("ads.header_safety_buffer"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "adsync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "adsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "adsync-backend"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 120
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.App.Name
	}

	// Worker defaults
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = 2 * time.Second
	}
	if cfg.Worker.JobTimeout == 0 {
		cfg.Worker.JobTimeout = 15 * time.Minute
	}
	if cfg.Worker.RetryAttempts == 0 {
		cfg.Worker.RetryAttempts = 3
	}
	if cfg.Worker.RetryDelay == 0 {
		cfg.Worker.RetryDelay = time.Minute
	}
	if cfg.Worker.ClaimLockTTL == 0 {
		cfg.Worker.ClaimLockTTL = 10 * time.Second
	}
	if cfg.Worker.StaleClaimAfter == 0 {
		cfg.Worker.StaleClaimAfter = 2 * cfg.Worker.JobTimeout
	}
	if cfg.Worker.HistorySize == 0 {
		cfg.Worker.HistorySize = 200
	}
	if cfg.Worker.PurgeRetention == 0 {
		cfg.Worker.PurgeRetention = 30 * 24 * time.Hour
	}

	// Scheduler defaults
	if cfg.Scheduler.HourlyInterval == 0 {
		cfg.Scheduler.HourlyInterval = time.Hour
	}
	if cfg.Scheduler.DuplicateWindow == 0 {
		cfg.Scheduler.DuplicateWindow = 30 * time.Second
	}
	if cfg.Scheduler.JitterRatio == 0 {
		cfg.Scheduler.JitterRatio = 0.1
	}
	if cfg.Scheduler.InitialLookback == 0 {
		cfg.Scheduler.InitialLookback = 60
	}
	if cfg.Scheduler.IncrementalWindow == 0 {
		cfg.Scheduler.IncrementalWindow = 3
	}
	if cfg.Scheduler.SweepBatchSize == 0 {
		cfg.Scheduler.SweepBatchSize = 100
	}
	if cfg.Scheduler.HighThreshold == 0 {
		cfg.Scheduler.HighThreshold = 70
	}
	if cfg.Scheduler.MediumThreshold == 0 {
		cfg.Scheduler.MediumThreshold = 30
	}
	if cfg.Scheduler.HighInterval == 0 {
		cfg.Scheduler.HighInterval = time.Hour
	}
	if cfg.Scheduler.MediumInterval == 0 {
		cfg.Scheduler.MediumInterval = 4 * time.Hour
	}
	if cfg.Scheduler.LowInterval == 0 {
		cfg.Scheduler.LowInterval = 12 * time.Hour
	}
	if cfg.Scheduler.BusinessHoursStart == 0 && cfg.Scheduler.BusinessHoursEnd == 0 {
		cfg.Scheduler.BusinessHoursStart = 8
		cfg.Scheduler.BusinessHoursEnd = 20
	}

	// Fetch defaults
	if cfg.Fetch.ClientCacheSize == 0 {
		cfg.Fetch.ClientCacheSize = 512
	}
	if cfg.Fetch.ClientCacheTTL == 0 {
		cfg.Fetch.ClientCacheTTL = 30 * time.Minute
	}

	// Storage defaults
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "raw"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("worker.concurrency cannot be negative")
	}
	if c.Worker.RetryAttempts < 0 {
		return fmt.Errorf("worker.retry_attempts cannot be negative")
	}
	if c.Scheduler.MediumThreshold > c.Scheduler.HighThreshold {
		return fmt.Errorf("scheduler.medium_threshold (%d) cannot exceed scheduler.high_threshold (%d)",
			c.Scheduler.MediumThreshold, c.Scheduler.HighThreshold)
	}
	if c.Scheduler.JitterRatio < 0 || c.Scheduler.JitterRatio >= 1 {
		return fmt.Errorf("scheduler.jitter_ratio must be within [0, 1), got %f", c.Scheduler.JitterRatio)
	}
	if c.Scheduler.BusinessHoursStart < 0 || c.Scheduler.BusinessHoursEnd > 24 ||
		c.Scheduler.BusinessHoursStart >= c.Scheduler.BusinessHoursEnd {
		return fmt.Errorf("scheduler business hours must satisfy 0 <= start < end <= 24, got [%d, %d)",
			c.Scheduler.BusinessHoursStart, c.Scheduler.BusinessHoursEnd)
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		// Database tracing: full SQL logging is a security risk in production
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
