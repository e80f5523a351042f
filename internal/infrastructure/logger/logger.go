package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/adsync/backend/internal/domain/integration"
)

// DefaultTimeFormat is used when Config.TimeFormat is empty
const DefaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	TimeFormat string
	// Service is attached to every entry as "service" when set
	Service string
}

// New builds the process logger. An unknown level is rejected rather than
// silently widened, and a file output that cannot be opened is an error.
func New(cfg *Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	writer, err := openWriter(cfg.Output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg), writer, level)
	log := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if cfg.Service != "" {
		log = log.With(zap.String("service", cfg.Service))
	}
	return log, nil
}

// ParseLevel maps a configured level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func newEncoder(cfg *Config) zapcore.Encoder {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeFormat),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if strings.EqualFold(cfg.Format, "console") {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func openWriter(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %s: %w", output, err)
	}
	return zapcore.Lock(file), nil
}

// Sync flushes buffered entries. Terminals and pipes reject fsync, which is ignored.
func Sync(log *zap.Logger) error {
	err := log.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// OrganizationField tags an entry with the tenant being synced
func OrganizationField(orgID uuid.UUID) zap.Field {
	return zap.String(string(OrganizationIDKey), orgID.String())
}

// PlatformField tags an entry with the platform code
func PlatformField(platform integration.PlatformCode) zap.Field {
	return zap.String(string(PlatformKey), string(platform))
}

// JobFields describes a queue job. Maintenance jobs carry no tenant, so the
// organization and platform are only added for partitioned jobs.
func JobFields(job *integration.Job) []zap.Field {
	fields := []zap.Field{
		zap.String(string(JobIDKey), job.ID.String()),
		zap.String("job_type", job.Type.String()),
		zap.String("priority", job.Priority.String()),
		zap.Int("attempt", job.Attempt),
	}
	if job.Payload.OrganizationID != uuid.Nil {
		fields = append(fields,
			OrganizationField(job.Payload.OrganizationID),
			PlatformField(job.Payload.Platform),
		)
	}
	return fields
}

// SessionFields describes a sync session
func SessionFields(session *integration.SyncSession) []zap.Field {
	return []zap.Field{
		zap.String("session_id", session.ID.String()),
		OrganizationField(session.OrganizationID),
		PlatformField(session.Platform),
		zap.String("session_status", string(session.Status)),
	}
}
