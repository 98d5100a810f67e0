package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"logitdash/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Data       DataConfig
	Model      ModelConfig
	Importance ImportanceConfig
	Session    SessionConfig
	Log        LogConfig
	Database   DatabaseConfig
	Tracing    TracingConfig
	Profiling  ProfilingConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port         string
	GinMode      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DataConfig locates the startup dataset and bounds uploads
type DataConfig struct {
	File           string
	Name           string // overrides the name derived from File
	UploadMaxBytes int64
}

// ModelConfig holds the IRLS controls
type ModelConfig struct {
	MaxIterations int
	Tolerance     float64
}

// ImportanceConfig holds permutation importance settings
type ImportanceConfig struct {
	Repeats int
	Seed    int64
	Workers int
}

// SessionConfig holds dashboard session settings
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	CookieName    string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig is optional; an empty URL disables the fit journal
type DatabaseConfig struct {
	URL string
}

// TracingConfig is optional; an empty endpoint disables export
type TracingConfig struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// ProfilingConfig holds the ops server settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("HTTP_READ_TIMEOUT", "30s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "60s")

	v.SetDefault("DATA_FILE", "data/dvd.csv")
	v.SetDefault("DATASET_NAME", "")
	v.SetDefault("UPLOAD_MAX_BYTES", 50<<20)

	v.SetDefault("GLM_MAX_ITER", 25)
	v.SetDefault("GLM_TOLERANCE", 1e-8)

	v.SetDefault("IMPORTANCE_REPEATS", 5)
	v.SetDefault("IMPORTANCE_SEED", 1234)
	v.SetDefault("IMPORTANCE_WORKERS", 4)

	v.SetDefault("SESSION_TTL", "2h")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "5m")
	v.SetDefault("SESSION_COOKIE", "logitdash_session")

	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "logitdash")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)

	v.SetDefault("OPS_PORT", "6060")
	v.SetDefault("OPS_ENABLED", true)
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	durations := map[string]time.Duration{}
	for _, key := range []string{"HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "SESSION_TTL", "SESSION_SWEEP_INTERVAL"} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("%s: %v", key, err))
		}
		durations[key] = d
	}

	config := &Config{
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			GinMode:      v.GetString("GIN_MODE"),
			ReadTimeout:  durations["HTTP_READ_TIMEOUT"],
			WriteTimeout: durations["HTTP_WRITE_TIMEOUT"],
		},
		Data: DataConfig{
			File:           v.GetString("DATA_FILE"),
			Name:           v.GetString("DATASET_NAME"),
			UploadMaxBytes: v.GetInt64("UPLOAD_MAX_BYTES"),
		},
		Model: ModelConfig{
			MaxIterations: v.GetInt("GLM_MAX_ITER"),
			Tolerance:     v.GetFloat64("GLM_TOLERANCE"),
		},
		Importance: ImportanceConfig{
			Repeats: v.GetInt("IMPORTANCE_REPEATS"),
			Seed:    v.GetInt64("IMPORTANCE_SEED"),
			Workers: v.GetInt("IMPORTANCE_WORKERS"),
		},
		Session: SessionConfig{
			TTL:           durations["SESSION_TTL"],
			SweepInterval: durations["SESSION_SWEEP_INTERVAL"],
			CookieName:    v.GetString("SESSION_COOKIE"),
		},
		Log: LogConfig{
			Level:  strings.ToUpper(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Database: DatabaseConfig{
			URL: v.GetString("DATABASE_URL"),
		},
		Tracing: TracingConfig{
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		},
		Profiling: ProfilingConfig{
			Port:    v.GetString("OPS_PORT"),
			Enabled: v.GetBool("OPS_ENABLED"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	if config.Data.UploadMaxBytes <= 0 {
		return errors.ConfigInvalid("UPLOAD_MAX_BYTES must be positive")
	}
	if config.Model.MaxIterations <= 0 {
		return errors.ConfigInvalid("GLM_MAX_ITER must be positive")
	}
	if config.Model.Tolerance <= 0 {
		return errors.ConfigInvalid("GLM_TOLERANCE must be positive")
	}
	if config.Importance.Repeats <= 0 || config.Importance.Workers <= 0 {
		return errors.ConfigInvalid("IMPORTANCE_REPEATS and IMPORTANCE_WORKERS must be positive")
	}
	if config.Session.TTL <= 0 || config.Session.SweepInterval <= 0 {
		return errors.ConfigInvalid("SESSION_TTL and SESSION_SWEEP_INTERVAL must be positive")
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("LOG_FORMAT must be text or json, got %q", config.Log.Format))
	}
	return nil
}
