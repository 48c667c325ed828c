package config

import (
	"os"
	"regexp"
	"time"

	"github.com/amoylab/redsess/internal/common/cnst"
	"github.com/amoylab/redsess/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config represents the redsess configuration
	Config struct {
		Session SessionConfig `yaml:"session"`
		HTTP    HTTPConfig    `yaml:"http"`
		Logger  LoggerConfig  `yaml:"logger"`
		Metrics MetricsConfig `yaml:"metrics"`
		Tracing TracingConfig `yaml:"tracing"`
	}

	// SessionConfig represents the session store configuration
	SessionConfig struct {
		Type   string             `yaml:"type"`   // "redis" or "memory"
		Prefix *string            `yaml:"prefix"` // key prefix; unset means "sess:", "" keeps bare ids
		TTL    time.Duration      `yaml:"ttl"`    // store-level TTL; zero derives it from the record
		Redis  SessionRedisConfig `yaml:"redis"`
	}

	// SessionRedisConfig represents the Redis connection used by the session store
	SessionRedisConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, sentinel or cluster
		Addr        string `yaml:"addr"`         // ';' or ',' separated for sentinel and cluster
		Socket      string `yaml:"socket"`       // unix socket path, overrides addr
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"` // selected on every (re)connect
	}

	// HTTPConfig represents the HTTP server configuration
	HTTPConfig struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}

	// MetricsConfig represents the prometheus metrics configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Path      string    `yaml:"path"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TracingConfig represents OpenTelemetry tracing configuration
	TracingConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`     // e.g. localhost:4317 or http://localhost:4318
		Protocol    string            `yaml:"protocol"`     // grpc or http
		Insecure    bool              `yaml:"insecure"`     // allow insecure connection
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`  // env tag: dev/staging/prod
		Headers     map[string]string `yaml:"headers"`
	}
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*Config, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}
	setDefaults(&cfg)

	return &cfg, cfgPath, nil
}

// KeyPrefix returns the configured key prefix. Only an unset prefix falls back
// to the default, an explicitly empty one is kept.
func (c SessionConfig) KeyPrefix() string {
	if c.Prefix == nil {
		return cnst.DefaultSessionPrefix
	}
	return *c.Prefix
}

// setDefaults fills the zero values that have a meaningful default
func setDefaults(cfg *Config) {
	if cfg.Session.Type == "" {
		cfg.Session.Type = string(cnst.StoreTypeRedis)
	}
	if cfg.Session.Redis.ClusterType == "" {
		cfg.Session.Redis.ClusterType = cnst.RedisClusterTypeSingle
	}
	if cfg.Session.Redis.Addr == "" && cfg.Session.Redis.Socket == "" {
		cfg.Session.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "redsess"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "redsess"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
