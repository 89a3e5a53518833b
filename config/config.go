package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Black-And-White-Club/quiscore/app/shared/observability"
)

// Config struct to hold the configuration settings
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	NATS          NATSConfig          `yaml:"nats"`
	HTTP          HTTPConfig          `yaml:"http"`
	Scoreboard    ScoreboardConfig    `yaml:"scoreboard"`
	ScoreStore    ScoreStoreConfig    `yaml:"score_store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// NATSConfig holds NATS configuration. An empty URL selects the in-process bus.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// HTTPConfig holds the public HTTP server settings.
type HTTPConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst"`
}

// ScoreboardConfig sizes the scoreboard cache and the push stream.
type ScoreboardConfig struct {
	TTL                 time.Duration `yaml:"ttl"`
	MaxEntries          int           `yaml:"max_entries"`
	MaxSubscribers      int           `yaml:"max_subscribers"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
}

// ScoreStoreConfig bounds access to the score database.
type ScoreStoreConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	RateLimit     float64       `yaml:"rate_limit"`
	RateBurst     int           `yaml:"rate_burst"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	Environment    string  `yaml:"environment"`
	LogLevel       string  `yaml:"log_level"`
	MetricsAddress string  `yaml:"metrics_address"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	OTLPInsecure   bool    `yaml:"otlp_insecure"`
	SampleRate     float64 `yaml:"sample_rate"`
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(filename string) (*Config, error) {
	// Try reading configuration from the file first
	data, err := os.ReadFile(filename)
	if err != nil {
		// If the file is not found, try loading from environment variables
		return loadConfigFromEnv()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// --- OVERRIDE WITH ENV VARS IF PRESENT ---
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFromEnv loads the configuration from environment variables.
func loadConfigFromEnv() (*Config, error) {
	var cfg Config

	cfg.Postgres.DSN = os.Getenv("DATABASE_URL")
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Observability.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		cfg.Observability.MetricsAddress = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
	if v := os.Getenv("OTLP_INSECURE"); v != "" {
		cfg.Observability.OTLPInsecure = v == "true"
	}
	if v := os.Getenv("TRACE_SAMPLE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TRACE_SAMPLE_RATE value: %v", err)
		}
		cfg.Observability.SampleRate = f
	}

	durations := map[string]*time.Duration{
		"SCOREBOARD_TTL":                  &cfg.Scoreboard.TTL,
		"SCOREBOARD_MAINTENANCE_INTERVAL": &cfg.Scoreboard.MaintenanceInterval,
		"SCOREBOARD_HEARTBEAT_INTERVAL":   &cfg.Scoreboard.HeartbeatInterval,
		"SCORE_STORE_QUERY_TIMEOUT":       &cfg.ScoreStore.QueryTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %v", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"SCOREBOARD_MAX_ENTRIES":     &cfg.Scoreboard.MaxEntries,
		"SCOREBOARD_MAX_SUBSCRIBERS": &cfg.Scoreboard.MaxSubscribers,
		"SCORE_STORE_MAX_CONCURRENT": &cfg.ScoreStore.MaxConcurrent,
		"SCORE_STORE_MAX_RETRIES":    &cfg.ScoreStore.MaxRetries,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s value: %v", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 20
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":3000"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 5
	}
	if c.HTTP.RateBurst == 0 {
		c.HTTP.RateBurst = 10
	}

	sb := &c.Scoreboard
	if sb.TTL == 0 {
		sb.TTL = 30 * time.Second
	}
	if sb.MaxEntries == 0 {
		sb.MaxEntries = 200
	}
	if sb.MaxSubscribers == 0 {
		sb.MaxSubscribers = 100
	}
	if sb.MaintenanceInterval == 0 {
		sb.MaintenanceInterval = 5 * time.Minute
	}
	if sb.HeartbeatInterval == 0 {
		sb.HeartbeatInterval = 30 * time.Second
	}
	if sb.WriteTimeout == 0 {
		sb.WriteTimeout = 5 * time.Second
	}

	ss := &c.ScoreStore
	if ss.MaxConcurrent == 0 {
		ss.MaxConcurrent = 10
	}
	if ss.QueryTimeout == 0 {
		ss.QueryTimeout = 5 * time.Second
	}
	if ss.MaxRetries == 0 {
		ss.MaxRetries = 3
	}
	if ss.BaseBackoff == 0 {
		ss.BaseBackoff = 100 * time.Millisecond
	}
	if ss.MaxBackoff == 0 {
		ss.MaxBackoff = 2 * time.Second
	}
	if ss.RateLimit == 0 {
		ss.RateLimit = 50
	}
	if ss.RateBurst == 0 {
		ss.RateBurst = 20
	}

	if c.Observability.Environment == "" {
		c.Observability.Environment = "development"
	}
	if c.Observability.SampleRate == 0 {
		c.Observability.SampleRate = 0.1
	}
}

// Validate rejects settings the scoreboard cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if c.Scoreboard.TTL < 0 {
		errs = append(errs, errors.New("scoreboard.ttl must not be negative"))
	}
	if c.Scoreboard.MaxEntries < 1 {
		errs = append(errs, errors.New("scoreboard.max_entries must be at least 1"))
	}
	if c.Scoreboard.MaxSubscribers < 1 {
		errs = append(errs, errors.New("scoreboard.max_subscribers must be at least 1"))
	}
	if c.ScoreStore.MaxConcurrent < 1 {
		errs = append(errs, errors.New("score_store.max_concurrent must be at least 1"))
	}
	if c.ScoreStore.MaxRetries < 0 {
		errs = append(errs, errors.New("score_store.max_retries must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the environment is production-classified.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Observability.Environment, "production")
}

func ToObsConfig(appCfg *Config) observability.Config {
	return observability.Config{
		ServiceName:    "quiscore",
		Environment:    appCfg.Observability.Environment,
		Version:        Version,
		LogLevel:       appCfg.Observability.LogLevel,
		MetricsAddress: appCfg.Observability.MetricsAddress,
		OTLPEndpoint:   appCfg.Observability.OTLPEndpoint,
		OTLPInsecure:   appCfg.Observability.OTLPInsecure,
		SampleRate:     appCfg.Observability.SampleRate,
	}
}

// Version is overridden at build time with -ldflags.
var Version = "dev"

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
