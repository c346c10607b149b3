package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Graph    GraphConfig    `yaml:"graph"`
	Redis    RedisConfig    `yaml:"redis"`
	Sync     SyncConfig     `yaml:"sync"`
	Patterns PatternsConfig `yaml:"patterns"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig governs the operational HTTP server.
type HTTPConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	MetricsEnabled    bool          `yaml:"metricsEnabled"`
	AllowedOriginsCSV string        `yaml:"allowedOrigins"`
}

// GraphConfig describes connectivity to Neo4j.
type GraphConfig struct {
	URI               string        `yaml:"uri"`
	Database          string        `yaml:"database"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxConnections    int           `yaml:"maxConnections"`
	ConnectionTimeout time.Duration `yaml:"connectionTimeout"`
	QueryTimeout      time.Duration `yaml:"queryTimeout"`
	EnsureSchema      bool          `yaml:"ensureSchema"`
}

// RedisConfig describes the event transport.
type RedisConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	PollTimeout    time.Duration `yaml:"pollTimeout"`
}

// SyncConfig controls the event consumers.
type SyncConfig struct {
	Workers          int           `yaml:"workers"`
	MaxRetries       int           `yaml:"maxRetries"`
	BaseDelay        time.Duration `yaml:"baseDelay"`
	UserTopic        string        `yaml:"userTopic"`
	TransactionTopic string        `yaml:"transactionTopic"`
	BudgetTopic      string        `yaml:"budgetTopic"`
	GoalTopic        string        `yaml:"goalTopic"`
	DeadLetterTopic  string        `yaml:"deadLetterTopic"`
	// DurableAttempts keeps retry counters in Redis instead of process memory.
	DurableAttempts bool   `yaml:"durableAttempts"`
	AttemptsHash    string `yaml:"attemptsHash"`
}

// PatternsConfig controls the pattern engine.
type PatternsConfig struct {
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	Timezone  string        `yaml:"timezone"`
}

// TracingConfig toggles span collection around graph queries.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // text|json
	IncludeCaller bool   `yaml:"includeCaller"`
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphMaxSessions = 10
	defaultGraphConnTimeout = 5 * time.Second
	defaultGraphTxTimeout   = 30 * time.Second
	defaultRedisURL         = "redis://localhost:6379/0"
	defaultRedisPoll        = 2 * time.Second
	defaultSyncWorkers      = 4
	defaultMaxRetries       = 3
	defaultBaseDelay        = time.Second
	defaultPatternCacheSize = 256
	defaultPatternCacheTTL  = 5 * time.Minute
)

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:            defaultHost,
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			MetricsEnabled:  true,
		},
		Graph: GraphConfig{
			MaxConnections:    defaultGraphMaxSessions,
			ConnectionTimeout: defaultGraphConnTimeout,
			QueryTimeout:      defaultGraphTxTimeout,
			EnsureSchema:      true,
		},
		Redis: RedisConfig{
			URL:         defaultRedisURL,
			PollTimeout: defaultRedisPoll,
		},
		Sync: SyncConfig{
			Workers:          defaultSyncWorkers,
			MaxRetries:       defaultMaxRetries,
			BaseDelay:        defaultBaseDelay,
			UserTopic:        "fingraph.users",
			TransactionTopic: "fingraph.transactions",
			BudgetTopic:      "fingraph.budgets",
			GoalTopic:        "fingraph.goals",
			DeadLetterTopic:  "fingraph.dead-letter",
		},
		Patterns: PatternsConfig{
			CacheSize: defaultPatternCacheSize,
			CacheTTL:  defaultPatternCacheTTL,
			Timezone:  "UTC",
		},
		Tracing: TracingConfig{
			ServiceName: "fingraph",
		},
		Logging: LoggingConfig{
			Level:  defaultLoggingLevel,
			Format: defaultLoggingFormat,
		},
	}
}

// Load starts from Defaults, applies the YAML file named by CONFIG_FILE when set,
// then applies environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTP.Host = valueOrDefault("SERVER_HOST", cfg.HTTP.Host)
	port, err := parsePort("SERVER_PORT", cfg.HTTP.Port)
	if err != nil {
		return err
	}
	cfg.HTTP.Port = port
	cfg.HTTP.MetricsEnabled = parseBoolWithDefault("SERVER_METRICS_ENABLED", cfg.HTTP.MetricsEnabled)
	cfg.HTTP.AllowedOriginsCSV = valueOrDefault("SERVER_ALLOWED_ORIGINS", cfg.HTTP.AllowedOriginsCSV)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"GRAPH_CONNECTION_TIMEOUT", &cfg.Graph.ConnectionTimeout},
		{"GRAPH_QUERY_TIMEOUT", &cfg.Graph.QueryTimeout},
		{"REDIS_CONNECT_TIMEOUT", &cfg.Redis.ConnectTimeout},
		{"REDIS_READ_TIMEOUT", &cfg.Redis.ReadTimeout},
		{"REDIS_WRITE_TIMEOUT", &cfg.Redis.WriteTimeout},
		{"REDIS_POLL_TIMEOUT", &cfg.Redis.PollTimeout},
		{"SYNC_BASE_DELAY", &cfg.Sync.BaseDelay},
		{"PATTERN_CACHE_TTL", &cfg.Patterns.CacheTTL},
	}
	for _, d := range durations {
		v, err := parseDurationWithDefault(d.key, *d.dst)
		if err != nil {
			return err
		}
		*d.dst = v
	}

	cfg.Graph.URI = valueOrDefault("GRAPH_URI", cfg.Graph.URI)
	cfg.Graph.Database = valueOrDefault("GRAPH_DATABASE", cfg.Graph.Database)
	cfg.Graph.Username = valueOrDefault("GRAPH_USERNAME", cfg.Graph.Username)
	cfg.Graph.Password = valueOrDefault("GRAPH_PASSWORD", cfg.Graph.Password)
	cfg.Graph.MaxConnections = parseIntWithDefault("GRAPH_MAX_CONNECTIONS", cfg.Graph.MaxConnections)
	cfg.Graph.EnsureSchema = parseBoolWithDefault("GRAPH_ENSURE_SCHEMA", cfg.Graph.EnsureSchema)

	cfg.Redis.URL = valueOrDefault("REDIS_URL", cfg.Redis.URL)

	cfg.Sync.Workers = parseIntWithDefault("SYNC_WORKERS", cfg.Sync.Workers)
	cfg.Sync.MaxRetries = parseIntWithDefault("SYNC_MAX_RETRIES", cfg.Sync.MaxRetries)
	cfg.Sync.UserTopic = valueOrDefault("SYNC_USER_TOPIC", cfg.Sync.UserTopic)
	cfg.Sync.TransactionTopic = valueOrDefault("SYNC_TRANSACTION_TOPIC", cfg.Sync.TransactionTopic)
	cfg.Sync.BudgetTopic = valueOrDefault("SYNC_BUDGET_TOPIC", cfg.Sync.BudgetTopic)
	cfg.Sync.GoalTopic = valueOrDefault("SYNC_GOAL_TOPIC", cfg.Sync.GoalTopic)
	cfg.Sync.DeadLetterTopic = valueOrDefault("SYNC_DEAD_LETTER_TOPIC", cfg.Sync.DeadLetterTopic)
	cfg.Sync.DurableAttempts = parseBoolWithDefault("SYNC_DURABLE_ATTEMPTS", cfg.Sync.DurableAttempts)
	cfg.Sync.AttemptsHash = valueOrDefault("SYNC_ATTEMPTS_HASH", cfg.Sync.AttemptsHash)

	cfg.Patterns.CacheSize = parseIntWithDefault("PATTERN_CACHE_SIZE", cfg.Patterns.CacheSize)
	cfg.Patterns.Timezone = valueOrDefault("PATTERN_TIMEZONE", cfg.Patterns.Timezone)

	cfg.Tracing.Enabled = parseBoolWithDefault("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = valueOrDefault("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)

	cfg.Logging.Level = valueOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = valueOrDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.IncludeCaller = parseBoolWithDefault("LOG_INCLUDE_CALLER", cfg.Logging.IncludeCaller)
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync max retries must be at least 1, got %d", c.Sync.MaxRetries)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.BaseDelay < 0 {
		return fmt.Errorf("sync base delay must not be negative")
	}
	if _, err := time.LoadLocation(c.Patterns.Timezone); err != nil {
		return fmt.Errorf("invalid pattern timezone %q: %w", c.Patterns.Timezone, err)
	}
	return nil
}

// Location resolves the pattern timezone; Validate has already checked it.
func (c PatternsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
