package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// MinSourceInterval is the smallest delay allowed between two requests to
// the game archive API.
const MinSourceInterval = 200 * time.Millisecond

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server ServerConfig
	App    AppConfig
	Log    LogConfig
	Source SourceConfig
	Store  StoreConfig
	Cache  CacheConfig
	Jobs   JobsConfig
	Sweep  SweepConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	// SubmitRateLimit is the number of job submissions allowed per client IP per minute.
	SubmitRateLimit int `envconfig:"SERVER_SUBMIT_RATE_LIMIT" default:"30"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"dzchess-analyzer"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS"` // empty disables auth
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or console
	Caller bool   `envconfig:"LOG_CALLER" default:"false"`
}

// SourceConfig holds settings for the remote game archive API.
type SourceConfig struct {
	BaseURL        string        `envconfig:"SOURCE_BASE_URL" default:"https://api.chess.com/pub"`
	UserAgent      string        `envconfig:"SOURCE_USER_AGENT" default:"DZ Chess Analyzer/1.0 (contact@dzchess.ai)"`
	RequestTimeout time.Duration `envconfig:"SOURCE_REQUEST_TIMEOUT" default:"20s"`
	MinInterval    time.Duration `envconfig:"SOURCE_MIN_INTERVAL" default:"200ms"`
	MaxAttempts    uint          `envconfig:"SOURCE_MAX_ATTEMPTS" default:"3"`
	RetryDelay     time.Duration `envconfig:"SOURCE_RETRY_DELAY" default:"500ms"`
	Concurrency    int           `envconfig:"SOURCE_ARCHIVE_CONCURRENCY" default:"1"`
	MonthsBack     int           `envconfig:"SOURCE_MONTHS_BACK" default:"3"`

	BreakerFailures uint32        `envconfig:"SOURCE_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"SOURCE_BREAKER_TIMEOUT" default:"1m"`
}

// StoreConfig holds persistent store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, mysql, or postgres
	Path string `envconfig:"STORE_PATH" default:"./data/dzchess.db"`
	// MySQL / PostgreSQL settings
	Host     string `envconfig:"STORE_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PORT" default:"5432"`
	Name     string `envconfig:"STORE_NAME" default:"dzchess"`
	User     string `envconfig:"STORE_USER" default:"postgres"`
	Password string `envconfig:"STORE_PASS" default:""`
	SSLMode  string `envconfig:"STORE_SSLMODE" default:"disable"`
}

// CacheConfig holds job store settings.
type CacheConfig struct {
	Type      string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	KeyPrefix string `envconfig:"CACHE_KEY_PREFIX" default:"dzchess"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// JobsConfig holds job runner settings.
type JobsConfig struct {
	Workers   int           `envconfig:"JOBS_WORKERS" default:"4"`
	QueueSize int           `envconfig:"JOBS_QUEUE_SIZE" default:"64"`
	Retention time.Duration `envconfig:"JOBS_RETENTION" default:"24h"`
	LockTTL   time.Duration `envconfig:"JOBS_LOCK_TTL" default:"30m"`
	// PersistenceErrorThreshold is how many persistence failures a batch
	// tolerates before they are listed in the job summary.
	PersistenceErrorThreshold int `envconfig:"JOBS_PERSISTENCE_ERROR_THRESHOLD" default:"0"`
}

// SweepConfig holds stale-analysis sweep settings.
type SweepConfig struct {
	Enabled     bool          `envconfig:"SWEEP_ENABLED" default:"true"`
	Interval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"24h"`
	StaleAfter  time.Duration `envconfig:"SWEEP_STALE_AFTER" default:"720h"`
	AutoRefresh bool          `envconfig:"SWEEP_AUTO_REFRESH" default:"false"`
	BatchSize   int           `envconfig:"SWEEP_BATCH_SIZE" default:"20"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(s.User), url.QueryEscape(s.Password), s.Host, s.Port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		s.User, s.Password, s.Host, s.Port, s.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite", "mysql", "postgres", "postgresql":
	default:
		return errors.Errorf("unknown STORE_TYPE %q", c.Store.Type)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return errors.Errorf("unknown CACHE_TYPE %q", c.Cache.Type)
	}
	if c.Jobs.Workers < 1 {
		return errors.New("JOBS_WORKERS must be at least 1")
	}
	if c.Jobs.QueueSize < 1 {
		return errors.New("JOBS_QUEUE_SIZE must be at least 1")
	}
	if c.Source.MinInterval < MinSourceInterval {
		return errors.Errorf("SOURCE_MIN_INTERVAL must be at least %s", MinSourceInterval)
	}
	if c.Source.RequestTimeout <= 0 {
		return errors.New("SOURCE_REQUEST_TIMEOUT must be positive")
	}
	if c.Source.Concurrency < 1 {
		return errors.New("SOURCE_ARCHIVE_CONCURRENCY must be at least 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
