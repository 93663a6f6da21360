package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RENTSHARE_DB_HOST.
const EnvPrefix = "RENTSHARE"

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"

	NotifierBackendLog  = "log"
	NotifierBackendAMQP = "amqp"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database" envconfig:"DB"`
	Redis     RedisConfig     `yaml:"redis"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Locking   LockingConfig   `yaml:"locking"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"ssl_mode" split_words:"true"`
	MaxOpenConns int    `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns int    `yaml:"max_idle_conns" split_words:"true"`
}

// RedisConfig is only needed with the redis lock backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AMQPConfig is only needed with the amqp notifier backend.
type AMQPConfig struct {
	URL string `yaml:"url"`
}

// LockingConfig selects how booking writes on one item are serialized.
type LockingConfig struct {
	Backend       string        `yaml:"backend"` // "memory" or "redis"
	Timeout       time.Duration `yaml:"timeout"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval" split_words:"true"`
}

// NotifierConfig selects where booking events are delivered.
type NotifierConfig struct {
	Backend      string        `yaml:"backend"` // "log" or "amqp"
	Queue        string        `yaml:"queue"`
	FailureRatio float64       `yaml:"failure_ratio" split_words:"true"`
	OpenTimeout  time.Duration `yaml:"open_timeout" split_words:"true"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig exposes Prometheus metrics when Address is set.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	CompleteReservations string `yaml:"complete_reservations" split_words:"true"`
}

// Load reads configuration from a YAML file, applies RENTSHARE_* environment
// overrides and validates the result. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	var cfg Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	// Locking
	if c.Locking.Backend == "" {
		c.Locking.Backend = LockBackendMemory
	}
	switch c.Locking.Backend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unknown lock backend: %q", c.Locking.Backend)
	}
	if c.Locking.Timeout <= 0 {
		c.Locking.Timeout = 5 * time.Second
	}
	if c.Locking.TTL <= 0 {
		c.Locking.TTL = 10 * time.Second
	}
	if c.Locking.RetryInterval <= 0 {
		c.Locking.RetryInterval = 25 * time.Millisecond
	}

	// Notifier
	if c.Notifier.Backend == "" {
		c.Notifier.Backend = NotifierBackendLog
	}
	switch c.Notifier.Backend {
	case NotifierBackendLog:
	case NotifierBackendAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("amqp url is required for the amqp notifier backend")
		}
	default:
		return fmt.Errorf("unknown notifier backend: %q", c.Notifier.Backend)
	}
	if c.Notifier.Queue == "" {
		c.Notifier.Queue = "booking.notifications"
	}
	if c.Notifier.FailureRatio <= 0 || c.Notifier.FailureRatio > 1 {
		c.Notifier.FailureRatio = 0.6
	}
	if c.Notifier.OpenTimeout <= 0 {
		c.Notifier.OpenTimeout = 30 * time.Second
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Scheduler defaults
	if c.Scheduler.CompleteReservations == "" {
		c.Scheduler.CompleteReservations = "0 */15 * * * *" // every 15 minutes
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
