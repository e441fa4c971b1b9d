package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns the host:port listen address
func (c ServerConfig) Addr() string {
	return c.GetHost() + ":" + strconv.Itoa(c.Port)
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// Lifetime returns the connection max lifetime as a duration
func (c DatabaseConfig) Lifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// RedisConfig holds Redis configuration for the scheduler lock
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig holds dispatch scheduler tuning
type SchedulerConfig struct {
	TickIntervalSeconds   int    `yaml:"tick_interval_seconds"`
	StaleSenderSeconds    int    `yaml:"stale_sender_seconds"`
	StaleTaskSeconds      int    `yaml:"stale_task_seconds"`
	StaleLeaseAutoSeconds int    `yaml:"stale_lease_auto_seconds"`
	StaleLeaseManualSecs  int    `yaml:"stale_lease_manual_seconds"`
	WarmupHorizonDays     int    `yaml:"warmup_horizon_days"`
	TestModeDelaySeconds  int    `yaml:"test_mode_delay_seconds"`
	LockKey               string `yaml:"lock_key"`
	LockTTLSeconds        int    `yaml:"lock_ttl_seconds"`
}

// TickInterval returns the scheduler tick cadence as a duration
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// LockTTL returns the distributed lock TTL as a duration
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Scheduler.TickIntervalSeconds == 0 {
		cfg.Scheduler.TickIntervalSeconds = 30
	}
	if cfg.Scheduler.StaleSenderSeconds == 0 {
		cfg.Scheduler.StaleSenderSeconds = 60
	}
	if cfg.Scheduler.StaleTaskSeconds == 0 {
		cfg.Scheduler.StaleTaskSeconds = 120
	}
	if cfg.Scheduler.StaleLeaseAutoSeconds == 0 {
		cfg.Scheduler.StaleLeaseAutoSeconds = 300
	}
	if cfg.Scheduler.StaleLeaseManualSecs == 0 {
		cfg.Scheduler.StaleLeaseManualSecs = 600
	}
	if cfg.Scheduler.WarmupHorizonDays == 0 {
		cfg.Scheduler.WarmupHorizonDays = 14
	}
	if cfg.Scheduler.TestModeDelaySeconds == 0 {
		cfg.Scheduler.TestModeDelaySeconds = 30
	}
	if cfg.Scheduler.LockKey == "" {
		cfg.Scheduler.LockKey = "outreach:scheduler:leader"
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}
