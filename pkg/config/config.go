package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Webhook delivery configuration
	Webhook WebhookConfig `yaml:"webhook"`

	// Redis configuration (optional, backs distributed rate limiting)
	Redis RedisConfig `yaml:"redis"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// WebhookConfig holds webhook delivery engine configuration
type WebhookConfig struct {
	// Secret keys the HMAC signature on outbound deliveries
	Secret string `yaml:"secret"`

	// DeliveryTimeout bounds each outbound HTTP POST
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`

	// MaxRetries is the number of attempts before a task is dropped
	MaxRetries int `yaml:"max_retries"`

	// TickInterval is the scheduler scan interval
	TickInterval time.Duration `yaml:"tick_interval"`

	// UserAgent identifies the gateway on outbound requests
	UserAgent string `yaml:"user_agent"`

	// HistorySize bounds the in-memory delivery attempt history
	HistorySize int `yaml:"history_size"`

	// Rate limiting per target URL
	RateLimitEnabled  bool          `yaml:"rate_limit_enabled"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Stats reporter cron schedule ("" disables the reporter)
	StatsSchedule string `yaml:"stats_schedule"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Defaults returns the built-in configuration defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Webhook: WebhookConfig{
			DeliveryTimeout:   10 * time.Second,
			MaxRetries:        5,
			TickInterval:      time.Second,
			UserAgent:         "chatwire-webhook/1.0",
			HistorySize:       1000,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			StatsSchedule:      "0 * * * *",
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "chatwire-gateway",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file, and
// environment overrides, in that order. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays settings from a YAML file
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides settings from CHATWIRE_* environment variables
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("CHATWIRE_HOST", c.Server.Host)
	c.Server.Port = getEnv("CHATWIRE_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("CHATWIRE_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("CHATWIRE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("CHATWIRE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("CHATWIRE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("CHATWIRE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Webhook.Secret = getEnv("CHATWIRE_WEBHOOK_SECRET", c.Webhook.Secret)
	c.Webhook.DeliveryTimeout = getEnvDuration("CHATWIRE_WEBHOOK_TIMEOUT", c.Webhook.DeliveryTimeout)
	c.Webhook.MaxRetries = getEnvInt("CHATWIRE_WEBHOOK_MAX_RETRIES", c.Webhook.MaxRetries)
	c.Webhook.TickInterval = getEnvDuration("CHATWIRE_WEBHOOK_TICK_INTERVAL", c.Webhook.TickInterval)
	c.Webhook.UserAgent = getEnv("CHATWIRE_WEBHOOK_USER_AGENT", c.Webhook.UserAgent)
	c.Webhook.HistorySize = getEnvInt("CHATWIRE_WEBHOOK_HISTORY_SIZE", c.Webhook.HistorySize)
	c.Webhook.RateLimitEnabled = getEnvBool("CHATWIRE_WEBHOOK_RATE_LIMIT_ENABLED", c.Webhook.RateLimitEnabled)
	c.Webhook.RateLimitRequests = getEnvInt("CHATWIRE_WEBHOOK_RATE_LIMIT_REQUESTS", c.Webhook.RateLimitRequests)
	c.Webhook.RateLimitWindow = getEnvDuration("CHATWIRE_WEBHOOK_RATE_LIMIT_WINDOW", c.Webhook.RateLimitWindow)

	c.Redis.URL = getEnv("CHATWIRE_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("CHATWIRE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("CHATWIRE_REDIS_DB", c.Redis.DB)

	c.Observability.LogLevel = getEnv("CHATWIRE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("CHATWIRE_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.StatsSchedule = getEnv("CHATWIRE_STATS_SCHEDULE", c.Observability.StatsSchedule)
	c.Observability.OTelEnabled = getEnvBool("CHATWIRE_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("CHATWIRE_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("CHATWIRE_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("CHATWIRE_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("CHATWIRE_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook secret is required (CHATWIRE_WEBHOOK_SECRET)")
	}
	if c.Webhook.DeliveryTimeout <= 0 {
		return fmt.Errorf("webhook delivery timeout must be positive")
	}
	if c.Webhook.MaxRetries < 1 {
		return fmt.Errorf("webhook max retries must be at least 1")
	}
	if c.Webhook.TickInterval <= 0 {
		return fmt.Errorf("webhook tick interval must be positive")
	}

	if c.Webhook.RateLimitEnabled {
		if c.Webhook.RateLimitRequests <= 0 {
			return fmt.Errorf("rate limit requests must be positive when rate limiting is enabled")
		}
		if c.Webhook.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit window must be positive when rate limiting is enabled")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
