package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 10*time.Second, cfg.Webhook.DeliveryTimeout)
	assert.Equal(t, 5, cfg.Webhook.MaxRetries)
	assert.Equal(t, time.Second, cfg.Webhook.TickInterval)
	assert.Equal(t, "chatwire-webhook/1.0", cfg.Webhook.UserAgent)
	assert.Equal(t, 1000, cfg.Webhook.HistorySize)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("CHATWIRE_WEBHOOK_SECRET", "")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook secret")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHATWIRE_WEBHOOK_SECRET", "env-secret")
	t.Setenv("CHATWIRE_PORT", "3000")
	t.Setenv("CHATWIRE_WEBHOOK_MAX_RETRIES", "2")
	t.Setenv("CHATWIRE_WEBHOOK_TICK_INTERVAL", "500ms")
	t.Setenv("CHATWIRE_WEBHOOK_RATE_LIMIT_ENABLED", "true")
	t.Setenv("CHATWIRE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Webhook.Secret)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Webhook.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Webhook.TickInterval)
	assert.True(t, cfg.Webhook.RateLimitEnabled)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "4000"
  health_port: "4001"
webhook:
  secret: file-secret
  max_retries: 3
  delivery_timeout: 5s
redis:
  url: redis://localhost:6379/2
observability:
  log_level: warn
  stats_schedule: "*/5 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "4001", cfg.Server.HealthPort)
	assert.Equal(t, "file-secret", cfg.Webhook.Secret)
	assert.Equal(t, 3, cfg.Webhook.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Webhook.DeliveryTimeout)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Redis.URL)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
	assert.Equal(t, "*/5 * * * *", cfg.Observability.StatsSchedule)

	// Untouched settings keep their defaults
	assert.Equal(t, time.Second, cfg.Webhook.TickInterval)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("webhook:\n  secret: file-secret\n"), 0644))
	t.Setenv("CHATWIRE_WEBHOOK_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Webhook.Secret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Webhook.Secret = "s"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "port",
		},
		{
			name:    "colliding ports",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: "different",
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.Webhook.Secret = "" },
			wantErr: "secret",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.Webhook.MaxRetries = 0 },
			wantErr: "retries",
		},
		{
			name:    "negative tick",
			mutate:  func(c *Config) { c.Webhook.TickInterval = -time.Second },
			wantErr: "tick",
		},
		{
			name: "rate limit enabled without window",
			mutate: func(c *Config) {
				c.Webhook.RateLimitEnabled = true
				c.Webhook.RateLimitWindow = 0
			},
			wantErr: "window",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
