package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
slack:
  verification_token: secret
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Issues)
	assert.Equal(t, DriverMemory, cfg.Storage.Correlation)
	assert.Equal(t, 30*time.Minute, cfg.Workflow.MaxAge)
	assert.Equal(t, 3, cfg.Workflow.PersistAttempts)
	assert.Positive(t, cfg.Workflow.SweepInterval)
	assert.Equal(t, DefaultConfirmationText, cfg.Slack.ConfirmationText)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
slack:
  verification_token: from-file
  api_url: http://localhost:9999/api
storage:
  issues: memory
  correlation: redis
workflow:
  max_age: 5m
`)
	t.Setenv("CAREBEAR_SLACK_VERIFICATION_TOKEN", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Slack.VerificationToken)
	assert.Equal(t, "http://localhost:9999/api/", cfg.Slack.APIURL)
	assert.Equal(t, DriverMemory, cfg.Storage.Issues)
	assert.Equal(t, DriverRedis, cfg.Storage.Correlation)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.MaxAge)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing token", mutate: func(c *Config) { c.Slack.VerificationToken = "" }},
		{name: "unknown issue driver", mutate: func(c *Config) { c.Storage.Issues = "firestore" }},
		{name: "unknown correlation driver", mutate: func(c *Config) { c.Storage.Correlation = "etcd" }},
		{name: "zero persist attempts", mutate: func(c *Config) { c.Workflow.PersistAttempts = 0 }},
		{name: "zero in flight", mutate: func(c *Config) { c.Workflow.MaxInFlight = 0 }},
		{name: "zero max age", mutate: func(c *Config) { c.Workflow.MaxAge = 0 }},
		{name: "negative max age", mutate: func(c *Config) { c.Workflow.MaxAge = -time.Minute }},
		{name: "zero sweep interval", mutate: func(c *Config) { c.Workflow.SweepInterval = 0 }},
		{name: "negative sweep interval", mutate: func(c *Config) { c.Workflow.SweepInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestDSN(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Host = "db"
	cfg.DB.Port = 5433
	cfg.DB.User = "u"
	cfg.DB.Password = "p"
	cfg.DB.Name = "n"
	cfg.DB.SSLMode = "disable"
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", cfg.DSN())
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Slack.VerificationToken = "secret"
	cfg.Storage.Issues = DriverMemory
	cfg.Storage.Correlation = DriverMemory
	cfg.Workflow.PersistAttempts = 1
	cfg.Workflow.MaxInFlight = 1
	cfg.Workflow.MaxAge = time.Minute
	cfg.Workflow.SweepInterval = time.Second
	return cfg
}
