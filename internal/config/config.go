package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// DefaultConfirmationText is posted into the flagged message's thread once
// the issue has been stored.
const DefaultConfirmationText = "An issue has been created in response to this message. The engineer-on-call will look into it ASAP!"

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Slack struct {
		BotToken          string        `mapstructure:"bot_token"`
		VerificationToken string        `mapstructure:"verification_token"`
		APIURL            string        `mapstructure:"api_url"`
		Timeout           time.Duration `mapstructure:"timeout"`
		ConfirmationText  string        `mapstructure:"confirmation_text"`
	} `mapstructure:"slack"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Storage struct {
		Issues      string `mapstructure:"issues"`
		Correlation string `mapstructure:"correlation"`
	} `mapstructure:"storage"`
	Redis struct {
		Addr      string `mapstructure:"addr"`
		Password  string `mapstructure:"password"`
		DB        int    `mapstructure:"db"`
		KeyPrefix string `mapstructure:"key_prefix"`
	} `mapstructure:"redis"`
	Workflow struct {
		MaxAge          time.Duration `mapstructure:"max_age"`
		SweepInterval   time.Duration `mapstructure:"sweep_interval"`
		PersistAttempts int           `mapstructure:"persist_attempts"`
		MaxInFlight     int           `mapstructure:"max_in_flight"`
	} `mapstructure:"workflow"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Tracing struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"tracing"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// DSN returns the postgres connection string for the DB section.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// LoadConfig loads the configuration from a file and the environment. When
// path is empty the file named "config" is searched for in the working
// directory and ./config; a missing file is not an error because every
// setting can also come from CAREBEAR_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("carebear")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	config.Slack.APIURL = normalizeAPIURL(config.Slack.APIURL)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports the first setting that prevents the service from starting.
func (c *Config) Validate() error {
	if c.Slack.VerificationToken == "" {
		return errors.New("slack.verification_token is required")
	}
	switch c.Storage.Issues {
	case DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("storage.issues: unknown driver %q", c.Storage.Issues)
	}
	switch c.Storage.Correlation {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("storage.correlation: unknown driver %q", c.Storage.Correlation)
	}
	if c.Workflow.PersistAttempts < 1 {
		return errors.New("workflow.persist_attempts must be at least 1")
	}
	if c.Workflow.MaxInFlight < 1 {
		return errors.New("workflow.max_in_flight must be at least 1")
	}
	if c.Workflow.MaxAge <= 0 {
		return errors.New("workflow.max_age must be positive")
	}
	if c.Workflow.SweepInterval <= 0 {
		return errors.New("workflow.sweep_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.verification_token", "")
	v.SetDefault("slack.api_url", "")
	v.SetDefault("slack.timeout", 10*time.Second)
	v.SetDefault("slack.confirmation_text", DefaultConfirmationText)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "carebear")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "carebear")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("storage.issues", DriverPostgres)
	v.SetDefault("storage.correlation", DriverMemory)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "carebear")

	v.SetDefault("workflow.max_age", 30*time.Minute)
	v.SetDefault("workflow.sweep_interval", time.Minute)
	v.SetDefault("workflow.persist_attempts", 3)
	v.SetDefault("workflow.max_in_flight", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)

	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.hostnames", []string{})
}

// normalizeAPIURL ensures a custom Slack API base URL ends with a slash,
// which slack-go expects when joining method names onto it.
func normalizeAPIURL(input string) string {
	u := strings.TrimSpace(input)
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
