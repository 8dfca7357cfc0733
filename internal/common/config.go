package common

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Portal      PortalConfig   `toml:"portal"`
	Storage     StorageConfig  `toml:"storage"`
	Polling     PollingConfig  `toml:"polling"`
	Logging     LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// PortalConfig holds the provider endpoints and credentials. The provider
// enforces minimum credential lengths; anything shorter is rejected before
// the first request is made.
type PortalConfig struct {
	Username    string `toml:"username" validate:"required,min=4"`
	Password    string `toml:"password" validate:"required,min=5"`
	PortalURL   string `toml:"portal_url" validate:"required,url"`
	LoginAPIURL string `toml:"login_api_url" validate:"required,url"`
	Issuer      string `toml:"issuer" validate:"required,url"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// PollingConfig controls the refresh cadences of the background jobs
type PollingConfig struct {
	UserInfoInterval string `toml:"userinfo_interval"` // e.g. "1m"
	SessionsInterval string `toml:"sessions_interval"` // e.g. "5m"
	OrgsInterval     string `toml:"orgs_interval"`     // e.g. "20m" - also replaces the realtime channel
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8086,
			Host: "localhost",
		},
		Portal: PortalConfig{
			PortalURL:   "https://portal.libreo.cloud",
			LoginAPIURL: "https://id.libreo.cloud/api/login",
			Issuer:      "https://id.libreo.cloud",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Polling: PollingConfig{
			UserInfoInterval: "1m",
			SessionsInterval: "5m",
			OrgsInterval:     "20m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path skips the file stage.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// Validate checks the configuration for startup-fatal problems. Missing or
// malformed portal settings are the only unrecoverable error in the system.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// PortalHost returns the hostname of the configured portal URL
func (c *Config) PortalHost() string {
	return hostOf(c.Portal.PortalURL)
}

// IssuerHost returns the hostname of the configured identity provider
func (c *Config) IssuerHost() string {
	return hostOf(c.Portal.Issuer)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LIBREO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("LIBREO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LIBREO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if username := os.Getenv("LIBREO_USERNAME"); username != "" {
		config.Portal.Username = username
	}
	if password := os.Getenv("LIBREO_PASSWORD"); password != "" {
		config.Portal.Password = password
	}
	if portalURL := os.Getenv("LIBREO_PORTAL_URL"); portalURL != "" {
		config.Portal.PortalURL = portalURL
	}
	if loginAPIURL := os.Getenv("LIBREO_LOGIN_API_URL"); loginAPIURL != "" {
		config.Portal.LoginAPIURL = loginAPIURL
	}
	if issuer := os.Getenv("LIBREO_ISSUER"); issuer != "" {
		config.Portal.Issuer = issuer
	}

	if badgerPath := os.Getenv("LIBREO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("LIBREO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if interval := os.Getenv("LIBREO_USERINFO_INTERVAL"); interval != "" {
		config.Polling.UserInfoInterval = interval
	}
	if interval := os.Getenv("LIBREO_SESSIONS_INTERVAL"); interval != "" {
		config.Polling.SessionsInterval = interval
	}
	if interval := os.Getenv("LIBREO_ORGS_INTERVAL"); interval != "" {
		config.Polling.OrgsInterval = interval
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
