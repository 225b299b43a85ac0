package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Roomkit.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	OAuth    OAuthConfig    `yaml:"oauth"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// OAuthConfig contains token lifecycle settings.
//
// Deployment documentation disagrees on token lifetimes (15-60 minute
// access tokens in one place, 24 hours in another), so every lifetime is
// configurable and nothing is a hardcoded constant.
type OAuthConfig struct {
	// AccessTokenTTL is the access token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh token lifetime in days.
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`

	// DirectAccessTokenTTL is the access token lifetime in minutes for the
	// first-party direct grant. First-party sessions are typically longer
	// lived than third-party ones.
	DirectAccessTokenTTL int `yaml:"direct_access_token_ttl"`

	// DirectRefreshTokenTTL is the refresh token lifetime in days for the
	// first-party direct grant.
	DirectRefreshTokenTTL int `yaml:"direct_refresh_token_ttl"`

	// AuthCodeTTL is the authorization code lifetime in minutes.
	AuthCodeTTL int `yaml:"auth_code_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ROOMKIT_SECTION_KEY
// For example: ROOMKIT_DATABASE_PATH, ROOMKIT_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/roomkit.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		OAuth: OAuthConfig{
			AccessTokenTTL:        60,
			RefreshTokenTTL:       30,
			DirectAccessTokenTTL:  1440,
			DirectRefreshTokenTTL: 30,
			AuthCodeTTL:           10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ROOMKIT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOMKIT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("ROOMKIT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ROOMKIT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("ROOMKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	// Token lifetimes must be positive. Zero would mint tokens that are
	// already expired; negative values are configuration mistakes.
	if c.OAuth.AccessTokenTTL <= 0 {
		errs = append(errs, "oauth.access_token_ttl must be positive")
	}
	if c.OAuth.RefreshTokenTTL <= 0 {
		errs = append(errs, "oauth.refresh_token_ttl must be positive")
	}
	if c.OAuth.DirectAccessTokenTTL <= 0 {
		errs = append(errs, "oauth.direct_access_token_ttl must be positive")
	}
	if c.OAuth.DirectRefreshTokenTTL <= 0 {
		errs = append(errs, "oauth.direct_refresh_token_ttl must be positive")
	}
	if c.OAuth.AuthCodeTTL <= 0 {
		errs = append(errs, "oauth.auth_code_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// AccessTokenLifetime returns the standard access token lifetime as a Duration.
func (o OAuthConfig) AccessTokenLifetime() time.Duration {
	return time.Duration(o.AccessTokenTTL) * time.Minute
}

// RefreshTokenLifetime returns the standard refresh token lifetime as a Duration.
func (o OAuthConfig) RefreshTokenLifetime() time.Duration {
	return time.Duration(o.RefreshTokenTTL) * 24 * time.Hour
}

// DirectAccessTokenLifetime returns the direct-grant access token lifetime.
func (o OAuthConfig) DirectAccessTokenLifetime() time.Duration {
	return time.Duration(o.DirectAccessTokenTTL) * time.Minute
}

// DirectRefreshTokenLifetime returns the direct-grant refresh token lifetime.
func (o OAuthConfig) DirectRefreshTokenLifetime() time.Duration {
	return time.Duration(o.DirectRefreshTokenTTL) * 24 * time.Hour
}

// AuthCodeLifetime returns the authorization code lifetime as a Duration.
func (o OAuthConfig) AuthCodeLifetime() time.Duration {
	return time.Duration(o.AuthCodeTTL) * time.Minute
}
