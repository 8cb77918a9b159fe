package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marianozunino/gatedrop/internal/identity"
	"github.com/marianozunino/gatedrop/internal/policy"
	"github.com/marianozunino/gatedrop/internal/storage"
	"github.com/spf13/viper"
)

// Backend names
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

const envPrefix = "GATEDROP"

// Config represents the application configuration
type Config struct {
	Port         int              `mapstructure:"port"`
	BaseURL      string           `mapstructure:"base_url"`
	ShareBaseURL string           `mapstructure:"share_base_url"` // Prefix of share links; defaults to base_url + "f/"
	Storage      StorageConfig    `mapstructure:"storage"`
	Registry     RegistryConfig   `mapstructure:"registry"`
	Auth         AuthConfig       `mapstructure:"auth"`
	Policy       policy.Policy    `mapstructure:"policy"` // Seeds the policy store when it is empty
	Upload       UploadConfig     `mapstructure:"upload"`
	Expiration   ExpirationConfig `mapstructure:"expiration"`
	Pagination   PaginationConfig `mapstructure:"pagination"`
}

type StorageConfig struct {
	Backend    string           `mapstructure:"backend"`
	UploadPath string           `mapstructure:"upload_path"`
	S3         storage.S3Config `mapstructure:"s3"`
}

type RegistryConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type AuthConfig struct {
	JWTSecret           string              `mapstructure:"jwt_secret"`
	TokenTTLHours       int                 `mapstructure:"token_ttl_hours"`
	RevocationCacheSize int                 `mapstructure:"revocation_cache_size"`
	Users               []identity.SeedUser `mapstructure:"users"`
}

type UploadConfig struct {
	EnforceValidityBounds bool `mapstructure:"enforce_validity_bounds"`
}

type ExpirationConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	CheckInterval int  `mapstructure:"check_interval_min"` // Minutes between sweeps
}

type PaginationConfig struct {
	MyFilesLimit   int `mapstructure:"my_files_limit"`
	AvailableLimit int `mapstructure:"available_limit"`
	HistoryLimit   int `mapstructure:"history_limit"`
}

func setDefaults(v *viper.Viper) {
	p := policy.Default()

	v.SetDefault("port", 8080)
	v.SetDefault("base_url", "http://localhost:8080/")
	v.SetDefault("share_base_url", "")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.upload_path", "./uploads")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("registry.backend", BackendSQLite)
	v.SetDefault("registry.sqlite_path", "./data/gatedrop.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 24)
	v.SetDefault("auth.revocation_cache_size", 10000)
	v.SetDefault("policy.max_file_size_mb", p.MaxFileSizeMB)
	v.SetDefault("policy.min_validity_hours", p.MinValidityHours)
	v.SetDefault("policy.max_validity_days", p.MaxValidityDays)
	v.SetDefault("policy.default_validity_days", p.DefaultValidityDays)
	v.SetDefault("policy.require_password_min_length", p.RequirePasswordMinLength)
	v.SetDefault("upload.enforce_validity_bounds", false)
	v.SetDefault("expiration.enabled", true)
	v.SetDefault("expiration.check_interval_min", 60)
	v.SetDefault("pagination.my_files_limit", 20)
	v.SetDefault("pagination.available_limit", 10)
	v.SetDefault("pagination.history_limit", 50)
}

// LoadConfig loads the YAML configuration at path. Environment variables prefixed with
// GATEDROP_ override file values, e.g. GATEDROP_AUTH_JWT_SECRET.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.Policy.ID = 1

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLocal, BackendS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Registry.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	if c.Storage.Backend == BackendS3 && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required for the s3 backend")
	}
	if c.Pagination.MyFilesLimit <= 0 || c.Pagination.AvailableLimit <= 0 || c.Pagination.HistoryLimit <= 0 {
		return errors.New("pagination limits must be positive")
	}
	return c.Policy.Validate()
}

// ShareLinkBase returns the prefix used to build share links
func (c *Config) ShareLinkBase() string {
	if c.ShareBaseURL != "" {
		return c.ShareBaseURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/f/"
}

// TokenTTL is the lifetime of issued access tokens
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// CheckIntervalDuration is the time between expiration sweeps
func (c *Config) CheckIntervalDuration() time.Duration {
	return time.Duration(c.Expiration.CheckInterval) * time.Minute
}
