// Package config loads and validates the portfolio API configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < .env file <
// environment variables. Environment variables use the PORTFOLIO_ prefix (e.g.
// PORTFOLIO_DATABASE_HOST overrides database.host in the YAML).
//
// DATABASE_URL and PORT are also honoured without the prefix because hosting
// platforms inject them under those generic names.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "PORTFOLIO"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// ConfigFile is the YAML file the configuration was read from, empty when
	// only defaults and environment variables were used.
	ConfigFile string `mapstructure:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// StaticDir optionally points at a built single-page frontend that is served
	// for every non-API path.
	StaticDir string `mapstructure:"static_dir"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// URL is a full connection string. When set it takes precedence over the
	// individual host/port/user fields.
	URL                 string        `mapstructure:"url"`
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	Name                string        `mapstructure:"name"`
	User                string        `mapstructure:"user"`
	Password            string        `mapstructure:"password"`
	SSLMode             string        `mapstructure:"ssl_mode"`
	MaxConnections      int           `mapstructure:"max_connections"`
	MinIdleConnections  int           `mapstructure:"min_idle_connections"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	AutoMigrate         bool          `mapstructure:"auto_migrate"`
}

// StorageConfig holds image storage backend configuration
type StorageConfig struct {
	DefaultBackend string                  `mapstructure:"default_backend"`
	Local          LocalStorageConfig      `mapstructure:"local"`
	S3             S3StorageConfig         `mapstructure:"s3"`
	Azure          AzureStorageConfig      `mapstructure:"azure"`
	GCS            GCSStorageConfig        `mapstructure:"gcs"`
	FTP            FTPStorageConfig        `mapstructure:"ftp"`
	Cloudinary     CloudinaryStorageConfig `mapstructure:"cloudinary"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
	// URLPrefix is the public path the files are served under (default /uploads).
	URLPrefix string `mapstructure:"url_prefix"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	// PublicURL is the base URL stored images are reachable under (bucket website,
	// CDN). Derived from bucket/region/endpoint when empty.
	PublicURL string `mapstructure:"public_url"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	CDNURL        string `mapstructure:"cdn_url"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`
	PublicURL string `mapstructure:"public_url"`

	// Authentication method: "default", "service_account", "workload_identity"
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators or compatible services)
	Endpoint string `mapstructure:"endpoint"`
}

// FTPStorageConfig holds FTP storage configuration. Files are uploaded below
// BaseDir and served by a web server rooted at PublicURL.
type FTPStorageConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	User      string        `mapstructure:"user"`
	Password  string        `mapstructure:"password"`
	BaseDir   string        `mapstructure:"base_dir"`
	PublicURL string        `mapstructure:"public_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CloudinaryStorageConfig holds Cloudinary configuration. URL has the form
// cloudinary://<api_key>:<api_secret>@<cloud_name>; the individual fields are
// used when it is empty.
type CloudinaryStorageConfig struct {
	URL       string `mapstructure:"url"`
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	// Folder is prepended to every public ID (e.g. "portfolio").
	Folder string `mapstructure:"folder"`
}

// UploadsConfig holds limits for multipart image uploads
type UploadsConfig struct {
	MaxFileSize int64 `mapstructure:"max_file_size"`
	MaxFiles    int   `mapstructure:"max_files"`
	// MaxDimension caps the longest side of decoded JPEG/PNG uploads; larger
	// images are downscaled. 0 disables resizing.
	MaxDimension int      `mapstructure:"max_dimension"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// AuthConfig holds dashboard authentication configuration
type AuthConfig struct {
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminPassword     string        `mapstructure:"admin_password"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	// AllowLocalhost admits http://localhost:<any> and http://127.0.0.1:<any>.
	AllowLocalhost bool `mapstructure:"allow_localhost"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// RedisURL switches the limiter to a Redis-backed store shared by all
	// instances, e.g. redis://localhost:6379/0.
	RedisURL string `mapstructure:"redis_url"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// envKeys lists every nested key that can be overridden from the environment.
var envKeys = []string{
	// Server
	"server.host",
	"server.port",
	"server.base_url",
	"server.read_timeout",
	"server.write_timeout",
	"server.static_dir",

	// Database
	"database.url",
	"database.host",
	"database.port",
	"database.name",
	"database.user",
	"database.password",
	"database.ssl_mode",
	"database.max_connections",
	"database.min_idle_connections",
	"database.connect_timeout",
	"database.health_check_interval",
	"database.auto_migrate",

	// Storage
	"storage.default_backend",
	"storage.local.base_path",
	"storage.local.url_prefix",
	"storage.s3.endpoint",
	"storage.s3.region",
	"storage.s3.bucket",
	"storage.s3.public_url",
	"storage.s3.auth_method",
	"storage.s3.access_key_id",
	"storage.s3.secret_access_key",
	"storage.s3.role_arn",
	"storage.s3.role_session_name",
	"storage.s3.external_id",
	"storage.s3.web_identity_token_file",
	"storage.azure.account_name",
	"storage.azure.account_key",
	"storage.azure.container_name",
	"storage.azure.cdn_url",
	"storage.gcs.bucket",
	"storage.gcs.project_id",
	"storage.gcs.public_url",
	"storage.gcs.auth_method",
	"storage.gcs.credentials_file",
	"storage.gcs.credentials_json",
	"storage.gcs.endpoint",
	"storage.ftp.host",
	"storage.ftp.port",
	"storage.ftp.user",
	"storage.ftp.password",
	"storage.ftp.base_dir",
	"storage.ftp.public_url",
	"storage.ftp.timeout",
	"storage.cloudinary.url",
	"storage.cloudinary.cloud_name",
	"storage.cloudinary.api_key",
	"storage.cloudinary.api_secret",
	"storage.cloudinary.folder",

	// Uploads
	"uploads.max_file_size",
	"uploads.max_files",
	"uploads.max_dimension",
	"uploads.allowed_types",

	// Auth
	"auth.admin_username",
	"auth.admin_password",
	"auth.admin_password_hash",
	"auth.token_ttl",

	// Security
	"security.cors.allowed_origins",
	"security.cors.allowed_methods",
	"security.cors.allow_localhost",
	"security.rate_limiting.enabled",
	"security.rate_limiting.requests_per_minute",
	"security.rate_limiting.burst",
	"security.rate_limiting.redis_url",
	"security.tls.enabled",
	"security.tls.cert_file",
	"security.tls.key_file",

	// Logging
	"logging.level",
	"logging.format",

	// Telemetry
	"telemetry.service_name",
	"telemetry.metrics.enabled",
	"telemetry.metrics.prometheus_port",
	"telemetry.profiling.enabled",
	"telemetry.profiling.port",
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// newViper builds a Viper instance with defaults, the optional config file and
// environment bindings applied.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/portfolio-api")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// decode unmarshals, post-processes and validates the layered configuration.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	applyPlatformEnv(&cfg)

	// Expand environment variables in sensitive fields
	cfg.Database.URL = expandEnv(cfg.Database.URL)
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.FTP.Password = expandEnv(cfg.Storage.FTP.Password)
	cfg.Storage.Cloudinary.URL = expandEnv(cfg.Storage.Cloudinary.URL)
	cfg.Storage.Cloudinary.APISecret = expandEnv(cfg.Storage.Cloudinary.APISecret)
	cfg.Auth.AdminPassword = expandEnv(cfg.Auth.AdminPassword)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyPlatformEnv honours the unprefixed variables injected by hosting
// platforms when the prefixed equivalents are not set.
func applyPlatformEnv(cfg *Config) {
	if cfg.Database.URL == "" {
		if u := os.Getenv("DATABASE_URL"); u != "" {
			cfg.Database.URL = u
		}
	}
	if os.Getenv(EnvPrefix+"_SERVER_PORT") == "" {
		if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
			cfg.Server.Port = p
		}
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.static_dir", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "portfolio")
	v.SetDefault("database.user", "portfolio")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_idle_connections", 2)
	v.SetDefault("database.connect_timeout", "5s")
	v.SetDefault("database.health_check_interval", "15s")
	v.SetDefault("database.auto_migrate", true)

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./uploads")
	v.SetDefault("storage.local.url_prefix", "/uploads")
	v.SetDefault("storage.ftp.port", 21)
	v.SetDefault("storage.ftp.timeout", "10s")

	// Upload defaults
	v.SetDefault("uploads.max_file_size", 5*1024*1024)
	v.SetDefault("uploads.max_files", 10)
	v.SetDefault("uploads.max_dimension", 2560)
	v.SetDefault("uploads.allowed_types", []string{"image/jpeg", "image/jpg", "image/png", "image/webp"})

	// Auth defaults
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.token_ttl", "24h")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"})
	v.SetDefault("security.cors.allow_localhost", true)
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 30)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "portfolio-api")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required when database.url is not set")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required when database.url is not set")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when database.url is not set")
		}
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	// Validate uploads
	if c.Uploads.MaxFileSize <= 0 {
		return fmt.Errorf("uploads.max_file_size must be positive")
	}
	if c.Uploads.MaxFiles < 1 {
		return fmt.Errorf("uploads.max_files must be at least 1")
	}
	if c.Uploads.MaxDimension < 0 {
		return fmt.Errorf("uploads.max_dimension must not be negative")
	}
	if len(c.Uploads.AllowedTypes) == 0 {
		return fmt.Errorf("uploads.allowed_types must not be empty")
	}

	// Validate auth
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.DefaultBackend {
	case "local":
		if s.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
		if !strings.HasPrefix(s.Local.URLPrefix, "/") {
			return fmt.Errorf("storage.local.url_prefix must start with '/'")
		}
	case "s3":
		if s.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if s.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	case "azure":
		if s.Azure.AccountName == "" {
			return fmt.Errorf("storage.azure.account_name is required when using Azure backend")
		}
		if s.Azure.AccountKey == "" {
			return fmt.Errorf("storage.azure.account_key is required when using Azure backend")
		}
		if s.Azure.ContainerName == "" {
			return fmt.Errorf("storage.azure.container_name is required when using Azure backend")
		}
	case "gcs":
		if s.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required when using GCS backend")
		}
	case "ftp":
		if s.FTP.Host == "" {
			return fmt.Errorf("storage.ftp.host is required when using FTP backend")
		}
		if s.FTP.PublicURL == "" {
			return fmt.Errorf("storage.ftp.public_url is required when using FTP backend")
		}
	case "cloudinary":
		c := s.Cloudinary
		if c.URL == "" && (c.CloudName == "" || c.APIKey == "" || c.APISecret == "") {
			return fmt.Errorf("storage.cloudinary.url or cloud_name/api_key/api_secret are required when using Cloudinary backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be local, s3, azure, gcs, ftp, or cloudinary)", s.DefaultBackend)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
	}
	return dsn
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevMode reports whether the process runs in development mode
// (DEV_MODE=true|1, NODE_ENV=development or GIN_MODE=debug).
func IsDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	return devMode == "true" || devMode == "1" ||
		os.Getenv("NODE_ENV") == "development" ||
		os.Getenv("GIN_MODE") == "debug"
}
