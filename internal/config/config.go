// Package config provides configuration management for anthrogate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"anthrogate/internal/domain"
)

// Config is the root configuration structure, narrowed from the teacher's multi-provider/
// multi-tenant Config down to the single-backend surface §6 names.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Database  DatabaseConfig  `toml:"database"`
	Bedrock   BedrockConfig   `toml:"bedrock"`
	Security  SecurityConfig  `toml:"security"`
}

// ServerConfig contains HTTP listener settings. Kept in the teacher's shape (HTTPPort/
// BindAddress/timeouts) — the HTTP listener itself is out of scope (§1) but the core still needs
// to know its own timeouts to configure the streaming path.
type ServerConfig struct {
	HTTPPort        int           `toml:"http_port"`
	BindAddress     string        `toml:"bind_address"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	MaxRequestSize  int64         `toml:"max_request_size"`
	StreamingTimeout time.Duration `toml:"streaming_timeout"`
}

// TelemetryConfig mirrors the teacher's logging/metrics knobs, narrowed to what a translator +
// pipeline actually emits (no OTLP traces — this isn't a multi-provider router).
type TelemetryConfig struct {
	ServiceName       string `toml:"service_name"`
	PrometheusEnabled bool   `toml:"prometheus_enabled"`
	PrometheusPort    int    `toml:"prometheus_port"`
	LogFormat         string `toml:"log_format"` // "json" | "pretty"
	LogLevel          string `toml:"log_level"`
}

// DatabaseConfig contains Postgres connection settings for the Key Repository.
type DatabaseConfig struct {
	Driver     string        `toml:"driver"` // "postgres" | "memory"
	DSN        string        `toml:"dsn"`
	Host       string        `toml:"host"`
	Port       int           `toml:"port"`
	User       string        `toml:"user"`
	Password   string        `toml:"password"`
	Database   string        `toml:"database"`
	SSLMode    string        `toml:"ssl_mode"`
	MaxConns   int           `toml:"max_conns"`
	MaxIdle    int           `toml:"max_idle"`
	ConnMaxAge time.Duration `toml:"conn_max_age"`
}

// GetDSN returns the DSN for the database.
func (d *DatabaseConfig) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// GetBaseDSN returns a DSN without a database name, for CreateDatabase.
func (d *DatabaseConfig) GetBaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.SSLMode)
}

// BedrockConfig carries the one backend's connection settings (§6 AWS_REGION and IAM credentials).
type BedrockConfig struct {
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	DefaultServiceTier string `toml:"default_service_tier"` // "" | default | flex | priority | reserved
}

// SecurityConfig bundles the auth/rate-limit/feature-flag surface of §6.
type SecurityConfig struct {
	RequireAPIKey       bool   `toml:"require_api_key"`
	MasterAPIKey        string `toml:"master_api_key"`
	APIKeyHeader        string `toml:"api_key_header"`
	APIKeyHashAlgorithm string `toml:"api_key_hash_algorithm"`
	RateLimitEnabled    bool   `toml:"rate_limit_enabled"`
	RateLimitRequests   int    `toml:"rate_limit_requests"` // bucket capacity
	RateLimitWindow     int    `toml:"rate_limit_window"`   // seconds over which capacity refills
	EnableToolUse       bool   `toml:"enable_tool_use"`
	EnableExtendedThinking bool `toml:"enable_extended_thinking"`
	EnableDocumentSupport  bool `toml:"enable_document_support"`
	PromptCachingEnabled   bool `toml:"prompt_caching_enabled"`
	// MetadataEncryptionKey is a base64 AES-128/192/256 key. When set, the Postgres store
	// encrypts APIKey.Metadata values at rest; when empty, metadata is stored as plain JSON.
	MetadataEncryptionKey string `toml:"metadata_encryption_key"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			BindAddress:     "0.0.0.0",
			ReadTimeout:     5 * time.Minute,
			WriteTimeout:    10 * time.Minute,
			MaxRequestSize:  10 * 1024 * 1024,
			StreamingTimeout: 60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:       "anthrogate",
			PrometheusEnabled: true,
			PrometheusPort:    9090,
			LogFormat:         "json",
			LogLevel:          "info",
		},
		Database: DatabaseConfig{
			Driver:     "memory",
			Host:       "localhost",
			Port:       5432,
			User:       "postgres",
			Password:   "postgres",
			Database:   "anthrogate",
			SSLMode:    "disable",
			MaxConns:   20,
			MaxIdle:    5,
			ConnMaxAge: 30 * time.Minute,
		},
		Bedrock: BedrockConfig{
			Region:             "us-east-1",
			DefaultServiceTier: string(domain.ServiceTierDefault),
		},
		Security: SecurityConfig{
			RequireAPIKey:       true,
			APIKeyHeader:        "x-api-key",
			APIKeyHashAlgorithm: "sha256",
			RateLimitEnabled:    true,
			RateLimitRequests:   60,
			RateLimitWindow:     60,
			EnableToolUse:       true,
			EnableExtendedThinking: true,
			EnableDocumentSupport:  true,
			PromptCachingEnabled:   true,
		},
	}
}

// Load loads configuration from a TOML file, falling back to defaults if the file is absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadOrDefault loads config from file or returns defaults, logging a warning on failure.
func LoadOrDefault(path string) *Config {
	if path == "" {
		cfg := Default()
		cfg.applyEnvOverrides()
		return cfg
	}

	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("Warning: Failed to load config from %s: %v\n", path, err)
		cfg = Default()
		cfg.applyEnvOverrides()
	}
	return cfg
}

// applyEnvOverrides expands ${VAR} patterns already present in string fields and layers direct
// ANTHROGATE_* / §6-named environment variable overrides on top, matching the teacher's
// substituteEnvVars two-layer precedence (file < env expansion < direct override).
func (c *Config) applyEnvOverrides() {
	c.Bedrock.AccessKeyID = expandEnv(c.Bedrock.AccessKeyID)
	c.Bedrock.SecretAccessKey = expandEnv(c.Bedrock.SecretAccessKey)
	c.Database.DSN = expandEnv(c.Database.DSN)
	c.Database.Host = expandEnv(c.Database.Host)
	c.Database.User = expandEnv(c.Database.User)
	c.Database.Password = expandEnv(c.Database.Password)
	c.Security.MasterAPIKey = expandEnv(c.Security.MasterAPIKey)
	c.Security.MetadataEncryptionKey = expandEnv(c.Security.MetadataEncryptionKey)

	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Bedrock.Region = v
	}
	if v := os.Getenv("MASTER_API_KEY"); v != "" {
		c.Security.MasterAPIKey = v
	}
	if v := os.Getenv("API_KEY_HEADER"); v != "" {
		c.Security.APIKeyHeader = v
	}
	if v := os.Getenv("METADATA_ENCRYPTION_KEY"); v != "" {
		c.Security.MetadataEncryptionKey = v
	}
	if v := os.Getenv("DEFAULT_SERVICE_TIER"); v != "" {
		c.Bedrock.DefaultServiceTier = v
	}
	if v, ok := boolEnv("REQUIRE_API_KEY"); ok {
		c.Security.RequireAPIKey = v
	}
	if v, ok := boolEnv("RATE_LIMIT_ENABLED"); ok {
		c.Security.RateLimitEnabled = v
	}
	if v, ok := intEnv("RATE_LIMIT_REQUESTS"); ok {
		c.Security.RateLimitRequests = v
	}
	if v, ok := intEnv("RATE_LIMIT_WINDOW"); ok {
		c.Security.RateLimitWindow = v
	}
	if v, ok := boolEnv("ENABLE_TOOL_USE"); ok {
		c.Security.EnableToolUse = v
	}
	if v, ok := boolEnv("ENABLE_EXTENDED_THINKING"); ok {
		c.Security.EnableExtendedThinking = v
	}
	if v, ok := boolEnv("ENABLE_DOCUMENT_SUPPORT"); ok {
		c.Security.EnableDocumentSupport = v
	}
	if v, ok := boolEnv("PROMPT_CACHING_ENABLED"); ok {
		c.Security.PromptCachingEnabled = v
	}
	if v, ok := intEnv("STREAMING_TIMEOUT"); ok {
		c.Server.StreamingTimeout = time.Duration(v) * time.Second
	}

	if v := os.Getenv("ANTHROGATE_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("ANTHROGATE_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v, ok := intEnv("ANTHROGATE_DB_PORT"); ok {
		c.Database.Port = v
	}
	if v := os.Getenv("ANTHROGATE_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("ANTHROGATE_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("ANTHROGATE_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("ANTHROGATE_DB_SSL_MODE"); v != "" {
		c.Database.SSLMode = v
	}
	if v, ok := intEnv("ANTHROGATE_HTTP_PORT"); ok {
		c.Server.HTTPPort = v
	}
}

func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}

func boolEnv(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func intEnv(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// RefillRate derives the token bucket's tokens/second from capacity and window (§6:
// "refill_rate = capacity/window").
func (s *SecurityConfig) RefillRate() float64 {
	if s.RateLimitWindow <= 0 {
		return float64(s.RateLimitRequests)
	}
	return float64(s.RateLimitRequests) / float64(s.RateLimitWindow)
}

// WindowSeconds returns RateLimitWindow as a float64, defaulting to 1 when unset so a zero window
// never produces an infinite or undefined refill rate downstream.
func (s *SecurityConfig) WindowSeconds() float64 {
	if s.RateLimitWindow <= 0 {
		return 1
	}
	return float64(s.RateLimitWindow)
}
