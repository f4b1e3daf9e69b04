package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the comptroller API daemon.
type Config struct {
	ListenAddress  string               `yaml:"listen"`
	NodeConfig     string               `yaml:"node_config"`
	TLS            TLSConfig            `yaml:"tls"`
	Auth           AuthConfig           `yaml:"auth"`
	RateLimits     map[string]RateLimit `yaml:"rate_limits"`
	Events         EventsConfig         `yaml:"events"`
	Archive        ArchiveConfig        `yaml:"archive"`
	Shutdown       time.Duration        `yaml:"shutdown_timeout"`
	// MaxConnections caps concurrently open client connections, including
	// event streams. Zero leaves them unbounded.
	MaxConnections int                  `yaml:"max_connections"`
}

// TLSConfig describes the certificate served by the API.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token validation. The HMAC secret is read
// from the environment variable named by SecretEnv.
type AuthConfig struct {
	SecretEnv  string        `yaml:"secret_env"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ScopeClaim string        `yaml:"scope_claim"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RateLimit bounds one route group per client.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// EventsConfig sizes the in-memory feed of committed events.
type EventsConfig struct {
	Capacity int `yaml:"capacity"`
}

// ArchiveConfig selects the SQL store for committed events. An empty DSN
// disables archiving.
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Enabled reports whether events are archived.
func (a ArchiveConfig) Enabled() bool { return a.DSN != "" }

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8090"
	}
	cfg.NodeConfig = strings.TrimSpace(cfg.NodeConfig)
	if cfg.NodeConfig == "" {
		cfg.NodeConfig = "config.toml"
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.SecretEnv = strings.TrimSpace(cfg.Auth.SecretEnv)
	if cfg.Auth.SecretEnv == "" {
		cfg.Auth.SecretEnv = "COMPTROLLERD_JWT_SECRET"
	}
	if cfg.Events.Capacity <= 0 {
		cfg.Events.Capacity = 1024
	}
	cfg.Archive.Driver = strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	cfg.Archive.DSN = strings.TrimSpace(cfg.Archive.DSN)
	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = "sqlite"
	}
	if cfg.Shutdown <= 0 {
		cfg.Shutdown = 5 * time.Second
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimit{}
	}
}

func (cfg *Config) validate() error {
	hasCert := cfg.TLS.CertPath != ""
	hasKey := cfg.TLS.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	switch cfg.Archive.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("archive.driver: unsupported driver %q", cfg.Archive.Driver)
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("max_connections: must not be negative")
	}
	for group, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: values must not be negative", group)
		}
	}
	return nil
}

// Secret reads the token signing secret from the environment.
func (cfg AuthConfig) Secret() (string, error) {
	secret := strings.TrimSpace(os.Getenv(cfg.SecretEnv))
	if secret == "" {
		return "", fmt.Errorf("auth: environment variable %s is empty", cfg.SecretEnv)
	}
	return secret, nil
}
