// ABOUTME: Configuration loading and parsing for the solace coordination core
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete solace-core configuration
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Autosave AutosaveConfig `yaml:"autosave"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// GatewayConfig holds inference gateway connection settings
type GatewayConfig struct {
	InferenceURL string `yaml:"inference_url"`

	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds passcode and credential configuration
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CodeLength int    `yaml:"code_length"`

	CodeTTL       time.Duration `yaml:"-"`
	CredentialTTL time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CodeTTLRaw       string `yaml:"code_ttl"`
	CredentialTTLRaw string `yaml:"credential_ttl"`
}

// AutosaveConfig holds draft autosave tuning
type AutosaveConfig struct {
	// MinMeaningful is the minimum residual rune count after stripping
	// leading structural markdown before a draft is worth persisting.
	MinMeaningful int `yaml:"min_meaningful"`

	Delay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DelayRaw string `yaml:"delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Defaults applied when the file leaves a value unset.
const (
	DefaultAutosaveDelay  = 1000 * time.Millisecond
	DefaultMinMeaningful  = 3
	DefaultCodeLength     = 6
	DefaultCodeTTL        = 10 * time.Minute
	DefaultCredentialTTL  = 30 * 24 * time.Hour
	DefaultRequestTimeout = 60 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML content.
func LoadFromBytes(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset values with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Autosave.Delay == 0 {
		c.Autosave.Delay = DefaultAutosaveDelay
	}
	if c.Autosave.MinMeaningful == 0 {
		c.Autosave.MinMeaningful = DefaultMinMeaningful
	}
	if c.Auth.CodeLength == 0 {
		c.Auth.CodeLength = DefaultCodeLength
	}
	if c.Auth.CodeTTL == 0 {
		c.Auth.CodeTTL = DefaultCodeTTL
	}
	if c.Auth.CredentialTTL == 0 {
		c.Auth.CredentialTTL = DefaultCredentialTTL
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = DefaultRequestTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "localhost:9090"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Gateway.InferenceURL == "" {
		return fmt.Errorf("gateway.inference_url is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.RequestTimeoutRaw != "" {
		cfg.Gateway.RequestTimeout, err = time.ParseDuration(cfg.Gateway.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Gateway.RequestTimeoutRaw, err)
		}
	}

	if cfg.Auth.CodeTTLRaw != "" {
		cfg.Auth.CodeTTL, err = time.ParseDuration(cfg.Auth.CodeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing code_ttl %q: %w", cfg.Auth.CodeTTLRaw, err)
		}
	}

	if cfg.Auth.CredentialTTLRaw != "" {
		cfg.Auth.CredentialTTL, err = time.ParseDuration(cfg.Auth.CredentialTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing credential_ttl %q: %w", cfg.Auth.CredentialTTLRaw, err)
		}
	}

	if cfg.Autosave.DelayRaw != "" {
		cfg.Autosave.Delay, err = time.ParseDuration(cfg.Autosave.DelayRaw)
		if err != nil {
			return fmt.Errorf("parsing autosave delay %q: %w", cfg.Autosave.DelayRaw, err)
		}
	}

	return nil
}
