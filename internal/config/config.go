// ABOUTME: Configuration loading and parsing for relaydesk-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete relaydesk-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Vault      VaultConfig      `yaml:"vault"`
	Operator   OperatorConfig   `yaml:"operator"`
	Relay      RelayConfig      `yaml:"relay"`
	MediaGroup MediaGroupConfig `yaml:"mediagroup"`
	Topics     TopicsConfig     `yaml:"topics"`
	Poll       PollConfig       `yaml:"poll"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the status API listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds SQLite database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the optional Redis transient store configuration.
// When disabled, an in-memory transient store is used instead.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// VaultConfig holds the credential encryption key (32 bytes, base64)
type VaultConfig struct {
	Key string `yaml:"key"`
}

// OperatorConfig holds the operator connection credential and its group
type OperatorConfig struct {
	Token   string `yaml:"token"`
	GroupID int64  `yaml:"group_id"`
}

// RelayConfig holds relay timing configuration
type RelayConfig struct {
	EnvelopeTTL time.Duration `yaml:"-"`

	EnvelopeTTLRaw string `yaml:"envelope_ttl"`
}

// MediaGroupConfig holds the album debounce window
type MediaGroupConfig struct {
	Window time.Duration `yaml:"-"`

	WindowRaw string `yaml:"window"`
}

// TopicsConfig holds topic rename batching configuration
type TopicsConfig struct {
	RenameDelay time.Duration `yaml:"-"`
	RenameGap   time.Duration `yaml:"-"`

	RenameDelayRaw string `yaml:"rename_delay"`
	RenameGapRaw   string `yaml:"rename_gap"`
}

// PollConfig holds long-poll timing for tenant and operator loops
type PollConfig struct {
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultEnvelopeTTL = time.Hour
	DefaultWindow      = time.Second
	DefaultRenameDelay = time.Second
	DefaultRenameGap   = 100 * time.Millisecond
	DefaultPollTimeout = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw string duration fields into time.Duration
// values, applying defaults where the raw value is empty.
func parseDurations(cfg *Config) error {
	var err error

	cfg.Relay.EnvelopeTTL = DefaultEnvelopeTTL
	if cfg.Relay.EnvelopeTTLRaw != "" {
		cfg.Relay.EnvelopeTTL, err = time.ParseDuration(cfg.Relay.EnvelopeTTLRaw)
		if err != nil {
			return fmt.Errorf("invalid relay.envelope_ttl: %w", err)
		}
	}

	cfg.MediaGroup.Window = DefaultWindow
	if cfg.MediaGroup.WindowRaw != "" {
		cfg.MediaGroup.Window, err = time.ParseDuration(cfg.MediaGroup.WindowRaw)
		if err != nil {
			return fmt.Errorf("invalid mediagroup.window: %w", err)
		}
	}

	cfg.Topics.RenameDelay = DefaultRenameDelay
	if cfg.Topics.RenameDelayRaw != "" {
		cfg.Topics.RenameDelay, err = time.ParseDuration(cfg.Topics.RenameDelayRaw)
		if err != nil {
			return fmt.Errorf("invalid topics.rename_delay: %w", err)
		}
	}

	cfg.Topics.RenameGap = DefaultRenameGap
	if cfg.Topics.RenameGapRaw != "" {
		cfg.Topics.RenameGap, err = time.ParseDuration(cfg.Topics.RenameGapRaw)
		if err != nil {
			return fmt.Errorf("invalid topics.rename_gap: %w", err)
		}
	}

	cfg.Poll.Timeout = DefaultPollTimeout
	if cfg.Poll.TimeoutRaw != "" {
		cfg.Poll.Timeout, err = time.ParseDuration(cfg.Poll.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("invalid poll.timeout: %w", err)
		}
	}

	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Operator.Token == "" {
		return fmt.Errorf("operator.token is required")
	}

	if c.Operator.GroupID == 0 {
		return fmt.Errorf("operator.group_id is required")
	}

	if c.Vault.Key == "" {
		return fmt.Errorf("vault.key is required (32 bytes, base64-encoded)")
	}
	key, err := base64.StdEncoding.DecodeString(c.Vault.Key)
	if err != nil {
		return fmt.Errorf("vault.key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("vault.key must decode to 32 bytes, got %d", len(key))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	return nil
}

// VaultKey returns the decoded 32-byte vault key. Validate must have passed.
func (c *Config) VaultKey() [32]byte {
	var key [32]byte
	decoded, _ := base64.StdEncoding.DecodeString(c.Vault.Key)
	copy(key[:], decoded)
	return key
}
