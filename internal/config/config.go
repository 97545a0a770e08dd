// Package config loads the time bank daemon configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable pointing at the config file.
const EnvConfigPath = "TIMEBANK_CONFIG"

// Config holds the time bank configuration.
type Config struct {
	Monitor     MonitorConfig     `yaml:"monitor"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Bank        BankConfig        `yaml:"bank"`
	Storage     StorageConfig     `yaml:"storage"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// MonitorConfig holds sampling settings.
type MonitorConfig struct {
	TickInterval         time.Duration `yaml:"tick_interval"`
	SelfAppID            string        `yaml:"self_app_id"`
	EnabledCheckInterval time.Duration `yaml:"enabled_check_interval"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
}

// EnforcementConfig holds block and reminder settings.
type EnforcementConfig struct {
	BlockCooldown    time.Duration `yaml:"block_cooldown"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	KillOnBlock      bool          `yaml:"kill_on_block"`
}

// BankConfig holds balance settings. Balances are in seconds.
type BankConfig struct {
	DailyBalance  int64         `yaml:"daily_balance"`
	ClearBalance  int64         `yaml:"clear_balance"`
	ClearThrottle time.Duration `yaml:"clear_throttle"`
	DefaultRatio  float64       `yaml:"default_ratio"`
}

// StorageConfig holds file locations.
type StorageConfig struct {
	DataDir             string `yaml:"data_dir"`            // empty = mode-dependent default
	ClassificationsFile string `yaml:"classifications_file"` // optional, hot reloaded
}

// HTTPConfig holds the local API settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the API
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	c := Config{
		Bank: BankConfig{
			DailyBalance: 60,
			ClearBalance: 300,
		},
	}
	c.ApplyDefaults()
	return c
}

// Load reads configuration from path, falling back to $TIMEBANK_CONFIG.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	loadDotEnv(path)

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values. Balances are not
// touched: zero is a valid grant, so their defaults come from DefaultConfig.
func (c *Config) ApplyDefaults() {
	if c.Monitor.TickInterval <= 0 {
		c.Monitor.TickInterval = 100 * time.Millisecond
	}
	if c.Monitor.EnabledCheckInterval <= 0 {
		c.Monitor.EnabledCheckInterval = 2 * time.Second
	}
	if c.Monitor.HeartbeatInterval <= 0 {
		c.Monitor.HeartbeatInterval = 30 * time.Second
	}
	if c.Enforcement.BlockCooldown <= 0 {
		c.Enforcement.BlockCooldown = 30 * time.Second
	}
	if c.Enforcement.ReminderInterval <= 0 {
		c.Enforcement.ReminderInterval = 5 * time.Second
	}
	if c.Bank.ClearThrottle <= 0 {
		c.Bank.ClearThrottle = 7 * 24 * time.Hour
	}
	if c.Bank.DefaultRatio == 0 {
		c.Bank.DefaultRatio = 1.0
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Monitor.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("monitor.tick_interval must be at least 10ms, got %s", c.Monitor.TickInterval)
	}
	if c.Bank.DailyBalance < 0 {
		return fmt.Errorf("bank.daily_balance must not be negative, got %d", c.Bank.DailyBalance)
	}
	if c.Bank.ClearBalance < 0 {
		return fmt.Errorf("bank.clear_balance must not be negative, got %d", c.Bank.ClearBalance)
	}
	if r := c.Bank.DefaultRatio; r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("bank.default_ratio must be a positive number, got %v", r)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}

// loadDotEnv loads the first .env found next to the config file or in the
// working directory. Existing variables win.
func loadDotEnv(configPath string) {
	var candidates []string
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	candidates = append(candidates, ".env")
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
