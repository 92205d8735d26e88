// config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ExitConfig holds the stop-loss management thresholds.
// All percentages are signed fractions (0.01 == 1%).
type ExitConfig struct {
	TrailingStop           bool    `yaml:"trailing_stop"`
	TrailingActivationPct  float64 `yaml:"trailing_activation_pct"`
	TrailingDistancePct    float64 `yaml:"trailing_distance_pct"`
	TrailingStepPct        float64 `yaml:"trailing_step_pct"`
	BreakevenStop          bool    `yaml:"breakeven_stop"`
	BreakevenActivationPct float64 `yaml:"breakeven_activation_pct"`
	BreakevenBufferPct     float64 `yaml:"breakeven_buffer_pct"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds all general, non-policy configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds       int     `yaml:"http_timeout_seconds"`
	CheckIntervalSeconds     int     `yaml:"check_interval_seconds"`
	OrderTimeoutSeconds      int     `yaml:"order_timeout_seconds"`
	HeartbeatIntervalMinutes int     `yaml:"heartbeat_interval_minutes"`
	StatusIntervalMinutes    int     `yaml:"status_interval_minutes"`
	RateLimitPerSecond       float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst           int     `yaml:"rate_limit_burst"`
	LogDirectory             string  `yaml:"log_directory"`
	StateDirectory           string  `yaml:"state_directory"`
}

// Config is the top-level configuration structure.
type Config struct {
	UseSimulation bool          `yaml:"use_simulation"`
	Exit          *ExitConfig   `yaml:"exit"`
	Normal        *NormalConfig `yaml:"normal_config"`
	Logs          *LogConfig    `yaml:"logs"`
}

// NewConfig creates a Config with nested structs allocated but zero-valued.
// All critical thresholds MUST be provided in the config.yaml file;
// validation ensures they are populated.
func NewConfig() *Config {
	return &Config{
		Exit:   &ExitConfig{},
		Normal: &NormalConfig{},
		Logs:   &LogConfig{},
	}
}

// LoadConfig loads configuration from a given path and validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Error: Config file config.yaml not found at %s. Program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	if cfg.Exit == nil {
		cfg.Exit = &ExitConfig{}
	}
	if cfg.Normal == nil {
		cfg.Normal = &NormalConfig{}
	}
	if cfg.Logs == nil {
		cfg.Logs = &LogConfig{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the logical consistency and completeness of the entire configuration.
// Malformed thresholds are rejected here, at load time, never clamped during operation.
func (c *Config) Validate() error {
	if c.Exit == nil {
		return fmt.Errorf("Critical config missing: 'exit' configuration block must be provided in config.yaml")
	}
	if err := c.Exit.Validate(); err != nil {
		return err
	}

	if c.Normal == nil {
		return fmt.Errorf("Critical config missing: 'normal_config' configuration block must be provided in config.yaml")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.http_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.check_interval_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.OrderTimeoutSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.order_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.HeartbeatIntervalMinutes <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.heartbeat_interval_minutes' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.StatusIntervalMinutes <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.status_interval_minutes' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.RateLimitPerSecond <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.rate_limit_per_second' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.RateLimitBurst <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.rate_limit_burst' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.LogDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.log_directory' must be explicitly specified in config.yaml (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.state_directory' must be explicitly specified in config.yaml (e.g., 'state')")
	}

	if c.Logs == nil {
		return fmt.Errorf("Critical config missing: 'logs' configuration block must be provided in config.yaml")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("Critical config missing: 'logs.log_level' must be explicitly specified in config.yaml (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_size_mb' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxBackups <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_backups' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_age_days' must be explicitly specified in config.yaml and be positive")
	}

	return nil
}

// Validate checks the stop-loss thresholds for the exit block alone, so the
// engine can re-run it when constructed as a library with a hand-built config.
func (e *ExitConfig) Validate() error {
	if e.TrailingStop {
		if e.TrailingActivationPct <= 0 {
			return fmt.Errorf("Config error: exit.trailing_activation_pct must be positive when trailing_stop is enabled")
		}
		if e.TrailingDistancePct <= 0 {
			return fmt.Errorf("Config error: exit.trailing_distance_pct must be positive when trailing_stop is enabled")
		}
		if e.TrailingStepPct < 0 {
			return fmt.Errorf("Config error: exit.trailing_step_pct cannot be negative")
		}
	}
	if e.BreakevenStop {
		if e.BreakevenActivationPct <= 0 {
			return fmt.Errorf("Config error: exit.breakeven_activation_pct must be positive when breakeven_stop is enabled")
		}
		if e.BreakevenBufferPct < 0 {
			return fmt.Errorf("Config error: exit.breakeven_buffer_pct cannot be negative")
		}
		// An inverted pair would relocate the stop at or beyond the market
		// price on the very cycle it activates.
		if e.BreakevenBufferPct >= e.BreakevenActivationPct {
			return fmt.Errorf("Config error: exit.breakeven_buffer_pct (%.4f) must be smaller than exit.breakeven_activation_pct (%.4f)",
				e.BreakevenBufferPct, e.BreakevenActivationPct)
		}
	}
	return nil
}

// EnvConfig carries the OKX API credentials read from the environment.
type EnvConfig struct {
	ApiKey     string
	ApiSecret  string
	Passphrase string
	BaseURL    string
}

func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		ApiKey:     os.Getenv("OKX_API_KEY"),
		ApiSecret:  os.Getenv("OKX_SECRET_KEY"),
		Passphrase: os.Getenv("OKX_PASSPHRASE"),
		BaseURL:    os.Getenv("OKX_BASE_URL"),
	}
}
