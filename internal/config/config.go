// Package config handles configuration loading and management for Awela.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Awela.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Models    ModelsConfig    `mapstructure:"models"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	State     StateConfig     `mapstructure:"state"`
	// Admins lists the user ids allowed to decide order approvals.
	Admins []string `mapstructure:"admins"`
}

// IsAdmin reports whether the user id is a verified manager.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// ModelsConfig selects the model per pipeline stage.
type ModelsConfig struct {
	Planner  string `mapstructure:"planner"`
	Worker   string `mapstructure:"worker"`
	Reviewer string `mapstructure:"reviewer"`
}

// TimeoutsConfig bounds the pipeline stages.
type TimeoutsConfig struct {
	// Task caps one worker attempt.
	Task time.Duration `mapstructure:"task"`
	// Request caps the whole request before the dispatcher short-circuits.
	Request time.Duration `mapstructure:"request"`
	// Generate caps a single generation call.
	Generate time.Duration `mapstructure:"generate"`
}

// LimitsConfig holds the scheduling and channel bounds.
type LimitsConfig struct {
	// RetryBound is the rejections absorbed per task before it fails.
	RetryBound int `mapstructure:"retry_bound"`
	// MessageLength is the outbound channel limit in runes.
	MessageLength int `mapstructure:"message_length"`
	// ApprovalThresholdKobo is the order amount above which operations
	// approval is required.
	ApprovalThresholdKobo int64 `mapstructure:"approval_threshold_kobo"`
}

// CatalogConfig locates the product catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig locates the SQLite database.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (AWELA_*, ANTHROPIC_API_KEY)
// 2. Project config (.awela/config.yaml in current directory or a parent)
// 3. User config (~/.config/awela/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AWELA")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "AWELA_ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")

	v.SetDefault("models.planner", "claude-3-5-haiku-20241022")
	v.SetDefault("models.worker", "claude-3-5-haiku-20241022")
	v.SetDefault("models.reviewer", "claude-3-5-haiku-20241022")

	v.SetDefault("timeouts.task", "45s")
	v.SetDefault("timeouts.request", "3m")
	v.SetDefault("timeouts.generate", "30s")

	v.SetDefault("limits.retry_bound", 2)
	v.SetDefault("limits.message_length", 4096)
	v.SetDefault("limits.approval_threshold_kobo", 5000000)

	v.SetDefault("catalog.path", "")
	v.SetDefault("state.path", "")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			Planner:  "claude-3-5-haiku-20241022",
			Worker:   "claude-3-5-haiku-20241022",
			Reviewer: "claude-3-5-haiku-20241022",
		},
		Timeouts: TimeoutsConfig{
			Task:     45 * time.Second,
			Request:  3 * time.Minute,
			Generate: 30 * time.Second,
		},
		Limits: LimitsConfig{
			RetryBound:            2,
			MessageLength:         4096,
			ApprovalThresholdKobo: 5000000,
		},
	}
}

// getUserConfigDir returns the XDG config directory for Awela.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "awela")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "awela")
	}
	return filepath.Join(home, ".config", "awela")
}

// findProjectConfig searches for .awela/config.yaml in the current
// directory and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".awela", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
