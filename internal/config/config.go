package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

type (
	// Config is the on-disk (config.yaml) settings surface. Scheduler and
	// control-plane bind knobs are read from the environment per OTTO_*
	// variables instead of living here — see internal/config/env.go. The
	// outbound retry policy is fixed in cmd/otto/run.go.
	Config struct {
		Logging    LoggingConfig    `yaml:"logging"`
		Anthropic  AnthropicConfig  `yaml:"anthropic"`
		Telegram   TelegramConfig   `yaml:"telegram"`
		Onboarding OnboardingConfig `yaml:"onboarding"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	// AnthropicConfig configures internal/sessiongateway's default Messages
	// API backing. APIKeyEnv names the environment variable holding the key
	// (never the key itself) so config.yaml never carries a secret.
	AnthropicConfig struct {
		APIKeyEnv   string  `yaml:"api_key_env"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	}

	// TelegramConfig configures internal/transport/telegram's outbound-only
	// sender. BotTokenEnv names the environment variable holding the token.
	TelegramConfig struct {
		BotTokenEnv   string `yaml:"bot_token_env"`
		DefaultChatID int64  `yaml:"default_chat_id"`
	}

	// OnboardingConfig seeds UserProfile defaults on first run.
	OnboardingConfig struct {
		Timezone string `yaml:"timezone"`
	}
)

// Validate trims and fills defaults; it returns an error only for a nil
// config. It never touches scheduler/API env-derived settings (see env.go's
// LoadRuntimeEnv).
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	c.Logging.Level = strings.TrimSpace(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Output = strings.TrimSpace(c.Logging.Output)
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	c.Anthropic.APIKeyEnv = strings.TrimSpace(c.Anthropic.APIKeyEnv)
	if c.Anthropic.APIKeyEnv == "" {
		c.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	c.Anthropic.Model = strings.TrimSpace(c.Anthropic.Model)
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-5"
	}
	if c.Anthropic.MaxTokens <= 0 {
		c.Anthropic.MaxTokens = 4096
	}

	c.Telegram.BotTokenEnv = strings.TrimSpace(c.Telegram.BotTokenEnv)
	if c.Telegram.BotTokenEnv == "" {
		c.Telegram.BotTokenEnv = "TELEGRAM_BOT_TOKEN"
	}

	c.Onboarding.Timezone = strings.TrimSpace(c.Onboarding.Timezone)
	if c.Onboarding.Timezone == "" {
		c.Onboarding.Timezone = "Europe/Vienna"
	}

	return nil
}

// Clone returns a deep copy via a marshal round-trip.
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}

	return &cloned, nil
}

// Hash returns a stable content hash, used by InstanceManager's
// compare-and-swap Apply.
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// UpdateByName applies a partial update by section name; used by
// InstanceManager.ApplyWithCAS.
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "anthropic":
		typed, ok := value.(*AnthropicConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'anthropic' requires *AnthropicConfig")
		}
		c.Anthropic = *typed
	case "telegram":
		typed, ok := value.(*TelegramConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'telegram' requires *TelegramConfig")
		}
		c.Telegram = *typed
	case "onboarding":
		typed, ok := value.(*OnboardingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'onboarding' requires *OnboardingConfig")
		}
		c.Onboarding = *typed
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}

	return nil
}
