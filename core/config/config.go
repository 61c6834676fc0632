package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// PromoConfig describes the upstream promo site and session timing.
type PromoConfig struct {
	BaseURL    string `yaml:"base_url" envconfig:"PROMO_BASE_URL"`
	ClaimPath  string `yaml:"claim_path" envconfig:"PROMO_CLAIM_PATH"`
	RedeemPath string `yaml:"redeem_path" envconfig:"PROMO_REDEEM_PATH"`
	// TimeoutSeconds bounds every upstream HTTP call; 0 -> 15.
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"PROMO_TIMEOUT_SECONDS"`
	// SettleDelayMS is the pause after token acquisition; the upstream site
	// misbehaves on claims issued immediately after the root page exchange.
	// Normalize defaults 0 to 200; a negative value disables the pause.
	SettleDelayMS int `yaml:"settle_delay_ms" envconfig:"PROMO_SETTLE_DELAY_MS"`
	// SessionTTLSeconds is how long a claimed gift stays redeemable; 0 -> 30.
	SessionTTLSeconds int `yaml:"session_ttl_seconds" envconfig:"PROMO_SESSION_TTL_SECONDS"`
	// SweepIntervalSeconds drives the abandoned-session janitor; 0 -> 60.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" envconfig:"PROMO_SWEEP_INTERVAL_SECONDS"`
}

// Timeout returns the upstream call timeout as a duration.
func (p PromoConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// SettleDelay returns the post-acquisition pause as a duration.
func (p PromoConfig) SettleDelay() time.Duration {
	if p.SettleDelayMS < 0 {
		return 0
	}
	return time.Duration(p.SettleDelayMS) * time.Millisecond
}

// SessionTTL returns the session validity window.
func (p PromoConfig) SessionTTL() time.Duration {
	if p.SessionTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.SessionTTLSeconds) * time.Second
}

// SweepInterval returns the janitor period.
func (p PromoConfig) SweepInterval() time.Duration {
	if p.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(p.SweepIntervalSeconds) * time.Second
}

// StorageConfig gates the optional redemption journal.
type StorageConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"STORAGE_ENABLED"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Promo     PromoConfig     `yaml:"promo"`
	Storage   StorageConfig   `yaml:"storage"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	base := strings.TrimSpace(cfg.Promo.BaseURL)
	if base == "" {
		return fmt.Errorf("promo.base_url is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("promo.base_url must start with http:// or https://")
	}
	cfg.Promo.BaseURL = strings.TrimRight(base, "/")
	if strings.TrimSpace(cfg.Promo.ClaimPath) == "" {
		cfg.Promo.ClaimPath = "/getgift"
	}
	if strings.TrimSpace(cfg.Promo.RedeemPath) == "" {
		cfg.Promo.RedeemPath = "/sendgift"
	}
	if cfg.Promo.SettleDelayMS == 0 {
		cfg.Promo.SettleDelayMS = 200
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
