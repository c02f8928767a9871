package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite3
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	// sqlite3 のときのみ使用
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	Cert        string   `yaml:"cert"`
	Key         string   `yaml:"key"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type AuthConfig struct {
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type StripeConfig struct {
	APIKey           string        `yaml:"api_key"`
	APIBase          string        `yaml:"api_base"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance"`
}

type PaymentsConfig struct {
	Provider       string       `yaml:"provider"` // stripe | fake
	FineMultiplier string       `yaml:"fine_multiplier"`
	Currency       string       `yaml:"currency"`
	SuccessURL     string       `yaml:"success_url"`
	CancelURL      string       `yaml:"cancel_url"`
	Stripe         StripeConfig `yaml:"stripe"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIBase  string `yaml:"api_base"`
}

type NotificationsConfig struct {
	Workers     int            `yaml:"workers"`
	QueueSize   int            `yaml:"queue_size"`
	MaxAttempts int            `yaml:"max_attempts"`
	BaseBackoff time.Duration  `yaml:"base_backoff"`
	MaxBackoff  time.Duration  `yaml:"max_backoff"`
	Telegram    TelegramConfig `yaml:"telegram"`
}

type OverdueConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Version       string              `yaml:"version"`
	Mode          string              `yaml:"mode"`
	Server        ServerConfig        `yaml:"server"`
	DB            DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Payments      PaymentsConfig      `yaml:"payments"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Overdue       OverdueConfig       `yaml:"overdue"`
}

// Load は YAML を読み込み、既定値と環境変数による上書きを適用してから検証する。
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(buf)
}

func Parse(buf []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Mode: "dev",
		Server: ServerConfig{
			Addr: ":8080",
		},
		DB: DatabaseConfig{
			Driver: "mysql",
			Host:   "127.0.0.1",
			Port:   3306,
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Payments: PaymentsConfig{
			Provider:       "stripe",
			FineMultiplier: "2",
			Currency:       "usd",
			Stripe: StripeConfig{
				APIBase:          "https://api.stripe.com",
				WebhookTolerance: 5 * time.Minute,
			},
		},
		Notifications: NotificationsConfig{
			Workers:     2,
			QueueSize:   256,
			MaxAttempts: 5,
			BaseBackoff: 2 * time.Second,
			MaxBackoff:  time.Minute,
			Telegram: TelegramConfig{
				APIBase: "https://api.telegram.org",
			},
		},
		Overdue: OverdueConfig{
			Interval: 24 * time.Hour,
		},
	}
}

// 秘密情報は設定ファイルに書かずに環境変数から渡せる
func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Auth.Secret, "LIBRA_JWT_SECRET")
	override(&c.DB.Password, "LIBRA_DB_PASSWORD")
	override(&c.Payments.Stripe.APIKey, "STRIPE_SECRET_KEY")
	override(&c.Payments.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	override(&c.Notifications.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	override(&c.Notifications.Telegram.ChatID, "TELEGRAM_CHAT_ID")
}

func (c *Config) Validate() error {
	var errs []error

	if c.Mode != "dev" && c.Mode != "release" {
		errs = append(errs, fmt.Errorf("mode must be dev or release, got %q", c.Mode))
	}
	switch c.DB.Driver {
	case "mysql":
		if c.DB.DBName == "" {
			errs = append(errs, errors.New("database.dbname is required for mysql"))
		}
	case "sqlite3":
		if c.DB.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.DB.Driver))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if _, err := c.FineMultiplier(); err != nil {
		errs = append(errs, err)
	}
	switch c.Payments.Provider {
	case "stripe":
		if c.Payments.Stripe.APIKey == "" {
			errs = append(errs, errors.New("payments.stripe.api_key is required"))
		}
		if c.Payments.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("payments.stripe.webhook_secret is required"))
		}
	case "fake":
	default:
		errs = append(errs, fmt.Errorf("unknown payments.provider %q", c.Payments.Provider))
	}
	if c.Notifications.Workers <= 0 {
		errs = append(errs, errors.New("notifications.workers must be > 0"))
	}
	if c.Notifications.MaxAttempts <= 0 {
		errs = append(errs, errors.New("notifications.max_attempts must be > 0"))
	}
	if c.Notifications.BaseBackoff <= 0 {
		errs = append(errs, errors.New("notifications.base_backoff must be > 0"))
	}
	if c.Notifications.MaxBackoff < c.Notifications.BaseBackoff {
		errs = append(errs, errors.New("notifications.max_backoff must be >= base_backoff"))
	}
	// time.NewTicker は 0 以下で panic する
	if c.Overdue.Interval <= 0 {
		errs = append(errs, errors.New("overdue.interval must be > 0"))
	}

	return errors.Join(errs...)
}

// FineMultiplier は延滞料金の倍率（正の有理数）
func (c *Config) FineMultiplier() (decimal.Decimal, error) {
	m, err := decimal.NewFromString(c.Payments.FineMultiplier)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("payments.fine_multiplier: %w", err)
	}
	if !m.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("payments.fine_multiplier must be positive, got %s", m)
	}
	return m, nil
}
