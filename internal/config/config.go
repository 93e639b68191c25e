package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // idle checkout session lifetime
}

type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ProcessorConfig carries the processor keys. The publishable key is relayed
// to browsers for the hosted card fields; the secret key stays server-side.
// The image upload key is an optional input for the surrounding catalog UI
// and plays no part in the state machine.
type ProcessorConfig struct {
	BaseURL        string `yaml:"base_url"`
	PublishableKey string `yaml:"publishable_key"`
	SecretKey      string `yaml:"secret_key"`
	ImageUploadKey string `yaml:"image_upload_key"`
}

// CheckoutConfig is the settlement retry policy. The source of the state
// machine left retries to ad hoc user re-clicks; here the policy is explicit:
// a few automatic rounds with doubling backoff, then manual retries up to a
// hard cap.
type CheckoutConfig struct {
	SettleAutoAttempts int           `yaml:"settle_auto_attempts"`
	SettleBackoff      time.Duration `yaml:"settle_backoff"`
	SettleMaxRounds    int           `yaml:"settle_max_rounds"`
	RegistrationFeeBps int64         `yaml:"registration_fee_bps"`
}

type SettlementConfig struct {
	Port          int    `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	SessionSecret string `yaml:"session_secret"`
	Currency      string `yaml:"currency"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Backend    BackendConfig    `yaml:"backend"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Checkout   CheckoutConfig   `yaml:"checkout"`
	Settlement SettlementConfig `yaml:"settlement"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, then lets environment variables override
// the secrets so they never have to live in the file. A .env alongside the
// binary is honored when present.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	if v := os.Getenv("PROCESSOR_SECRET_KEY"); v != "" {
		cfg.Processor.SecretKey = v
	}
	if v := os.Getenv("PROCESSOR_PUBLISHABLE_KEY"); v != "" {
		cfg.Processor.PublishableKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Settlement.DatabaseURL = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Settlement.SessionSecret = v
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Settlement.Port <= 0 {
		cfg.Settlement.Port = 8090
	}
	if cfg.Settlement.Currency == "" {
		cfg.Settlement.Currency = "usd"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Checkout.SettleAutoAttempts <= 0 {
		cfg.Checkout.SettleAutoAttempts = 3
	}
	if cfg.Checkout.SettleBackoff <= 0 {
		cfg.Checkout.SettleBackoff = 500 * time.Millisecond
	}
	if cfg.Checkout.SettleMaxRounds <= 0 {
		cfg.Checkout.SettleMaxRounds = 8
	}
}
