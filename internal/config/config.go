package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything the server needs, loaded from config.env
// (or the matching environment variables).
type Config struct {
	DSN       string `mapstructure:"DSN"`
	Port      string `mapstructure:"PORT"`
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Identity provider webhook (user create/update/delete sync).
	IdentityWebhookSecret string `mapstructure:"IDENTITY_WEBHOOK_SECRET"`

	// Stripe.
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	// Text-generation provider (OpenAI-compatible).
	GenerationAPIKey  string `mapstructure:"GENERATION_API_KEY"`
	GenerationBaseURL string `mapstructure:"GENERATION_BASE_URL"`
	GenerationModel   string `mapstructure:"GENERATION_MODEL"`
	// Seconds allowed for one provider round trip.
	GenerationTimeout int `mapstructure:"GENERATION_TIMEOUT"`
	// Generation requests allowed per user per minute.
	GenerationRatePerMinute int `mapstructure:"GENERATION_RATE_PER_MINUTE"`

	// Supabase storage for NPC portraits.
	StorageURL    string `mapstructure:"STORAGE_URL"`
	StorageKey    string `mapstructure:"STORAGE_KEY"`
	StorageBucket string `mapstructure:"STORAGE_BUCKET"`

	// Path of the rotating ledger audit log.
	AuditLogPath string `mapstructure:"AUDIT_LOG_PATH"`
}

// Load reads config.env from the working directory, with environment
// variables taking precedence.
func Load() (Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("GENERATION_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("GENERATION_MODEL", "gpt-4o-mini")
	viper.SetDefault("GENERATION_TIMEOUT", 60)
	viper.SetDefault("GENERATION_RATE_PER_MINUTE", 6)
	viper.SetDefault("STORAGE_BUCKET", "npc-portraits")
	viper.SetDefault("AUDIT_LOG_PATH", "ledger-audit.log")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	required := map[string]string{
		"DSN":                     c.DSN,
		"JWT_SECRET":              c.JWTSecret,
		"IDENTITY_WEBHOOK_SECRET": c.IdentityWebhookSecret,
		"STRIPE_SECRET_KEY":       c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET":   c.StripeWebhookSecret,
		"GENERATION_API_KEY":      c.GenerationAPIKey,
		"STORAGE_URL":             c.StorageURL,
		"STORAGE_KEY":             c.StorageKey,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("config: %s is required", name)
		}
	}
	return nil
}
