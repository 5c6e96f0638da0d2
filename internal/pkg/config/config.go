package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/LocalListings/internal/pkg/env"
)

type Config struct {
	App      AppConfig      `validate:"required"`
	Database DatabaseConfig `validate:"required"`
	Cache    CacheConfig
	Stripe   StripeConfig `validate:"required"`
	Supabase SupabaseConfig
	Billing  BillingConfig `validate:"required"`
}

type AppConfig struct {
	Host        string `validate:"required"`
	Port        string `validate:"required,numeric"`
	LogLevel    string `validate:"omitempty,oneof=debug info warn error"`
	AdminAPIKey string `validate:"omitempty,min=16"`
	DocsPath    string
}

type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"required,min=1,max=65535"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
}

// CacheConfig is optional; an empty Host disables Redis-backed features.
type CacheConfig struct {
	Host     string
	Port     string `validate:"omitempty,numeric"`
	Password string
}

type StripeConfig struct {
	SecretKey      string   `validate:"required"`
	WebhookSecret  string   `validate:"required"`
	BusinessPrices []string `validate:"dive,required"`
	PremiumPrices  []string `validate:"dive,required"`
}

// SupabaseConfig is optional; both values must be set to mirror tiers into auth metadata.
type SupabaseConfig struct {
	URL        string `validate:"omitempty,url"`
	ServiceKey string `validate:"required_with=URL"`
}

type BillingConfig struct {
	DedupTTL           time.Duration `validate:"required,min=1m"`
	SignatureTolerance time.Duration `validate:"required,min=1s"`
}

// Load reads configuration from the loaded .env file and the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Host:        env.GetEnv("APP_HOST", "localhost"),
			Port:        env.GetEnv("APP_PORT", "4000"),
			LogLevel:    env.GetEnv("LOG_LEVEL", "info"),
			AdminAPIKey: env.GetEnv("ADMIN_API_KEY", ""),
			DocsPath:    env.GetEnv("OPENAPI_FILE", "./public/docs/v1/openapi.yml"),
		},
		Database: loadDatabase(),
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", ""),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Stripe: StripeConfig{
			SecretKey:      env.GetEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:  env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			BusinessPrices: env.GetEnvList("STRIPE_PRICES_BUSINESS"),
			PremiumPrices:  env.GetEnvList("STRIPE_PRICES_PREMIUM"),
		},
		Supabase: SupabaseConfig{
			URL:        env.GetEnv("SUPABASE_URL", ""),
			ServiceKey: env.GetEnv("SUPABASE_SERVICE_KEY", ""),
		},
		Billing: BillingConfig{
			DedupTTL:           env.GetEnvDuration("BILLING_DEDUP_TTL", 72*time.Hour),
			SignatureTolerance: env.GetEnvDuration("STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools such as the
// migrator that do not need provider credentials.
func LoadDatabase() (DatabaseConfig, error) {
	cfg := loadDatabase()
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid database configuration: %w", err)
	}
	return cfg, nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnvInt("DB_PORT", 3306),
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", ""),
	}
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds to.
func (c AppConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// DSN returns the MySQL data source name used by GORM.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// MigrateURL returns the golang-migrate database URL.
func (c DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Enabled reports whether a Redis endpoint is configured.
func (c CacheConfig) Enabled() bool {
	return c.Host != ""
}

// Addr is the Redis host:port.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Enabled reports whether the Supabase admin API should receive tier updates.
func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.ServiceKey != ""
}
