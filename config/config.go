/*
Package config loads service configuration from the environment.

LOADING ORDER:
  1. .env in the working directory, if present (godotenv; never overrides
     variables already set in the process environment)
  2. process environment, read through viper with a default for every key

Every key is registered with SetDefault so that viper.Unmarshal sees
environment-only values.

SEE ALSO:
  - credentials.go: picks and validates the ledger store backend
*/
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Port     int    `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Call-signalling provider
	TwilioAccountSID  string        `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string        `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioAPIKey      string        `mapstructure:"TWILIO_API_KEY"`
	TwilioAPISecret   string        `mapstructure:"TWILIO_API_SECRET"`
	TwilioAppSID      string        `mapstructure:"TWILIO_APP_SID"`
	TwilioPhoneNumber string        `mapstructure:"TWILIO_PHONE_NUMBER"`
	TokenTTL          time.Duration `mapstructure:"TOKEN_TTL"`

	SMSCost              string `mapstructure:"SMS_COST"`
	VoiceLanguage        string `mapstructure:"VOICE_LANGUAGE"`
	VoiceFallbackMessage string `mapstructure:"VOICE_FALLBACK_MESSAGE"`

	StaticDir          string   `mapstructure:"STATIC_DIR"`
	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Ledger store
	StoreDriver            string `mapstructure:"STORE_DRIVER"`
	SQLitePath             string `mapstructure:"SQLITE_PATH"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	MongoURI               string `mapstructure:"MONGO_URI"`
	MongoDatabase          string `mapstructure:"MONGO_DATABASE"`
	FirebaseProjectID      string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebasePrivateKey     string `mapstructure:"FIREBASE_PRIVATE_KEY"`
	FirebasePrivateKeyID   string `mapstructure:"FIREBASE_PRIVATE_KEY_ID"`
	FirebaseClientEmail    string `mapstructure:"FIREBASE_CLIENT_EMAIL"`
	FirebaseServiceAccount string `mapstructure:"FIREBASE_SERVICE_ACCOUNT"`

	// Ledger events; publishing is disabled when no brokers are set.
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	// Zero disables the background reconciler.
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
}

var defaults = map[string]any{
	"PORT":                     5000,
	"LOG_LEVEL":                "info",
	"TWILIO_ACCOUNT_SID":       "",
	"TWILIO_AUTH_TOKEN":        "",
	"TWILIO_API_KEY":           "",
	"TWILIO_API_SECRET":        "",
	"TWILIO_APP_SID":           "",
	"TWILIO_PHONE_NUMBER":      "",
	"TOKEN_TTL":                "1h",
	"SMS_COST":                 "0.05",
	"VOICE_LANGUAGE":           "ar-SA",
	"VOICE_FALLBACK_MESSAGE":   "مرحباً، لم يتم استلام رقم للاتصال به.",
	"STATIC_DIR":               "public",
	"CORS_ALLOWED_ORIGINS":     []string{"*"},
	"STORE_DRIVER":             DriverFirestore,
	"SQLITE_PATH":              "voicebridge.db",
	"DATABASE_URL":             "",
	"MONGO_URI":                "",
	"MONGO_DATABASE":           "voicebridge",
	"FIREBASE_PROJECT_ID":      "",
	"FIREBASE_PRIVATE_KEY":     "",
	"FIREBASE_PRIVATE_KEY_ID":  "",
	"FIREBASE_CLIENT_EMAIL":    "",
	"FIREBASE_SERVICE_ACCOUNT": "",
	"KAFKA_BROKERS":            []string{},
	"KAFKA_TOPIC":              "ledger.entries",
	"RECONCILE_INTERVAL":       "1h",
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	cost, err := decimal.NewFromString(c.SMSCost)
	if err != nil {
		return fmt.Errorf("SMS_COST %q: %w", c.SMSCost, err)
	}
	if cost.IsNegative() {
		return fmt.Errorf("SMS_COST must not be negative, got %s", c.SMSCost)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative, got %s", c.ReconcileInterval)
	}
	return nil
}

// SMSTariff returns SMS_COST as a decimal. Call after Validate.
func (c *Config) SMSTariff() decimal.Decimal {
	return decimal.RequireFromString(c.SMSCost)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TwilioConfigured reports whether token minting can work.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAPIKey != "" && c.TwilioAPISecret != ""
}

// SMSConfigured reports whether real SMS sending can work.
func (c *Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
