package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Band is an inclusive [Min, Max] amount range.
type Band struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

type Config struct {
	// Server configuration
	Port        string
	Environment string
	LogLevel    string

	// Store configuration
	StoreDriver string
	StoreDSN    string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey           string
	PubNubSubscribeKey         string
	PubNubSecretKey            string
	PubNubUserID               string
	PaymentNotificationChannel string

	// Timeout configuration
	ReservationTTL time.Duration
	CheckoutTTL    time.Duration
	PaymentTimeout time.Duration
	CartIdleTTL    time.Duration

	// Reaper configuration
	ReaperInterval  time.Duration
	ReaperBatchSize int
	OrderArchiveAge time.Duration

	// Pricing
	TaxRates        map[string]decimal.Decimal
	TaxRegion       string
	GuestTaxRegion  string
	PaymentFeeRates map[string]decimal.Decimal

	// Fraud gate
	FraudMethodBands     map[string]Band
	FraudHighValue       decimal.Decimal
	FraudFrequencyLimit  int
	FraudFrequencyWindow time.Duration

	// Webhook
	WebhookRateLimit int
	WebhookSecret    string

	// Workers
	AsynqConcurrency int
}

func LoadConfig() *Config {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Store
		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		StoreDSN:    getEnv("STORE_DSN", "pb_data/checkout.db"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:           getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey:         getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:            getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:               getEnv("PUBNUB_USER_ID", "checkout-server"),
		PaymentNotificationChannel: getEnv("PAYMENT_NOTIFICATION_CHANNEL", "bank-payment-notifications"),

		// Timeouts
		ReservationTTL: getEnvAsDuration("RESERVATION_TTL", "15m"),
		CheckoutTTL:    getEnvAsDuration("CHECKOUT_TTL", "30m"),
		PaymentTimeout: getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),
		CartIdleTTL:    getEnvAsDuration("CART_IDLE_TTL", "24h"),

		// Reaper
		ReaperInterval:  getEnvAsDuration("REAPER_INTERVAL", "1m"),
		ReaperBatchSize: getEnvAsInt("REAPER_BATCH_SIZE", 200),
		OrderArchiveAge: getEnvAsDuration("ORDER_ARCHIVE_AGE", "2160h"),

		// Pricing
		TaxRates:        getEnvAsRates("TAX_RATES", "US=0.08,LA=0"),
		TaxRegion:       getEnv("TAX_REGION", "LA"),
		GuestTaxRegion:  getEnv("GUEST_TAX_REGION", "US"),
		PaymentFeeRates: getEnvAsRates("PAYMENT_FEE_RATES", "card=0.029,mobile_money=0.015,bank_transfer=0"),

		// Fraud
		FraudMethodBands:     getEnvAsBands("FRAUD_METHOD_BANDS", "mobile_money=1000:5000000,card=1:10000000"),
		FraudHighValue:       getEnvAsDecimal("FRAUD_HIGH_VALUE", "10000000"),
		FraudFrequencyLimit:  getEnvAsInt("FRAUD_FREQUENCY_LIMIT", 5),
		FraudFrequencyWindow: getEnvAsDuration("FRAUD_FREQUENCY_WINDOW", "1h"),

		// Webhook
		WebhookRateLimit: getEnvAsInt("WEBHOOK_RATE_LIMIT", 120),
		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),

		// Workers
		AsynqConcurrency: getEnvAsInt("ASYNQ_CONCURRENCY", 10),
	}
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment != "development" && c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required outside development"))
	}
	for _, region := range []string{c.TaxRegion, c.GuestTaxRegion} {
		if !c.hasTaxRate(region) {
			errs = append(errs, fmt.Errorf("no tax rate configured for region %q", region))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) hasTaxRate(region string) bool {
	for name := range c.TaxRates {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(region)) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	if d, err := decimal.NewFromString(getEnv(key, defaultValue)); err == nil {
		return d
	}
	return decimal.RequireFromString(defaultValue)
}

// getEnvAsRates parses "KEY=rate,KEY=rate". Malformed pairs are skipped.
func getEnvAsRates(key string, defaultValue string) map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal)
	for name, raw := range splitPairs(getEnv(key, defaultValue), "=") {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			slog.Warn("skipping malformed rate", "key", key, "entry", name)
			continue
		}
		rates[name] = rate
	}
	return rates
}

// getEnvAsBands parses "method=min:max,method=min:max".
func getEnvAsBands(key string, defaultValue string) map[string]Band {
	bands := make(map[string]Band)
	for name, raw := range splitPairs(getEnv(key, defaultValue), "=") {
		lo, hi, ok := strings.Cut(raw, ":")
		if !ok {
			slog.Warn("skipping malformed band", "key", key, "entry", name)
			continue
		}
		low, err1 := decimal.NewFromString(strings.TrimSpace(lo))
		high, err2 := decimal.NewFromString(strings.TrimSpace(hi))
		if err1 != nil || err2 != nil || low.GreaterThan(high) {
			slog.Warn("skipping malformed band", "key", key, "entry", name)
			continue
		}
		bands[name] = Band{Min: low, Max: high}
	}
	return bands
}

func splitPairs(s, sep string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), sep)
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
