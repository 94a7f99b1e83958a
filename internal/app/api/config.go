package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.temporal.io/sdk/client"

	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
)

// Config carries environment-driven settings for the API process.
type Config struct {
	Port              string
	PostgresDSN       string
	RedisAddr         string
	TemporalAddress   string
	TemporalNamespace string
	TemporalDisabled  bool

	TaxRateBps     int64
	ReservationTTL time.Duration
	SweepInterval  time.Duration

	Stripe   StripeConfig
	Razorpay RazorpayConfig
	PayPal   PayPalConfig
}

// StripeConfig holds one Stripe account's credentials and limits.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	Limits        paymentsdomain.Limits
}

// RazorpayConfig holds one Razorpay account's credentials and limits.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Limits        paymentsdomain.Limits
}

// PayPalConfig holds one PayPal app's credentials and limits.
type PayPalConfig struct {
	ClientID  string
	Secret    string
	WebhookID string
	CertPath  string
	BaseURL   string
	Limits    paymentsdomain.Limits
}

// LoadConfig reads environment variables, applies defaults, and validates
// basic constraints.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:              envDefault("PORT", "8080"),
		PostgresDSN:       strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		TemporalAddress:   envDefault("TEMPORAL_ADDRESS", client.DefaultHostPort),
		TemporalNamespace: envDefault("TEMPORAL_NAMESPACE", client.DefaultNamespace),
		TemporalDisabled:  isTruthy(os.Getenv("TEMPORAL_DISABLED")),
		TaxRateBps:        0,
		ReservationTTL:    24 * time.Hour,
		SweepInterval:     15 * time.Minute,
		Stripe: StripeConfig{
			APIKey:        strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
			WebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
			BaseURL:       strings.TrimSpace(os.Getenv("STRIPE_BASE_URL")),
			Limits:        limitsFromEnv("STRIPE", "USD,EUR,GBP"),
		},
		Razorpay: RazorpayConfig{
			KeyID:         strings.TrimSpace(os.Getenv("RAZORPAY_KEY_ID")),
			KeySecret:     strings.TrimSpace(os.Getenv("RAZORPAY_KEY_SECRET")),
			WebhookSecret: strings.TrimSpace(os.Getenv("RAZORPAY_WEBHOOK_SECRET")),
			BaseURL:       strings.TrimSpace(os.Getenv("RAZORPAY_BASE_URL")),
			Limits:        limitsFromEnv("RAZORPAY", "INR"),
		},
		PayPal: PayPalConfig{
			ClientID:  strings.TrimSpace(os.Getenv("PAYPAL_CLIENT_ID")),
			Secret:    strings.TrimSpace(os.Getenv("PAYPAL_SECRET")),
			WebhookID: strings.TrimSpace(os.Getenv("PAYPAL_WEBHOOK_ID")),
			CertPath:  strings.TrimSpace(os.Getenv("PAYPAL_CERT_PATH")),
			BaseURL:   strings.TrimSpace(os.Getenv("PAYPAL_BASE_URL")),
			Limits:    limitsFromEnv("PAYPAL", "USD,EUR"),
		},
	}
	if raw := strings.TrimSpace(os.Getenv("TAX_RATE_BPS")); raw != "" {
		bps, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || bps < 0 {
			return Config{}, fmt.Errorf("TAX_RATE_BPS must be a non-negative integer")
		}
		cfg.TaxRateBps = bps
	}
	if raw := strings.TrimSpace(os.Getenv("RESERVATION_TTL")); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("RESERVATION_TTL must be a positive duration")
		}
		cfg.ReservationTTL = ttl
	}
	if raw := strings.TrimSpace(os.Getenv("RESERVATION_SWEEP_INTERVAL")); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil || interval <= 0 {
			return Config{}, fmt.Errorf("RESERVATION_SWEEP_INTERVAL must be a positive duration")
		}
		cfg.SweepInterval = interval
	}
	return cfg, nil
}

// limitsFromEnv reads <PREFIX>_MIN_AMOUNT, <PREFIX>_MAX_AMOUNT, and
// <PREFIX>_CURRENCIES with sane defaults per provider.
func limitsFromEnv(prefix, defaultCurrencies string) paymentsdomain.Limits {
	limits := paymentsdomain.Limits{
		MinAmount: envInt64(prefix+"_MIN_AMOUNT", 50),
		MaxAmount: envInt64(prefix+"_MAX_AMOUNT", 100_000_00),
	}
	for _, currency := range strings.Split(envDefault(prefix+"_CURRENCIES", defaultCurrencies), ",") {
		if currency = strings.TrimSpace(currency); currency != "" {
			limits.Currencies = append(limits.Currencies, currency)
		}
	}
	return limits
}

func envInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func isTruthy(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes"
}
