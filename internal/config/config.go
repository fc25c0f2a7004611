package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime settings for the engagement service.
type Config struct {
	Addr        string
	DatabaseURL string
	AuthSecret  string
	Currency    string

	PaymentBaseURL string
	PaymentAPIKey  string
	PaymentTimeout time.Duration
	PaymentRetries int

	KafkaBrokers []string
	KafkaTopic   string

	ArchiveBucket string
	ArchivePrefix string

	StreamBatchSize      int
	StreamPollInterval   time.Duration
	StreamMaxConcurrency int

	NotifyTimeout time.Duration
}

const (
	defaultAddr           = ":8064"
	defaultCurrency       = "usd"
	defaultPaymentTimeout = 10 * time.Second
	defaultPaymentRetries = 2
	defaultTopic          = "engage.engagement-events"
	defaultBatchSize      = 10
	defaultPollInterval   = 3 * time.Second
	defaultConcurrency    = 5
	defaultNotifyTimeout  = 5 * time.Second
)

// Load reads environment variables and returns a Config.
func Load() (Config, error) {
	cfg := Config{
		Addr:        getEnv("ENGAGE_ADDR", defaultAddr),
		DatabaseURL: firstNonEmpty(os.Getenv("ENGAGE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		AuthSecret:  os.Getenv("ENGAGE_AUTH_SECRET"),
		Currency:    getEnv("ENGAGE_CURRENCY", defaultCurrency),

		PaymentBaseURL: os.Getenv("ENGAGE_PAYMENT_URL"),
		PaymentAPIKey:  os.Getenv("ENGAGE_PAYMENT_API_KEY"),
		PaymentTimeout: getDuration("ENGAGE_PAYMENT_TIMEOUT", defaultPaymentTimeout),
		PaymentRetries: getInt("ENGAGE_PAYMENT_RETRIES", defaultPaymentRetries),

		KafkaBrokers: splitList(os.Getenv("ENGAGE_KAFKA_BROKERS")),
		KafkaTopic:   getEnv("ENGAGE_KAFKA_TOPIC", defaultTopic),

		ArchiveBucket: os.Getenv("ENGAGE_ARCHIVE_BUCKET"),
		ArchivePrefix: getEnv("ENGAGE_ARCHIVE_PREFIX", "events"),

		StreamBatchSize:      getInt("ENGAGE_STREAM_BATCH_SIZE", defaultBatchSize),
		StreamPollInterval:   getDuration("ENGAGE_STREAM_POLL_INTERVAL", defaultPollInterval),
		StreamMaxConcurrency: getInt("ENGAGE_STREAM_MAX_CONCURRENCY", defaultConcurrency),

		NotifyTimeout: getDuration("ENGAGE_NOTIFY_TIMEOUT", defaultNotifyTimeout),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or ENGAGE_DATABASE_URL is required")
	}
	if cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("ENGAGE_AUTH_SECRET is required")
	}
	if cfg.PaymentBaseURL == "" {
		return Config{}, fmt.Errorf("ENGAGE_PAYMENT_URL is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
