package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Redis
	RedisURL      string
	RedisPoolSize int

	// Queue keys and polling loop
	QueueKey           string
	ScheduledKey       string
	DeadLetterKey      string
	PollInterval       time.Duration
	ScheduledBatchSize int64
	AtomicPromotion    bool
	QueueFIFO          bool

	// Reminders and idempotency
	ReminderLead         time.Duration
	IdempotencyKeyPrefix string
	IdempotencyFailOpen  bool

	// SMS provider (Twilio). SMS is considered unconfigured when any of the
	// account SID, auth token or sender number is empty.
	TwilioBaseURL      string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	DefaultCountryCode string

	// Email provider (Resend)
	ResendBaseURL string
	ResendAPIKey  string
	EmailFrom     string

	ProviderTimeout time.Duration

	// Delivery resilience
	RateLimit          int
	DeliveryBackoff    []time.Duration
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	BreakerMinRequests uint32
	BreakerFailureRate float64

	// Background depth sampler
	StatsInterval time.Duration
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the
// process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPoolSize: getInt("REDIS_POOL_SIZE", 10),

		QueueKey:           getEnv("NOTIFICATION_QUEUE_KEY", "notifications:queue"),
		ScheduledKey:       getEnv("NOTIFICATION_SCHEDULED_QUEUE_KEY", "notifications:scheduled"),
		DeadLetterKey:      getEnv("NOTIFICATION_DEAD_LETTER_KEY", "notifications:dead-letter"),
		PollInterval:       time.Duration(getInt("NOTIFICATION_WORKER_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		ScheduledBatchSize: int64(getInt("NOTIFICATION_SCHEDULED_BATCH_SIZE", 50)),
		AtomicPromotion:    getBool("NOTIFICATION_ATOMIC_PROMOTION", false),
		QueueFIFO:          getBool("NOTIFICATION_QUEUE_FIFO", false),

		ReminderLead:         time.Duration(getInt("APPOINTMENT_REMINDER_LEAD_MINUTES", 60)) * time.Minute,
		IdempotencyKeyPrefix: getEnv("IDEMPOTENCY_KEY_PREFIX", "notification:idempotency"),
		IdempotencyFailOpen:  getBool("IDEMPOTENCY_FAIL_OPEN", true),

		TwilioBaseURL:      getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:   os.Getenv("TWILIO_FROM_NUMBER"),
		DefaultCountryCode: getEnv("TWILIO_DEFAULT_COUNTRY_CODE", "+1"),

		ResendBaseURL: getEnv("RESEND_BASE_URL", "https://api.resend.com"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		EmailFrom:     getEnv("EMAIL_FROM", "Zoomies <support@zoomies.dev>"),

		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Second),

		RateLimit: getInt("RATE_LIMIT_PER_CHANNEL", 10),
		DeliveryBackoff: []time.Duration{
			getDuration("DELIVERY_BACKOFF_1", 250*time.Millisecond),
			getDuration("DELIVERY_BACKOFF_2", 1*time.Second),
			getDuration("DELIVERY_BACKOFF_3", 3*time.Second),
		},
		BreakerMaxRequests: uint32(getInt("BREAKER_MAX_REQUESTS", 1)),
		BreakerInterval:    getDuration("BREAKER_INTERVAL", time.Minute),
		BreakerTimeout:     getDuration("BREAKER_TIMEOUT", 30*time.Second),
		BreakerMinRequests: uint32(getInt("BREAKER_MIN_REQUESTS", 5)),
		BreakerFailureRate: getFloat("BREAKER_FAILURE_RATE", 0.6),

		StatsInterval: getDuration("STATS_INTERVAL", 15*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SMSConfigured reports whether every Twilio credential is present.
func (c *Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func (c *Config) validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("NOTIFICATION_WORKER_POLL_INTERVAL_MS must be positive")
	case c.ScheduledBatchSize <= 0:
		return fmt.Errorf("NOTIFICATION_SCHEDULED_BATCH_SIZE must be positive")
	case c.ReminderLead < 0:
		return fmt.Errorf("APPOINTMENT_REMINDER_LEAD_MINUTES must not be negative")
	case c.RateLimit <= 0:
		return fmt.Errorf("RATE_LIMIT_PER_CHANNEL must be positive")
	case c.QueueKey == c.ScheduledKey:
		return fmt.Errorf("queue key and scheduled key must differ")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
