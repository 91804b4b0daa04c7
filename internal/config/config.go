package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds notification worker configuration loaded from the environment.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	RabbitURL       string
	RetryQueue      string
	DeadLetterQueue string
	PrefetchCount   int
	WorkerCount     int

	DatabaseURL string
	RedisURL    string

	FCMServerKey    string
	FCMEndpoint     string
	ProviderTimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	SMSGatewayURL   string
	SMSGatewayToken string

	PresenceRole string
	BatchSize    int
	BatchPause   time.Duration

	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	DigestTTL        time.Duration

	CriticalCategories    []string
	OpportunityCategories []string

	PublishMaxAttempts    int
	PublishInitialBackoff time.Duration
	PublishMaxBackoff     time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "notification_worker"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8083"),

		RabbitURL:       getEnv("RABBITMQ_URL", ""),
		RetryQueue:      getEnv("RETRY_QUEUE", "notifications.retry"),
		DeadLetterQueue: getEnv("RETRY_DLQ", "notifications.retry.failed"),
		PrefetchCount:   getEnvAsInt("RETRY_PREFETCH", 50),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 5),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		FCMServerKey:    getEnv("FCM_SERVER_KEY", ""),
		FCMEndpoint:     getEnv("FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),
		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),

		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SMSGatewayURL:   getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayToken: getEnv("SMS_GATEWAY_TOKEN", ""),

		PresenceRole: getEnv("PRESENCE_ROLE", "user"),
		BatchSize:    getEnvAsInt("FANOUT_BATCH_SIZE", 10),
		BatchPause:   getEnvAsDuration("FANOUT_BATCH_PAUSE", 200*time.Millisecond),

		CleanupRetention: getEnvAsDuration("CLEANUP_RETENTION", 7*24*time.Hour),
		CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", 24*time.Hour),
		DigestTTL:        getEnvAsDuration("DIGEST_TTL", 7*24*time.Hour),

		CriticalCategories: getEnvAsList("CRITICAL_CATEGORIES",
			"quotation_accepted,quotation_rejected,appointment_cancelled,account_security"),
		OpportunityCategories: getEnvAsList("OPPORTUNITY_CATEGORIES",
			"new_request,new_job_offer,job_match"),

		PublishMaxAttempts:    getEnvAsInt("PUBLISH_MAX_ATTEMPTS", 3),
		PublishInitialBackoff: getEnvAsDuration("PUBLISH_INITIAL_BACKOFF", 250*time.Millisecond),
		PublishMaxBackoff:     getEnvAsDuration("PUBLISH_MAX_BACKOFF", 2*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.FCMServerKey == "" {
		missing = append(missing, "FCM_SERVER_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

func getEnvAsList(key, def string) []string {
	raw := getEnv(key, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
