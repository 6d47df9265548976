package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Remote data gateway selection: "supabase", "postgres", or "memory".
	GatewayBackend     string
	SupabaseURL        string
	SupabaseServiceKey string
	DatabaseURL        string

	// Offline mutation queue
	QueueStorageKey    string
	QueueMaxLength     int
	QueueDrainInterval time.Duration
	QueueRetryBase     time.Duration
	QueueRetryCap      time.Duration

	// Slot rules. The legacy web client treated cancelled rows as still
	// blocking their slot; flipping this frees cancelled slots for reuse.
	ReusableCancelledSlots bool

	// Reminders
	ReminderOffsets      []time.Duration
	ReminderPollInterval time.Duration

	// Redis (durable queue storage)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Notifications
	ClinicName        string
	StaffEmails       []string
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SMSFromNumber     string

	// AWS (SES email)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		GatewayBackend:     strings.ToLower(strings.TrimSpace(getEnv("GATEWAY_BACKEND", "supabase"))),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),

		QueueStorageKey:    getEnv("QUEUE_STORAGE_KEY", "clinic:offline_queue"),
		QueueMaxLength:     getEnvAsInt("QUEUE_MAX_LENGTH", 200),
		QueueDrainInterval: getEnvAsDuration("QUEUE_DRAIN_INTERVAL", 30*time.Second),
		QueueRetryBase:     getEnvAsDuration("QUEUE_RETRY_BASE", 5*time.Second),
		QueueRetryCap:      getEnvAsDuration("QUEUE_RETRY_CAP", 10*time.Minute),

		ReusableCancelledSlots: getEnvAsBool("REUSABLE_CANCELLED_SLOTS", false),

		ReminderOffsets:      getEnvAsDurations("REMINDER_OFFSETS", []time.Duration{24 * time.Hour, 2 * time.Hour, 30 * time.Minute}),
		ReminderPollInterval: getEnvAsDuration("REMINDER_POLL_INTERVAL", time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ClinicName:        getEnv("CLINIC_NAME", "Pearl Dental"),
		StaffEmails:       getEnvAsList("STAFF_EMAILS", nil),
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Pearl Dental"),
		SMSFromNumber:     getEnv("SMS_FROM_NUMBER", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDurations parses a comma-separated list of durations, e.g. "24h,2h,30m".
func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, part := range strings.Split(valueStr, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
