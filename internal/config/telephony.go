package config

import (
	"os"
	"strconv"
	"time"
)

// TelephonyConfig holds provider credentials and webhook addressing.
// The auth token doubles as the webhook signature secret.
type TelephonyConfig struct {
	AccountSID      string
	AuthToken       string
	APIBaseURL      string
	CallbackBaseURL string
	SendTimeout     time.Duration
}

func LoadTelephonyConfig() *TelephonyConfig {
	return &TelephonyConfig{
		AccountSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
		AuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
		APIBaseURL:      getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"),
		CallbackBaseURL: getEnv("WEBHOOK_BASE_URL", "http://localhost:8080"),
		SendTimeout:     getEnvAsDuration("SMS_SEND_TIMEOUT", 15*time.Second),
	}
}

// PipelineConfig holds the knobs of the missed-call processing pipeline.
type PipelineConfig struct {
	DefaultPriceCents     int64
	DefaultLowBalanceCents int64
	AlertCooldown         time.Duration
	ProcessingTimeout     time.Duration
	QueueSize             int
	Workers               int
}

func LoadPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		DefaultPriceCents:      getEnvAsInt64("EVENT_PRICE_CENTS", 99),
		DefaultLowBalanceCents: getEnvAsInt64("LOW_BALANCE_CENTS", 500),
		AlertCooldown:          getEnvAsDuration("LOW_BALANCE_COOLDOWN", 24*time.Hour),
		ProcessingTimeout:      getEnvAsDuration("PIPELINE_TIMEOUT", 60*time.Second),
		QueueSize:              getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
		Workers:                getEnvAsInt("PIPELINE_WORKERS", 8),
	}
}

// RateLimitConfig holds the fixed-window throttle settings shared by the
// authentication-adjacent endpoints.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func LoadRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Limit:  getEnvAsInt("RATE_LIMIT_MAX", 5),
		Window: getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
