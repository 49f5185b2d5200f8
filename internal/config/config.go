package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Validation  ValidationConfig
	Analysis    AnalysisConfig
}

// HTTPConfig holds the ad-hoc analysis API settings
type HTTPConfig struct {
	Port           int
	MaxBodyBytes   int64
	ReadTimeoutSec int
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL             string
	JobExchange     string
	JobQueue        string
	JobRoutingKey   string
	EventExchange   string
	EventRoutingKey string
	DLQQueue        string
	PrefetchCount   int
}

// ValidationConfig holds reading validation settings
type ValidationConfig struct {
	EnforceRanges bool
}

// AnalysisConfig holds defaults applied when a request leaves a tunable out
type AnalysisConfig struct {
	ZScoreThreshold    float64
	IQRMultiplier      float64
	RollingWindowHours float64
	RollingThreshold   float64
	Confidence         float64
	FleetWorkers       int
	Parameters         []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "waterquality-analytics-worker"),
		HTTP: HTTPConfig{
			Port:           getEnvAsInt("HTTP_PORT", 8081),
			MaxBodyBytes:   int64(getEnvAsInt("HTTP_MAX_BODY_BYTES", 8<<20)),
			ReadTimeoutSec: getEnvAsInt("HTTP_READ_TIMEOUT_SECONDS", 30),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			JobExchange:     getEnv("RABBITMQ_JOB_EXCHANGE", "sensor-analytics.jobs.exchange"),
			JobQueue:        getEnv("RABBITMQ_JOB_QUEUE", "sensor-analytics.jobs.queue"),
			JobRoutingKey:   getEnv("RABBITMQ_JOB_ROUTING_KEY", "analysis.requested"),
			EventExchange:   getEnv("RABBITMQ_EVENT_EXCHANGE", "sensor-analytics.events.exchange"),
			EventRoutingKey: getEnv("RABBITMQ_EVENT_ROUTING_KEY", "analysis.completed"),
			DLQQueue:        getEnv("RABBITMQ_DLQ_QUEUE", "sensor-analytics.jobs.dlq"),
			PrefetchCount:   getEnvAsInt("RABBITMQ_PREFETCH", 4),
		},
		Validation: ValidationConfig{
			EnforceRanges: getEnvAsBool("VALIDATION_ENFORCE_RANGES", true),
		},
		Analysis: AnalysisConfig{
			ZScoreThreshold:    getEnvAsFloat("ANALYSIS_ZSCORE_THRESHOLD", 3.0),
			IQRMultiplier:      getEnvAsFloat("ANALYSIS_IQR_MULTIPLIER", 1.5),
			RollingWindowHours: getEnvAsFloat("ANALYSIS_ROLLING_WINDOW_HOURS", 24),
			RollingThreshold:   getEnvAsFloat("ANALYSIS_ROLLING_THRESHOLD", 3.0),
			Confidence:         getEnvAsFloat("ANALYSIS_MAHALANOBIS_CONFIDENCE", 0.95),
			FleetWorkers:       getEnvAsInt("ANALYSIS_FLEET_WORKERS", 4),
			Parameters:         getEnvAsList("ANALYSIS_PARAMETERS", []string{"ph", "temp", "conductivity", "dissolved_oxygen", "turbidity"}),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if c := cfg.Analysis.Confidence; c <= 0 || c >= 1 {
		return nil, fmt.Errorf("ANALYSIS_MAHALANOBIS_CONFIDENCE must be in (0, 1), got %v", c)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
