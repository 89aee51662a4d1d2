package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	HTTPAddr    string
	APIKey      string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Collector   CollectorConfig
	Thresholds  ThresholdConfig
	Model       ModelConfig
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory store, which is only suitable for local development.
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds the optional event-mirror settings. An empty URL
// disables mirroring.
type RabbitMQConfig struct {
	URL             string
	EventExchange   string
	EventRoutingKey string
}

// CollectorConfig holds the background device poller settings. With no
// device URLs configured the collector stays disabled.
type CollectorConfig struct {
	Devices  []string
	PeriodMS int
}

// ThresholdConfig holds the clinical alert ranges.
type ThresholdConfig struct {
	SkinTempMin float64
	SkinTempMax float64
	HumidityMin float64
	HumidityMax float64
}

// ModelConfig identifies the served model for the status endpoint.
type ModelConfig struct {
	Name    string
	Version string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "incubadora-telemetry"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		APIKey:      getEnv("API_KEY", ""),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			EventExchange:   getEnv("RABBITMQ_EVENT_EXCHANGE", "incubadora.events.exchange"),
			EventRoutingKey: getEnv("RABBITMQ_EVENT_ROUTING_KEY", "incubator.telemetry.event"),
		},
		Collector: CollectorConfig{
			Devices:  splitCSV(getEnv("ESP32_DEVICES", "")),
			PeriodMS: getEnvAsInt("COLLECT_PERIOD_MS", 5000),
		},
		Thresholds: ThresholdConfig{
			SkinTempMin: getEnvAsFloat("ALERT_SKIN_TEMP_MIN", 36.5),
			SkinTempMax: getEnvAsFloat("ALERT_SKIN_TEMP_MAX", 37.5),
			HumidityMin: getEnvAsFloat("ALERT_HUMIDITY_MIN", 40.0),
			HumidityMax: getEnvAsFloat("ALERT_HUMIDITY_MAX", 65.0),
		},
		Model: ModelConfig{
			Name:    getEnv("MODEL_NAME", "demo"),
			Version: getEnv("MODEL_VERSION", "v0.0.1"),
		},
	}

	return cfg, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
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
