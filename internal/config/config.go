package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// LLM completion endpoint (Gemini-compatible generateContent API)
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	LLMTimeout time.Duration

	// MCP tool server
	MCPBaseURL      string
	CatalogTimeout  time.Duration
	ExecuteTimeout  time.Duration
	CatalogMaxAge   time.Duration
	CatalogRefresh  string // cron spec for background refresh, empty disables
	HistoryInPrompt int    // messages re-serialized into each prompt

	// MQTT broker
	MQTTBrokerURL  string
	MQTTTopicBase  string
	ControlTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// JWT
	JWTPublicKeyPath string

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("AGENT_SERVICE_PORT", "8097"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		LLMModel:   getEnv("LLM_MODEL", "gemini-2.0-flash"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMTimeout: getEnvDuration("LLM_TIMEOUT", 60*time.Second),

		MCPBaseURL:      getEnv("MCP_BASE_URL", "http://mcp-server:8200"),
		CatalogTimeout:  getEnvDuration("MCP_CATALOG_TIMEOUT", 10*time.Second),
		ExecuteTimeout:  getEnvDuration("MCP_EXECUTE_TIMEOUT", 30*time.Second),
		CatalogMaxAge:   getEnvDuration("MCP_CATALOG_MAX_AGE", 300*time.Second),
		CatalogRefresh:  getEnv("MCP_CATALOG_REFRESH_CRON", "@every 5m"),
		HistoryInPrompt: getEnvInt("AGENT_HISTORY_IN_PROMPT", 6),

		MQTTBrokerURL:  getEnv("MQTT_BROKER_URL", "mqtt://mosquitto:1883"),
		MQTTTopicBase:  getEnv("MQTT_TOPIC_BASE", "factory"),
		ControlTimeout: getEnvDuration("CONTROL_ACK_TIMEOUT", 5*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "postgres"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "user"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresDB:       getEnv("POSTGRES_DB", "factory"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "/app/keys/jwt_public.pem"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
