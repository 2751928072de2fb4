// Package config provides configuration for the chat server and client.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds the demo backend configuration.
type ServerConfig struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Agent simulation
	StepDelay    time.Duration
	MockDataPath string

	// Trace feed websocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel  string
	LogPretty bool
}

// ClientConfig holds the chat client configuration.
type ClientConfig struct {
	ServerURL string

	// GraceDelay is how long the architecture highlight lingers after a response.
	GraceDelay time.Duration
	// StreamTimeout bounds one turn; zero waits indefinitely.
	StreamTimeout time.Duration

	LogLevel string
}

// LoadServer loads the server configuration from environment variables.
func LoadServer() *ServerConfig {
	return &ServerConfig{
		HTTPPort:       getEnvInt("HTTP_PORT", 8000),
		DatabaseURL:    getEnv("DATABASE_URL", "file:carechat.db?cache=shared&mode=rwc"),
		StepDelay:      time.Duration(getEnvInt("STEP_DELAY_MS", 250)) * time.Millisecond,
		MockDataPath:   getEnv("MOCK_DATA_PATH", ""),
		PingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:    time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvBool("LOG_PRETTY", true),
	}
}

// LoadClient loads the client configuration from environment variables.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		ServerURL:     strings.TrimSuffix(getEnv("CARECHAT_SERVER_URL", "http://localhost:8000"), "/"),
		GraceDelay:    time.Duration(getEnvInt("CARECHAT_GRACE_MS", 1500)) * time.Millisecond,
		StreamTimeout: time.Duration(getEnvInt("CARECHAT_STREAM_TIMEOUT_MS", 0)) * time.Millisecond,
		LogLevel:      getEnv("LOG_LEVEL", "warn"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
