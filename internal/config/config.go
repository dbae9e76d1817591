// Package config provides environment configuration for the gateway server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Database settings
	DBDriver       string
	DatabaseURL    string
	DBMaxOpenConns int

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string
	JWTIssuer string

	// Gateway settings
	HandshakeTimeout  time.Duration
	SendBuffer        int
	EventsPerSecond   float64
	EventBurst        int
	AllowedOrigins    []string
	TypingTTL         time.Duration
	TypingSweep       time.Duration
	MaxUpsertAttempts int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// maxTypingSweep bounds the sweep interval so a vanished typist is cleared
// within one second of its TTL.
const maxTypingSweep = time.Second

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),

		// Database
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL:    getEnv("DATABASE_URL", "file:gateway.db?_busy_timeout=5000"),
		DBMaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 10),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		// Gateway
		HandshakeTimeout:  getDurationEnv("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
		SendBuffer:        getIntEnv("WS_SEND_BUFFER", 256),
		EventsPerSecond:   getFloatEnv("WS_EVENTS_PER_SECOND", 20),
		EventBurst:        getIntEnv("WS_EVENT_BURST", 40),
		AllowedOrigins:    getListEnv("WS_ALLOWED_ORIGINS"),
		TypingTTL:         getDurationEnv("TYPING_TTL", 3*time.Second),
		TypingSweep:       getDurationEnv("TYPING_SWEEP_INTERVAL", time.Second),
		MaxUpsertAttempts: getIntEnv("CONVERSATION_UPSERT_ATTEMPTS", 3),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}

	if cfg.TypingSweep <= 0 || cfg.TypingSweep > maxTypingSweep {
		cfg.TypingSweep = maxTypingSweep
	}
	if cfg.MaxUpsertAttempts < 1 {
		cfg.MaxUpsertAttempts = 1
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
