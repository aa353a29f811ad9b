package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Database
	DatabaseDriver string // "postgres", "sqlite" or "memory"
	DatabaseURL    string

	// Database Connection Pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Redis backs the hourly limiter and the per-chat stream lock. Both fall
	// back to in-process implementations when empty.
	RedisURL string

	// NATS enables stopping a stream owned by another instance.
	NatsURL string

	// Auth
	ValidatorType    string // "jwk", "hmac" or "firebase"
	JWTJWKSURL       string
	JWTSecret        string
	FirebaseCredJSON string

	// Agent providers
	OpenAIAPIKey  string
	OpenAIBaseURL string
	SerpAPIKey    string
	ExaAPIKey     string

	// Rate Limiting
	RateLimitEnabled    bool
	RateLimitFailClosed bool // If true, a limiter outage ends the stream with an error event.
	FreeHourlyMessages  int
	ProHourlyMessages   int

	// Streaming
	StreamHeartbeatInterval time.Duration
	StreamLockTTL           time.Duration

	// Server
	ServerShutdownTimeoutSeconds int
	MetricsEnabled               bool

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string

	// Agent is read from the config file.
	Agent AgentConfig `yaml:"agent"`
}

var AppConfig *Config

// LoadConfig populates AppConfig from the environment, an optional .env file
// and an optional YAML config file.
func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OpenAI API key is missing. Please set OPENAI_API_KEY environment variable.")
	}
	if cfg.ExaAPIKey == "" && cfg.SerpAPIKey == "" {
		log.Println("Warning: no search provider configured. Please set EXA_API_KEY or SERPAPI_API_KEY.")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL is not set, rate limits and stream locks are local to this instance.")
	}

	AppConfig = cfg
}

// Load builds a Config from environment variables, then applies the YAML file
// at path. An empty path means config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := FromEnv()

	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("Config file %s not found, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer f.Close() //nolint:errcheck
		if err := LoadConfigFile(f, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Environment wins over the file for the model name.
	if model := os.Getenv("AGENT_MODEL"); model != "" {
		cfg.Agent.Model = model
	}

	if err := cfg.Agent.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads every environment-backed setting.
func FromEnv() *Config {
	return &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", "postgres://localhost/agent_stream?sslmode=disable"),

		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME", 5),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME", 30),

		RedisURL: getEnvOrDefault("REDIS_URL", ""),
		NatsURL:  getEnvOrDefault("NATS_URL", ""),

		ValidatorType:    getEnvOrDefault("VALIDATOR_TYPE", "jwk"),
		JWTJWKSURL:       getEnvOrDefault("JWT_JWKS_URL", ""),
		JWTSecret:        getEnvOrDefault("JWT_SECRET", ""),
		FirebaseCredJSON: getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		OpenAIAPIKey:  getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", ""),
		SerpAPIKey:    getEnvOrDefault("SERPAPI_API_KEY", ""),
		ExaAPIKey:     getEnvOrDefault("EXA_API_KEY", ""),

		RateLimitEnabled:    getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitFailClosed: getEnvAsBool("RATE_LIMIT_FAIL_CLOSED", false),
		FreeHourlyMessages:  getEnvAsInt("FREE_HOURLY_MESSAGES", 20),
		ProHourlyMessages:   getEnvAsInt("PRO_HOURLY_MESSAGES", 200),

		StreamHeartbeatInterval: getEnvAsDuration("STREAM_HEARTBEAT_INTERVAL", 15*time.Second),
		StreamLockTTL:           getEnvAsDuration("STREAM_LOCK_TTL", 10*time.Minute),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),
		MetricsEnabled:               getEnvAsBool("METRICS_ENABLED", true),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		Agent: DefaultAgentConfig(),
	}
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
		log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
		log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
		log.Printf("Warning: Failed to parse environment variable %s='%s' as bool, using default %v: %v", key, value, defaultValue, err)
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	return nil
}
