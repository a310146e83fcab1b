package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type SessionStoreKind string

const (
	StorePostgres SessionStoreKind = "postgres"
	StoreRedis    SessionStoreKind = "redis"
	StoreMemory   SessionStoreKind = "memory"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	PostgresURL    string
	JWTKey         string
	TokenMaxAge    time.Duration
	SessionStore   SessionStoreKind
	RedisURL       string
	SessionTTL     time.Duration
	TurnDuration   int
	InviteBaseURL  string
	LogLevel       string
	GinMode        string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first; variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	tokenMaxAge, err := time.ParseDuration(getEnv("TOKEN_MAX_AGE", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_MAX_AGE: %w", err)
	}

	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	turnDuration, err := strconv.Atoi(getEnv("TURN_DURATION", "60"))
	if err != nil || turnDuration <= 0 {
		return nil, fmt.Errorf("invalid TURN_DURATION: %q", os.Getenv("TURN_DURATION"))
	}

	cfg := &Config{
		Port:           getEnv("PORT", "5000"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		PostgresURL:    getEnv("POSTGRES_URL", ""),
		JWTKey:         getEnv("JWT_KEY", ""),
		TokenMaxAge:    tokenMaxAge,
		SessionStore:   SessionStoreKind(strings.ToLower(getEnv("SESSION_STORE", string(StorePostgres)))),
		RedisURL:       getEnv("REDIS_URL", ""),
		SessionTTL:     sessionTTL,
		TurnDuration:   turnDuration,
		InviteBaseURL:  getEnv("INVITE_BASE_URL", "http://localhost:3000/game/"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		GinMode:        getEnv("GIN_MODE", ""),
	}

	if len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS is required")
	}
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}
	if cfg.JWTKey == "" {
		return nil, fmt.Errorf("JWT_KEY is required")
	}

	switch cfg.SessionStore {
	case StorePostgres, StoreMemory:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when SESSION_STORE is redis")
		}
	default:
		return nil, fmt.Errorf("invalid SESSION_STORE: %q", cfg.SessionStore)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
