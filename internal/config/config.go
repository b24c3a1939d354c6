// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
)

const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port string `validate:"required,numeric"`
}

type StorageConfig struct {
	Type  string `validate:"oneof=redis memory"`
	Redis RedisConfig
}

type RedisConfig struct {
	URL            string        `validate:"required"`
	MaxConnections int           `validate:"gt=0"`
	Timeout        time.Duration `validate:"gte=0"`
}

type RateLimiterConfig struct {
	Windows []domain.WindowPolicy `validate:"min=1"`
	// FailOpen lets requests through when the store cannot be reached, both at
	// startup and per request. When false the service refuses to start and
	// answers 503 instead.
	FailOpen bool
}

type LogConfig struct {
	Level slog.Level
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Load() (Config, error) {
	_ = godotenv.Load()

	server := ServerConfig{Port: getEnv("SERVER_PORT", "8080")}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimiterConfig, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	logConfig, err := buildLogConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: server,
		Storage: StorageConfig{
			Type:  strings.ToLower(getEnv("STORAGE_TYPE", "redis")),
			Redis: redisConfig,
		},
		RateLimiter: rateLimiterConfig,
		Log:         logConfig,
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func buildRedisConfig() (RedisConfig, error) {
	maxConnections, err := strconv.Atoi(getEnv("REDIS_MAX_CONNECTIONS", "20"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_MAX_CONNECTIONS: %w", err)
	}
	timeoutMillis, err := strconv.Atoi(getEnv("REDIS_TIMEOUT_MS", "500"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_TIMEOUT_MS: %w", err)
	}

	return RedisConfig{
		URL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MaxConnections: maxConnections,
		Timeout:        time.Duration(timeoutMillis) * time.Millisecond,
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	perMinute, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "10"))
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}
	perHour, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_HOUR", "100"))
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid RATE_LIMIT_PER_HOUR: %w", err)
	}
	perDay, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_DAY", "500"))
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid RATE_LIMIT_PER_DAY: %w", err)
	}
	failOpen, err := strconv.ParseBool(getEnv("RATE_LIMIT_FAIL_OPEN", "true"))
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid RATE_LIMIT_FAIL_OPEN: %w", err)
	}

	return RateLimiterConfig{
		Windows: []domain.WindowPolicy{
			{Name: WindowMinute, Window: time.Minute, MaxCount: perMinute},
			{Name: WindowHour, Window: time.Hour, MaxCount: perHour},
			{Name: WindowDay, Window: 24 * time.Hour, MaxCount: perDay},
		},
		FailOpen: failOpen,
	}, nil
}

func buildLogConfig() (LogConfig, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return LogConfig{Level: level}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
