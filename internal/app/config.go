package app

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config описывает настройки запуска сервиса. Пустой PostgresDSN означает
// in-memory хранилище, пустые base-URL внешних сервисов — их mock-реализации,
// пустой KafkaBrokers — работу без публикации событий.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	JWTSecret   string

	PostgresDSN    string
	MigrateOnStart bool

	KafkaBrokers []string

	CartBaseURL    string
	ProductBaseURL string
	EmailBaseURL   string
	ClientTimeout  time.Duration

	OutboxPollInterval time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		JWTSecret:          "dev-secret-change-me",
		MigrateOnStart:     true,
		ClientTimeout:      10 * time.Second,
		OutboxPollInterval: time.Second,
	}
}

// LoadConfig читает конфигурацию из окружения поверх дефолтов.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	cfg.HTTPAddr = getEnv("ORDERS_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getEnv("ORDERS_METRICS_ADDR", cfg.MetricsAddr)
	cfg.JWTSecret = getEnv("ORDERS_JWT_SECRET", cfg.JWTSecret)
	cfg.PostgresDSN = getEnv("ORDERS_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.CartBaseURL = getEnv("ORDERS_CART_URL", cfg.CartBaseURL)
	cfg.ProductBaseURL = getEnv("ORDERS_PRODUCT_URL", cfg.ProductBaseURL)
	cfg.EmailBaseURL = getEnv("ORDERS_EMAIL_URL", cfg.EmailBaseURL)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitBrokers(brokers)
	}

	if raw := getEnv("ORDERS_MIGRATE_ON_START", ""); raw != "" {
		cfg.MigrateOnStart = raw == "true" || raw == "1"
	}

	var err error
	if cfg.ClientTimeout, err = getDurationEnv("ORDERS_CLIENT_TIMEOUT", cfg.ClientTimeout); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = getDurationEnv("ORDERS_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("ORDERS_JWT_SECRET must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return value, nil
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
