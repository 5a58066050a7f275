package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config описывает настройки запуска сервиса. Источник — переменные
// окружения; .env подхватывается для локальной разработки.
type Config struct {
	HTTPAddr string

	// PostgresDSN пустой — сервис работает на in-memory хранилищах
	// (локальная разработка и тесты).
	PostgresDSN string

	// KafkaBrokers пустой — события остаются в журнале, сага не работает.
	KafkaBrokers  []string
	KafkaGroupID  string
	ConsumerRetry int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RelayPollInterval time.Duration
	RelayBatchSize    int

	SweepInterval time.Duration
	StuckAfter    time.Duration

	LogLevel string
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:          ":8080",
		KafkaGroupID:      "orderflow",
		ConsumerRetry:     3,
		RelayPollInterval: time.Second,
		RelayBatchSize:    100,
		SweepInterval:     time.Minute,
		StuckAfter:        5 * time.Minute,
		LogLevel:          "info",
	}
}

// LoadConfig читает конфигурацию из окружения поверх значений по умолчанию.
func LoadConfig() Config {
	// .env опционален: в контейнере конфигурация приходит из окружения.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg := DefaultConfig()
	cfg.HTTPAddr = getEnv("ORDERFLOW_HTTP_ADDR", cfg.HTTPAddr)
	cfg.PostgresDSN = getEnv("ORDERFLOW_POSTGRES_DSN", cfg.PostgresDSN)

	if brokers := getEnv("ORDERFLOW_KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.KafkaGroupID = getEnv("ORDERFLOW_KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.ConsumerRetry = getEnvInt("ORDERFLOW_CONSUMER_RETRY", cfg.ConsumerRetry)

	cfg.RedisAddr = getEnv("ORDERFLOW_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("ORDERFLOW_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("ORDERFLOW_REDIS_DB", cfg.RedisDB)

	cfg.RelayPollInterval = getEnvDuration("ORDERFLOW_RELAY_POLL_INTERVAL", cfg.RelayPollInterval)
	cfg.RelayBatchSize = getEnvInt("ORDERFLOW_RELAY_BATCH_SIZE", cfg.RelayBatchSize)

	cfg.SweepInterval = getEnvDuration("ORDERFLOW_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.StuckAfter = getEnvDuration("ORDERFLOW_STUCK_AFTER", cfg.StuckAfter)

	cfg.LogLevel = getEnv("ORDERFLOW_LOG_LEVEL", cfg.LogLevel)
	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid integer in environment, using default")
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid duration in environment, using default")
		return fallback
	}
	return value
}
