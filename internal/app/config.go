package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	CatalogDriverRedis    = "redis"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	StorageDriver       string
	CatalogDriver       string // пусто — тот же, что StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool
	RedisAddr           string
	CatalogSeedFile     string

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	Pricing      domain.PricingConfig
	StoreTimeout time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	TracingEnabled bool
	OTLPEndpoint   string
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		ShutdownTimeout:     5 * time.Second,
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		RedisAddr:           "localhost:6379",
		KafkaTopic:          kafka.TopicOrderNotifications,
		KafkaDLQTopic:       kafka.TopicDeadLetterQueue,
		Pricing: domain.PricingConfig{
			TaxRate:         decimal.Zero,
			CommissionRate:  decimal.RequireFromString("0.05"),
			DefaultShipping: decimal.Zero,
		},
		StoreTimeout:                3 * time.Second,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		OTLPEndpoint:                "localhost:4317",
	}
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return c.ShutdownTimeout
}

// catalogDriver возвращает драйвер каталога с учётом умолчания.
func (c Config) catalogDriver() string {
	if c.CatalogDriver == "" {
		return c.StorageDriver
	}
	return c.CatalogDriver
}

// Validate проверяет сочетание драйверов и ставки.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory, StorageDriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.catalogDriver() {
	case StorageDriverMemory, CatalogDriverRedis:
	case StorageDriverPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			return fmt.Errorf("postgres catalog requires postgres storage driver")
		}
	default:
		return fmt.Errorf("unsupported catalog driver %q", c.CatalogDriver)
	}

	if c.StorageDriver == StorageDriverPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("postgres dsn is required for postgres storage driver")
	}
	if c.catalogDriver() == CatalogDriverRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis address is required for redis catalog driver")
	}
	return c.Pricing.Validate()
}
