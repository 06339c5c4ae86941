package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/app"
	"github.com/vladislavdragonenkov/agromarket/internal/version"
)

const (
	envHTTPAddr                    = "AGRO_HTTP_ADDR"
	envShutdownTimeout             = "AGRO_SHUTDOWN_TIMEOUT"
	envStorageDriver               = "AGRO_STORAGE_DRIVER"
	envCatalogDriver               = "AGRO_CATALOG_DRIVER"
	envPostgresDSN                 = "AGRO_POSTGRES_DSN"
	envPostgresAutoMigrate         = "AGRO_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "AGRO_REDIS_ADDR"
	envCatalogSeedFile             = "AGRO_CATALOG_SEED_FILE"
	envKafkaBrokers                = "AGRO_KAFKA_BROKERS"
	envKafkaTopic                  = "AGRO_KAFKA_TOPIC"
	envKafkaDLQTopic               = "AGRO_KAFKA_DLQ_TOPIC"
	envTaxRate                     = "AGRO_TAX_RATE"
	envCommissionRate              = "AGRO_COMMISSION_RATE"
	envDefaultShipping             = "AGRO_DEFAULT_SHIPPING"
	envStoreTimeout                = "AGRO_STORE_TIMEOUT"
	envIdempotencyTTL              = "AGRO_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "AGRO_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "AGRO_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envOutboxPollInterval          = "AGRO_OUTBOX_INTERVAL"
	envOutboxBatchSize             = "AGRO_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "AGRO_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "AGRO_OUTBOX_RETRY_DELAY"
	envTracingEnabled              = "AGRO_TRACING_ENABLED"
	envOTLPEndpoint                = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envLogLevel                    = "LOG_LEVEL"
	envLogFormat                   = "LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования.
func setupLogger(lookup envLookup) {
	if format, _ := lookup(envLogFormat); strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warn("invalid LOG_LEVEL, using info")
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

// readConfigFromEnv накладывает переменные окружения на конфигурацию по умолчанию.
// Некорректное значение оставляет умолчание и добавляет предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		v, err := parseBool(raw)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	positiveInt := func(key string, dst *int) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		v, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0")
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		v, err := parseDuration(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	positive := func(v time.Duration) bool { return v > 0 }
	money := func(key string, dst *decimal.Decimal) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		v, err := parseDecimal(raw)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positive, "must be > 0")

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envCatalogDriver); ok && strings.TrimSpace(v) != "" {
		cfg.CatalogDriver = strings.ToLower(strings.TrimSpace(v))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envCatalogSeedFile, &cfg.CatalogSeedFile)

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = parseList(v)
	}
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	money(envTaxRate, &cfg.Pricing.TaxRate)
	money(envCommissionRate, &cfg.Pricing.CommissionRate)
	money(envDefaultShipping, &cfg.Pricing.DefaultShipping)
	duration(envStoreTimeout, &cfg.StoreTimeout, positive, "must be > 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")

	boolean(envTracingEnabled, &cfg.TracingEnabled)
	str(envOTLPEndpoint, &cfg.OTLPEndpoint)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

// parseDecimal разбирает ставку или сумму. Диапазон проверяет app.Config.Validate.
func parseDecimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(raw))
}

// parseList разбирает список через запятую, пропуская пустые элементы.
func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr": cfg.HTTPAddr,
		"storage":   cfg.StorageDriver,
		"catalog":   cfg.CatalogDriver,
		"kafka":     len(cfg.KafkaBrokers) > 0,
		"version":   version.String(),
	}).Info("запускаем marketplace API")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("marketplace API остановлен")
}
