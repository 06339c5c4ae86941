// Package app собирает сервис из конфигурации: хранилища, движок заказов,
// HTTP-сервер, outbox worker и очистку ключей идемпотентности.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/agromarket/internal/health"
	"github.com/vladislavdragonenkov/agromarket/internal/metrics"
	"github.com/vladislavdragonenkov/agromarket/internal/service/idempotency"
	"github.com/vladislavdragonenkov/agromarket/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/agromarket/internal/service/notify"
	"github.com/vladislavdragonenkov/agromarket/internal/service/outbox"
	"github.com/vladislavdragonenkov/agromarket/internal/service/payment"
	"github.com/vladislavdragonenkov/agromarket/internal/telemetry"
	"github.com/vladislavdragonenkov/agromarket/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/agromarket/internal/version"
)

const serviceName = "agromarket"

// Run запускает сервис и блокируется до отмены ctx или ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	shutdownTracing := telemetry.Noop()
	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracerProvider(ctx, serviceName, version.GetVersion(), cfg.OTLPEndpoint)
		if err != nil {
			logger.WithError(err).Warn("failed to init tracing, continuing without it")
		} else {
			shutdownTracing = shutdown
			logger.WithField("endpoint", cfg.OTLPEndpoint).Info("tracing enabled")
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout())
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	if err := seedCatalog(ctx, deps.catalog, cfg.CatalogSeedFile, logger); err != nil {
		return err
	}

	transport := initNotificationTransport(cfg, logger)
	defer closeKafkaProducer(transport.producer, logger)

	srv, err := newServer(cfg, deps, transport, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}

	outboxWorker := startWorker(ctx, "outbox", outbox.NewWorker(deps.outboxRepo, transport.publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)),
		outbox.WithDLQPublisher(transport.dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		outbox.WithStoreTimeout(cfg.StoreTimeout),
	).Run)
	cleanupWorker := startWorker(ctx, "idempotency-cleanup", idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetricsWithRegisterer(prometheus.DefaultRegisterer)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	).Run)
	defer func() {
		outboxWorker.stop(cfg.shutdownTimeout(), logger)
		cleanupWorker.stop(cfg.shutdownTimeout(), logger)
	}()

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", lis.Addr())
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(srv, cfg.shutdownTimeout(), logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newServer собирает движок заказов и HTTP-обработчик.
func newServer(
	cfg Config,
	deps *runtimeDependencies,
	transport notificationTransport,
	registerer prometheus.Registerer,
	logger *log.Entry,
) (*http.Server, error) {
	opts := []lifecycle.Option{
		lifecycle.WithNotificationSink(notify.NewOutboxSink(deps.outboxRepo)),
		lifecycle.WithTimeline(deps.timelineRepo),
		lifecycle.WithPaymentGateway(payment.NewMockGateway()),
		lifecycle.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registerer)),
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
	}
	if deps.tx != nil {
		opts = append(opts, lifecycle.WithTransactionalStore(deps.tx))
	}

	engineCfg := lifecycle.DefaultConfig()
	engineCfg.Pricing = cfg.Pricing
	engineCfg.StoreTimeout = cfg.StoreTimeout
	engine, err := lifecycle.NewEngine(deps.catalog, deps.orders, engineCfg, opts...)
	if err != nil {
		return nil, err
	}

	healthRegistry := health.NewRegistry(version.GetVersion())
	for name, checker := range deps.checkers {
		healthRegistry.Add(name, checker)
	}
	if checker := transport.checker(); checker != nil {
		healthRegistry.Add("kafka", checker)
	}

	httpLogger := logger.WithField("component", "http")
	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Orders: httpapi.NewHandler(
			engine,
			idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency")),
			httpLogger,
		),
		Auth:           httpapi.HeaderAuthenticator{},
		Health:         healthRegistry,
		MetricsHandler: promhttp.Handler(),
		HTTPMetrics:    metrics.NewHTTPMetricsWithRegisterer(registerer),
		Logger:         httpLogger,
	})

	var handler http.Handler = router
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(router, serviceName+"-http")
	}

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
