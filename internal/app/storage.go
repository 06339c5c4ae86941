package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/health"
	"github.com/vladislavdragonenkov/agromarket/internal/storage/memory"
	"github.com/vladislavdragonenkov/agromarket/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/agromarket/internal/storage/redis"
)

// catalogBackend — каталог и способ его наполнения.
type catalogBackend interface {
	domain.CatalogStore
	domain.CatalogSeeder
}

// runtimeDependencies — хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	orders          domain.OrderRepository
	catalog         catalogBackend
	tx              domain.TransactionalOrderStore // nil, если каталог и заказы в разных хранилищах
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	checkers        map[string]health.Checker
	closers         []func() error
}

func (d *runtimeDependencies) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := &runtimeDependencies{checkers: make(map[string]health.Checker)}
	var (
		memOrders *memory.OrderRepository
		pgStore   *postgres.Store
	)

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		memOrders = memory.NewOrderRepository()
		deps.orders = memOrders
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory order storage")

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = deps.close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		pgStore = store
		deps.orders = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.checkers["postgres"] = health.Critical("postgres", store.Ping)
		logger.Info("using postgres order storage")
	}

	switch cfg.catalogDriver() {
	case StorageDriverMemory:
		catalog := memory.NewCatalogStore()
		deps.catalog = catalog
		if memOrders != nil {
			deps.tx = memory.NewTransactionalStore(catalog, memOrders)
		}

	case StorageDriverPostgres:
		deps.catalog = postgres.NewCatalogStore(pgStore)
		deps.tx = postgres.NewTransactionalStore(pgStore)

	case CatalogDriverRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		deps.closers = append(deps.closers, client.Close)
		catalog := redisstore.NewCatalogStore(client, "")
		if err := catalog.Ping(ctx); err != nil {
			_ = deps.close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		deps.catalog = catalog
		deps.checkers["redis"] = health.Critical("redis", catalog.Ping)
	}

	logger.WithFields(log.Fields{
		"storage":       cfg.StorageDriver,
		"catalog":       cfg.catalogDriver(),
		"transactional": deps.tx != nil,
	}).Info("storage initialized")
	return deps, nil
}
