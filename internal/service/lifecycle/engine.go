// Package lifecycle содержит движок жизненного цикла заказа: оформление с резервом остатков,
// переходы статусов, отмену с возвратом остатков и выборки для покупателя, продавца и админа.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/agromarket/internal/service/lifecycle"

// Config — параметры движка.
type Config struct {
	Pricing      domain.PricingConfig
	StoreTimeout time.Duration
	Retry        RetryConfig
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		Pricing: domain.PricingConfig{
			TaxRate:         decimal.Zero,
			CommissionRate:  decimal.RequireFromString("0.05"),
			DefaultShipping: decimal.Zero,
		},
		StoreTimeout: 3 * time.Second,
		Retry:        DefaultRetryConfig(),
	}
}

// Option настраивает необязательные зависимости движка.
type Option func(*Engine)

// WithTransactionalStore включает атомарное оформление и отмену.
// Передавать только если каталог и заказы живут в одном хранилище.
func WithTransactionalStore(store domain.TransactionalOrderStore) Option {
	return func(e *Engine) { e.tx = store }
}

// WithNotificationSink задаёт получателя уведомлений.
func WithNotificationSink(sink domain.NotificationSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithTimeline включает запись истории заказа.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(e *Engine) { e.timeline = repo }
}

// WithPaymentGateway задаёт платёжного провайдера.
func WithPaymentGateway(gateway domain.PaymentGateway) Option {
	return func(e *Engine) { e.payments = gateway }
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithOrderNumbers подменяет генератор номеров заказов (тесты коллизий).
func WithOrderNumbers(gen func(time.Time) string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.numbers = gen
		}
	}
}

// Engine — движок жизненного цикла заказа. Безопасен для конкурентного использования:
// собственного изменяемого состояния нет, гонки закрываются на уровне хранилищ.
type Engine struct {
	catalog  domain.CatalogStore
	orders   domain.OrderRepository
	tx       domain.TransactionalOrderStore
	sink     domain.NotificationSink
	timeline domain.TimelineRepository
	payments domain.PaymentGateway
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
	numbers  func(time.Time) string
	cfg      Config
}

// NewEngine создаёт движок поверх каталога и репозитория заказов.
func NewEngine(catalog domain.CatalogStore, orders domain.OrderRepository, cfg Config, opts ...Option) (*Engine, error) {
	if catalog == nil || orders == nil {
		return nil, errors.New("lifecycle: catalog and order repository are required")
	}
	if err := cfg.Pricing.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultConfig().StoreTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	e := &Engine{
		catalog: catalog,
		orders:  orders,
		logger:  log.New().WithField("component", "lifecycle"),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		newID:   uuid.NewString,
		numbers: NewOrderNumber,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// callStore ограничивает вызов хранилища таймаутом и приводит ошибки к доменным.
func (e *Engine) callStore(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return storeError(fn(callCtx))
}

// storeError оборачивает инфраструктурные ошибки в ErrTimeout/ErrPersistence,
// доменные ошибки возвращает как есть.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrPersistence):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case domain.KindOf(err) != domain.KindPersistenceFailure:
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
}

func (e *Engine) load(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := e.callStore(ctx, func(ctx context.Context) error {
		var err error
		order, err = e.orders.FindByID(ctx, orderID)
		return err
	})
	return order, err
}

// record добавляет событие в историю заказа. Ошибки не прерывают операцию.
func (e *Engine) record(ctx context.Context, order *domain.Order, eventType, actorID, reason string) {
	if e.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Status:   order.Status,
		ActorID:  actorID,
		Reason:   reason,
		Occurred: e.now().UTC(),
	}
	err := e.callStore(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return e.timeline.Append(ctx, event)
	})
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		return
	}
	e.metrics.RecordTimelineEvent()
}

// notify отправляет уведомление по принципу fire-and-forget.
func (e *Engine) notify(ctx context.Context, kind string, order *domain.Order) {
	if e.sink == nil {
		return
	}
	n := domain.NewNotification(kind, order, e.now())
	err := e.callStore(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return e.sink.Notify(ctx, n)
	})
	if err != nil {
		e.metrics.RecordNotificationError()
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    kind,
		}).Warn("notification dropped")
	}
}
