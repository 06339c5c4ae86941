package domain

import (
	"context"
	"time"
)

// CatalogStore — внешний каталог товаров. Остатки меняются только через Reserve/Release.
type CatalogStore interface {
	// GetByID возвращает текущий снимок товара или ErrProductNotFound.
	GetByID(ctx context.Context, productID string) (Product, error)
	// Reserve атомарно уменьшает остаток, только если stock >= qty.
	// Возвращает ErrInsufficientStock, если условие не выполнено.
	Reserve(ctx context.Context, productID string, qty int) error
	// Release возвращает qty единиц на склад.
	Release(ctx context.Context, productID string, qty int) error
}

// CatalogSeeder загружает товары в каталог (начальное наполнение, тесты).
type CatalogSeeder interface {
	Upsert(ctx context.Context, product Product) error
}

// OrderListFilter ограничивает выборку заказов.
type OrderListFilter struct {
	Status OrderStatus
	Limit  int
	Offset int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrOrderNumberTaken при коллизии номера.
	Create(ctx context.Context, order Order) error
	// FindByID возвращает заказ или ErrOrderNotFound.
	FindByID(ctx context.Context, id string) (Order, error)
	// FindByBuyer возвращает заказы покупателя, новые первыми.
	FindByBuyer(ctx context.Context, buyerID string, filter OrderListFilter) ([]Order, error)
	// FindBySeller возвращает заказы, где есть позиции продавца, новые первыми.
	FindBySeller(ctx context.Context, sellerID string, filter OrderListFilter) ([]Order, error)
	// FindAll возвращает все заказы, новые первыми.
	FindAll(ctx context.Context, filter OrderListFilter) ([]Order, error)
	// Update применяет изменения с учётом optimistic locking: order.Version должен
	// совпадать с сохранённой версией, после записи версия увеличивается.
	Update(ctx context.Context, order Order) error
	// ExistsByNumber проверяет занятость номера заказа.
	ExistsByNumber(ctx context.Context, orderNumber string) (bool, error)
}

// TransactionalOrderStore — хранилище, где заказы и остатки живут в одной транзакционной
// области. Используется, только если каталог и заказы находятся в одном хранилище.
type TransactionalOrderStore interface {
	// PlaceOrder сохраняет заказ и резервирует все позиции атомарно.
	// При нехватке любой позиции ничего не меняется и возвращается ErrInsufficientStock.
	PlaceOrder(ctx context.Context, order Order) error
	// CancelOrder сохраняет отменённый заказ (с проверкой версии) и возвращает остатки атомарно.
	CancelOrder(ctx context.Context, order Order) error
}

// NotificationSink принимает уведомления по принципу fire-and-forget.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// PaymentGateway — внешний платёжный провайдер (в этом сервисе замокан).
type PaymentGateway interface {
	// Charge списывает сумму и возвращает идентификатор транзакции.
	Charge(ctx context.Context, order Order) (string, error)
	// Refund возвращает оплату по транзакции.
	Refund(ctx context.Context, order Order) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
