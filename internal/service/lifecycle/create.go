package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const (
	reasonStockReservationFailed = "stock_reservation_failed"
	maxFetchConcurrency          = 8
)

// ItemRequest — позиция, которую запросил покупатель.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput — данные для оформления заказа.
type CreateOrderInput struct {
	Items           []ItemRequest
	ShippingAddress domain.Address
	PaymentMethod   domain.PaymentMethod
	// ShippingCost переопределяет доставку по умолчанию, если задан.
	ShippingCost *decimal.Decimal
}

// ReservationAnomalyError — заказ сохранён, но остатки зарезервировать не удалось.
// Заказ переведён в cancelled, событие записано для ручной сверки.
type ReservationAnomalyError struct {
	Order domain.Order
	Cause error
}

func (e *ReservationAnomalyError) Error() string {
	return fmt.Sprintf("%v: order %s: %v", domain.ErrReservationAnomaly, e.Order.OrderNumber, e.Cause)
}

// Unwrap позволяет errors.Is находить и ErrReservationAnomaly, и исходную причину.
func (e *ReservationAnomalyError) Unwrap() []error {
	return []error{domain.ErrReservationAnomaly, e.Cause}
}

// CreateOrder оформляет заказ: проверяет вход, снимает снимки товаров, проверяет остатки
// по всем позициям до любых изменений, считает суммы, сохраняет заказ и резервирует остатки.
func (e *Engine) CreateOrder(ctx context.Context, actor domain.Actor, in CreateOrderInput) (order domain.Order, err error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.CreateOrder")
	defer span.End()

	started := time.Now()
	defer func() {
		e.metrics.RecordCheckoutDuration(time.Since(started))
		if err != nil {
			span.RecordError(err)
			e.metrics.RecordCreateFailure(string(domain.KindOf(err)))
			return
		}
		e.metrics.RecordOrderCreated()
	}()

	if actor.ID == "" {
		return domain.Order{}, domain.ErrNotAuthorized
	}

	requests, err := normalizeItems(in.Items)
	if err != nil {
		return domain.Order{}, err
	}
	if err := in.ShippingAddress.Validate(); err != nil {
		return domain.Order{}, err
	}
	if !in.PaymentMethod.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unsupported payment method %q", domain.ErrInvalidInput, in.PaymentMethod)
	}
	shipping := e.cfg.Pricing.DefaultShipping
	if in.ShippingCost != nil {
		shipping = *in.ShippingCost
	}

	products, err := e.fetchProducts(ctx, requests)
	if err != nil {
		return domain.Order{}, err
	}

	// Проверяем остатки по всем позициям до любых изменений.
	items := make([]domain.LineItem, len(requests))
	for i, req := range requests {
		product := products[i]
		if product.Stock < req.Quantity {
			e.metrics.RecordStockConflict()
			return domain.Order{}, fmt.Errorf("%w: product %s requested %d, available %d",
				domain.ErrInsufficientStock, product.ID, req.Quantity, product.Stock)
		}
		items[i] = product.Snapshot(req.Quantity)
	}

	rates := e.cfg.Pricing
	pricing, err := domain.ComputePricing(domain.PricedLines(items), shipping, rates.TaxRate, rates.CommissionRate)
	if err != nil {
		return domain.Order{}, err
	}

	now := e.now().UTC()
	order = domain.Order{
		ID:              e.newID(),
		BuyerID:         actor.ID,
		Items:           items,
		Pricing:         pricing,
		Commissions:     domain.DeriveCommissions(items, rates.CommissionRate),
		ShippingAddress: in.ShippingAddress,
		Payment:         domain.Payment{Method: in.PaymentMethod, Status: domain.PaymentStatusPending},
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.place(ctx, &order); err != nil {
		return order, err
	}

	e.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"buyer_id":     order.BuyerID,
		"items":        len(order.Items),
		"total":        order.Pricing.TotalAmount.String(),
	}).Info("order placed")

	e.record(ctx, &order, domain.TimelineOrderCreated, actor.ID, "")
	e.notify(ctx, domain.NotificationOrderCreated, &order)
	return order, nil
}

// normalizeItems проверяет позиции и объединяет повторы одного товара,
// сохраняя порядок первого появления.
func normalizeItems(items []ItemRequest) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	index := make(map[string]int, len(items))
	result := make([]ItemRequest, 0, len(items))
	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item %d has no product", domain.ErrInvalidLineItem, i)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive, got %d", domain.ErrInvalidLineItem, i, item.Quantity)
		}
		if pos, ok := index[productID]; ok {
			result[pos].Quantity += item.Quantity
			continue
		}
		index[productID] = len(result)
		result = append(result, ItemRequest{ProductID: productID, Quantity: item.Quantity})
	}
	return result, nil
}

// fetchProducts параллельно читает снимки товаров. Первая ошибка отменяет остальные чтения.
func (e *Engine) fetchProducts(ctx context.Context, requests []ItemRequest) ([]domain.Product, error) {
	products := make([]domain.Product, len(requests))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxFetchConcurrency)

	for i, req := range requests {
		group.Go(func() error {
			return e.callStore(groupCtx, func(ctx context.Context) error {
				product, err := e.catalog.GetByID(ctx, req.ProductID)
				if err != nil {
					return err
				}
				products[i] = product
				return nil
			})
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

// place присваивает номер и сохраняет заказ вместе с резервом.
// При коллизии номера генерирует новый.
func (e *Engine) place(ctx context.Context, order *domain.Order) error {
	for attempt := 1; ; attempt++ {
		if err := e.assignOrderNumber(ctx, order); err != nil {
			return err
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
		}

		var err error
		if e.tx != nil {
			err = e.callStore(ctx, func(ctx context.Context) error {
				return e.tx.PlaceOrder(ctx, order.Clone())
			})
			if errors.Is(err, domain.ErrInsufficientStock) {
				e.metrics.RecordStockConflict()
			}
		} else {
			err = e.callStore(ctx, func(ctx context.Context) error {
				return e.orders.Create(ctx, order.Clone())
			})
			if err == nil {
				return e.reserveAfterPersist(ctx, order)
			}
		}

		if errors.Is(err, domain.ErrOrderNumberTaken) && attempt < maxOrderNumberAttempts {
			e.logger.WithField("order_number", order.OrderNumber).Warn("order number collision on insert, regenerating")
			continue
		}
		return err
	}
}

func (e *Engine) assignOrderNumber(ctx context.Context, order *domain.Order) error {
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number := e.numbers(order.CreatedAt)
		var exists bool
		err := e.callStore(ctx, func(ctx context.Context) error {
			var err error
			exists, err = e.orders.ExistsByNumber(ctx, number)
			return err
		})
		if err != nil {
			return err
		}
		if !exists {
			order.OrderNumber = number
			return nil
		}
		e.logger.WithField("order_number", number).Warn("order number collision, regenerating")
	}
	return fmt.Errorf("%w: could not allocate a unique order number", domain.ErrPersistence)
}

// reserveAfterPersist резервирует остатки после сохранения заказа (хранилища без общей транзакции).
// Каждая позиция списывается атомарным условным декрементом.
func (e *Engine) reserveAfterPersist(ctx context.Context, order *domain.Order) error {
	reserved := make([]domain.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		err := e.callStore(ctx, func(ctx context.Context) error {
			return e.catalog.Reserve(ctx, item.ProductID, item.Quantity)
		})
		if err != nil {
			return e.compensateReservation(ctx, order, reserved, err)
		}
		reserved = append(reserved, item)
	}
	return nil
}

// compensateReservation откатывает частичный резерв и отменяет уже сохранённый заказ.
// Проигранная гонка за остаток возвращается как ErrInsufficientStock;
// всё остальное считается аномалией и требует ручной сверки.
func (e *Engine) compensateReservation(ctx context.Context, order *domain.Order, reserved []domain.LineItem, cause error) error {
	// Компенсация должна завершиться даже если клиент уже отключился.
	ctx = context.WithoutCancel(ctx)

	consistent := true
	for _, item := range reserved {
		err := e.callStore(ctx, func(ctx context.Context) error {
			return e.catalog.Release(ctx, item.ProductID, item.Quantity)
		})
		if err != nil {
			consistent = false
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": item.ProductID,
				"qty":        item.Quantity,
			}).Error("release after failed reservation failed")
		}
	}

	order.CancelReason = reasonStockReservationFailed
	if err := order.ApplyTransition(domain.OrderStatusCancelled, e.now()); err == nil {
		updateErr := e.callStore(ctx, func(ctx context.Context) error {
			return e.orders.Update(ctx, order.Clone())
		})
		if updateErr != nil {
			consistent = false
			e.logger.WithError(updateErr).WithField("order_id", order.ID).Error("cancel after failed reservation failed")
		} else {
			order.Version++
		}
	}

	if consistent && errors.Is(cause, domain.ErrInsufficientStock) {
		e.metrics.RecordStockConflict()
		e.logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
		}).Warn("stock taken by a concurrent checkout, order cancelled")
		e.record(ctx, order, domain.TimelineStatusChanged, "", reasonStockReservationFailed)
		return cause
	}

	e.metrics.RecordAnomaly("create")
	e.logger.WithError(cause).WithFields(log.Fields{
		"anomaly":      true,
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"reserved":     len(reserved),
		"items":        len(order.Items),
		"consistent":   consistent,
	}).Error("stock reservation failed after order was persisted, manual reconciliation required")
	e.record(ctx, order, domain.TimelineReservationAnomaly, "", cause.Error())

	return &ReservationAnomalyError{Order: order.Clone(), Cause: cause}
}
