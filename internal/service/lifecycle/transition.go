package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// UpdateStatus переводит заказ в статус target. Отмена делегируется в Cancel.
func (e *Engine) UpdateStatus(ctx context.Context, actor domain.Actor, orderID string, target domain.OrderStatus) (domain.Order, error) {
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, target)
	}
	if target == domain.OrderStatusCancelled {
		return e.Cancel(ctx, actor, orderID, "")
	}

	ctx, span := e.tracer.Start(ctx, "lifecycle.UpdateStatus")
	defer span.End()

	order, err := e.mutate(ctx, orderID, func(order *domain.Order) error {
		if err := authorizeTransition(actor, order, target); err != nil {
			return err
		}
		return order.ApplyTransition(target, e.now())
	}, e.update)
	if err != nil {
		span.RecordError(err)
		return domain.Order{}, err
	}

	e.metrics.RecordTransition(string(target))
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"actor_id": actor.ID,
	}).Info("order status changed")
	e.record(ctx, &order, domain.TimelineStatusChanged, actor.ID, "")
	e.notify(ctx, domain.NotificationOrderStatusChanged, &order)
	return order, nil
}

// Cancel отменяет заказ до отгрузки и возвращает остатки ровно один раз.
// Повторная отмена, как и отмена отгруженного заказа, завершается ErrInvalidTransition.
func (e *Engine) Cancel(ctx context.Context, actor domain.Actor, orderID, reason string) (domain.Order, error) {
	ctx, span := e.tracer.Start(ctx, "lifecycle.Cancel")
	defer span.End()

	reason = strings.TrimSpace(reason)
	order, err := e.mutate(ctx, orderID, func(order *domain.Order) error {
		if err := authorizeTransition(actor, order, domain.OrderStatusCancelled); err != nil {
			return err
		}
		if err := order.ApplyTransition(domain.OrderStatusCancelled, e.now()); err != nil {
			return err
		}
		order.CancelReason = reason
		return nil
	}, e.persistCancel)
	if err != nil {
		span.RecordError(err)
		return domain.Order{}, err
	}

	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	e.metrics.RecordTransition(string(domain.OrderStatusCancelled))
	e.metrics.RecordStockReleased(units)
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"actor_id": actor.ID,
		"reason":   reason,
	}).Info("order cancelled")

	e.record(ctx, &order, domain.TimelineStatusChanged, actor.ID, reason)
	e.record(ctx, &order, domain.TimelineStockReleased, actor.ID, "")
	if order.Payment.Status == domain.PaymentStatusCompleted {
		order = e.refund(ctx, actor, order)
	}
	e.notify(ctx, domain.NotificationOrderCancelled, &order)
	return order, nil
}

// PayOrder проводит оплату заказа через платёжного провайдера.
func (e *Engine) PayOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if e.payments == nil {
		return domain.Order{}, fmt.Errorf("%w: payment gateway is not configured", domain.ErrPersistence)
	}

	current, err := e.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := authorizePayment(actor, &current); err != nil {
		return domain.Order{}, err
	}

	txID, chargeErr := e.payments.Charge(ctx, current)
	if chargeErr != nil && !errors.Is(chargeErr, domain.ErrPaymentDeclined) {
		return domain.Order{}, fmt.Errorf("%w: charge: %w", domain.ErrPersistence, chargeErr)
	}

	order, err := e.mutate(ctx, orderID, func(order *domain.Order) error {
		if err := authorizePayment(actor, order); err != nil {
			return err
		}
		now := e.now().UTC()
		order.UpdatedAt = now
		if chargeErr != nil {
			order.Payment.Status = domain.PaymentStatusFailed
			return nil
		}
		order.Payment.Status = domain.PaymentStatusCompleted
		order.Payment.TransactionID = txID
		order.Payment.PaidAt = &now
		return nil
	}, e.update)
	if err != nil {
		if chargeErr == nil {
			// Списали, но сохранить не смогли (например, заказ отменили параллельно).
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id":       orderID,
				"transaction_id": txID,
				"anomaly":        true,
			}).Error("charge succeeded but payment was not recorded, refunding")
			if refundErr := e.payments.Refund(context.WithoutCancel(ctx), current); refundErr != nil {
				e.metrics.RecordAnomaly("payment")
			}
		}
		return domain.Order{}, err
	}

	if chargeErr != nil {
		e.record(ctx, &order, domain.TimelinePaymentFailed, actor.ID, chargeErr.Error())
		return order, chargeErr
	}
	e.record(ctx, &order, domain.TimelinePaymentCompleted, actor.ID, order.Payment.TransactionID)
	e.notify(ctx, domain.NotificationOrderPaid, &order)
	return order, nil
}

// refund возвращает оплату отменённого заказа. Сбой возврата не отменяет отмену:
// он логируется и попадает в историю для ручной обработки.
func (e *Engine) refund(ctx context.Context, actor domain.Actor, order domain.Order) domain.Order {
	if e.payments == nil {
		return order
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.payments.Refund(ctx, order); err != nil {
		e.metrics.RecordAnomaly("refund")
		e.logger.WithError(err).WithField("order_id", order.ID).Error("refund for cancelled order failed")
		return order
	}

	refunded, err := e.mutate(ctx, order.ID, func(o *domain.Order) error {
		if o.Payment.Status != domain.PaymentStatusCompleted {
			return domain.ErrPaymentNotPending
		}
		o.Payment.Status = domain.PaymentStatusRefunded
		o.UpdatedAt = e.now().UTC()
		return nil
	}, e.update)
	if err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Error("refund succeeded but was not recorded")
		return order
	}
	e.record(ctx, &refunded, domain.TimelinePaymentRefunded, actor.ID, "")
	return refunded
}

// mutate загружает заказ, применяет change к копии и сохраняет через persist.
// При конфликте версий перечитывает заказ и повторяет с экспоненциальной задержкой,
// заново проверяя допустимость изменения на свежем состоянии.
func (e *Engine) mutate(
	ctx context.Context,
	orderID string,
	change func(order *domain.Order) error,
	persist func(ctx context.Context, order domain.Order) error,
) (domain.Order, error) {
	retry := e.cfg.Retry
	for attempt := 1; ; attempt++ {
		current, err := e.load(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}

		next := current.Clone()
		if err := change(&next); err != nil {
			return domain.Order{}, err
		}

		err = e.callStore(ctx, func(ctx context.Context) error {
			return persist(ctx, next)
		})
		if err == nil {
			next.Version = current.Version + 1
			return next, nil
		}
		if !domain.IsVersionConflict(err) || attempt >= retry.MaxAttempts {
			return domain.Order{}, err
		}

		e.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
			"version":  current.Version,
		}).Warn("version conflict detected, retrying")
		if err := sleep(ctx, retry.Delay(attempt)); err != nil {
			return domain.Order{}, storeError(err)
		}
	}
}

func (e *Engine) update(ctx context.Context, order domain.Order) error {
	return e.orders.Update(ctx, order)
}

// persistCancel сохраняет отмену и возвращает остатки.
// Версия проверяется до возврата остатков, поэтому возврат выполняется ровно один раз.
func (e *Engine) persistCancel(ctx context.Context, order domain.Order) error {
	if e.tx != nil {
		return e.tx.CancelOrder(ctx, order)
	}
	if err := e.orders.Update(ctx, order); err != nil {
		return err
	}
	e.releaseStock(context.WithoutCancel(ctx), order)
	return nil
}

// releaseStock возвращает остатки по всем позициям. Сбой по отдельной позиции не
// откатывает отмену: это аномалия для ручной сверки.
func (e *Engine) releaseStock(ctx context.Context, order domain.Order) {
	for _, item := range order.Items {
		err := e.callStore(ctx, func(ctx context.Context) error {
			return e.catalog.Release(ctx, item.ProductID, item.Quantity)
		})
		if err != nil {
			e.metrics.RecordAnomaly("cancel")
			e.logger.WithError(err).WithFields(log.Fields{
				"anomaly":    true,
				"order_id":   order.ID,
				"product_id": item.ProductID,
				"qty":        item.Quantity,
			}).Error("stock release failed for cancelled order, manual reconciliation required")
		}
	}
}

func authorizeTransition(actor domain.Actor, order *domain.Order, target domain.OrderStatus) error {
	if !actor.CanTransition(order, target) {
		return fmt.Errorf("%w: %s cannot move order to %s", domain.ErrNotAuthorized, actor.ID, target)
	}
	return nil
}

func authorizePayment(actor domain.Actor, order *domain.Order) error {
	if actor.ID == "" || (!actor.IsAdmin() && order.BuyerID != actor.ID) {
		return fmt.Errorf("%w: only the buyer can pay for the order", domain.ErrNotAuthorized)
	}
	if order.Status == domain.OrderStatusCancelled {
		return fmt.Errorf("%w: order is cancelled", domain.ErrPaymentNotPending)
	}
	switch order.Payment.Status {
	case domain.PaymentStatusPending, domain.PaymentStatusFailed:
		return nil
	default:
		return fmt.Errorf("%w: payment is %s", domain.ErrPaymentNotPending, order.Payment.Status)
	}
}
