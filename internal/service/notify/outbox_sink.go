// Package notify превращает уведомления о заказах в записи outbox.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

// AggregateOrder — тип агрегата для outbox-записей заказа.
const AggregateOrder = "order"

// Payload — тело уведомления, которое уходит получателям.
type Payload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     string    `json:"buyer_id"`
	SellerIDs   []string  `json:"seller_ids"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Occurred    time.Time `json:"occurred_at"`
}

// OutboxSink сохраняет уведомления в outbox; доставкой занимается outbox worker.
type OutboxSink struct {
	repo domain.OutboxRepository
}

// NewOutboxSink создаёт sink поверх outbox-репозитория.
func NewOutboxSink(repo domain.OutboxRepository) *OutboxSink {
	return &OutboxSink{repo: repo}
}

// Notify ставит уведомление в очередь на публикацию.
func (s *OutboxSink) Notify(ctx context.Context, n domain.Notification) error {
	if n.Type == "" || n.OrderID == "" {
		return fmt.Errorf("%w: notification type and order id are required", domain.ErrInvalidInput)
	}

	sellers := n.SellerIDs
	if sellers == nil {
		sellers = []string{}
	}
	payload, err := json.Marshal(Payload{
		OrderID:     n.OrderID,
		OrderNumber: n.OrderNumber,
		BuyerID:     n.BuyerID,
		SellerIDs:   sellers,
		Status:      string(n.Status),
		Reason:      n.Reason,
		Occurred:    n.Occurred,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = s.repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   n.OrderID,
		EventType:     n.Type,
		Payload:       payload,
		CreatedAt:     n.Occurred,
	})
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

var _ domain.NotificationSink = (*OutboxSink)(nil)
