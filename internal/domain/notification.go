package domain

import "time"

// Типы уведомлений о жизненном цикле заказа.
const (
	NotificationOrderCreated       = "order.created"
	NotificationOrderStatusChanged = "order.status_changed"
	NotificationOrderCancelled     = "order.cancelled"
	NotificationOrderPaid          = "order.paid"
)

// Notification — событие для внешней доставки уведомлений (покупателю и продавцам).
type Notification struct {
	Type        string
	OrderID     string
	OrderNumber string
	BuyerID     string
	SellerIDs   []string
	Status      OrderStatus
	Reason      string
	Occurred    time.Time
}

// NewNotification собирает уведомление по текущему состоянию заказа.
func NewNotification(kind string, order *Order, now time.Time) Notification {
	return Notification{
		Type:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		SellerIDs:   order.SellerIDs(),
		Status:      order.Status,
		Reason:      order.CancelReason,
		Occurred:    now.UTC(),
	}
}
