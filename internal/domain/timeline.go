package domain

import "time"

// Типы событий в истории заказа.
const (
	TimelineOrderCreated       = "created"
	TimelineStatusChanged      = "status_changed"
	TimelineStockReleased      = "stock_released"
	TimelinePaymentCompleted   = "payment_completed"
	TimelinePaymentFailed      = "payment_failed"
	TimelinePaymentRefunded    = "payment_refunded"
	TimelineReservationAnomaly = "reservation_anomaly"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Status   OrderStatus
	ActorID  string
	Reason   string
	Occurred time.Time
}
