package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
// Все методы безопасны для nil-получателя: движок без метрик просто ничего не пишет.
type OrderMetrics struct {
	ordersCreated      prometheus.Counter
	createFailures     *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	stockConflicts     prometheus.Counter
	stockReleased      prometheus.Counter
	anomalies          *prometheus.CounterVec
	checkoutDuration   prometheus.Histogram
	timelineEvents     prometheus.Counter
	notificationErrors prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в глобальном реестре.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном реестре (изолированные тесты).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "agro_orders_created_total",
			Help: "Total number of orders placed successfully",
		}),
		createFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "agro_order_create_failures_total",
			Help: "Total number of rejected checkouts by error kind",
		}, []string{"kind"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "agro_order_transitions_total",
			Help: "Total number of applied status transitions by target status",
		}, []string{"status"}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "agro_stock_conflicts_total",
			Help: "Total number of conditional stock decrements rejected for insufficient stock",
		}),
		stockReleased: registerCounter(registerer, prometheus.CounterOpts{
			Name: "agro_stock_released_units_total",
			Help: "Total number of stock units returned by cancellations",
		}),
		anomalies: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "agro_reservation_anomalies_total",
			Help: "Stock reservation/release failures that require manual reconciliation",
		}, []string{"stage"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "agro_checkout_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "agro_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		notificationErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "agro_notification_errors_total",
			Help: "Total number of notifications the sink refused",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик оформленных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordCreateFailure учитывает отклонённое оформление с видом ошибки.
func (m *OrderMetrics) RecordCreateFailure(kind string) {
	if m == nil {
		return
	}
	m.createFailures.WithLabelValues(kind).Inc()
}

// RecordTransition учитывает применённый переход статуса.
func (m *OrderMetrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// RecordStockConflict учитывает отказ условного списания остатка.
func (m *OrderMetrics) RecordStockConflict() {
	if m == nil {
		return
	}
	m.stockConflicts.Inc()
}

// RecordStockReleased учитывает возвращённые на склад единицы.
func (m *OrderMetrics) RecordStockReleased(units int) {
	if m == nil {
		return
	}
	m.stockReleased.Add(float64(units))
}

// RecordAnomaly учитывает рассинхронизацию заказа и остатков.
func (m *OrderMetrics) RecordAnomaly(stage string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(stage).Inc()
}

// RecordCheckoutDuration записывает время оформления заказа.
func (m *OrderMetrics) RecordCheckoutDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordNotificationError учитывает сбой отправки уведомления.
func (m *OrderMetrics) RecordNotificationError() {
	if m == nil {
		return
	}
	m.notificationErrors.Inc()
}
