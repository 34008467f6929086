package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты оформления заказа (значения label "result").
const (
	ResultSuccess           = "success"
	ResultInsufficientStock = "insufficient_stock"
	ResultInsufficientFunds = "insufficient_funds"
	ResultNotFound          = "not_found"
	ResultBlocked           = "blocked"
	ResultEmptyCart         = "empty_cart"
	ResultError             = "error"
)

// CheckoutMetrics содержит метрики корзины, оформления и учёта заказов.
// Все методы безопасно вызывать на nil-получателе.
type CheckoutMetrics struct {
	checkoutResults  *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	checkoutInFlight prometheus.Gauge

	ordersPlaced  *prometheus.CounterVec
	orderRevenue  prometheus.Counter
	statusChanges *prometheus.CounterVec
	cartOps       *prometheus.CounterVec

	historyEvents prometheus.Counter
	outboxEvents  prometheus.Counter
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutResults: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookstore_checkout_total",
			Help: "Total number of checkout attempts grouped by result",
		}, []string{"result"})),
		checkoutDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookstore_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})),
		checkoutInFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookstore_checkout_in_flight",
			Help: "Number of checkouts currently being processed",
		})),
		ordersPlaced: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookstore_orders_placed_total",
			Help: "Total number of stored orders grouped by source",
		}, []string{"source"})),
		orderRevenue: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookstore_order_revenue_total",
			Help: "Sum of totals of orders placed through checkout",
		})),
		statusChanges: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookstore_order_status_changes_total",
			Help: "Total number of order status changes grouped by target status",
		}, []string{"status"})),
		cartOps: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookstore_cart_operations_total",
			Help: "Total number of cart operations grouped by operation",
		}, []string{"op"})),
		historyEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookstore_history_events_total",
			Help: "Total number of order history events recorded",
		})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookstore_outbox_events_total",
			Help: "Total number of events enqueued to outbox",
		})),
	}
}

// RecordCheckoutStarted увеличивает количество оформлений в работе.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.checkoutInFlight.Inc()
}

// RecordCheckoutFinished фиксирует результат и длительность оформления.
func (m *CheckoutMetrics) RecordCheckoutFinished(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkoutInFlight.Dec()
	m.checkoutResults.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordOrderPlaced учитывает сохранённый заказ; source = checkout | manual.
func (m *CheckoutMetrics) RecordOrderPlaced(source string, total float64) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(source).Inc()
	if total > 0 {
		m.orderRevenue.Add(total)
	}
}

// RecordStatusChange увеличивает счётчик смен статуса.
func (m *CheckoutMetrics) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordCartOperation увеличивает счётчик операций с корзиной.
func (m *CheckoutMetrics) RecordCartOperation(op string) {
	if m == nil {
		return
	}
	m.cartOps.WithLabelValues(op).Inc()
}

// RecordHistoryEvent увеличивает счётчик событий истории.
func (m *CheckoutMetrics) RecordHistoryEvent() {
	if m == nil {
		return
	}
	m.historyEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
