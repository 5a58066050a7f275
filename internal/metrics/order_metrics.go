package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов и саги.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated    prometheus.Counter
	transitions      *prometheus.CounterVec
	conflictRetries  prometheus.Counter
	sagaAutoRejects  prometheus.Counter
	reservations     *prometheus.CounterVec
	channelsCreated  prometheus.Counter
	duplicateEvents  prometheus.Counter

	// Гистограмма времени выполнения операций
	operationDuration *prometheus.HistogramVec
}

// NewOrderMetrics создаёт новый экземпляр метрик заказов.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_orders_created_total",
			Help: "Total number of orders created",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderflow_order_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"to_status"}),
		conflictRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_version_conflict_retries_total",
			Help: "Total number of optimistic lock conflicts retried",
		}),
		sagaAutoRejects: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_saga_auto_rejects_total",
			Help: "Total number of orders auto-rejected by the saga",
		}),
		reservations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderflow_stock_reservations_total",
			Help: "Total number of stock reservation attempts grouped by result",
		}, []string{"result"}),
		channelsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_chat_channels_created_total",
			Help: "Total number of chat channels created",
		}),
		duplicateEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_duplicate_events_total",
			Help: "Total number of redelivered events skipped by idempotent consumers",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderflow_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordTransition увеличивает счётчик переходов в целевой статус.
func (m *OrderMetrics) RecordTransition(toStatus string) {
	m.transitions.WithLabelValues(toStatus).Inc()
}

// RecordConflictRetry увеличивает счётчик конфликтов версий, ушедших в retry.
func (m *OrderMetrics) RecordConflictRetry() {
	m.conflictRetries.Inc()
}

// RecordSagaAutoReject увеличивает счётчик автоотклонённых сагой заказов.
func (m *OrderMetrics) RecordSagaAutoReject() {
	m.sagaAutoRejects.Inc()
}

// RecordReservation фиксирует исход попытки резервирования.
func (m *OrderMetrics) RecordReservation(result string) {
	m.reservations.WithLabelValues(result).Inc()
}

// RecordChannelCreated увеличивает счётчик созданных чат-каналов.
func (m *OrderMetrics) RecordChannelCreated() {
	m.channelsCreated.Inc()
}

// RecordDuplicateEvent фиксирует пропущенный повтор события.
func (m *OrderMetrics) RecordDuplicateEvent() {
	m.duplicateEvents.Inc()
}

// RecordOperationDuration записывает длительность операции.
func (m *OrderMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
