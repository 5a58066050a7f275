package domain

import "time"

// AggregateType задаёт пространство имён идентификаторов в журнале событий.
type AggregateType string

const (
	AggregateTypeOrder AggregateType = "Order"
	AggregateTypeStock AggregateType = "Stock"
	AggregateTypeCart  AggregateType = "Cart"
)

// Типы доменных событий. Журнал хранит их как строки, чтобы история
// оставалась читаемой без кода.
const (
	EventOrderCreated          = "OrderCreated"
	EventOrderConfirmed        = "OrderConfirmed"
	EventOrderRejected         = "OrderRejected"
	EventOrderAwaitingPayment  = "OrderAwaitingPayment"
	EventPaymentProofUploaded  = "PaymentProofUploaded"
	EventPaymentVerified       = "PaymentVerified"
	EventPaymentProblem        = "PaymentProblem"
	EventOrderAwaitingShipment = "OrderAwaitingShipment"
	EventOrderShipped          = "OrderShipped"
	EventOrderDelivered        = "OrderDelivered"
	EventOrderClosed           = "OrderClosed"

	EventStockReserved          = "StockReserved"
	EventStockReservationFailed = "StockReservationFailed"
	EventStockReleased          = "StockReleased"
	EventStockShipped           = "StockShipped"
)

// Event — запись append-only журнала событий.
// Для одного AggregateID версии образуют непрерывную последовательность с 1;
// это и есть optimistic-concurrency guard: запись с неактуальной
// expectedVersion отклоняется с ErrConcurrencyConflict.
type Event struct {
	ID            int64
	AggregateID   string
	AggregateType AggregateType
	Version       int64
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	// PublishedAt заполняется relay-воркером после доставки события в брокер.
	// Бизнес-поля события (payload, version) после вставки не меняются.
	PublishedAt time.Time
}

// Published сообщает, доставлено ли событие в брокер.
func (e Event) Published() bool {
	return !e.PublishedAt.IsZero()
}
