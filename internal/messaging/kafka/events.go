package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "orderflow.order.events"
	TopicStockCommands   = "orderflow.stock.commands"
	TopicStockEvents     = "orderflow.stock.events"
	TopicDeadLetterQueue = "orderflow.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Команды управления остатками, которые сага отправляет складу.
const (
	StockCommandReserve = "stock.reserve"
	StockCommandRelease = "stock.release"
	StockCommandShip    = "stock.ship"
)

// EventEnvelope — обёртка записи журнала событий на проводе.
// Payload несёт доменные данные как есть; consumers дедуплицируют
// по (aggregate_id, version).
type EventEnvelope struct {
	EventType     string    `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Version       int64     `json:"version"`
	Payload       []byte    `json:"payload,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StockLine — одна позиция команды или события склада.
type StockLine struct {
	ProductID int64 `json:"product_id"`
	Qty       int32 `json:"qty"`
}

// StockCommand — команда складу в рамках саги. Ключ партиционирования —
// order_id, поэтому все команды одного заказа обрабатываются по порядку.
type StockCommand struct {
	Command   string      `json:"command"`
	OrderID   int64       `json:"order_id"`
	Lines     []StockLine `json:"lines"`
	Timestamp time.Time   `json:"timestamp"`
}

// StockResult — ответ склада на команду: по одной записи на позицию.
type StockResult struct {
	EventType string    `json:"event_type"`
	OrderID   int64     `json:"order_id"`
	ProductID int64     `json:"product_id"`
	Qty       int32     `json:"qty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEventPayload — полезная нагрузка событий заказа в журнале.
type OrderEventPayload struct {
	OrderID          int64       `json:"order_id"`
	OrderNumber      string      `json:"order_number"`
	SupplierID       int64       `json:"supplier_id"`
	CustomerID       int64       `json:"customer_id"`
	Status           string      `json:"status"`
	TotalAmountMinor int64       `json:"total_amount_minor"`
	Reason           string      `json:"reason,omitempty"`
	Lines            []StockLine `json:"lines,omitempty"`
}

// NewStockCommand создаёт команду складу по позициям заказа.
func NewStockCommand(command string, orderID int64, items []domain.OrderItem) *StockCommand {
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Qty: item.Qty})
	}
	return &StockCommand{
		Command:   command,
		OrderID:   orderID,
		Lines:     lines,
		Timestamp: time.Now().UTC(),
	}
}

// NewOrderEventPayload собирает полезную нагрузку события заказа.
func NewOrderEventPayload(order domain.Order, reason string) OrderEventPayload {
	lines := make([]StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Qty: item.Qty})
	}
	return OrderEventPayload{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		SupplierID:       order.SupplierID,
		CustomerID:       order.CustomerID,
		Status:           string(order.Status),
		TotalAmountMinor: order.TotalAmountMinor,
		Reason:           reason,
		Lines:            lines,
	}
}

// TopicForAggregate возвращает topic для типа агрегата журнала.
func TopicForAggregate(aggregateType domain.AggregateType) string {
	if aggregateType == domain.AggregateTypeStock {
		return TopicStockEvents
	}
	return TopicOrderEvents
}
