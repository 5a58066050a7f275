package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
	"github.com/vladislavdragonenkov/orderflow/internal/service/chat"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderflow/internal/service/order"
)

// CommandProducer публикует команды и события саги в брокер.
// Реализуется kafka.Producer; в тестах подменяется стабом.
type CommandProducer interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// Choreographer реагирует на события журналов заказов и склада и двигает
// сагу вперёд. Центрального оркестратора нет: каждый шаг — реакция на
// уже состоявшееся событие, а компенсации (release) запускаются по факту
// отказа. Все реакции идемпотентны, потому что события доставляются
// как минимум один раз.
type Choreographer struct {
	orders    *order.Service
	orderRepo domain.OrderRepository
	inventory *inventory.Service
	chat      *chat.Service
	producer  CommandProducer
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
}

// NewChoreographer создаёт обработчик событий саги.
func NewChoreographer(
	orders *order.Service,
	orderRepo domain.OrderRepository,
	inventorySvc *inventory.Service,
	chatSvc *chat.Service,
	producer CommandProducer,
	logger *log.Entry,
) *Choreographer {
	if logger == nil {
		logger = log.WithField("component", "saga")
	}
	return &Choreographer{
		orders:    orders,
		orderRepo: orderRepo,
		inventory: inventorySvc,
		chat:      chatSvc,
		producer:  producer,
		logger:    logger,
		metrics:   metrics.NewOrderMetrics(),
	}
}

// NewChoreographerWithoutMetrics создаёт обработчик без метрик (для тестов).
func NewChoreographerWithoutMetrics(
	orders *order.Service,
	orderRepo domain.OrderRepository,
	inventorySvc *inventory.Service,
	chatSvc *chat.Service,
	producer CommandProducer,
	logger *log.Entry,
) *Choreographer {
	c := NewChoreographer(orders, orderRepo, inventorySvc, chatSvc, producer, logger)
	c.metrics = nil
	return c
}

// HandleMessage — обработчик для kafka.Consumer: принимает события из
// topics заказов и склада.
func (c *Choreographer) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseEventEnvelope(message)
	if err != nil {
		return err
	}
	return c.HandleEnvelope(ctx, envelope)
}

// HandleEnvelope обрабатывает одно событие журнала.
func (c *Choreographer) HandleEnvelope(ctx context.Context, envelope *kafka.EventEnvelope) error {
	switch domain.AggregateType(envelope.AggregateType) {
	case domain.AggregateTypeOrder:
		return c.handleOrderEvent(ctx, envelope)
	case domain.AggregateTypeStock:
		return c.handleStockEvent(ctx, envelope)
	default:
		c.logger.WithFields(log.Fields{
			"aggregate_type": envelope.AggregateType,
			"event_type":     envelope.EventType,
		}).Debug("ignoring event of unknown aggregate type")
		return nil
	}
}

func (c *Choreographer) handleOrderEvent(_ context.Context, envelope *kafka.EventEnvelope) error {
	var payload kafka.OrderEventPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal order event payload: %w", err)
	}

	logger := c.logger.WithFields(log.Fields{
		"order_id":   payload.OrderID,
		"event_type": envelope.EventType,
	})

	switch envelope.EventType {
	case domain.EventOrderCreated:
		_, err := c.chat.EnsureChannel(payload.OrderID, payload.SupplierID, payload.CustomerID, payload.OrderNumber)
		return err

	case domain.EventOrderConfirmed:
		logger.Info("order confirmed, requesting stock reservation")
		return c.sendStockCommand(kafka.StockCommandReserve, payload.OrderID, payload.Lines)

	case domain.EventPaymentVerified:
		_, err := c.orders.AdvanceToAwaitingShipment(payload.OrderID)
		return c.swallowStaleTransition(err, logger)

	case domain.EventOrderShipped:
		logger.Info("order shipped, consuming stock reservation")
		return c.sendStockCommand(kafka.StockCommandShip, payload.OrderID, payload.Lines)

	case domain.EventOrderRejected:
		logger.Info("order rejected, compensating")
		if err := c.sendStockCommand(kafka.StockCommandRelease, payload.OrderID, payload.Lines); err != nil {
			return err
		}
		return c.chat.Deactivate(payload.OrderID)

	case domain.EventOrderClosed:
		return c.chat.Deactivate(payload.OrderID)
	}

	return nil
}

func (c *Choreographer) handleStockEvent(_ context.Context, envelope *kafka.EventEnvelope) error {
	var result kafka.StockResult
	if err := json.Unmarshal(envelope.Payload, &result); err != nil {
		return fmt.Errorf("unmarshal stock result: %w", err)
	}

	logger := c.logger.WithFields(log.Fields{
		"order_id":   result.OrderID,
		"product_id": result.ProductID,
		"event_type": envelope.EventType,
	})

	switch envelope.EventType {
	case domain.EventStockReserved:
		ord, err := c.orderRepo.Get(result.OrderID)
		if err != nil {
			if domain.IsNotFound(err) {
				logger.Warn("stock reserved for unknown order")
				return nil
			}
			return err
		}

		lines := orderLines(ord)
		allReserved, err := c.inventory.AllReserved(result.OrderID, lines)
		if err != nil {
			return err
		}
		if !allReserved {
			// Ждём исходов по остальным позициям.
			return nil
		}

		_, err = c.orders.AdvanceToAwaitingPayment(result.OrderID)
		return c.swallowStaleTransition(err, logger)

	case domain.EventStockReservationFailed:
		reason := result.Reason
		if reason == "" {
			reason = "stock reservation failed"
		}
		rejected, err := c.orders.RejectBySystem(result.OrderID, reason)
		if err != nil {
			return c.swallowStaleTransition(err, logger)
		}
		// Снимаем резервы по остальным позициям заказа; по неудавшейся
		// позиции резерва нет, склад это увидит по своей истории.
		return c.sendStockCommand(kafka.StockCommandRelease, result.OrderID, orderLines(rejected))
	}

	return nil
}

// swallowStaleTransition гасит ошибки недопустимого перехода: при повторной
// доставке события заказ уже мог уйти дальше по графу статусов.
func (c *Choreographer) swallowStaleTransition(err error, logger *log.Entry) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		if c.metrics != nil {
			c.metrics.RecordDuplicateEvent()
		}
		logger.WithError(err).Debug("transition already applied, skipping")
		return nil
	}
	return err
}

func (c *Choreographer) sendStockCommand(command string, orderID int64, lines []kafka.StockLine) error {
	if len(lines) == 0 {
		ord, err := c.orderRepo.Get(orderID)
		if err != nil {
			return err
		}
		lines = orderLines(ord)
	}

	cmd := kafka.NewStockCommand(command, orderID, nil)
	cmd.Lines = lines
	key := fmt.Sprintf("%d", orderID)
	if err := c.producer.PublishEvent(kafka.TopicStockCommands, key, cmd); err != nil {
		return fmt.Errorf("publish stock command %s: %w", command, err)
	}
	return nil
}

func orderLines(ord domain.Order) []kafka.StockLine {
	lines := make([]kafka.StockLine, 0, len(ord.Items))
	for _, item := range ord.Items {
		lines = append(lines, kafka.StockLine{ProductID: item.ProductID, Qty: item.Qty})
	}
	return lines
}
