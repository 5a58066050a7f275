package saga

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
)

// StockWorker исполняет команды склада из topic команд саги.
// Идемпотентность повторных доставок обеспечивает сервис склада
// через журнал событий, worker только маршрутизирует команды.
type StockWorker struct {
	inventory *inventory.Service
	logger    *log.Entry
}

// NewStockWorker создаёт обработчик команд склада.
func NewStockWorker(inventorySvc *inventory.Service, logger *log.Entry) *StockWorker {
	if logger == nil {
		logger = log.WithField("component", "stock-worker")
	}
	return &StockWorker{inventory: inventorySvc, logger: logger}
}

// HandleMessage — обработчик для kafka.Consumer.
func (w *StockWorker) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	command, err := kafka.ParseStockCommand(message)
	if err != nil {
		return err
	}
	return w.HandleCommand(ctx, command)
}

// HandleCommand выполняет одну команду склада.
func (w *StockWorker) HandleCommand(_ context.Context, command *kafka.StockCommand) error {
	w.logger.WithFields(log.Fields{
		"command":  command.Command,
		"order_id": command.OrderID,
		"lines":    len(command.Lines),
	}).Debug("stock command received")

	switch command.Command {
	case kafka.StockCommandReserve:
		return w.inventory.Reserve(command.OrderID, command.Lines)
	case kafka.StockCommandRelease:
		return w.inventory.Release(command.OrderID, command.Lines)
	case kafka.StockCommandShip:
		return w.inventory.Ship(command.OrderID, command.Lines)
	default:
		return fmt.Errorf("unknown stock command %q", command.Command)
	}
}
