package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
)

const (
	defaultSweepInterval = 1 * time.Minute
	defaultStuckAfter    = 5 * time.Minute
	defaultSweepBatch    = 50
)

// OrderAdvancer — подмножество сервиса заказов, нужное свиперу.
type OrderAdvancer interface {
	AdvanceToAwaitingShipment(orderID int64) (domain.Order, error)
}

// Sweeper перезапускает зависшие шаги саги. Если событие или команда
// потерялись (брокер был недоступен, consumer упал между обработкой и
// commit offset), заказ застревает в промежуточном статусе. Свипер находит
// такие заказы и повторяет шаг; повторная команда безопасна, потому что
// consumers идемпотентны.
type Sweeper struct {
	orderRepo  domain.OrderRepository
	orders     OrderAdvancer
	producer   CommandProducer
	logger     *log.Entry
	interval   time.Duration
	stuckAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// SweeperOptions задаёт параметры свипера.
type SweeperOptions struct {
	Logger     *log.Entry
	Interval   time.Duration
	StuckAfter time.Duration
	BatchSize  int
}

// NewSweeper создаёт reconciliation-свипер саги.
func NewSweeper(orderRepo domain.OrderRepository, orders OrderAdvancer, producer CommandProducer, opts SweeperOptions) *Sweeper {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "saga-sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = defaultStuckAfter
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatch
	}
	return &Sweeper{
		orderRepo:  orderRepo,
		orders:     orders,
		producer:   producer,
		logger:     logger,
		interval:   opts.Interval,
		stuckAfter: opts.StuckAfter,
		batchSize:  opts.BatchSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run запускает периодическую сверку до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один проход сверки.
func (s *Sweeper) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	olderThan := s.now().Add(-s.stuckAfter)

	s.resweepConfirmed(olderThan)
	s.resweepPaid(olderThan)
}

// resweepConfirmed повторяет команду резервирования для заказов,
// подтверждённых, но так и не дошедших до оплаты.
func (s *Sweeper) resweepConfirmed(olderThan time.Time) {
	stuck, err := s.orderRepo.ListStuck(domain.OrderStatusConfirmed, olderThan, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Warn("failed to list stuck confirmed orders")
		return
	}

	for _, ord := range stuck {
		command := kafka.NewStockCommand(kafka.StockCommandReserve, ord.ID, ord.Items)
		key := fmt.Sprintf("%d", ord.ID)
		if err := s.producer.PublishEvent(kafka.TopicStockCommands, key, command); err != nil {
			s.logger.WithError(err).WithField("order_id", ord.ID).Warn("failed to re-issue reserve command")
			continue
		}
		s.logger.WithFields(log.Fields{
			"order_id":   ord.ID,
			"updated_at": ord.UpdatedAt,
		}).Info("re-issued stock reservation for stuck order")
	}
}

// resweepPaid доводит до отгрузки заказы с подтверждённой оплатой,
// по которым реакция саги потерялась.
func (s *Sweeper) resweepPaid(olderThan time.Time) {
	stuck, err := s.orderRepo.ListStuck(domain.OrderStatusPaid, olderThan, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Warn("failed to list stuck paid orders")
		return
	}

	for _, ord := range stuck {
		if _, err := s.orders.AdvanceToAwaitingShipment(ord.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidStateTransition) {
				continue
			}
			s.logger.WithError(err).WithField("order_id", ord.ID).Warn("failed to advance stuck paid order")
			continue
		}
		s.logger.WithField("order_id", ord.ID).Info("advanced stuck paid order to awaiting shipment")
	}
}
