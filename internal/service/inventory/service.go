package inventory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

// Service управляет складскими остатками в рамках саги.
// Идемпотентность команд обеспечивается журналом событий: для пары
// (заказ, товар) исход резервирования записывается ровно один раз, и
// повтор команды сверяется с историей, а не выполняется заново.
type Service struct {
	repo    domain.InventoryRepository
	events  domain.EventStore
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewService создаёт сервис склада.
func NewService(repo domain.InventoryRepository, events domain.EventStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "inventory-service")
	}
	return &Service{
		repo:    repo,
		events:  events,
		logger:  logger,
		metrics: metrics.NewOrderMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(repo domain.InventoryRepository, events domain.EventStore, logger *log.Entry) *Service {
	svc := NewService(repo, events, logger)
	svc.metrics = nil
	return svc
}

// stockAggregateID задаёт идентификатор агрегата склада в журнале:
// по одной последовательности событий на пару (заказ, товар).
func stockAggregateID(orderID, productID int64) string {
	return strconv.FormatInt(orderID, 10) + ":" + strconv.FormatInt(productID, 10)
}

// Reserve резервирует позиции заказа. Для каждой позиции исход пишется в
// журнал: StockReserved или StockReservationFailed. Повтор команды для уже
// обработанной позиции пропускается.
func (s *Service) Reserve(orderID int64, lines []kafka.StockLine) error {
	for _, line := range lines {
		key := stockAggregateID(orderID, line.ProductID)

		version, err := s.events.CurrentVersion(domain.AggregateTypeStock, key)
		if err != nil {
			return fmt.Errorf("check stock history: %w", err)
		}
		if version > 0 {
			// Команда уже обработана: redelivery не трогает остатки.
			if s.metrics != nil {
				s.metrics.RecordDuplicateEvent()
			}
			s.logger.WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": line.ProductID,
			}).Debug("reserve command already processed, skipping")
			continue
		}

		ok, err := s.repo.Reserve(line.ProductID, line.Qty)
		if err != nil && !domain.IsNotFound(err) {
			return fmt.Errorf("reserve product %d: %w", line.ProductID, err)
		}

		eventType := domain.EventStockReserved
		reason := ""
		switch {
		case domain.IsNotFound(err):
			eventType = domain.EventStockReservationFailed
			reason = "product is not stocked"
		case !ok:
			eventType = domain.EventStockReservationFailed
			reason = "insufficient free stock"
		}

		if appendErr := s.appendStockEvent(key, eventType, orderID, line, reason, 0); appendErr != nil {
			if domain.IsConcurrencyConflict(appendErr) {
				// Параллельный consumer записал исход первым. Журнал — gate:
				// в силе остаётся только резерв выигравшего, свой откатываем.
				if eventType == domain.EventStockReserved {
					if _, undoErr := s.repo.Release(line.ProductID, line.Qty); undoErr != nil {
						return fmt.Errorf("undo duplicate reservation for product %d: %w", line.ProductID, undoErr)
					}
				}
				if s.metrics != nil {
					s.metrics.RecordDuplicateEvent()
				}
				continue
			}
			return appendErr
		}

		if s.metrics != nil {
			result := "reserved"
			if eventType == domain.EventStockReservationFailed {
				result = "failed"
			}
			s.metrics.RecordReservation(result)
		}
		s.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"product_id": line.ProductID,
			"qty":        line.Qty,
			"event":      eventType,
		}).Info("stock command processed")
	}
	return nil
}

// Release снимает резерв по позициям заказа. Снимается только то, что было
// зарезервировано и ещё не снято и не отгружено.
func (s *Service) Release(orderID int64, lines []kafka.StockLine) error {
	return s.finishReservation(orderID, lines, domain.EventStockReleased,
		func(productID int64, qty int32) (bool, error) {
			return s.repo.Release(productID, qty)
		},
		func(productID int64, qty int32) error {
			_, err := s.repo.Reserve(productID, qty)
			return err
		})
}

// Ship списывает зарезервированные позиции при отгрузке заказа.
func (s *Service) Ship(orderID int64, lines []kafka.StockLine) error {
	return s.finishReservation(orderID, lines, domain.EventStockShipped,
		func(productID int64, qty int32) (bool, error) {
			return s.repo.Ship(productID, qty)
		},
		func(productID int64, qty int32) error {
			// Отгрузка списала и остаток, и резерв — возвращаем оба.
			if err := s.repo.AddStock(productID, qty); err != nil {
				return err
			}
			_, err := s.repo.Reserve(productID, qty)
			return err
		})
}

// finishReservation завершает резерв (release или ship). Gate — запись
// исхода в журнал: проигравший гонку за версию откатывает свою мутацию
// остатков через undo, иначе повтор команды списал бы резерв дважды.
func (s *Service) finishReservation(orderID int64, lines []kafka.StockLine, eventType string, apply func(int64, int32) (bool, error), undo func(int64, int32) error) error {
	for _, line := range lines {
		key := stockAggregateID(orderID, line.ProductID)

		history, err := s.events.History(domain.AggregateTypeStock, key)
		if err != nil {
			return fmt.Errorf("load stock history: %w", err)
		}
		if !reservationHeld(history) {
			// Резерва нет (не было, не удался или уже снят) — команда исчерпана.
			if s.metrics != nil && len(history) > 0 {
				s.metrics.RecordDuplicateEvent()
			}
			continue
		}

		ok, err := apply(line.ProductID, line.Qty)
		if err != nil {
			return fmt.Errorf("apply %s for product %d: %w", eventType, line.ProductID, err)
		}
		if !ok {
			s.logger.WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": line.ProductID,
				"qty":        line.Qty,
				"event":      eventType,
			}).Warn("reserved quantity is less than requested, skipping")
			continue
		}

		if appendErr := s.appendStockEvent(key, eventType, orderID, line, "", int64(len(history))); appendErr != nil {
			if domain.IsConcurrencyConflict(appendErr) {
				if undoErr := undo(line.ProductID, line.Qty); undoErr != nil {
					return fmt.Errorf("undo duplicate %s for product %d: %w", eventType, line.ProductID, undoErr)
				}
				if s.metrics != nil {
					s.metrics.RecordDuplicateEvent()
				}
				continue
			}
			return appendErr
		}

		s.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"product_id": line.ProductID,
			"qty":        line.Qty,
			"event":      eventType,
		}).Info("stock command processed")
	}
	return nil
}

// reservationHeld сообщает, удерживается ли резерв по истории агрегата:
// резерв взят первой записью и ещё не снят и не отгружен.
func reservationHeld(history []domain.Event) bool {
	if len(history) == 0 || history[0].EventType != domain.EventStockReserved {
		return false
	}
	for _, event := range history[1:] {
		if event.EventType == domain.EventStockReleased || event.EventType == domain.EventStockShipped {
			return false
		}
	}
	return true
}

// AllReserved проверяет по журналу, что все позиции заказа зарезервированы.
func (s *Service) AllReserved(orderID int64, lines []kafka.StockLine) (bool, error) {
	for _, line := range lines {
		history, err := s.events.History(domain.AggregateTypeStock, stockAggregateID(orderID, line.ProductID))
		if err != nil {
			return false, fmt.Errorf("load stock history: %w", err)
		}
		if len(history) == 0 || history[0].EventType != domain.EventStockReserved {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) appendStockEvent(key, eventType string, orderID int64, line kafka.StockLine, reason string, expectedVersion int64) error {
	payload, err := json.Marshal(kafka.StockResult{
		EventType: eventType,
		OrderID:   orderID,
		ProductID: line.ProductID,
		Qty:       line.Qty,
		Reason:    reason,
		Timestamp: s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal stock event: %w", err)
	}

	_, err = s.events.Append(domain.Event{
		AggregateType: domain.AggregateTypeStock,
		AggregateID:   key,
		EventType:     eventType,
		Payload:       payload,
	}, expectedVersion)
	return err
}

// AddStock увеличивает физический остаток (поступление на склад).
func (s *Service) AddStock(productID int64, qty int32) error {
	if qty <= 0 {
		return &domain.OperationError{Op: "add_stock", Reason: "quantity must be positive"}
	}
	if err := s.repo.AddStock(productID, qty); err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"product_id": productID, "qty": qty}).Info("stock added")
	return nil
}

// Upsert создаёт или замещает складскую запись.
func (s *Service) Upsert(record domain.InventoryRecord) error {
	if record.Available < 0 || record.Reserved < 0 || record.Reserved > record.Available {
		return &domain.OperationError{Op: "upsert_inventory", Reason: "invalid stock quantities"}
	}
	return s.repo.Upsert(record)
}

// Get возвращает складскую запись по товару.
func (s *Service) Get(productID int64) (domain.InventoryRecord, error) {
	return s.repo.Get(productID)
}

// LowStock возвращает товары со свободным остатком ниже порога.
func (s *Service) LowStock() ([]domain.InventoryRecord, error) {
	return s.repo.LowStock(domain.DefaultLowStockThreshold)
}

// OutOfStock возвращает товары без свободного остатка.
func (s *Service) OutOfStock() ([]domain.InventoryRecord, error) {
	return s.repo.OutOfStock()
}
