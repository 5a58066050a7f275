package chat

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

// Service управляет жизненным циклом чат-каналов заказов.
// Создание идемпотентно: на заказ существует не более одного канала,
// повтор события order.created возвращает уже созданный канал.
type Service struct {
	repo    domain.ChatChannelRepository
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// NewService создаёт сервис чат-каналов.
func NewService(repo domain.ChatChannelRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "chat-service")
	}
	return &Service{
		repo:    repo,
		logger:  logger,
		metrics: metrics.NewOrderMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(repo domain.ChatChannelRepository, logger *log.Entry) *Service {
	svc := NewService(repo, logger)
	svc.metrics = nil
	return svc
}

// EnsureChannel создаёт канал по заказу, если его ещё нет.
func (s *Service) EnsureChannel(orderID, supplierUserID, customerUserID int64, orderNumber string) (domain.ChatChannel, error) {
	channel, created, err := s.repo.CreateIfAbsent(domain.ChatChannel{
		OrderID:        orderID,
		SupplierUserID: supplierUserID,
		CustomerUserID: customerUserID,
		Name:           fmt.Sprintf("Order %s", orderNumber),
	})
	if err != nil {
		return domain.ChatChannel{}, fmt.Errorf("ensure chat channel: %w", err)
	}

	if created {
		if s.metrics != nil {
			s.metrics.RecordChannelCreated()
		}
		s.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"channel_id": channel.ID,
		}).Info("chat channel created")
	} else {
		if s.metrics != nil {
			s.metrics.RecordDuplicateEvent()
		}
		s.logger.WithField("order_id", orderID).Debug("chat channel already exists, skipping")
	}
	return channel, nil
}

// Deactivate помечает канал заказа неактивным. Отсутствие канала и повторная
// деактивация не считаются ошибками: события приходят как минимум один раз.
func (s *Service) Deactivate(orderID int64) error {
	if err := s.repo.Deactivate(orderID); err != nil {
		if domain.IsNotFound(err) {
			s.logger.WithField("order_id", orderID).Debug("no chat channel to deactivate")
			return nil
		}
		return fmt.Errorf("deactivate chat channel: %w", err)
	}
	s.logger.WithField("order_id", orderID).Info("chat channel deactivated")
	return nil
}

// GetByOrder возвращает канал заказа, проверяя участие пользователя.
func (s *Service) GetByOrder(orderID, userID int64) (domain.ChatChannel, error) {
	channel, err := s.repo.GetByOrder(orderID)
	if err != nil {
		return domain.ChatChannel{}, err
	}
	if !channel.Participant(userID) {
		return domain.ChatChannel{}, &domain.OperationError{Op: "get_channel", Reason: "user is not a channel participant"}
	}
	return channel, nil
}

// ListActive возвращает активные каналы пользователя.
func (s *Service) ListActive(userID int64) ([]domain.ChatChannel, error) {
	return s.repo.ListActiveByUser(userID)
}
