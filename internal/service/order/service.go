package order

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

const (
	maxSaveRetries = 3
	retryBaseDelay = 10 * time.Millisecond
)

// Service реализует жизненный цикл заказа: валидацию, переходы статусов
// и атомарную запись "строка заказа + событие журнала".
type Service struct {
	orders  domain.OrderRepository
	events  domain.EventStore
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewService создаёт сервис заказов.
func NewService(orders domain.OrderRepository, events domain.EventStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	return &Service{
		orders:  orders,
		events:  events,
		logger:  logger,
		metrics: metrics.NewOrderMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(orders domain.OrderRepository, events domain.EventStore, logger *log.Entry) *Service {
	svc := NewService(orders, events, logger)
	svc.metrics = nil
	return svc
}

// CreateItemInput описывает одну позицию создаваемого заказа.
type CreateItemInput struct {
	ProductID      int64
	Qty            int32
	UnitPriceMinor int64
	VatRateBp      int32
}

// CreateOrderInput описывает параметры создания заказа.
type CreateOrderInput struct {
	SupplierID          int64
	CustomerID          int64
	DeliveryAddress     string
	DesiredDeliveryDate time.Time
	Items               []CreateItemInput
}

// PaymentProofInput описывает загружаемое платёжное поручение.
type PaymentProofInput struct {
	ProofKey  string
	Reference string
	Notes     string
}

// Create создаёт заказ в статусе PENDING_CONFIRMATION и пишет первое событие.
func (s *Service) Create(input CreateOrderInput) (domain.Order, error) {
	defer s.observe("create")()

	now := s.now()
	order := domain.Order{
		OrderNumber:         generateOrderNumber(now),
		SupplierID:          input.SupplierID,
		CustomerID:          input.CustomerID,
		Status:              domain.OrderStatusPendingConfirmation,
		DeliveryAddress:     strings.TrimSpace(input.DeliveryAddress),
		DesiredDeliveryDate: input.DesiredDeliveryDate,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, item := range input.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			VatRateBp:      item.VatRateBp,
		})
	}
	order.RecalculateTotals()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("validate order: %w", errs[0])
	}

	event, err := buildEvent(domain.EventOrderCreated, order, "")
	if err != nil {
		return domain.Order{}, err
	}

	created, err := s.orders.Create(order, event)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.logger.WithFields(log.Fields{
		"order_id":     created.ID,
		"order_number": created.OrderNumber,
		"supplier_id":  created.SupplierID,
		"customer_id":  created.CustomerID,
	}).Info("order created")

	return created, nil
}

// Confirm подтверждает заказ поставщиком.
func (s *Service) Confirm(orderID, supplierID int64) (domain.Order, error) {
	defer s.observe("confirm")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToSupplier(supplierID) {
			return "", "", &domain.OperationError{Op: "confirm", Reason: "order belongs to another supplier"}
		}
		if err := order.Transition(domain.OrderStatusConfirmed, s.now()); err != nil {
			return "", "", err
		}
		return domain.EventOrderConfirmed, "", nil
	})
}

// Reject отклоняет заказ поставщиком с указанием причины.
func (s *Service) Reject(orderID, supplierID int64, reason string) (domain.Order, error) {
	defer s.observe("reject")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToSupplier(supplierID) {
			return "", "", &domain.OperationError{Op: "reject", Reason: "order belongs to another supplier"}
		}
		if err := order.Transition(domain.OrderStatusRejected, s.now()); err != nil {
			return "", "", err
		}
		order.RejectionReason = reason
		return domain.EventOrderRejected, reason, nil
	})
}

// RejectBySystem отклоняет заказ от имени саги (например, при нехватке остатков).
func (s *Service) RejectBySystem(orderID int64, reason string) (domain.Order, error) {
	defer s.observe("reject_by_system")()

	order, err := s.update(orderID, func(order *domain.Order) (string, string, error) {
		if order.Status == domain.OrderStatusRejected {
			// Повтор события: заказ уже отклонён.
			return "", "", nil
		}
		if err := order.Transition(domain.OrderStatusRejected, s.now()); err != nil {
			return "", "", err
		}
		order.RejectionReason = reason
		return domain.EventOrderRejected, reason, nil
	})
	if err == nil && s.metrics != nil {
		s.metrics.RecordSagaAutoReject()
	}
	return order, err
}

// AdvanceToAwaitingPayment переводит подтверждённый заказ к оплате.
// Вызывается сагой, когда все позиции заказа зарезервированы.
func (s *Service) AdvanceToAwaitingPayment(orderID int64) (domain.Order, error) {
	defer s.observe("advance_awaiting_payment")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if order.Status == domain.OrderStatusAwaitingPayment {
			return "", "", nil
		}
		if err := order.Transition(domain.OrderStatusAwaitingPayment, s.now()); err != nil {
			return "", "", err
		}
		return domain.EventOrderAwaitingPayment, "", nil
	})
}

// SubmitPaymentProof прикладывает платёжное поручение и отправляет заказ на проверку.
func (s *Service) SubmitPaymentProof(orderID, customerID int64, proof PaymentProofInput) (domain.Order, error) {
	defer s.observe("submit_payment_proof")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToCustomer(customerID) {
			return "", "", &domain.OperationError{Op: "submit_payment_proof", Reason: "order belongs to another customer"}
		}
		if err := order.Transition(domain.OrderStatusPendingPaymentVerification, s.now()); err != nil {
			return "", "", err
		}
		order.PaymentProofKey = proof.ProofKey
		order.PaymentReference = proof.Reference
		order.PaymentNotes = proof.Notes
		return domain.EventPaymentProofUploaded, "", nil
	})
}

// VerifyPayment подтверждает получение оплаты поставщиком.
func (s *Service) VerifyPayment(orderID, supplierID int64) (domain.Order, error) {
	defer s.observe("verify_payment")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToSupplier(supplierID) {
			return "", "", &domain.OperationError{Op: "verify_payment", Reason: "order belongs to another supplier"}
		}
		if err := order.Transition(domain.OrderStatusPaid, s.now()); err != nil {
			return "", "", err
		}
		return domain.EventPaymentVerified, "", nil
	})
}

// ReportPaymentProblem фиксирует проблему с оплатой.
func (s *Service) ReportPaymentProblem(orderID, supplierID int64, reason string) (domain.Order, error) {
	defer s.observe("report_payment_problem")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToSupplier(supplierID) {
			return "", "", &domain.OperationError{Op: "report_payment_problem", Reason: "order belongs to another supplier"}
		}
		if err := order.Transition(domain.OrderStatusPaymentProblem, s.now()); err != nil {
			return "", "", err
		}
		order.PaymentNotes = reason
		return domain.EventPaymentProblem, reason, nil
	})
}

// RetryPayment возвращает заказ из PAYMENT_PROBLEM к ожиданию оплаты.
func (s *Service) RetryPayment(orderID, customerID int64) (domain.Order, error) {
	defer s.observe("retry_payment")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToCustomer(customerID) {
			return "", "", &domain.OperationError{Op: "retry_payment", Reason: "order belongs to another customer"}
		}
		if err := order.Transition(domain.OrderStatusAwaitingPayment, s.now()); err != nil {
			return "", "", err
		}
		// Старое платёжное поручение больше не актуально.
		order.PaymentProofKey = ""
		order.PaymentReference = ""
		return domain.EventOrderAwaitingPayment, "", nil
	})
}

// AdvanceToAwaitingShipment готовит оплаченный заказ к отгрузке (шаг саги).
func (s *Service) AdvanceToAwaitingShipment(orderID int64) (domain.Order, error) {
	defer s.observe("advance_awaiting_shipment")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if order.Status == domain.OrderStatusAwaitingShipment {
			return "", "", nil
		}
		if err := order.Transition(domain.OrderStatusAwaitingShipment, s.now()); err != nil {
			return "", "", err
		}
		return domain.EventOrderAwaitingShipment, "", nil
	})
}

// MarkShipped отмечает отгрузку заказа поставщиком.
func (s *Service) MarkShipped(orderID, supplierID int64) (domain.Order, error) {
	defer s.observe("mark_shipped")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToSupplier(supplierID) {
			return "", "", &domain.OperationError{Op: "mark_shipped", Reason: "order belongs to another supplier"}
		}
		if err := order.Transition(domain.OrderStatusShipped, s.now()); err != nil {
			return "", "", err
		}
		return domain.EventOrderShipped, "", nil
	})
}

// MarkDelivered подтверждает получение заказа покупателем.
func (s *Service) MarkDelivered(orderID, customerID int64) (domain.Order, error) {
	defer s.observe("mark_delivered")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToCustomer(customerID) {
			return "", "", &domain.OperationError{Op: "mark_delivered", Reason: "order belongs to another customer"}
		}
		if err := order.Transition(domain.OrderStatusDelivered, s.now()); err != nil {
			return "", "", err
		}
		return domain.EventOrderDelivered, "", nil
	})
}

// Close завершает доставленный заказ.
func (s *Service) Close(orderID, customerID int64) (domain.Order, error) {
	defer s.observe("close")()

	return s.update(orderID, func(order *domain.Order) (string, string, error) {
		if !order.BelongsToCustomer(customerID) {
			return "", "", &domain.OperationError{Op: "close", Reason: "order belongs to another customer"}
		}
		if err := order.Transition(domain.OrderStatusClosed, s.now()); err != nil {
			return "", "", err
		}
		return domain.EventOrderClosed, "", nil
	})
}

// Get возвращает заказ, если пользователь — его поставщик или покупатель.
func (s *Service) Get(orderID, userCompanyID int64) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.BelongsToSupplier(userCompanyID) && !order.BelongsToCustomer(userCompanyID) {
		return domain.Order{}, &domain.OperationError{Op: "get", Reason: "order belongs to another company"}
	}
	return order, nil
}

// ListBySupplier возвращает заказы поставщика.
func (s *Service) ListBySupplier(supplierID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return s.orders.ListBySupplier(supplierID, status, limit)
}

// ListByCustomer возвращает заказы покупателя.
func (s *Service) ListByCustomer(customerID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return s.orders.ListByCustomer(customerID, status, limit)
}

// History возвращает полную историю событий заказа от старых к новым.
func (s *Service) History(orderID, userCompanyID int64) ([]domain.Event, error) {
	if _, err := s.Get(orderID, userCompanyID); err != nil {
		return nil, err
	}
	return s.events.History(domain.AggregateTypeOrder, strconv.FormatInt(orderID, 10))
}

// update загружает заказ, применяет мутацию и сохраняет результат вместе с
// событием. Конфликт версий перечитывает заказ и повторяет мутацию с
// exponential backoff: так теряющий писатель применяет правило к свежему
// состоянию вместо слепой перезаписи.
func (s *Service) update(orderID int64, mutate func(*domain.Order) (eventType, reason string, err error)) (domain.Order, error) {
	var lastErr error

	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		eventType, reason, err := mutate(&order)
		if err != nil {
			return domain.Order{}, err
		}
		if eventType == "" {
			// Мутация решила, что делать нечего (идемпотентный повтор).
			return order, nil
		}

		event, err := buildEvent(eventType, order, reason)
		if err != nil {
			return domain.Order{}, err
		}

		if err := s.orders.Save(order, event); err != nil {
			if domain.IsConcurrencyConflict(err) && attempt < maxSaveRetries-1 {
				lastErr = err
				if s.metrics != nil {
					s.metrics.RecordConflictRetry()
				}
				s.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
				}).Warn("version conflict detected, retrying")
				time.Sleep(retryBaseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, err
		}

		order.Version++
		if s.metrics != nil {
			s.metrics.RecordTransition(string(order.Status))
		}
		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
			"event":    eventType,
		}).Info("order updated")
		return order, nil
	}

	return domain.Order{}, lastErr
}

func (s *Service) observe(operation string) func() {
	if s.metrics == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		s.metrics.RecordOperationDuration(operation, time.Since(start))
	}
}

func buildEvent(eventType string, order domain.Order, reason string) (domain.Event, error) {
	payload, err := json.Marshal(kafka.NewOrderEventPayload(order, reason))
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return domain.Event{
		EventType: eventType,
		Payload:   payload,
	}, nil
}

// generateOrderNumber создаёт человекочитаемый номер вида ORD-<millis>-<4hex>.
func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}
