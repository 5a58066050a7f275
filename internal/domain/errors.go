package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора поставщика.
	ErrSupplierRequired = errors.New("supplier_id is required")
	// Ошибка отсутствующего идентификатора покупателя.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего адреса доставки.
	ErrDeliveryAddressRequired = errors.New("delivery address is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item unit price must be non-negative")
	// Ошибка при отрицательной ставке НДС.
	ErrItemVatRateInvalid = errors.New("item vat rate must be non-negative")
	// Ошибка несоответствия итоговой суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order totals do not match items sum")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInventoryNotFound возвращается, если по товару нет складской записи.
	ErrInventoryNotFound = errors.New("inventory record not found")
	// ErrChannelNotFound возвращается, если чат-канал по заказу отсутствует.
	ErrChannelNotFound = errors.New("chat channel not found")
	// ErrCartNotFound возвращается, если у покупателя нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartItemNotFound возвращается при обращении к отсутствующей позиции корзины.
	ErrCartItemNotFound = errors.New("cart item not found")

	// ErrEventNotFound возвращается при обращении к отсутствующему событию журнала.
	ErrEventNotFound = errors.New("event not found")

	// ErrConcurrencyConflict сигнализирует о конфликте версий в журнале событий:
	// expectedVersion не совпал с текущей версией агрегата.
	ErrConcurrencyConflict = errors.New("aggregate version conflict")
	// ErrInsufficientStock — на складе недостаточно свободного остатка под резерв.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationNotHeld — попытка снять или отгрузить больше, чем зарезервировано.
	ErrReservationNotHeld = errors.New("reserved quantity is less than requested")

	// ErrInvalidStateTransition — запрошенный переход отсутствует в графе статусов.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInvalidOperation — операция отклонена по правам доступа или владению.
	ErrInvalidOperation = errors.New("invalid operation")
)

// StateTransitionError описывает недопустимый переход между статусами заказа.
type StateTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// Is делает ошибку совместимой с errors.Is(err, ErrInvalidStateTransition).
func (e *StateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// OperationError описывает отказ в операции: не владелец заказа, не та роль и т.п.
type OperationError struct {
	Op     string
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s rejected: %s", e.Op, e.Reason)
}

// Is делает ошибку совместимой с errors.Is(err, ErrInvalidOperation).
func (e *OperationError) Is(target error) bool {
	return target == ErrInvalidOperation
}

// IsConcurrencyConflict проверяет, является ли ошибка конфликтом версий.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsNotFound группирует ошибки отсутствия ресурса для HTTP-слоя.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrCartItemNotFound)
}
