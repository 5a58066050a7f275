package domain

import "time"

// OrderStatus описывает жизненный цикл заказа между поставщиком и торговой сетью.
type OrderStatus string

const (
	// OrderStatusPendingConfirmation — заказ создан покупателем, ждёт решения поставщика.
	OrderStatusPendingConfirmation OrderStatus = "PENDING_CONFIRMATION"
	// OrderStatusConfirmed — поставщик подтвердил заказ, запущено резервирование остатков.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusRejected — заказ отклонён поставщиком или сагой; терминальный статус.
	OrderStatusRejected OrderStatus = "REJECTED"
	// OrderStatusAwaitingPayment — остатки зарезервированы, покупатель должен оплатить счёт.
	OrderStatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	// OrderStatusPendingPaymentVerification — платёжное поручение загружено, ждёт проверки.
	OrderStatusPendingPaymentVerification OrderStatus = "PENDING_PAYMENT_VERIFICATION"
	// OrderStatusPaid — оплата подтверждена поставщиком.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusPaymentProblem — проверка оплаты не прошла, возможна повторная попытка.
	OrderStatusPaymentProblem OrderStatus = "PAYMENT_PROBLEM"
	// OrderStatusAwaitingShipment — заказ готовится к отгрузке.
	OrderStatusAwaitingShipment OrderStatus = "AWAITING_SHIPMENT"
	// OrderStatusShipped — заказ отгружен, зарезервированный остаток списан.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — покупатель подтвердил получение.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusClosed — заказ завершён; терминальный статус.
	OrderStatusClosed OrderStatus = "CLOSED"
)

// transitions задаёт граф допустимых переходов статусов.
// Терминальные статусы (REJECTED, CLOSED) исходящих рёбер не имеют.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingConfirmation:        {OrderStatusConfirmed, OrderStatusRejected},
	OrderStatusConfirmed:                  {OrderStatusAwaitingPayment, OrderStatusRejected},
	OrderStatusAwaitingPayment:            {OrderStatusPendingPaymentVerification},
	OrderStatusPendingPaymentVerification: {OrderStatusPaid, OrderStatusPaymentProblem},
	OrderStatusPaymentProblem:             {OrderStatusAwaitingPayment, OrderStatusRejected},
	OrderStatusPaid:                       {OrderStatusAwaitingShipment},
	OrderStatusAwaitingShipment:           {OrderStatusShipped},
	OrderStatusShipped:                    {OrderStatusDelivered},
	OrderStatusDelivered:                  {OrderStatusClosed},
}

// CanTransition проверяет, допустим ли переход from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusRejected || s == OrderStatusClosed
}

// Valid проверяет, что статус относится к известному каталогу.
func (s OrderStatus) Valid() bool {
	if _, ok := transitions[s]; ok {
		return true
	}
	return s.Terminal()
}

// OrderItem представляет одну позицию заказа. После создания заказа позиции неизменяемы.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID int64
	// ProductID — внешняя ссылка на товар каталога (без FK между сервисами).
	ProductID int64
	// Qty — количество единиц товара.
	Qty int32
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах (копейки).
	UnitPriceMinor int64
	// VatRateBp — ставка НДС в базисных пунктах (2000 = 20%).
	VatRateBp int32
}

// LineTotalMinor возвращает стоимость позиции без НДС.
func (i OrderItem) LineTotalMinor() int64 {
	return int64(i.Qty) * i.UnitPriceMinor
}

// LineVatMinor возвращает НДС позиции, округляя вниз до минимальной единицы.
func (i OrderItem) LineVatMinor() int64 {
	return i.LineTotalMinor() * int64(i.VatRateBp) / 10000
}

// Order агрегирует состояние заказа и его позиции.
// Version равна текущей версии агрегата в журнале событий.
type Order struct {
	ID                  int64
	OrderNumber         string
	SupplierID          int64
	CustomerID          int64
	Status              OrderStatus
	DeliveryAddress     string
	DesiredDeliveryDate time.Time
	TotalAmountMinor    int64
	VatAmountMinor      int64
	Items               []OrderItem
	RejectionReason     string
	PaymentProofKey     string
	PaymentReference    string
	PaymentNotes        string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RecalculateTotals пересчитывает итоговую сумму и НДС по позициям.
func (o *Order) RecalculateTotals() {
	var total, vat int64
	for _, item := range o.Items {
		total += item.LineTotalMinor()
		vat += item.LineVatMinor()
	}
	o.TotalAmountMinor = total
	o.VatAmountMinor = vat
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.SupplierID == 0 {
		errs = append(errs, ErrSupplierRequired)
	}
	if o.CustomerID == 0 {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.DeliveryAddress == "" {
		errs = append(errs, ErrDeliveryAddressRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	// Сверяем итоги заказа с суммой позиций.
	var total, vat int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.VatRateBp < 0 {
			errs = append(errs, ErrItemVatRateInvalid)
		}
		total += item.LineTotalMinor()
		vat += item.LineVatMinor()
	}
	if total != o.TotalAmountMinor || vat != o.VatAmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Transition переводит заказ в новый статус, проверяя граф переходов.
func (o *Order) Transition(to OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return &StateTransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// BelongsToSupplier проверяет, принадлежит ли заказ поставщику.
func (o *Order) BelongsToSupplier(supplierID int64) bool {
	return o.SupplierID == supplierID
}

// BelongsToCustomer проверяет, принадлежит ли заказ покупателю.
func (o *Order) BelongsToCustomer(customerID int64) bool {
	return o.CustomerID == customerID
}
