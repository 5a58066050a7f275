package cart

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/order"
)

// Service управляет корзиной покупателя и оформлением заказов.
// Checkout группирует позиции по поставщикам и создаёт по одному заказу
// на поставщика через сервис заказов.
type Service struct {
	carts  domain.CartRepository
	orders *order.Service
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис корзины.
func NewService(carts domain.CartRepository, orders *order.Service, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}
	return &Service{
		carts:  carts,
		orders: orders,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddItem добавляет позицию в корзину или увеличивает количество существующей.
func (s *Service) AddItem(customerID int64, item domain.CartItem) (domain.Cart, error) {
	if item.Qty <= 0 {
		return domain.Cart{}, &domain.OperationError{Op: "add_cart_item", Reason: "quantity must be positive"}
	}
	if item.UnitPriceMinor < 0 {
		return domain.Cart{}, &domain.OperationError{Op: "add_cart_item", Reason: "unit price must be non-negative"}
	}

	cart, err := s.carts.Get(customerID)
	if err != nil {
		if !domain.IsNotFound(err) {
			return domain.Cart{}, err
		}
		cart = domain.Cart{CustomerID: customerID}
	}

	item.AddedAt = s.now()
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID && cart.Items[i].SupplierID == item.SupplierID {
			cart.Items[i].Qty += item.Qty
			cart.Items[i].UnitPriceMinor = item.UnitPriceMinor
			cart.Items[i].VatRateBp = item.VatRateBp
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, item)
	}
	cart.UpdatedAt = s.now()

	if err := s.carts.Put(cart); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

// UpdateItem меняет количество позиции. Нулевое количество удаляет позицию.
func (s *Service) UpdateItem(customerID, productID, supplierID int64, qty int32) (domain.Cart, error) {
	if qty < 0 {
		return domain.Cart{}, &domain.OperationError{Op: "update_cart_item", Reason: "quantity must be non-negative"}
	}

	cart, err := s.carts.Get(customerID)
	if err != nil {
		return domain.Cart{}, err
	}

	found := false
	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID == productID && item.SupplierID == supplierID {
			found = true
			if qty == 0 {
				continue
			}
			item.Qty = qty
		}
		items = append(items, item)
	}
	if !found {
		return domain.Cart{}, domain.ErrCartItemNotFound
	}
	cart.Items = items
	cart.UpdatedAt = s.now()

	if err := s.carts.Put(cart); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(customerID, productID, supplierID int64) (domain.Cart, error) {
	return s.UpdateItem(customerID, productID, supplierID, 0)
}

// Get возвращает корзину покупателя; отсутствие корзины — пустая корзина.
func (s *Service) Get(customerID int64) (domain.Cart, error) {
	cart, err := s.carts.Get(customerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Cart{CustomerID: customerID}, nil
		}
		return domain.Cart{}, err
	}
	return cart, nil
}

// Clear удаляет корзину покупателя.
func (s *Service) Clear(customerID int64) error {
	return s.carts.Delete(customerID)
}

// CheckoutInput описывает параметры оформления заказов из корзины.
type CheckoutInput struct {
	DeliveryAddress     string
	DesiredDeliveryDate time.Time
}

// Checkout превращает корзину в заказы: по одному на каждого поставщика.
// Корзина очищается только после успешного создания всех заказов.
func (s *Service) Checkout(customerID int64, input CheckoutInput) ([]domain.Order, error) {
	cart, err := s.carts.Get(customerID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, &domain.OperationError{Op: "checkout", Reason: "cart is empty"}
	}

	grouped := cart.ItemsBySupplier()
	orders := make([]domain.Order, 0, len(grouped))
	for supplierID, items := range grouped {
		createInput := order.CreateOrderInput{
			SupplierID:          supplierID,
			CustomerID:          customerID,
			DeliveryAddress:     input.DeliveryAddress,
			DesiredDeliveryDate: input.DesiredDeliveryDate,
		}
		for _, item := range items {
			createInput.Items = append(createInput.Items, order.CreateItemInput{
				ProductID:      item.ProductID,
				Qty:            item.Qty,
				UnitPriceMinor: item.UnitPriceMinor,
				VatRateBp:      item.VatRateBp,
			})
		}

		created, err := s.orders.Create(createInput)
		if err != nil {
			return orders, fmt.Errorf("create order for supplier %d: %w", supplierID, err)
		}
		orders = append(orders, created)

		s.logger.WithFields(log.Fields{
			"customer_id":  customerID,
			"supplier_id":  supplierID,
			"order_id":     created.ID,
			"order_number": created.OrderNumber,
		}).Info("order created from cart")
	}

	if err := s.carts.Delete(customerID); err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("failed to clear cart after checkout")
	}
	return orders, nil
}
