package domain

import "time"

// CartItem — позиция корзины; ключ — пара (товар, поставщик).
type CartItem struct {
	ProductID      int64
	SupplierID     int64
	Qty            int32
	UnitPriceMinor int64
	VatRateBp      int32
	AddedAt        time.Time
}

// Cart — временная корзина покупателя перед оформлением заказа.
// Одна корзина на покупателя; checkout группирует позиции по поставщикам
// и создаёт по одному заказу на поставщика.
type Cart struct {
	CustomerID int64
	Items      []CartItem
	UpdatedAt  time.Time
}

// ItemsBySupplier группирует позиции корзины по поставщику.
func (c Cart) ItemsBySupplier() map[int64][]CartItem {
	grouped := make(map[int64][]CartItem)
	for _, item := range c.Items {
		grouped[item.SupplierID] = append(grouped[item.SupplierID], item)
	}
	return grouped
}
