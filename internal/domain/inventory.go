package domain

import "time"

// DefaultLowStockThreshold — порог, ниже которого свободный остаток считается низким.
const DefaultLowStockThreshold = 10

// InventoryRecord — складская запись по товару: физический остаток и резерв
// под неотгруженные заказы. Инвариант: 0 <= Reserved <= Available.
// Запись мутирует только склад через условные операции репозитория;
// логика заказов её напрямую не трогает.
type InventoryRecord struct {
	ProductID  int64
	SupplierID int64
	Available  int32
	Reserved   int32
	UpdatedAt  time.Time
}

// ActualAvailable возвращает свободный остаток без учёта резерва.
func (r InventoryRecord) ActualAvailable() int32 {
	return r.Available - r.Reserved
}

// HasEnough проверяет, хватает ли свободного остатка под qty.
func (r InventoryRecord) HasEnough(qty int32) bool {
	return r.ActualAvailable() >= qty
}

// LowStock сообщает, что свободный остаток ниже порога.
func (r InventoryRecord) LowStock(threshold int32) bool {
	return r.ActualAvailable() < threshold
}

// OutOfStock сообщает, что свободного остатка нет.
func (r InventoryRecord) OutOfStock() bool {
	return r.ActualAvailable() <= 0
}
