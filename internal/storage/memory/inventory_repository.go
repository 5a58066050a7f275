package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// inventoryRepositoryInMemory — in-memory склад с условными мутациями.
// Условие проверяется и применяется под одной блокировкой, как это делает
// однострочный conditional UPDATE в postgres-реализации.
type inventoryRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[int64]domain.InventoryRecord
}

// NewInventoryRepository возвращает in-memory реализацию склада.
func NewInventoryRepository() domain.InventoryRepository {
	return &inventoryRepositoryInMemory{
		items: make(map[int64]domain.InventoryRecord),
	}
}

// Get возвращает складскую запись или ErrInventoryNotFound.
func (r *inventoryRepositoryInMemory) Get(productID int64) (domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[productID]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrInventoryNotFound
	}
	return record, nil
}

// Upsert создаёт или замещает складскую запись.
func (r *inventoryRepositoryInMemory) Upsert(record domain.InventoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.UpdatedAt = time.Now().UTC()
	r.items[record.ProductID] = record
	return nil
}

// Reserve увеличивает резерв, только если свободного остатка хватает.
func (r *inventoryRepositoryInMemory) Reserve(productID int64, qty int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[productID]
	if !ok {
		return false, domain.ErrInventoryNotFound
	}
	if record.Available-record.Reserved < qty {
		return false, nil
	}
	record.Reserved += qty
	record.UpdatedAt = time.Now().UTC()
	r.items[productID] = record
	return true, nil
}

// Release уменьшает резерв, только если зарезервировано не меньше qty.
func (r *inventoryRepositoryInMemory) Release(productID int64, qty int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[productID]
	if !ok {
		return false, domain.ErrInventoryNotFound
	}
	if record.Reserved < qty {
		return false, nil
	}
	record.Reserved -= qty
	record.UpdatedAt = time.Now().UTC()
	r.items[productID] = record
	return true, nil
}

// Ship списывает qty и из остатка, и из резерва.
func (r *inventoryRepositoryInMemory) Ship(productID int64, qty int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[productID]
	if !ok {
		return false, domain.ErrInventoryNotFound
	}
	if record.Reserved < qty || record.Available < qty {
		return false, nil
	}
	record.Available -= qty
	record.Reserved -= qty
	record.UpdatedAt = time.Now().UTC()
	r.items[productID] = record
	return true, nil
}

// AddStock увеличивает физический остаток.
func (r *inventoryRepositoryInMemory) AddStock(productID int64, qty int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[productID]
	if !ok {
		return domain.ErrInventoryNotFound
	}
	record.Available += qty
	record.UpdatedAt = time.Now().UTC()
	r.items[productID] = record
	return nil
}

// LowStock возвращает записи со свободным остатком ниже порога.
func (r *inventoryRepositoryInMemory) LowStock(threshold int32) ([]domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryRecord, 0)
	for _, record := range r.items {
		if record.LowStock(threshold) {
			result = append(result, record)
		}
	}
	return result, nil
}

// OutOfStock возвращает записи без свободного остатка.
func (r *inventoryRepositoryInMemory) OutOfStock() ([]domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryRecord, 0)
	for _, record := range r.items {
		if record.OutOfStock() {
			result = append(result, record)
		}
	}
	return result, nil
}

var _ domain.InventoryRepository = (*inventoryRepositoryInMemory)(nil)
