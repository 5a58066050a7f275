package memory

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository поверх
// общего журнала событий. Атомарность "заказ + событие" обеспечивается
// порядком операций: сначала событие (оно же и optimistic-lock guard),
// затем строка заказа под локальной блокировкой.
type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[int64]domain.Order
	events *EventStore
	nextID int64
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(events *EventStore) domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:  make(map[int64]domain.Order),
		events: events,
	}
}

// Create сохраняет новый заказ и его первое событие (версия 1).
func (r *orderRepositoryInMemory) Create(order domain.Order, event domain.Event) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	order.ID = r.nextID
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
	}

	event.AggregateType = domain.AggregateTypeOrder
	event.AggregateID = strconv.FormatInt(order.ID, 10)
	if _, err := r.events.Append(event, 0); err != nil {
		return domain.Order{}, err
	}

	order.Version = 1
	// Сохраняем копию позиций, чтобы избежать мутаций извне.
	order.Items = cloneItems(order.Items)
	r.items[order.ID] = order
	return order, nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(id int64) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Items = cloneItems(order.Items)
	return order, nil
}

// GetByNumber возвращает заказ по человекочитаемому номеру.
func (r *orderRepositoryInMemory) GetByNumber(orderNumber string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.items {
		if order.OrderNumber == orderNumber {
			order.Items = cloneItems(order.Items)
			return order, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListBySupplier возвращает заказы поставщика, опционально фильтруя по статусу.
func (r *orderRepositoryInMemory) ListBySupplier(supplierID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.SupplierID == supplierID }, status, limit)
}

// ListByCustomer возвращает заказы покупателя, опционально фильтруя по статусу.
func (r *orderRepositoryInMemory) ListByCustomer(customerID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.CustomerID == customerID }, status, limit)
}

func (r *orderRepositoryInMemory) list(match func(domain.Order) bool, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !match(order) {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		order.Items = cloneItems(order.Items)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save применяет обновление с optimistic locking: событие вставляется с
// версией order.Version+1, конфликт версий разрешается журналом событий.
func (r *orderRepositoryInMemory) Save(order domain.Order, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrConcurrencyConflict
	}

	event.AggregateType = domain.AggregateTypeOrder
	event.AggregateID = strconv.FormatInt(order.ID, 10)
	if _, err := r.events.Append(event, order.Version); err != nil {
		return err
	}

	order.Version++
	order.Items = cloneItems(order.Items)
	r.items[order.ID] = order
	return nil
}

// ListStuck возвращает заказы, зависшие в статусе дольше olderThan.
func (r *orderRepositoryInMemory) ListStuck(status domain.OrderStatus, olderThan time.Time, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, limit)
	for _, order := range r.items {
		if order.Status != status || !order.UpdatedAt.Before(olderThan) {
			continue
		}
		order.Items = cloneItems(order.Items)
		result = append(result, order)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	if items == nil {
		return nil
	}
	cloned := make([]domain.OrderItem, len(items))
	copy(cloned, items)
	return cloned
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
