package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// cartRepositoryInMemory — in-memory хранилище корзин, одна корзина на покупателя.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[int64]domain.Cart
}

// NewCartRepository возвращает in-memory реализацию CartRepository.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{items: make(map[int64]domain.Cart)}
}

// Get возвращает корзину покупателя или ErrCartNotFound.
func (r *cartRepositoryInMemory) Get(customerID int64) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.items[customerID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	return cart, nil
}

// Put сохраняет корзину целиком.
func (r *cartRepositoryInMemory) Put(cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	r.items[cart.CustomerID] = cart
	return nil
}

// Delete удаляет корзину; отсутствие корзины не считается ошибкой.
func (r *cartRepositoryInMemory) Delete(customerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, customerID)
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
