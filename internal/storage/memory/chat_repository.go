package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// chatRepositoryInMemory — in-memory хранилище чат-каналов.
// Уникальность по OrderID повторяет UNIQUE-констрейнт postgres-схемы.
type chatRepositoryInMemory struct {
	mu      sync.RWMutex
	byOrder map[int64]domain.ChatChannel
	nextID  int64
}

// NewChatRepository возвращает in-memory реализацию ChatChannelRepository.
func NewChatRepository() domain.ChatChannelRepository {
	return &chatRepositoryInMemory{
		byOrder: make(map[int64]domain.ChatChannel),
	}
}

// CreateIfAbsent создаёт канал, если по заказу его ещё нет.
func (r *chatRepositoryInMemory) CreateIfAbsent(channel domain.ChatChannel) (domain.ChatChannel, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byOrder[channel.OrderID]; ok {
		return existing, false, nil
	}

	r.nextID++
	channel.ID = r.nextID
	channel.Active = true
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}
	r.byOrder[channel.OrderID] = channel
	return channel, true, nil
}

// GetByOrder возвращает канал заказа или ErrChannelNotFound.
func (r *chatRepositoryInMemory) GetByOrder(orderID int64) (domain.ChatChannel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channel, ok := r.byOrder[orderID]
	if !ok {
		return domain.ChatChannel{}, domain.ErrChannelNotFound
	}
	return channel, nil
}

// Deactivate помечает канал неактивным; повторный вызов безвреден.
func (r *chatRepositoryInMemory) Deactivate(orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channel, ok := r.byOrder[orderID]
	if !ok {
		return domain.ErrChannelNotFound
	}
	channel.Active = false
	r.byOrder[orderID] = channel
	return nil
}

// ListActiveByUser возвращает активные каналы пользователя.
func (r *chatRepositoryInMemory) ListActiveByUser(userID int64) ([]domain.ChatChannel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ChatChannel, 0)
	for _, channel := range r.byOrder {
		if channel.Active && channel.Participant(userID) {
			result = append(result, channel)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.ChatChannelRepository = (*chatRepositoryInMemory)(nil)
