package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// EventStore — in-memory журнал событий для локальной разработки и тестов.
// Версии агрегата непрерывны и начинаются с 1; вставка с неактуальной
// expectedVersion отклоняется.
type EventStore struct {
	mu       sync.RWMutex
	events   []domain.Event
	versions map[string]int64
	nextID   int64
}

// NewEventStore создаёт пустой in-memory журнал событий.
func NewEventStore() *EventStore {
	return &EventStore{versions: make(map[string]int64)}
}

func aggregateKey(aggregateType domain.AggregateType, aggregateID string) string {
	return string(aggregateType) + ":" + aggregateID
}

// Append вставляет событие с версией expectedVersion+1.
func (s *EventStore) Append(event domain.Event, expectedVersion int64) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := aggregateKey(event.AggregateType, event.AggregateID)
	if s.versions[key] != expectedVersion {
		return domain.Event{}, domain.ErrConcurrencyConflict
	}

	s.nextID++
	event.ID = s.nextID
	event.Version = expectedVersion + 1
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.PublishedAt = time.Time{}

	s.events = append(s.events, event)
	s.versions[key] = event.Version
	return event, nil
}

// History возвращает события агрегата от старых к новым.
func (s *EventStore) History(aggregateType domain.AggregateType, aggregateID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Event, 0, 8)
	for _, event := range s.events {
		if event.AggregateType == aggregateType && event.AggregateID == aggregateID {
			result = append(result, event)
		}
	}
	return result, nil
}

// CurrentVersion возвращает максимальную версию агрегата или 0.
func (s *EventStore) CurrentVersion(aggregateType domain.AggregateType, aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.versions[aggregateKey(aggregateType, aggregateID)], nil
}

// PullUnpublished возвращает до limit недоставленных событий в порядке вставки.
func (s *EventStore) PullUnpublished(limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.Event, 0, limit)
	for _, event := range s.events {
		if event.Published() {
			continue
		}
		result = append(result, event)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// MarkPublished фиксирует доставку события в брокер.
func (s *EventStore) MarkPublished(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == id {
			if !s.events[i].Published() {
				s.events[i].PublishedAt = time.Now().UTC()
			}
			return nil
		}
	}
	return domain.ErrEventNotFound
}

// BacklogStats возвращает размер и возраст очереди недоставленных событий.
func (s *EventStore) BacklogStats() (domain.EventBacklogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.EventBacklogStats
	for _, event := range s.events {
		if event.Published() {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || event.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = event.CreatedAt
		}
	}
	return stats, nil
}

var _ domain.EventStore = (*EventStore)(nil)
