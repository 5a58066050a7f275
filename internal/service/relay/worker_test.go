package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

func seedEvent(t *testing.T, store *memory.EventStore, aggregateID string) domain.Event {
	t.Helper()
	event, err := store.Append(domain.Event{
		AggregateID:   aggregateID,
		AggregateType: domain.AggregateTypeOrder,
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":1}`),
	}, 0)
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

func TestWorker_ProcessOnce_MarksPublished(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	seedEvent(t, store, "1")
	publisher := &stubPublisher{}

	worker := NewWorker(
		store,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
	remaining, err := store.PullUnpublished(10)
	if err != nil {
		t.Fatalf("pull unpublished: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty backlog, got %d events", len(remaining))
	}
}

func TestWorker_ProcessOnce_KeepsEventAndSendsDLQAfterRetries(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	seedEvent(t, store, "2")
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		store,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	// Событие остаётся в backlog: следующий цикл попробует снова.
	remaining, err := store.PullUnpublished(10)
	if err != nil {
		t.Fatalf("pull unpublished: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected event to stay unpublished, got %d events", len(remaining))
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	seedEvent(t, store, "3")
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := NewWorker(
		store,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	remaining, err := store.PullUnpublished(10)
	if err != nil {
		t.Fatalf("pull unpublished: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty backlog, got %d events", len(remaining))
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	publisher := &stubPublisher{}

	worker := NewWorker(
		store,
		publisher,
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	published      []domain.Event
}

func (s *stubPublisher) Publish(event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		if err == nil {
			s.published = append(s.published, event)
		}
		return err
	}
	if s.err == nil {
		s.published = append(s.published, event)
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.EventPublisher = (*stubPublisher)(nil)
