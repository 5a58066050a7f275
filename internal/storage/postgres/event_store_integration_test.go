package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func TestEventStoreIntegration_AppendAndConflict(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	events := NewEventStore(store)

	first, err := events.Append(domain.Event{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "100",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":100}`),
	}, 0)
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}

	// Тот же expectedVersion второй раз — конфликт.
	_, err = events.Append(domain.Event{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "100",
		EventType:     domain.EventOrderConfirmed,
	}, 0)
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	second, err := events.Append(domain.Event{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "100",
		EventType:     domain.EventOrderConfirmed,
	}, 1)
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	version, err := events.CurrentVersion(domain.AggregateTypeOrder, "100")
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected current version 2, got %d", version)
	}

	history, err := events.History(domain.AggregateTypeOrder, "100")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].EventType != domain.EventOrderCreated {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestEventStoreIntegration_RelayLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	events := NewEventStore(store)

	event, err := events.Append(domain.Event{
		AggregateType: domain.AggregateTypeStock,
		AggregateID:   "55:100",
		EventType:     domain.EventStockReserved,
	}, 0)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	pending, err := events.PullUnpublished(10)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != event.ID {
		t.Fatalf("expected one pending event, got %+v", pending)
	}

	stats, err := events.BacklogStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if time.Since(stats.OldestPendingAt) > time.Minute {
		t.Fatalf("oldest pending timestamp looks wrong: %v", stats.OldestPendingAt)
	}

	if err := events.MarkPublished(event.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	// Повторная отметка безвредна.
	if err := events.MarkPublished(event.ID); err != nil {
		t.Fatalf("mark published twice: %v", err)
	}

	pending, err = events.PullUnpublished(10)
	if err != nil {
		t.Fatalf("pull after publish: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}

	if err := events.MarkPublished(999999); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}
