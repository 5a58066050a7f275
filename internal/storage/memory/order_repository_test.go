package memory_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

func newTestOrder() domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		OrderNumber:     "ORD-1700000000000-AB12",
		SupplierID:      10,
		CustomerID:      20,
		Status:          domain.OrderStatusPendingConfirmation,
		DeliveryAddress: "Minsk, Pobediteley ave. 7",
		Items: []domain.OrderItem{
			{ProductID: 100, Qty: 5, UnitPriceMinor: 10000, VatRateBp: 2000},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.RecalculateTotals()
	return order
}

func TestOrderRepository_CreateWritesOrderAndEvent(t *testing.T) {
	events := memory.NewEventStore()
	repo := memory.NewOrderRepository(events)

	created, err := repo.Create(newTestOrder(), domain.Event{EventType: domain.EventOrderCreated})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.Version != 1 {
		t.Fatalf("expected assigned id and version 1, got id=%d version=%d", created.ID, created.Version)
	}

	history, err := events.History(domain.AggregateTypeOrder, strconv.FormatInt(created.ID, 10))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].EventType != domain.EventOrderCreated {
		t.Fatalf("expected single OrderCreated event, got %v", history)
	}

	loaded, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.OrderNumber != created.OrderNumber {
		t.Fatalf("unexpected order loaded: %+v", loaded)
	}
}

func TestOrderRepository_SaveOptimisticLocking(t *testing.T) {
	events := memory.NewEventStore()
	repo := memory.NewOrderRepository(events)

	created, err := repo.Create(newTestOrder(), domain.Event{EventType: domain.EventOrderCreated})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Два читателя загрузили одну и ту же версию.
	first, _ := repo.Get(created.ID)
	second, _ := repo.Get(created.ID)

	first.Status = domain.OrderStatusConfirmed
	if err := repo.Save(first, domain.Event{EventType: domain.EventOrderConfirmed}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second.Status = domain.OrderStatusRejected
	err = repo.Save(second, domain.Event{EventType: domain.EventOrderRejected})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	// Проигравший писатель не оставил ни события, ни изменения строки.
	loaded, _ := repo.Get(created.ID)
	if loaded.Status != domain.OrderStatusConfirmed || loaded.Version != 2 {
		t.Fatalf("unexpected state after conflict: status=%s version=%d", loaded.Status, loaded.Version)
	}
	history, _ := events.History(domain.AggregateTypeOrder, strconv.FormatInt(created.ID, 10))
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}
}

func TestOrderRepository_GetByNumber(t *testing.T) {
	events := memory.NewEventStore()
	repo := memory.NewOrderRepository(events)

	created, err := repo.Create(newTestOrder(), domain.Event{EventType: domain.EventOrderCreated})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.GetByNumber(created.OrderNumber)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if loaded.ID != created.ID {
		t.Fatalf("expected order %d, got %d", created.ID, loaded.ID)
	}

	if _, err := repo.GetByNumber("ORD-0-FFFF"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListBySupplierFiltersStatus(t *testing.T) {
	events := memory.NewEventStore()
	repo := memory.NewOrderRepository(events)

	pending := newTestOrder()
	if _, err := repo.Create(pending, domain.Event{EventType: domain.EventOrderCreated}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	confirmed := newTestOrder()
	confirmed.OrderNumber = "ORD-1700000000001-CD34"
	created, err := repo.Create(confirmed, domain.Event{EventType: domain.EventOrderCreated})
	if err != nil {
		t.Fatalf("create confirmed: %v", err)
	}
	created.Status = domain.OrderStatusConfirmed
	if err := repo.Save(created, domain.Event{EventType: domain.EventOrderConfirmed}); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := repo.ListBySupplier(10, "", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}

	onlyConfirmed, err := repo.ListBySupplier(10, domain.OrderStatusConfirmed, 0)
	if err != nil {
		t.Fatalf("list confirmed: %v", err)
	}
	if len(onlyConfirmed) != 1 || onlyConfirmed[0].Status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected filtered result: %v", onlyConfirmed)
	}
}

func TestOrderRepository_ListStuck(t *testing.T) {
	events := memory.NewEventStore()
	repo := memory.NewOrderRepository(events)

	old := newTestOrder()
	old.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if _, err := repo.Create(old, domain.Event{EventType: domain.EventOrderCreated}); err != nil {
		t.Fatalf("create: %v", err)
	}

	fresh := newTestOrder()
	fresh.OrderNumber = "ORD-1700000000002-EE01"
	if _, err := repo.Create(fresh, domain.Event{EventType: domain.EventOrderCreated}); err != nil {
		t.Fatalf("create: %v", err)
	}

	stuck, err := repo.ListStuck(domain.OrderStatusPendingConfirmation, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].OrderNumber != old.OrderNumber {
		t.Fatalf("expected only the old order, got %v", stuck)
	}
}
