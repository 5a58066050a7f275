package postgres

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func makeIntegrationOrder() domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	order := domain.Order{
		OrderNumber:     "ORD-" + strconv.FormatInt(now.UnixMilli(), 10) + "-AB12",
		SupplierID:      10,
		CustomerID:      20,
		Status:          domain.OrderStatusPendingConfirmation,
		DeliveryAddress: "Minsk, Pobediteley ave. 7",
		Items: []domain.OrderItem{
			{ProductID: 100, Qty: 5, UnitPriceMinor: 10000, VatRateBp: 2000},
			{ProductID: 101, Qty: 3, UnitPriceMinor: 5000, VatRateBp: 2000},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.RecalculateTotals()
	return order
}

func TestOrderRepositoryIntegration_CreateAndGet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	events := NewEventStore(store)

	created, err := repo.Create(makeIntegrationOrder(), domain.Event{EventType: domain.EventOrderCreated})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.Version != 1 {
		t.Fatalf("unexpected created order: id=%d version=%d", created.ID, created.Version)
	}

	loaded, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.Items) != 2 || loaded.TotalAmountMinor != 65000 || loaded.VatAmountMinor != 13000 {
		t.Fatalf("unexpected loaded order: %+v", loaded)
	}

	byNumber, err := repo.GetByNumber(created.OrderNumber)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if byNumber.ID != created.ID {
		t.Fatalf("expected order %d, got %d", created.ID, byNumber.ID)
	}

	history, err := events.History(domain.AggregateTypeOrder, strconv.FormatInt(created.ID, 10))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Version != 1 {
		t.Fatalf("expected single v1 event, got %+v", history)
	}
}

func TestOrderRepositoryIntegration_SaveOptimisticLocking(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	events := NewEventStore(store)

	created, err := repo.Create(makeIntegrationOrder(), domain.Event{EventType: domain.EventOrderCreated})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := repo.Get(created.ID)
	second, _ := repo.Get(created.ID)

	first.Status = domain.OrderStatusConfirmed
	first.UpdatedAt = time.Now().UTC()
	if err := repo.Save(first, domain.Event{EventType: domain.EventOrderConfirmed}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second.Status = domain.OrderStatusRejected
	second.UpdatedAt = time.Now().UTC()
	err = repo.Save(second, domain.Event{EventType: domain.EventOrderRejected})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	// Проигравший писатель не оставил ни версии строки, ни события.
	loaded, _ := repo.Get(created.ID)
	if loaded.Status != domain.OrderStatusConfirmed || loaded.Version != 2 {
		t.Fatalf("unexpected state: status=%s version=%d", loaded.Status, loaded.Version)
	}
	history, _ := events.History(domain.AggregateTypeOrder, strconv.FormatInt(created.ID, 10))
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}

	missing := loaded
	missing.ID = 999999
	if err := repo.Save(missing, domain.Event{EventType: domain.EventOrderRejected}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepositoryIntegration_ListAndStuck(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	stale := makeIntegrationOrder()
	stale.OrderNumber = "ORD-1-AAAA"
	stale.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	stale.UpdatedAt = stale.CreatedAt
	if _, err := repo.Create(stale, domain.Event{EventType: domain.EventOrderCreated}); err != nil {
		t.Fatalf("create stale: %v", err)
	}

	fresh := makeIntegrationOrder()
	fresh.OrderNumber = "ORD-2-BBBB"
	if _, err := repo.Create(fresh, domain.Event{EventType: domain.EventOrderCreated}); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	bySupplier, err := repo.ListBySupplier(10, domain.OrderStatusPendingConfirmation, 0)
	if err != nil {
		t.Fatalf("list by supplier: %v", err)
	}
	if len(bySupplier) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(bySupplier))
	}

	byCustomer, err := repo.ListByCustomer(20, "", 1)
	if err != nil {
		t.Fatalf("list by customer: %v", err)
	}
	if len(byCustomer) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(byCustomer))
	}

	stuck, err := repo.ListStuck(domain.OrderStatusPendingConfirmation, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].OrderNumber != "ORD-1-AAAA" {
		t.Fatalf("expected only the stale order, got %+v", stuck)
	}
}
