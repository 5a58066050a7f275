package postgres

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func TestInventoryRepositoryIntegration_ConditionalMutations(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewInventoryRepository(store)

	if err := repo.Upsert(domain.InventoryRecord{ProductID: 100, SupplierID: 10, Available: 10}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ok, err := repo.Reserve(100, 6)
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}

	// Свободно 4, просим 6 — conditional UPDATE не затрагивает строк.
	ok, err = repo.Reserve(100, 6)
	if err != nil || ok {
		t.Fatalf("expected denial, ok=%v err=%v", ok, err)
	}

	ok, err = repo.Release(100, 2)
	if err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}

	ok, err = repo.Ship(100, 4)
	if err != nil || !ok {
		t.Fatalf("ship: ok=%v err=%v", ok, err)
	}

	record, err := repo.Get(100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Available != 6 || record.Reserved != 0 {
		t.Fatalf("unexpected record: %+v", record)
	}

	if _, err := repo.Reserve(999, 1); !errors.Is(err, domain.ErrInventoryNotFound) {
		t.Fatalf("expected ErrInventoryNotFound, got %v", err)
	}
}

func TestInventoryRepositoryIntegration_StockReports(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewInventoryRepository(store)

	if err := repo.Upsert(domain.InventoryRecord{ProductID: 100, SupplierID: 10, Available: 3, Reserved: 3}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(domain.InventoryRecord{ProductID: 101, SupplierID: 10, Available: 50}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	out, err := repo.OutOfStock()
	if err != nil {
		t.Fatalf("out of stock: %v", err)
	}
	if len(out) != 1 || out[0].ProductID != 100 {
		t.Fatalf("unexpected out-of-stock: %+v", out)
	}

	if err := repo.AddStock(100, 4); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	low, err := repo.LowStock(domain.DefaultLowStockThreshold)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ProductID != 100 {
		t.Fatalf("unexpected low-stock: %+v", low)
	}

	if err := repo.AddStock(999, 1); !errors.Is(err, domain.ErrInventoryNotFound) {
		t.Fatalf("expected ErrInventoryNotFound, got %v", err)
	}
}

func TestChatRepositoryIntegration_IdempotentCreate(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewChatRepository(store)

	channel := domain.ChatChannel{OrderID: 42, SupplierUserID: 10, CustomerUserID: 20, Name: "Order ORD-1-AAAA"}

	created, fresh, err := repo.CreateIfAbsent(channel)
	if err != nil || !fresh {
		t.Fatalf("create: fresh=%v err=%v", fresh, err)
	}

	again, fresh, err := repo.CreateIfAbsent(channel)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if fresh || again.ID != created.ID {
		t.Fatalf("expected existing channel %d, got %d fresh=%v", created.ID, again.ID, fresh)
	}

	if err := repo.Deactivate(42); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	loaded, err := repo.GetByOrder(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Active {
		t.Fatal("expected channel to be inactive")
	}

	active, err := repo.ListActiveByUser(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active channels, got %d", len(active))
	}
}

func TestCartRepositoryIntegration_Roundtrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCartRepository(store)

	if _, err := repo.Get(20); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}

	cart := domain.Cart{
		CustomerID: 20,
		Items: []domain.CartItem{
			{ProductID: 100, SupplierID: 10, Qty: 2, UnitPriceMinor: 10000, VatRateBp: 2000},
		},
	}
	if err := repo.Put(cart); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, err := repo.Get(20)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].ProductID != 100 {
		t.Fatalf("unexpected cart: %+v", loaded)
	}

	if err := repo.Delete(20); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(20); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound after delete, got %v", err)
	}
}
