package memory_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

func TestChatRepository_CreateIfAbsentIdempotent(t *testing.T) {
	repo := memory.NewChatRepository()

	channel := domain.ChatChannel{
		OrderID:        42,
		SupplierUserID: 10,
		CustomerUserID: 20,
		Name:           "Order ORD-1700000000000-AB12",
	}

	created, fresh, err := repo.CreateIfAbsent(channel)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !fresh || created.ID == 0 || !created.Active {
		t.Fatalf("unexpected created channel: %+v fresh=%v", created, fresh)
	}

	// Redelivery того же события — возвращается существующий канал.
	again, fresh, err := repo.CreateIfAbsent(channel)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if fresh {
		t.Fatal("duplicate create must not report a fresh channel")
	}
	if again.ID != created.ID {
		t.Fatalf("expected same channel, got %d and %d", created.ID, again.ID)
	}
}

func TestChatRepository_DeactivateKeepsChannel(t *testing.T) {
	repo := memory.NewChatRepository()

	if _, _, err := repo.CreateIfAbsent(domain.ChatChannel{OrderID: 42, SupplierUserID: 10, CustomerUserID: 20}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Deactivate(42); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	// Повторная деактивация безвредна.
	if err := repo.Deactivate(42); err != nil {
		t.Fatalf("deactivate again: %v", err)
	}

	channel, err := repo.GetByOrder(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if channel.Active {
		t.Fatal("expected channel to be inactive")
	}

	active, err := repo.ListActiveByUser(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("deactivated channel must not be listed, got %d", len(active))
	}
}

func TestChatRepository_GetByOrderNotFound(t *testing.T) {
	repo := memory.NewChatRepository()
	if _, err := repo.GetByOrder(1); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestCartRepository_Lifecycle(t *testing.T) {
	repo := memory.NewCartRepository()

	if _, err := repo.Get(20); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}

	cart := domain.Cart{
		CustomerID: 20,
		Items: []domain.CartItem{
			{ProductID: 100, SupplierID: 10, Qty: 2, UnitPriceMinor: 10000, VatRateBp: 2000},
			{ProductID: 200, SupplierID: 11, Qty: 1, UnitPriceMinor: 5000, VatRateBp: 2000},
		},
	}
	if err := repo.Put(cart); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, err := repo.Get(20)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	grouped := loaded.ItemsBySupplier()
	if len(grouped) != 2 || len(grouped[10]) != 1 || len(grouped[11]) != 1 {
		t.Fatalf("unexpected grouping: %v", grouped)
	}

	if err := repo.Delete(20); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(20); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound after delete, got %v", err)
	}
}
