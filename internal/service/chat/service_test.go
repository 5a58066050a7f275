package chat_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/chat"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

func TestEnsureChannel_Idempotent(t *testing.T) {
	svc := chat.NewServiceWithoutMetrics(memory.NewChatRepository(), nil)

	created, err := svc.EnsureChannel(42, 10, 20, "ORD-1700000000000-AB12")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if created.Name != "Order ORD-1700000000000-AB12" || !created.Active {
		t.Fatalf("unexpected channel: %+v", created)
	}

	// Повтор события order.created возвращает тот же канал.
	again, err := svc.EnsureChannel(42, 10, 20, "ORD-1700000000000-AB12")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.ID != created.ID {
		t.Fatalf("expected channel %d, got %d", created.ID, again.ID)
	}
}

func TestDeactivate_MissingChannelIsFine(t *testing.T) {
	svc := chat.NewServiceWithoutMetrics(memory.NewChatRepository(), nil)

	if err := svc.Deactivate(999); err != nil {
		t.Fatalf("deactivate of missing channel must be silent: %v", err)
	}
}

func TestGetByOrder_ParticipantsOnly(t *testing.T) {
	svc := chat.NewServiceWithoutMetrics(memory.NewChatRepository(), nil)

	created, err := svc.EnsureChannel(42, 10, 20, "ORD-1-AAAA")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for _, userID := range []int64{10, 20} {
		channel, err := svc.GetByOrder(42, userID)
		if err != nil {
			t.Fatalf("participant %d: %v", userID, err)
		}
		if channel.ID != created.ID {
			t.Fatalf("unexpected channel for user %d", userID)
		}
	}

	if _, err := svc.GetByOrder(42, 999); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("stranger must be rejected, got %v", err)
	}
}
