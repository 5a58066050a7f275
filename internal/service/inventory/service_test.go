package inventory_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

type fixture struct {
	svc    *inventory.Service
	repo   domain.InventoryRepository
	events *memory.EventStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	events := memory.NewEventStore()
	repo := memory.NewInventoryRepository()
	require.NoError(t, repo.Upsert(domain.InventoryRecord{ProductID: 100, SupplierID: 10, Available: 10}))
	require.NoError(t, repo.Upsert(domain.InventoryRecord{ProductID: 101, SupplierID: 10, Available: 2}))
	return &fixture{
		svc:    inventory.NewServiceWithoutMetrics(repo, events, nil),
		repo:   repo,
		events: events,
	}
}

func TestReserve_WritesOutcomePerLine(t *testing.T) {
	f := newFixture(t)

	lines := []kafka.StockLine{
		{ProductID: 100, Qty: 5},
		{ProductID: 101, Qty: 3}, // свободно только 2
	}
	require.NoError(t, f.svc.Reserve(42, lines))

	record, _ := f.repo.Get(100)
	require.Equal(t, int32(5), record.Reserved)
	record, _ = f.repo.Get(101)
	require.Equal(t, int32(0), record.Reserved)

	okHistory, err := f.events.History(domain.AggregateTypeStock, "42:100")
	require.NoError(t, err)
	require.Len(t, okHistory, 1)
	require.Equal(t, domain.EventStockReserved, okHistory[0].EventType)

	failHistory, err := f.events.History(domain.AggregateTypeStock, "42:101")
	require.NoError(t, err)
	require.Len(t, failHistory, 1)
	require.Equal(t, domain.EventStockReservationFailed, failHistory[0].EventType)
}

func TestReserve_RedeliveryDoesNotDoubleReserve(t *testing.T) {
	f := newFixture(t)

	lines := []kafka.StockLine{{ProductID: 100, Qty: 5}}
	require.NoError(t, f.svc.Reserve(42, lines))
	// At-least-once delivery: команда приходит повторно.
	require.NoError(t, f.svc.Reserve(42, lines))

	record, _ := f.repo.Get(100)
	require.Equal(t, int32(5), record.Reserved)

	history, _ := f.events.History(domain.AggregateTypeStock, "42:100")
	require.Len(t, history, 1)
}

func TestRelease_OnlyHeldReservations(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Reserve(42, []kafka.StockLine{
		{ProductID: 100, Qty: 5},
		{ProductID: 101, Qty: 3}, // не зарезервируется
	}))

	release := []kafka.StockLine{
		{ProductID: 100, Qty: 5},
		{ProductID: 101, Qty: 3},
	}
	require.NoError(t, f.svc.Release(42, release))

	record, _ := f.repo.Get(100)
	require.Equal(t, int32(0), record.Reserved)
	require.Equal(t, int32(10), record.Available)

	// Повторный release ничего не меняет.
	require.NoError(t, f.svc.Release(42, release))
	record, _ = f.repo.Get(100)
	require.Equal(t, int32(0), record.Reserved)

	history, _ := f.events.History(domain.AggregateTypeStock, "42:100")
	require.Len(t, history, 2)
	require.Equal(t, domain.EventStockReleased, history[1].EventType)

	// По неудачной позиции событие release не появляется.
	failHistory, _ := f.events.History(domain.AggregateTypeStock, "42:101")
	require.Len(t, failHistory, 1)
}

func TestShip_ConsumesStockAndReservation(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Reserve(42, []kafka.StockLine{{ProductID: 100, Qty: 4}}))
	require.NoError(t, f.svc.Ship(42, []kafka.StockLine{{ProductID: 100, Qty: 4}}))

	record, _ := f.repo.Get(100)
	require.Equal(t, int32(6), record.Available)
	require.Equal(t, int32(0), record.Reserved)

	// Redelivery команды отгрузки не списывает второй раз.
	require.NoError(t, f.svc.Ship(42, []kafka.StockLine{{ProductID: 100, Qty: 4}}))
	record, _ = f.repo.Get(100)
	require.Equal(t, int32(6), record.Available)

	history, _ := f.events.History(domain.AggregateTypeStock, "42:100")
	require.Len(t, history, 2)
	require.Equal(t, domain.EventStockShipped, history[1].EventType)
}

// versionCheckBarrier пропускает Append только после того, как оба
// участника гонки прочитали версию агрегата: так два consumer'а с одной
// и той же командой оба проходят проверку журнала одновременно.
type versionCheckBarrier struct {
	domain.EventStore
	gate *sync.WaitGroup
}

func (s *versionCheckBarrier) CurrentVersion(aggregateType domain.AggregateType, aggregateID string) (int64, error) {
	version, err := s.EventStore.CurrentVersion(aggregateType, aggregateID)
	s.gate.Done()
	s.gate.Wait()
	return version, err
}

// historyCheckBarrier — то же для release/ship, где guard читает историю.
type historyCheckBarrier struct {
	domain.EventStore
	gate *sync.WaitGroup
}

func (s *historyCheckBarrier) History(aggregateType domain.AggregateType, aggregateID string) ([]domain.Event, error) {
	history, err := s.EventStore.History(aggregateType, aggregateID)
	s.gate.Done()
	s.gate.Wait()
	return history, err
}

func TestReserve_ConcurrentDuplicateCommandRollsBack(t *testing.T) {
	events := memory.NewEventStore()
	repo := memory.NewInventoryRepository()
	require.NoError(t, repo.Upsert(domain.InventoryRecord{ProductID: 1, SupplierID: 10, Available: 10}))

	var gate sync.WaitGroup
	gate.Add(2)
	svc := inventory.NewServiceWithoutMetrics(repo, &versionCheckBarrier{EventStore: events, gate: &gate}, nil)

	// Zombie consumer после rebalance: одна и та же команда в двух руках.
	lines := []kafka.StockLine{{ProductID: 1, Qty: 5}}
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Reserve(42, lines)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Ровно один резерв и ровно одна запись журнала: проигравший
	// гонку за версию откатил свою мутацию.
	record, err := repo.Get(1)
	require.NoError(t, err)
	require.Equal(t, int32(5), record.Reserved)

	history, err := events.History(domain.AggregateTypeStock, "42:1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.EventStockReserved, history[0].EventType)
}

func TestRelease_ConcurrentDuplicateDoesNotDrainOtherOrders(t *testing.T) {
	events := memory.NewEventStore()
	repo := memory.NewInventoryRepository()
	require.NoError(t, repo.Upsert(domain.InventoryRecord{ProductID: 1, SupplierID: 10, Available: 10}))

	setup := inventory.NewServiceWithoutMetrics(repo, events, nil)
	require.NoError(t, setup.Reserve(42, []kafka.StockLine{{ProductID: 1, Qty: 3}}))
	require.NoError(t, setup.Reserve(43, []kafka.StockLine{{ProductID: 1, Qty: 5}}))

	var gate sync.WaitGroup
	gate.Add(2)
	racy := inventory.NewServiceWithoutMetrics(repo, &historyCheckBarrier{EventStore: events, gate: &gate}, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- racy.Release(42, []kafka.StockLine{{ProductID: 1, Qty: 3}})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Снят только резерв заказа 42; резерв заказа 43 нетронут.
	record, err := repo.Get(1)
	require.NoError(t, err)
	require.Equal(t, int32(5), record.Reserved)
	require.Equal(t, int32(10), record.Available)

	history, err := events.History(domain.AggregateTypeStock, "42:1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.EventStockReleased, history[1].EventType)
}

func TestAllReserved(t *testing.T) {
	f := newFixture(t)

	lines := []kafka.StockLine{{ProductID: 100, Qty: 5}, {ProductID: 101, Qty: 3}}
	require.NoError(t, f.svc.Reserve(42, lines))

	ok, err := f.svc.AllReserved(42, lines)
	require.NoError(t, err)
	require.False(t, ok, "product 101 reservation failed")

	ok, err = f.svc.AllReserved(42, []kafka.StockLine{{ProductID: 100, Qty: 5}})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddStockAndReports(t *testing.T) {
	f := newFixture(t)

	require.Error(t, f.svc.AddStock(100, 0))
	require.NoError(t, f.svc.AddStock(101, 20))

	record, _ := f.repo.Get(101)
	require.Equal(t, int32(22), record.Available)

	low, err := f.svc.LowStock()
	require.NoError(t, err)
	require.Empty(t, low)

	require.NoError(t, f.svc.Reserve(7, []kafka.StockLine{{ProductID: 100, Qty: 10}}))
	out, err := f.svc.OutOfStock()
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(100), out[0].ProductID)
}
