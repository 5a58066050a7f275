package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/health"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения.
type Dependencies struct {
	Orders    domain.OrderRepository
	Events    domain.EventStore
	Inventory domain.InventoryRepository
	Chat      domain.ChatChannelRepository
	Carts     domain.CartRepository

	store *postgres.Store
}

// NewDependencies выбирает хранилище: Postgres при заданном DSN,
// иначе — in-memory (локальная разработка без внешних зависимостей).
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if cfg.PostgresDSN == "" {
		logger.Warn("postgres dsn is not set, using in-memory storage")
		events := memory.NewEventStore()
		return &Dependencies{
			Orders:    memory.NewOrderRepository(events),
			Events:    events,
			Inventory: memory.NewInventoryRepository(),
			Chat:      memory.NewChatRepository(),
			Carts:     memory.NewCartRepository(),
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("postgres storage initialized")

	return &Dependencies{
		Orders:    postgres.NewOrderRepository(store),
		Events:    postgres.NewEventStore(store),
		Inventory: postgres.NewInventoryRepository(store),
		Chat:      postgres.NewChatRepository(store),
		Carts:     postgres.NewCartRepository(store),
		store:     store,
	}, nil
}

// RegisterHealthChecks добавляет проверки хранилища в health handler.
func (d *Dependencies) RegisterHealthChecks(handler *health.Handler) {
	if d.store != nil {
		handler.Register("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return d.store.Ping(ctx)
		})
		return
	}
	handler.Register("storage", func() error { return nil })
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close(logger *log.Entry) {
	if d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}
