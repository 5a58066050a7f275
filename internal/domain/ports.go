package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
// Save и Create атомарны относительно журнала событий: строка заказа и
// событие записываются вместе или не записываются вовсе.
type OrderRepository interface {
	// Create сохраняет новый заказ и его первое событие (версия 1).
	// Репозиторий назначает ID заказа и AggregateID события.
	Create(order Order, event Event) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id int64) (Order, error)
	// GetByNumber возвращает заказ по человекочитаемому номеру.
	GetByNumber(orderNumber string) (Order, error)
	// ListBySupplier возвращает заказы поставщика, опционально фильтруя по статусу.
	ListBySupplier(supplierID int64, status OrderStatus, limit int) ([]Order, error)
	// ListByCustomer возвращает заказы покупателя, опционально фильтруя по статусу.
	ListByCustomer(customerID int64, status OrderStatus, limit int) ([]Order, error)
	// Save применяет обновление с optimistic locking: событие вставляется с
	// версией order.Version+1, строка заказа обновляется только при совпадении
	// версии. Конфликт — ErrConcurrencyConflict.
	Save(order Order, event Event) error
	// ListStuck возвращает заказы, зависшие в статусе дольше olderThan
	// (для reconciliation-свипера).
	ListStuck(status OrderStatus, olderThan time.Time, limit int) ([]Order, error)
}

// EventStore — append-only журнал событий всех агрегатов сервиса.
type EventStore interface {
	// Append вставляет событие с версией expectedVersion+1. Если
	// expectedVersion не равна текущему максимуму версии агрегата,
	// возвращается ErrConcurrencyConflict. События не обновляются и не удаляются.
	Append(event Event, expectedVersion int64) (Event, error)
	// History возвращает события агрегата от старых к новым.
	History(aggregateType AggregateType, aggregateID string) ([]Event, error)
	// CurrentVersion возвращает max(version) агрегата или 0.
	CurrentVersion(aggregateType AggregateType, aggregateID string) (int64, error)
	// PullUnpublished возвращает события, ещё не доставленные в брокер.
	PullUnpublished(limit int) ([]Event, error)
	// MarkPublished фиксирует доставку события в брокер.
	MarkPublished(id int64) error
	// BacklogStats возвращает состояние очереди недоставленных событий.
	BacklogStats() (EventBacklogStats, error)
}

// EventBacklogStats описывает backlog недоставленных событий журнала.
type EventBacklogStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// EventPublisher доставляет событие журнала во внешний брокер.
// Должен быть идемпотентным: relay может повторить доставку.
type EventPublisher interface {
	Publish(event Event) error
}

// InventoryRepository — склад с условными одношаговыми мутациями.
// Reserve/Release/Ship возвращают false, если условие не выполнено
// (0 затронутых строк); это штатный исход, а не ошибка ввода-вывода.
type InventoryRepository interface {
	Get(productID int64) (InventoryRecord, error)
	// Upsert создаёт или замещает складскую запись (администрирование каталога).
	Upsert(record InventoryRecord) error
	// Reserve увеличивает резерв на qty, только если available-reserved >= qty.
	Reserve(productID int64, qty int32) (bool, error)
	// Release уменьшает резерв на qty, только если reserved >= qty.
	Release(productID int64, qty int32) (bool, error)
	// Ship списывает qty и из остатка, и из резерва, только если reserved >= qty.
	Ship(productID int64, qty int32) (bool, error)
	// AddStock увеличивает физический остаток.
	AddStock(productID int64, qty int32) error
	LowStock(threshold int32) ([]InventoryRecord, error)
	OutOfStock() ([]InventoryRecord, error)
}

// ChatChannelRepository хранит каналы общения по заказам.
type ChatChannelRepository interface {
	// CreateIfAbsent создаёт канал, если по заказу его ещё нет.
	// Возвращает существующий или созданный канал и признак создания.
	CreateIfAbsent(channel ChatChannel) (ChatChannel, bool, error)
	GetByOrder(orderID int64) (ChatChannel, error)
	// Deactivate помечает канал неактивным; канал не удаляется.
	Deactivate(orderID int64) error
	ListActiveByUser(userID int64) ([]ChatChannel, error)
}

// CartRepository хранит корзины покупателей.
type CartRepository interface {
	Get(customerID int64) (Cart, error)
	Put(cart Cart) error
	Delete(customerID int64) error
}
