package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const (
	defaultTTL  = 30 * time.Second
	redisOpTime = 2 * time.Second
)

// ErrCacheMiss возвращается, когда снапшота заказа в кэше нет.
var ErrCacheMiss = errors.New("cache miss")

// OrderSnapshot — проекция заказа для быстрых read-запросов.
// Источник истины — Postgres; кэш короткоживущий и инвалидируется
// при каждом изменении заказа.
type OrderSnapshot struct {
	OrderID     int64              `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Status      domain.OrderStatus `json:"status"`
	TotalMinor  int64              `json:"total_minor"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// OrderCache кэширует снапшоты заказов в Redis.
// Нулевой клиент выключает кэш: все операции становятся no-op, а чтения
// возвращают ErrCacheMiss. Так сервис работает и без Redis.
type OrderCache struct {
	client *redis.Client
	logger *log.Entry
	ttl    time.Duration
}

// NewOrderCache создаёт кэш снапшотов заказов.
func NewOrderCache(client *redis.Client, logger *log.Entry) *OrderCache {
	if logger == nil {
		logger = log.WithField("component", "order-cache")
	}
	return &OrderCache{client: client, logger: logger, ttl: defaultTTL}
}

// Connect открывает подключение к Redis и проверяет его ping-ом.
// Ошибка подключения не фатальна для сервиса: вызывающая сторона может
// передать nil-клиент в NewOrderCache.
func Connect(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  redisOpTime,
		WriteTimeout: redisOpTime,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Enabled сообщает, подключён ли кэш.
func (c *OrderCache) Enabled() bool {
	return c != nil && c.client != nil
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("orderflow:order:%d", orderID)
}

// Get возвращает снапшот заказа или ErrCacheMiss.
func (c *OrderCache) Get(ctx context.Context, orderID int64) (OrderSnapshot, error) {
	if !c.Enabled() {
		return OrderSnapshot{}, ErrCacheMiss
	}

	data, err := c.client.Get(ctx, orderKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OrderSnapshot{}, ErrCacheMiss
	}
	if err != nil {
		c.logger.WithError(err).WithField("order_id", orderID).Warn("redis get failed")
		return OrderSnapshot{}, ErrCacheMiss
	}

	var snapshot OrderSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.WithError(err).WithField("order_id", orderID).Warn("corrupted order snapshot in cache")
		return OrderSnapshot{}, ErrCacheMiss
	}
	return snapshot, nil
}

// Put сохраняет снапшот заказа. Ошибки Redis не прерывают запись заказа,
// кэш — вспомогательный слой.
func (c *OrderCache) Put(ctx context.Context, order domain.Order) {
	if !c.Enabled() {
		return
	}

	snapshot := OrderSnapshot{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalMinor:  order.TotalAmountMinor,
		UpdatedAt:   order.UpdatedAt,
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("marshal order snapshot failed")
		return
	}

	if err := c.client.Set(ctx, orderKey(order.ID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("redis set failed")
	}
}

// Invalidate удаляет снапшот заказа после изменения.
func (c *OrderCache) Invalidate(ctx context.Context, orderID int64) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, orderKey(orderID)).Err(); err != nil {
		c.logger.WithError(err).WithField("order_id", orderID).Warn("redis del failed")
	}
}

// Close закрывает подключение к Redis.
func (c *OrderCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
