package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type chatRepository struct {
	db *sql.DB
}

// NewChatRepository создаёт PostgreSQL-реализацию ChatChannelRepository.
// Идемпотентность создания обеспечивается UNIQUE (order_id) + ON CONFLICT DO NOTHING.
func NewChatRepository(store *Store) domain.ChatChannelRepository {
	return &chatRepository{db: store.DB()}
}

// CreateIfAbsent создаёт канал, если по заказу его ещё нет.
func (r *chatRepository) CreateIfAbsent(channel domain.ChatChannel) (domain.ChatChannel, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}
	channel.Active = true

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO chat_channels (order_id, supplier_user_id, customer_user_id, name, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id
	`, channel.OrderID, channel.SupplierUserID, channel.CustomerUserID, channel.Name, channel.CreatedAt).Scan(&channel.ID)
	if err == nil {
		return channel, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ChatChannel{}, false, fmt.Errorf("insert chat channel: %w", err)
	}

	// Конфликт по order_id: канал уже есть, возвращаем существующий.
	existing, err := r.GetByOrder(channel.OrderID)
	if err != nil {
		return domain.ChatChannel{}, false, err
	}
	return existing, false, nil
}

// GetByOrder возвращает канал заказа или ErrChannelNotFound.
func (r *chatRepository) GetByOrder(orderID int64) (domain.ChatChannel, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var channel domain.ChatChannel
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, supplier_user_id, customer_user_id, name, active, created_at
		FROM chat_channels
		WHERE order_id = $1
	`, orderID).Scan(
		&channel.ID, &channel.OrderID, &channel.SupplierUserID,
		&channel.CustomerUserID, &channel.Name, &channel.Active, &channel.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ChatChannel{}, domain.ErrChannelNotFound
		}
		return domain.ChatChannel{}, fmt.Errorf("select chat channel: %w", err)
	}
	return channel, nil
}

// Deactivate помечает канал неактивным; канал и его история не удаляются.
func (r *chatRepository) Deactivate(orderID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_channels
		SET active = FALSE
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return fmt.Errorf("deactivate chat channel: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

// ListActiveByUser возвращает активные каналы, где пользователь — участник.
func (r *chatRepository) ListActiveByUser(userID int64) ([]domain.ChatChannel, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, supplier_user_id, customer_user_id, name, active, created_at
		FROM chat_channels
		WHERE active AND (supplier_user_id = $1 OR customer_user_id = $1)
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat channels: %w", err)
	}
	defer rows.Close()

	channels := make([]domain.ChatChannel, 0)
	for rows.Next() {
		var channel domain.ChatChannel
		if err := rows.Scan(
			&channel.ID, &channel.OrderID, &channel.SupplierUserID,
			&channel.CustomerUserID, &channel.Name, &channel.Active, &channel.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat channel row: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat channel rows: %w", err)
	}
	return channels, nil
}

var _ domain.ChatChannelRepository = (*chatRepository)(nil)
