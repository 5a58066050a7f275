package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
// Позиции корзины хранятся одним JSONB-документом: корзина живёт недолго
// и всегда читается и пишется целиком.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

// Get возвращает корзину покупателя или ErrCartNotFound.
func (r *cartRepository) Get(customerID int64) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		cart domain.Cart
		raw  []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT customer_id, items, updated_at
		FROM carts
		WHERE customer_id = $1
	`, customerID).Scan(&cart.CustomerID, &raw, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	if err := json.Unmarshal(raw, &cart.Items); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart items: %w", err)
	}
	return cart, nil
}

// Put сохраняет корзину целиком.
func (r *cartRepository) Put(cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (customer_id, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE
		SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at
	`, cart.CustomerID, raw, cart.UpdatedAt); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

// Delete удаляет корзину; отсутствие корзины не считается ошибкой.
func (r *cartRepository) Delete(customerID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
