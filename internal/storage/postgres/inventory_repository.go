package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository создаёт PostgreSQL-реализацию склада.
// Все мутации — однострочные conditional UPDATE; проверка условия и
// изменение атомарны на уровне строки, без SELECT FOR UPDATE.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{db: store.DB()}
}

// Get возвращает складскую запись или ErrInventoryNotFound.
func (r *inventoryRepository) Get(productID int64) (domain.InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var record domain.InventoryRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT product_id, supplier_id, available, reserved, updated_at
		FROM inventory
		WHERE product_id = $1
	`, productID).Scan(&record.ProductID, &record.SupplierID, &record.Available, &record.Reserved, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRecord{}, domain.ErrInventoryNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("select inventory: %w", err)
	}
	return record, nil
}

// Upsert создаёт или замещает складскую запись.
func (r *inventoryRepository) Upsert(record domain.InventoryRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, supplier_id, available, reserved, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (product_id) DO UPDATE
		SET supplier_id = EXCLUDED.supplier_id,
		    available = EXCLUDED.available,
		    reserved = EXCLUDED.reserved,
		    updated_at = NOW()
	`, record.ProductID, record.SupplierID, record.Available, record.Reserved)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

// Reserve увеличивает резерв, только если свободного остатка хватает.
func (r *inventoryRepository) Reserve(productID int64, qty int32) (bool, error) {
	return r.conditionalUpdate(productID, `
		UPDATE inventory
		SET reserved = reserved + $2, updated_at = NOW()
		WHERE product_id = $1 AND available - reserved >= $2
	`, qty)
}

// Release уменьшает резерв, только если зарезервировано не меньше qty.
func (r *inventoryRepository) Release(productID int64, qty int32) (bool, error) {
	return r.conditionalUpdate(productID, `
		UPDATE inventory
		SET reserved = reserved - $2, updated_at = NOW()
		WHERE product_id = $1 AND reserved >= $2
	`, qty)
}

// Ship списывает qty и из остатка, и из резерва.
func (r *inventoryRepository) Ship(productID int64, qty int32) (bool, error) {
	return r.conditionalUpdate(productID, `
		UPDATE inventory
		SET available = available - $2, reserved = reserved - $2, updated_at = NOW()
		WHERE product_id = $1 AND reserved >= $2
	`, qty)
}

// conditionalUpdate выполняет условную мутацию: 0 затронутых строк при
// существующей записи — это отказ условия, а не ошибка.
func (r *inventoryRepository) conditionalUpdate(productID int64, query string, qty int32) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, productID, qty)
	if err != nil {
		return false, fmt.Errorf("update inventory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM inventory WHERE product_id = $1)`, productID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check inventory exists: %w", err)
	}
	if !exists {
		return false, domain.ErrInventoryNotFound
	}
	return false, nil
}

// AddStock увеличивает физический остаток.
func (r *inventoryRepository) AddStock(productID int64, qty int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE inventory
		SET available = available + $2, updated_at = NOW()
		WHERE product_id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("add stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInventoryNotFound
	}
	return nil
}

// LowStock возвращает записи со свободным остатком ниже порога.
func (r *inventoryRepository) LowStock(threshold int32) ([]domain.InventoryRecord, error) {
	return r.listWhere(`available - reserved < $1`, threshold)
}

// OutOfStock возвращает записи без свободного остатка.
func (r *inventoryRepository) OutOfStock() ([]domain.InventoryRecord, error) {
	return r.listWhere(`available - reserved <= 0`)
}

func (r *inventoryRepository) listWhere(where string, args ...any) ([]domain.InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, supplier_id, available, reserved, updated_at
		FROM inventory
		WHERE `+where+`
		ORDER BY product_id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	records := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		var record domain.InventoryRecord
		if err := rows.Scan(&record.ProductID, &record.SupplierID, &record.Available, &record.Reserved, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}
	return records, nil
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
