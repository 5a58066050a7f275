package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Строка заказа и событие журнала пишутся одной транзакцией.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `
	id, order_number, supplier_id, customer_id, status, delivery_address,
	desired_delivery_date, total_amount_minor, vat_amount_minor,
	rejection_reason, payment_proof_key, payment_reference, payment_notes,
	version, created_at, updated_at
`

// Create сохраняет новый заказ, его позиции и первое событие (версия 1).
func (r *orderRepository) Create(order domain.Order, event domain.Event) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order.Version = 1
	var desired sql.NullTime
	if !order.DesiredDeliveryDate.IsZero() {
		desired = sql.NullTime{Time: order.DesiredDeliveryDate, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, supplier_id, customer_id, status, delivery_address,
			desired_delivery_date, total_amount_minor, vat_amount_minor,
			rejection_reason, payment_proof_key, payment_reference, payment_notes,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`,
		order.OrderNumber, order.SupplierID, order.CustomerID, string(order.Status),
		order.DeliveryAddress, desired, order.TotalAmountMinor, order.VatAmountMinor,
		order.RejectionReason, order.PaymentProofKey, order.PaymentReference, order.PaymentNotes,
		order.Version, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrConcurrencyConflict
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		item := order.Items[i]
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, id, product_id, qty, unit_price_minor, vat_rate_bp)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, item.ID, item.ProductID, item.Qty, item.UnitPriceMinor, item.VatRateBp); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	event.AggregateType = domain.AggregateTypeOrder
	event.AggregateID = strconv.FormatInt(order.ID, 10)
	if _, err = appendEvent(ctx, tx, event, 0); err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}
	return order, nil
}

// Get возвращает заказ с позициями или ErrOrderNotFound.
func (r *orderRepository) Get(id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, `WHERE id = $1`, id)
}

// GetByNumber возвращает заказ по человекочитаемому номеру.
func (r *orderRepository) GetByNumber(orderNumber string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, `WHERE order_number = $1`, orderNumber)
}

func (r *orderRepository) getBy(ctx context.Context, where string, arg any) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// ListBySupplier возвращает заказы поставщика, опционально фильтруя по статусу.
func (r *orderRepository) ListBySupplier(supplierID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return r.list(`supplier_id`, supplierID, status, limit)
}

// ListByCustomer возвращает заказы покупателя, опционально фильтруя по статусу.
func (r *orderRepository) ListByCustomer(customerID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return r.list(`customer_id`, customerID, status, limit)
}

func (r *orderRepository) list(ownerColumn string, ownerID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + ownerColumn + ` = $1`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

// Save применяет обновление с optimistic locking: строка обновляется только
// при совпадении версии, событие вставляется с версией order.Version+1.
func (r *orderRepository) Save(order domain.Order, event domain.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    rejection_reason = $2,
		    payment_proof_key = $3,
		    payment_reference = $4,
		    payment_notes = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		string(order.Status), order.RejectionReason, order.PaymentProofKey,
		order.PaymentReference, order.PaymentNotes, order.UpdatedAt,
		order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := r.orderExistsTx(ctx, tx, order.ID)
		if checkErr != nil {
			err = checkErr
			return err
		}
		err = domain.ErrConcurrencyConflict
		if !exists {
			err = domain.ErrOrderNotFound
		}
		return err
	}

	event.AggregateType = domain.AggregateTypeOrder
	event.AggregateID = strconv.FormatInt(order.ID, 10)
	if _, err = appendEvent(ctx, tx, event, order.Version); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

// ListStuck возвращает заказы, зависшие в статусе дольше olderThan.
func (r *orderRepository) ListStuck(status domain.OrderStatus, olderThan time.Time, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, string(status), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck orders: %w", err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

func (r *orderRepository) collectOrders(ctx context.Context, rows *sql.Rows) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order   domain.Order
		status  string
		desired sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &order.SupplierID, &order.CustomerID,
		&status, &order.DeliveryAddress, &desired,
		&order.TotalAmountMinor, &order.VatAmountMinor,
		&order.RejectionReason, &order.PaymentProofKey, &order.PaymentReference, &order.PaymentNotes,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if desired.Valid {
		order.DesiredDeliveryDate = desired.Time
	}
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, qty, unit_price_minor, vat_rate_bp
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.UnitPriceMinor, &item.VatRateBp); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return exists, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
