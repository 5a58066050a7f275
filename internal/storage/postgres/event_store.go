package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const opTimeout = 5 * time.Second

// querier объединяет *sql.DB и *sql.Tx, чтобы вставка события работала
// и сама по себе, и внутри транзакции репозитория заказов.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type eventStore struct {
	db *sql.DB
}

// NewEventStore создаёт PostgreSQL-реализацию журнала событий.
func NewEventStore(store *Store) domain.EventStore {
	return &eventStore{db: store.DB()}
}

// Append вставляет событие с версией expectedVersion+1.
// Guard двойной: INSERT..SELECT сверяет expectedVersion с текущим максимумом,
// а UNIQUE (aggregate_type, aggregate_id, version) закрывает гонку двух писателей.
func (s *eventStore) Append(event domain.Event, expectedVersion int64) (domain.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return appendEvent(ctx, s.db, event, expectedVersion)
}

func appendEvent(ctx context.Context, q querier, event domain.Event, expectedVersion int64) (domain.Event, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO events (aggregate_type, aggregate_id, version, event_type, payload, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE (
			SELECT COALESCE(MAX(version), 0)
			FROM events
			WHERE aggregate_type = $1 AND aggregate_id = $2
		) = $7
		RETURNING id
	`,
		string(event.AggregateType), event.AggregateID, expectedVersion+1,
		event.EventType, payload, event.CreatedAt, expectedVersion,
	).Scan(&event.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return domain.Event{}, domain.ErrConcurrencyConflict
		}
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}

	event.Version = expectedVersion + 1
	event.PublishedAt = time.Time{}
	return event, nil
}

// History возвращает события агрегата от старых к новым.
func (s *eventStore) History(aggregateType domain.AggregateType, aggregateID string) ([]domain.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, version, event_type, payload, created_at, published_at
		FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY version ASC
	`, string(aggregateType), aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query event history: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CurrentVersion возвращает max(version) агрегата или 0.
func (s *eventStore) CurrentVersion(aggregateType domain.AggregateType, aggregateID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_type = $1 AND aggregate_id = $2
	`, string(aggregateType), aggregateID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}

// PullUnpublished возвращает до limit недоставленных событий в порядке вставки.
func (s *eventStore) PullUnpublished(limit int) ([]domain.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, version, event_type, payload, created_at, published_at
		FROM events
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MarkPublished фиксирует доставку события в брокер. Повторный вызов безвреден.
func (s *eventStore) MarkPublished(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET published_at = NOW()
		WHERE id = $1 AND published_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check event exists: %w", err)
		}
		if !exists {
			return domain.ErrEventNotFound
		}
	}
	return nil
}

// BacklogStats возвращает состояние очереди недоставленных событий.
func (s *eventStore) BacklogStats() (domain.EventBacklogStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.EventBacklogStats
		oldest sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM events
		WHERE published_at IS NULL
	`).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.EventBacklogStats{}, fmt.Errorf("query backlog stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}
	return stats, nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			event         domain.Event
			aggregateType string
			publishedAt   sql.NullTime
		)
		if err := rows.Scan(
			&event.ID, &aggregateType, &event.AggregateID, &event.Version,
			&event.EventType, &event.Payload, &event.CreatedAt, &publishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		event.AggregateType = domain.AggregateType(aggregateType)
		if publishedAt.Valid {
			event.PublishedAt = publishedAt.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.EventStore = (*eventStore)(nil)
