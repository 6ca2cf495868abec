package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akash768145s/Smartshake/internal/order/domain"
	"github.com/akash768145s/Smartshake/pkg/outbox"
)

const (
	uniqueViolation     = "23505"
	paymentIDConstraint = "orders_payment_id_uniq"
)

const (
	orderColumns     = `id, base, quantity_ml, total_price, status, COALESCE(machine_id, ''), COALESCE(machine_name, ''), COALESCE(idempotency_key, ''), COALESCE(payment_id, ''), COALESCE(failure_reason, ''), created_at, updated_at, completed_at`
	orderItemColumns = `id, order_id, flavour_id, scoops, price_per_scoop, created_at`
	insertOutboxStmt = `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status) VALUES ($1,$2,$3,$4,$5,$6,'pending')`
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		base TEXT NOT NULL CHECK (base IN ('milk', 'water')),
		quantity_ml INTEGER NOT NULL CHECK (quantity_ml > 0),
		total_price BIGINT NOT NULL CHECK (total_price > 0),
		status TEXT NOT NULL,
		machine_id TEXT,
		machine_name TEXT,
		idempotency_key TEXT,
		payment_id TEXT,
		failure_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		CONSTRAINT orders_idempotency_key_uniq UNIQUE (idempotency_key),
		CONSTRAINT orders_payment_id_uniq UNIQUE (payment_id)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_updated_idx ON orders (status, updated_at)`,
	`CREATE INDEX IF NOT EXISTS orders_machine_created_idx ON orders (machine_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		flavour_id TEXT NOT NULL,
		scoops INTEGER NOT NULL CHECK (scoops > 0),
		price_per_scoop BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		headers JSONB NOT NULL DEFAULT '{}',
		traceparent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		relay_id TEXT,
		lease_until TIMESTAMPTZ,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, id)`,
}

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Migrate creates the order, item and outbox tables if they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate orders: %w", err)
		}
	}
	return nil
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, items []domain.LineItem, msg outbox.Message) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id string
	err = tx.QueryRow(ctx, `INSERT INTO orders (id, base, quantity_ml, total_price, status, machine_id, machine_name, idempotency_key, payment_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),$10,$11)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING id`,
		o.ID, o.Base, o.QuantityMl, o.TotalPrice, o.Status, o.MachineID, o.MachineName, o.IdempotencyKey, o.PaymentID, o.CreatedAt, o.UpdatedAt).
		Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == paymentIDConstraint {
		return domain.ErrPaymentReused
	}
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (id, order_id, flavour_id, scoops, price_per_scoop, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, o.ID, it.FlavourID, it.Scoops, it.PricePerScoop, it.CreatedAt)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.OrderWithItems, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (domain.OrderWithItems, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key=$1`, key)
}

func (r *Repository) getOne(ctx context.Context, query string, arg string) (domain.OrderWithItems, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrderWithItems{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderWithItems{}, err
	}
	items, err := r.Items(ctx, []string{o.ID})
	if err != nil {
		return domain.OrderWithItems{}, err
	}
	return domain.OrderWithItems{Order: o, Items: items[o.ID]}, nil
}

func (r *Repository) UpdateStatusWithOutbox(ctx context.Context, o domain.Order, from domain.OrderStatus, msg outbox.Message) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE orders
			SET status=$3, updated_at=$4, failure_reason=NULLIF($5,''), completed_at=COALESCE(completed_at, $6)
			WHERE id=$1 AND status=$2`,
		o.ID, from, o.Status, o.UpdatedAt, o.FailureReason, o.CompletedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStaleStatus
	}

	if err = insertOutbox(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) List(ctx context.Context, f domain.ListFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if f.MachineID != "" {
		where = append(where, "machine_id = "+arg(f.MachineID))
	}
	if !f.CreatedAfter.IsZero() {
		where = append(where, "created_at >= "+arg(f.CreatedAfter))
	}
	if !f.CreatedUntil.IsZero() {
		where = append(where, "created_at <= "+arg(f.CreatedUntil))
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < "+arg(f.UpdatedBefore))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) Items(ctx context.Context, orderIDs []string) (map[string][]domain.LineItem, error) {
	out := make(map[string][]domain.LineItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY created_at, flavour_id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.FlavourID, &it.Scoops, &it.PricePerScoop, &it.CreatedAt); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Base, &o.QuantityMl, &o.TotalPrice, &o.Status, &o.MachineID, &o.MachineName,
		&o.IdempotencyKey, &o.PaymentID, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt)
	return o, err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, msg outbox.Message) error {
	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := tx.Exec(ctx, insertOutboxStmt, msg.AggregateType, msg.AggregateID, msg.Type, msg.Payload, headers, msg.Traceparent)
	return err
}
