package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akash768145s/Smartshake/internal/catalog/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Migrate creates the flavours table and installs the default catalog on
// first run. Existing rows are left untouched.
func (r *Repository) Migrate(ctx context.Context) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS flavours (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		price_per_scoop BIGINT NOT NULL CHECK (price_per_scoop > 0),
		available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, f := range domain.Defaults() {
		batch.Queue(`INSERT INTO flavours (id, name, icon, price_per_scoop, available)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO NOTHING`,
			f.ID, f.Name, f.Icon, f.PricePerScoop, f.Available)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) List(ctx context.Context) ([]domain.Flavour, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, icon, price_per_scoop, available, created_at FROM flavours ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Flavour
	for rows.Next() {
		var f domain.Flavour
		if err := rows.Scan(&f.ID, &f.Name, &f.Icon, &f.PricePerScoop, &f.Available, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Flavour, error) {
	var f domain.Flavour
	err := r.pool.QueryRow(ctx, `SELECT id, name, icon, price_per_scoop, available, created_at FROM flavours WHERE id=$1`, id).
		Scan(&f.ID, &f.Name, &f.Icon, &f.PricePerScoop, &f.Available, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Flavour{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Flavour{}, err
	}
	return f, nil
}
