// Package postgres is a RecordStore backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/payment-gateway/internal/payment"
	"github.com/yourorg/payment-gateway/internal/store"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id                    UUID PRIMARY KEY,
	status                TEXT NOT NULL,
	card_number_last_four INTEGER NOT NULL,
	expiry_month          INTEGER NOT NULL,
	expiry_year           INTEGER NOT NULL,
	currency              TEXT NOT NULL,
	amount                BIGINT NOT NULL,
	authorization_code    TEXT NOT NULL DEFAULT '',
	authorized            BOOLEAN,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Migrate creates the payments table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Repository implements store.RecordStore on a pgx pool.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ store.RecordStore = (*Repository)(nil)

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Add(ctx context.Context, rec payment.Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payments (id, status, card_number_last_four, expiry_month, expiry_year, currency, amount, authorization_code, authorized)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, string(rec.Status), rec.CardNumberLastFour, rec.ExpiryMonth, rec.ExpiryYear,
		string(rec.Currency), rec.Amount, rec.AuthorizationCode, rec.Authorized)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert payment %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (payment.Record, error) {
	var (
		rec      payment.Record
		status   string
		currency string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, status, card_number_last_four, expiry_month, expiry_year, currency, amount, authorization_code, authorized
		 FROM payments WHERE id = $1`, id).
		Scan(&rec.ID, &status, &rec.CardNumberLastFour, &rec.ExpiryMonth, &rec.ExpiryYear,
			&currency, &rec.Amount, &rec.AuthorizationCode, &rec.Authorized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment.Record{}, store.ErrNotFound
		}
		return payment.Record{}, fmt.Errorf("postgres: select payment %s: %w", id, err)
	}
	rec.Status = payment.Status(status)
	rec.Currency = payment.Currency(currency)
	return rec, nil
}

func (r *Repository) Update(ctx context.Context, rec payment.Record) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET status=$2, authorization_code=$3, authorized=$4, updated_at=now() WHERE id=$1`,
		rec.ID, string(rec.Status), rec.AuthorizationCode, rec.Authorized)
	if err != nil {
		return fmt.Errorf("postgres: update payment %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) Remove(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete payment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Debug("remove of absent payment record", "payment_id", id)
	}
	return nil
}
