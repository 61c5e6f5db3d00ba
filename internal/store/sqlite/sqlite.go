// Package sqlite is a RecordStore backed by SQLite through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/yourorg/payment-gateway/internal/payment"
	"github.com/yourorg/payment-gateway/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id                   TEXT PRIMARY KEY,
	status               TEXT NOT NULL,
	card_number_last_four INTEGER NOT NULL,
	expiry_month         INTEGER NOT NULL,
	expiry_year          INTEGER NOT NULL,
	currency             TEXT NOT NULL,
	amount               INTEGER NOT NULL,
	authorization_code   TEXT NOT NULL DEFAULT '',
	authorized           INTEGER
);`

// Open opens the database at path and applies the schema.
// A path of ":memory:" is pinned to a single connection so every query sees
// the same database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return db, nil
}

// RecordStore implements store.RecordStore on SQLite.
type RecordStore struct {
	db  *sql.DB
	log *slog.Logger
}

var _ store.RecordStore = (*RecordStore)(nil)

// NewRecordStore wraps an open database.
func NewRecordStore(db *sql.DB, log *slog.Logger) *RecordStore {
	return &RecordStore{db: db, log: log}
}

func (r *RecordStore) Add(ctx context.Context, rec payment.Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments
		 (id, status, card_number_last_four, expiry_month, expiry_year, currency, amount, authorization_code, authorized)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		string(rec.Status),
		rec.CardNumberLastFour,
		rec.ExpiryMonth,
		rec.ExpiryYear,
		string(rec.Currency),
		rec.Amount,
		rec.AuthorizationCode,
		nullBool(rec.Authorized),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("sqlite: insert payment %s: %w", rec.ID, err)
	}
	r.log.Debug("payment record inserted", "payment_id", rec.ID, "status", rec.Status)
	return nil
}

func (r *RecordStore) Get(ctx context.Context, id uuid.UUID) (payment.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, status, card_number_last_four, expiry_month, expiry_year, currency, amount, authorization_code, authorized
		 FROM payments
		 WHERE id = ?`,
		id.String(),
	)

	var (
		rec        payment.Record
		rawID      string
		status     string
		currency   string
		authorized sql.NullBool
	)
	if err := row.Scan(
		&rawID,
		&status,
		&rec.CardNumberLastFour,
		&rec.ExpiryMonth,
		&rec.ExpiryYear,
		&currency,
		&rec.Amount,
		&rec.AuthorizationCode,
		&authorized,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payment.Record{}, store.ErrNotFound
		}
		return payment.Record{}, fmt.Errorf("sqlite: select payment %s: %w", id, err)
	}

	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return payment.Record{}, fmt.Errorf("sqlite: corrupt payment id %q: %w", rawID, err)
	}
	rec.ID = parsed
	rec.Status = payment.Status(status)
	rec.Currency = payment.Currency(currency)
	if authorized.Valid {
		v := authorized.Bool
		rec.Authorized = &v
	}
	return rec, nil
}

func (r *RecordStore) Update(ctx context.Context, rec payment.Record) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET status = ?, authorization_code = ?, authorized = ?
		 WHERE id = ?`,
		string(rec.Status),
		rec.AuthorizationCode,
		nullBool(rec.Authorized),
		rec.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: update payment %s: %w", rec.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update payment %s: %w", rec.ID, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *RecordStore) Remove(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("sqlite: delete payment %s: %w", id, err)
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
