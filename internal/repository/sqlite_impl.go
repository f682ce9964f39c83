package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type sqliteKVRepository struct {
	db *sqlx.DB
}

func (r *sqliteKVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	if err := r.db.GetContext(ctx, &value, "SELECT value FROM kv_store WHERE key = ?", key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (r *sqliteKVRepository) Set(ctx context.Context, key string, value []byte) error {
	q := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, q, key, value)
	return err
}

func (r *sqliteKVRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
	return err
}

func (r *sqliteKVRepository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, "SELECT key FROM kv_store ORDER BY key"); err != nil {
		return nil, err
	}
	return keys, nil
}
