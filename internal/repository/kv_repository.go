package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KVRepository stores string values in the app_state table. It backs the
// timer snapshot and configuration overrides.
type KVRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewKVRepository(db *sql.DB) *KVRepository {
	return &KVRepository{db: db, now: time.Now}
}

func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get app_state %s: %w", key, err)
	}
	return value, true, nil
}

func (r *KVRepository) Put(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("set app_state: empty key")
	}
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO app_state(key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		formatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("set app_state %s: %w", key, err)
	}
	return nil
}

func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete app_state %s: %w", key, err)
	}
	return nil
}
