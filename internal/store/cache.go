package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Get returns the raw value stored under key. The boolean is false on a miss.
func (db *DB) Get(ctx context.Context, s Store, key string) ([]byte, bool, error) {
	table, err := tableFor(s)
	if err != nil {
		return nil, false, err
	}
	var value []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM `+table+` WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", s, key, err)
	}
	return value, true, nil
}

// Put stores value under key, overwriting any previous value.
func (db *DB) Put(ctx context.Context, s Store, value []byte, key string) error {
	table, err := tableFor(s)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s, key, err)
	}
	return nil
}

// Count returns the number of keys in a store.
func (db *DB) Count(ctx context.Context, s Store) (int64, error) {
	table, err := tableFor(s)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}
