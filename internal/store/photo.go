package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// GetPhoto returns the cached photo for id, or nil if it has not been stored.
func (db *DB) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	p := Photo{ID: id}
	err := db.QueryRowContext(ctx, `SELECT value, mime_type FROM profile_photos WHERE key = ?`, id).
		Scan(&p.Data, &p.MIMEType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get photo %s: %w", id, err)
	}
	return &p, nil
}

// PutPhoto stores a raw image payload under id, sniffing its MIME type.
func (db *DB) PutPhoto(ctx context.Context, id string, data []byte) (*Photo, error) {
	p := &Photo{ID: id, MIMEType: http.DetectContentType(data), Data: data}
	_, err := db.ExecContext(ctx, `
		INSERT INTO profile_photos (key, value, mime_type, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			mime_type = excluded.mime_type,
			updated_at = excluded.updated_at`,
		p.ID, p.Data, p.MIMEType, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("put photo %s: %w", id, err)
	}
	return p, nil
}

// ListPhotos returns every cached photo, ordered by id.
func (db *DB) ListPhotos(ctx context.Context) ([]Photo, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value, mime_type FROM profile_photos ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var photos []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.Data, &p.MIMEType); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}
