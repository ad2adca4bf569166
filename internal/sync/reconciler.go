package sync

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/matheus3301/tgchats/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys in sync_state.
const (
	CheckpointLastSync  = "last_sync_at"
	CheckpointChatCount = "last_sync_chats"
)

// Reconciler manages sync checkpoints.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(ctx context.Context, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value. A missing key returns "".
func (r *Reconciler) GetCheckpoint(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// RecordSync stores the time and size of a successful pass.
func (r *Reconciler) RecordSync(ctx context.Context, at time.Time, chats int) {
	if err := r.UpdateCheckpoint(ctx, CheckpointLastSync, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		r.logger.Warn("failed to record sync checkpoint", zap.Error(err))
		return
	}
	if err := r.UpdateCheckpoint(ctx, CheckpointChatCount, strconv.Itoa(chats)); err != nil {
		r.logger.Warn("failed to record sync checkpoint", zap.Error(err))
	}
}

// LastSync returns the last recorded pass, or the zero time if none.
func (r *Reconciler) LastSync(ctx context.Context) (time.Time, int, error) {
	at, err := r.GetCheckpoint(ctx, CheckpointLastSync)
	if err != nil || at == "" {
		return time.Time{}, 0, err
	}
	ms, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return time.Time{}, 0, err
	}
	n, _ := r.GetCheckpoint(ctx, CheckpointChatCount)
	chats, _ := strconv.Atoi(n)
	return time.UnixMilli(ms), chats, nil
}
