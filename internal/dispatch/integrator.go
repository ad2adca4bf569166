package dispatch

import (
	"context"

	"github.com/matheus3301/tgchats/internal/store"
	"github.com/matheus3301/tgchats/internal/worker"
	"go.uber.org/zap"
)

// Integrator folds worker media replies back into the cache and the state.
type Integrator struct {
	cache  Cache
	notify Notifier
	logger *zap.Logger
}

func NewIntegrator(cache Cache, notify Notifier, logger *zap.Logger) *Integrator {
	return &Integrator{cache: cache, notify: notify, logger: logger}
}

// Handle reports whether r was a media reply it consumed.
func (i *Integrator) Handle(ctx context.Context, r worker.Reply) bool {
	switch r := r.(type) {
	case worker.MediaResult:
		i.notify.MediaDownloaded(r.ChatID, r.MessageID, r.Hash, r.Data)
		return true
	case worker.PhotoResult:
		p, err := i.cache.PutPhoto(ctx, r.PhotoID, r.Data)
		if err != nil {
			i.logger.Warn("cache write failed", zap.String("photo_id", r.PhotoID), zap.Error(err))
			p = &store.Photo{ID: r.PhotoID, Data: r.Data}
		}
		i.notify.ThumbnailUpdated(r.PhotoID, p)
		return true
	case worker.ErrorReply:
		if r.For != worker.KindPhoto && r.For != worker.KindMedia {
			return false
		}
		// The task is consumed; the chat keeps its fallback icon until a
		// later sync emits it again.
		i.logger.Info("media task failed",
			zap.Stringer("kind", r.For),
			zap.String("photo_id", r.PhotoID),
			zap.Int64("chat_id", r.ChatID),
			zap.Error(r.Err),
		)
		return true
	default:
		return false
	}
}
