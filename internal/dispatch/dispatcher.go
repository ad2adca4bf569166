// Package dispatch routes thumbnail tasks: cache first, then the public
// scrape path, then the authorized worker.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cache is the subset of the local cache the dispatcher touches.
type Cache interface {
	GetPhoto(ctx context.Context, id string) (*store.Photo, error)
	PutPhoto(ctx context.Context, id string, data []byte) (*store.Photo, error)
	MergePreference(ctx context.Context, chatID int64, in store.Preference) (*store.Preference, error)
}

// Scraper fetches a public photo by handle.
type Scraper interface {
	Photo(ctx context.Context, handle string) ([]byte, error)
}

// Forwarder hands a task to the authorized worker without waiting.
type Forwarder interface {
	ForwardPhoto(ctx context.Context, t chat.MediaTask) error
}

// Notifier receives resolved media.
type Notifier interface {
	ThumbnailUpdated(photoID string, p *store.Photo)
	MediaDownloaded(chatID int64, messageID int, hash string, data []byte)
}

// Stats summarizes one Dispatch call.
type Stats struct {
	Hits      int64
	Scraped   int64
	Forwarded int64
	Escalated int64
	Dropped   int64
	Failed    int64
}

// Dispatcher resolves thumbnail tasks.
type Dispatcher struct {
	cache     Cache
	scraper   Scraper
	forwarder Forwarder
	notify    Notifier
	logger    *zap.Logger
	limit     int
}

// New creates a Dispatcher running at most limit tasks at once (<= 0 means
// unbounded).
func New(cache Cache, scraper Scraper, forwarder Forwarder, notify Notifier, limit int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cache:     cache,
		scraper:   scraper,
		forwarder: forwarder,
		notify:    notify,
		logger:    logger,
		limit:     limit,
	}
}

// Dispatch applies prefs in order, then resolves every task. Within one call
// a photo identity is resolved at most once; later duplicates are dropped
// and pick the result up from the cache. Errors are logged per task.
func (d *Dispatcher) Dispatch(ctx context.Context, scrapeTasks, workerTasks []chat.MediaTask, prefs []chat.Preference) Stats {
	for _, p := range prefs {
		if _, err := d.cache.MergePreference(ctx, p.ChatID, store.Preference{Muted: p.Muted, ScrollAt: p.ScrollAt}); err != nil {
			d.logger.Warn("merge preference failed", zap.Int64("chat_id", p.ChatID), zap.Error(err))
		}
	}

	var st stats
	claimed := newClaims()
	g, gctx := errgroup.WithContext(ctx)
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}

	for _, t := range scrapeTasks {
		if !claimed.claim(t.PhotoID) {
			st.dropped.Add(1)
			continue
		}
		g.Go(func() error {
			d.scrape(gctx, t, &st)
			return nil
		})
	}
	for _, t := range workerTasks {
		if !claimed.claim(t.PhotoID) {
			st.dropped.Add(1)
			continue
		}
		g.Go(func() error {
			d.forward(gctx, t, &st)
			return nil
		})
	}
	_ = g.Wait()

	out := st.snapshot()
	d.logger.Debug("dispatch complete",
		zap.Int("scrape_tasks", len(scrapeTasks)),
		zap.Int("worker_tasks", len(workerTasks)),
		zap.Int64("hits", out.Hits),
		zap.Int64("scraped", out.Scraped),
		zap.Int64("forwarded", out.Forwarded),
		zap.Int64("dropped", out.Dropped),
	)
	return out
}

// cached reports whether t was served from the cache.
func (d *Dispatcher) cached(ctx context.Context, t chat.MediaTask, st *stats) bool {
	p, err := d.cache.GetPhoto(ctx, t.PhotoID)
	if err != nil {
		d.logger.Warn("cache read failed", zap.String("photo_id", t.PhotoID), zap.Error(err))
		return false
	}
	if p == nil {
		return false
	}
	st.hits.Add(1)
	d.notify.ThumbnailUpdated(t.PhotoID, p)
	return true
}

func (d *Dispatcher) scrape(ctx context.Context, t chat.MediaTask, st *stats) {
	if d.cached(ctx, t, st) {
		return
	}
	data, err := d.scraper.Photo(ctx, t.Handle)
	if err == nil {
		p, perr := d.cache.PutPhoto(ctx, t.PhotoID, data)
		if perr != nil {
			d.logger.Warn("cache write failed", zap.String("photo_id", t.PhotoID), zap.Error(perr))
			p = &store.Photo{ID: t.PhotoID, Data: data}
		}
		st.scraped.Add(1)
		d.notify.ThumbnailUpdated(t.PhotoID, p)
		return
	}

	d.logger.Debug("scrape failed, escalating to worker",
		zap.String("photo_id", t.PhotoID), zap.String("handle", t.Handle), zap.Error(err))
	st.escalated.Add(1)
	d.send(ctx, t.Escalate(), st)
}

func (d *Dispatcher) forward(ctx context.Context, t chat.MediaTask, st *stats) {
	if d.cached(ctx, t, st) {
		return
	}
	d.send(ctx, t, st)
}

func (d *Dispatcher) send(ctx context.Context, t chat.MediaTask, st *stats) {
	if err := d.forwarder.ForwardPhoto(ctx, t); err != nil {
		st.failed.Add(1)
		d.logger.Warn("forward to worker failed", zap.String("photo_id", t.PhotoID), zap.Error(err))
		return
	}
	st.forwarded.Add(1)
}

type claims struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newClaims() *claims { return &claims{ids: make(map[string]struct{})} }

func (c *claims) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return false
	}
	c.ids[id] = struct{}{}
	return true
}

type stats struct {
	hits, scraped, forwarded, escalated, dropped, failed atomic.Int64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Scraped:   s.scraped.Load(),
		Forwarded: s.forwarded.Load(),
		Escalated: s.escalated.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
	}
}
