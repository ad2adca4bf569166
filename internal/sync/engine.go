package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/dispatch"
	"github.com/matheus3301/tgchats/internal/telegram"
	"go.uber.org/zap"
)

// Source is the protocol capability a sync pass reads from.
type Source interface {
	SelfUser(ctx context.Context) (*telegram.User, error)
	Dialogs(ctx context.Context, opts telegram.DialogOptions) ([]telegram.Dialog, error)
}

// Publisher receives the chat list of every successful pass.
type Publisher interface {
	SetChats(chats []chat.Chat)
	SetSelf(u *telegram.User)
}

// Dispatcher resolves the thumbnail tasks of a pass.
type Dispatcher interface {
	Dispatch(ctx context.Context, scrapeTasks, workerTasks []chat.MediaTask, prefs []chat.Preference) dispatch.Stats
}

// Result is the payload of sync.completed.
type Result struct {
	Chats       int
	ScrapeTasks int
	WorkerTasks int
	Took        time.Duration
}

// Engine rebuilds the chat list from the dialog list. It subscribes to
// "tg.update." events on the bus; bursts of updates collapse into one
// pending pass behind the one in flight.
type Engine struct {
	src        Source
	state      Publisher
	dispatcher Dispatcher
	reconciler *Reconciler
	bus        *bus.Bus
	logger     *zap.Logger
	limit      int
	now        func() time.Time

	pending chan struct{}
	runMu   gosync.Mutex
	cancel  context.CancelFunc

	baseMu gosync.Mutex
	base   context.Context
	wg     gosync.WaitGroup
}

// NewEngine creates a new sync engine. limit is the dialog page size.
func NewEngine(src Source, state Publisher, d Dispatcher, r *Reconciler, b *bus.Bus, limit int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		src:        src,
		state:      state,
		dispatcher: d,
		reconciler: r,
		bus:        b,
		logger:     logger,
		limit:      limit,
		now:        time.Now,
		pending:    make(chan struct{}, 1),
	}
}

// Start subscribes to protocol update events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.baseMu.Lock()
	e.base = ctx
	e.baseMu.Unlock()

	ch, unsub := e.bus.Subscribe(bus.KindUpdatePrefix, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case <-e.pending:
				if _, err := e.Synchronize(ctx); err != nil {
					e.logger.Warn("sync failed, keeping previous chat list", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for running dispatches to wind down.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Trigger schedules a pass. It never blocks; a trigger arriving while one is
// already pending is absorbed by it.
func (e *Engine) Trigger() {
	select {
	case e.pending <- struct{}{}:
	default:
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindUpdatePrefix + string(telegram.EventUpdatesTooLong):
		// The update stream is stale enough that the identity itself is
		// re-confirmed before anything else.
		e.bus.Emit(bus.KindRecheckAuth, nil)
	case bus.KindUpdatePrefix + string(telegram.EventNewMessage),
		bus.KindUpdatePrefix + string(telegram.EventEditMessage),
		bus.KindUpdatePrefix + string(telegram.EventDeleteMessages),
		bus.KindUpdatePrefix + string(telegram.EventReadInbox),
		bus.KindUpdatePrefix + string(telegram.EventFolderPeers):
		e.Trigger()
	default:
		e.logger.Debug("ignoring update", zap.String("kind", evt.Kind))
	}
}

// Synchronize runs one pass: fetch, annotate, publish the chats, then hand
// the tasks to the dispatcher without waiting. On failure nothing is
// published and the previous list stays.
func (e *Engine) Synchronize(ctx context.Context) ([]chat.Chat, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	started := e.now()
	self, err := e.src.SelfUser(ctx)
	if err != nil {
		return nil, e.fail(fmt.Errorf("get self user: %w", err))
	}
	dialogs, err := e.src.Dialogs(ctx, telegram.DialogOptions{
		Limit:         e.limit,
		ExcludePinned: true,
		FolderID:      0,
	})
	if err != nil {
		return nil, e.fail(fmt.Errorf("get dialogs: %w", err))
	}

	batch := chat.Annotate(dialogs, self.ID, started)
	e.state.SetSelf(self)
	e.state.SetChats(batch.Chats)
	if e.reconciler != nil {
		e.reconciler.RecordSync(ctx, started, len(batch.Chats))
	}

	res := Result{
		Chats:       len(batch.Chats),
		ScrapeTasks: len(batch.ScrapeTasks),
		WorkerTasks: len(batch.WorkerTasks),
		Took:        time.Since(started),
	}
	e.logger.Info("chats synchronized",
		zap.Int("chats", res.Chats),
		zap.Int("scrape_tasks", res.ScrapeTasks),
		zap.Int("worker_tasks", res.WorkerTasks),
		zap.Duration("took", res.Took),
	)
	e.bus.Emit(bus.KindSyncCompleted, res)

	dctx := e.dispatchContext(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatcher.Dispatch(dctx, batch.ScrapeTasks, batch.WorkerTasks, batch.Prefs)
	}()
	return batch.Chats, nil
}

func (e *Engine) fail(err error) error {
	e.bus.Emit(bus.KindSyncFailed, err.Error())
	return err
}

// dispatchContext outlives the triggering call when the engine is running.
func (e *Engine) dispatchContext(ctx context.Context) context.Context {
	e.baseMu.Lock()
	defer e.baseMu.Unlock()
	if e.base != nil {
		return e.base
	}
	return context.WithoutCancel(ctx)
}
