package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/telegram"
	"go.uber.org/zap"
)

// ErrNoWorker is returned when no worker of the required mode is running.
var ErrNoWorker = errors.New("no worker of the required mode is running")

// Result is a reply tagged with the worker that produced it.
type Result struct {
	WorkerID string
	Mode     Mode
	Reply    Reply
}

type handle struct {
	w       *Worker
	cancel  context.CancelFunc
	acked   chan struct{}
	drained chan struct{}

	// connecting is set while a Connect has not been answered yet.
	connecting atomic.Bool
}

func (h *handle) healthy() bool {
	return h.connecting.Load() || h.w.isConnected()
}

// Registry keeps at most one live worker. Spawning a worker first tears down
// the current one with an acknowledged Disconnect.
type Registry struct {
	cfg     Config
	factory telegram.Factory
	logger  *zap.Logger
	results chan Result

	mu     sync.Mutex
	active *handle
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, factory telegram.Factory, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		results: make(chan Result, 64),
	}
}

// Results delivers the replies of every worker the registry has spawned.
func (r *Registry) Results() <-chan Result { return r.results }

// Active reports the mode of the live worker, if any.
func (r *Registry) Active() (Mode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return 0, false
	}
	return r.active.w.mode, true
}

// Healthy reports whether the live worker is connected or still answering
// its Connect. A worker whose connect failed or whose connection dropped is
// unhealthy until Ensure reconnects it.
func (r *Registry) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil && r.active.healthy()
}

// Spawn starts a worker in mode and hands it s. The auth key is stripped
// before an auth-mode worker ever sees the session.
func (r *Registry) Spawn(ctx context.Context, mode Mode, s telegram.SessionData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawnLocked(ctx, mode, s)
}

// Ensure leaves a healthy worker of mode alone, asks an unhealthy one to
// connect again with s, and spawns one otherwise. Reconnecting in place keeps
// the worker's queued requests.
func (r *Registry) Ensure(ctx context.Context, mode Mode, s telegram.SessionData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.active
	if h == nil || h.w.mode != mode {
		return r.spawnLocked(ctx, mode, s)
	}
	if h.healthy() {
		return nil
	}
	r.logger.Info("reconnecting unhealthy worker", zap.String("worker", h.w.id), zap.Stringer("mode", mode))
	h.connecting.Store(true)
	if err := h.w.Send(ctx, Connect{Session: sessionFor(mode, s)}); err != nil {
		h.connecting.Store(false)
		if errors.Is(err, ErrWorkerGone) {
			return r.spawnLocked(ctx, mode, s)
		}
		return err
	}
	return nil
}

func (r *Registry) spawnLocked(ctx context.Context, mode Mode, s telegram.SessionData) error {
	if r.active != nil {
		prev := r.active.w.mode
		if err := r.terminateLocked(ctx); err != nil {
			return fmt.Errorf("terminate %s worker: %w", prev, err)
		}
	}

	w := newWorker(mode, r.cfg, r.factory, r.logger)
	wctx, cancel := context.WithCancel(context.Background())
	h := &handle{w: w, cancel: cancel, acked: make(chan struct{}), drained: make(chan struct{})}
	h.connecting.Store(true)
	go w.run(wctx)
	go r.forward(h)
	r.active = h

	r.logger.Info("worker spawned", zap.String("worker", w.id), zap.Stringer("mode", mode))
	return w.Send(ctx, Connect{Session: sessionFor(mode, s)})
}

// sessionFor strips the auth key before an auth-mode worker ever sees s.
func sessionFor(mode Mode, s telegram.SessionData) telegram.SessionData {
	if mode == ModeAuth {
		return s.WithoutKey()
	}
	return s.Clone()
}

// Terminate stops the live worker if it runs in mode.
func (r *Registry) Terminate(ctx context.Context, mode Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.w.mode != mode {
		return nil
	}
	return r.terminateLocked(ctx)
}

// Close stops whichever worker is live.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	return r.terminateLocked(ctx)
}

// terminateLocked sends Disconnect, waits for its Ack and for the worker's
// remaining replies to be forwarded. If ctx ends first the worker is
// cancelled outright.
func (r *Registry) terminateLocked(ctx context.Context) error {
	h := r.active
	defer func() { r.active = nil }()

	if err := h.w.Send(ctx, Disconnect{}); err != nil {
		h.cancel()
		if errors.Is(err, ErrWorkerGone) {
			return nil
		}
		return err
	}
	select {
	case <-h.drained:
	case <-ctx.Done():
		h.cancel()
		return ctx.Err()
	}
	select {
	case <-h.acked:
		r.logger.Info("worker terminated", zap.String("worker", h.w.id), zap.Stringer("mode", h.w.mode))
	default:
		r.logger.Warn("worker exited without acknowledging disconnect", zap.String("worker", h.w.id))
	}
	return nil
}

// forward fans a worker's replies into the shared results channel.
func (r *Registry) forward(h *handle) {
	defer close(h.drained)
	defer h.cancel()
	for reply := range h.w.Replies() {
		switch rep := reply.(type) {
		case Ack:
			switch rep.For {
			case KindConnect:
				h.connecting.Store(false)
			case KindDisconnect:
				close(h.acked)
			}
		case ErrorReply:
			if rep.For == KindConnect {
				h.connecting.Store(false)
			}
		}
		r.results <- Result{WorkerID: h.w.id, Mode: h.w.mode, Reply: reply}
	}
}

func (r *Registry) send(ctx context.Context, mode Mode, req Request) error {
	r.mu.Lock()
	h := r.active
	r.mu.Unlock()
	if h == nil || h.w.mode != mode {
		return ErrNoWorker
	}
	return h.w.Send(ctx, req)
}

// ForwardPhoto hands a thumbnail task to the authorized worker.
func (r *Registry) ForwardPhoto(ctx context.Context, t chat.MediaTask) error {
	return r.send(ctx, ModeAuthorized, PhotoRequest{PhotoID: t.PhotoID, ChatID: t.ChatID, Origin: t.Origin})
}

// RequestMedia asks the authorized worker for a message's media.
func (r *Registry) RequestMedia(ctx context.Context, chatID int64, messageID int) error {
	return r.send(ctx, ModeAuthorized, MediaRequest{ChatID: chatID, MessageID: messageID})
}

// SendCode asks the auth worker to send a login code to phone.
func (r *Registry) SendCode(ctx context.Context, phone string) error {
	return r.send(ctx, ModeAuth, SendCode{Phone: phone})
}

// SignIn asks the auth worker to complete the login.
func (r *Registry) SignIn(ctx context.Context, phone, code, password string) error {
	return r.send(ctx, ModeAuth, SignIn{Phone: phone, Code: code, Password: password})
}
