// Package worker runs protocol work in an isolated background context. A
// worker owns its own client, talks to the daemon only through Request and
// Reply messages, and exists in one of two mutually exclusive modes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/tgchats/internal/telegram"
	"go.uber.org/zap"
)

// Mode selects what a worker is allowed to do.
type Mode int

const (
	// ModeAuth drives the login handshake. It never holds an auth key.
	ModeAuth Mode = iota
	// ModeAuthorized serves media and profile photo downloads.
	ModeAuthorized
)

func (m Mode) String() string {
	if m == ModeAuthorized {
		return "authorized"
	}
	return "auth"
}

var (
	// ErrWrongMode is replied to requests the worker's mode does not serve.
	ErrWrongMode = errors.New("request not served in this worker mode")
	// ErrWorkerGone is returned when sending to a worker that has exited.
	ErrWorkerGone = errors.New("worker has terminated")
)

// Config holds the worker pacing and warm-up parameters.
type Config struct {
	Media       DelayPolicy
	Photo       DelayPolicy
	DialogLimit int
}

// Worker is one background execution context.
type Worker struct {
	id      string
	mode    Mode
	cfg     Config
	factory telegram.Factory
	logger  *zap.Logger

	in   chan Request
	out  chan Reply
	done chan struct{}

	connected atomic.Bool
	warm      atomic.Bool

	mu      sync.RWMutex
	client  telegram.Client
	dialogs map[int64]telegram.Dialog

	media  *Queue[MediaRequest]
	photos *Queue[PhotoRequest]
}

func newWorker(mode Mode, cfg Config, factory telegram.Factory, logger *zap.Logger) *Worker {
	id := uuid.NewString()
	w := &Worker{
		id:      id,
		mode:    mode,
		cfg:     cfg,
		factory: factory,
		logger:  logger.With(zap.String("worker", id), zap.Stringer("mode", mode)),
		in:      make(chan Request, 64),
		out:     make(chan Reply, 16),
		done:    make(chan struct{}),
		dialogs: make(map[int64]telegram.Dialog),
	}
	w.media = NewQueue("media", cfg.Media, w.isConnected, w.handleMedia, w.logger)
	w.photos = NewQueue("photo", cfg.Photo, w.isReady, w.handlePhoto, w.logger)
	return w
}

// ID returns the worker's unique id.
func (w *Worker) ID() string { return w.id }

// Mode returns the worker's mode.
func (w *Worker) Mode() Mode { return w.mode }

// Replies is closed once the worker has exited.
func (w *Worker) Replies() <-chan Reply { return w.out }

// Send delivers a copy of req to the worker.
func (w *Worker) Send(ctx context.Context, req Request) error {
	select {
	case w.in <- copyRequest(req):
		return nil
	case <-w.done:
		return ErrWorkerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the worker's message loop. It returns after a Disconnect has been
// acknowledged or ctx is cancelled.
func (w *Worker) run(ctx context.Context) {
	qctx, qcancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		qcancel()
		wg.Wait()
		close(w.done)
		close(w.out)
	}()

	if w.mode == ModeAuthorized {
		wg.Add(2)
		go func() { defer wg.Done(); w.media.Run(qctx) }()
		go func() { defer wg.Done(); w.photos.Run(qctx) }()
	}

	for {
		var req Request
		select {
		case req = <-w.in:
		case <-ctx.Done():
			w.shutdown()
			return
		}

		switch r := req.(type) {
		case Connect:
			w.connect(qctx, r, &wg)
		case MediaRequest:
			if w.mode != ModeAuthorized {
				w.reply(ctx, ErrorReply{For: KindMedia, ChatID: r.ChatID, Err: ErrWrongMode})
				continue
			}
			w.media.Push(r)
		case PhotoRequest:
			if w.mode != ModeAuthorized {
				w.reply(ctx, ErrorReply{For: KindPhoto, PhotoID: r.PhotoID, ChatID: r.ChatID, Err: ErrWrongMode})
				continue
			}
			w.photos.Push(r)
		case SendCode:
			w.sendCode(ctx, r)
		case SignIn:
			w.signIn(ctx, r)
		case Disconnect:
			w.shutdown()
			qcancel()
			wg.Wait()
			w.reply(ctx, Ack{For: KindDisconnect})
			w.reply(ctx, Terminated{})
			return
		default:
			w.logger.Warn("ignoring unknown request", zap.String("type", fmt.Sprintf("%T", req)))
		}
	}
}

func (w *Worker) conn() telegram.Client {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.client
}

// live returns the current client, or ErrNotConnected between a failed
// connect and the next one.
func (w *Worker) live() (telegram.Client, error) {
	if c := w.conn(); c != nil {
		return c, nil
	}
	return nil, telegram.ErrNotConnected
}

func (w *Worker) shutdown() {
	if c := w.conn(); c != nil {
		c.Disconnect()
	}
	w.connected.Store(false)
}

// connect is idempotent while the connection is up. A Connect that finds the
// previous attempt failed or the connection dropped replaces the client;
// queued work stays queued and resumes once the new client is warm.
func (w *Worker) connect(ctx context.Context, r Connect, wg *sync.WaitGroup) {
	if old := w.conn(); old != nil {
		if w.connected.Load() {
			w.reply(ctx, Ack{For: KindConnect})
			return
		}
		w.logger.Info("worker reconnecting")
		w.mu.Lock()
		w.client = nil
		w.mu.Unlock()
		w.warm.Store(false)
		old.Disconnect()
	}

	s := r.Session
	if w.mode == ModeAuth {
		s = s.WithoutKey()
	}
	client, err := w.factory(s)
	if err != nil {
		w.reply(ctx, ErrorReply{For: KindConnect, Err: fmt.Errorf("create client: %w", err)})
		return
	}
	client.OnEvent(func(evt telegram.Event) {
		if w.conn() != client {
			return
		}
		switch evt.Kind {
		case telegram.EventConnected:
			w.connected.Store(true)
		case telegram.EventDisconnected:
			w.connected.Store(false)
		}
	})
	w.mu.Lock()
	w.client = client
	w.mu.Unlock()
	if err := client.Connect(ctx); err != nil {
		w.mu.Lock()
		w.client = nil
		w.mu.Unlock()
		w.connected.Store(false)
		w.reply(ctx, ErrorReply{For: KindConnect, Err: err})
		return
	}
	w.connected.Store(true)
	w.logger.Info("worker connected", zap.Int("dc", s.DC))
	w.reply(ctx, Ack{For: KindConnect})

	if w.mode == ModeAuthorized {
		wg.Add(1)
		go func() { defer wg.Done(); w.warmUp(ctx, client) }()
	}
}

// warmUp fills the private dialog map, retrying every photo Pause until it
// succeeds or client is replaced. The origin fallback only trusts chats found
// here.
func (w *Worker) warmUp(ctx context.Context, client telegram.Client) {
	for w.conn() == client {
		dialogs, err := client.Dialogs(ctx, telegram.DialogOptions{Limit: w.cfg.DialogLimit})
		if err == nil {
			w.mu.Lock()
			for _, d := range dialogs {
				w.dialogs[d.ID()] = d
			}
			w.mu.Unlock()
			w.warm.Store(true)
			w.logger.Info("worker warmed up", zap.Int("dialogs", len(dialogs)))
			return
		}
		w.logger.Warn("worker warm-up failed", zap.Error(err))
		if sleepCtx(ctx, w.photos.policy.Pause) != nil {
			return
		}
	}
}

func (w *Worker) isConnected() bool { return w.connected.Load() }

func (w *Worker) isReady() bool { return w.connected.Load() && w.warm.Load() }

func (w *Worker) hasDialog(chatID int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.dialogs[chatID]
	return ok
}

func (w *Worker) sendCode(ctx context.Context, r SendCode) {
	if w.mode != ModeAuth {
		w.reply(ctx, ErrorReply{For: KindSendCode, Err: ErrWrongMode})
		return
	}
	client, err := w.live()
	if err != nil {
		w.reply(ctx, ErrorReply{For: KindSendCode, Err: err})
		return
	}
	if err := client.SendCode(ctx, r.Phone); err != nil {
		w.reply(ctx, ErrorReply{For: KindSendCode, Err: err})
		return
	}
	w.reply(ctx, CodeSent{Phone: r.Phone})
}

func (w *Worker) signIn(ctx context.Context, r SignIn) {
	if w.mode != ModeAuth {
		w.reply(ctx, ErrorReply{For: KindSignIn, Err: ErrWrongMode})
		return
	}
	client, err := w.live()
	if err != nil {
		w.reply(ctx, ErrorReply{For: KindSignIn, Err: err})
		return
	}
	user, err := client.SignIn(ctx, r.Phone, r.Code, r.Password)
	if err != nil {
		w.reply(ctx, ErrorReply{For: KindSignIn, Err: err})
		return
	}
	s, err := client.Session(ctx)
	if err != nil {
		w.reply(ctx, ErrorReply{For: KindSignIn, Err: fmt.Errorf("export session: %w", err)})
		return
	}
	w.logger.Info("sign in complete", zap.Int64("user_id", user.ID))
	w.reply(ctx, Authorized{Session: s, User: *user})
}

func (w *Worker) handleMedia(ctx context.Context, r MediaRequest) {
	started := time.Now()
	data, err := w.messageMedia(ctx, r.ChatID, r.MessageID)
	if err != nil {
		w.logger.Debug("media download failed", zap.Int64("chat_id", r.ChatID), zap.Int("msg_id", r.MessageID), zap.Error(err))
		w.reply(ctx, ErrorReply{For: KindMedia, ChatID: r.ChatID, Err: err})
		return
	}
	w.logger.Debug("media downloaded", zap.Int64("chat_id", r.ChatID), zap.Duration("took", time.Since(started)))
	w.reply(ctx, MediaResult{
		ChatID:    r.ChatID,
		MessageID: r.MessageID,
		Hash:      MediaHash(r.ChatID, r.MessageID),
		Data:      data,
	})
}

func (w *Worker) messageMedia(ctx context.Context, chatID int64, msgID int) ([]byte, error) {
	msg, err := w.message(ctx, chatID, msgID)
	if err != nil {
		return nil, err
	}
	if msg.Media == nil {
		return nil, telegram.ErrNoMedia
	}
	client, err := w.live()
	if err != nil {
		return nil, err
	}
	return client.DownloadMedia(ctx, msg.Media)
}

func (w *Worker) message(ctx context.Context, chatID int64, msgID int) (*telegram.Message, error) {
	client, err := w.live()
	if err != nil {
		return nil, err
	}
	msgs, err := client.Messages(ctx, chatID, msgID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, telegram.ErrMessageNotFound
	}
	return &msgs[0], nil
}

// handlePhoto downloads a profile photo directly and, failing that, the
// photo of the origin message's sender when the origin chat is known.
func (w *Worker) handlePhoto(ctx context.Context, r PhotoRequest) {
	fail := func(err error) {
		w.logger.Debug("photo download failed", zap.String("photo_id", r.PhotoID), zap.Error(err))
		w.reply(ctx, ErrorReply{For: KindPhoto, PhotoID: r.PhotoID, ChatID: r.ChatID, Err: err})
	}

	photoID, err := strconv.ParseInt(r.PhotoID, 10, 64)
	if err != nil {
		fail(fmt.Errorf("parse photo id: %w", err))
		return
	}
	client, err := w.live()
	if err != nil {
		fail(err)
		return
	}
	data, err := client.DownloadProfilePhoto(ctx, r.ChatID, telegram.PhotoOptions{PhotoID: photoID})
	if err == nil {
		w.reply(ctx, PhotoResult{PhotoID: r.PhotoID, ChatID: r.ChatID, Data: data})
		return
	}
	if r.Origin == nil || !w.hasDialog(r.Origin.ChatID) {
		fail(err)
		return
	}

	data, ferr := w.senderPhoto(ctx, r.Origin.ChatID, r.Origin.MessageID)
	if ferr != nil {
		fail(errors.Join(err, fmt.Errorf("origin fallback: %w", ferr)))
		return
	}
	w.logger.Debug("photo resolved through origin", zap.String("photo_id", r.PhotoID))
	w.reply(ctx, PhotoResult{PhotoID: r.PhotoID, ChatID: r.ChatID, Data: data})
}

func (w *Worker) senderPhoto(ctx context.Context, chatID int64, msgID int) ([]byte, error) {
	msg, err := w.message(ctx, chatID, msgID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == 0 {
		return nil, telegram.ErrNoPhoto
	}
	client, err := w.live()
	if err != nil {
		return nil, err
	}
	return client.DownloadProfilePhoto(ctx, msg.SenderID, telegram.PhotoOptions{})
}

func (w *Worker) reply(ctx context.Context, r Reply) {
	select {
	case w.out <- copyReply(r):
	case <-ctx.Done():
		w.logger.Debug("dropping reply", zap.Stringer("kind", r.Kind()))
	}
}
