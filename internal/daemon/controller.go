package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/state"
	"github.com/matheus3301/tgchats/internal/status"
	"github.com/matheus3301/tgchats/internal/telegram"
	"github.com/matheus3301/tgchats/internal/worker"
	"go.uber.org/zap"
)

const reconnectDelay = 5 * time.Second

// Workers is the worker registry as seen by the controller.
type Workers interface {
	Results() <-chan worker.Result
	Ensure(ctx context.Context, mode worker.Mode, s telegram.SessionData) error
	SendCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, phone, code, password string) error
	Close(ctx context.Context) error
}

// ResultHandler consumes media replies.
type ResultHandler interface {
	Handle(ctx context.Context, r worker.Reply) bool
}

// Syncer schedules a chat list pass.
type Syncer interface {
	Trigger()
}

// Controller owns the main protocol client and decides which worker runs:
// an authorized one when the main session is logged in, an auth one
// otherwise.
type Controller struct {
	main    telegram.Client
	workers Workers
	results ResultHandler
	syncer  Syncer
	state   *state.Store
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	reconnectDelay time.Duration

	checkMu sync.Mutex
	mu      sync.Mutex
	phone   string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewController creates a controller. Nothing runs until Start.
func NewController(main telegram.Client, workers Workers, results ResultHandler, syncer Syncer,
	st *state.Store, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Controller {
	return &Controller{
		main:           main,
		workers:        workers,
		results:        results,
		syncer:         syncer,
		state:          st,
		machine:        machine,
		bus:            b,
		logger:         logger,
		reconnectDelay: reconnectDelay,
	}
}

// Start wires the main client's events onto the bus and runs the first
// authorization check in the background.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	c.main.OnEvent(c.handleEvent)

	sessionCh, unsubSession := c.bus.Subscribe("session.", 16)
	syncCh, unsubSync := c.bus.Subscribe("sync.", 16)

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.resultLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		defer unsubSession()
		defer unsubSync()
		for {
			select {
			case evt := <-sessionCh:
				if evt.Kind == bus.KindRecheckAuth {
					c.logger.Info("re-checking authorization")
					c.goCheck(ctx)
				}
			case evt := <-syncCh:
				c.handleSyncEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		c.checkAuth(ctx)
	}()
}

// Stop tears down workers and the main connection.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := c.workers.Close(ctx); err != nil {
		c.logger.Warn("closing worker", zap.Error(err))
	}
	c.main.Disconnect()
	c.wg.Wait()
}

func (c *Controller) goCheck(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.checkAuth(ctx)
	}()
}

// checkAuth connects the main client and spawns the worker matching its
// authorization state.
func (c *Controller) checkAuth(ctx context.Context) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	c.transition(status.Connecting)
	if err := c.main.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("connect failed", zap.Error(err))
		c.transition(status.Reconnecting)
		c.scheduleReconnect(ctx)
		return
	}

	authorized, err := c.main.IsAuthorized(ctx)
	if err != nil {
		c.logger.Error("authorization check failed", zap.Error(err))
		c.transition(status.Degraded)
		return
	}
	sess, err := c.main.Session(ctx)
	if err != nil {
		c.logger.Error("export session", zap.Error(err))
		c.transition(status.Degraded)
		return
	}

	c.state.SetAuthorized(authorized)
	if !authorized {
		c.logger.Info("session not authorized, waiting for login")
		c.transition(status.AuthRequired)
		if err := c.workers.Ensure(ctx, worker.ModeAuth, sess); err != nil {
			c.logger.Error("start auth worker", zap.Error(err))
		}
		return
	}
	c.activate(ctx, sess)
}

// activate hands the full session to an authorized worker and syncs. A
// healthy authorized worker is kept; one that lost its connection is told to
// reconnect.
func (c *Controller) activate(ctx context.Context, sess telegram.SessionData) {
	if err := c.workers.Ensure(ctx, worker.ModeAuthorized, sess); err != nil {
		c.logger.Error("start authorized worker", zap.Error(err))
		c.transition(status.Degraded)
		return
	}
	c.transition(status.Syncing)
	c.syncer.Trigger()
}

func (c *Controller) scheduleReconnect(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-time.After(c.reconnectDelay):
			c.checkAuth(ctx)
		case <-ctx.Done():
		}
	}()
}

// handleEvent maps main-client events onto the bus.
func (c *Controller) handleEvent(evt telegram.Event) {
	switch evt.Kind {
	case telegram.EventConnected:
		c.logger.Info("telegram connected")
		c.state.SetConnected(true)
		c.bus.Emit(bus.KindConnected, nil)
	case telegram.EventDisconnected:
		c.state.SetConnected(false)
		c.bus.Emit(bus.KindDisconnected, errString(evt.Err))
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		// A local Disconnect (shutdown or Restore) ends without an error.
		if ctx == nil || ctx.Err() != nil || evt.Err == nil || errors.Is(evt.Err, context.Canceled) {
			return
		}
		c.logger.Warn("telegram disconnected", zap.Error(evt.Err))
		c.transition(status.Reconnecting)
		c.scheduleReconnect(ctx)
	default:
		c.bus.Emit(bus.KindUpdatePrefix+string(evt.Kind), nil)
	}
}

func (c *Controller) handleSyncEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSyncCompleted:
		c.transition(status.Ready)
	case bus.KindSyncFailed:
		c.transition(status.Degraded)
	}
}

// resultLoop drains worker replies. Replies that need a worker switch are
// handled off the loop: Ensure waits for the old worker's replies to drain
// through this very channel.
func (c *Controller) resultLoop(ctx context.Context) {
	for {
		select {
		case res := <-c.workers.Results():
			c.handleResult(ctx, res)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) handleResult(ctx context.Context, res worker.Result) {
	if c.results.Handle(ctx, res.Reply) {
		return
	}
	switch r := res.Reply.(type) {
	case worker.CodeSent:
		c.state.AuthProgress(state.AuthProgress{Stage: "code_sent", Phone: r.Phone})
	case worker.Authorized:
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.authorized(ctx, r)
		}()
	case worker.ErrorReply:
		c.logger.Warn("worker request failed",
			zap.String("worker", res.WorkerID),
			zap.Stringer("request", r.For),
			zap.Error(r.Err),
		)
		switch r.For {
		case worker.KindSendCode, worker.KindSignIn:
			c.state.AuthProgress(state.AuthProgress{Stage: "failed", Phone: c.loginPhone(), Error: errString(r.Err)})
		case worker.KindConnect:
			c.transition(status.Degraded)
			if ctx.Err() == nil {
				c.scheduleReconnect(ctx)
			}
		}
	case worker.Ack, worker.Terminated:
		c.logger.Debug("worker reply", zap.String("worker", res.WorkerID), zap.Stringer("kind", r.Kind()))
	default:
		c.logger.Warn("unhandled worker reply", zap.Stringer("kind", r.Kind()))
	}
}

// authorized adopts the session an auth worker signed in with.
func (c *Controller) authorized(ctx context.Context, a worker.Authorized) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	c.logger.Info("login completed", zap.Int64("user_id", a.User.ID))
	if err := c.main.Restore(ctx, a.Session); err != nil {
		c.logger.Error("restore main session", zap.Error(err))
		c.state.AuthProgress(state.AuthProgress{Stage: "failed", Error: err.Error()})
		return
	}
	c.state.SetAuthorized(true)
	c.state.AuthProgress(state.AuthProgress{Stage: "authorized", Phone: c.loginPhone()})
	c.activate(ctx, a.Session)
}

// SendCode starts a phone login on the auth worker.
func (c *Controller) SendCode(ctx context.Context, phone string) error {
	if err := c.workers.SendCode(ctx, phone); err != nil {
		return err
	}
	c.mu.Lock()
	c.phone = phone
	c.mu.Unlock()
	return nil
}

// SignIn completes the login. An empty phone means the one last passed to
// SendCode.
func (c *Controller) SignIn(ctx context.Context, phone, code, password string) error {
	if phone == "" {
		phone = c.loginPhone()
	}
	if phone == "" {
		return api.ErrNoPhone
	}
	return c.workers.SignIn(ctx, phone, code, password)
}

func (c *Controller) loginPhone() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phone
}

func (c *Controller) transition(to status.State) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("status transition skipped", zap.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
