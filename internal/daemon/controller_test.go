package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/state"
	"github.com/matheus3301/tgchats/internal/status"
	"github.com/matheus3301/tgchats/internal/telegram"
	"github.com/matheus3301/tgchats/internal/worker"
	"go.uber.org/zap"
)

// fakeMain is the main-context telegram.Client.
type fakeMain struct {
	mu         sync.Mutex
	authorized bool
	session    telegram.SessionData
	connects   int
	restored   *telegram.SessionData
	handlers   []func(telegram.Event)
}

func (f *fakeMain) Connect(context.Context) error {
	f.mu.Lock()
	f.connects++
	handlers := f.handlers
	f.mu.Unlock()
	for _, h := range handlers {
		h(telegram.Event{Kind: telegram.EventConnected})
	}
	return nil
}

func (f *fakeMain) Disconnect() {}

func (f *fakeMain) IsAuthorized(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, nil
}

func (f *fakeMain) SelfUser(context.Context) (*telegram.User, error) { return &telegram.User{ID: 1}, nil }

func (f *fakeMain) Dialogs(context.Context, telegram.DialogOptions) ([]telegram.Dialog, error) {
	return nil, nil
}

func (f *fakeMain) Messages(context.Context, int64, ...int) ([]telegram.Message, error) {
	return nil, nil
}

func (f *fakeMain) DownloadMedia(context.Context, *telegram.MediaRef) ([]byte, error) {
	return nil, telegram.ErrNoMedia
}

func (f *fakeMain) DownloadProfilePhoto(context.Context, int64, telegram.PhotoOptions) ([]byte, error) {
	return nil, telegram.ErrNoPhoto
}

func (f *fakeMain) SendCode(context.Context, string) error { return nil }

func (f *fakeMain) SignIn(context.Context, string, string, string) (*telegram.User, error) {
	return nil, errors.New("main client never signs in")
}

func (f *fakeMain) Session(context.Context) (telegram.SessionData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone(), nil
}

func (f *fakeMain) Restore(_ context.Context, s telegram.SessionData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := s.Clone()
	f.restored = &cp
	f.session = cp
	f.authorized = true
	return nil
}

func (f *fakeMain) OnEvent(fn func(telegram.Event)) {
	f.mu.Lock()
	f.handlers = append(f.handlers, fn)
	f.mu.Unlock()
}

func (f *fakeMain) fire(evt telegram.Event) {
	f.mu.Lock()
	handlers := f.handlers
	f.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

type spawn struct {
	mode    worker.Mode
	session telegram.SessionData
}

type fakeWorkers struct {
	results    chan worker.Result
	spawns     chan spawn
	reconnects chan spawn

	mu        sync.Mutex
	active    *worker.Mode
	unhealthy bool
	signIn    []string
}

func newFakeWorkers() *fakeWorkers {
	return &fakeWorkers{
		results:    make(chan worker.Result, 8),
		spawns:     make(chan spawn, 8),
		reconnects: make(chan spawn, 8),
	}
}

func (f *fakeWorkers) Results() <-chan worker.Result { return f.results }

func (f *fakeWorkers) Ensure(_ context.Context, mode worker.Mode, s telegram.SessionData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != nil && *f.active == mode {
		if f.unhealthy {
			f.unhealthy = false
			f.reconnects <- spawn{mode: mode, session: s.Clone()}
		}
		return nil
	}
	f.active = &mode
	f.unhealthy = false
	f.spawns <- spawn{mode: mode, session: s.Clone()}
	return nil
}

func (f *fakeWorkers) markUnhealthy() {
	f.mu.Lock()
	f.unhealthy = true
	f.mu.Unlock()
}

func (f *fakeWorkers) SendCode(context.Context, string) error { return nil }

func (f *fakeWorkers) SignIn(_ context.Context, phone, code, _ string) error {
	f.mu.Lock()
	f.signIn = append(f.signIn, phone+"/"+code)
	f.mu.Unlock()
	return nil
}

func (f *fakeWorkers) Close(context.Context) error { return nil }

type nopResults struct{}

func (nopResults) Handle(context.Context, worker.Reply) bool { return false }

type countingSyncer struct{ n atomic.Int32 }

func (s *countingSyncer) Trigger() { s.n.Add(1) }

type fixture struct {
	main    *fakeMain
	workers *fakeWorkers
	syncer  *countingSyncer
	state   *state.Store
	machine *status.Machine
	bus     *bus.Bus
	ctrl    *Controller
}

func newFixture(t *testing.T, authorized bool) *fixture {
	t.Helper()
	b := bus.New()
	f := &fixture{
		main:    &fakeMain{authorized: authorized, session: telegram.SessionData{DC: 2, Host: "149.154.167.50", Port: 443}},
		workers: newFakeWorkers(),
		syncer:  &countingSyncer{},
		bus:     b,
		state:   state.New(b),
		machine: status.NewMachine(b),
	}
	if authorized {
		f.main.session.AuthKey = []byte("key")
	}
	f.ctrl = NewController(f.main, f.workers, nopResults{}, f.syncer, f.state, f.machine, b, zap.NewNop())
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.ctrl.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		f.ctrl.Stop(ctx)
	})
}

func awaitSpawn(t *testing.T, w *fakeWorkers) spawn {
	t.Helper()
	select {
	case s := <-w.spawns:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for worker spawn")
		return spawn{}
	}
}

func awaitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", kind)
			return bus.Event{}
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnauthorizedSpawnsAuthWorker(t *testing.T) {
	f := newFixture(t, false)
	f.start(t)

	s := awaitSpawn(t, f.workers)
	if s.mode != worker.ModeAuth {
		t.Errorf("spawned %s worker, want auth", s.mode)
	}
	waitFor(t, func() bool { return f.machine.Current() == status.AuthRequired })
	if f.state.Authorized() {
		t.Error("state reports authorized")
	}
	if !f.state.Connected() {
		t.Error("state not connected after main client connected")
	}
	if f.syncer.n.Load() != 0 {
		t.Error("sync triggered without authorization")
	}
}

func TestAuthorizedSpawnsWorkerAndSyncs(t *testing.T) {
	f := newFixture(t, true)
	f.start(t)

	s := awaitSpawn(t, f.workers)
	if s.mode != worker.ModeAuthorized {
		t.Errorf("spawned %s worker, want authorized", s.mode)
	}
	if string(s.session.AuthKey) != "key" {
		t.Error("authorized worker did not receive the full session")
	}
	waitFor(t, func() bool { return f.syncer.n.Load() == 1 })
	if f.machine.Current() != status.Syncing {
		t.Errorf("status = %s, want SYNCING", f.machine.Current())
	}

	f.bus.Emit(bus.KindSyncCompleted, nil)
	waitFor(t, func() bool { return f.machine.Current() == status.Ready })
}

func TestAuthorizedReplySwitchesWorkers(t *testing.T) {
	f := newFixture(t, false)
	events, unsub := f.bus.Subscribe("session.", 16)
	defer unsub()
	f.start(t)
	awaitSpawn(t, f.workers)

	fresh := telegram.SessionData{DC: 4, Host: "149.154.167.91", Port: 443, AuthKey: []byte("fresh")}
	f.workers.results <- worker.Result{Mode: worker.ModeAuth, Reply: worker.Authorized{Session: fresh, User: telegram.User{ID: 7}}}

	s := awaitSpawn(t, f.workers)
	if s.mode != worker.ModeAuthorized || string(s.session.AuthKey) != "fresh" {
		t.Errorf("spawn = %+v, want authorized with the signed-in session", s)
	}
	f.main.mu.Lock()
	restored := f.main.restored
	f.main.mu.Unlock()
	if restored == nil || restored.DC != 4 {
		t.Errorf("main session restored = %+v", restored)
	}
	if !f.state.Authorized() {
		t.Error("state not authorized")
	}
	evt := awaitEvent(t, events, bus.KindAuthProgress)
	if p := evt.Payload.(state.AuthProgress); p.Stage != "authorized" {
		t.Errorf("auth progress = %+v", p)
	}
	waitFor(t, func() bool { return f.syncer.n.Load() == 1 })
}

func TestSignInUsesRememberedPhone(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.ctrl.SignIn(ctx, "", "12345", ""); !errors.Is(err, api.ErrNoPhone) {
		t.Errorf("SignIn before login = %v, want ErrNoPhone", err)
	}
	if err := f.ctrl.SendCode(ctx, "+15550001"); err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.SignIn(ctx, "", "12345", ""); err != nil {
		t.Fatal(err)
	}
	if got := f.workers.signIn; len(got) != 1 || got[0] != "+15550001/12345" {
		t.Errorf("sign in calls = %v", got)
	}
}

func TestCodeSentAndFailuresReportProgress(t *testing.T) {
	f := newFixture(t, false)
	events, unsub := f.bus.Subscribe("session.", 16)
	defer unsub()
	f.start(t)
	awaitSpawn(t, f.workers)

	f.workers.results <- worker.Result{Reply: worker.CodeSent{Phone: "+15550001"}}
	evt := awaitEvent(t, events, bus.KindAuthProgress)
	if p := evt.Payload.(state.AuthProgress); p.Stage != "code_sent" || p.Phone != "+15550001" {
		t.Errorf("progress = %+v", p)
	}

	f.workers.results <- worker.Result{Reply: worker.ErrorReply{For: worker.KindSignIn, Err: errors.New("PHONE_CODE_INVALID")}}
	evt = awaitEvent(t, events, bus.KindAuthProgress)
	if p := evt.Payload.(state.AuthProgress); p.Stage != "failed" || p.Error != "PHONE_CODE_INVALID" {
		t.Errorf("progress = %+v", p)
	}
}

func TestMainEventsReachBus(t *testing.T) {
	f := newFixture(t, true)
	updates, unsub := f.bus.Subscribe(bus.KindUpdatePrefix, 16)
	defer unsub()
	f.start(t)
	awaitSpawn(t, f.workers)

	f.main.fire(telegram.Event{Kind: telegram.EventReadInbox})
	evt := awaitEvent(t, updates, bus.KindUpdatePrefix+string(telegram.EventReadInbox))
	if evt.Timestamp.IsZero() {
		t.Error("event not stamped")
	}
}

func TestRecheckAuthReconnects(t *testing.T) {
	f := newFixture(t, true)
	f.start(t)
	awaitSpawn(t, f.workers)
	waitFor(t, func() bool { return f.syncer.n.Load() == 1 })

	f.bus.Emit(bus.KindRecheckAuth, nil)

	waitFor(t, func() bool {
		f.main.mu.Lock()
		defer f.main.mu.Unlock()
		return f.main.connects == 2
	})
	waitFor(t, func() bool { return f.syncer.n.Load() == 2 })
	select {
	case s := <-f.workers.spawns:
		t.Errorf("authorized worker respawned on recheck: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisconnectWithErrorSchedulesReconnect(t *testing.T) {
	f := newFixture(t, true)
	f.ctrl.reconnectDelay = 10 * time.Millisecond
	f.start(t)
	awaitSpawn(t, f.workers)

	f.main.fire(telegram.Event{Kind: telegram.EventDisconnected, Err: errors.New("connection reset")})
	if f.state.Connected() {
		t.Error("state still connected")
	}
	waitFor(t, func() bool {
		f.main.mu.Lock()
		defer f.main.mu.Unlock()
		return f.main.connects >= 2
	})
}

func TestWorkerConnectFailureReconnectsWorker(t *testing.T) {
	f := newFixture(t, true)
	f.ctrl.reconnectDelay = 10 * time.Millisecond
	f.start(t)
	awaitSpawn(t, f.workers)
	waitFor(t, func() bool { return f.syncer.n.Load() == 1 })

	f.workers.markUnhealthy()
	f.workers.results <- worker.Result{
		Mode:  worker.ModeAuthorized,
		Reply: worker.ErrorReply{For: worker.KindConnect, Err: errors.New("dial tcp: i/o timeout")},
	}

	select {
	case s := <-f.workers.reconnects:
		if s.mode != worker.ModeAuthorized || string(s.session.AuthKey) != "key" {
			t.Errorf("reconnect = %+v, want authorized with the full session", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not reconnected after its connect failed")
	}
	select {
	case s := <-f.workers.spawns:
		t.Errorf("worker respawned instead of reconnected: %+v", s)
	default:
	}
	waitFor(t, func() bool { return f.syncer.n.Load() >= 2 })
	waitFor(t, func() bool { return f.machine.Current() == status.Syncing })
}

func TestRecheckFromReadyPassesThroughConnecting(t *testing.T) {
	f := newFixture(t, true)
	events, unsub := f.bus.Subscribe(bus.KindStatusChanged, 32)
	defer unsub()
	f.start(t)
	awaitSpawn(t, f.workers)
	waitFor(t, func() bool { return f.syncer.n.Load() == 1 })
	f.bus.Emit(bus.KindSyncCompleted, nil)
	waitFor(t, func() bool { return f.machine.Current() == status.Ready })
	for len(events) > 0 {
		<-events
	}

	f.bus.Emit(bus.KindRecheckAuth, nil)

	evt := awaitEvent(t, events, bus.KindStatusChanged)
	if change := evt.Payload.(status.StatusChange); change.From != status.Ready || change.To != status.Connecting {
		t.Errorf("first change = %v -> %v, want READY -> CONNECTING", change.From, change.To)
	}
	waitFor(t, func() bool { return f.syncer.n.Load() == 2 })
}
