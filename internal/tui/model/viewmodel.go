package model

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/bus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// StateAPI is the part of the daemon's state service the TUI reads.
type StateAPI interface {
	GetSnapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error)
	Watch(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

// AuthAPI is the daemon's login surface.
type AuthAPI interface {
	SendCode(ctx context.Context, phone string, opts ...grpc.CallOption) error
	SignIn(ctx context.Context, phone, code, password string, opts ...grpc.CallOption) error
}

// ViewModel caches the daemon snapshot and folds watch events into it.
type ViewModel struct {
	mu sync.RWMutex

	state    StateAPI
	auth     AuthAPI
	Snapshot api.SnapshotView
	Stage    string
	Flash    Flash

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon.
func NewViewModel(state StateAPI, auth AuthAPI) *ViewModel {
	return &ViewModel{
		state:     state,
		auth:      auth,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadSnapshot fetches the full daemon state.
func (vm *ViewModel) LoadSnapshot(ctx context.Context) error {
	resp, err := vm.state.GetSnapshot(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Snapshot = api.DecodeSnapshot(resp)
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Watch streams daemon events into the view model until ctx ends or the
// stream breaks. Chat list and thumbnail changes trigger a snapshot reload,
// everything else is applied in place.
func (vm *ViewModel) Watch(ctx context.Context) error {
	stream, err := vm.state.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}
		if vm.Apply(api.DecodeEvent(msg)) {
			if err := vm.LoadSnapshot(ctx); err != nil {
				return err
			}
		}
	}
}

// Apply folds one event into the cached snapshot. It reports whether the
// event needs a fresh snapshot to be reflected.
func (vm *ViewModel) Apply(evt api.EventView) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	defer vm.signalRefresh()

	switch evt.Kind {
	case bus.KindStatusChanged:
		if p, ok := evt.Payload.(map[string]any); ok {
			if to, ok := p["to"].(string); ok {
				vm.Snapshot.Status = to
			}
		}
	case bus.KindConnectivity:
		if v, ok := evt.Payload.(bool); ok {
			vm.Snapshot.Connected = v
		}
	case bus.KindAuthorization:
		if v, ok := evt.Payload.(bool); ok {
			vm.Snapshot.Authorized = v
		}
	case bus.KindAuthProgress:
		p, _ := evt.Payload.(map[string]any)
		stage, _ := p["stage"].(string)
		vm.Stage = stage
		if stage == "failed" {
			msg, _ := p["error"].(string)
			vm.Flash.Set("Login failed: "+msg, 5*time.Second)
		}
	case bus.KindSyncCompleted:
		vm.Flash.Set("Chat list synchronized", 3*time.Second)
		return true
	case bus.KindSyncFailed:
		vm.Flash.Set("Sync failed", 5*time.Second)
	case bus.KindSelf, bus.KindChats, bus.KindThumbnail:
		return true
	}
	return false
}

// SendCode asks the daemon to send a login code.
func (vm *ViewModel) SendCode(ctx context.Context, phone string) error {
	if err := vm.auth.SendCode(ctx, phone); err != nil {
		return err
	}
	vm.Flash.Set("Requesting code...", 3*time.Second)
	vm.signalRefresh()
	return nil
}

// SignIn completes the login with the code the user received.
func (vm *ViewModel) SignIn(ctx context.Context, code, password string) error {
	if err := vm.auth.SignIn(ctx, "", code, password); err != nil {
		return err
	}
	vm.Flash.Set("Signing in...", 3*time.Second)
	vm.signalRefresh()
	return nil
}

// GetSnapshot returns a copy of the cached snapshot.
func (vm *ViewModel) GetSnapshot() api.SnapshotView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Snapshot
}

// GetStage returns the last login stage reported by the daemon.
func (vm *ViewModel) GetStage() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Stage
}
