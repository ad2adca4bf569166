package model

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/bus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeStream struct {
	grpc.ClientStream
	msgs []*structpb.Struct
}

func (f *fakeStream) Recv() (*structpb.Struct, error) {
	if len(f.msgs) == 0 {
		return nil, io.EOF
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

type fakeState struct {
	snapshots int
	snap      *structpb.Struct
	stream    *fakeStream
}

func (f *fakeState) GetSnapshot(context.Context, ...grpc.CallOption) (*structpb.Struct, error) {
	f.snapshots++
	return f.snap, nil
}

func (f *fakeState) Watch(context.Context, ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return f.stream, nil
}

type fakeAuth struct {
	phone, code string
	err         error
}

func (f *fakeAuth) SendCode(_ context.Context, phone string, _ ...grpc.CallOption) error {
	f.phone = phone
	return f.err
}

func (f *fakeAuth) SignIn(_ context.Context, _, code, _ string, _ ...grpc.CallOption) error {
	f.code = code
	return f.err
}

func event(t *testing.T, kind string, payload any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{
		"event_id":       "e1",
		"session":        "main",
		"kind":           kind,
		"occurred_at_ms": float64(time.Now().UnixMilli()),
		"payload":        payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestApplyUpdatesSnapshotInPlace(t *testing.T) {
	vm := NewViewModel(&fakeState{}, &fakeAuth{})

	if vm.Apply(api.EventView{Kind: bus.KindStatusChanged, Payload: map[string]any{"from": "BOOTING", "to": "SYNCING"}}) {
		t.Error("status change asked for a reload")
	}
	vm.Apply(api.EventView{Kind: bus.KindConnectivity, Payload: true})
	vm.Apply(api.EventView{Kind: bus.KindAuthorization, Payload: true})

	snap := vm.GetSnapshot()
	if snap.Status != "SYNCING" || !snap.Connected || !snap.Authorized {
		t.Errorf("snapshot = %+v", snap)
	}

	vm.Apply(api.EventView{Kind: bus.KindAuthProgress, Payload: map[string]any{"stage": "failed", "error": "bad code"}})
	if vm.GetStage() != "failed" {
		t.Errorf("stage = %q", vm.GetStage())
	}
	if msg, isErr := vm.Flash.Get(); msg != "Login failed: bad code" || !isErr {
		t.Errorf("flash = %q, %v", msg, isErr)
	}

	if !vm.Apply(api.EventView{Kind: bus.KindChats, Payload: float64(3)}) {
		t.Error("chat list change did not ask for a reload")
	}

	select {
	case <-vm.RefreshCh():
	default:
		t.Error("no refresh signalled")
	}
}

func TestWatchReloadsOnChatEvents(t *testing.T) {
	snap, _ := structpb.NewStruct(map[string]any{"session": "main", "status": "READY"})
	st := &fakeState{
		snap: snap,
		stream: &fakeStream{msgs: []*structpb.Struct{
			event(t, bus.KindConnectivity, true),
			event(t, bus.KindChats, 2),
			event(t, bus.KindThumbnail, map[string]any{"photo_id": "9"}),
		}},
	}
	vm := NewViewModel(st, &fakeAuth{})

	err := vm.Watch(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Watch() error = %v, want EOF", err)
	}
	if st.snapshots != 2 {
		t.Errorf("snapshots = %d, want 2", st.snapshots)
	}
	if vm.GetSnapshot().Status != "READY" {
		t.Errorf("snapshot = %+v", vm.GetSnapshot())
	}
}

func TestLoginCalls(t *testing.T) {
	auth := &fakeAuth{}
	vm := NewViewModel(&fakeState{}, auth)
	ctx := context.Background()

	if err := vm.SendCode(ctx, "+15550001234"); err != nil {
		t.Fatal(err)
	}
	if err := vm.SignIn(ctx, "12345", ""); err != nil {
		t.Fatal(err)
	}
	if auth.phone != "+15550001234" || auth.code != "12345" {
		t.Errorf("auth = %+v", auth)
	}

	auth.err = errors.New("rejected")
	if err := vm.SendCode(ctx, "+15550001234"); err == nil {
		t.Error("SendCode swallowed the daemon error")
	}
}
