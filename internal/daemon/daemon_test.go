package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/lock"
	"github.com/matheus3301/tgchats/internal/state"
	"github.com/matheus3301/tgchats/internal/status"
	"github.com/matheus3301/tgchats/internal/store"
	intsync "github.com/matheus3301/tgchats/internal/sync"
	"github.com/matheus3301/tgchats/internal/worker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type recordingLogin struct {
	phones []string
	err    error
}

func (r *recordingLogin) SendCode(_ context.Context, phone string) error {
	r.phones = append(r.phones, phone)
	return r.err
}

func (r *recordingLogin) SignIn(context.Context, string, string, string) error { return r.err }

type recordingMedia struct {
	requests [][2]int64
	err      error
}

func (r *recordingMedia) RequestMedia(_ context.Context, chatID int64, messageID int) error {
	r.requests = append(r.requests, [2]int64{chatID, int64(messageID)})
	return r.err
}

func dial(t *testing.T, socketPath string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDaemonLifecycle(t *testing.T) {
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "tgc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	sessionName := "test"
	sessionDir := filepath.Join(tmpDir, sessionName)
	socketPath := filepath.Join(sessionDir, "d.sock")

	lk, err := lock.Acquire(sessionDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(sessionDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	b := bus.New()
	machine := status.NewMachine(b)
	st := state.New(b)
	reconciler := intsync.NewReconciler(db, zap.NewNop())
	login := &recordingLogin{}
	media := &recordingMedia{}

	srv, err := NewServer(
		Params{SessionName: sessionName, SocketPath: socketPath},
		zap.NewNop(),
		api.NewStateService(sessionName, st, machine, b, db, reconciler),
		api.NewAuthService(login),
		api.NewMediaService(media),
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	conn := dial(t, socketPath)
	ctx := context.Background()

	// Health reports the state service as serving.
	hresp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.StateServiceName})
	if err != nil {
		t.Fatalf("health check error = %v", err)
	}
	if hresp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v, want SERVING", hresp.Status)
	}

	stateClient := api.NewStateClient(conn)
	snap, err := stateClient.GetSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSnapshot error = %v", err)
	}
	view := api.DecodeSnapshot(snap)
	if view.Session != sessionName || view.Status != string(status.Booting) {
		t.Errorf("snapshot = %+v", view)
	}
	if len(view.Chats) != 0 {
		t.Errorf("expected 0 chats, got %d", len(view.Chats))
	}

	// Publish a chat list and a resolved thumbnail, then query again.
	st.SetChats([]chat.Chat{
		{ID: 1, Name: chat.SelfName, Self: true},
		{ID: 2, Name: "Bob", Icon: chat.Icon{Kind: chat.IconScrape, Handle: "bob", PhotoID: "4242"}},
	})
	photo, err := db.PutPhoto(ctx, "4242", []byte("\x89PNG\r\n\x1a\nrest"))
	if err != nil {
		t.Fatal(err)
	}
	st.ThumbnailUpdated("4242", photo)
	reconciler.RecordSync(ctx, time.Now(), 2)

	snap, err = stateClient.GetSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	view = api.DecodeSnapshot(snap)
	if len(view.Chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(view.Chats))
	}
	if !view.Chats[1].HasThumbnail || view.Chats[1].Handle != "bob" {
		t.Errorf("chat = %+v", view.Chats[1])
	}
	if view.LastSyncChats != 2 || view.LastSyncAt.IsZero() {
		t.Errorf("last sync = %v / %d", view.LastSyncAt, view.LastSyncChats)
	}

	data, err := stateClient.GetThumbnail(ctx, "4242")
	if err != nil {
		t.Fatalf("GetThumbnail error = %v", err)
	}
	if string(data) != string(photo.Data) {
		t.Errorf("thumbnail = %q", data)
	}
	_, err = stateClient.GetThumbnail(ctx, "missing")
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("GetThumbnail(missing) code = %v, want NotFound", grpcstatus.Code(err))
	}

	// Login goes through the auth service with a normalized phone.
	authClient := api.NewAuthClient(conn)
	if err := authClient.SendCode(ctx, "+1 555 000 1234"); err != nil {
		t.Fatalf("SendCode error = %v", err)
	}
	if len(login.phones) != 1 || login.phones[0] != "+15550001234" {
		t.Errorf("phones = %v", login.phones)
	}
	if err := authClient.SendCode(ctx, "not a phone"); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("SendCode(bad) code = %v, want InvalidArgument", grpcstatus.Code(err))
	}

	// Media requests keep marked channel ids intact.
	mediaClient := api.NewMediaClient(conn)
	if err := mediaClient.Download(ctx, -1001987654321, 42); err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if len(media.requests) != 1 || media.requests[0] != [2]int64{-1001987654321, 42} {
		t.Errorf("media requests = %v", media.requests)
	}
	if err := mediaClient.Download(ctx, -5, 0); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("Download(no message) code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
	media.err = fmt.Errorf("request: %w", worker.ErrNoWorker)
	if err := mediaClient.Download(ctx, -5, 1); grpcstatus.Code(err) != codes.FailedPrecondition {
		t.Errorf("Download without worker code = %v, want FailedPrecondition", grpcstatus.Code(err))
	}
}

func TestWatchStreamsStateEvents(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "tgc-watch-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	b := bus.New()
	machine := status.NewMachine(b)
	st := state.New(b)

	grpcSrv := grpc.NewServer()
	api.RegisterStateServer(grpcSrv, api.NewStateService("test", st, machine, b, nil, nil))
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = grpcSrv.Serve(listener) }()
	defer grpcSrv.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := api.NewStateClient(dial(t, socketPath)).Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// The subscription is registered when the handler starts; retry the
	// transition until an event arrives.
	got := make(chan api.EventView, 4)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				return
			}
			got <- api.DecodeEvent(msg)
		}
	}()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case evt := <-got:
			if evt.Kind != bus.KindConnectivity {
				t.Fatalf("kind = %s, want %s", evt.Kind, bus.KindConnectivity)
			}
			if evt.ID == "" || evt.Session != "test" {
				t.Errorf("envelope = %+v", evt)
			}
			if _, ok := evt.Payload.(bool); !ok {
				t.Errorf("payload = %#v, want a bool", evt.Payload)
			}
			return
		case <-tick.C:
			// Protocol updates are never forwarded.
			b.Emit(bus.KindUpdatePrefix+"new_message", nil)
			st.SetConnected(false)
			st.SetConnected(true)
		case <-deadline:
			t.Fatal("timeout waiting for watch event")
		}
	}
}

func TestAuthServiceErrors(t *testing.T) {
	ctx := context.Background()

	svc := api.NewAuthService(&recordingLogin{})
	if _, err := svc.SendCode(ctx, nil); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("SendCode(nil) code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
	noCode, _ := structpb.NewStruct(map[string]any{"phone": "+15550001234"})
	if _, err := svc.SignIn(ctx, noCode); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("SignIn without code = %v, want InvalidArgument", grpcstatus.Code(err))
	}

	withCode, _ := structpb.NewStruct(map[string]any{"code": "12345"})
	for _, loginErr := range []error{api.ErrNoPhone, fmt.Errorf("send: %w", worker.ErrNoWorker)} {
		svc := api.NewAuthService(&recordingLogin{err: loginErr})
		if _, err := svc.SignIn(ctx, withCode); grpcstatus.Code(err) != codes.FailedPrecondition {
			t.Errorf("SignIn with %v = %v, want FailedPrecondition", loginErr, grpcstatus.Code(err))
		}
	}
}

// TestFxModuleWiring verifies NewServer takes Params rather than a bare
// string, which fx cannot resolve.
func TestFxModuleWiring(t *testing.T) {
	// Use /tmp for short socket paths (macOS 104-char limit).
	tmpDir, err := os.MkdirTemp("/tmp", "tgc-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")

	p := Params{SessionName: "fxtest", SocketPath: socketPath}
	b := bus.New()
	srv, err := NewServer(
		p,
		zap.NewNop(),
		api.NewStateService("fxtest", state.New(b), status.NewMachine(nil), b, nil, nil),
		api.NewAuthService(&recordingLogin{}),
		api.NewMediaService(&recordingMedia{}),
	)
	if err != nil {
		t.Fatalf("NewServer() with Params failed: %v", err)
	}

	info, statErr := os.Stat(socketPath)
	if statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after Stop: %v", err)
	}
}

func TestProvideConfigRequiresCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("default_session = \"main\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := provideConfig(Params{ConfigPath: path}); err == nil {
		t.Error("provideConfig accepted a config without app credentials")
	}

	if err := os.WriteFile(path, []byte("[telegram]\napp_id = 1\napp_hash = \"h\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := provideConfig(Params{ConfigPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Media.ScrapeBaseURL != "https://t.me" {
		t.Errorf("scrape base = %q, want default", cfg.Media.ScrapeBaseURL)
	}
}
