package api

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/state"
	"github.com/matheus3301/tgchats/internal/status"
	"github.com/matheus3301/tgchats/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PhotoCache is consulted for thumbnails the state has not seen yet.
type PhotoCache interface {
	GetPhoto(ctx context.Context, id string) (*store.Photo, error)
}

// SyncHistory reports the last completed sync pass.
type SyncHistory interface {
	LastSync(ctx context.Context) (time.Time, int, error)
}

// StateService implements StateServer.
type StateService struct {
	sessionName string
	startedAt   time.Time
	state       *state.Store
	machine     *status.Machine
	bus         *bus.Bus
	cache       PhotoCache
	history     SyncHistory
}

// NewStateService creates a new state service. cache and history may be nil.
func NewStateService(sessionName string, st *state.Store, machine *status.Machine, b *bus.Bus, cache PhotoCache, history SyncHistory) *StateService {
	return &StateService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		state:       st,
		machine:     machine,
		bus:         b,
		cache:       cache,
		history:     history,
	}
}

var _ StateServer = (*StateService)(nil)

func (s *StateService) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	var (
		lastSync  time.Time
		lastChats int
	)
	if s.history != nil {
		var err error
		if lastSync, lastChats, err = s.history.LastSync(ctx); err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "read sync checkpoint: %v", err)
		}
	}
	snap, err := encodeSnapshot(s.sessionName, s.machine.Current(), time.Since(s.startedAt), s.state.Snapshot(), lastSync, lastChats)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return snap, nil
}

func (s *StateService) GetThumbnail(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	id := req.GetValue()
	if id == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "photo id required")
	}
	if p, ok := s.state.Thumbnail(id); ok {
		return wrapperspb.Bytes(p.Data), nil
	}
	if s.cache != nil {
		p, err := s.cache.GetPhoto(ctx, id)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "get photo: %v", err)
		}
		if p != nil {
			return wrapperspb.Bytes(p.Data), nil
		}
	}
	return nil, grpcstatus.Errorf(codes.NotFound, "thumbnail %q not resolved", id)
}

// Watch streams every state, session, media and sync event. Raw protocol
// updates stay internal.
func (s *StateService) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if strings.HasPrefix(evt.Kind, "tg.") {
				continue
			}
			env, err := envelope(s.sessionName, evt)
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "encode %s: %v", evt.Kind, err)
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
