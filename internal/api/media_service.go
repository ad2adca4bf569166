package api

import (
	"context"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// MediaRequester queues a message media download on the authorized worker.
type MediaRequester interface {
	RequestMedia(ctx context.Context, chatID int64, messageID int) error
}

// MediaService implements MediaServer. Downloads complete asynchronously
// and are announced as media.downloaded events on Watch.
type MediaService struct {
	requester MediaRequester
}

func NewMediaService(r MediaRequester) *MediaService {
	return &MediaService{requester: r}
}

var _ MediaServer = (*MediaService)(nil)

// Download takes {chat_id: string, message_id: number}.
func (s *MediaService) Download(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	f := req.GetFields()
	chatID := parseID(f["chat_id"].GetStringValue())
	messageID := int(f["message_id"].GetNumberValue())
	if chatID == 0 || messageID <= 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id and a positive message_id are required")
	}
	if err := s.requester.RequestMedia(ctx, chatID, messageID); err != nil {
		return nil, rpcError("request media", err)
	}
	return &emptypb.Empty{}, nil
}
