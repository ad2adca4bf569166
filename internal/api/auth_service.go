package api

import (
	"context"
	"errors"

	"github.com/matheus3301/tgchats/internal/session"
	"github.com/matheus3301/tgchats/internal/worker"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ErrNoPhone is returned by SignIn without a phone when no code was
// requested first.
var ErrNoPhone = errors.New("no login code requested; run login first")

// Login is the daemon side of the phone-code login.
type Login interface {
	SendCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, phone, code, password string) error
}

// AuthService implements AuthServer. Both calls return once the request is
// queued on the auth worker; progress arrives as session.auth_progress
// events on Watch.
type AuthService struct {
	login Login
}

func NewAuthService(login Login) *AuthService {
	return &AuthService{login: login}
}

var _ AuthServer = (*AuthService)(nil)

func (s *AuthService) SendCode(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	phone, err := session.NormalizePhone(req.GetValue())
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.login.SendCode(ctx, phone); err != nil {
		return nil, rpcError("send code", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *AuthService) SignIn(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	f := req.GetFields()
	code := f["code"].GetStringValue()
	if code == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "code required")
	}
	phone := f["phone"].GetStringValue()
	if phone != "" {
		var err error
		if phone, err = session.NormalizePhone(phone); err != nil {
			return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
	}
	if err := s.login.SignIn(ctx, phone, code, f["password"].GetStringValue()); err != nil {
		return nil, rpcError("sign in", err)
	}
	return &emptypb.Empty{}, nil
}

// rpcError maps daemon-side errors onto status codes. A missing worker
// means the session is in the wrong mode for the call.
func rpcError(op string, err error) error {
	if errors.Is(err, ErrNoPhone) {
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	}
	if errors.Is(err, worker.ErrNoWorker) {
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	}
	var code codes.Code = codes.Internal
	if errors.Is(err, context.DeadlineExceeded) {
		code = codes.DeadlineExceeded
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
