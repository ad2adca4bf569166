package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/tgchats/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client wraps gRPC connections to the daemon.
type Client struct {
	conn   *grpc.ClientConn
	State  *api.StateClient
	Auth   *api.AuthClient
	Media  *api.MediaClient
	Health healthpb.HealthClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		State:  api.NewStateClient(conn),
		Auth:   api.NewAuthClient(conn),
		Media:  api.NewMediaClient(conn),
		Health: healthpb.NewHealthClient(conn),
	}, nil
}

// Serving reports whether the daemon answers health checks for the state
// service.
func (c *Client) Serving(ctx context.Context) bool {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: api.StateServiceName})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
