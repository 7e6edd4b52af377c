package rpcchannel

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

// Channel adapts a gRPC WorkerChannelClient to concurrency.WorkerChannel,
// the interface the per-worker monitor probes. It owns the underlying
// connection and closes it on Close.
type Channel struct {
	conn   *grpc.ClientConn
	client WorkerChannelClient
}

// Dial opens a loopback gRPC connection to a worker process listening at
// target (e.g. "127.0.0.1:50123") and wraps it as a concurrency.WorkerChannel.
// Worker connections are always loopback per SPEC_FULL.md §2.2, so a bare
// insecure transport credential is appropriate here, not a security gap.
func Dial(ctx context.Context, target string) (*Channel, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpcchannel: failed to dial worker at %s: %w", target, err)
	}
	return &Channel{conn: conn, client: NewWorkerChannelClient(conn)}, nil
}

// GetStatus implements concurrency.WorkerChannel by invoking the gRPC
// GetStatus RPC and decoding the structpb.Struct response into a
// concurrency.WorkerStatus.
func (c *Channel) GetStatus(ctx context.Context) (concurrency.WorkerStatus, error) {
	resp, err := c.client.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return concurrency.WorkerStatus{}, fmt.Errorf("rpcchannel: GetStatus RPC failed: %w", err)
	}

	fields := resp.GetFields()
	isReady := fields[FieldIsReady].GetBoolValue()
	latencyMs := fields[FieldLatencyMs].GetNumberValue()

	return concurrency.WorkerStatus{
		IsReady: isReady,
		Latency: time.Duration(latencyMs * float64(time.Millisecond)),
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}

var _ concurrency.WorkerChannel = (*Channel)(nil)
