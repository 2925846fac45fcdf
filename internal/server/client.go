package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ChuLiYu/artg-queue/pkg/types"
)

// Client is a GateIn client.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to a GateIn server at addr. Without options the connection
// is plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Publish sends one gate-in event and returns the server-assigned task id.
func (c *Client) Publish(ctx context.Context, event map[string]any) (string, error) {
	in, err := structpb.NewStruct(event)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, publishMethod, in, out); err != nil {
		return "", err
	}
	return out.GetFields()["task_id"].GetStringValue(), nil
}

// NotificationStream receives notifications from Subscribe.
type NotificationStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Recv blocks for the next notification. io.EOF marks a clean end of stream.
func (s *NotificationStream) Recv() (types.Notification, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return types.Notification{}, err
	}
	return StructToNotification(msg)
}

// Subscribe opens a notification stream. Cancel ctx to stop it.
func (c *Client) Subscribe(ctx context.Context) (*NotificationStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &NotificationStream{stream: x}, nil
}
