package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/window"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StreamServiceName is the fully qualified name of the monitor gRPC service.
const StreamServiceName = "motion.monitor.v1.Monitor"

// StreamServer is the server API of the monitor gRPC service. Both methods
// are server streaming and take no arguments. Tail sends every decoded sample
// as a struct keyed like the window logs (s, a_x, ..., g_z). Windows sends
// each window as it rotates, in the /live.json form.
type StreamServer interface {
	Tail(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	Windows(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// Ensure StreamService implements the gRPC interface.
var _ StreamServer = (*StreamService)(nil)

var streamServiceDesc = grpc.ServiceDesc{
	ServiceName: StreamServiceName,
	HandlerType: (*StreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Tail",
			Handler:       tailHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "Windows",
			Handler:       windowsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "motion/monitor/v1/monitor.proto",
}

// RegisterStreamService registers srv on s.
func RegisterStreamService(s grpc.ServiceRegistrar, srv StreamServer) {
	s.RegisterService(&streamServiceDesc, srv)
}

func tailHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(StreamServer).Tail(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

func windowsHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(StreamServer).Windows(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// StreamService serves the monitor gRPC service from a Hub.
type StreamService struct {
	hub *Hub
}

// NewStreamService returns a StreamService publishing what hub receives.
func NewStreamService(hub *Hub) *StreamService {
	return &StreamService{hub: hub}
}

// Tail streams decoded samples until the client goes away or the hub closes.
// A client that falls behind misses samples rather than stalling the session.
func (s *StreamService) Tail(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	id, lines := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)
	monitoring.Logf("[gRPC] tail client %s connected", id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			msg := new(structpb.Struct)
			if err := protojson.Unmarshal([]byte(line), msg); err != nil {
				return status.Errorf(codes.Internal, "decode sample: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Windows streams every window rotated after the call starts.
func (s *StreamService) Windows(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	id, windows := s.hub.SubscribeWindows()
	defer s.hub.UnsubscribeWindows(id)
	monitoring.Logf("[gRPC] window client %s connected", id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w, ok := <-windows:
			if !ok {
				return nil
			}
			msg, err := windowStruct(w)
			if err != nil {
				return status.Errorf(codes.Internal, "encode window %d: %v", w.Seq, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// windowStruct converts w to the /live.json form as a protobuf Struct.
func windowStruct(w *window.Window) (*structpb.Struct, error) {
	b, err := json.Marshal(windowJSON(w))
	if err != nil {
		return nil, err
	}
	msg := new(structpb.Struct)
	if err := protojson.Unmarshal(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// StreamClient is the client side of the monitor gRPC service.
type StreamClient struct {
	cc grpc.ClientConnInterface
}

// NewStreamClient returns a client using cc.
func NewStreamClient(cc grpc.ClientConnInterface) *StreamClient {
	return &StreamClient{cc: cc}
}

// Tail opens a sample stream.
func (c *StreamClient) Tail(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return c.open(ctx, 0, opts)
}

// Windows opens a rotated-window stream.
func (c *StreamClient) Windows(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return c.open(ctx, 1, opts)
}

func (c *StreamClient) open(ctx context.Context, i int, opts []grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	desc := &streamServiceDesc.Streams[i]
	method := fmt.Sprintf("/%s/%s", StreamServiceName, desc.StreamName)
	stream, err := c.cc.NewStream(ctx, desc, method, opts...)
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
	return x, nil
}
