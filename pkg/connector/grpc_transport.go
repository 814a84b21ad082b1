package connector

import (
	"context"
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "json"

// jsonCodec lets the control-plane stream carry plain Go structs over
// grpc's HTTP/2 framing without generated protobuf stubs. Registered
// once at package init the way grpc-go's own codec extension points
// expect.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

var discoverStreamDesc = grpc.StreamDesc{
	StreamName:    "Discover",
	ClientStreams: true,
	ServerStreams: true,
}

// GRPCTransport dials a fresh *grpc.ClientConn per endpoint address,
// reusing it for both the discover stream and the unary
// register/heartbeat calls.
type GRPCTransport struct {
	serviceName string

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewGRPCTransport(serviceName string) *GRPCTransport {
	return &GRPCTransport{serviceName: serviceName, conns: map[string]*grpc.ClientConn{}}
}

func (t *GRPCTransport) connFor(addr string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[addr]; ok {
		return c, nil
	}
	c, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)))
	if err != nil {
		return nil, err
	}
	t.conns[addr] = c
	return c, nil
}

type grpcStream struct {
	cs grpc.ClientStream
}

func (s *grpcStream) Send(req *DiscoverRequest) error {
	return s.cs.SendMsg(req)
}

func (s *grpcStream) Recv() (*DiscoverResponse, error) {
	resp := &DiscoverResponse{}
	if err := s.cs.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *grpcStream) Close() error {
	return s.cs.CloseSend()
}

func (t *GRPCTransport) OpenDiscoverStream(ctx context.Context, addr string) (Stream, error) {
	conn, err := t.connFor(addr)
	if err != nil {
		return nil, err
	}
	cs, err := conn.NewStream(ctx, &discoverStreamDesc, "/polaris.discover.v1/Discover")
	if err != nil {
		return nil, err
	}
	return &grpcStream{cs: cs}, nil
}

func (t *GRPCTransport) Register(ctx context.Context, addr string, req *RegisterRequest) (*RegisterResponse, error) {
	conn, err := t.connFor(addr)
	if err != nil {
		return nil, err
	}
	resp := &RegisterResponse{}
	if err := conn.Invoke(ctx, "/polaris.discover.v1/Register", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *GRPCTransport) Heartbeat(ctx context.Context, addr string, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	conn, err := t.connFor(addr)
	if err != nil {
		return nil, err
	}
	resp := &HeartbeatResponse{}
	if err := conn.Invoke(ctx, "/polaris.discover.v1/Heartbeat", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, c := range t.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
