package connector

import "context"

// Stream is one open bidirectional discover stream to a control-plane
// endpoint.
type Stream interface {
	Send(req *DiscoverRequest) error
	Recv() (*DiscoverResponse, error)
	Close() error
}

// Transport opens streams and unary calls against one resolved
// endpoint address. A Connector holds one Transport for its lifetime,
// passes the chosen address on every call, and closes it in Stop.
type Transport interface {
	OpenDiscoverStream(ctx context.Context, addr string) (Stream, error)
	Register(ctx context.Context, addr string, req *RegisterRequest) (*RegisterResponse, error)
	Heartbeat(ctx context.Context, addr string, req *HeartbeatRequest) (*HeartbeatResponse, error)
	Close() error
}
