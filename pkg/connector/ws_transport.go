package connector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSTransportConfig configures WSTransport's dialer.
type WSTransportConfig struct {
	// CACerts pins the control plane's TLS root, when set; an empty
	// value dials with the system root pool.
	CACerts []byte
	// NodeName is sent as an identifying header on every dial, the
	// way a node identifies itself to a control plane over the same
	// connection it polls for config.
	NodeName string
}

// WSTransport is an alternate Transport that speaks the discover
// protocol over a websocket connection instead of gRPC, for control
// planes reachable only behind a plain HTTP(S) reverse proxy that
// doesn't forward gRPC's HTTP/2 trailers.
type WSTransport struct {
	dialer *websocket.Dialer
	header http.Header

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewWSTransport(cfg WSTransportConfig) *WSTransport {
	dialer := &websocket.Dialer{}
	if len(cfg.CACerts) > 0 {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(cfg.CACerts)
		dialer.TLSClientConfig = &tls.Config{RootCAs: pool}
	}
	header := http.Header{}
	if cfg.NodeName != "" {
		header.Set("X-Polaris-Node", cfg.NodeName)
	}
	return &WSTransport{dialer: dialer, header: header, conns: map[string]*websocket.Conn{}}
}

func (t *WSTransport) dial(addr, path string) (*websocket.Conn, error) {
	url := fmt.Sprintf("wss://%s%s", addr, path)
	conn, _, err := t.dialer.Dial(url, t.header)
	return conn, err
}

func (t *WSTransport) unary(addr, path string, req, resp interface{}) error {
	conn, err := t.dial(addr, path)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.WriteJSON(req); err != nil {
		return err
	}
	return conn.ReadJSON(resp)
}

func (t *WSTransport) OpenDiscoverStream(ctx context.Context, addr string) (Stream, error) {
	conn, err := t.dial(addr, "/v1/discover")
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conns[addr] = conn
	t.mu.Unlock()
	return &wsStream{conn: conn}, nil
}

func (t *WSTransport) Register(ctx context.Context, addr string, req *RegisterRequest) (*RegisterResponse, error) {
	resp := &RegisterResponse{}
	if err := t.unary(addr, "/v1/register", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *WSTransport) Heartbeat(ctx context.Context, addr string, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	resp := &HeartbeatResponse{}
	if err := t.unary(addr, "/v1/heartbeat", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for addr, c := range t.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, addr)
	}
	return firstErr
}

// wsStream frames DiscoverRequest/DiscoverResponse as websocket JSON
// text messages, one message per Send/Recv.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Send(req *DiscoverRequest) error {
	return s.conn.WriteJSON(req)
}

func (s *wsStream) Recv() (*DiscoverResponse, error) {
	resp := &DiscoverResponse{}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
