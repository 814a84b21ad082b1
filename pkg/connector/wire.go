package connector

import "github.com/polarismesh/polaris-go-sub002/pkg/model"

// DiscoverRequest/DiscoverResponse are the bidi-stream messages
// exchanged with the control plane. Marshaled with jsonCodec since no
// generated protobuf stubs exist for the control-plane schema; the
// grpc transport itself still speaks HTTP/2 framing underneath.
type DiscoverRequest struct {
	Service      model.ServiceKey
	Kind         model.DataKind
	Op string // "subscribe" | "unsubscribe"
	LastRevision string
}

type DiscoverResponse struct {
	Service      model.ServiceKey
	Kind         model.DataKind
	Revision     string
	CacheVersion uint64
	NotFound     bool
	BadRequest   bool
	Data         *model.ServiceData
}

// RegisterRequest/RegisterResponse back Provider.Register/Deregister.
type RegisterRequest struct {
	Service  model.ServiceKey
	Instance *model.Instance
	Dereg    bool
}

type RegisterResponse struct {
	Ok      bool
	Message string
}

// HeartbeatRequest/HeartbeatResponse back Provider.Heartbeat.
type HeartbeatRequest struct {
	Service    model.ServiceKey
	InstanceID string
}

type HeartbeatResponse struct {
	Ok bool
}
