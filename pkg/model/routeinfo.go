package model

// ServiceInfo carries a caller's own identity and metadata, used by the
// rule router to match source matchers and by the nearby/set-division
// routers to read the caller's location/set label.
type ServiceInfo struct {
	Key      ServiceKey
	Metadata map[string]string
	Location Location
}

// FailoverMode controls the metadata router's behavior when the
// request's metadata criteria is empty.
type FailoverMode int

const (
	FailoverNone FailoverMode = iota
	FailoverNotKey
	FailoverAll
)

// MetadataRouterParam configures the metadata router stage.
type MetadataRouterParam struct {
	Criteria map[string]string
	Failover FailoverMode
}

// RouteInfo is the request passed through the router chain (C7).
type RouteInfo struct {
	DestinationKey ServiceKey
	Source         *ServiceInfo

	Instances *InstancesSet

	DestinationRule *RouteRule
	SourceRule      *RouteRule

	IncludeUnhealthy      bool
	IncludeCircuitBroken  bool

	// EnabledRouters masks which router-chain stages run for this
	// request; nil means "all configured stages run".
	EnabledRouters map[string]bool

	Labels   map[string]string
	Metadata *MetadataRouterParam

	endChain bool
}

func (r *RouteInfo) EndChain()        { r.endChain = true }
func (r *RouteInfo) ChainEnded() bool { return r.endChain }

func (r *RouteInfo) RouterEnabled(name string) bool {
	if r.EnabledRouters == nil {
		return true
	}
	enabled, ok := r.EnabledRouters[name]
	return !ok || enabled
}

// RouteResult is what a router stage produces: either a narrowed
// InstancesSet, or a redirect to a different ServiceKey.
type RouteResult struct {
	Instances *InstancesSet
	Redirect  *ServiceKey
}

// DiscardReason documents why a router stage removed an instance from
// consideration, for the per-chain-invocation stat record.
type DiscardReason struct {
	InstanceID string
	Router     string
	Reason     string
}

// ChainStat is the per-chain-invocation record a router publishes.
type ChainStat struct {
	Router   string
	Kept     int
	Discards []DiscardReason
}
