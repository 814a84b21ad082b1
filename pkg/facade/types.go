// Package facade implements the Consumer/Provider/Limit entry points
//: request validation, API-stat recording, bounded
// retry on transient network/server errors, and dispatch into the
// router/load-balancer/circuit-breaker/rate-limit components.
package facade

import (
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// GetOneInstanceRequest selects a single instance of Service.
type GetOneInstanceRequest struct {
	Service model.ServiceKey
	Timeout time.Duration

	Source *model.ServiceInfo

	IncludeUnhealthy     bool
	IncludeCircuitBroken bool
	EnabledRouters       map[string]bool

	// LBPolicy overrides the configured default load-balancer policy
	// name for this call; empty means "use the configured default".
	LBPolicy string

	HashKey        uint64
	HashString     string
	ReplicateIndex int

	Metadata map[string]string
}

// GetInstancesRequest returns the full, routed instance set without a
// load-balancer pick — used by callers that want to do their own
// selection (e.g. a batch fan-out).
type GetInstancesRequest struct {
	Service model.ServiceKey
	Timeout time.Duration

	Source *model.ServiceInfo

	IncludeUnhealthy     bool
	IncludeCircuitBroken bool
	EnabledRouters       map[string]bool

	Metadata map[string]string
}

// UpdateServiceCallResultRequest reports one call's outcome back to the
// circuit breaker (and, if Subset/RuleID are set, the subset breaker).
type UpdateServiceCallResultRequest struct {
	Service    model.ServiceKey
	InstanceID string
	Success    bool
	DelayMs    int64

	Subset map[string]string
	RuleID string
}

// RegisterRequest/DeregisterRequest/HeartbeatRequest back the Provider
// facade's three entry points.
type RegisterRequest struct {
	Service  model.ServiceKey
	Instance *model.Instance
}

type DeregisterRequest struct {
	Service    model.ServiceKey
	InstanceID string
	Host       string
	Port       uint32
}

type HeartbeatRequest struct {
	Service    model.ServiceKey
	InstanceID string
}

// GetQuotaRequest asks the rate-limit manager for AcquireAmount units of
// quota under the rule matching Labels.
type GetQuotaRequest struct {
	Service       model.ServiceKey
	Labels        map[string]string
	AcquireAmount int64
}

// QuotaResultInfo is the structured quota info requires
// alongside every GetQuota return code.
type QuotaResultInfo struct {
	Left       int64
	All        int64
	DurationMs int64
	IsDegrade  bool
}

// UpdateCallResultRequest feeds the climb adjuster for a rate-limit window.
type UpdateCallResultRequest struct {
	Service model.ServiceKey
	Labels  map[string]string
	RuleID  string
	Success bool
	DelayMs int64
}
