// Package loadbalancer implements the load-balancer family (C8): weighted
// random, ring-hash (Ketama), Maglev, a legacy-compatible
// consistent hash, simple hash, and locality-aware, all sharing the
// half-open admission gate and the InstancesSet selector cache.
package loadbalancer

import (
	"github.com/polarismesh/polaris-go-sub002/pkg/api"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// Criteria parameterizes one choose call.
type Criteria struct {
	HashKey    uint64
	HashString string
	// ReplicateIndex advances the ring-hash/consistent-hash probe past
	// an instance the caller wants to avoid repeating.
	ReplicateIndex int
}

// Policy is one load-balancer implementation.
type Policy interface {
	Name() string
	// Choose picks one instance from set under criteria. cb supplies the
	// half-open admission gate; Choose must keep retrying among
	// remaining candidates until it finds one it can admit or runs out.
	Choose(set *model.InstancesSet, criteria Criteria, cb *model.ChainData) (*model.Instance, error)
}

// admit applies the half-open gate: an instance in
// HalfOpen may only be returned if it successfully claims a token; a
// Closed/Preserved instance is always admitted, and so is an Open one:
// the consumer facade drops Open instances from the routed set before
// Choose unless the request sets IncludeCircuitBroken.
func admit(inst *model.Instance, cb *model.ChainData) bool {
	if cb == nil {
		return true
	}
	state := cb.StateFor(inst.ID)
	value, _, _ := state.Snapshot()
	if value != model.CBHalfOpen {
		return true
	}
	return state.ClaimHalfOpenToken()
}

// instanceNotFound is the must-make-progress failure: if all
// candidates are half-open with no admission budget, Choose returns
// InstanceNotFound rather than blocking.
func instanceNotFound() error {
	return api.NewError(api.InstanceNotFound, "load balancer: no admissible instance")
}
