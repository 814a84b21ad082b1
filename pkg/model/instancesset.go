package model

import "sync"

// Selector is precomputed lookup data a load-balancer policy builds
// once per InstancesSet and caches on it: a hash ring, a Maglev table,
// or weight prefix-sums.
type Selector interface {
	// Name identifies the policy that built this selector, so a set
	// that is reused across policies rebuilds when the policy changes.
	Name() string
}

// InstancesSet is a derived, reference-counted view over a subset of a
// ServiceData's instances, produced by a router stage or a subset
// selection.
type InstancesSet struct {
	Instances []*Instance

	// Origin records the subset labels this set was narrowed to, if any.
	Origin map[string]string

	// backing is the ServiceData this set's instances are drawn from;
	// holding it keeps the snapshot's refcount alive for as long as the
	// set is in use.
	backing *ServiceData

	buildMu  sync.Mutex
	selector Selector
}

func NewInstancesSet(backing *ServiceData, instances []*Instance) *InstancesSet {
	return &InstancesSet{Instances: instances, backing: backing}
}

// Selector returns the cached selector if present and still matches
// policyName, else builds a new one under the set's build lock and
// caches it, so selector construction happens at most once per set.
func (is *InstancesSet) Selector(policyName string, build func([]*Instance) Selector) Selector {
	is.buildMu.Lock()
	defer is.buildMu.Unlock()

	if is.selector != nil && is.selector.Name() == policyName {
		return is.selector
	}
	is.selector = build(is.Instances)
	return is.selector
}

// Release drops this set's hold on its backing snapshot. Callers that
// built an InstancesSet from a ServiceData they Acquired must Release
// through here (or call backing.Release directly) exactly once.
func (is *InstancesSet) Release() {
	if is == nil || is.backing == nil {
		return
	}
	is.backing.Release()
}

// Filter returns a new InstancesSet containing only instances for which
// keep returns true, sharing the same backing snapshot and origin.
func (is *InstancesSet) Filter(keep func(*Instance) bool) *InstancesSet {
	out := make([]*Instance, 0, len(is.Instances))
	for _, inst := range is.Instances {
		if keep(inst) {
			out = append(out, inst)
		}
	}
	return &InstancesSet{Instances: out, Origin: is.Origin, backing: is.backing}
}

func (is *InstancesSet) Empty() bool { return is == nil || len(is.Instances) == 0 }
