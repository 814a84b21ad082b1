package loadbalancer

import "github.com/polarismesh/polaris-go-sub002/pkg/model"

type simpleHashSelector struct {
	instances []*model.Instance
}

func (s *simpleHashSelector) Name() string { return "simpleHash" }

func buildSimpleHashSelector(instances []*model.Instance) model.Selector {
	cp := make([]*model.Instance, len(instances))
	copy(cp, instances)
	return &simpleHashSelector{instances: cp}
}

// SimpleHash indexes directly by hash_key % N, linear-probing forward
// on a half-open collision.
type SimpleHash struct{}

func NewSimpleHash() *SimpleHash { return &SimpleHash{} }

func (s *SimpleHash) Name() string { return "simpleHash" }

func (s *SimpleHash) Choose(set *model.InstancesSet, criteria Criteria, cb *model.ChainData) (*model.Instance, error) {
	if set.Empty() {
		return nil, instanceNotFound()
	}
	sel := set.Selector("simpleHash", buildSimpleHashSelector).(*simpleHashSelector)
	n := len(sel.instances)
	if n == 0 {
		return nil, instanceNotFound()
	}

	idx := int(criteria.HashKey % uint64(n))
	for i := 0; i < n; i++ {
		inst := sel.instances[(idx+i)%n]
		if admit(inst, cb) {
			return inst, nil
		}
	}
	return nil, instanceNotFound()
}
