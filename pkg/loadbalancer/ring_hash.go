package loadbalancer

import (
	"hash/fnv"
	"sort"
	"strconv"
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// slowStartSchedule ramps a newly-added instance's effective weight
// fraction over ~60s to avoid cold-cache thundering.
var slowStartSchedule = []struct {
	afterMs  int64
	fraction float64
}{
	{0, 0.10}, {10000, 0.16}, {20000, 0.33}, {30000, 0.50},
	{40000, 0.66}, {50000, 0.83}, {60000, 1.00},
}

func slowStartFraction(ageMs int64) float64 {
	for i := len(slowStartSchedule) - 1; i >= 0; i-- {
		if ageMs >= slowStartSchedule[i].afterMs {
			return slowStartSchedule[i].fraction
		}
	}
	return slowStartSchedule[0].fraction
}

type ringNode struct {
	hash uint64
	inst *model.Instance
}

// ringSelector is the Ketama-style hash ring cached per InstancesSet.
type ringSelector struct {
	nodes     []ringNode
	vnodeBase int
}

func (s *ringSelector) Name() string { return "ringHash" }

func ketamaHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// buildRingSelectorWithVnodes builds a vnode_count x weight_fraction
// ring, scaling weight by the slow-start fraction for instances whose
// age (from instanceAge) is still inside the slow-start window. With a
// nil instanceAge every instance gets its full weight.
func buildRingSelectorWithVnodes(vnodeCount int, now func() int64, instanceAge func(*model.Instance) int64) func([]*model.Instance) model.Selector {
	return func(instances []*model.Instance) model.Selector {
		var nodes []ringNode
		for _, inst := range instances {
			weight := inst.Weight
			if dw := inst.DynamicWeight(); dw > 0 {
				weight = dw
			}
			if weight <= 0 {
				continue
			}
			fraction := 1.0
			if instanceAge != nil {
				fraction = slowStartFraction(instanceAge(inst))
			}
			count := int(float64(vnodeCount) * (float64(weight) / 1000.0) * fraction)
			if count < 1 {
				count = 1
			}
			for i := 0; i < count; i++ {
				key := inst.ID + "-" + strconv.Itoa(i)
				nodes = append(nodes, ringNode{hash: ketamaHash(key), inst: inst})
			}
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].hash < nodes[j].hash })
		return &ringSelector{nodes: nodes, vnodeBase: vnodeCount}
	}
}

func (s *ringSelector) lookup(key uint64, skip int) *model.Instance {
	if len(s.nodes) == 0 {
		return nil
	}
	idx := sort.Search(len(s.nodes), func(i int) bool { return s.nodes[i].hash >= key })
	idx = (idx + skip) % len(s.nodes)
	return s.nodes[idx].inst
}

// RingHash is the Ketama consistent-hash balancer.
type RingHash struct {
	VnodeCount  int
	InstanceAge func(*model.Instance) int64
}

func NewRingHash(vnodeCount int) *RingHash {
	if vnodeCount <= 0 {
		vnodeCount = 10240
	}
	return &RingHash{VnodeCount: vnodeCount}
}

func (r *RingHash) Name() string { return "ringHash" }

func (r *RingHash) Choose(set *model.InstancesSet, criteria Criteria, cb *model.ChainData) (*model.Instance, error) {
	if set.Empty() {
		return nil, instanceNotFound()
	}
	build := buildRingSelectorWithVnodes(r.VnodeCount, func() int64 { return time.Now().UnixMilli() }, r.InstanceAge)
	sel := set.Selector("ringHash", build).(*ringSelector)

	key := criteria.HashKey
	if criteria.HashString != "" {
		key = ketamaHash(criteria.HashString)
	}

	for skip := criteria.ReplicateIndex; skip < criteria.ReplicateIndex+len(sel.nodes)+1; skip++ {
		inst := sel.lookup(key, skip)
		if inst == nil {
			break
		}
		if admit(inst, cb) {
			return inst, nil
		}
	}
	return nil, instanceNotFound()
}
