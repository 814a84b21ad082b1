package loadbalancer

import (
	"math/rand"
	"sort"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// weightedEntry is one prefix-sum slot.
type weightedEntry struct {
	inst   *model.Instance
	cumsum int64
}

// weightedSelector is the cached prefix-sum table for WeightedRandom.
type weightedSelector struct {
	entries []weightedEntry
	total   int64
}

func (s *weightedSelector) Name() string { return "weightedRandom" }

func buildWeightedSelector(instances []*model.Instance) model.Selector {
	entries := make([]weightedEntry, 0, len(instances))
	var sum int64
	for _, inst := range instances {
		w := int64(inst.Weight)
		if dw := inst.DynamicWeight(); dw > 0 {
			w = int64(dw)
		}
		if w <= 0 {
			continue
		}
		sum += w
		entries = append(entries, weightedEntry{inst: inst, cumsum: sum})
	}
	return &weightedSelector{entries: entries, total: sum}
}

// pick binary-searches a uniform draw in [0, total) over the prefix sums.
func (s *weightedSelector) pick(r float64) *model.Instance {
	if s.total <= 0 || len(s.entries) == 0 {
		return nil
	}
	target := int64(r * float64(s.total))
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].cumsum > target })
	if i >= len(s.entries) {
		i = len(s.entries) - 1
	}
	return s.entries[i].inst
}

// WeightedRandom is the prefix-sum/binary-search balancer. When every
// normal-weight instance is unadmittable it falls
// back to the half-open pool, prioritized by remaining half-open budget.
type WeightedRandom struct{}

func NewWeightedRandom() *WeightedRandom { return &WeightedRandom{} }

func (w *WeightedRandom) Name() string { return "weightedRandom" }

func (w *WeightedRandom) Choose(set *model.InstancesSet, _ Criteria, cb *model.ChainData) (*model.Instance, error) {
	if set.Empty() {
		return nil, instanceNotFound()
	}
	sel := set.Selector("weightedRandom", buildWeightedSelector).(*weightedSelector)

	tried := map[string]bool{}
	for attempt := 0; attempt < len(sel.entries)+1; attempt++ {
		inst := sel.pick(rand.Float64())
		if inst == nil || tried[inst.ID] {
			break
		}
		tried[inst.ID] = true
		if admit(inst, cb) {
			return inst, nil
		}
	}
	for _, e := range sel.entries {
		if !tried[e.inst.ID] && admit(e.inst, cb) {
			return e.inst, nil
		}
	}

	// Half-open pool fallback: prioritize by remaining budget.
	type halfOpenCandidate struct {
		inst   *model.Instance
		budget int
	}
	var pool []halfOpenCandidate
	if cb != nil {
		for _, inst := range set.Instances {
			if budget, ok := cb.HalfOpenBudget(inst.ID); ok && budget > 0 {
				pool = append(pool, halfOpenCandidate{inst, budget})
			}
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].budget > pool[j].budget })
	for _, c := range pool {
		if admit(c.inst, cb) {
			return c.inst, nil
		}
	}
	return nil, instanceNotFound()
}
