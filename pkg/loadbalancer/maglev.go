package loadbalancer

import (
	"hash/fnv"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

const defaultMaglevTableSize = 65537 // prime M

// maglevSelector is the populated lookup table of size M.
type maglevSelector struct {
	table []*model.Instance
	m     int
}

func (s *maglevSelector) Name() string { return "maglev" }

func maglevHashes(id string) (offset, skip uint64) {
	h1 := fnv.New64a()
	h1.Write([]byte(id))
	h1.Write([]byte{0x01})
	h2 := fnv.New64a()
	h2.Write([]byte(id))
	h2.Write([]byte{0x02})
	return h1.Sum64(), h2.Sum64()
}

// buildMaglevSelector fills the table via the canonical Maglev
// permutation: each instance claims seats round-robin by
// (offset + i*skip) % M until the table is full.
func buildMaglevSelector(m int) func([]*model.Instance) model.Selector {
	return func(instances []*model.Instance) model.Selector {
		table := make([]*model.Instance, m)
		filled := 0
		if len(instances) == 0 {
			return &maglevSelector{table: table, m: m}
		}

		permutations := make([][]int, len(instances))
		next := make([]int, len(instances))
		for idx, inst := range instances {
			offset, skip := maglevHashes(inst.ID)
			skipVal := int(skip%uint64(m-1)) + 1
			offsetVal := int(offset % uint64(m))
			perm := make([]int, m)
			for j := 0; j < m; j++ {
				perm[j] = (offsetVal + j*skipVal) % m
			}
			permutations[idx] = perm
		}

		for filled < m {
			progressed := false
			for idx := range instances {
				if filled >= m {
					break
				}
				for next[idx] < m {
					slot := permutations[idx][next[idx]]
					next[idx]++
					if table[slot] == nil {
						table[slot] = instances[idx]
						filled++
						progressed = true
						break
					}
				}
			}
			if !progressed {
				break
			}
		}
		return &maglevSelector{table: table, m: m}
	}
}

// Maglev is the lookup-table consistent-hash balancer.
type Maglev struct {
	M int
}

func NewMaglev(m int) *Maglev {
	if m <= 1 {
		m = defaultMaglevTableSize
	}
	return &Maglev{M: m}
}

func (mg *Maglev) Name() string { return "maglev" }

func (mg *Maglev) Choose(set *model.InstancesSet, criteria Criteria, cb *model.ChainData) (*model.Instance, error) {
	if set.Empty() {
		return nil, instanceNotFound()
	}
	sel := set.Selector("maglev", buildMaglevSelector(mg.M)).(*maglevSelector)

	key := criteria.HashKey
	if criteria.HashString != "" {
		h := fnv.New64a()
		h.Write([]byte(criteria.HashString))
		key = h.Sum64()
	}
	idx := int(key % uint64(sel.m))
	for i := 0; i < sel.m; i++ {
		inst := sel.table[(idx+i)%sel.m]
		if inst == nil {
			continue
		}
		if admit(inst, cb) {
			return inst, nil
		}
	}
	return nil, instanceNotFound()
}
