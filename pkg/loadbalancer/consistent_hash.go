package loadbalancer

import (
	"sort"
	"strconv"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// l5Murmur32 is a murmur3-derived 32-bit hash matching the legacy
// brpc/L5 c_murmur implementation, so pre-existing clients that compute
// the same hash over the same key agree on instance selection. Ported
// from the standard murmur3 x86_32 algorithm with the
// seed the legacy system fixes at 0.
func l5Murmur32(data []byte) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
		seed = 0
	)
	var h uint32 = seed
	length := len(data)
	nblocks := length / 4
	for i := 0; i < nblocks; i++ {
		k := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		k *= c1
		k = (k << 15) | (k >> 17)
		k *= c2
		h ^= k
		h = (h << 13) | (h >> 19)
		h = h*5 + 0xe6546b64
	}

	var k uint32
	tail := data[nblocks*4:]
	switch len(tail) {
	case 3:
		k ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k ^= uint32(tail[0])
		k *= c1
		k = (k << 15) | (k >> 17)
		k *= c2
		h ^= k
	}

	h ^= uint32(length)
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 15
	return h
}

type legacyRingNode struct {
	hash uint32
	inst *model.Instance
}

type legacyHashSelector struct {
	nodes []legacyRingNode
}

func (s *legacyHashSelector) Name() string { return "l5CompatHash" }

const legacyVnodesPerInstance = 100

func buildLegacyHashSelector(instances []*model.Instance) model.Selector {
	var nodes []legacyRingNode
	for _, inst := range instances {
		for i := 0; i < legacyVnodesPerInstance; i++ {
			key := inst.ID + "#" + strconv.Itoa(i)
			nodes = append(nodes, legacyRingNode{hash: l5Murmur32([]byte(key)), inst: inst})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].hash < nodes[j].hash })
	return &legacyHashSelector{nodes: nodes}
}

// L5CompatHash reproduces the legacy L5/brpc c_murmur consistent-hash
// ordering for clients migrating off that load-balancer policy.
type L5CompatHash struct{}

func NewL5CompatHash() *L5CompatHash { return &L5CompatHash{} }

func (l *L5CompatHash) Name() string { return "l5CompatHash" }

func (l *L5CompatHash) Choose(set *model.InstancesSet, criteria Criteria, cb *model.ChainData) (*model.Instance, error) {
	if set.Empty() {
		return nil, instanceNotFound()
	}
	sel := set.Selector("l5CompatHash", buildLegacyHashSelector).(*legacyHashSelector)
	if len(sel.nodes) == 0 {
		return nil, instanceNotFound()
	}

	var key uint32
	if criteria.HashString != "" {
		key = l5Murmur32([]byte(criteria.HashString))
	} else {
		key = uint32(criteria.HashKey)
	}
	idx := sort.Search(len(sel.nodes), func(i int) bool { return sel.nodes[i].hash >= key })
	for i := 0; i < len(sel.nodes); i++ {
		inst := sel.nodes[(idx+i)%len(sel.nodes)].inst
		if admit(inst, cb) {
			return inst, nil
		}
	}
	return nil, instanceNotFound()
}
