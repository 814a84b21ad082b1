package model

import (
	"sync"
	"sync/atomic"
)

// Service is the long-lived cache entry for a ServiceKey: the currently
// active ServiceData for each kind, plus side-bands that update without
// allocating a new snapshot.
type Service struct {
	Key ServiceKey

	mu   sync.RWMutex
	data map[DataKind]*ServiceData

	// Chain is the per-instance circuit-breaker table.
	Chain *ChainData
	// SubsetChain is the per-subset circuit-breaker table, keyed by
	// "subset-labels#rule-id".
	SubsetChain *ChainData

	// DynamicWeights maps instance_id -> weight, with its own version
	// counter, updated by the weight adjuster plugin.
	dynamicWeights sync.Map // string -> int
	dynamicWeightVer atomic.Uint64

	lastAccess atomic.Int64 // monotonic ms, used by GC
}

func NewService(key ServiceKey) *Service {
	return &Service{
		Key:         key,
		data:        map[DataKind]*ServiceData{},
		Chain:       NewChainData(),
		SubsetChain: NewChainData(),
	}
}

func (s *Service) Get(kind DataKind) *ServiceData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[kind]
}

// Swap replaces the snapshot for kind, returning the previous one (nil
// if none existed) so the caller can queue it for reclamation.
func (s *Service) Swap(kind DataKind, next *ServiceData) *ServiceData {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data[kind]
	s.data[kind] = next
	return prev
}

func (s *Service) Touch(nowMs int64) { s.lastAccess.Store(nowMs) }
func (s *Service) LastAccess() int64 { return s.lastAccess.Load() }

func (s *Service) SetDynamicWeight(instanceID string, weight int) {
	s.dynamicWeights.Store(instanceID, weight)
	s.dynamicWeightVer.Add(1)
}

func (s *Service) DynamicWeight(instanceID string, fallback int) int {
	if v, ok := s.dynamicWeights.Load(instanceID); ok {
		return v.(int)
	}
	return fallback
}

func (s *Service) DynamicWeightVersion() uint64 { return s.dynamicWeightVer.Load() }

// IdleFor reports whether the entry has had no consumer reads for at
// least idle, making it a GC candidate.
func (s *Service) IdleFor(nowMs int64, idleMs int64) bool {
	return nowMs-s.lastAccess.Load() >= idleMs
}
