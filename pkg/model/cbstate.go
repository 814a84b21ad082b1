package model

import (
	"sync"
	"sync/atomic"
	"time"
)

// CBStateValue is one of the four circuit-breaker states.
type CBStateValue int

const (
	CBClosed CBStateValue = iota
	CBOpen
	CBHalfOpen
	CBPreserved
)

func (s CBStateValue) String() string {
	switch s {
	case CBClosed:
		return "Closed"
	case CBOpen:
		return "Open"
	case CBHalfOpen:
		return "HalfOpen"
	case CBPreserved:
		return "Preserved"
	default:
		return "Unknown"
	}
}

// CBState is the per-instance (or per-subset) circuit-breaker state.
// OwnerPluginIndex records which CB plugin drove the current state; only
// that plugin may transition it away.
type CBState struct {
	mu sync.Mutex

	Value            CBStateValue
	OwnerPluginIndex int
	ChangeSeq        uint64
	LastTransition   time.Time

	// halfOpenBudget is the number of probe tokens remaining while in
	// HalfOpen; claimed atomically by the load balancer before a pick
	// is returned.
	halfOpenBudget atomic.Int32
}

func NewCBState() *CBState {
	return &CBState{Value: CBClosed, LastTransition: time.Now()}
}

// Translate is the sole mutator: it transitions from->to only if the
// current value equals from and the caller plugin owns the state (or
// the state is Closed, which has no owner yet). Returns false if the
// transition was rejected.
func (s *CBState) Translate(pluginIdx int, from, to CBStateValue, halfOpenBudget int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Value != from {
		return false
	}
	if s.Value != CBClosed && s.OwnerPluginIndex != pluginIdx {
		return false
	}
	s.Value = to
	s.OwnerPluginIndex = pluginIdx
	s.ChangeSeq++
	s.LastTransition = time.Now()
	if to == CBHalfOpen {
		s.halfOpenBudget.Store(int32(halfOpenBudget))
	} else {
		s.halfOpenBudget.Store(0)
	}
	return true
}

// Snapshot returns a read-only copy of the state's value and owner,
// useful to routers/balancers that only need to read, not mutate.
func (s *CBState) Snapshot() (value CBStateValue, owner int, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Value, s.OwnerPluginIndex, s.ChangeSeq
}

// TransitionedAt returns the time of the last accepted transition.
func (s *CBState) TransitionedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastTransition
}

// ClaimHalfOpenToken atomically decrements the half-open budget and
// reports whether a token was available. The load balancer must call
// this before returning an instance that is currently HalfOpen.
func (s *CBState) ClaimHalfOpenToken() bool {
	for {
		cur := s.halfOpenBudget.Load()
		if cur <= 0 {
			return false
		}
		if s.halfOpenBudget.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// ChainData aggregates the per-instance and per-subset CBState tables
// for one service, and is the only place open/half-open sets are
// derived and republished to the cache.
type ChainData struct {
	mu sync.RWMutex

	instanceStates map[string]*CBState // instance_id -> state
	cbVersion      atomic.Uint64

	openInstances     map[string]struct{}
	halfOpenBudgets   map[string]int
}

func NewChainData() *ChainData {
	return &ChainData{
		instanceStates: map[string]*CBState{},
		openInstances:  map[string]struct{}{},
		halfOpenBudgets: map[string]int{},
	}
}

// StateFor returns the CBState for instanceID, creating it Closed if absent.
func (c *ChainData) StateFor(instanceID string) *CBState {
	c.mu.RLock()
	st, ok := c.instanceStates[instanceID]
	c.mu.RUnlock()
	if ok {
		return st
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.instanceStates[instanceID]; ok {
		return st
	}
	st = NewCBState()
	c.instanceStates[instanceID] = st
	return st
}

// Republish recomputes {open, half_open} from the current state table
// and bumps cb_version; observers who see a new CBVersion also see the
// new derived sets.
func (c *ChainData) Republish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	open := map[string]struct{}{}
	halfOpen := map[string]int{}
	for id, st := range c.instanceStates {
		value, _, _ := st.Snapshot()
		switch value {
		case CBOpen:
			open[id] = struct{}{}
		case CBHalfOpen:
			halfOpen[id] = int(st.halfOpenBudget.Load())
		}
	}
	c.openInstances = open
	c.halfOpenBudgets = halfOpen
	c.cbVersion.Add(1)
}

func (c *ChainData) CBVersion() uint64 { return c.cbVersion.Load() }

func (c *ChainData) IsOpen(instanceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.openInstances[instanceID]
	return ok
}

func (c *ChainData) HalfOpenBudget(instanceID string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.halfOpenBudgets[instanceID]
	return b, ok
}

// Forget drops an instance's circuit-breaker state entirely, for when
// the cache observes it has vanished from the latest snapshot. Does not
// bump cb_version on its own; callers that care should Republish after
// a batch of Forget calls.
func (c *ChainData) Forget(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.instanceStates, instanceID)
	delete(c.openInstances, instanceID)
	delete(c.halfOpenBudgets, instanceID)
}

func (c *ChainData) OpenInstances() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]struct{}, len(c.openInstances))
	for k := range c.openInstances {
		out[k] = struct{}{}
	}
	return out
}
