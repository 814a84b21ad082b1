package loadbalancer

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// staleFeedbackMs bounds how old a route key's begin-time may be before
// its feedback is discarded as a wraparound artifact (model.
// PackLocalityAwareInfo's doc comment), rather than genuinely stale.
const staleFeedbackMs = 5 * 60 * 1000

// instanceGauge is the adaptive per-instance weight state the
// locality-aware balancer's weighted tree is built from: an EWMA of
// observed latency and a live inflight counter.
type instanceGauge struct {
	emaLatencyMs atomic.Int64
	inflight     atomic.Int64
}

func (g *instanceGauge) weight() float64 {
	lat := float64(g.emaLatencyMs.Load())
	if lat <= 0 {
		lat = 1
	}
	inflight := float64(g.inflight.Load())
	return 1.0 / (lat * (1.0 + inflight))
}

type localityEntry struct {
	inst   *model.Instance
	gauge  *instanceGauge
	cumsum float64
}

// localitySelector is the weighted-tree cache, approximated as a
// prefix-sum table over each instance's current adaptive weight; a
// fresh table is built each time the selector is asked for (since
// gauges mutate continuously, unlike the other policies' static rings).
type localitySelector struct {
	entries []localityEntry
	total   float64
}

func (s *localitySelector) Name() string { return "localityAware" }

// LocalityAware picks by weighted-tree traversal over observed
// latency/inflight, with a route key embedded in the returned Instance
// so a later UpdateServiceCallResult call correlates back to the same
// pick.
type LocalityAware struct {
	mu      sync.Mutex
	gauges  map[string]*instanceGauge
	routeCt uint32

	nowMs func() int64
}

func NewLocalityAware(nowMs func() int64) *LocalityAware {
	return &LocalityAware{gauges: map[string]*instanceGauge{}, nowMs: nowMs}
}

func (l *LocalityAware) Name() string { return "localityAware" }

func (l *LocalityAware) gaugeFor(id string) *instanceGauge {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gauges[id]
	if !ok {
		g = &instanceGauge{}
		g.emaLatencyMs.Store(1)
		l.gauges[id] = g
	}
	return g
}

func (l *LocalityAware) buildSelector(instances []*model.Instance) model.Selector {
	entries := make([]localityEntry, 0, len(instances))
	var total float64
	for _, inst := range instances {
		g := l.gaugeFor(inst.ID)
		total += g.weight()
		entries = append(entries, localityEntry{inst: inst, gauge: g, cumsum: total})
	}
	return &localitySelector{entries: entries, total: total}
}

func (l *LocalityAware) nextRouteKey() uint32 {
	return atomic.AddUint32(&l.routeCt, 1) & 0xFFFFF
}

func (l *LocalityAware) Choose(set *model.InstancesSet, _ Criteria, cb *model.ChainData) (*model.Instance, error) {
	if set.Empty() {
		return nil, instanceNotFound()
	}
	// The tree is rebuilt on every call rather than cached on the set.
	// gauges mutate continuously via Feedback, so a cached snapshot
	// would go stale faster than the per-set selector cache's lifetime.
	sel := l.buildSelector(set.Instances)

	var chosen *model.Instance
	tried := map[string]bool{}
	for attempt := 0; attempt < len(sel.entries)+1; attempt++ {
		inst := sel.pick(rand.Float64())
		if inst == nil || tried[inst.ID] {
			break
		}
		tried[inst.ID] = true
		if admit(inst, cb) {
			chosen = inst
			break
		}
	}
	for i := 0; chosen == nil && i < len(sel.entries); i++ {
		if inst := sel.entries[i].inst; !tried[inst.ID] && admit(inst, cb) {
			chosen = inst
		}
	}
	if chosen == nil {
		return nil, instanceNotFound()
	}
	g := l.gaugeFor(chosen.ID)
	g.inflight.Add(1)
	now := l.nowMs()
	chosen.SetLocalityAwareInfo(model.PackLocalityAwareInfo(l.nextRouteKey(), uint64(now)))
	return chosen, nil
}

func (s *localitySelector) pick(r float64) *model.Instance {
	if s.total <= 0 || len(s.entries) == 0 {
		return nil
	}
	target := r * s.total
	for _, e := range s.entries {
		if target < e.cumsum {
			return e.inst
		}
	}
	return s.entries[len(s.entries)-1].inst
}

// Feedback folds one call's outcome into the instance's adaptive
// weight: EWMA latency and inflight decrement. routeInfo is the value
// the caller read off Instance.LocalityAwareInfo immediately after
// the matching Choose; feedback whose begin-time is implausibly old is
// discarded as a wraparound collision rather than applied to the wrong
// epoch's sample (model.PackLocalityAwareInfo's documented tradeoff).
func (l *LocalityAware) Feedback(instanceID string, routeInfo uint64, delayMs int64, nowMs int64) {
	_, beginMs := model.UnpackLocalityAwareInfo(routeInfo)
	if int64(beginMs) > nowMs || nowMs-int64(beginMs) > staleFeedbackMs {
		return
	}

	g := l.gaugeFor(instanceID)
	if g.inflight.Load() > 0 {
		g.inflight.Add(-1)
	}

	const alpha = 0.2
	for {
		cur := g.emaLatencyMs.Load()
		next := int64(alpha*float64(delayMs) + (1-alpha)*float64(cur))
		if next < 1 {
			next = 1
		}
		if g.emaLatencyMs.CompareAndSwap(cur, next) {
			return
		}
	}
}
