package circuitbreaker

import (
	"sync"
	"sync/atomic"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// ErrorCountConfig mirrors model.ErrorCountConfig; kept local so the
// plugin has no import-time dependency on rule-parsing.
type ErrorCountConfig struct {
	ContinuousErrorThreshold  int
	SleepWindowMs             int64
	RequestCountAfterHalfOpen int
	SuccessCountToClose       int
	MetricExpiredMs           int64
	AutoHalfOpenEnable        bool
}

// errorCountTally is the per-instance atomic counter pair that
// model.CBState deliberately does not carry, per
// "per-instance atomic counters" concurrency rule.
type errorCountTally struct {
	consecutiveErrors atomic.Int64
	halfOpenSuccesses atomic.Int64
	lastUpdateMs      atomic.Int64
}

// ErrorCount is the continuous-failure-count circuit-breaker plugin.
type ErrorCount struct {
	index  int
	config ErrorCountConfig

	mu      sync.Mutex
	tallies map[string]*errorCountTally
}

func NewErrorCount(index int, cfg ErrorCountConfig) *ErrorCount {
	return &ErrorCount{index: index, config: cfg, tallies: map[string]*errorCountTally{}}
}

func (p *ErrorCount) Name() string { return "errorCount" }
func (p *ErrorCount) Index() int   { return p.index }

func (p *ErrorCount) tallyFor(id string) *errorCountTally {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tallies[id]
	if !ok {
		t = &errorCountTally{}
		p.tallies[id] = t
	}
	return t
}

func (p *ErrorCount) UpdateServiceCallResult(chain *model.ChainData, result CallResult, nowMs int64) {
	t := p.tallyFor(result.InstanceID)
	t.lastUpdateMs.Store(nowMs)
	state := chain.StateFor(result.InstanceID)

	if result.Success {
		t.consecutiveErrors.Store(0)
		value, owner, _ := state.Snapshot()
		if value == model.CBHalfOpen && owner == p.index {
			successes := t.halfOpenSuccesses.Add(1)
			if int(successes) >= p.config.SuccessCountToClose {
				if state.Translate(p.index, model.CBHalfOpen, model.CBClosed, 0) {
					t.halfOpenSuccesses.Store(0)
				}
			}
		}
		return
	}

	// Failure.
	value, owner, _ := state.Snapshot()
	if value == model.CBHalfOpen && owner == p.index {
		// Any failure during half-open reopens immediately, or once the
		// error budget is exhausted (request_after_half_open -
		// success_count_to_close + 1), whichever first per
		t.halfOpenSuccesses.Store(0)
		state.Translate(p.index, model.CBHalfOpen, model.CBOpen, 0)
		return
	}

	errs := t.consecutiveErrors.Add(1)
	if value == model.CBClosed && int(errs) >= p.config.ContinuousErrorThreshold {
		state.Translate(p.index, model.CBClosed, model.CBOpen, 0)
	}
}

func (p *ErrorCount) CheckTiming(chain *model.ChainData, nowMs int64) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.tallies))
	for id := range p.tallies {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		t := p.tallyFor(id)
		state := chain.StateFor(id)
		value, owner, _ := state.Snapshot()
		if owner != p.index {
			continue
		}

		last := t.lastUpdateMs.Load()
		if p.config.MetricExpiredMs > 0 && last > 0 && nowMs-last >= p.config.MetricExpiredMs {
			if value == model.CBOpen || value == model.CBHalfOpen {
				state.Translate(p.index, value, model.CBClosed, 0)
				t.consecutiveErrors.Store(0)
				continue
			}
		}

		if value == model.CBOpen && p.config.AutoHalfOpenEnable {
			lastTransitionMs := state.TransitionedAt().UnixMilli()
			if nowMs-lastTransitionMs >= p.config.SleepWindowMs {
				budget := p.config.RequestCountAfterHalfOpen
				if state.Translate(p.index, model.CBOpen, model.CBHalfOpen, budget) {
					t.halfOpenSuccesses.Store(0)
				}
			}
		}
	}
}
