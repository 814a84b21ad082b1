package circuitbreaker

import (
	"sync"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

type ErrorRateConfig struct {
	WindowMs                  int64
	NumBuckets                int
	RequestVolumeThreshold    int64
	ErrorRateThreshold        float64
	PreservedRateThreshold    float64
	SleepWindowMs             int64
	RequestCountAfterHalfOpen int
	SuccessCountToClose       int
	MetricExpiredMs           int64
	AutoHalfOpenEnable        bool
}

// bucketRing is a fixed-size ring of (total, errors) cells covering
// WindowMs, one cell per NumBuckets, grounded on the generic "bucketed
// ring" shape names.
type bucketRing struct {
	cellMs int64
	cells  []cell
	mu     sync.Mutex

	halfOpenSuccesses int
	lastUpdateMs      int64
}

type cell struct {
	startMs int64
	total   int64
	errors  int64
}

func newBucketRing(windowMs int64, numBuckets int) *bucketRing {
	if numBuckets < 1 {
		numBuckets = 1
	}
	return &bucketRing{cellMs: windowMs / int64(numBuckets), cells: make([]cell, numBuckets)}
}

func (r *bucketRing) cellIndex(nowMs int64) int {
	return int((nowMs / r.cellMs) % int64(len(r.cells)))
}

func (r *bucketRing) record(nowMs int64, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.cellIndex(nowMs)
	cellStart := (nowMs / r.cellMs) * r.cellMs
	if r.cells[idx].startMs != cellStart {
		r.cells[idx] = cell{startMs: cellStart}
	}
	r.cells[idx].total++
	if isError {
		r.cells[idx].errors++
	}
	r.lastUpdateMs = nowMs
}

// totals sums every cell whose window has not expired relative to nowMs.
func (r *bucketRing) totals(nowMs int64) (total, errors int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	windowStart := nowMs - r.cellMs*int64(len(r.cells))
	for _, c := range r.cells {
		if c.startMs >= windowStart {
			total += c.total
			errors += c.errors
		}
	}
	return
}

// ErrorRate is the windowed error-ratio circuit-breaker plugin
//, including the "preserved" on-the-edge state.
type ErrorRate struct {
	index  int
	config ErrorRateConfig

	mu    sync.Mutex
	rings map[string]*bucketRing
}

func NewErrorRate(index int, cfg ErrorRateConfig) *ErrorRate {
	return &ErrorRate{index: index, config: cfg, rings: map[string]*bucketRing{}}
}

func (p *ErrorRate) Name() string { return "errorRate" }
func (p *ErrorRate) Index() int   { return p.index }

func (p *ErrorRate) ringFor(id string) *bucketRing {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rings[id]
	if !ok {
		r = newBucketRing(p.config.WindowMs, p.config.NumBuckets)
		p.rings[id] = r
	}
	return r
}

func (p *ErrorRate) UpdateServiceCallResult(chain *model.ChainData, result CallResult, nowMs int64) {
	ring := p.ringFor(result.InstanceID)
	ring.record(nowMs, !result.Success)
	state := chain.StateFor(result.InstanceID)

	value, owner, _ := state.Snapshot()
	if value == model.CBHalfOpen && owner == p.index {
		ring.mu.Lock()
		if !result.Success {
			ring.halfOpenSuccesses = 0
			ring.mu.Unlock()
			state.Translate(p.index, model.CBHalfOpen, model.CBOpen, 0)
			return
		}
		ring.halfOpenSuccesses++
		closed := ring.halfOpenSuccesses >= p.config.SuccessCountToClose
		ring.mu.Unlock()
		if closed {
			state.Translate(p.index, model.CBHalfOpen, model.CBClosed, 0)
		}
		return
	}

	if value != model.CBClosed && value != model.CBPreserved {
		return
	}

	total, errs := ring.totals(nowMs)
	if total < p.config.RequestVolumeThreshold {
		return
	}
	rate := float64(errs) / float64(total)

	switch {
	case rate >= p.config.ErrorRateThreshold:
		state.Translate(p.index, value, model.CBOpen, 0)
	case rate >= p.config.PreservedRateThreshold:
		if value == model.CBClosed {
			state.Translate(p.index, model.CBClosed, model.CBPreserved, 0)
		}
	}
}

func (p *ErrorRate) CheckTiming(chain *model.ChainData, nowMs int64) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.rings))
	for id := range p.rings {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		ring := p.ringFor(id)
		state := chain.StateFor(id)
		value, owner, _ := state.Snapshot()
		if owner != p.index {
			continue
		}

		ring.mu.Lock()
		last := ring.lastUpdateMs
		ring.mu.Unlock()
		if p.config.MetricExpiredMs > 0 && last > 0 && nowMs-last >= p.config.MetricExpiredMs {
			if value == model.CBOpen || value == model.CBHalfOpen || value == model.CBPreserved {
				state.Translate(p.index, value, model.CBClosed, 0)
				continue
			}
		}

		if value == model.CBOpen && p.config.AutoHalfOpenEnable {
			// Recovery from Preserved can skip half-open and return
			// straight to Closed once its rate drops back below the
			// preserved threshold; Open always probes.
			if nowMs-state.TransitionedAt().UnixMilli() >= p.config.SleepWindowMs {
				state.Translate(p.index, model.CBOpen, model.CBHalfOpen, p.config.RequestCountAfterHalfOpen)
			}
		} else if value == model.CBPreserved {
			total, errs := ring.totals(nowMs)
			if total >= p.config.RequestVolumeThreshold {
				rate := float64(errs) / float64(total)
				if rate < p.config.PreservedRateThreshold {
					state.Translate(p.index, model.CBPreserved, model.CBClosed, 0)
				}
			}
		}
	}
}
