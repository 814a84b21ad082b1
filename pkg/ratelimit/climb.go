package ratelimit

import (
	"sync"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// climbSample accumulates one rolling sample window's outcome counts
// for one RateLimitWindow.
type climbSample struct {
	mu         sync.Mutex
	total      int64
	errors     int64
	slow       int64
	windowStartMs int64
}

// Climb adjusts a RateLimitWindow's ClimbMaxAmount within
// [MinAmount, MaxAmount] based on observed error-rate/slow-rate over a
// rolling sample period: up above the cold-water line, down below it.
type Climb struct {
	mu      sync.Mutex
	samples map[*model.RateLimitWindow]*climbSample
}

func NewClimb() *Climb {
	return &Climb{samples: map[*model.RateLimitWindow]*climbSample{}}
}

func (c *Climb) sampleFor(w *model.RateLimitWindow, nowMs int64) *climbSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.samples[w]
	if !ok {
		s = &climbSample{windowStartMs: nowMs}
		c.samples[w] = s
	}
	return s
}

func (c *Climb) Update(w *model.RateLimitWindow, cfg model.ClimbConfig, success bool, delayMs, nowMs int64) {
	s := c.sampleFor(w, nowMs)

	s.mu.Lock()
	if nowMs-s.windowStartMs >= cfg.SamplePeriodMs {
		s.total, s.errors, s.slow, s.windowStartMs = 0, 0, 0, nowMs
	}
	s.total++
	if !success {
		s.errors++
	}
	if cfg.SlowRateThresholdMs > 0 && delayMs >= cfg.SlowRateThresholdMs {
		s.slow++
	}
	total := s.total
	errors := s.errors
	slow := s.slow
	s.mu.Unlock()

	if total == 0 {
		return
	}
	errorRate := float64(errors) / float64(total)
	slowRate := float64(slow) / float64(total)

	w.Touch(nowMs)
	current := w.ClimbMax()
	var next int64
	if errorRate > cfg.ColdWaterErrorRate || slowRate > cfg.ColdWaterSlowRate {
		next = current - int64(float64(current)*cfg.ClimbDownStep)
	} else {
		next = current + int64(float64(current)*cfg.ClimbUpStep)
	}
	if next < cfg.MinAmount {
		next = cfg.MinAmount
	}
	if next > cfg.MaxAmount {
		next = cfg.MaxAmount
	}
	w.SetClimbMax(next)
}
