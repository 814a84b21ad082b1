// Package circuitbreaker implements the per-instance and per-subset
// circuit breaker chain: the ErrorCount and ErrorRate
// plugins, each driven by UpdateServiceCallResult and serialized
// through model.ChainData.Translate so only the owning plugin can move
// a state it drove.
package circuitbreaker

import (
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// CallResult is what UpdateServiceCallResult reports for one call.
type CallResult struct {
	InstanceID string
	Success    bool
	DelayMs    int64
}

// Plugin is the interface every circuit-breaker implementation
// satisfies: a name and chain index, a call-result hook and a timing
// check.
type Plugin interface {
	Name() string
	Index() int
	UpdateServiceCallResult(chain *model.ChainData, result CallResult, nowMs int64)
	// CheckTiming drives time-based transitions (HalfOpen after sleep
	// window, metric expiry) independent of call results; invoked
	// periodically by the reactor's circuit-breaker timing pass.
	CheckTiming(chain *model.ChainData, nowMs int64)
}

// Chain runs a fixed ordered list of plugins against one service's
// ChainData. Order matches configuration (default: errorCount, errorRate).
type Chain struct {
	plugins []Plugin
}

func NewChain(plugins ...Plugin) *Chain {
	return &Chain{plugins: plugins}
}

func (c *Chain) UpdateServiceCallResult(chain *model.ChainData, result CallResult, nowMs int64) {
	for _, p := range c.plugins {
		p.UpdateServiceCallResult(chain, result, nowMs)
	}
	chain.Republish()
}

func (c *Chain) CheckTiming(chain *model.ChainData, nowMs int64) {
	for _, p := range c.plugins {
		p.CheckTiming(chain, nowMs)
	}
	chain.Republish()
}
