// Package healthcheck implements the active health-check chain: an
// ordered list of TCP/HTTP/UDP probers gated by a per-service
// "when" policy, short-circuiting on first success the way the
// teacher's runHealthChecks drives its server list (pkg/agent/loadbalancer/servers.go).
package healthcheck

import (
	"context"
	"time"
)

// When controls which instances get probed and what the probe result
// drives.
type When int

const (
	WhenNever When = iota
	WhenOnRecover
	WhenAlways
)

func ParseWhen(s string) When {
	switch s {
	case "OnRecover", "onRecover":
		return WhenOnRecover
	case "Always", "always":
		return WhenAlways
	default:
		return WhenNever
	}
}

// Prober is one entry in the chain. A prober decides its own result
// within the timeout it is given; the chain does not retry a prober itself.
type Prober interface {
	Name() string
	Probe(ctx context.Context, target string, timeout time.Duration) bool
}

// Chain is the short-circuit probe chain for one service: first prober
// to succeed wins; if none succeed the chain reports failure.
type Chain struct {
	probers []Prober
	timeout time.Duration
	when    When
}

func NewChain(when When, timeout time.Duration, probers ...Prober) *Chain {
	return &Chain{probers: probers, timeout: timeout, when: when}
}

func (c *Chain) When() When { return c.when }

// Probe runs every configured prober in order against target, stopping
// at the first success.
func (c *Chain) Probe(ctx context.Context, target string) bool {
	for _, p := range c.probers {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		ok := p.Probe(pctx, target, c.timeout)
		cancel()
		if ok {
			return true
		}
	}
	return false
}
