package healthcheck

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// Target is the minimal view of an instance the dispatcher needs: its
// circuit-breaker identity and dial address.
type Target struct {
	InstanceID string
	Address    string
	Isolated   bool
}

// Dispatcher runs a service's Chain against its candidate instances and
// drives the matching CBState transition, per the When policy. It owns
// the half-open budget handed out on recovery the same
// way auto_half_open_enable does in the circuit breaker chain, except
// driven by probe success rather than a sleep-window timer.
type Dispatcher struct {
	chain        *Chain
	pluginIndex  int
	halfOpenSize int

	// limiter caps outbound probe QPS across all targets so a large
	// instance set probed on every tick can't saturate the network the
	// way an unbounded fan-out would.
	limiter *rate.Limiter
}

func NewDispatcher(chain *Chain, pluginIndex, halfOpenSize int) *Dispatcher {
	return &Dispatcher{chain: chain, pluginIndex: pluginIndex, halfOpenSize: halfOpenSize, limiter: rate.NewLimiter(rate.Limit(maxProbeQPS), maxProbeQPS)}
}

// maxProbeQPS bounds how many probes Dispatcher.Run issues per second
// across every target in one call.
const maxProbeQPS = 200

// Run probes every non-isolated target and applies the result to cbData
// according to the chain's When policy. Targets are probed concurrently
// (bounded by errgroup's default of one goroutine per target) since each
// dials an independent address and the per-instance state each lands on
// is already safe for concurrent Translate calls.
func (d *Dispatcher) Run(ctx context.Context, cbData *model.ChainData, targets []Target) {
	if d.chain.When() == WhenNever {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		if t.Isolated {
			continue
		}
		t := t
		g.Go(func() error {
			d.probeOne(gctx, cbData, t)
			return nil
		})
	}
	_ = g.Wait()
	cbData.Republish()
}

func (d *Dispatcher) probeOne(ctx context.Context, cbData *model.ChainData, t Target) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}
	state := cbData.StateFor(t.InstanceID)
	value, owner, _ := state.Snapshot()

	switch d.chain.When() {
	case WhenOnRecover:
		if value != model.CBOpen {
			return
		}
		// Reuse the existing owner so Translate's ownership check
		// passes; the active checker recovers whichever plugin's
		// Open state it is probing, it does not claim ownership.
		if d.chain.Probe(ctx, t.Address) {
			state.Translate(owner, model.CBOpen, model.CBHalfOpen, d.halfOpenSize)
		}
	case WhenAlways:
		ok := d.chain.Probe(ctx, t.Address)
		switch {
		case ok && value == model.CBOpen && owner == d.pluginIndex:
			state.Translate(d.pluginIndex, model.CBOpen, model.CBClosed, 0)
		case !ok && value == model.CBClosed:
			state.Translate(d.pluginIndex, model.CBClosed, model.CBOpen, 0)
		}
	}
}
