// Package connector implements the Server Connector (C4): a single long-lived bidirectional stream to a control-plane
// node, endpoint rotation on timer or failure, per-listener timeout
// adaptation, and translation of server reply codes into the local
// return-code taxonomy. Endpoint rotation and reconnect backoff are
// generalized from a passive server list to an actively-dialed
// control-plane connection.
package connector

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// connState is the connector's own state machine.
type connState int

const (
	stateNotInit connState = iota
	stateGetInstance
	stateInit
)

// TimeoutPolicy implements the per-listener per-request adaptive
// timeout: starts at Min, multiplies by Expand on
// failure up to Max; a success sets the next timeout to
// last_observed_delay*Expand, clamped to [Min, Max].
type TimeoutPolicy struct {
	Min, Max int64
	Expand   float64

	mu      sync.Mutex
	current int64
}

func NewTimeoutPolicy(min, max int64, expand float64) *TimeoutPolicy {
	return &TimeoutPolicy{Min: min, Max: max, Expand: expand, current: min}
}

func (p *TimeoutPolicy) Current() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.current) * time.Millisecond
}

func (p *TimeoutPolicy) OnFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = clampInt64(int64(float64(p.current)*p.Expand), p.Min, p.Max)
}

func (p *TimeoutPolicy) OnSuccess(observedDelayMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = clampInt64(int64(float64(observedDelayMs)*p.Expand), p.Min, p.Max)
}

func clampInt64(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Listener is one (ServiceKey, kind) subscription. Its mutable fields
// are touched from both the stream read loop and the poll loop
// goroutine, so they're guarded by mu rather than relying on the
// Connector-level lock.
type Listener struct {
	Service      model.ServiceKey
	Kind         model.DataKind
	Timeout      *TimeoutPolicy
	SyncInterval time.Duration

	mu                  sync.Mutex
	LastRevision        string
	pendingForConnected bool
	lastSyncMs          int64
}

func (l *Listener) setPendingForConnected(v bool) {
	l.mu.Lock()
	l.pendingForConnected = v
	l.mu.Unlock()
}

func (l *Listener) isPendingForConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingForConnected
}

func (l *Listener) recordSent(nowMs int64) {
	l.mu.Lock()
	l.lastSyncMs = nowMs
	l.mu.Unlock()
}

func (l *Listener) lastSentAt() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSyncMs
}

func (l *Listener) revisionKnown(revision string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	known := l.LastRevision == revision && l.LastRevision != ""
	if !known {
		l.LastRevision = revision
	}
	return known
}

// listenerKey identifies one (ServiceKey, kind) subscription.
type listenerKey struct {
	Service model.ServiceKey
	Kind    model.DataKind
}

// Updater is the Service-Data Cache's half of the contract: the
// connector pushes fresh snapshots through it, or bumps the existing
// snapshot's freshness counter on an unchanged reply (implemented by
// *cache.Cache).
type Updater interface {
	Update(key model.ServiceKey, kind model.DataKind, next *model.ServiceData)
	TouchVersion(key model.ServiceKey, kind model.DataKind)
}

// Connector owns the discover stream's lifecycle for one Context: a
// bootstrap address list, endpoint rotation, and the listener table
// that resubscribes on every reconnect.
type Connector struct {
	transport Transport
	updater   Updater

	addresses   []string
	addrIdx     int
	switchEvery time.Duration

	connectTimeout time.Duration
	messageTimeout time.Duration
	defaultSync    time.Duration

	mu        sync.Mutex
	state     connState
	listeners map[listenerKey]*Listener
	stream    Stream
	cbData *model.ChainData // the control plane's own service, for its endpoint health

	backoff backoff.BackOff

	stop chan struct{}
	wg   sync.WaitGroup
}
