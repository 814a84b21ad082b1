package connector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// pollTick is the granularity at which pollLoop scans listeners for a
// due sync_interval resend; actual resend cadence is still governed by
// each Listener.SyncInterval, not this tick.
const pollTick = 500 * time.Millisecond

// Config tunes the connector (mirrors config.ServerConnector).
type Config struct {
	Addresses            []string
	ConnectTimeout       time.Duration
	MessageTimeout       time.Duration
	ServerSwitchInterval time.Duration
	DefaultSyncInterval  time.Duration
	BackoffMax           time.Duration
}

func New(transport Transport, updater Updater, cfg Config) *Connector {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // never give up; max interval bounds it instead
	if cfg.BackoffMax > 0 {
		b.MaxInterval = cfg.BackoffMax
	}

	return &Connector{
		transport:      transport,
		updater:        updater,
		addresses:      cfg.Addresses,
		switchEvery:    cfg.ServerSwitchInterval,
		listeners:      map[listenerKey]*Listener{},
		cbData:         model.NewChainData(),
		backoff:        b,
		stop:           make(chan struct{}),
		defaultSync:    cfg.DefaultSyncInterval,
		connectTimeout: cfg.ConnectTimeout,
		messageTimeout: cfg.MessageTimeout,
	}
}

// SetUpdater installs the Service-Data Cache once it has been built
// from this very Connector acting as its Subscriber, breaking the
// circular construction with a New-then-wire pattern for components
// that reference each other.
func (c *Connector) SetUpdater(u Updater) {
	c.mu.Lock()
	c.updater = u
	c.mu.Unlock()
}

func (c *Connector) nextAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.addresses) == 0 {
		return ""
	}
	addr := c.addresses[c.addrIdx%len(c.addresses)]
	c.addrIdx++
	return addr
}

// Subscribe implements cache.Subscriber: a new listener joins the
// pending set and is sent as soon as the stream is connected.
func (c *Connector) Subscribe(key model.ServiceKey, kind model.DataKind) {
	lk := listenerKey{Service: key, Kind: kind}
	c.mu.Lock()
	if _, ok := c.listeners[lk]; ok {
		c.mu.Unlock()
		return
	}
	syncInterval := c.defaultSync
	if syncInterval <= 0 {
		syncInterval = 2 * time.Second
	}
	l := &Listener{
		Service:             key,
		Kind:                kind,
		Timeout:             NewTimeoutPolicy(c.messageTimeout.Milliseconds(), c.messageTimeout.Milliseconds()*8, 2.0),
		SyncInterval:        syncInterval,
		pendingForConnected: true,
	}
	c.listeners[lk] = l
	stream := c.stream
	c.mu.Unlock()

	if stream != nil {
		l.setPendingForConnected(false)
		c.sendSubscribe(stream, l)
	}
}

func (c *Connector) Unsubscribe(key model.ServiceKey, kind model.DataKind) {
	lk := listenerKey{Service: key, Kind: kind}
	c.mu.Lock()
	delete(c.listeners, lk)
	c.mu.Unlock()
}

func (c *Connector) sendSubscribe(stream Stream, l *Listener) {
	l.mu.Lock()
	lastRevision := l.LastRevision
	l.mu.Unlock()

	err := stream.Send(&DiscoverRequest{Service: l.Service, Kind: l.Kind, Op: "subscribe", LastRevision: lastRevision})
	l.recordSent(time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).Warnf("connector: subscribe send failed for %s/%s", l.Service, l.Kind)
		l.Timeout.OnFailure()
	}
}

// pollLoop drives the two timer-based tasks requires beyond
// push-driven updates: a per-listener periodic "discover" resend at
// sync_interval (so a listener eventually converges even if a push is
// lost), and a per-request timeout check that widens a listener's
// adaptive timeout when a resend finds the prior round still
// unanswered.
func (c *Connector) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *Connector) pollOnce() {
	now := time.Now().UnixMilli()

	c.mu.Lock()
	stream := c.stream
	candidates := make([]*Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		candidates = append(candidates, l)
	}
	c.mu.Unlock()

	if stream == nil {
		return
	}

	for _, l := range candidates {
		if l.isPendingForConnected() {
			continue
		}
		lastSent := l.lastSentAt()
		if now-lastSent < l.SyncInterval.Milliseconds() {
			continue
		}
		// The prior round never answered by its adaptive timeout: widen
		// it before retrying, same as a request timing out would.
		if lastSent > 0 && now-lastSent >= l.Timeout.Current().Milliseconds() {
			l.Timeout.OnFailure()
		}
		c.sendSubscribe(stream, l)
	}
}

// Run drives the connect/read loop until Stop is called; intended to
// run on the single reactor goroutine for this Context.
func (c *Connector) Run(ctx context.Context) {
	c.wg.Add(2)
	defer c.wg.Done()
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx)
	}()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		c.setState(stateGetInstance)
		addr := c.nextAddress()
		if addr == "" {
			logrus.Error("connector: no control-plane addresses configured")
			return
		}

		dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
		stream, err := c.transport.OpenDiscoverStream(dialCtx, addr)
		cancel()
		if err != nil {
			c.reportEndpointFailure(addr)
			c.sleepBackoff(ctx)
			continue
		}

		c.backoff.Reset()
		c.setState(stateInit)
		c.mu.Lock()
		c.stream = stream
		listeners := make([]*Listener, 0, len(c.listeners))
		for _, l := range c.listeners {
			listeners = append(listeners, l)
		}
		c.mu.Unlock()
		for _, l := range listeners {
			l.setPendingForConnected(false)
		}

		for _, l := range listeners {
			c.sendSubscribe(stream, l)
		}

		c.readLoop(ctx, stream, addr)

		// Stream closed: every listener moves back to pending_for_connected
		// and a reconnect is scheduled.
		c.mu.Lock()
		closedListeners := make([]*Listener, 0, len(c.listeners))
		for _, l := range c.listeners {
			closedListeners = append(closedListeners, l)
		}
		c.stream = nil
		c.mu.Unlock()
		for _, l := range closedListeners {
			l.setPendingForConnected(true)
		}

		select {
		case <-c.stop:
			return
		default:
		}
		c.sleepBackoff(ctx)
	}
}

func (c *Connector) readLoop(ctx context.Context, stream Stream, addr string) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			logrus.WithError(err).Debugf("connector: stream to %s closed", addr)
			return
		}
		c.handleResponse(resp)
	}
}

func (c *Connector) handleResponse(resp *DiscoverResponse) {
	lk := listenerKey{Service: resp.Service, Kind: resp.Kind}
	c.mu.Lock()
	l := c.listeners[lk]
	c.mu.Unlock()
	if l == nil {
		return
	}

	switch {
	case resp.BadRequest:
		logrus.Errorf("connector: control plane rejected subscribe for %s/%s as BadRequest", resp.Service, resp.Kind)
		return
	case resp.NotFound:
		c.updater.Update(resp.Service, resp.Kind, nil)
		return
	}

	observedDelay := time.Now().UnixMilli() - l.lastSentAt()
	if observedDelay >= 0 {
		l.Timeout.OnSuccess(observedDelay)
	}

	if l.revisionKnown(resp.Revision) {
		// No change: bump the existing snapshot's cache_version in
		// place for freshness tracking; no new snapshot is published
		// and no load_with_notify waiter needs firing.
		c.updater.TouchVersion(resp.Service, resp.Kind)
		return
	}
	c.updater.Update(resp.Service, resp.Kind, resp.Data)
}

func (c *Connector) reportEndpointFailure(addr string) {
	state := c.cbData.StateFor(addr)
	value, _, _ := state.Snapshot()
	if value == model.CBClosed {
		state.Translate(0, model.CBClosed, model.CBOpen, 0)
		c.cbData.Republish()
	}
}

func (c *Connector) sleepBackoff(ctx context.Context) {
	d := c.backoff.NextBackOff()
	if d == backoff.Stop {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	case <-c.stop:
	}
}

func (c *Connector) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connector) Stop() {
	close(c.stop)
	c.wg.Wait()
	c.transport.Close()
}
