// Package cache implements the Service-Data Cache: a
// versioned registry of per-service records held in a sync.Map, with GC of entries no consumer has read recently (invariant
// 5). Subscription to the control plane is delegated to a Subscriber
// collaborator (implemented by pkg/connector) so this package has no
// transport dependency of its own.
package cache

import (
	"sync"

	"github.com/polarismesh/polaris-go-sub002/pkg/clock"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
	"github.com/polarismesh/polaris-go-sub002/pkg/notify"
	"github.com/sirupsen/logrus"
)

// Subscriber is the Server Connector's half of the contract: subscribe
// to (key, kind) if not already subscribed, and unsubscribe when GC
// evicts the entry.
type Subscriber interface {
	Subscribe(key model.ServiceKey, kind model.DataKind)
	Unsubscribe(key model.ServiceKey, kind model.DataKind)
}

// PreUpdateHook runs synchronously before an update is published,
// allowing e.g. the circuit-breaker chain to prune state for instances
// that disappeared.
type PreUpdateHook func(key model.ServiceKey, kind model.DataKind, prev, next *model.ServiceData)

type entry struct {
	service *model.Service
	// notifiers are outstanding load_with_notify waiters per kind,
	// fired and cleared on the next update for that kind.
	mu        sync.Mutex
	notifiers map[model.DataKind][]*notify.Notify
}

// Cache is the Service-Data Cache. One Cache per Context.
type Cache struct {
	clock      *clock.Clock
	subscriber Subscriber

	entries sync.Map // model.ServiceKey -> *entry

	hooksMu sync.Mutex
	hooks   []PreUpdateHook

	reclaimMu    sync.Mutex
	reclaimQueue []reclaimable
}

func New(c *clock.Clock, subscriber Subscriber) *Cache {
	return &Cache{clock: c, subscriber: subscriber}
}

func (c *Cache) AddPreUpdateHook(h PreUpdateHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, h)
}

func (c *Cache) getOrCreateEntry(key model.ServiceKey) *entry {
	if v, ok := c.entries.Load(key); ok {
		return v.(*entry)
	}
	e := &entry{service: model.NewService(key), notifiers: map[model.DataKind][]*notify.Notify{}}
	actual, _ := c.entries.LoadOrStore(key, e)
	return actual.(*entry)
}

// Get returns the active snapshot for (key, kind) with its refcount
// incremented, plus the entry's status. Non-blocking: returns
// StatusNotInit if no subscription exists yet for a key this call
// creates a (still-unsubscribed) placeholder for.
func (c *Cache) Get(key model.ServiceKey, kind model.DataKind) (*model.ServiceData, model.SyncStatus) {
	e := c.getOrCreateEntry(key)
	e.service.Touch(c.clock.CoarseNowMs())

	sd := e.service.Get(kind)
	if sd == nil {
		return nil, model.StatusNotInit
	}
	return sd.Acquire(), sd.Status
}

// LoadWithNotify subscribes via the Subscriber if this is the first
// access to (key, kind), and returns a Notify the caller can Wait on
// for first-sync or timeout.
func (c *Cache) LoadWithNotify(key model.ServiceKey, kind model.DataKind) *notify.Notify {
	e := c.getOrCreateEntry(key)
	e.service.Touch(c.clock.CoarseNowMs())

	n := notify.New()

	e.mu.Lock()
	existing := e.service.Get(kind)
	firstSubscribe := existing == nil
	if existing != nil && existing.Status != model.StatusNotInit {
		e.mu.Unlock()
		n.NotifyAll(int(existing.Status))
		return n
	}
	e.notifiers[kind] = append(e.notifiers[kind], n)
	e.mu.Unlock()

	if firstSubscribe && c.subscriber != nil {
		c.subscriber.Subscribe(key, kind)
	}
	return n
}

// Update atomically replaces the snapshot for (key, kind), bumps
// cache_version, enqueues the old snapshot for reclamation, runs
// pre-update hooks, and fires any outstanding notifiers. A nil
// newServiceData marks the entry NotFound.
func (c *Cache) Update(key model.ServiceKey, kind model.DataKind, next *model.ServiceData) {
	e := c.getOrCreateEntry(key)

	if next == nil {
		next = model.NewServiceData(key, kind)
		next.Status = model.StatusNotFound
	}
	next.SetCreatedAt(c.clock.CoarseNowMs())

	prev := e.service.Get(kind)

	c.hooksMu.Lock()
	hooks := append([]PreUpdateHook(nil), c.hooks...)
	c.hooksMu.Unlock()
	for _, h := range hooks {
		h(key, kind, prev, next)
	}

	e.service.Swap(kind, next)
	if prev != nil {
		c.enqueueReclaim(prev)
	}

	e.mu.Lock()
	waiters := e.notifiers[kind]
	delete(e.notifiers, kind)
	e.mu.Unlock()
	for _, n := range waiters {
		n.NotifyAll(int(next.Status))
	}
}

// TouchVersion bumps the current snapshot's cache_version in place, for
// a control-plane reply that confirms the data is unchanged; it neither
// swaps the snapshot nor fires load_with_notify waiters, since nothing
// about the published content changed.
func (c *Cache) TouchVersion(key model.ServiceKey, kind model.DataKind) {
	e := c.getOrCreateEntry(key)
	if sd := e.service.Get(kind); sd != nil {
		sd.BumpCacheVersion()
	}
}

// UpdateCB returns the service's per-instance circuit-breaker table, so
// callers can change breaker state without allocating a new ServiceData.
func (c *Cache) UpdateCB(key model.ServiceKey) *model.ChainData {
	return c.getOrCreateEntry(key).service.Chain
}

// UpdateDynamicWeight installs weight for instanceID in key's side-band
// weight table without touching the snapshot.
func (c *Cache) UpdateDynamicWeight(key model.ServiceKey, instanceID string, weight int) {
	c.getOrCreateEntry(key).service.SetDynamicWeight(instanceID, weight)
}

func (c *Cache) Service(key model.ServiceKey) *model.Service {
	return c.getOrCreateEntry(key).service
}

// reclaimable is a snapshot queued for GC, freed once its refcount is
// zero and the grace window has elapsed.
type reclaimable struct {
	sd       *model.ServiceData
	queuedAt int64
}

func (c *Cache) enqueueReclaim(sd *model.ServiceData) {
	c.reclaimMu.Lock()
	c.reclaimQueue = append(c.reclaimQueue, reclaimable{sd: sd, queuedAt: c.clock.CoarseNowMs()})
	c.reclaimMu.Unlock()
	sd.Release()
}

var graceWindowMs int64 = 2000

// CheckReclaim drops snapshots whose refcount has drained to zero and
// whose grace window has elapsed. Intended to run on the scheduler.
func (c *Cache) CheckReclaim(nowMs int64) {
	c.reclaimMu.Lock()
	defer c.reclaimMu.Unlock()

	kept := c.reclaimQueue[:0]
	for _, r := range c.reclaimQueue {
		if r.sd.RefCount() > 0 || nowMs-r.queuedAt < graceWindowMs {
			kept = append(kept, r)
		}
	}
	c.reclaimQueue = kept
}

// ListKeys returns every currently cached ServiceKey.
func (c *Cache) ListKeys() []model.ServiceKey {
	var out []model.ServiceKey
	c.entries.Range(func(k, _ interface{}) bool {
		out = append(out, k.(model.ServiceKey))
		return true
	})
	return out
}

// GCExpired unsubscribes and removes entries idle for at least idleMs.
// GC unsubscribes from the control plane before freeing the entry.
func (c *Cache) GCExpired(nowMs, idleMs int64) {
	c.entries.Range(func(k, v interface{}) bool {
		key := k.(model.ServiceKey)
		e := v.(*entry)
		if !e.service.IdleFor(nowMs, idleMs) {
			return true
		}
		for _, kind := range []model.DataKind{model.KindInstances, model.KindRouteRule, model.KindRateLimitRule, model.KindCircuitBreakerConfig} {
			if e.service.Get(kind) != nil && c.subscriber != nil {
				c.subscriber.Unsubscribe(key, kind)
			}
		}
		logrus.Debugf("cache: GC evicting idle service %s", key)
		c.entries.Delete(key)
		return true
	})
}
