package model

import (
	"sync/atomic"
)

// DataKind distinguishes the four snapshot kinds a ServiceData can carry.
type DataKind int

const (
	KindInstances DataKind = iota
	KindRouteRule
	KindRateLimitRule
	KindCircuitBreakerConfig
)

func (k DataKind) String() string {
	switch k {
	case KindInstances:
		return "Instances"
	case KindRouteRule:
		return "RouteRule"
	case KindRateLimitRule:
		return "RateLimitRule"
	case KindCircuitBreakerConfig:
		return "CircuitBreakerConfig"
	default:
		return "Unknown"
	}
}

// SyncStatus is the cache entry's lifecycle state, NotInit -> Syncing on
// first successful push, or NotFound if the control plane disowns the key.
type SyncStatus int

const (
	StatusNotInit SyncStatus = iota
	StatusLoadedFromDisk
	StatusSyncing
	StatusNotFound
)

func (s SyncStatus) String() string {
	switch s {
	case StatusNotInit:
		return "NotInit"
	case StatusLoadedFromDisk:
		return "LoadedFromDisk"
	case StatusSyncing:
		return "Syncing"
	case StatusNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// ServiceData is an atomically swappable, never-mutated snapshot. A new
// update publishes a new *ServiceData and queues the old one for
// reclamation once its refcount drains to zero. Invariant 1.
// every Instance exposed to a caller is backed by a ServiceData whose
// refcount the caller holds for the duration of its use.
type ServiceData struct {
	Key      ServiceKey
	Kind     DataKind
	Revision string
	Status   SyncStatus

	Instances []*Instance
	RouteRule *RouteRule
	RateLimit *RateLimitRule
	CBConfig  *CircuitBreakerConfig

	// cacheVersion increases monotonically on every local update,
	// including "no-change" pushes that only refresh the revision
	// without publishing a new snapshot; mutated in place via
	// BumpCacheVersion rather than through a swap, since it is a
	// side-band freshness counter rather than part of the immutable
	// snapshot content.
	cacheVersion atomic.Uint64

	refcount  atomic.Int32
	createdAt int64 // monotonic ms, set by the cache on publish
}

// CacheVersion returns the current freshness counter.
func (s *ServiceData) CacheVersion() uint64 { return s.cacheVersion.Load() }

// BumpCacheVersion advances the freshness counter without touching the
// rest of the snapshot, for a control-plane reply that confirms the
// data is still current without sending a new one.
func (s *ServiceData) BumpCacheVersion() uint64 { return s.cacheVersion.Add(1) }

// NewServiceData builds a snapshot with an initial refcount of 1, held
// by the cache itself until it is replaced.
func NewServiceData(key ServiceKey, kind DataKind) *ServiceData {
	sd := &ServiceData{Key: key, Kind: kind, Status: StatusNotInit}
	sd.refcount.Store(1)
	return sd
}

// Acquire increments the refcount; callers must pair every Acquire with
// a Release. The cache calls this once per observed snapshot handed to
// a caller thread.
func (s *ServiceData) Acquire() *ServiceData {
	if s == nil {
		return nil
	}
	s.refcount.Add(1)
	return s
}

// Release decrements the refcount and reports whether it reached zero,
// meaning the snapshot is now eligible for reclamation (subject also to
// the RCU grace window enforced by the reclaimer).
func (s *ServiceData) Release() bool {
	if s == nil {
		return false
	}
	return s.refcount.Add(-1) == 0
}

func (s *ServiceData) RefCount() int32 {
	if s == nil {
		return 0
	}
	return s.refcount.Load()
}

// CreatedAt/SetCreatedAt record the monotonic-ms publish time. The
// reclaimer's grace window is timed from when a snapshot is queued for
// reclamation, not from this value.
func (s *ServiceData) CreatedAt() int64     { return s.createdAt }
func (s *ServiceData) SetCreatedAt(ms int64) { s.createdAt = ms }
