package model

import "sync"

// WindowKey identifies one RateLimitWindow: a service, a matched rule,
// and the label-combination the request carried.
type WindowKey struct {
	Service ServiceKey
	RuleID  string
	Labels string // canonicalized "k1=v1,k2=v2" label-combination
}

// Bucket is one (amount, duration) sliding-window counter.
type Bucket struct {
	MaxAmount int64
	Duration int64 // ms

	mu       sync.Mutex
	left     int64
	resetsAt int64 // monotonic ms when this bucket's window resets

	Allowed int64
	Limited int64
}

// RemoteState is the distributed-reconciliation side-band used when the
// matched rule names a limiter cluster. Guarded by its own mutex since
// optimistic decrements (from GetQuota) and reconciliation pushes (from
// the reactor's background task) come from different goroutines.
type RemoteState struct {
	mu sync.Mutex

	PendingAllowed     int64
	PendingLimited     int64
	LastReconcileMs    int64
	ServerApprovedLeft int64
	DegradeToLocal     bool
}

// TryAcquire attempts to decrement the server-approved budget by
// amount. ok=false means the caller should fall back to degrade-to-local
// handling; notReconciled reports that no server response has ever been
// applied.
func (r *RemoteState) TryAcquire(amount int64) (ok, notReconciled, degraded bool, left int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DegradeToLocal {
		return false, false, true, r.ServerApprovedLeft
	}
	if r.ServerApprovedLeft < 0 {
		return false, true, false, r.ServerApprovedLeft
	}
	if r.ServerApprovedLeft < amount {
		r.PendingLimited++
		return false, false, false, r.ServerApprovedLeft
	}
	r.ServerApprovedLeft -= amount
	r.PendingAllowed++
	return true, false, false, r.ServerApprovedLeft
}

// Reconcile applies a limiter cluster response, or marks the window
// degraded if unreachable.
func (r *RemoteState) Reconcile(nowMs, approvedLeft int64, reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !reachable {
		r.DegradeToLocal = true
		return
	}
	r.ServerApprovedLeft = approvedLeft
	r.PendingAllowed = 0
	r.PendingLimited = 0
	r.LastReconcileMs = nowMs
	r.DegradeToLocal = false
}

// PendingDeltas returns the accumulated (allowed, limited) counts a
// reconciliation push should flush.
func (r *RemoteState) PendingDeltas() (allowed, limited int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.PendingAllowed, r.PendingLimited
}

// RateLimitWindow is the per-(service, rule-id, label-combination) quota
// state materialized on first GetQuota.
type RateLimitWindow struct {
	Key WindowKey

	mu      sync.Mutex
	Buckets []*Bucket

	Remote *RemoteState // nil in local-only mode

	ClimbMaxAmount int64 // adjusted by the climb plugin within [min,max]

	lastUsedMs int64
}

func NewRateLimitWindow(key WindowKey, rule LimitRule, nowMs int64) *RateLimitWindow {
	w := &RateLimitWindow{Key: key, lastUsedMs: nowMs}
	for _, a := range rule.Amounts {
		w.Buckets = append(w.Buckets, &Bucket{MaxAmount: a.MaxAmount, Duration: a.Duration, left: a.MaxAmount, resetsAt: nowMs + a.Duration})
		if a.MaxAmount > w.ClimbMaxAmount {
			w.ClimbMaxAmount = a.MaxAmount
		}
	}
	if rule.Cluster != "" {
		w.Remote = &RemoteState{ServerApprovedLeft: -1}
	}
	return w
}

func (w *RateLimitWindow) Touch(nowMs int64) {
	w.mu.Lock()
	w.lastUsedMs = nowMs
	w.mu.Unlock()
}

func (w *RateLimitWindow) LastUsed() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsedMs
}

// ClimbMax returns the climb plugin's current ceiling.
func (w *RateLimitWindow) ClimbMax() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ClimbMaxAmount
}

// SetClimbMax updates the climb plugin's ceiling and every bucket's
// MaxAmount to match, under the window's lock.
func (w *RateLimitWindow) SetClimbMax(max int64) {
	w.mu.Lock()
	w.ClimbMaxAmount = max
	buckets := w.Buckets
	w.mu.Unlock()

	for _, b := range buckets {
		b.SetMaxAmount(max)
	}
}

// RemoteState returns the remote-reconciliation side-band, or nil in
// local-only mode. The returned pointer's fields have their own
// synchronization story (TryAcquire/Reconcile/PendingDeltas) since reconcile
// pushes and optimistic decrements come from different goroutines.
func (w *RateLimitWindow) RemoteState() *RemoteState { return w.Remote }

// Peek rolls over an expired window and reports whether amount could be
// admitted, without decrementing left. Callers that need all-or-nothing
// semantics across several buckets call Peek on every bucket first and
// only Commit once every one of them reports ok.
func (b *Bucket) Peek(nowMs, amount int64) (ok bool, left, all, durationMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if nowMs >= b.resetsAt {
		b.left = b.MaxAmount
		b.resetsAt = nowMs + b.Duration
	}
	if amount != 0 && b.left < amount {
		b.Limited++
		return false, b.left, b.MaxAmount, b.Duration
	}
	return true, b.left, b.MaxAmount, b.Duration
}

// Commit decrements the bucket by amount. The caller must have just
// confirmed via Peek that the bucket can admit amount; Commit does not
// re-check.
func (b *Bucket) Commit(amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount == 0 {
		return
	}
	b.left -= amount
	b.Allowed++
}

// SetMaxAmount adjusts the bucket's ceiling (the climb plugin's job);
// the currently remaining count is left untouched until the next reset
// so an in-flight window never gains or loses quota mid-cycle.
func (b *Bucket) SetMaxAmount(max int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.MaxAmount = max
}
