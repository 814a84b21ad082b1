// Package ratelimit implements the rate-limit quota manager (C9):
// rule resolution, RateLimitWindow lifecycle, local and
// remote (degrade-to-local) acquisition, and the climb adaptive plugin.
package ratelimit

import (
	"sort"
	"sync"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// Request is one GetQuota call.
type Request struct {
	Service       model.ServiceKey
	Labels        map[string]string
	AcquireAmount int64
}

// Result is what GetQuota returns.
type Result struct {
	Allowed        bool
	Left           int64
	All            int64
	DurationMs     int64
	DegradeToLocal bool
}

// LimitCallResult feeds UpdateCallResult, consumed by
// the climb adjuster.
type LimitCallResult struct {
	Window  *model.RateLimitWindow
	Success bool
	DelayMs int64
}

// Manager materializes and reclaims RateLimitWindows, and resolves
// incoming requests against each service's current RateLimitRule
// snapshot.
type Manager struct {
	mu      sync.Mutex
	windows map[model.WindowKey]*model.RateLimitWindow

	rules map[model.ServiceKey]model.RateLimitRule

	climb *Climb

	expireMs int64
}

func NewManager(expireMs int64) *Manager {
	if expireMs <= 0 {
		expireMs = 3600_000
	}
	return &Manager{
		windows:  map[model.WindowKey]*model.RateLimitWindow{},
		rules:    map[model.ServiceKey]model.RateLimitRule{},
		climb:    NewClimb(),
		expireMs: expireMs,
	}
}

func (m *Manager) SetRule(service model.ServiceKey, rule model.RateLimitRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[service] = rule
}

// resolveRule matches req.Labels against the service's rule snapshot
//: exact or regex per rule, and per rule config
// either split-per-label-value or combined across values.
func (m *Manager) resolveRule(service model.ServiceKey, labels map[string]string) (model.LimitRule, bool) {
	m.mu.Lock()
	snapshot, ok := m.rules[service]
	m.mu.Unlock()
	if !ok {
		return model.LimitRule{}, false
	}
	for _, rule := range snapshot.Rules {
		if ruleMatchesLabels(rule, labels) {
			return rule, true
		}
	}
	return model.LimitRule{}, false
}

func ruleMatchesLabels(rule model.LimitRule, labels map[string]string) bool {
	if len(rule.Labels) == 0 {
		return true
	}
	for k, matcher := range rule.Labels {
		if !labelMatches(matcher, labels[k], rule.CombinedLabelValues) {
			return false
		}
	}
	return true
}

func labelMatches(m model.MatchString, value string, combined bool) bool {
	if m.Type != model.MatchRegex {
		return m.Value == value
	}
	re := compileCached(m.Value)
	if re == nil {
		return false
	}
	if !combined {
		return re.MatchString(value)
	}
	// Combined-across-values: value may itself be a comma-joined list
	// of label values; any one matching is sufficient.
	for _, v := range splitComma(value) {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func canonicalLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += k + "=" + labels[k] + ","
	}
	return out
}

// GetQuota resolves the matching rule, acquires-or-creates the window,
// and attempts to decrement it, falling back to degrade_to_local when
// the rule was only just loaded or the remote side is unavailable.
func (m *Manager) GetQuota(req Request, nowMs int64) (Result, bool) {
	rule, ok := m.resolveRule(req.Service, req.Labels)
	if !ok {
		return Result{}, false
	}

	key := model.WindowKey{Service: req.Service, RuleID: rule.ID, Labels: canonicalLabels(req.Labels)}
	window, freshlyLoaded := m.windowFor(key, rule, nowMs)
	window.Touch(nowMs)

	if window.RemoteState() == nil {
		return m.acquireLocal(window, req.AcquireAmount, nowMs, freshlyLoaded), true
	}
	return m.acquireRemote(window, req.AcquireAmount, nowMs, freshlyLoaded), true
}

func (m *Manager) windowFor(key model.WindowKey, rule model.LimitRule, nowMs int64) (*model.RateLimitWindow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[key]; ok {
		return w, false
	}
	w := model.NewRateLimitWindow(key, rule, nowMs)
	m.windows[key] = w
	return w, true
}

// acquireLocal checks every bucket in the window before committing any
// decrement: a single bucket lacking quota fails the whole request, and
// none of its siblings lose quota over it (all-or-nothing across the
// (amount, duration) tiers of one rule).
func (m *Manager) acquireLocal(window *model.RateLimitWindow, amount, nowMs int64, freshlyLoaded bool) Result {
	allowed := true
	var left, all, duration int64
	for _, b := range window.Buckets {
		ok, l, a, d := b.Peek(nowMs, amount)
		left, all, duration = l, a, d
		if !ok {
			allowed = false
		}
	}
	if allowed {
		for _, b := range window.Buckets {
			b.Commit(amount)
		}
	}
	return Result{Allowed: allowed || freshlyLoaded, Left: left, All: all, DurationMs: duration, DegradeToLocal: freshlyLoaded}
}

// acquireRemote applies the locally-approved threshold from the last
// reconciliation, and degrades to local mode when the remote side has
// never successfully reconciled or is degraded. It does not mark the
// window for an early push when the optimistic counter runs low.
func (m *Manager) acquireRemote(window *model.RateLimitWindow, amount, nowMs int64, freshlyLoaded bool) Result {
	if freshlyLoaded {
		return m.acquireLocal(window, amount, nowMs, true)
	}

	r := window.RemoteState()
	ok, notReconciled, degraded, left := r.TryAcquire(amount)
	if notReconciled || degraded {
		return m.acquireLocal(window, amount, nowMs, true)
	}
	return Result{Allowed: ok, Left: left}
}

// Reconcile applies a limiter cluster's response to the window's remote
// state, or falls back to degrade_to_local if unreachable ("if the limiter is unreachable... transition to
// degrade_to_local").
func (m *Manager) Reconcile(key model.WindowKey, nowMs int64, approvedLeft int64, reachable bool) {
	m.mu.Lock()
	w, ok := m.windows[key]
	m.mu.Unlock()
	if !ok || w.RemoteState() == nil {
		return
	}
	w.RemoteState().Reconcile(nowMs, approvedLeft, reachable)
}

// UpdateCallResult feeds the climb adjuster.
func (m *Manager) UpdateCallResult(result LimitCallResult, rule *model.ClimbConfig, nowMs int64) {
	if rule == nil {
		return
	}
	m.climb.Update(result.Window, *rule, result.Success, result.DelayMs, nowMs)
}

// ReportCallResult re-resolves the rule matching (service, labels) and
// feeds the climb adjuster for its window, a no-op if no rule matches
// or the matched rule has no climb config ( climb plugin
// only runs when configured). The facade calls this from
// Limit.UpdateCallResult without needing to carry a *model.RateLimitWindow
// across the API boundary.
func (m *Manager) ReportCallResult(service model.ServiceKey, labels map[string]string, ruleID string, success bool, delayMs, nowMs int64) {
	rule, ok := m.resolveRule(service, labels)
	if !ok || rule.Climb == nil {
		return
	}
	if ruleID != "" && ruleID != rule.ID {
		return
	}
	key := model.WindowKey{Service: service, RuleID: rule.ID, Labels: canonicalLabels(labels)}
	m.mu.Lock()
	w, ok := m.windows[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.climb.Update(w, *rule.Climb, success, delayMs, nowMs)
}

// GCExpired reclaims windows unused for expireMs, flushing pending
// remote deltas first.
func (m *Manager) GCExpired(nowMs int64, flush func(*model.RateLimitWindow)) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, w := range m.windows {
		if nowMs-w.LastUsed() < m.expireMs {
			continue
		}
		if w.RemoteState() != nil && flush != nil {
			if allowed, limited := w.RemoteState().PendingDeltas(); allowed > 0 || limited > 0 {
				flush(w)
			}
		}
		delete(m.windows, k)
		removed++
	}
	return removed
}
