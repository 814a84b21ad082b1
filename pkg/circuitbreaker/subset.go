package circuitbreaker

import "github.com/polarismesh/polaris-go-sub002/pkg/model"

// SubsetChain runs the same ErrorCount/ErrorRate plugin chain against a
// service's subset-keyed ChainData instead of its instance-keyed one
//: "same state machine keyed by subset-label hash,
// driven by InstanceGauge.subset rather than instance_id".
type SubsetChain struct {
	chain *Chain
}

func NewSubsetChain(plugins ...Plugin) *SubsetChain {
	return &SubsetChain{chain: NewChain(plugins...)}
}

// Report feeds one call outcome into the subset breaker. Gauges with no
// subset labels and no rule id are skipped: the subset breaker only
// judges instances the rule router actually grouped into a subset.
func (s *SubsetChain) Report(subsetData *model.ChainData, gauge model.InstanceGauge, nowMs int64) {
	if len(gauge.Subset) == 0 && gauge.RuleID == "" {
		return
	}
	s.chain.UpdateServiceCallResult(subsetData, CallResult{
		InstanceID: gauge.SubsetKey(),
		Success:    gauge.Success,
		DelayMs:    gauge.DelayMs,
	}, nowMs)
}

func (s *SubsetChain) CheckTiming(subsetData *model.ChainData, nowMs int64) {
	s.chain.CheckTiming(subsetData, nowMs)
}

// IsSubsetOpen reports whether the subset a gauge/route belongs to is
// currently Open, consulted by the rule router's priority-safety check.
func IsSubsetOpen(subsetData *model.ChainData, labels map[string]string, ruleID string) bool {
	return subsetData.IsOpen(model.SubsetKey(labels, ruleID))
}
