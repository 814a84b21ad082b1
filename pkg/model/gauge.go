package model

// InstanceGauge is the call-result sample a caller reports through
// Consumer.UpdateServiceCallResult. It feeds both the
// per-instance circuit breaker, keyed by InstanceID, and the per-subset
// breaker, keyed by Subset when non-empty.
type InstanceGauge struct {
	Service    ServiceKey
	InstanceID string
	Subset     map[string]string
	RuleID     string

	RetCode  int
	Success  bool
	DelayMs  int64
}

// SubsetKey derives the "subset-labels# rule-id" key the subset circuit
// breaker's ChainData table is indexed by.
func (g InstanceGauge) SubsetKey() string {
	return SubsetKey(g.Subset, g.RuleID)
}

// SubsetKey formats a stable key for a label subset plus its owning
// rule, sorted so map iteration order never affects the key.
func SubsetKey(labels map[string]string, ruleID string) string {
	if len(labels) == 0 {
		return "#" + ruleID
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sortStrings(keys)
	out := ""
	for _, k := range keys {
		out += k + "=" + labels[k] + ","
	}
	return out + "#" + ruleID
}

// sortStrings is a tiny insertion sort; subset label sets are small
// enough that avoiding a sort.Strings import is not worth the extra
// dependency edge for such a hot, small-N path.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
