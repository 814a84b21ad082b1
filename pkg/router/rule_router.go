package router

import (
	"math/rand"
	"regexp"
	"sort"

	"github.com/polarismesh/polaris-go-sub002/pkg/circuitbreaker"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// RuleRouter matches a request's source against the destination's
// inbound rules and narrows to a weighted priority-group selection, or
// ends the chain with a redirect. The source service's outbound rules
// (RouteInfo.SourceRule) are not consulted.
type RuleRouter struct {
	subsetCB func(key model.ServiceKey) *model.ChainData
}

func NewRuleRouter(subsetCB func(key model.ServiceKey) *model.ChainData) *RuleRouter {
	return &RuleRouter{subsetCB: subsetCB}
}

func (r *RuleRouter) Name() string { return "ruleRouter" }

func (r *RuleRouter) Route(info *model.RouteInfo) (model.RouteResult, error) {
	if info.DestinationRule == nil {
		return model.RouteResult{Instances: info.Instances}, nil
	}

	rules := info.DestinationRule.Inbound
	if info.Source == nil {
		rules = nil
	}

	var matched *model.Rule
	for i := range rules {
		if ruleMatches(rules[i], info.Source) {
			matched = &rules[i]
			break
		}
	}
	if matched == nil {
		return model.RouteResult{Instances: info.Instances}, nil
	}
	if matched.Redirect != nil {
		info.EndChain()
		return model.RouteResult{Redirect: matched.Redirect}, nil
	}

	var subsetCB *model.ChainData
	if r.subsetCB != nil {
		subsetCB = r.subsetCB(info.DestinationKey)
	}

	// Priority-safety invariant: a priority tier
	// that yields no usable instance falls over to the next tier.
	groups := sortedPriorities(matched.Destinations)
	for _, priority := range groups {
		filtered := filterByDestinationGroups(info, priority.groups, subsetCB, matched.ID)
		if !filtered.Empty() {
			return model.RouteResult{Instances: filtered}, nil
		}
	}
	return model.RouteResult{Instances: info.Instances.Filter(func(*model.Instance) bool { return false })}, nil
}

type priorityGroup struct {
	priority int
	groups   []model.DestinationGroup
}

func sortedPriorities(dests []model.DestinationGroup) []priorityGroup {
	byPriority := map[int][]model.DestinationGroup{}
	for _, d := range dests {
		byPriority[d.Priority] = append(byPriority[d.Priority], d)
	}
	out := make([]priorityGroup, 0, len(byPriority))
	for p, g := range byPriority {
		out = append(out, priorityGroup{priority: p, groups: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// filterByDestinationGroups narrows to instances matching one of
// groups's label subsets, weighted-random selecting among groups when
// more than one group shares the winning priority, and excluding
// subsets that are Open under ruleID unless the caller allows broken
// instances; when every group is excluded the result is empty, so the
// caller moves on to the next priority. Preserved subsets are weighed
// like Closed ones.
func filterByDestinationGroups(info *model.RouteInfo, groups []model.DestinationGroup, subsetCB *model.ChainData, ruleID string) *model.InstancesSet {
	candidates := make([]model.DestinationGroup, 0, len(groups))
	for _, g := range groups {
		if subsetCB != nil && !info.IncludeCircuitBroken {
			if circuitbreaker.IsSubsetOpen(subsetCB, g.Subset, ruleID) {
				continue
			}
		}
		candidates = append(candidates, g)
	}
	if len(candidates) == 0 {
		return info.Instances.Filter(func(*model.Instance) bool { return false })
	}

	group := weightedPick(candidates)
	if group == nil {
		return info.Instances.Filter(func(*model.Instance) bool { return false })
	}

	return info.Instances.Filter(func(inst *model.Instance) bool {
		if group.Isolate && inst.Isolate {
			return false
		}
		return subsetMatches(group.Subset, inst)
	})
}

func subsetMatches(subset map[string]string, inst *model.Instance) bool {
	for k, v := range subset {
		if inst.Metadata[k] != v {
			return false
		}
	}
	return true
}

func weightedPick(groups []model.DestinationGroup) *model.DestinationGroup {
	total := 0
	for _, g := range groups {
		w := g.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total == 0 {
		return nil
	}
	target := rand.Intn(total)
	acc := 0
	for i := range groups {
		w := groups[i].Weight
		if w <= 0 {
			w = 1
		}
		acc += w
		if target < acc {
			return &groups[i]
		}
	}
	return &groups[len(groups)-1]
}

func ruleMatches(rule model.Rule, source *model.ServiceInfo) bool {
	if len(rule.Sources) == 0 {
		return true
	}
	for _, sm := range rule.Sources {
		if sourceMatchesOne(sm, source) {
			return true
		}
	}
	return false
}

func sourceMatchesOne(sm model.SourceMatch, source *model.ServiceInfo) bool {
	if source == nil {
		return sm.Namespace == "" && sm.Service == "" && len(sm.Metadata) == 0
	}
	if sm.Namespace != "" && sm.Namespace != "*" && sm.Namespace != source.Key.Namespace {
		return false
	}
	if sm.Service != "" && sm.Service != "*" && sm.Service != source.Key.Name {
		return false
	}
	for k, matcher := range sm.Metadata {
		if !matchValue(matcher, source.Metadata[k]) {
			return false
		}
	}
	return true
}

// matchValue evaluates one MatchString against a value. Parameter and
// environment-variable bindings are
// treated abstractly: the bound value is compared literally against
// whatever the caller already resolved into Value, same as an exact
// match, since resolving the binding itself is the caller's/config
// layer's job, not the router's.
func matchValue(m model.MatchString, value string) bool {
	switch m.Type {
	case model.MatchRegex:
		re, err := regexp.Compile(m.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return m.Value == value
	}
}
