package router

import "github.com/polarismesh/polaris-go-sub002/pkg/model"

const setLabelKey = "internal-set-name"

// SetDivisionRouter restricts instances to the caller's own "set" label
// of the form setname.setarea.setgroup, honoring a "*" wildcard group,
// falling back to the wildcard group when the exact group has no
// survivors.
type SetDivisionRouter struct{}

func NewSetDivisionRouter() *SetDivisionRouter { return &SetDivisionRouter{} }

func (r *SetDivisionRouter) Name() string { return "setDivisionRouter" }

func (r *SetDivisionRouter) Route(info *model.RouteInfo) (model.RouteResult, error) {
	if info.Source == nil {
		return model.RouteResult{Instances: info.Instances}, nil
	}
	callerSet, ok := info.Source.Metadata[setLabelKey]
	if !ok || callerSet == "" {
		return model.RouteResult{Instances: info.Instances}, nil
	}

	name, area, group := splitSet(callerSet)
	exact := baseFilter(info, nil, func(inst *model.Instance) bool {
		n, a, g := splitSet(inst.Metadata[setLabelKey])
		return n == name && a == area && g == group
	})
	if !exact.Empty() {
		return model.RouteResult{Instances: exact}, nil
	}

	wildcard := baseFilter(info, nil, func(inst *model.Instance) bool {
		n, a, g := splitSet(inst.Metadata[setLabelKey])
		return n == name && a == area && g == "*"
	})
	return model.RouteResult{Instances: wildcard}, nil
}

// splitSet parses a "setname.setarea.setgroup" label value into its
// three segments.
func splitSet(label string) (name, area, group string) {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(label); i++ {
		if label[i] == '.' {
			parts = append(parts, label[start:i])
			start = i + 1
		}
	}
	parts = append(parts, label[start:])
	if len(parts) != 3 {
		return "", "", ""
	}
	return parts[0], parts[1], parts[2]
}
