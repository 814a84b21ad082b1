package router

import "github.com/polarismesh/polaris-go-sub002/pkg/model"

const canaryLabelKey = "canary"

// CanaryRouter is a three-way filter on the "canary" metadata tag
//: a tagged request prefers a matching tag, falls back
// to untagged, then to any canary instance; an untagged request
// prefers untagged, then falls back to canary.
type CanaryRouter struct{}

func NewCanaryRouter() *CanaryRouter { return &CanaryRouter{} }

func (r *CanaryRouter) Name() string { return "canaryRouter" }

func (r *CanaryRouter) Route(info *model.RouteInfo) (model.RouteResult, error) {
	tag := ""
	if info.Labels != nil {
		tag = info.Labels[canaryLabelKey]
	}

	if tag != "" {
		if matched := baseFilter(info, nil, func(i *model.Instance) bool { return i.Metadata[canaryLabelKey] == tag }); !matched.Empty() {
			return model.RouteResult{Instances: matched}, nil
		}
		if untagged := baseFilter(info, nil, func(i *model.Instance) bool { return i.Metadata[canaryLabelKey] == "" }); !untagged.Empty() {
			return model.RouteResult{Instances: untagged}, nil
		}
		return model.RouteResult{Instances: baseFilter(info, nil, func(i *model.Instance) bool { return i.Metadata[canaryLabelKey] != "" })}, nil
	}

	if untagged := baseFilter(info, nil, func(i *model.Instance) bool { return i.Metadata[canaryLabelKey] == "" }); !untagged.Empty() {
		return model.RouteResult{Instances: untagged}, nil
	}
	return model.RouteResult{Instances: baseFilter(info, nil, func(i *model.Instance) bool { return i.Metadata[canaryLabelKey] != "" })}, nil
}
