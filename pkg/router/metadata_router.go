package router

import (
	"k8s.io/apimachinery/pkg/labels"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// MetadataRouter filters to instances whose metadata matches every
// (k,v) pair in the request criteria. Criteria is compiled into a
// label selector so the match logic is the same equality-selector
// semantics Kubernetes resources are filtered with, rather than a
// hand-rolled map walk. When the match leaves no instance, Failover
// decides what to fall back to: None fails (empty result), NotKey
// keeps instances that don't carry the requested key(s) at all, All
// keeps every instance regardless of metadata.
type MetadataRouter struct{}

func NewMetadataRouter() *MetadataRouter { return &MetadataRouter{} }

func (r *MetadataRouter) Name() string { return "metadataRouter" }

func (r *MetadataRouter) Route(info *model.RouteInfo) (model.RouteResult, error) {
	criteria := metadataCriteria(info)
	selector := labels.SelectorFromSet(labels.Set(criteria))
	matched := baseFilter(info, nil, func(i *model.Instance) bool {
		return selector.Matches(labels.Set(i.Metadata))
	})
	if !matched.Empty() {
		return model.RouteResult{Instances: matched}, nil
	}

	switch metadataFailover(info) {
	case model.FailoverAll:
		return model.RouteResult{Instances: baseFilter(info, nil, nil)}, nil
	case model.FailoverNotKey:
		return model.RouteResult{Instances: baseFilter(info, nil, func(i *model.Instance) bool {
			for k := range criteria {
				if _, ok := i.Metadata[k]; ok {
					return false
				}
			}
			return true
		})}, nil
	default:
		return model.RouteResult{Instances: matched}, nil
	}
}

func metadataCriteria(info *model.RouteInfo) map[string]string {
	if info.Metadata == nil {
		return nil
	}
	return info.Metadata.Criteria
}

func metadataFailover(info *model.RouteInfo) model.FailoverMode {
	if info.Metadata == nil {
		return model.FailoverNone
	}
	return info.Metadata.Failover
}
