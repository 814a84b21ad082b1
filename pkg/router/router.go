// Package router implements the chained service-router pipeline (C7):
// RuleRouter, NearbyRouter, SetDivisionRouter,
// CanaryRouter, MetadataRouter, each narrowing a RouteInfo's
// InstancesSet or ending the chain with a redirect.
package router

import "github.com/polarismesh/polaris-go-sub002/pkg/model"

// Stage is one router-chain link: a name plus a single Route method.
type Stage interface {
	Name() string
	Route(info *model.RouteInfo) (model.RouteResult, error)
}

// Chain runs an ordered list of stages, honoring each RouteInfo's
// per-router enable mask and end-chain signal: the chain stops on any
// stage that sets end_chain or empties the result.
type Chain struct {
	stages []Stage
}

func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Run executes the chain and returns the final RouteResult plus the
// per-stage stats a caller may want to publish for discard tracking,
// or a redirect result if any stage set one.
func (c *Chain) Run(info *model.RouteInfo) (model.RouteResult, []model.ChainStat, error) {
	result := model.RouteResult{Instances: info.Instances}
	var stats []model.ChainStat

	for _, s := range c.stages {
		if !info.RouterEnabled(s.Name()) {
			continue
		}
		r, err := s.Route(info)
		if err != nil {
			return model.RouteResult{}, stats, err
		}
		if r.Redirect != nil {
			return r, stats, nil
		}
		result = r
		info.Instances = r.Instances

		kept := 0
		if r.Instances != nil {
			kept = len(r.Instances.Instances)
		}
		stats = append(stats, model.ChainStat{Router: s.Name(), Kept: kept})

		if info.ChainEnded() || result.Instances.Empty() {
			break
		}
	}
	return result, stats, nil
}

// baseFilter narrows to instances passing keep, honoring the request's
// IncludeUnhealthy flag, and its IncludeCircuitBroken flag when cbData
// is non-nil. The stages in this package pass nil cbData, so Open
// instances are not removed here.
func baseFilter(info *model.RouteInfo, cbData *model.ChainData, keep func(*model.Instance) bool) *model.InstancesSet {
	return info.Instances.Filter(func(inst *model.Instance) bool {
		if !info.IncludeUnhealthy && (!inst.Healthy || inst.Isolate) {
			return false
		}
		if !info.IncludeCircuitBroken && cbData != nil && cbData.IsOpen(inst.ID) {
			return false
		}
		if keep != nil {
			return keep(inst)
		}
		return true
	})
}
