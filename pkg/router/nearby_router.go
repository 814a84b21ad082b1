package router

import "github.com/polarismesh/polaris-go-sub002/pkg/model"

// NearbyLevel is one locality tier, ordered finest-to-coarsest.
type NearbyLevel int

const (
	LevelCampus NearbyLevel = iota
	LevelZone
	LevelRegion
	levelCount
)

func (l NearbyLevel) String() string {
	switch l {
	case LevelCampus:
		return "campus"
	case LevelZone:
		return "zone"
	case LevelRegion:
		return "region"
	default:
		return "unknown"
	}
}

// NearbyRouter filters to the finest locality tier at which healthy
// instances exist relative to the caller's own location.
type NearbyRouter struct {
	MinLevel NearbyLevel
	MaxLevel NearbyLevel
}

func NewNearbyRouter(min, max NearbyLevel) *NearbyRouter {
	return &NearbyRouter{MinLevel: min, MaxLevel: max}
}

func (r *NearbyRouter) Name() string { return "nearbyRouter" }

func (r *NearbyRouter) Route(info *model.RouteInfo) (model.RouteResult, error) {
	if info.Source == nil || info.Instances.Empty() {
		return model.RouteResult{Instances: info.Instances}, nil
	}
	loc := info.Source.Location

	for level := r.MinLevel; level <= r.MaxLevel && level < levelCount; level++ {
		filtered := baseFilter(info, nil, func(inst *model.Instance) bool {
			return sameAtLevel(loc, inst.Location, level)
		})
		if !filtered.Empty() {
			return model.RouteResult{Instances: filtered}, nil
		}
	}
	// Beyond max level: no locality constraint, fall back to whatever
	// base health/CB filtering allows.
	return model.RouteResult{Instances: baseFilter(info, nil, nil)}, nil
}

// sameAtLevel reports whether b matches a's locality tuple up to and
// including level (coarser levels subsume finer ones).
func sameAtLevel(a, b model.Location, level NearbyLevel) bool {
	if level >= LevelRegion {
		return a.Region == b.Region
	}
	if level >= LevelZone {
		return a.Region == b.Region && a.Zone == b.Zone
	}
	return a.Region == b.Region && a.Zone == b.Zone && a.Campus == b.Campus
}
