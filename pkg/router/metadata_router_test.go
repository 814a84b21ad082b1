package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

func withMetadata(id string, md map[string]string) *model.Instance {
	inst := model.NewInstance(id, "127.0.0.1", 8080, 100)
	inst.Healthy = true
	inst.Metadata = md
	return inst
}

func TestMetadataRouterFiltersOnCriteria(t *testing.T) {
	r := NewMetadataRouter()
	instances := []*model.Instance{
		withMetadata("a", map[string]string{"env": "prod", "az": "1"}),
		withMetadata("b", map[string]string{"env": "staging"}),
	}
	info := &model.RouteInfo{
		Instances: model.NewInstancesSet(nil, instances),
		Metadata:  &model.MetadataRouterParam{Criteria: map[string]string{"env": "prod"}},
	}

	result, err := r.Route(info)
	assert.NoError(t, err)
	if assert.Len(t, result.Instances.Instances, 1) {
		assert.Equal(t, "a", result.Instances.Instances[0].ID)
	}
}

func TestMetadataRouterEmptyCriteriaMatchesEverything(t *testing.T) {
	r := NewMetadataRouter()
	instances := []*model.Instance{withMetadata("a", nil), withMetadata("b", nil)}
	info := &model.RouteInfo{
		Instances: model.NewInstancesSet(nil, instances),
		Metadata:  &model.MetadataRouterParam{Failover: model.FailoverAll},
	}

	result, err := r.Route(info)
	assert.NoError(t, err)
	assert.Len(t, result.Instances.Instances, 2)
}

func TestMetadataRouterNoMatchFailoverNoneFails(t *testing.T) {
	r := NewMetadataRouter()
	instances := []*model.Instance{withMetadata("a", map[string]string{"env": "staging"})}
	info := &model.RouteInfo{
		Instances: model.NewInstancesSet(nil, instances),
		Metadata:  &model.MetadataRouterParam{Criteria: map[string]string{"env": "prod"}},
	}

	result, err := r.Route(info)
	assert.NoError(t, err)
	assert.Empty(t, result.Instances.Instances)
}

func TestMetadataRouterNoMatchFailoverAllKeepsEverything(t *testing.T) {
	r := NewMetadataRouter()
	instances := []*model.Instance{
		withMetadata("a", map[string]string{"env": "staging"}),
		withMetadata("b", map[string]string{"env": "dev"}),
	}
	info := &model.RouteInfo{
		Instances: model.NewInstancesSet(nil, instances),
		Metadata:  &model.MetadataRouterParam{Criteria: map[string]string{"env": "prod"}, Failover: model.FailoverAll},
	}

	result, err := r.Route(info)
	assert.NoError(t, err)
	assert.Len(t, result.Instances.Instances, 2)
}

func TestMetadataRouterNoMatchFailoverNotKeyKeepsOnlyKeylessInstances(t *testing.T) {
	r := NewMetadataRouter()
	instances := []*model.Instance{
		withMetadata("has-key", map[string]string{"env": "staging"}),
		withMetadata("no-key", map[string]string{"az": "1"}),
	}
	info := &model.RouteInfo{
		Instances: model.NewInstancesSet(nil, instances),
		Metadata:  &model.MetadataRouterParam{Criteria: map[string]string{"env": "prod"}, Failover: model.FailoverNotKey},
	}

	result, err := r.Route(info)
	assert.NoError(t, err)
	if assert.Len(t, result.Instances.Instances, 1) {
		assert.Equal(t, "no-key", result.Instances.Instances[0].ID)
	}
}
