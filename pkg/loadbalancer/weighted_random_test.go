package loadbalancer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

func TestWeightedRandomChooseSkipsZeroWeightInstance(t *testing.T) {
	heavy := model.NewInstance("heavy", "10.0.0.1", 80, 1000)
	heavy.Healthy = true
	zero := model.NewInstance("zero", "10.0.0.2", 80, 0)
	zero.Healthy = true

	set := model.NewInstancesSet(nil, []*model.Instance{heavy, zero})
	lb := NewWeightedRandom()

	for i := 0; i < 20; i++ {
		inst, err := lb.Choose(set, Criteria{}, nil)
		assert.NoError(t, err)
		assert.Equal(t, "heavy", inst.ID)
	}
}

func TestWeightedRandomChooseEmptySetReturnsNotFound(t *testing.T) {
	lb := NewWeightedRandom()
	set := model.NewInstancesSet(nil, nil)
	_, err := lb.Choose(set, Criteria{}, nil)
	assert.Error(t, err)
}
