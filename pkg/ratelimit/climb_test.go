package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

func TestClimbStepsDownOnErrors(t *testing.T) {
	c := NewClimb()
	w := model.NewRateLimitWindow(model.WindowKey{RuleID: "r1"}, model.LimitRule{
		Amounts: []model.AmountRule{{MaxAmount: 100, Duration: 1000}},
	}, 0)

	cfg := model.ClimbConfig{
		MinAmount: 10, MaxAmount: 100, SamplePeriodMs: 10000,
		ColdWaterErrorRate: 0.1, ColdWaterSlowRate: 0.5,
		ClimbUpStep: 0.2, ClimbDownStep: 0.5,
	}

	for i := 0; i < 5; i++ {
		c.Update(w, cfg, false, 0, int64(i))
	}
	assert.Less(t, w.ClimbMax(), int64(100))
}

func TestClimbStepsUpOnSuccess(t *testing.T) {
	c := NewClimb()
	w := model.NewRateLimitWindow(model.WindowKey{RuleID: "r1"}, model.LimitRule{
		Amounts: []model.AmountRule{{MaxAmount: 50, Duration: 1000}},
	}, 0)
	w.SetClimbMax(20)

	cfg := model.ClimbConfig{
		MinAmount: 10, MaxAmount: 100, SamplePeriodMs: 10000,
		ColdWaterErrorRate: 0.5, ColdWaterSlowRate: 0.5,
		ClimbUpStep: 0.5, ClimbDownStep: 0.5,
	}

	c.Update(w, cfg, true, 0, 0)
	assert.Greater(t, w.ClimbMax(), int64(20))
}
