package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

func twoTierRule() model.RateLimitRule {
	return model.RateLimitRule{
		Rules: []model.LimitRule{
			{
				ID: "r1",
				Amounts: []model.AmountRule{
					{MaxAmount: 1, Duration: 1000},   // tight: exhausted after one request
					{MaxAmount: 100, Duration: 60000}, // loose: plenty of headroom
				},
			},
		},
	}
}

func TestGetQuotaMultiBucketAllOrNothing(t *testing.T) {
	m := NewManager(0)
	m.SetRule(model.ServiceKey{Name: "svc"}, twoTierRule())

	res, ok := m.GetQuota(Request{Service: model.ServiceKey{Name: "svc"}, AcquireAmount: 1}, 0)
	assert.True(t, ok)
	assert.True(t, res.Allowed, "first request exhausts the tight bucket but is itself admitted")

	// The tight bucket is now at 0; the loose bucket still has 99 left.
	// A second request must be Limited by the tight bucket, and the loose
	// bucket must NOT lose quota over a request that was rejected overall.
	res, ok = m.GetQuota(Request{Service: model.ServiceKey{Name: "svc"}, AcquireAmount: 1}, 0)
	assert.True(t, ok)
	assert.False(t, res.Allowed)

	key := model.WindowKey{Service: model.ServiceKey{Name: "svc"}, RuleID: "r1"}
	m.mu.Lock()
	w := m.windows[key]
	m.mu.Unlock()
	_, looseLeft, _, _ := w.Buckets[1].Peek(0, 0)
	assert.Equal(t, int64(99), looseLeft, "loose bucket should have committed only the first, admitted request")
	assert.Equal(t, int64(1), w.Buckets[1].Allowed)
}

func TestGetQuotaSingleBucketStillWorks(t *testing.T) {
	m := NewManager(0)
	m.SetRule(model.ServiceKey{Name: "svc"}, model.RateLimitRule{
		Rules: []model.LimitRule{{ID: "r1", Amounts: []model.AmountRule{{MaxAmount: 2, Duration: 1000}}}},
	})

	req := Request{Service: model.ServiceKey{Name: "svc"}, AcquireAmount: 1}
	res, _ := m.GetQuota(req, 0)
	assert.True(t, res.Allowed)
	res, _ = m.GetQuota(req, 0)
	assert.True(t, res.Allowed)
	res, _ = m.GetQuota(req, 0)
	assert.False(t, res.Allowed)
}
