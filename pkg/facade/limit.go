package facade

import (
	"strconv"
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/api"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
	"github.com/polarismesh/polaris-go-sub002/pkg/ratelimit"
)

// Limit is the rate-limit facade: GetQuota and
// UpdateCallResult, backed by pkg/ratelimit's Manager.
type Limit struct {
	ctx *Context
}

func (c *Context) Limit() *Limit { return &Limit{ctx: c} }

func (l *Limit) GetQuota(req GetQuotaRequest) (QuotaResultInfo, error) {
	start := time.Now()
	info, err := l.getQuota(req)
	l.record(req.Service, err, start)
	return info, err
}

func (l *Limit) getQuota(req GetQuotaRequest) (QuotaResultInfo, error) {
	if !req.Service.Valid() {
		return QuotaResultInfo{}, api.NewError(api.InvalidArgument, "service key must have namespace and name")
	}
	amount := req.AcquireAmount
	if amount <= 0 {
		amount = 1
	}

	result, ok := l.ctx.rateLimit.GetQuota(ratelimit.Request{
		Service: req.Service, Labels: req.Labels, AcquireAmount: amount,
	}, l.ctx.clock.NowMs())
	if !ok {
		return QuotaResultInfo{}, api.NewError(api.RouteRuleNotMatch, "no rate limit rule matches "+req.Service.String())
	}

	l.ctx.metrics.RateLimitResult.WithLabelValues(serviceDesc(req.Service), strconv.FormatBool(result.Allowed)).Inc()

	info := QuotaResultInfo{Left: result.Left, All: result.All, DurationMs: result.DurationMs, IsDegrade: result.DegradeToLocal}
	if !result.Allowed {
		return info, api.NewError(api.RateLimit, "quota exhausted for "+req.Service.String())
	}
	return info, nil
}

// UpdateCallResult feeds the climb adjuster for the rule a previous
// GetQuota matched; a rule with no Climb config is a no-op.
func (l *Limit) UpdateCallResult(req UpdateCallResultRequest) error {
	if !req.Service.Valid() {
		return api.NewError(api.InvalidArgument, "service key must have namespace and name")
	}
	l.ctx.rateLimit.ReportCallResult(req.Service, req.Labels, req.RuleID, req.Success, req.DelayMs, l.ctx.clock.NowMs())
	return nil
}

func (l *Limit) record(service model.ServiceKey, err error, start time.Time) {
	latency := time.Since(start)
	l.ctx.stats.Record("GetQuota", api.CodeOf(err), latency)
	l.ctx.metrics.APICallTotal.WithLabelValues("GetQuota", api.CodeOf(err).String()).Inc()
	l.ctx.metrics.APICallLatency.WithLabelValues("GetQuota").Observe(latency.Seconds())
}
