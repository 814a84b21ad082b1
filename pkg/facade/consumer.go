package facade

import (
	"context"
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/api"
	"github.com/polarismesh/polaris-go-sub002/pkg/circuitbreaker"
	"github.com/polarismesh/polaris-go-sub002/pkg/loadbalancer"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// maxRedirectDepth bounds a rule-router redirect chain: a redirect
// must not be followed indefinitely.
const maxRedirectDepth = 5

// Consumer is the discovery-side facade: GetOneInstance,
// GetInstances, UpdateServiceCallResult.
type Consumer struct {
	ctx *Context
}

func (c *Context) Consumer() *Consumer { return &Consumer{ctx: c} }

func (cons *Consumer) GetOneInstance(ctx context.Context, req GetOneInstanceRequest) (*model.Instance, error) {
	start := time.Now()
	inst, err := cons.getOneInstance(ctx, req, 0)
	cons.record("GetOneInstance", err, start)
	return inst, err
}

func (cons *Consumer) getOneInstance(ctx context.Context, req GetOneInstanceRequest, depth int) (*model.Instance, error) {
	if depth > maxRedirectDepth {
		return nil, api.NewError(api.InvalidRouteRule, "redirect chain too deep for "+req.Service.String())
	}

	result, err := cons.route(ctx, routeRequest{
		Service:              req.Service,
		Timeout:              req.Timeout,
		Source:               req.Source,
		IncludeUnhealthy:     req.IncludeUnhealthy,
		IncludeCircuitBroken: req.IncludeCircuitBroken,
		EnabledRouters:       req.EnabledRouters,
		Metadata:             req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	defer result.release()

	if result.redirect != nil {
		next := req
		next.Service = *result.redirect
		return cons.getOneInstance(ctx, next, depth+1)
	}

	if result.set.Empty() {
		return nil, api.NewError(api.InstanceNotFound, "no instance available for "+req.Service.String())
	}

	policy, err := cons.ctx.lbPolicy(req.LBPolicy)
	if err != nil {
		return nil, api.Wrap(api.InvalidConfig, err, "load balancer policy "+req.LBPolicy)
	}

	inst, err := policy.Choose(result.set, loadbalancer.Criteria{
		HashKey:        req.HashKey,
		HashString:     req.HashString,
		ReplicateIndex: req.ReplicateIndex,
	}, result.cb)
	if err != nil {
		return nil, err
	}

	cons.ctx.metrics.LoadBalancerPicks.WithLabelValues(serviceDesc(req.Service), policy.Name(), inst.ID).Inc()
	return inst, nil
}

func (cons *Consumer) GetInstances(ctx context.Context, req GetInstancesRequest) (*model.InstancesSet, error) {
	start := time.Now()
	set, err := cons.getInstances(ctx, req, 0)
	cons.record("GetInstances", err, start)
	return set, err
}

func (cons *Consumer) getInstances(ctx context.Context, req GetInstancesRequest, depth int) (*model.InstancesSet, error) {
	if depth > maxRedirectDepth {
		return nil, api.NewError(api.InvalidRouteRule, "redirect chain too deep for "+req.Service.String())
	}

	result, err := cons.route(ctx, routeRequest{
		Service:              req.Service,
		Timeout:              req.Timeout,
		Source:               req.Source,
		IncludeUnhealthy:     req.IncludeUnhealthy,
		IncludeCircuitBroken: req.IncludeCircuitBroken,
		EnabledRouters:       req.EnabledRouters,
		Metadata:             req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	defer result.release()

	if result.redirect != nil {
		next := req
		next.Service = *result.redirect
		return cons.getInstances(ctx, next, depth+1)
	}
	if result.set.Empty() {
		return nil, api.NewError(api.InstanceNotFound, "no instance available for "+req.Service.String())
	}
	return result.set, nil
}

// UpdateServiceCallResult reports one call outcome to the per-instance
// circuit breaker, and to the per-subset breaker when Subset/RuleID are
// set.
func (cons *Consumer) UpdateServiceCallResult(req UpdateServiceCallResultRequest) error {
	start := time.Now()
	if !req.Service.Valid() || req.InstanceID == "" {
		err := api.NewError(api.InvalidArgument, "call result requires service key and instance id")
		cons.record("UpdateServiceCallResult", err, start)
		return err
	}
	svc := cons.ctx.cache.Service(req.Service)
	nowMs := cons.ctx.clock.NowMs()

	cons.ctx.cbChain.UpdateServiceCallResult(svc.Chain, circuitbreaker.CallResult{
		InstanceID: req.InstanceID, Success: req.Success, DelayMs: req.DelayMs,
	}, nowMs)

	if len(req.Subset) > 0 || req.RuleID != "" {
		cons.ctx.subsetChain.Report(svc.SubsetChain, model.InstanceGauge{
			Service: req.Service, InstanceID: req.InstanceID, Subset: req.Subset, RuleID: req.RuleID,
			Success: req.Success, DelayMs: req.DelayMs,
		}, nowMs)
	}

	value, _, _ := svc.Chain.StateFor(req.InstanceID).Snapshot()
	cons.ctx.metrics.CircuitBreakerState.WithLabelValues(serviceDesc(req.Service), req.InstanceID).Set(float64(value))
	cons.record("UpdateServiceCallResult", nil, start)
	return nil
}

// routeResult bundles what the router chain produced plus the acquired
// snapshot it came from, so every caller releases exactly once.
type routeResult struct {
	set      *model.InstancesSet
	redirect *model.ServiceKey
	cb       *model.ChainData
	sd       *model.ServiceData
}

func (r *routeResult) release() {
	if r.sd != nil {
		r.sd.Release()
	}
}

type routeRequest struct {
	Service              model.ServiceKey
	Timeout              time.Duration
	Source               *model.ServiceInfo
	IncludeUnhealthy     bool
	IncludeCircuitBroken bool
	EnabledRouters       map[string]bool
	Metadata             map[string]string
}

func (cons *Consumer) route(ctx context.Context, req routeRequest) (*routeResult, error) {
	if !req.Service.Valid() {
		return nil, api.NewError(api.InvalidArgument, "service key must have namespace and name")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Duration(cons.ctx.cfg.API.TimeoutMs) * time.Millisecond
	}

	sd, err := cons.waitForData(req.Service, timeout)
	if err != nil {
		return nil, err
	}

	svc := cons.ctx.cache.Service(req.Service)
	instSet := model.NewInstancesSet(sd, sd.Instances)

	info := &model.RouteInfo{
		DestinationKey:       req.Service,
		Source:               req.Source,
		Instances:            instSet,
		IncludeUnhealthy:     req.IncludeUnhealthy,
		IncludeCircuitBroken: req.IncludeCircuitBroken,
		EnabledRouters:       req.EnabledRouters,
		// Labels doubles as the canary router's tag source (the
		// "canary" metadata key); callers that only want
		// metadata-router filtering leave canary absent.
		Labels: req.Metadata,
	}
	if len(req.Metadata) > 0 {
		info.Metadata = &model.MetadataRouterParam{Criteria: req.Metadata}
	}

	result, _, err := cons.ctx.routerChain.Run(info)
	if err != nil {
		sd.Release()
		return nil, err
	}
	if result.Redirect != nil {
		sd.Release()
		return &routeResult{redirect: result.Redirect}, nil
	}
	set := result.Instances
	if !req.IncludeCircuitBroken && set != nil {
		set = set.Filter(func(inst *model.Instance) bool { return !svc.Chain.IsOpen(inst.ID) })
	}
	return &routeResult{set: set, cb: svc.Chain, sd: sd}, nil
}

// waitForData returns the acquired ServiceData for key, subscribing and
// waiting up to timeout on first access.
func (cons *Consumer) waitForData(key model.ServiceKey, timeout time.Duration) (*model.ServiceData, error) {
	sd, status := cons.ctx.cache.Get(key, model.KindInstances)
	if status == model.StatusNotInit {
		if sd != nil {
			sd.Release()
		}
		n := cons.ctx.cache.LoadWithNotify(key, model.KindInstances)
		if _, ok := n.Wait(timeout); !ok {
			return nil, api.NewError(api.Timeout, "timed out waiting for "+key.String())
		}
		sd, status = cons.ctx.cache.Get(key, model.KindInstances)
	}
	if status == model.StatusNotFound || sd == nil {
		if sd != nil {
			sd.Release()
		}
		return nil, api.NewError(api.ServiceNotFound, "service not found: "+key.String())
	}
	return sd, nil
}

func (cons *Consumer) record(kind string, err error, start time.Time) {
	latency := time.Since(start)
	cons.ctx.stats.Record(kind, api.CodeOf(err), latency)
	cons.ctx.metrics.APICallTotal.WithLabelValues(kind, api.CodeOf(err).String()).Inc()
	cons.ctx.metrics.APICallLatency.WithLabelValues(kind).Observe(latency.Seconds())
}
