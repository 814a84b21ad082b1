package facade

import (
	"context"
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/api"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// Provider is the registration-side facade: Register,
// Deregister, Heartbeat, each validated, retried on retryable return
// codes (every attempt goes to the connector's current address; attempts
// do not rotate endpoints), and recorded in the API-stat registry.
type Provider struct {
	ctx *Context
}

func (c *Context) Provider() *Provider { return &Provider{ctx: c} }

func (p *Provider) Register(ctx context.Context, req RegisterRequest) error {
	start := time.Now()
	err := p.call(req.Service, func() error {
		if !req.Service.Valid() {
			return api.NewError(api.InvalidArgument, "service key must have namespace and name")
		}
		if req.Instance == nil || req.Instance.Host == "" || req.Instance.Port == 0 {
			return api.NewError(api.InvalidArgument, "instance must have host and port")
		}
		if req.Instance.ID == "" {
			req.Instance.ID = model.GenerateID(req.Instance.Host, req.Instance.Port)
		}
		return p.ctx.connector.Register(ctx, req.Service, req.Instance)
	})
	p.record("Register", err, start)
	return err
}

func (p *Provider) Deregister(ctx context.Context, req DeregisterRequest) error {
	start := time.Now()
	err := p.call(req.Service, func() error {
		if !req.Service.Valid() {
			return api.NewError(api.InvalidArgument, "service key must have namespace and name")
		}
		if req.InstanceID == "" && (req.Host == "" || req.Port == 0) {
			return api.NewError(api.InvalidArgument, "deregister requires instance id or host+port")
		}
		inst := &model.Instance{ID: req.InstanceID, Host: req.Host, Port: req.Port}
		if inst.ID == "" {
			inst.ID = model.GenerateID(inst.Host, inst.Port)
		}
		return p.ctx.connector.Deregister(ctx, req.Service, inst)
	})
	p.record("Deregister", err, start)
	return err
}

func (p *Provider) Heartbeat(ctx context.Context, req HeartbeatRequest) error {
	start := time.Now()
	err := p.call(req.Service, func() error {
		if !req.Service.Valid() || req.InstanceID == "" {
			return api.NewError(api.InvalidArgument, "heartbeat requires service key and instance id")
		}
		return p.ctx.connector.Heartbeat(ctx, req.Service, req.InstanceID)
	})
	p.record("Heartbeat", err, start)
	return err
}

// call wraps op's error in the NetworkFailed taxonomy (everything the
// transport layer returns that isn't already an *api.Error is a
// transport-level failure), then retries per config.API.
func (p *Provider) call(service model.ServiceKey, op func() error) error {
	cfg := p.ctx.cfg.API
	return withRetry(cfg.MaxRetryTimes, cfg.RetryIntervalMs, func() error {
		err := op()
		if err == nil {
			return nil
		}
		if _, ok := err.(*api.Error); ok {
			return err
		}
		return api.Wrap(api.NetworkFailed, err, "provider call failed for "+service.String())
	})
}

func (p *Provider) record(kind string, err error, start time.Time) {
	latency := time.Since(start)
	p.ctx.stats.Record(kind, api.CodeOf(err), latency)
	p.ctx.metrics.APICallTotal.WithLabelValues(kind, api.CodeOf(err).String()).Inc()
	p.ctx.metrics.APICallLatency.WithLabelValues(kind).Observe(latency.Seconds())
}
