package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polarismesh/polaris-go-sub002/pkg/cache"
	"github.com/polarismesh/polaris-go-sub002/pkg/circuitbreaker"
	"github.com/polarismesh/polaris-go-sub002/pkg/clock"
	"github.com/polarismesh/polaris-go-sub002/pkg/config"
	"github.com/polarismesh/polaris-go-sub002/pkg/connector"
	"github.com/polarismesh/polaris-go-sub002/pkg/healthcheck"
	"github.com/polarismesh/polaris-go-sub002/pkg/loadbalancer"
	"github.com/polarismesh/polaris-go-sub002/pkg/metrics"
	"github.com/polarismesh/polaris-go-sub002/pkg/model"
	"github.com/polarismesh/polaris-go-sub002/pkg/ratelimit"
	"github.com/polarismesh/polaris-go-sub002/pkg/router"
)

// Context is one SDK context: the reactor-owned clock,
// scheduler and connector, the cache they feed, and the stateless
// router/load-balancer/circuit-breaker/rate-limit components the
// facade dispatches into. One process may hold several Contexts, each
// fully independent.
type Context struct {
	cfg *config.Config

	clock     *clock.Clock
	scheduler *clock.Scheduler
	cache     *cache.Cache
	connector *connector.Connector

	routerChain *router.Chain
	cbChain     *circuitbreaker.Chain
	subsetChain *circuitbreaker.SubsetChain
	cbPluginIdx map[string]int

	healthDispatcher *healthcheck.Dispatcher
	rateLimit        *ratelimit.Manager

	metrics *metrics.Registry
	stats   *statRegistry

	defaultLBPolicy string

	stop chan struct{}
}

// New builds a Context from cfg and wires every component, installing
// the default load-balancer registry before any policy lookup can run.
func New(cfg *config.Config, transport connector.Transport) (*Context, error) {
	loadbalancer.RegisterDefaults()

	clk := clock.New()
	sched := clock.NewScheduler(clk)

	ctx := &Context{
		cfg:             cfg,
		clock:           clk,
		scheduler:       sched,
		metrics:         metrics.New(),
		stats:           newStatRegistry(),
		defaultLBPolicy: cfg.Consumer.LoadBalancer.Type,
		stop:            make(chan struct{}),
	}
	if ctx.defaultLBPolicy == "" {
		ctx.defaultLBPolicy = "weightedRandom"
	}

	ctx.cbChain, ctx.cbPluginIdx = buildCBChain(cfg.Consumer.CircuitBreaker)
	ctx.subsetChain = circuitbreaker.NewSubsetChain(cbPlugins(cfg.Consumer.CircuitBreaker, ctx.cbPluginIdx)...)

	conn := connector.New(transport, nil, connector.Config{
		Addresses:            cfg.Global.ServerConnector.Addresses,
		ConnectTimeout:       millis(cfg.Global.ServerConnector.ConnectTimeoutMs, time.Second),
		MessageTimeout:       millis(cfg.Global.ServerConnector.MessageTimeoutMs, 1500*time.Millisecond),
		ServerSwitchInterval: millis(cfg.Global.ServerConnector.ServerSwitchIntervalMs, 10*time.Minute),
		DefaultSyncInterval:  millis(cfg.Consumer.LocalCache.ServiceRefreshIntervalMs, 2*time.Second),
	})
	ctx.connector = conn

	c := cache.New(clk, conn)
	ctx.cache = c
	conn.SetUpdater(c)

	c.AddPreUpdateHook(func(key model.ServiceKey, kind model.DataKind, prev, next *model.ServiceData) {
		if kind != model.KindInstances || prev == nil || next == nil {
			return
		}
		pruneVanishedInstances(ctx.cache.Service(key).Chain, prev.Instances, next.Instances)
	})

	ctx.routerChain = buildRouterChain(cfg.Consumer.ServiceRouter.Chain, func(key model.ServiceKey) *model.ChainData {
		return ctx.cache.Service(key).SubsetChain
	})

	ctx.rateLimit = ratelimit.NewManager(24 * 60 * 60 * 1000)

	hcChain := buildHealthCheckChain(cfg.Consumer.HealthCheck)
	ctx.healthDispatcher = healthcheck.NewDispatcher(hcChain, ctx.cbPluginIdx["errorCount"], defaultErrorCountConfig().RequestCountAfterHalfOpen)

	return ctx, nil
}

func millis(ms int64, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// pruneVanishedInstances drops CB state for instances no longer present
// in the latest snapshot, so the per-instance table doesn't grow
// unbounded across churn ( reclamation story for
// ServiceData doesn't cover side-band CB state, which this closes).
func pruneVanishedInstances(chain *model.ChainData, prev, next []*model.Instance) {
	if chain == nil {
		return
	}
	present := make(map[string]struct{}, len(next))
	for _, inst := range next {
		present[inst.ID] = struct{}{}
	}
	for _, inst := range prev {
		if _, ok := present[inst.ID]; !ok {
			chain.Forget(inst.ID)
		}
	}
}

// Run drives the single reactor goroutine for this Context until Stop
// is called: the connector stream, the scheduler heap, and the
// periodic background sweeps.
func (c *Context) Run(ctx context.Context) {
	go c.scheduler.Run()
	go c.connector.Run(ctx)
	c.scheduleBackgroundTasks(ctx)

	<-c.stop
}

func (c *Context) scheduleBackgroundTasks(ctx context.Context) {
	const (
		cacheGCIntervalMs  = 60_000
		cbTimingIntervalMs = 500
		rlGCIntervalMs     = 60_000
	)
	hcIntervalMs := c.cfg.Consumer.HealthCheck.IntervalMs
	if hcIntervalMs <= 0 {
		hcIntervalMs = 10_000
	}

	var gcTick, cbTick, rlTick, hcTick func()
	gcTick = func() {
		c.cache.CheckReclaim(c.clock.NowMs())
		c.cache.GCExpired(c.clock.NowMs(), c.cfg.Consumer.LocalCache.ServiceExpireTimeMs)
		c.scheduler.Schedule(func() { gcTick() }, cacheGCIntervalMs)
	}
	cbTick = func() {
		for _, key := range c.cache.ListKeys() {
			svc := c.cache.Service(key)
			c.cbChain.CheckTiming(svc.Chain, c.clock.NowMs())
			c.subsetChain.CheckTiming(svc.SubsetChain, c.clock.NowMs())
		}
		c.scheduler.Schedule(func() { cbTick() }, cbTimingIntervalMs)
	}
	rlTick = func() {
		c.rateLimit.GCExpired(c.clock.NowMs(), nil)
		c.scheduler.Schedule(func() { rlTick() }, rlGCIntervalMs)
	}
	hcTick = func() {
		c.runHealthChecks(ctx)
		c.scheduler.Schedule(func() { hcTick() }, hcIntervalMs)
	}

	c.scheduler.Schedule(func() { gcTick() }, cacheGCIntervalMs)
	c.scheduler.Schedule(func() { cbTick() }, cbTimingIntervalMs)
	c.scheduler.Schedule(func() { rlTick() }, rlGCIntervalMs)
	c.scheduler.Schedule(func() { hcTick() }, hcIntervalMs)
}

// runHealthChecks probes every cached service's current instance set
// once, feeding the result to that service's circuit-breaker chain
//. A service still NotInit/NotFound is skipped.
func (c *Context) runHealthChecks(ctx context.Context) {
	for _, key := range c.cache.ListKeys() {
		sd, status := c.cache.Get(key, model.KindInstances)
		if status != model.StatusSyncing && status != model.StatusLoadedFromDisk {
			if sd != nil {
				sd.Release()
			}
			continue
		}
		targets := make([]healthcheck.Target, 0, len(sd.Instances))
		for _, inst := range sd.Instances {
			targets = append(targets, healthcheck.Target{
				InstanceID: inst.ID,
				Address:    fmt.Sprintf("%s:%d", inst.Host, inst.Port),
				Isolated:   inst.Isolate,
			})
		}
		c.healthDispatcher.Run(ctx, c.cache.Service(key).Chain, targets)
		sd.Release()
	}
}

// Stop signals the reactor to drain and joins it.
func (c *Context) Stop() {
	close(c.stop)
	c.connector.Stop()
	c.scheduler.Stop()
}

func buildCBChain(cfg config.CircuitBreakerConfig) (*circuitbreaker.Chain, map[string]int) {
	idx := map[string]int{}
	for i, name := range cfg.Chain {
		idx[name] = i
	}
	return circuitbreaker.NewChain(cbPlugins(cfg, idx)...), idx
}

func cbPlugins(cfg config.CircuitBreakerConfig, idx map[string]int) []circuitbreaker.Plugin {
	var plugins []circuitbreaker.Plugin
	for _, name := range cfg.Chain {
		switch name {
		case "errorCount":
			plugins = append(plugins, circuitbreaker.NewErrorCount(idx[name], defaultErrorCountConfig()))
		case "errorRate":
			plugins = append(plugins, circuitbreaker.NewErrorRate(idx[name], defaultErrorRateConfig()))
		default:
			logrus.Warnf("facade: unknown circuit breaker plugin %q, skipping", name)
		}
	}
	return plugins
}

func defaultErrorCountConfig() circuitbreaker.ErrorCountConfig {
	return circuitbreaker.ErrorCountConfig{
		ContinuousErrorThreshold: 10,
		SleepWindowMs:            30_000,
		RequestCountAfterHalfOpen: 3,
		SuccessCountToClose:       2,
		MetricExpiredMs:           60_000,
		AutoHalfOpenEnable:        true,
	}
}

func defaultErrorRateConfig() circuitbreaker.ErrorRateConfig {
	return circuitbreaker.ErrorRateConfig{
		WindowMs:               60_000,
		NumBuckets:             12,
		RequestVolumeThreshold: 10,
		ErrorRateThreshold:     0.5,
		PreservedRateThreshold: 0.3,
		SleepWindowMs:          30_000,
		RequestCountAfterHalfOpen: 3,
		SuccessCountToClose:       2,
		MetricExpiredMs:           60_000,
		AutoHalfOpenEnable:        true,
	}
}

func buildRouterChain(names []string, subsetCB func(model.ServiceKey) *model.ChainData) *router.Chain {
	var stages []router.Stage
	for _, name := range names {
		switch name {
		case "ruleRouter":
			stages = append(stages, router.NewRuleRouter(subsetCB))
		case "nearbyRouter":
			stages = append(stages, router.NewNearbyRouter(router.LevelCampus, router.LevelRegion))
		case "setDivisionRouter":
			stages = append(stages, router.NewSetDivisionRouter())
		case "canaryRouter":
			stages = append(stages, router.NewCanaryRouter())
		case "metadataRouter":
			stages = append(stages, router.NewMetadataRouter())
		default:
			logrus.Warnf("facade: unknown router stage %q, skipping", name)
		}
	}
	return router.NewChain(stages...)
}

func buildHealthCheckChain(cfg config.HealthCheckConfig) *healthcheck.Chain {
	when := healthcheck.ParseWhen(cfg.When)
	timeout := millis(cfg.IntervalMs/2, 2*time.Second)
	var probers []healthcheck.Prober
	for _, name := range cfg.Chain {
		switch name {
		case "tcp":
			probers = append(probers, &healthcheck.TCPProber{})
		case "http":
			probers = append(probers, &healthcheck.HTTPProber{})
		case "udp":
			probers = append(probers, &healthcheck.UDPProber{})
		default:
			logrus.Warnf("facade: unknown health checker %q, skipping", name)
		}
	}
	if len(probers) == 0 {
		probers = append(probers, &healthcheck.TCPProber{})
	}
	return healthcheck.NewChain(when, timeout, probers...)
}

func (c *Context) lbPolicy(name string) (loadbalancer.Policy, error) {
	if name == "" {
		name = c.defaultLBPolicy
	}
	return loadbalancer.Get(name)
}

func serviceDesc(key model.ServiceKey) string {
	return fmt.Sprintf("%s#%s", key.Namespace, key.Name)
}
