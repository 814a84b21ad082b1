package loadbalancer

import (
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/api"
	"github.com/polarismesh/polaris-go-sub002/pkg/plugin"
)

// RegisterDefaults registers every built-in policy under the shared
// plugin registry.
func RegisterDefaults() {
	plugin.RegisterPlugin("weightedRandom", plugin.KindLoadBalancer, func() (interface{}, error) {
		return NewWeightedRandom(), nil
	})
	plugin.RegisterPlugin("ringHash", plugin.KindLoadBalancer, func() (interface{}, error) {
		return NewRingHash(10240), nil
	})
	plugin.RegisterPlugin("maglev", plugin.KindLoadBalancer, func() (interface{}, error) {
		return NewMaglev(0), nil
	})
	plugin.RegisterPlugin("l5CompatHash", plugin.KindLoadBalancer, func() (interface{}, error) {
		return NewL5CompatHash(), nil
	})
	plugin.RegisterPlugin("simpleHash", plugin.KindLoadBalancer, func() (interface{}, error) {
		return NewSimpleHash(), nil
	})
	plugin.RegisterPlugin("localityAware", plugin.KindLoadBalancer, func() (interface{}, error) {
		return NewLocalityAware(func() int64 { return time.Now().UnixMilli() }), nil
	})
}

// Get looks up a registered policy by name, wrapping the registry's
// not-found error in the api return-code taxonomy.
func Get(name string) (Policy, error) {
	v, err := plugin.GetPlugin(name, plugin.KindLoadBalancer)
	if err != nil {
		return nil, err
	}
	p, ok := v.(Policy)
	if !ok {
		return nil, api.NewError(api.PluginError, "load balancer plugin "+name+" does not implement Policy")
	}
	return p, nil
}
