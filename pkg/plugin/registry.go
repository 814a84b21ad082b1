// Package plugin implements the global (name, kind) -> factory registry
// that replaces a typical client-language's "deep inheritance of plugins"
// pattern: LoadBalancer, HealthChecker, CircuitBreaker,
// ServiceRouter and WeightAdjuster are plain interfaces; the registry
// is the only shared state between implementations.
package plugin

import (
	"fmt"
	"sync"

	"github.com/polarismesh/polaris-go-sub002/pkg/api"
)

// Kind identifies a plugin family.
type Kind string

const (
	KindLoadBalancer   Kind = "loadBalancer"
	KindHealthChecker  Kind = "healthChecker"
	KindCircuitBreaker Kind = "circuitBreaker"
	KindServiceRouter  Kind = "serviceRouter"
	KindWeightAdjuster Kind = "weightAdjuster"
	KindServerConnector Kind = "serverConnector"
)

type Factory func() (interface{}, error)

type key struct {
	name string
	kind Kind
}

type Registry struct {
	mu        sync.RWMutex
	factories map[key]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[key]Factory{}}
}

// Register adds name+kind to the registry, returning api.ExistedResource
// if that pair is already taken.
func (r *Registry) Register(name string, kind Kind, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{name, kind}
	if _, ok := r.factories[k]; ok {
		return api.NewError(api.ExistedResource, fmt.Sprintf("plugin %s/%s already registered", kind, name))
	}
	r.factories[k] = factory
	return nil
}

// Get instantiates the plugin registered under name+kind.
func (r *Registry) Get(name string, kind Kind) (interface{}, error) {
	r.mu.RLock()
	factory, ok := r.factories[key{name, kind}]
	r.mu.RUnlock()
	if !ok {
		return nil, api.NewError(api.ResourceNotFound, fmt.Sprintf("no plugin registered for %s/%s", kind, name))
	}
	return factory()
}

// Default is the process-wide registry. No plugin package registers
// itself at import time; the built-in load balancers are added by
// loadbalancer.RegisterDefaults, which facade.New calls.
var Default = NewRegistry()

func RegisterPlugin(name string, kind Kind, factory Factory) error {
	return Default.Register(name, kind, factory)
}

func GetPlugin(name string, kind Kind) (interface{}, error) {
	return Default.Get(name, kind)
}
