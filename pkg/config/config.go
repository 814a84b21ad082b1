// Package config parses the nested YAML configuration tree of
// the component config into typed structs, one per component, mirroring the
// teacher's yaml.Marshal/Unmarshal round-trip for its load-balancer
// params file.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Global   Global   `yaml:"global"`
	Consumer Consumer `yaml:"consumer"`
	RateLimiter RateLimiter `yaml:"rateLimiter"`
	API      API      `yaml:"api"`
	Log      Log      `yaml:"log"`
}

type Global struct {
	ServerConnector ServerConnector `yaml:"serverConnector"`
}

type ServerConnector struct {
	Addresses             []string `yaml:"addresses"`
	Protocol              string   `yaml:"protocol"`
	ConnectTimeoutMs      int64    `yaml:"connectTimeout"`
	MessageTimeoutMs      int64    `yaml:"messageTimeout"`
	ServerSwitchIntervalMs int64   `yaml:"serverSwitchInterval"`
}

type Consumer struct {
	LocalCache     LocalCache                `yaml:"localCache"`
	ServiceRouter  ServiceRouterConfig       `yaml:"serviceRouter"`
	LoadBalancer   LoadBalancerConfig        `yaml:"loadBalancer"`
	CircuitBreaker CircuitBreakerConfig      `yaml:"circuitBreaker"`
	HealthCheck    HealthCheckConfig         `yaml:"healthCheck"`
	WeightAdjuster WeightAdjusterConfig      `yaml:"weightAdjuster"`
	Services       []ServiceOverride         `yaml:"service"`
}

type LocalCache struct {
	PersistDir              string `yaml:"persistDir"`
	ServiceExpireTimeMs      int64  `yaml:"serviceExpireTime"`
	ServiceRefreshIntervalMs int64  `yaml:"serviceRefreshInterval"`
}

type ServiceRouterConfig struct {
	Chain  []string          `yaml:"chain"`
	Plugin map[string]PluginConfig `yaml:"plugin"`
}

type LoadBalancerConfig struct {
	Type   string                   `yaml:"type"`
	Plugin map[string]PluginConfig `yaml:"plugin"`
}

type CircuitBreakerConfig struct {
	Enable      bool                     `yaml:"enable"`
	CheckPeriodMs int64                  `yaml:"checkPeriod"`
	Chain       []string                `yaml:"chain"`
	Plugin      map[string]PluginConfig `yaml:"plugin"`
}

type HealthCheckConfig struct {
	When     string                  `yaml:"when"`
	IntervalMs int64                 `yaml:"interval"`
	Chain    []string                `yaml:"chain"`
	Plugin   map[string]PluginConfig `yaml:"plugin"`
}

type WeightAdjusterConfig struct {
	Name string `yaml:"name"`
}

type ServiceOverride struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
	// Overridable fields mirror the consumer-level defaults; empty means "inherit".
	ServiceRefreshIntervalMs int64 `yaml:"serviceRefreshInterval"`
}

type RateLimiter struct {
	RateLimitCluster string `yaml:"rateLimitCluster"`
	Mode             string `yaml:"mode"`
}

type API struct {
	TimeoutMs     int64    `yaml:"timeout"`
	MaxRetryTimes int      `yaml:"maxRetryTimes"`
	RetryIntervalMs int64  `yaml:"retryInterval"`
	BindIf        string   `yaml:"bindIf"`
	BindIP        string   `yaml:"bindIP"`
	Location      Location `yaml:"location"`
}

type Location struct {
	Region string `yaml:"region"`
	Zone   string `yaml:"zone"`
	Campus string `yaml:"campus"`
}

type Log struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type PluginConfig map[string]interface{}

// Default returns a Config with the defaults documented in the component config
// (sync_interval ~2s, etc.). FromString starts from these defaults and
// applies the parsed document over them.
func Default() *Config {
	return &Config{
		Global: Global{ServerConnector: ServerConnector{
			Protocol:               "grpc",
			ConnectTimeoutMs:       1000,
			MessageTimeoutMs:       1500,
			ServerSwitchIntervalMs: 10 * 60 * 1000,
		}},
		Consumer: Consumer{
			LocalCache: LocalCache{
				ServiceExpireTimeMs:      24 * 60 * 60 * 1000,
				ServiceRefreshIntervalMs: 2000,
			},
			ServiceRouter: ServiceRouterConfig{
				Chain: []string{"ruleRouter", "nearbyRouter", "setDivisionRouter", "canaryRouter", "metadataRouter"},
			},
			LoadBalancer: LoadBalancerConfig{Type: "weightedRandom"},
			CircuitBreaker: CircuitBreakerConfig{
				Enable:        true,
				CheckPeriodMs: 500,
				Chain:         []string{"errorCount", "errorRate"},
			},
			HealthCheck: HealthCheckConfig{When: "onRecover", IntervalMs: 10000},
		},
		API: API{TimeoutMs: 1000, MaxRetryTimes: 3, RetryIntervalMs: 100},
	}
}

// FromString parses a YAML document over the defaults.
func FromString(s string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(s), cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	return cfg, nil
}

// FromFile reads and parses a YAML configuration file.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return FromString(string(data))
}

// String serializes the config back to canonical YAML; round-trips with
// FromString on canonical input.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	return string(out)
}
