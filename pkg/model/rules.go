package model

// RouteRule is a destination or source routing rule as pushed by the
// control plane, consumed by the rule router (C7).
type RouteRule struct {
	// Inbound rules match a caller against this service's own inbound
	// policy; Outbound rules match the caller's outbound policy against
	// a different destination service.
	Inbound  []Rule
	Outbound []Rule
}

// Rule is one routing rule: if Sources match, traffic goes to one of
// Destinations, ordered first by Priority, weighted-random within a
// priority; a rule may instead redirect to another ServiceKey.
type Rule struct {
	ID          string
	Sources     []SourceMatch
	Destinations []DestinationGroup
	Redirect    *ServiceKey
}

// SourceMatch compares the caller's ServiceInfo against one matcher set.
// Each field is an optional MatchString; an empty matcher means "don't care".
type SourceMatch struct {
	Namespace string
	Service   string
	Metadata  map[string]MatchString
}

// MatchString is one of: exact, regex, or a parameter bound from the
// caller's metadata (a `$`-prefixed value). Type selects the mode.
type MatchString struct {
	Type  MatchType
	Value string
}

type MatchType int

const (
	MatchExact MatchType = iota
	MatchRegex
	MatchParameter
	MatchEnvVariable
)

// DestinationGroup is one priority tier of a rule's destination subset.
type DestinationGroup struct {
	Priority int
	Weight   int
	Subset map[string]string // label subset, e.g. version=v2
	Metadata map[string]MatchString
	Isolate  bool
}

// RateLimitRule is the control plane's rate-limit configuration for a
// service, consumed by the rate-limit quota manager (C9).
type RateLimitRule struct {
	Rules []LimitRule
}

type LimitRule struct {
	ID      string
	Labels  map[string]MatchString
	// CombinedLabelValues: when true, regex label matchers across
	// multiple values of the same key are evaluated jointly rather than
	// per-value.
	CombinedLabelValues bool
	Amounts             []AmountRule
	Cluster string // non-empty => remote/distributed mode
	Climb               *ClimbConfig
}

// AmountRule is one (max amount, duration) sliding-window bucket.
type AmountRule struct {
	MaxAmount int64
	Duration int64 // milliseconds
}

// ClimbConfig tunes the adaptive rate-limit plugin.
type ClimbConfig struct {
	MinAmount         int64
	MaxAmount         int64
	SamplePeriodMs    int64
	ColdWaterErrorRate float64
	ColdWaterSlowRate  float64
	SlowRateThresholdMs int64
	ClimbUpStep       float64
	ClimbDownStep     float64
}

// CircuitBreakerConfig is the control plane's CB tuning for a service.
type CircuitBreakerConfig struct {
	Enable       bool
	CheckPeriodMs int64
	ErrorCount   *ErrorCountConfig
	ErrorRate    *ErrorRateConfig
}

type ErrorCountConfig struct {
	ContinuousErrorThreshold int
	SleepWindowMs            int64
	RequestCountAfterHalfOpen int
	SuccessCountToClose       int
	MetricExpiredMs           int64
	AutoHalfOpenEnable        bool
}

type ErrorRateConfig struct {
	WindowMs               int64
	NumBuckets             int
	RequestVolumeThreshold int64
	ErrorRateThreshold     float64
	PreservedRateThreshold float64 // rates in [PreservedRateThreshold, ErrorRateThreshold) -> Preserved
	SleepWindowMs          int64
	RequestCountAfterHalfOpen int
	SuccessCountToClose       int
	MetricExpiredMs           int64
	AutoHalfOpenEnable        bool
}
