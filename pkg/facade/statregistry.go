package facade

import (
	"sync"
	"time"

	"github.com/polarismesh/polaris-go-sub002/pkg/api"
)

// latencyBucket mirrors the original monitor's coarse latency buckets
// (polaris/monitor/api_stat_registry.cpp): a handful of fixed
// boundaries rather than a full histogram, since the sink is a
// lightweight injectable interface, not a wire protocol.
func latencyBucket(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 1:
		return "<1ms"
	case ms < 10:
		return "1-10ms"
	case ms < 50:
		return "10-50ms"
	case ms < 200:
		return "50-200ms"
	case ms < 1000:
		return "200-1000ms"
	default:
		return ">1000ms"
	}
}

// StatSample is one API-stat record: a per-(api, return-code) counter
// bucketed by latency.
type StatSample struct {
	Kind         string
	ReturnCode   api.ReturnCode
	LatencyBucket string
	Count        int64
}

// StatSink receives the samples FlushTo drains. The original
// posts these to a monitor RPC; here the sink is injectable so the wire
// protocol (out of scope) never leaks into the facade.
type StatSink interface {
	Flush(samples []StatSample)
}

type statKey struct {
	kind    string
	code    api.ReturnCode
	bucket  string
}

// statRegistry accumulates samples in memory between flushes, the way
// api_stat_registry.cpp keeps an in-process counter map.
type statRegistry struct {
	mu      sync.Mutex
	samples map[statKey]int64
}

func newStatRegistry() *statRegistry {
	return &statRegistry{samples: map[statKey]int64{}}
}

func (r *statRegistry) Record(kind string, code api.ReturnCode, latency time.Duration) {
	k := statKey{kind: kind, code: code, bucket: latencyBucket(latency)}
	r.mu.Lock()
	r.samples[k]++
	r.mu.Unlock()
}

// FlushTo drains the accumulated counters into sink and resets them.
// No task in this module calls it; samples accumulate until a caller
// does.
func (r *statRegistry) FlushTo(sink StatSink) {
	if sink == nil {
		return
	}
	r.mu.Lock()
	samples := make([]StatSample, 0, len(r.samples))
	for k, count := range r.samples {
		samples = append(samples, StatSample{Kind: k.kind, ReturnCode: k.code, LatencyBucket: k.bucket, Count: count})
	}
	r.samples = map[statKey]int64{}
	r.mu.Unlock()

	sink.Flush(samples)
}
