package model

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Location is the (region, zone, campus) locality tuple used by the
// nearby router and the locality-aware load balancer.
type Location struct {
	Region string
	Zone   string
	Campus string
}

// localIDSeq assigns a per-process local_id on an instance's first
// appearance, used for connection-pool keying.
var localIDSeq int64

// Instance is an immutable-after-construction record for one service
// endpoint. DynamicWeight is the sole mutable field; it is updated
// out-of-band by the weight adjuster without touching the rest of the
// record, so readers never need to copy the struct to observe a fresh
// weight.
type Instance struct {
	ID       string
	Host     string
	Port     uint32
	Weight int // [0,1000]
	Priority int
	Protocol string
	Version  string
	Metadata map[string]string
	Location Location
	Healthy  bool
	Isolate  bool

	// LocalID is assigned once, on first appearance in this process.
	LocalID int64

	// DynamicWeight is updated out-of-band (e.g. by a weight adjuster
	// plugin reacting to call latency) and read without locking; a
	// torn read of an int32 on supported platforms is not possible.
	dynamicWeight atomic.Int32

	// localityAwareInfo packs a 20-bit route key and 44-bit begin-time-ms
	// used by the locality-aware balancer to correlate a pick with its
	// feedback. See PackLocalityAwareInfo for the bit layout.
	localityAwareInfo atomic.Uint64
}

// NewInstance constructs an Instance and assigns it a fresh LocalID.
// Weight is clamped to [0,1000] per the data model invariant.
func NewInstance(id, host string, port uint32, weight int) *Instance {
	if weight < 0 {
		weight = 0
	}
	if weight > 1000 {
		weight = 1000
	}
	inst := &Instance{
		ID:       id,
		Host:     host,
		Port:     port,
		Weight:   weight,
		Metadata: map[string]string{},
		LocalID:  atomic.AddInt64(&localIDSeq, 1),
	}
	inst.dynamicWeight.Store(int32(weight))
	return inst
}

// GenerateID derives a stable id for an instance when the control plane
// does not supply one, from host:port.
func GenerateID(host string, port uint32) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(host+":"+itoa(port))).String()
}

func itoa(port uint32) string {
	if port == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for port > 0 {
		i--
		buf[i] = byte('0' + port%10)
		port /= 10
	}
	return string(buf[i:])
}

func (i *Instance) DynamicWeight() int      { return int(i.dynamicWeight.Load()) }
func (i *Instance) SetDynamicWeight(w int)  { i.dynamicWeight.Store(int32(w)) }
func (i *Instance) LocalityAwareInfo() uint64 { return i.localityAwareInfo.Load() }
func (i *Instance) SetLocalityAwareInfo(v uint64) { i.localityAwareInfo.Store(v) }

// PackLocalityAwareInfo packs a 20-bit route key and 44-bit begin-time-ms
// into the 64-bit locality-aware correlation handle. routeKey wraps at
// 2^20; beginTimeMs wraps at 2^44 (~557 years from epoch, explicitly
// acceptable per). A route key is reused across
// picks roughly every 2^20 calls, so under sustained load a wrap can
// collide with an in-flight pick from ~10 years of call volume ago;
// the feedback path tolerates a stale match by discarding latency
// samples whose begin-time is in the future or more than five minutes
// old.
func PackLocalityAwareInfo(routeKey uint32, beginTimeMs uint64) uint64 {
	return (uint64(routeKey&0xFFFFF) << 44) | (beginTimeMs & 0xFFFFFFFFFFF)
}

func UnpackLocalityAwareInfo(v uint64) (routeKey uint32, beginTimeMs uint64) {
	routeKey = uint32(v >> 44)
	beginTimeMs = v & 0xFFFFFFFFFFF
	return
}
