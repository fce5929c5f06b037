package mock

import (
	"math/rand"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// TimingSimulator adds realistic timing delays to mock array operations
type TimingSimulator struct {
	enabled          bool
	sshLatency       time.Duration
	sshLatencyJitter time.Duration
	mapDelay         time.Duration
	unmapDelay       time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTimingSimulator creates a new timing simulator from configuration
func NewTimingSimulator(config MockArrayConfig) *TimingSimulator {
	return &TimingSimulator{
		enabled:          config.RealisticTiming,
		sshLatency:       time.Duration(config.SSHLatencyMs) * time.Millisecond,
		sshLatencyJitter: time.Duration(config.SSHLatencyJitterMs) * time.Millisecond,
		mapDelay:         time.Duration(config.MapDelayMs) * time.Millisecond,
		unmapDelay:       time.Duration(config.UnmapDelayMs) * time.Millisecond,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SimulateSSHLatency simulates session latency with jitter.
// Called at session start after SSH handshake completes
func (t *TimingSimulator) SimulateSSHLatency() {
	if !t.enabled || t.sshLatency == 0 {
		return
	}

	// base latency ± jitter
	jitter := time.Duration(0)
	if t.sshLatencyJitter > 0 {
		t.mu.Lock()
		jitter = time.Duration(t.rng.Int63n(int64(t.sshLatencyJitter*2))) - t.sshLatencyJitter
		t.mu.Unlock()
	}

	delay := t.sshLatency + jitter
	if delay < 0 {
		delay = 0
	}

	klog.V(4).Infof("Mock array timing: SSH latency simulation %dms", delay.Milliseconds())
	time.Sleep(delay)
}

// SimulateMappingOperation simulates map_vol and unmap_vol delays.
// Called before state modification so concurrent mappers overlap
func (t *TimingSimulator) SimulateMappingOperation(opType string) {
	if !t.enabled {
		return
	}

	var delay time.Duration
	switch opType {
	case "map":
		delay = t.mapDelay
	case "unmap":
		delay = t.unmapDelay
	default:
		return
	}

	if delay == 0 {
		return
	}

	klog.V(4).Infof("Mock array timing: %s operation simulation %dms", opType, delay.Milliseconds())
	time.Sleep(delay)
}
