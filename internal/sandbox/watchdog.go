package sandbox

import (
	"runtime/metrics"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// memoryPollInterval is how often a running call's heap growth is sampled.
const memoryPollInterval = 2 * time.Millisecond

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// Interrupt values, used to tell why a call was stopped.
type (
	timeoutSignal struct{}
	memorySignal  struct{}
)

// callTracker counts sandbox calls running anywhere in the process. epoch
// changes whenever a call starts or finishes.
type callTracker struct {
	running atomic.Int64
	epoch   atomic.Uint64
}

var inFlight callTracker

func (c *callTracker) enter() {
	c.running.Add(1)
	c.epoch.Add(1)
}

func (c *callTracker) exit() {
	c.running.Add(-1)
	c.epoch.Add(1)
}

func (c *callTracker) state() (running int64, epoch uint64) {
	return c.running.Load(), c.epoch.Load()
}

// heapMeter attributes process heap growth to one call. The heap is shared
// by every runtime, so growth only counts while the call has been alone
// since its baseline was taken: any other call starting or finishing moves
// the baseline up to the current heap. Under contention the timeout and the
// allocation guards still apply; only the sampled check pauses.
type heapMeter struct {
	limit    uint64
	baseline uint64
	epoch    uint64
}

func newHeapMeter(limit, heap uint64) *heapMeter {
	m := &heapMeter{limit: limit}
	running, epoch := inFlight.state()
	m.observe(heap, running, epoch)
	return m
}

// observe reports whether growth since the baseline exceeds the limit.
// heap must be sampled before running and epoch are read.
func (m *heapMeter) observe(heap uint64, running int64, epoch uint64) bool {
	if running > 1 || epoch != m.epoch {
		m.baseline, m.epoch = heap, epoch
		return false
	}
	return heap > m.baseline && heap-m.baseline > m.limit
}

// watch interrupts vm when the call outlives the timeout or meter reports
// the heap grew past the memory limit.
func (f *Function) watch(vm *goja.Runtime, meter *heapMeter, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	var poll <-chan time.Time
	if f.memoryLimit > 0 {
		ticker := time.NewTicker(memoryPollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-timer.C:
			vm.Interrupt(timeoutSignal{})
			return
		case <-poll:
			heap := heapObjectsBytes()
			running, epoch := inFlight.state()
			if meter.observe(heap, running, epoch) {
				vm.Interrupt(memorySignal{})
				return
			}
		}
	}
}

func heapObjectsBytes() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}
