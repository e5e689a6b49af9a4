package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// ResourceUsage is a coarse process snapshot. It is attached to the stats API
// and to the diagnostics of a memory fault.
type ResourceUsage struct {
	CPUPercent     float64 `json:"cpu_percent"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64  `json:"heap_sys_bytes"`
	NumGC          uint32  `json:"num_gc"`
	Goroutines     int     `json:"goroutines"`
}

// resourceTracker derives CPU utilisation from the delta between two reads of
// the runtime CPU clock.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

const cpuMetric = "/sched/cpu:seconds"

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: cpuMetric}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: cpuMetric}}
	}
	metrics.Read(r.samples)

	now := time.Now()
	var cpuPercent float64
	if sample := r.samples[0]; sample.Value.Kind() == metrics.KindFloat64 {
		cpuSeconds := sample.Value.Float64()
		if !r.lastSample.IsZero() {
			deltaWall := now.Sub(r.lastSample).Seconds()
			if deltaWall > 0 && r.numCPU > 0 {
				cpuPercent = ((cpuSeconds - r.lastCPUSeconds) / deltaWall) / r.numCPU * 100
			}
		}
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return ResourceUsage{
		CPUPercent:     cpuPercent,
		HeapAllocBytes: mem.HeapAlloc,
		HeapSysBytes:   mem.HeapSys,
		NumGC:          mem.NumGC,
		Goroutines:     runtime.NumGoroutine(),
	}
}
