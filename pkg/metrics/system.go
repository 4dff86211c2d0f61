package metrics

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

const nanosecondsPerMillisecond = 1e6

// SystemCollector samples runtime and process statistics into the system gauges.
type SystemCollector struct {
	mu   sync.Mutex
	proc *process.Process
}

// NewSystemCollector binds a collector to the current process.
func NewSystemCollector() (*SystemCollector, error) {
	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCollectorUnavailable, err)
	}
	return &SystemCollector{proc: p}, nil
}

// Collect takes one sample. Process and host readings are best effort: the
// runtime gauges are always updated and the first failure is returned.
func (c *SystemCollector) Collect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	UpdateSystemMemoryUsage(m.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}

	cpu, err := c.proc.CPUPercent()
	if err != nil {
		return fmt.Errorf("%w: cpu: %w", ErrObserveFailed, err)
	}
	memInfo, err := c.proc.MemoryInfo()
	if err != nil {
		return fmt.Errorf("%w: memory info: %w", ErrObserveFailed, err)
	}
	threads, err := c.proc.NumThreads()
	if err != nil {
		return fmt.Errorf("%w: threads: %w", ErrObserveFailed, err)
	}
	UpdateProcessStats(cpu, memInfo.RSS, threads)

	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("%w: host memory: %w", ErrObserveFailed, err)
	}
	UpdateHostMemoryPercent(vm.UsedPercent)
	return nil
}
