package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

var (
	// ProcessRSS holds the resident memory of the running tap.
	ProcessRSS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crmtap_process_resident_bytes",
		Help: "Resident memory of the tap process in bytes",
	})

	// ProcessCPU holds the average CPU use of the tap since it started.
	ProcessCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crmtap_process_cpu_percent",
		Help: "Average CPU use of the tap process since start",
	})
)

// ResourceUsage is a snapshot of the tap's own resource consumption.
type ResourceUsage struct {
	CPUPercent     float64
	MemoryRSS      uint64
	GoroutineCount int
	ThreadCount    int32
	OpenFDs        int32
}

// ResourceMonitor samples the current process. When the process cannot be
// inspected only the goroutine count is reported.
type ResourceMonitor struct {
	mu           sync.Mutex
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
}

// NewResourceMonitor starts measuring from now.
func NewResourceMonitor() *ResourceMonitor {
	rm := &ResourceMonitor{startTime: time.Now()}
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return rm
	}
	rm.process = proc
	if times, err := proc.Times(); err == nil {
		rm.startCPUTime = times.Total()
	}
	return rm
}

// Usage samples the process and updates the process gauges.
func (rm *ResourceMonitor) Usage() ResourceUsage {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	usage := ResourceUsage{GoroutineCount: runtime.NumGoroutine()}
	if rm.process == nil {
		return usage
	}

	if times, err := rm.process.Times(); err == nil {
		if elapsed := time.Since(rm.startTime).Seconds(); elapsed > 0 {
			usage.CPUPercent = (times.Total() - rm.startCPUTime) / elapsed * 100
		}
	}
	if mem, err := rm.process.MemoryInfo(); err == nil {
		usage.MemoryRSS = mem.RSS
	}
	usage.ThreadCount, _ = rm.process.NumThreads()
	usage.OpenFDs, _ = rm.process.NumFDs()

	ProcessRSS.Set(float64(usage.MemoryRSS))
	ProcessCPU.Set(usage.CPUPercent)
	return usage
}

// Log writes a usage snapshot at info level.
func (rm *ResourceMonitor) Log(logger *zap.Logger) {
	u := rm.Usage()
	logger.Info("resource usage",
		zap.Float64("cpu_percent", u.CPUPercent),
		zap.Uint64("rss_bytes", u.MemoryRSS),
		zap.Int("goroutines", u.GoroutineCount),
		zap.Int32("threads", u.ThreadCount),
		zap.Int32("open_fds", u.OpenFDs))
}
