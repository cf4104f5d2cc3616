package monitor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// HostStats describes the machine the reading store lives on.
type HostStats struct {
	Hostname  string       `json:"hostname,omitempty"`
	Uptime    uint64       `json:"uptime_seconds,omitempty"`
	Memory    UsageStats   `json:"memory"`
	Disk      UsageStats   `json:"disk"`
	DataDir   string       `json:"data_dir"`
	Runtime   RuntimeStats `json:"runtime"`
	Timestamp time.Time    `json:"timestamp"`
}

// UsageStats is a total/used pair for memory or a filesystem.
type UsageStats struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// RuntimeStats represents Go runtime statistics
type RuntimeStats struct {
	Goroutines    int    `json:"goroutines"`
	MemAllocBytes uint64 `json:"mem_alloc_bytes"`
	MemSysBytes   uint64 `json:"mem_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// HostThresholds are the used-percent levels at which the host check
// degrades or fails.
type HostThresholds struct {
	DiskDegraded   float64
	DiskUnhealthy  float64
	MemoryDegraded float64
}

// DefaultHostThresholds suit a small appliance keeping years of readings.
func DefaultHostThresholds() HostThresholds {
	return HostThresholds{DiskDegraded: 85, DiskUnhealthy: 95, MemoryDegraded: 95}
}

// HostMonitor watches the disk holding the reading store and host memory.
type HostMonitor struct {
	dataDir    string
	thresholds HostThresholds
	logger     *logrus.Logger

	diskUsage   func(ctx context.Context, path string) (*disk.UsageStat, error)
	memoryUsage func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	hostInfo    func(ctx context.Context) (*host.InfoStat, error)
}

// NewHostMonitor watches the filesystem containing dataDir.
func NewHostMonitor(dataDir string, thresholds HostThresholds, logger *logrus.Logger) *HostMonitor {
	if dataDir == "" {
		dataDir = "."
	}
	return &HostMonitor{
		dataDir:     dataDir,
		thresholds:  thresholds,
		logger:      logger,
		diskUsage:   disk.UsageWithContext,
		memoryUsage: mem.VirtualMemoryWithContext,
		hostInfo:    host.InfoWithContext,
	}
}

// Stats collects the current figures. Sources that fail are logged and left
// zero.
func (h *HostMonitor) Stats(ctx context.Context) *HostStats {
	stats := &HostStats{
		DataDir:   h.dataDir,
		Runtime:   runtimeStats(),
		Timestamp: time.Now(),
	}

	if usage, err := h.diskUsage(ctx, h.dataDir); err != nil {
		h.logger.WithError(err).WithField("path", h.dataDir).Warn("Failed to get disk usage")
	} else {
		stats.Disk = UsageStats{Total: usage.Total, Used: usage.Used, Free: usage.Free, UsedPercent: usage.UsedPercent}
	}

	if vmem, err := h.memoryUsage(ctx); err != nil {
		h.logger.WithError(err).Warn("Failed to get memory stats")
	} else {
		stats.Memory = UsageStats{Total: vmem.Total, Used: vmem.Used, Free: vmem.Available, UsedPercent: vmem.UsedPercent}
	}

	if info, err := h.hostInfo(ctx); err != nil {
		h.logger.WithError(err).Debug("Failed to get host info")
	} else {
		stats.Hostname = info.Hostname
		stats.Uptime = info.Uptime
	}

	return stats
}

// Health fails when the store's disk is nearly full; ingest stops working
// before anything else does.
func (h *HostMonitor) Health(ctx context.Context) metrics.HealthStatus {
	st := h.Stats(ctx)

	var status metrics.HealthStatus
	switch {
	case st.Disk.Total == 0:
		status = metrics.NewHealthStatus("degraded", "disk usage unavailable")
	case st.Disk.UsedPercent >= h.thresholds.DiskUnhealthy:
		status = metrics.NewHealthStatus("unhealthy", fmt.Sprintf("disk %.1f%% full", st.Disk.UsedPercent))
	case st.Disk.UsedPercent >= h.thresholds.DiskDegraded:
		status = metrics.NewHealthStatus("degraded", fmt.Sprintf("disk %.1f%% full", st.Disk.UsedPercent))
	case st.Memory.UsedPercent >= h.thresholds.MemoryDegraded:
		status = metrics.NewHealthStatus("degraded", fmt.Sprintf("memory %.1f%% used", st.Memory.UsedPercent))
	default:
		status = metrics.NewHealthStatus("healthy", "resources ok")
	}
	return status.
		WithDetail("disk_used_percent", st.Disk.UsedPercent).
		WithDetail("memory_used_percent", st.Memory.UsedPercent).
		WithDetail("goroutines", st.Runtime.Goroutines)
}

func runtimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeStats{
		Goroutines:    runtime.NumGoroutine(),
		MemAllocBytes: m.Alloc,
		MemSysBytes:   m.Sys,
		GCCycles:      m.NumGC,
	}
}
