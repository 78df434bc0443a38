package service

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is the process/host snapshot served on a service's /info endpoint.
type Stats struct {
	Service       string  `json:"service"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSSMB   float64 `json:"memory_rss_mb"`
	HostMemUsedPct float64 `json:"host_mem_used_pct"`
}

// Stats gathers a best-effort snapshot; individual probe failures leave
// their field at zero rather than failing the whole call.
func (b *BaseService) Stats(ctx context.Context) Stats {
	s := Stats{
		Service:       b.name,
		UptimeSeconds: b.Uptime().Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if pcts, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err == nil && len(pcts) > 0 {
		s.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.HostMemUsedPct = vm.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
			s.MemoryRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}
	return s
}
