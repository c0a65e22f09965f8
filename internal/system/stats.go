package system

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a snapshot of host and process usage, logged at the end of a run.
type Stats struct {
	Elapsed       time.Duration
	CPUPercent    float64
	HostMemUsed   float64
	ProcessRSS    uint64
	ProcessCPUPct float64
}

// CollectStats samples the host and the current process. Fields that cannot be
// read on this platform stay zero.
func CollectStats(started time.Time) Stats {
	s := Stats{Elapsed: time.Since(started)}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.HostMemUsed = vm.UsedPercent
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			s.ProcessRSS = mi.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			s.ProcessCPUPct = pct
		}
	}
	return s
}

func (s Stats) Log(log zerolog.Logger) {
	log.Info().
		Dur("elapsed", s.Elapsed).
		Float64("host_cpu_pct", s.CPUPercent).
		Float64("host_mem_pct", s.HostMemUsed).
		Uint64("rss_bytes", s.ProcessRSS).
		Float64("proc_cpu_pct", s.ProcessCPUPct).
		Msg("run stats")
}
