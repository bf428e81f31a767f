package status

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSampler reads resource usage of the current process.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler attaches to the running process.
func NewProcessSampler() (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	return &ProcessSampler{proc: proc}, nil
}

// Sample returns CPU usage since the previous call and the resident set size.
// Fields that cannot be read are left at zero.
func (p *ProcessSampler) Sample() Process {
	var out Process
	if pct, err := p.proc.Percent(0); err == nil {
		out.CPUPercent = pct
	}
	if mem, err := p.proc.MemoryInfo(); err == nil && mem != nil {
		out.RSSBytes = mem.RSS
	}
	return out
}

// WithProcess decorates src so every snapshot carries process usage.
func WithProcess(src Source, sampler *ProcessSampler) Source {
	if sampler == nil {
		return src
	}
	return SourceFunc(func() Snapshot {
		snap := src.Snapshot()
		snap.Process = sampler.Sample()
		return snap
	})
}
