package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostSampler reads utilization from the local host via gopsutil.
type HostSampler struct{}

// NewHostSampler creates a host sampler
func NewHostSampler() *HostSampler {
	return &HostSampler{}
}

// CPUPercent returns total CPU utilization measured over window.
func (HostSampler) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	values, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, fmt.Errorf("failed to sample cpu: %w", err)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("failed to sample cpu: no values returned")
	}
	return values[0], nil
}

// MemoryPercent returns current virtual memory utilization.
func (HostSampler) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sample memory: %w", err)
	}
	return vm.UsedPercent, nil
}
