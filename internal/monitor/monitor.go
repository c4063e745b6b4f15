package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// Load thresholds in percent.
const (
	criticalCPU    = 80.0
	criticalMemory = 90.0
	moderateCPU    = 50.0
	moderateMemory = 70.0
)

// DefaultSampleWindow is the CPU sampling window.
const DefaultSampleWindow = 200 * time.Millisecond

// Monitor is the resource monitor that feeds scheduling decisions.
type Monitor struct {
	sampler ports.ResourceSampler
	window  time.Duration
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewMonitor creates a new resource monitor
func NewMonitor(sampler ports.ResourceSampler, window time.Duration, metrics ports.MetricsCollector, logger *zap.Logger) *Monitor {
	if window <= 0 {
		window = DefaultSampleWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		sampler: sampler,
		window:  window,
		metrics: metrics,
		logger:  logger,
	}
}

// GetSystemStats samples CPU over the configured window and current memory.
func (m *Monitor) GetSystemStats(ctx context.Context) (domain.ResourceSnapshot, error) {
	cpuPct, err := m.sampler.CPUPercent(ctx, m.window)
	if err != nil {
		return domain.ResourceSnapshot{}, fmt.Errorf("%w: %v", domain.ErrMonitorUnavailable, err)
	}
	memPct, err := m.sampler.MemoryPercent(ctx)
	if err != nil {
		return domain.ResourceSnapshot{}, fmt.Errorf("%w: %v", domain.ErrMonitorUnavailable, err)
	}

	snapshot := domain.ResourceSnapshot{CPUPercent: cpuPct, MemoryPercent: memPct}
	if m.metrics != nil {
		m.metrics.RecordResourceSnapshot(snapshot)
	}
	return snapshot, nil
}

// GetLoadLevel classifies a fresh snapshot.
func (m *Monitor) GetLoadLevel(ctx context.Context) (domain.LoadLevel, error) {
	snapshot, err := m.GetSystemStats(ctx)
	if err != nil {
		return "", err
	}
	return Classify(snapshot), nil
}

// EstimateConcurrencyLimit recommends a limit for base from the current tier.
// The tier used for the recommendation is returned alongside it.
func (m *Monitor) EstimateConcurrencyLimit(ctx context.Context, base int) (int, domain.LoadLevel, error) {
	snapshot, err := m.GetSystemStats(ctx)
	if err != nil {
		return 0, "", err
	}
	level := Classify(snapshot)
	limit := Recommend(level, base)

	m.logger.Debug("concurrency estimate",
		zap.Float64("cpu_percent", snapshot.CPUPercent),
		zap.Float64("memory_percent", snapshot.MemoryPercent),
		zap.String("load_level", string(level)),
		zap.Int("base", base),
		zap.Int("limit", limit))

	return limit, level, nil
}

// Classify maps one snapshot onto exactly one load tier.
func Classify(s domain.ResourceSnapshot) domain.LoadLevel {
	switch {
	case s.CPUPercent > criticalCPU || s.MemoryPercent > criticalMemory:
		return domain.LoadCritical
	case s.CPUPercent > moderateCPU || s.MemoryPercent > moderateMemory:
		return domain.LoadModerate
	default:
		return domain.LoadLight
	}
}

// Recommend is the pure tier-to-limit mapping. The result is always >= 1.
func Recommend(level domain.LoadLevel, base int) int {
	if base < 1 {
		base = 1
	}
	switch level {
	case domain.LoadCritical:
		return 1
	case domain.LoadLight:
		return 2 * base
	default:
		return base
	}
}
