package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSampler struct {
	cpu, mem float64
	err      error
	calls    atomic.Int32
}

func (f *fakeSampler) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	f.calls.Add(1)
	return f.cpu, f.err
}

func (f *fakeSampler) MemoryPercent(ctx context.Context) (float64, error) {
	return f.mem, f.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		cpu, mem float64
		expected domain.LoadLevel
	}{
		{"idle", 10, 20, domain.LoadLight},
		{"cpu at moderate boundary", 50, 20, domain.LoadLight},
		{"cpu moderate", 51, 20, domain.LoadModerate},
		{"memory moderate", 10, 71, domain.LoadModerate},
		{"cpu at critical boundary", 80, 20, domain.LoadModerate},
		{"cpu critical", 85, 40, domain.LoadCritical},
		{"memory critical", 10, 91, domain.LoadCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(domain.ResourceSnapshot{CPUPercent: tt.cpu, MemoryPercent: tt.mem})
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRecommend(t *testing.T) {
	assert.Equal(t, 1, Recommend(domain.LoadCritical, 8))
	assert.Equal(t, 8, Recommend(domain.LoadModerate, 8))
	assert.Equal(t, 16, Recommend(domain.LoadLight, 8))
	assert.Equal(t, 2, Recommend(domain.LoadLight, 0), "base below one is treated as one")
}

func TestRecommend_Ordering(t *testing.T) {
	for base := 1; base <= 16; base++ {
		critical := Recommend(domain.LoadCritical, base)
		moderate := Recommend(domain.LoadModerate, base)
		light := Recommend(domain.LoadLight, base)

		assert.GreaterOrEqual(t, critical, 1)
		assert.LessOrEqual(t, critical, moderate)
		assert.LessOrEqual(t, moderate, light)
		if base >= 2 {
			assert.Less(t, critical, moderate, "base %d", base)
		}
	}
}

func TestMonitor_EstimateConcurrencyLimit_Critical(t *testing.T) {
	sampler := &fakeSampler{cpu: 85, mem: 40}
	m := NewMonitor(sampler, time.Millisecond, nil, zap.NewNop())

	for _, base := range []int{1, 2, 10} {
		limit, level, err := m.EstimateConcurrencyLimit(context.Background(), base)
		require.NoError(t, err)
		assert.Equal(t, domain.LoadCritical, level)
		assert.Equal(t, 1, limit)
	}
}

func TestMonitor_GetSystemStats_Fresh(t *testing.T) {
	sampler := &fakeSampler{cpu: 10, mem: 10}
	m := NewMonitor(sampler, time.Millisecond, nil, nil)

	_, err := m.GetSystemStats(context.Background())
	require.NoError(t, err)
	sampler.cpu = 95
	snapshot, err := m.GetSystemStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 95.0, snapshot.CPUPercent)
	assert.Equal(t, int32(2), sampler.calls.Load())
}

func TestMonitor_SamplerFailure(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("no /proc")}
	m := NewMonitor(sampler, time.Millisecond, nil, nil)

	_, _, err := m.EstimateConcurrencyLimit(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMonitorUnavailable)

	_, err = m.GetLoadLevel(context.Background())
	assert.ErrorIs(t, err, domain.ErrMonitorUnavailable)
}
