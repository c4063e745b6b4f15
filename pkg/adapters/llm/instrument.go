package llm

import (
	"context"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
)

type instrumented struct {
	ports.Backend
	metrics ports.MetricsCollector
}

// Instrument records duration and outcome of every Generate call.
// A nil collector returns b unchanged.
func Instrument(b ports.Backend, metrics ports.MetricsCollector) ports.Backend {
	if metrics == nil {
		return b
	}
	return &instrumented{Backend: b, metrics: metrics}
}

func (i *instrumented) Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error) {
	start := time.Now()
	text, err := i.Backend.Generate(ctx, model, messages, cfg)
	i.metrics.RecordBackendCall(i.Name(), model, time.Since(start), err)
	return text, err
}
