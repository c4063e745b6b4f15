// Package hybrid implements the composite backend that cascades a request
// across an ordered list of backends.
package hybrid

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// ErrNoBackends is returned by New when the list is empty.
var ErrNoBackends = errors.New("hybrid backend requires at least one backend")

// Backend tries each backend in order and returns the first success.
type Backend struct {
	backends []ports.Backend
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

// New creates a hybrid backend. metrics may be nil.
func New(backends []ports.Backend, metrics ports.MetricsCollector, logger *zap.Logger) (*Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		backends: append([]ports.Backend(nil), backends...),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Name joins the names of the cascade.
func (b *Backend) Name() string {
	names := make([]string, 0, len(b.backends))
	for _, be := range b.backends {
		names = append(names, be.Name())
	}
	return "hybrid(" + strings.Join(names, ",") + ")"
}

// Backends returns the cascade order.
func (b *Backend) Backends() []ports.Backend {
	return append([]ports.Backend(nil), b.backends...)
}

// Generate makes exactly one attempt per backend. Failures are swallowed
// until the list runs out; the returned CascadeError carries every cause.
// model only applies to the primary backend. Fallbacks get an empty model
// and use their own configured default.
func (b *Backend) Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error) {
	cascade := &domain.CascadeError{}

	for i, be := range b.backends {
		if err := ctx.Err(); err != nil {
			cascade.Attempts = append(cascade.Attempts, domain.BackendAttempt{Backend: be.Name(), Err: err})
			return "", cascade
		}

		m := model
		if i > 0 {
			m = ""
		}
		start := time.Now()
		text, err := be.Generate(ctx, m, messages, cfg)
		if err == nil {
			if i > 0 {
				b.logger.Info("hybrid fallback succeeded",
					zap.String("backend", be.Name()),
					zap.Duration("duration", time.Since(start)))
			}
			return text, nil
		}

		cascade.Attempts = append(cascade.Attempts, domain.BackendAttempt{Backend: be.Name(), Err: err})
		if i+1 < len(b.backends) {
			next := b.backends[i+1].Name()
			b.logger.Warn("backend failed, falling back",
				zap.String("backend", be.Name()),
				zap.String("next", next),
				zap.Error(err))
			if b.metrics != nil {
				b.metrics.RecordFallback(be.Name(), next)
			}
		}
	}

	b.logger.Error("all backends failed", zap.Int("attempts", len(cascade.Attempts)))
	return "", cascade
}

// IsAvailable reports whether any backend of the cascade is available.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	for _, be := range b.backends {
		if be.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

// SupportsStructuredOutput follows the primary backend.
func (b *Backend) SupportsStructuredOutput() bool {
	return b.backends[0].SupportsStructuredOutput()
}

// SupportsFunctionCalling follows the primary backend.
func (b *Backend) SupportsFunctionCalling() bool {
	return b.backends[0].SupportsFunctionCalling()
}
