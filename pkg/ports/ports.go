package ports

import (
	"context"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
)

// Backend is the uniform generate contract implemented by every LLM variant.
type Backend interface {
	Name() string
	Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error)
	IsAvailable(ctx context.Context) bool
	SupportsStructuredOutput() bool
	SupportsFunctionCalling() bool
}

// Node is one workflow step.
type Node interface {
	Run(ctx context.Context, state *domain.SharedState) (domain.NodeOutput, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc func(ctx context.Context, state *domain.SharedState) (domain.NodeOutput, error)

// Run calls f.
func (f NodeFunc) Run(ctx context.Context, state *domain.SharedState) (domain.NodeOutput, error) {
	return f(ctx, state)
}

// Notifier receives human-readable policy change notices.
type Notifier func(message string)

// ResourceSampler samples host utilization.
type ResourceSampler interface {
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
}

// ConcurrencyAdvisor recommends a concurrency limit for a base value.
type ConcurrencyAdvisor interface {
	EstimateConcurrencyLimit(ctx context.Context, base int) (int, domain.LoadLevel, error)
}

// EventHandler processes one event.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and subscribes to domain events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// StateStorage persists run records.
type StateStorage interface {
	SaveRun(ctx context.Context, run *domain.RunState) error
	GetRun(ctx context.Context, runID string) (*domain.RunState, error)
	DeleteRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]string, error)
}

// MetricsCollector records execution-core metrics.
type MetricsCollector interface {
	RecordScaling(policy domain.ConcurrencyPolicy)
	RecordResourceSnapshot(snapshot domain.ResourceSnapshot)
	RecordNodeExecuted(node, status string, duration time.Duration)
	RecordHealingDecision(decision string)
	RecordInFlight(inFlight, capacity int)
	RecordCredentialStatus(provider string, entries []domain.EntryStatus)
	RecordBackendCall(backend, model string, duration time.Duration, err error)
	RecordFallback(from, to string)
	RecordRunCompleted(status string, duration time.Duration)
}
