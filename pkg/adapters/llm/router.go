package llm

import (
	"context"
	"fmt"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
)

// Router sends every call to the backend of the manager's active provider,
// so a provider switch takes effect on the next Generate.
type Router struct {
	manager  *credentials.Manager
	backends map[string]ports.Backend
}

// NewRouter creates a router over backends keyed by provider name
func NewRouter(manager *credentials.Manager, backends map[string]ports.Backend) *Router {
	return &Router{manager: manager, backends: backends}
}

func (r *Router) active() (ports.Backend, error) {
	provider, _ := r.manager.Active()
	b, ok := r.backends[provider]
	if !ok {
		return nil, fmt.Errorf("no backend for provider %s", provider)
	}
	return b, nil
}

// Name returns the active backend name.
func (r *Router) Name() string {
	b, err := r.active()
	if err != nil {
		return "router"
	}
	return b.Name()
}

// Generate calls the active backend.
func (r *Router) Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error) {
	b, err := r.active()
	if err != nil {
		return "", err
	}
	return b.Generate(ctx, model, messages, cfg)
}

// IsAvailable reports the active backend availability.
func (r *Router) IsAvailable(ctx context.Context) bool {
	b, err := r.active()
	return err == nil && b.IsAvailable(ctx)
}

func (r *Router) SupportsStructuredOutput() bool {
	b, err := r.active()
	return err == nil && b.SupportsStructuredOutput()
}

func (r *Router) SupportsFunctionCalling() bool {
	b, err := r.active()
	return err == nil && b.SupportsFunctionCalling()
}
