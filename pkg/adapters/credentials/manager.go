package credentials

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/dagent/pkg/domain"
	"go.uber.org/zap"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderLMStudio  = "lmstudio"
)

// StatusSource is the contract shared by hosted pools and local endpoints.
type StatusSource interface {
	Provider() string
	GetPoolStatus() []domain.EntryStatus
	Available() bool
	Reset()
	Model() string
	SetModel(model string)
}

// Prober is implemented by sources with a connectivity probe.
type Prober interface {
	HealthCheck(ctx context.Context) (int, error)
	ListModels(ctx context.Context) ([]string, error)
}

// ProviderStatus is the diagnostic view of one registered provider.
type ProviderStatus struct {
	Provider  string               `json:"provider"`
	Model     string               `json:"model"`
	Active    bool                 `json:"active"`
	Available bool                 `json:"available"`
	Entries   []domain.EntryStatus `json:"entries"`
}

// Manager tracks the registered credential sources and the active provider.
type Manager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	sources map[string]StatusSource
	active  string
}

// NewManager creates a new credential manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:  logger,
		sources: make(map[string]StatusSource),
	}
}

// Register adds a source. The first registered source becomes active.
func (m *Manager) Register(src StatusSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sources[src.Provider()] = src
	if m.active == "" {
		m.active = src.Provider()
	}
}

// Source returns the registered source for provider.
func (m *Manager) Source(provider string) (StatusSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[provider]
	return src, ok
}

// Active returns the active provider and its model.
func (m *Manager) Active() (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[m.active]
	if !ok {
		return m.active, ""
	}
	return m.active, src.Model()
}

// Switch makes provider active with model. Local providers are probed first;
// when model is empty the first listed model is selected.
func (m *Manager) Switch(ctx context.Context, provider, model string) error {
	src, ok := m.Source(provider)
	if !ok {
		return fmt.Errorf("unknown provider: %s", provider)
	}

	if prober, ok := src.(Prober); ok {
		if _, err := prober.HealthCheck(ctx); err != nil {
			return fmt.Errorf("failed to reach %s: %w", provider, err)
		}
		if model == "" {
			models, err := prober.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("failed to list %s models: %w", provider, err)
			}
			if len(models) == 0 {
				return fmt.Errorf("provider %s serves no models", provider)
			}
			model = models[0]
		}
	}

	if model != "" {
		src.SetModel(model)
	}

	m.mu.Lock()
	m.active = provider
	m.mu.Unlock()

	m.logger.Info("provider switched",
		zap.String("provider", provider),
		zap.String("model", src.Model()))
	return nil
}

// GetPoolStatus returns the entries of the active provider.
func (m *Manager) GetPoolStatus() []domain.EntryStatus {
	m.mu.RLock()
	src, ok := m.sources[m.active]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return src.GetPoolStatus()
}

// Status returns every registered provider, sorted by name.
func (m *Manager) Status() []ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(m.sources))
	for name, src := range m.sources {
		out = append(out, ProviderStatus{
			Provider:  name,
			Model:     src.Model(),
			Active:    name == m.active,
			Available: src.Available(),
			Entries:   src.GetPoolStatus(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// AnyAvailable reports whether at least one provider can serve requests.
func (m *Manager) AnyAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, src := range m.sources {
		if src.Available() {
			return true
		}
	}
	return false
}

// Reset restores the entries of provider, or of every provider when empty.
func (m *Manager) Reset(provider string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if provider == "" {
		for _, src := range m.sources {
			src.Reset()
		}
		return nil
	}
	src, ok := m.sources[provider]
	if !ok {
		return fmt.Errorf("unknown provider: %s", provider)
	}
	src.Reset()
	return nil
}
