package llm

import (
	"fmt"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/adapters/llm/anthropic"
	"github.com/aescanero/dagent/pkg/adapters/llm/hybrid"
	"github.com/aescanero/dagent/pkg/adapters/llm/lmstudio"
	"github.com/aescanero/dagent/pkg/adapters/llm/ollama"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// ProviderHybrid selects the cascading composite backend.
const ProviderHybrid = "hybrid"

// Config holds LLM client configuration
type Config struct {
	Provider    string
	HybridOrder []string

	RequestTimeout    time.Duration
	RequestsPerSecond float64
	MaxTokens         int
	Temperature       float64
	QuotaCooldown     time.Duration

	AnthropicKeys  []credentials.Source
	AnthropicModel string

	OllamaURL   string
	OllamaModel string

	LMStudioURL   string
	LMStudioModel string

	Metrics ports.MetricsCollector
	Logger  *zap.Logger
}

// Stack is the resolved backend together with the credential sources it
// draws from.
type Stack struct {
	Backend     ports.Backend
	Credentials *credentials.Manager
}

// NewStack creates the backend selected by cfg.Provider. Only the providers
// the selection needs are built.
func NewStack(cfg *Config) (*Stack, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	providers := []string{cfg.Provider}
	if cfg.Provider == ProviderHybrid {
		providers = cfg.HybridOrder
		if len(providers) == 0 {
			return nil, fmt.Errorf("hybrid provider requires a backend order")
		}
	}

	manager := credentials.NewManager(logger)
	backends := make([]ports.Backend, 0, len(providers))
	for _, provider := range providers {
		backend, src, err := newBackend(cfg, provider, logger)
		if err != nil {
			return nil, err
		}
		manager.Register(src)
		backends = append(backends, Instrument(backend, cfg.Metrics))
	}

	if cfg.Provider == ProviderHybrid {
		composite, err := hybrid.New(backends, cfg.Metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create hybrid backend: %w", err)
		}
		return &Stack{Backend: composite, Credentials: manager}, nil
	}

	// Local providers are registered as switch targets. They cost nothing
	// until a request reaches them.
	byName := map[string]ports.Backend{cfg.Provider: backends[0]}
	for _, provider := range []string{credentials.ProviderOllama, credentials.ProviderLMStudio} {
		if _, ok := byName[provider]; ok {
			continue
		}
		backend, src, err := newBackend(cfg, provider, logger)
		if err != nil {
			logger.Debug("switch target not registered",
				zap.String("provider", provider),
				zap.Error(err))
			continue
		}
		manager.Register(src)
		byName[provider] = Instrument(backend, cfg.Metrics)
	}

	return &Stack{Backend: NewRouter(manager, byName), Credentials: manager}, nil
}

func newBackend(cfg *Config, provider string, logger *zap.Logger) (ports.Backend, credentials.StatusSource, error) {
	opts := credentials.PoolOptions{
		QuotaCooldown: cfg.QuotaCooldown,
		Metrics:       cfg.Metrics,
		Logger:        logger,
	}

	switch provider {
	case credentials.ProviderAnthropic:
		if len(cfg.AnthropicKeys) == 0 {
			return nil, nil, fmt.Errorf("anthropic provider requires at least one API key")
		}
		pool, err := anthropic.NewPool(cfg.AnthropicKeys, cfg.AnthropicModel, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create anthropic pool: %w", err)
		}
		client := anthropic.NewClient(pool, anthropic.Config{
			Timeout:           cfg.RequestTimeout,
			MaxTokens:         cfg.MaxTokens,
			Temperature:       cfg.Temperature,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger.Named("anthropic"))
		return client, pool, nil

	case credentials.ProviderOllama:
		endpoint, err := ollama.NewEndpoint(cfg.OllamaURL, cfg.OllamaModel, cfg.RequestTimeout, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ollama endpoint: %w", err)
		}
		return ollama.NewClient(endpoint, cfg.RequestTimeout, logger.Named("ollama")), endpoint, nil

	case credentials.ProviderLMStudio:
		endpoint, err := lmstudio.NewEndpoint(cfg.LMStudioURL, cfg.LMStudioModel, cfg.RequestTimeout, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create lmstudio endpoint: %w", err)
		}
		return lmstudio.NewClient(endpoint, cfg.RequestTimeout, logger.Named("lmstudio")), endpoint, nil

	default:
		return nil, nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
