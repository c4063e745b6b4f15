package nodes

import (
	"context"
	"fmt"

	"github.com/aescanero/dagent/pkg/adapters/llm/structured"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// StatusOK is the status of a successful built-in node.
const StatusOK = "ok"

// LLMConfig configures an LLMNode.
type LLMConfig struct {
	Name string `json:"name"`
	// Model overrides the backend default. With a hybrid stack it only
	// reaches the primary backend.
	Model  string `json:"model,omitempty"`
	System string `json:"system,omitempty"`
	// PromptKey is the domain key holding the user prompt.
	PromptKey string `json:"prompt_key"`
	// OutputKey receives the reply. Structured replies that decode to an
	// object are merged into the output instead.
	OutputKey  string                   `json:"output_key,omitempty"`
	Structured bool                     `json:"structured,omitempty"`
	Generation *domain.GenerationConfig `json:"generation,omitempty"`
}

// LLMNode calls a backend with a prompt taken from the state.
type LLMNode struct {
	cfg     LLMConfig
	backend ports.Backend
	logger  *zap.Logger
}

// NewLLMNode creates a new LLM node
func NewLLMNode(cfg LLMConfig, backend ports.Backend, logger *zap.Logger) *LLMNode {
	if cfg.OutputKey == "" {
		cfg.OutputKey = cfg.Name
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMNode{cfg: cfg, backend: backend, logger: logger}
}

// Run implements ports.Node.
func (n *LLMNode) Run(ctx context.Context, state *domain.SharedState) (domain.NodeOutput, error) {
	prompt, err := promptFrom(state, n.cfg.PromptKey)
	if err != nil {
		return domain.Failure(err), nil
	}

	messages := make([]domain.Message, 0, 2)
	if n.cfg.System != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: n.cfg.System})
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: prompt})

	text, err := n.backend.Generate(ctx, n.cfg.Model, messages, n.generation())
	if err != nil {
		return backendFailure(err)
	}

	if !n.cfg.Structured {
		return domain.NodeOutput{domain.KeyStatus: StatusOK, n.cfg.OutputKey: text}, nil
	}

	value, err := structured.Parse(text)
	if err != nil {
		n.logger.Warn("structured reply could not be repaired",
			zap.String("node", n.cfg.Name),
			zap.Error(err))
		return domain.Failure(err), nil
	}

	if fields, ok := value.(map[string]any); ok {
		out := domain.NodeOutput{domain.KeyStatus: StatusOK}
		for k, v := range fields {
			out[k] = v
		}
		return out, nil
	}
	return domain.NodeOutput{domain.KeyStatus: StatusOK, n.cfg.OutputKey: value}, nil
}

func (n *LLMNode) generation() *domain.GenerationConfig {
	cfg := domain.GenerationConfig{}
	if n.cfg.Generation != nil {
		cfg = *n.cfg.Generation
	}
	if n.cfg.Structured {
		cfg.JSON = true
	}
	return &cfg
}

func promptFrom(state *domain.SharedState, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("node has no prompt key")
	}
	v, ok := state.Value(key)
	if !ok {
		return "", fmt.Errorf("state has no value for prompt key %q", key)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// backendFailure splits backend errors into terminal errors and failed
// outputs.
func backendFailure(err error) (domain.NodeOutput, error) {
	if domain.Classify(err) == domain.RemediationIntervention {
		return nil, err
	}
	return domain.Failure(err), nil
}
