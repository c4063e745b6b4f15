package nodes

import (
	"context"
	"fmt"

	"github.com/aescanero/dagent/pkg/adapters/llm/structured"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// KeyHealing is the domain key the healer writes its diagnosis to.
const KeyHealing = "healing"

const healerSystem = `You repair failed workflow steps.
Reply with one JSON object: {"diagnosis": string, "fix": string}.`

// HealerNode asks a backend to diagnose the failure in the error context.
// The diagnosis is merged into the state under KeyHealing, keyed by the
// failed node.
type HealerNode struct {
	backend ports.Backend
	model   string
	logger  *zap.Logger
}

// NewHealerNode creates a new healer node
func NewHealerNode(backend ports.Backend, model string, logger *zap.Logger) *HealerNode {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealerNode{backend: backend, model: model, logger: logger}
}

// Run implements ports.Node.
func (h *HealerNode) Run(ctx context.Context, state *domain.SharedState) (domain.NodeOutput, error) {
	var ec *domain.ErrorContext
	state.View(func(st *domain.SharedState) {
		if st.ErrorContext != nil {
			c := *st.ErrorContext
			ec = &c
		}
	})
	if ec == nil {
		return domain.NodeOutput{domain.KeyStatus: StatusOK}, nil
	}

	prompt := fmt.Sprintf("Step %q failed on attempt %d with error:\n%s", ec.Node, ec.Attempt, ec.Message)
	text, err := h.backend.Generate(ctx, h.model, []domain.Message{
		{Role: domain.RoleSystem, Content: healerSystem},
		{Role: domain.RoleUser, Content: prompt},
	}, &domain.GenerationConfig{JSON: true})
	if err != nil {
		return backendFailure(err)
	}

	var diagnosis map[string]any
	if err := structured.Decode(text, &diagnosis); err != nil {
		return domain.Failure(err), nil
	}
	if diagnosis == nil {
		diagnosis = map[string]any{}
	}
	diagnosis["attempt"] = ec.Attempt

	h.logger.Info("healer produced diagnosis",
		zap.String("node", ec.Node),
		zap.Int("attempt", ec.Attempt))

	return domain.NodeOutput{
		domain.KeyStatus: StatusOK,
		KeyHealing:       map[string]any{ec.Node: diagnosis},
	}, nil
}
