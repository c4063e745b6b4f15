package nodes

import (
	"context"
	"errors"

	"github.com/aescanero/dagent/internal/application/gate"
	"github.com/aescanero/dagent/pkg/domain"
)

// ToolNode runs one tool through the gate. Arguments are read from the
// state under ArgsKey.
type ToolNode struct {
	Tool      string
	ArgsKey   string
	OutputKey string

	run  gate.Tool
	gate *gate.Gate
}

// NewToolNode creates a new tool node
func NewToolNode(tool, argsKey, outputKey string, run gate.Tool, g *gate.Gate) *ToolNode {
	if outputKey == "" {
		outputKey = tool
	}
	return &ToolNode{Tool: tool, ArgsKey: argsKey, OutputKey: outputKey, run: run, gate: g}
}

// Run implements ports.Node. A refusal is returned as an error.
func (n *ToolNode) Run(ctx context.Context, state *domain.SharedState) (domain.NodeOutput, error) {
	args := map[string]any{}
	if n.ArgsKey != "" {
		if v, ok := state.Value(n.ArgsKey); ok {
			if m, ok := v.(map[string]any); ok {
				args = m
			}
		}
	}

	result, err := n.gate.Execute(ctx, n.Tool, args, n.run)
	if err != nil {
		if errors.Is(err, domain.ErrRefused) {
			return nil, err
		}
		return domain.Failure(err), nil
	}
	return domain.NodeOutput{domain.KeyStatus: StatusOK, n.OutputKey: result}, nil
}
