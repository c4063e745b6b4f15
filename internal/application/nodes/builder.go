package nodes

import (
	"fmt"

	"github.com/aescanero/dagent/internal/application/gate"
	"github.com/aescanero/dagent/internal/application/scheduler"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// Node types accepted in a WorkflowSpec.
const (
	TypeLLM  = "llm"
	TypeTool = "tool"
)

// NodeSpec declares one node of a workflow.
type NodeSpec struct {
	Type string `json:"type"`
	LLMConfig
	Tool    string `json:"tool,omitempty"`
	ArgsKey string `json:"args_key,omitempty"`
}

// WorkflowSpec is the wire form of a workflow.
type WorkflowSpec struct {
	Name  string            `json:"name"`
	Entry string            `json:"entry"`
	Nodes []NodeSpec        `json:"nodes"`
	Edges map[string]string `json:"edges,omitempty"`
}

// Builder turns workflow specs into executable workflows.
type Builder struct {
	backend ports.Backend
	gate    *gate.Gate
	tools   map[string]gate.Tool
	logger  *zap.Logger
}

// NewBuilder creates a new workflow builder
func NewBuilder(backend ports.Backend, g *gate.Gate, tools map[string]gate.Tool, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{backend: backend, gate: g, tools: tools, logger: logger}
}

// Build creates the workflow. A healer node is added unless the spec
// declares one.
func (b *Builder) Build(spec WorkflowSpec) (*scheduler.Workflow, error) {
	wf := &scheduler.Workflow{
		Name:  spec.Name,
		Entry: spec.Entry,
		Nodes: make(map[string]ports.Node, len(spec.Nodes)+1),
		Edges: make(map[string]string, len(spec.Edges)),
	}
	for from, to := range spec.Edges {
		wf.Edges[from] = to
	}

	for _, ns := range spec.Nodes {
		if ns.Name == "" {
			return nil, fmt.Errorf("workflow %s has a node without a name", spec.Name)
		}
		if _, dup := wf.Nodes[ns.Name]; dup {
			return nil, fmt.Errorf("workflow %s declares node %s twice", spec.Name, ns.Name)
		}

		node, err := b.node(ns)
		if err != nil {
			return nil, fmt.Errorf("failed to build node %s: %w", ns.Name, err)
		}
		wf.Nodes[ns.Name] = node
	}

	if _, ok := wf.Nodes[domain.HealerNode]; !ok {
		wf.Nodes[domain.HealerNode] = NewHealerNode(b.backend, "", b.logger)
	}
	return wf, nil
}

func (b *Builder) node(ns NodeSpec) (ports.Node, error) {
	switch ns.Type {
	case TypeLLM, "":
		return NewLLMNode(ns.LLMConfig, b.backend, b.logger), nil
	case TypeTool:
		run, ok := b.tools[ns.Tool]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", ns.Tool)
		}
		return NewToolNode(ns.Tool, ns.ArgsKey, ns.OutputKey, run, b.gate), nil
	default:
		return nil, fmt.Errorf("unsupported node type %q", ns.Type)
	}
}
