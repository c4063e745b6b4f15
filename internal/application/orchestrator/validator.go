package orchestrator

import (
	"fmt"

	"github.com/aescanero/dagent/internal/application/scheduler"
	"github.com/aescanero/dagent/pkg/domain"
)

// Validator validates workflow structures
type Validator struct {
	maxRetries int
}

// NewValidator creates a new workflow validator. With maxRetries > 0 every
// workflow must register the healer node.
func NewValidator(maxRetries int) *Validator {
	return &Validator{maxRetries: maxRetries}
}

// Validate validates a workflow structure
func (v *Validator) Validate(wf *scheduler.Workflow) error {
	if wf == nil {
		return fmt.Errorf("workflow is nil")
	}

	if wf.Name == "" {
		return fmt.Errorf("workflow name is required")
	}

	if len(wf.Nodes) == 0 {
		return fmt.Errorf("workflow must have at least one node")
	}

	for name, node := range wf.Nodes {
		if name == "" {
			return fmt.Errorf("node name is required")
		}
		if node == nil {
			return fmt.Errorf("invalid node %s: node is nil", name)
		}
	}

	if wf.Entry == "" {
		return fmt.Errorf("entry node is required")
	}
	if _, exists := wf.Nodes[wf.Entry]; !exists {
		return fmt.Errorf("entry node %s not found in workflow", wf.Entry)
	}

	for from, to := range wf.Edges {
		if _, exists := wf.Nodes[from]; !exists {
			return fmt.Errorf("edge references non-existent source node: %s", from)
		}
		if _, exists := wf.Nodes[to]; !exists {
			return fmt.Errorf("edge references non-existent target node: %s", to)
		}
	}

	if v.maxRetries > 0 {
		if _, exists := wf.Nodes[domain.HealerNode]; !exists {
			return fmt.Errorf("workflow retries failed nodes but has no %s node", domain.HealerNode)
		}
	}

	return nil
}
