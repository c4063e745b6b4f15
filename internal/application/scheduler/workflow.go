package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aescanero/dagent/internal/application/healing"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrMaxSteps is returned when a run exceeds the configured step bound.
var ErrMaxSteps = errors.New("workflow exceeded max steps")

// Workflow is a set of named nodes with static edges.
type Workflow struct {
	Name  string
	Entry string
	Nodes map[string]ports.Node
	// Edges maps a node to its default successor. A node without an edge
	// ends the run unless something else routes it.
	Edges map[string]string
}

// RunResult summarizes one Run.
type RunResult struct {
	Steps int
	Path  []string
	Last  domain.NodeOutput
}

// StepObserver is told about every executed step.
type StepObserver func(node string, output domain.NodeOutput, decision healing.Decision)

// Run walks wf from its entry node. After each step the next node is, in
// order: the route set on the state, the output's next_node, the failed node
// when leaving the healer, and the static edge.
//
// An EXHAUSTED step ends the run with domain.ErrRetryExhausted.
func (s *Scheduler) Run(ctx context.Context, wf *Workflow, state *domain.SharedState, observe StepObserver) (*RunResult, error) {
	result := &RunResult{}
	current := wf.Entry

	for current != "" {
		if result.Steps >= s.cfg.MaxSteps {
			return result, fmt.Errorf("%w (%d)", ErrMaxSteps, s.cfg.MaxSteps)
		}

		node, ok := wf.Nodes[current]
		if !ok {
			return result, fmt.Errorf("workflow %s routed to unknown node %s", wf.Name, current)
		}

		output, decision, err := s.RunNode(ctx, current, node, state)
		result.Steps++
		result.Path = append(result.Path, current)
		if err != nil {
			return result, fmt.Errorf("node %s: %w", current, err)
		}
		result.Last = output

		if observe != nil {
			observe(current, output, decision)
		}

		if decision == healing.DecisionExhausted {
			return result, fmt.Errorf("node %s: %w: %s", current, domain.ErrRetryExhausted, output.ErrorMessage())
		}

		current = s.next(wf, current, output, decision, state)
	}

	s.logger.Info("workflow completed",
		zap.String("workflow", wf.Name),
		zap.Int("steps", result.Steps))
	return result, nil
}

func (s *Scheduler) next(wf *Workflow, current string, output domain.NodeOutput, decision healing.Decision, state *domain.SharedState) string {
	var next, failedNode string
	state.Update(func(st *domain.SharedState) {
		next = st.NextNode
		// A route set by a node is consumed once taken. The healer route
		// stays until a passing step clears it.
		if decision == healing.DecisionPass {
			st.NextNode = ""
		}
		if st.ErrorContext != nil {
			failedNode = st.ErrorContext.Node
		}
	})

	switch {
	case next != "":
		return next
	case output.NextNode() != "":
		return output.NextNode()
	case current == domain.HealerNode && failedNode != "":
		return failedNode
	default:
		return wf.Edges[current]
	}
}

// RunParallel runs independent nodes concurrently on one state. Each node
// still takes a slot, so the concurrency limit applies. The first error or
// EXHAUSTED decision cancels the rest.
func (s *Scheduler) RunParallel(ctx context.Context, nodes map[string]ports.Node, state *domain.SharedState) (map[string]domain.NodeOutput, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	outputs := make(map[string]domain.NodeOutput, len(nodes))

	for name, node := range nodes {
		g.Go(func() error {
			output, decision, err := s.RunNode(gctx, name, node, state)
			if err != nil {
				return fmt.Errorf("node %s: %w", name, err)
			}
			mu.Lock()
			outputs[name] = output
			mu.Unlock()
			if decision == healing.DecisionExhausted {
				return fmt.Errorf("node %s: %w: %s", name, domain.ErrRetryExhausted, output.ErrorMessage())
			}
			return nil
		})
	}

	err := g.Wait()
	return outputs, err
}
