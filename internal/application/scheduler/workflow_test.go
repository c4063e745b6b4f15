package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aescanero/dagent/internal/application/healing"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(extra map[string]any) ports.Node {
	return ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
		out := domain.NodeOutput{domain.KeyStatus: "ok"}
		for k, v := range extra {
			out[k] = v
		}
		return out, nil
	})
}

// flaky fails the first n calls.
func flaky(n int) ports.Node {
	calls := 0
	return ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
		calls++
		if calls <= n {
			return domain.Failure(fmt.Errorf("attempt %d: SyntaxError", calls)), nil
		}
		return domain.NodeOutput{domain.KeyStatus: "ok"}, nil
	})
}

func TestRun_HealsAndResumes(t *testing.T) {
	s := newScheduler(t, 1, 2, &fakeAdvisor{limit: 1}, nil)
	wf := &Workflow{
		Name:  "build",
		Entry: "coder",
		Nodes: map[string]ports.Node{
			"coder":           flaky(1),
			domain.HealerNode: ok(nil),
			"reviewer":        ok(map[string]any{"review": "lgtm"}),
		},
		Edges: map[string]string{"coder": "reviewer"},
	}
	state := domain.NewSharedState(nil)

	var decisions []healing.Decision
	result, err := s.Run(context.Background(), wf, state, func(node string, out domain.NodeOutput, d healing.Decision) {
		decisions = append(decisions, d)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"coder", domain.HealerNode, "coder", "reviewer"}, result.Path)
	assert.Equal(t, []healing.Decision{healing.DecisionRetry, healing.DecisionPass, healing.DecisionPass, healing.DecisionPass}, decisions)

	st := state.Clone()
	assert.Equal(t, 1, st.RetryCount)
	assert.Empty(t, st.NextNode)
	assert.Equal(t, "lgtm", st.Domain["review"])
}

func TestRun_ExhaustsBudget(t *testing.T) {
	s := newScheduler(t, 1, 2, &fakeAdvisor{limit: 1}, nil)
	wf := &Workflow{
		Name:  "build",
		Entry: "coder",
		Nodes: map[string]ports.Node{
			"coder":           flaky(100),
			domain.HealerNode: ok(nil),
		},
	}
	state := domain.NewSharedState(nil)

	result, err := s.Run(context.Background(), wf, state, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetryExhausted)
	assert.Equal(t, []string{"coder", domain.HealerNode, "coder", domain.HealerNode, "coder"}, result.Path)
	assert.Equal(t, 2, state.Clone().RetryCount)
}

func TestRun_FailingHealerKeepsTarget(t *testing.T) {
	s := newScheduler(t, 1, 3, &fakeAdvisor{limit: 1}, nil)
	wf := &Workflow{
		Name:  "build",
		Entry: "coder",
		Nodes: map[string]ports.Node{
			"coder":           flaky(1),
			domain.HealerNode: flaky(1),
		},
	}

	result, err := s.Run(context.Background(), wf, domain.NewSharedState(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"coder", domain.HealerNode, domain.HealerNode, "coder"}, result.Path)
}

func TestRun_OutputRoute(t *testing.T) {
	s := newScheduler(t, 1, 1, &fakeAdvisor{limit: 1}, nil)
	wf := &Workflow{
		Name:  "route",
		Entry: "planner",
		Nodes: map[string]ports.Node{
			"planner": ok(map[string]any{domain.KeyNextNode: "analyst"}),
			"coder":   ok(nil),
			"analyst": ok(nil),
		},
		Edges: map[string]string{"planner": "coder"},
	}

	result, err := s.Run(context.Background(), wf, domain.NewSharedState(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"planner", "analyst"}, result.Path)
}

func TestRun_MaxSteps(t *testing.T) {
	s := New(Config{BaseConcurrency: 1, MaxSteps: 5}, &fakeAdvisor{limit: 1}, healing.NewMiddleware(0, nil), nil, nil, nil)
	wf := &Workflow{
		Name:  "loop",
		Entry: "a",
		Nodes: map[string]ports.Node{"a": ok(nil), "b": ok(nil)},
		Edges: map[string]string{"a": "b", "b": "a"},
	}

	result, err := s.Run(context.Background(), wf, domain.NewSharedState(nil), nil)
	assert.ErrorIs(t, err, ErrMaxSteps)
	assert.Equal(t, 5, result.Steps)
}

func TestRun_UnknownNode(t *testing.T) {
	s := newScheduler(t, 1, 0, &fakeAdvisor{limit: 1}, nil)
	wf := &Workflow{
		Name:  "broken",
		Entry: "a",
		Nodes: map[string]ports.Node{"a": ok(map[string]any{domain.KeyNextNode: "ghost"})},
	}

	_, err := s.Run(context.Background(), wf, domain.NewSharedState(nil), nil)
	assert.Error(t, err)
}

func TestRun_PoolExhaustionSurfaces(t *testing.T) {
	s := newScheduler(t, 1, 3, &fakeAdvisor{limit: 1}, nil)
	wf := &Workflow{
		Name:  "llm",
		Entry: "a",
		Nodes: map[string]ports.Node{
			"a": ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
				return nil, fmt.Errorf("anthropic: %w", domain.ErrPoolExhausted)
			}),
			domain.HealerNode: ok(nil),
		},
	}

	_, err := s.Run(context.Background(), wf, domain.NewSharedState(nil), nil)
	assert.True(t, errors.Is(err, domain.ErrPoolExhausted))
	assert.Equal(t, domain.RemediationIntervention, domain.Classify(err))
}
