package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dagent/internal/application/gate"
	"github.com/aescanero/dagent/internal/application/healing"
	"github.com/aescanero/dagent/internal/application/scheduler"
	eventsmemory "github.com/aescanero/dagent/pkg/adapters/events/memory"
	storagememory "github.com/aescanero/dagent/pkg/adapters/storage/memory"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAdvisor struct{}

func (staticAdvisor) EstimateConcurrencyLimit(ctx context.Context, base int) (int, domain.LoadLevel, error) {
	return base, domain.LoadModerate, nil
}

type eventLog struct {
	mu    sync.Mutex
	types []domain.EventType
}

func (l *eventLog) handle(ctx context.Context, e domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.Type)
	return nil
}

func (l *eventLog) all() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.EventType(nil), l.types...)
}

func okNode(extra map[string]any) ports.Node {
	return ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
		out := domain.NodeOutput{domain.KeyStatus: "ok"}
		for k, v := range extra {
			out[k] = v
		}
		return out, nil
	})
}

func newManager(t *testing.T, maxRetries int, timeout time.Duration) (*Manager, *eventLog) {
	t.Helper()
	bus := eventsmemory.NewInMemoryEventBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	log := &eventLog{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx, RunsTopic, log.handle))

	sched := scheduler.New(scheduler.Config{BaseConcurrency: 2, MaxSteps: 20}, staticAdvisor{}, healing.NewMiddleware(maxRetries, nil), nil, nil, nil)
	m := NewManager(sched, nil, bus, storagememory.NewInMemoryStateStorage(), nil, NewValidator(maxRetries), nil, timeout)
	return m, log
}

func wait(t *testing.T, m *Manager, runID string) *domain.RunState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := m.Wait(ctx, runID)
	require.NoError(t, err)
	return run
}

func TestManager_CompletesRun(t *testing.T) {
	m, log := newManager(t, 2, time.Minute)

	wf := &scheduler.Workflow{
		Name:  "review",
		Entry: "coder",
		Nodes: map[string]ports.Node{
			"coder":           okNode(map[string]any{"agent_economy": map[string]any{"budget": 10}}),
			"reviewer":        okNode(nil),
			domain.HealerNode: okNode(nil),
		},
		Edges: map[string]string{"coder": "reviewer"},
	}

	runID, err := m.SubmitWorkflow(context.Background(), wf, map[string]any{"task": "add tests"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run := wait(t, m, runID)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, []string{"coder", "reviewer"}, run.Steps)
	assert.Empty(t, run.Error)
	assert.NotNil(t, run.CompletedAt)

	st := run.State.Clone()
	assert.Equal(t, "add tests", st.Domain["task"])
	assert.Equal(t, map[string]any{"budget": 10}, st.Domain["agent_economy"])

	assert.Eventually(t, func() bool {
		types := log.all()
		return len(types) > 0 && types[len(types)-1] == domain.EventRunCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.EventType{
		domain.EventRunSubmitted,
		domain.EventNodeStarted, domain.EventNodeCompleted,
		domain.EventNodeStarted, domain.EventNodeCompleted,
		domain.EventRunCompleted,
	}, log.all())
}

func TestManager_ExhaustedRunRequiresIntervention(t *testing.T) {
	m, log := newManager(t, 1, time.Minute)

	failing := ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
		return domain.Failure(errors.New("SyntaxError")), nil
	})
	wf := &scheduler.Workflow{
		Name:  "build",
		Entry: "coder",
		Nodes: map[string]ports.Node{"coder": failing, domain.HealerNode: okNode(nil)},
	}

	runID, err := m.SubmitWorkflow(context.Background(), wf, nil)
	require.NoError(t, err)

	run := wait(t, m, runID)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.RemediationIntervention, run.Remediation)
	assert.Contains(t, run.Error, "SyntaxError")
	assert.Equal(t, []string{"coder", domain.HealerNode, "coder"}, run.Steps)

	assert.Eventually(t, func() bool {
		types := log.all()
		return len(types) > 0 && types[len(types)-1] == domain.EventRunFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, log.all(), domain.EventNodeHealing)
	assert.Contains(t, log.all(), domain.EventNodeFailed)
}

func TestManager_RefusalIsTerminal(t *testing.T) {
	m, _ := newManager(t, 2, time.Minute)

	g := gate.New(gate.DefaultUnsafeTools, nil, nil)
	pushes := 0
	tool := ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
		_, err := g.Execute(ctx, "git_push", nil, func(ctx context.Context, args map[string]any) (any, error) {
			pushes++
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		return domain.NodeOutput{domain.KeyStatus: "ok"}, nil
	})
	wf := &scheduler.Workflow{
		Name:  "ship",
		Entry: "push",
		Nodes: map[string]ports.Node{"push": tool, domain.HealerNode: okNode(nil)},
	}

	runID, err := m.SubmitWorkflow(context.Background(), wf, nil)
	require.NoError(t, err)

	run := wait(t, m, runID)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.RemediationIntervention, run.Remediation)
	assert.Zero(t, pushes)
}

func TestManager_CancelRun(t *testing.T) {
	m, log := newManager(t, 0, time.Minute)

	started := make(chan struct{})
	blocking := ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	wf := &scheduler.Workflow{Name: "slow", Entry: "wait", Nodes: map[string]ports.Node{"wait": blocking}}

	runID, err := m.SubmitWorkflow(context.Background(), wf, nil)
	require.NoError(t, err)
	<-started

	require.NoError(t, m.CancelRun(context.Background(), runID))

	run := wait(t, m, runID)
	assert.Equal(t, domain.RunCancelled, run.Status)

	err = m.CancelRun(context.Background(), runID)
	assert.ErrorIs(t, err, ErrRunTerminal)

	assert.Eventually(t, func() bool {
		types := log.all()
		return len(types) > 0 && types[len(types)-1] == domain.EventRunCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_RunTimeout(t *testing.T) {
	m, _ := newManager(t, 0, 50*time.Millisecond)

	blocking := ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	wf := &scheduler.Workflow{Name: "slow", Entry: "wait", Nodes: map[string]ports.Node{"wait": blocking}}

	runID, err := m.SubmitWorkflow(context.Background(), wf, nil)
	require.NoError(t, err)

	run := wait(t, m, runID)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "run timeout", run.Error)
	assert.Equal(t, domain.RemediationAutomatic, run.Remediation)
}

func TestManager_RejectsInvalidWorkflow(t *testing.T) {
	m, _ := newManager(t, 2, time.Minute)

	_, err := m.SubmitWorkflow(context.Background(), &scheduler.Workflow{
		Name:  "broken",
		Entry: "missing",
		Nodes: map[string]ports.Node{"coder": okNode(nil), domain.HealerNode: okNode(nil)},
	}, nil)
	assert.ErrorContains(t, err, "validation failed")
}

func TestManager_UnknownRun(t *testing.T) {
	m, _ := newManager(t, 0, time.Minute)

	_, err := m.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	err = m.CancelRun(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestManager_ShutdownCancelsActiveRuns(t *testing.T) {
	m, _ := newManager(t, 0, time.Minute)

	var started sync.WaitGroup
	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		started.Add(1)
		node := ports.NodeFunc(func(ctx context.Context, st *domain.SharedState) (domain.NodeOutput, error) {
			started.Done()
			<-ctx.Done()
			return nil, ctx.Err()
		})
		wf := &scheduler.Workflow{Name: fmt.Sprintf("slow-%d", i), Entry: "wait", Nodes: map[string]ports.Node{"wait": node}}
		id, err := m.SubmitWorkflow(context.Background(), wf, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	started.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	for _, id := range ids {
		run, err := m.GetStatus(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.RunCancelled, run.Status)
	}
}

func TestManager_ListRuns(t *testing.T) {
	m, _ := newManager(t, 0, time.Minute)

	wf := &scheduler.Workflow{Name: "one", Entry: "a", Nodes: map[string]ports.Node{"a": okNode(nil)}}
	id, err := m.SubmitWorkflow(context.Background(), wf, nil)
	require.NoError(t, err)
	wait(t, m, id)

	ids, err := m.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}
