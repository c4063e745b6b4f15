package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dagent/internal/application/healing"
	"github.com/aescanero/dagent/internal/application/nodes"
	"github.com/aescanero/dagent/internal/application/scheduler"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunsTopic is the event bus topic carrying run and node events.
const RunsTopic = "runs"

// ErrRunTerminal is returned when cancelling a run that already finished.
var ErrRunTerminal = errors.New("run already in terminal state")

// Manager coordinates workflow runs
type Manager struct {
	scheduler *scheduler.Scheduler
	builder   *nodes.Builder
	eventBus  ports.EventBus
	storage   ports.StateStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	// Track active runs
	runs sync.Map // map[string]*runContext
	wg   sync.WaitGroup

	runTimeout time.Duration
}

// runContext holds the live record of a single run
type runContext struct {
	mu         sync.Mutex
	record     domain.RunState
	cancelFunc context.CancelFunc
	cancelled  bool
}

// NewManager creates a new orchestrator manager
func NewManager(
	sched *scheduler.Scheduler,
	builder *nodes.Builder,
	eventBus ports.EventBus,
	storage ports.StateStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	runTimeout time.Duration,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		scheduler:  sched,
		builder:    builder,
		eventBus:   eventBus,
		storage:    storage,
		metrics:    metrics,
		validator:  validator,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Submit builds spec and submits it for execution
func (m *Manager) Submit(ctx context.Context, spec nodes.WorkflowSpec, inputs map[string]any) (string, error) {
	if m.builder == nil {
		return "", fmt.Errorf("no workflow builder configured")
	}
	wf, err := m.builder.Build(spec)
	if err != nil {
		return "", fmt.Errorf("failed to build workflow: %w", err)
	}
	return m.SubmitWorkflow(ctx, wf, inputs)
}

// SubmitWorkflow validates wf and starts a run seeded with inputs
func (m *Manager) SubmitWorkflow(ctx context.Context, wf *scheduler.Workflow, inputs map[string]any) (string, error) {
	if err := m.validator.Validate(wf); err != nil {
		m.logger.Error("workflow validation failed",
			zap.String("workflow", workflowName(wf)),
			zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}

	runID := uuid.New().String()
	state := domain.NewSharedState(inputs)

	rc := &runContext{
		record: domain.RunState{
			RunID:       runID,
			Workflow:    wf.Name,
			Status:      domain.RunSubmitted,
			State:       state,
			SubmittedAt: time.Now(),
		},
	}

	if err := m.save(ctx, rc); err != nil {
		m.logger.Error("failed to save initial run state",
			zap.String("run_id", runID),
			zap.Error(err))
		return "", err
	}

	m.publish(ctx, domain.EventRunSubmitted, runID, "", map[string]any{
		"workflow": wf.Name,
		"inputs":   inputs,
	})

	var runCtx context.Context
	var cancel context.CancelFunc
	if m.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), m.runTimeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}
	rc.cancelFunc = cancel
	m.runs.Store(runID, rc)

	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("workflow", wf.Name))

	m.wg.Add(1)
	go m.execute(runCtx, rc, wf)

	return runID, nil
}

// GetStatus retrieves the current record of a run
func (m *Manager) GetStatus(ctx context.Context, runID string) (*domain.RunState, error) {
	run, err := m.storage.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the ids of every stored run
func (m *Manager) ListRuns(ctx context.Context) ([]string, error) {
	ids, err := m.storage.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}

// CancelRun cancels an active run. The run records the cancelled status once
// its current node returns.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	val, ok := m.runs.Load(runID)
	if !ok {
		run, err := m.storage.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		if run.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrRunTerminal, run.Status)
		}
		return fmt.Errorf("run %s is not active on this instance", runID)
	}

	rc := val.(*runContext)
	rc.mu.Lock()
	if rc.record.Status.Terminal() {
		status := rc.record.Status
		rc.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunTerminal, status)
	}
	rc.cancelled = true
	rc.mu.Unlock()

	rc.cancelFunc()

	m.logger.Info("run cancellation requested",
		zap.String("run_id", runID))
	return nil
}

// Shutdown cancels every active run and waits for them to record their
// final state
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.runs.Range(func(key, value any) bool {
		rc := value.(*runContext)
		rc.mu.Lock()
		rc.cancelled = true
		rc.mu.Unlock()
		rc.cancelFunc()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	case <-ctx.Done():
		m.logger.Warn("orchestrator manager shutdown timeout")
		return ctx.Err()
	}
}

// Wait blocks until runID is no longer active or ctx is done. It is used by
// callers that need a run's final record.
func (m *Manager) Wait(ctx context.Context, runID string) (*domain.RunState, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, active := m.runs.Load(runID); !active {
			return m.GetStatus(ctx, runID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) execute(ctx context.Context, rc *runContext, wf *scheduler.Workflow) {
	defer m.wg.Done()
	defer rc.cancelFunc()

	runID := rc.record.RunID
	started := time.Now()

	rc.mu.Lock()
	rc.record.Status = domain.RunRunning
	rc.record.StartedAt = &started
	rc.mu.Unlock()
	m.saveLogged(rc)

	observed := m.observeStarts(runID, wf)
	result, err := m.scheduler.Run(ctx, observed, rc.record.State, m.observer(rc))

	completed := time.Now()
	rc.mu.Lock()
	if result != nil {
		rc.record.Steps = result.Path
	}
	rc.record.CompletedAt = &completed
	switch {
	case err == nil:
		rc.record.Status = domain.RunCompleted
	case rc.cancelled:
		rc.record.Status = domain.RunCancelled
		rc.record.Error = "run cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		rc.record.Status = domain.RunFailed
		rc.record.Error = "run timeout"
		rc.record.Remediation = domain.RemediationAutomatic
	default:
		rc.record.Status = domain.RunFailed
		rc.record.Error = err.Error()
		rc.record.Remediation = domain.Classify(err)
	}
	status := rc.record.Status
	record := rc.record
	rc.mu.Unlock()

	m.saveLogged(rc)
	m.runs.Delete(runID)

	if m.metrics != nil {
		m.metrics.RecordRunCompleted(string(status), completed.Sub(started))
	}

	data := map[string]any{"steps": record.Steps}
	eventType := domain.EventRunCompleted
	switch status {
	case domain.RunFailed:
		eventType = domain.EventRunFailed
		data["error"] = record.Error
		data["remediation"] = string(record.Remediation)
	case domain.RunCancelled:
		eventType = domain.EventRunCancelled
	}
	m.publish(context.Background(), eventType, runID, "", data)

	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Int("steps", len(record.Steps)),
		zap.Duration("duration", completed.Sub(started)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err), zap.String("remediation", string(record.Remediation)))
		m.logger.Warn("run finished without completing", fields...)
		return
	}
	m.logger.Info("run completed", fields...)
}

// observeStarts wraps every node so a node.started event precedes it.
func (m *Manager) observeStarts(runID string, wf *scheduler.Workflow) *scheduler.Workflow {
	wrapped := &scheduler.Workflow{
		Name:  wf.Name,
		Entry: wf.Entry,
		Nodes: make(map[string]ports.Node, len(wf.Nodes)),
		Edges: wf.Edges,
	}
	for name, node := range wf.Nodes {
		wrapped.Nodes[name] = ports.NodeFunc(func(ctx context.Context, state *domain.SharedState) (domain.NodeOutput, error) {
			m.publish(ctx, domain.EventNodeStarted, runID, name, nil)
			return node.Run(ctx, state)
		})
	}
	return wrapped
}

func (m *Manager) observer(rc *runContext) scheduler.StepObserver {
	return func(node string, output domain.NodeOutput, decision healing.Decision) {
		rc.mu.Lock()
		rc.record.Steps = append(rc.record.Steps, node)
		runID := rc.record.RunID
		rc.mu.Unlock()

		data := map[string]any{
			"status":   output.Status(),
			"decision": string(decision),
		}
		eventType := domain.EventNodeCompleted
		switch decision {
		case healing.DecisionRetry:
			eventType = domain.EventNodeHealing
			data["error"] = output.ErrorMessage()
		case healing.DecisionExhausted:
			eventType = domain.EventNodeFailed
			data["error"] = output.ErrorMessage()
		}
		m.publish(context.Background(), eventType, runID, node, data)
		m.saveLogged(rc)
	}
}

func (m *Manager) publish(ctx context.Context, eventType domain.EventType, runID, node string, data map[string]any) {
	if m.eventBus == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Node:      node,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := m.eventBus.Publish(ctx, RunsTopic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("run_id", runID),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

func (m *Manager) save(ctx context.Context, rc *runContext) error {
	rc.mu.Lock()
	record := rc.record
	record.Steps = append([]string(nil), rc.record.Steps...)
	rc.mu.Unlock()

	if err := m.storage.SaveRun(ctx, &record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (m *Manager) saveLogged(rc *runContext) {
	if err := m.save(context.Background(), rc); err != nil {
		m.logger.Error("failed to persist run state",
			zap.String("run_id", rc.record.RunID),
			zap.Error(err))
	}
}

func workflowName(wf *scheduler.Workflow) string {
	if wf == nil {
		return ""
	}
	return wf.Name
}
