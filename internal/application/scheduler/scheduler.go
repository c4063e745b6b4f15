package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/dagent/internal/application/healing"
	"github.com/aescanero/dagent/pkg/adapters/metrics/noop"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

// Config holds scheduler settings.
type Config struct {
	// BaseConcurrency is the base limit handed to the advisor.
	BaseConcurrency int
	// MaxSteps bounds the nodes executed by one Run.
	MaxSteps int
	// ScalingInterval is the period of the scaling loop.
	ScalingInterval time.Duration
	// ScalingTimeout bounds one UpdateScalingPolicy call of the loop.
	ScalingTimeout time.Duration
	// HealthInterval is the period of the health monitor.
	HealthInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.BaseConcurrency < 1 {
		c.BaseConcurrency = 1
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 50
	}
	if c.ScalingInterval <= 0 {
		c.ScalingInterval = 5 * time.Second
	}
	if c.ScalingTimeout <= 0 {
		c.ScalingTimeout = 2 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
}

// Scheduler executes workflow nodes under a monitor-driven concurrency limit.
type Scheduler struct {
	cfg     Config
	advisor ports.ConcurrencyAdvisor
	healer  *healing.Middleware
	notify  ports.Notifier
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor
	slots   *slots

	// scaleMu serializes UpdateScalingPolicy so notifications follow the
	// order of adopted policies.
	scaleMu sync.Mutex
	mu      sync.RWMutex
	policy  domain.ConcurrencyPolicy

	loopMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a new scheduler. notify and metrics may be nil.
func New(
	cfg Config,
	advisor ports.ConcurrencyAdvisor,
	healer *healing.Middleware,
	notify ports.Notifier,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Scheduler {
	cfg.setDefaults()
	if notify == nil {
		notify = func(string) {}
	}
	if metrics == nil {
		metrics = noop.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		cfg:     cfg,
		advisor: advisor,
		healer:  healer,
		notify:  notify,
		metrics: metrics,
		logger:  logger,
		slots:   newSlots(cfg.BaseConcurrency),
		policy: domain.ConcurrencyPolicy{
			MaxConcurrency: cfg.BaseConcurrency,
			LoadLevel:      domain.LoadModerate,
		},
	}
	s.health = NewHealthMonitor(s, cfg.HealthInterval, logger)
	return s
}

// Policy returns the current concurrency policy.
func (s *Scheduler) Policy() domain.ConcurrencyPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Health returns the health monitor of the scheduler.
func (s *Scheduler) Health() *HealthMonitor {
	return s.health
}

// UpdateScalingPolicy asks the advisor for a limit and adopts it when it
// differs from the current one. The observer is notified exactly on change.
// Advisor failures are returned and leave the policy untouched.
func (s *Scheduler) UpdateScalingPolicy(ctx context.Context) error {
	s.scaleMu.Lock()
	defer s.scaleMu.Unlock()

	limit, level, err := s.advisor.EstimateConcurrencyLimit(ctx, s.cfg.BaseConcurrency)
	if err != nil {
		return fmt.Errorf("failed to estimate concurrency limit: %w", err)
	}
	if limit < 1 {
		return fmt.Errorf("advisor recommended invalid concurrency limit %d", limit)
	}

	s.mu.Lock()
	previous := s.policy.MaxConcurrency
	changed := limit != previous
	s.policy.LoadLevel = level
	if changed {
		s.policy.MaxConcurrency = limit
		s.slots.setLimit(limit)
	}
	policy := s.policy
	s.mu.Unlock()

	if !changed {
		return nil
	}

	s.logger.Info("concurrency policy changed",
		zap.Int("from", previous),
		zap.Int("to", limit),
		zap.String("load_level", string(level)))
	s.metrics.RecordScaling(policy)
	s.notify(fmt.Sprintf("Scaling to %dx", limit))
	return nil
}

// ProcessNodeOutput merges the domain fields of output into state and then
// applies the healing middleware to the same output and state. Both steps
// run under the state lock, so concurrent completions never interleave.
func (s *Scheduler) ProcessNodeOutput(nodeName string, output domain.NodeOutput, state *domain.SharedState) (domain.NodeOutput, healing.Decision) {
	var decision healing.Decision
	state.Update(func(st *domain.SharedState) {
		failedNode := nodeName
		if nodeName == domain.HealerNode && st.ErrorContext != nil {
			// A failing healer keeps pointing at the node it was healing.
			failedNode = st.ErrorContext.Node
		}
		st.MergeDomain(output.DomainFields())
		output, decision = s.healer.ProcessResponse(output, st)
		if decision == healing.DecisionRetry && st.ErrorContext != nil {
			st.ErrorContext.Node = failedNode
		}
	})

	s.metrics.RecordHealingDecision(string(decision))
	s.logger.Debug("node output processed",
		zap.String("node", nodeName),
		zap.String("decision", string(decision)))
	return output, decision
}

// RunNode runs one node inside a slot and processes its output.
//
// A node error that needs external intervention (refusal, pool or cascade
// exhaustion) is returned as is and never reaches the middleware. Any other
// node error is converted into a failed output.
func (s *Scheduler) RunNode(ctx context.Context, name string, node ports.Node, state *domain.SharedState) (domain.NodeOutput, healing.Decision, error) {
	if err := s.slots.acquire(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to acquire slot for %s: %w", name, err)
	}
	s.recordInFlight()

	start := time.Now()
	output, err := s.invoke(ctx, name, node, state)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.RecordNodeExecuted(name, "cancelled", duration)
			return nil, "", ctxErr
		}
		if domain.Classify(err) == domain.RemediationIntervention {
			s.metrics.RecordNodeExecuted(name, "error", duration)
			s.logger.Error("node failed terminally",
				zap.String("node", name),
				zap.Error(err))
			return nil, "", err
		}
		output = domain.Failure(err)
	}
	if output == nil {
		output = domain.NodeOutput{}
	}

	status := "completed"
	if output.Failed() {
		status = domain.StatusFailed
	}
	s.metrics.RecordNodeExecuted(name, status, duration)
	s.logger.Debug("node executed",
		zap.String("node", name),
		zap.String("status", status),
		zap.Duration("duration", duration))

	output, decision := s.ProcessNodeOutput(name, output, state)
	return output, decision, nil
}

// invoke runs node and gives its slot back. A panic becomes a failed
// output so the healer can retry the node.
func (s *Scheduler) invoke(ctx context.Context, name string, node ports.Node, state *domain.SharedState) (output domain.NodeOutput, err error) {
	defer func() {
		s.slots.release()
		s.recordInFlight()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("node panicked",
				zap.String("node", name),
				zap.Any("panic", r))
			output, err = domain.Failure(fmt.Errorf("node %s panicked: %v", name, r)), nil
		}
	}()
	return node.Run(ctx, state)
}

// Start runs an initial scaling update and then the scaling loop and the
// health monitor. A failing initial update is returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.running {
		return nil
	}

	if err := s.UpdateScalingPolicy(ctx); err != nil {
		return err
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.scalingLoop(s.stopCh)
	s.health.Start()

	s.logger.Info("scheduler started",
		zap.Int("base_concurrency", s.cfg.BaseConcurrency),
		zap.Int("max_concurrency", s.Policy().MaxConcurrency),
		zap.Duration("scaling_interval", s.cfg.ScalingInterval))
	return nil
}

// Shutdown stops the scaling loop and the health monitor. Running nodes are
// not interrupted.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.loopMu.Lock()
	if !s.running {
		s.loopMu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.loopMu.Unlock()

	s.health.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

func (s *Scheduler) scalingLoop(stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ScalingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ScalingTimeout)
			if err := s.UpdateScalingPolicy(ctx); err != nil {
				s.logger.Warn("scaling update failed, keeping current policy",
					zap.Int("max_concurrency", s.Policy().MaxConcurrency),
					zap.Error(err))
			}
			cancel()
		}
	}
}

func (s *Scheduler) recordInFlight() {
	inFlight, limit := s.slots.usage()
	s.metrics.RecordInFlight(inFlight, limit)
}
