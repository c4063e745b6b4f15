package healing

import (
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"go.uber.org/zap"
)

// Decision is the outcome of ProcessResponse.
type Decision string

const (
	DecisionPass      Decision = "PASS"
	DecisionRetry     Decision = "RETRY"
	DecisionExhausted Decision = "EXHAUSTED"
)

// CategoryNodeFailure is the error category of a failed node output.
const CategoryNodeFailure = "node_failure"

// Middleware holds the retry budget. It keeps no per-run state.
type Middleware struct {
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger
}

// NewMiddleware creates a new healing middleware
func NewMiddleware(maxRetries int, logger *zap.Logger) *Middleware {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		maxRetries: maxRetries,
		now:        time.Now,
		logger:     logger,
	}
}

// MaxRetries returns the configured retry budget.
func (m *Middleware) MaxRetries() int {
	return m.maxRetries
}

// ProcessResponse inspects output and mutates state accordingly. The output
// is returned as given. Callers serialize access to state.
func (m *Middleware) ProcessResponse(output domain.NodeOutput, state *domain.SharedState) (domain.NodeOutput, Decision) {
	if !output.Failed() {
		state.ClearHealerRoute()
		return output, DecisionPass
	}

	if state.RetryCount >= m.maxRetries {
		state.ClearHealerRoute()
		m.logger.Warn("retry budget exhausted",
			zap.Int("retry_count", state.RetryCount),
			zap.Int("max_retries", m.maxRetries),
			zap.String("error", output.ErrorMessage()))
		return output, DecisionExhausted
	}

	state.RetryCount++
	state.RouteToHealer()
	state.ErrorContext = &domain.ErrorContext{
		Message:   errorMessage(output),
		Category:  CategoryNodeFailure,
		Attempt:   state.RetryCount,
		Timestamp: m.now(),
	}

	m.logger.Info("routing failed output to healer",
		zap.Int("retry_count", state.RetryCount),
		zap.Int("max_retries", m.maxRetries),
		zap.String("error", state.ErrorContext.Message))
	return output, DecisionRetry
}

func errorMessage(output domain.NodeOutput) string {
	if msg := output.ErrorMessage(); msg != "" {
		return msg
	}
	return "node reported failure without error detail"
}
