package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/dagent/internal/application/nodes"
	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunSubmitRequest represents a run submission request
type RunSubmitRequest struct {
	Workflow nodes.WorkflowSpec `json:"workflow"`
	Inputs   map[string]any     `json:"inputs"`
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// SwitchProviderRequest selects the active provider
type SwitchProviderRequest struct {
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model"`
}

// ResetPoolRequest selects the provider to reset. Empty resets all.
type ResetPoolRequest struct {
	Provider string `json:"provider"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

func abort(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:        code,
			Message:     err.Error(),
			Remediation: string(domain.Classify(err)),
		},
	})
}

// handleHealth reports healthy while some provider can serve requests
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	checks := gin.H{"orchestrator": "ok"}

	if s.credentials != nil {
		if s.credentials.AnyAvailable() {
			checks["credentials"] = "ok"
		} else {
			checks["credentials"] = "exhausted"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if s.scheduler != nil {
		checks["scheduler"] = s.scheduler.Health().GetStatus()
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleSubmitRun builds and starts a workflow run
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	runID, err := s.orchestrator.Submit(c.Request.Context(), req.Workflow, req.Inputs)
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		abort(c, http.StatusUnprocessableEntity, "SUBMISSION_FAILED", err)
		return
	}

	c.JSON(http.StatusAccepted, RunSubmitResponse{
		RunID:       runID,
		Status:      string(domain.RunSubmitted),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListRuns lists stored run ids
func (s *Server) handleListRuns(c *gin.Context) {
	ids, err := s.orchestrator.ListRuns(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, "STORAGE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  ids,
		"total": len(ids),
	})
}

// handleGetRun returns the full run record
func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.orchestrator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			abort(c, http.StatusNotFound, "NOT_FOUND", err)
			return
		}
		abort(c, http.StatusInternalServerError, "STORAGE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleCancelRun cancels an active run
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.orchestrator.CancelRun(c.Request.Context(), runID); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			abort(c, http.StatusNotFound, "NOT_FOUND", err)
			return
		}
		abort(c, http.StatusConflict, "CANCELLATION_FAILED", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"status": "cancelling",
	})
}

// handleGetPool returns the status of every credential source
func (s *Server) handleGetPool(c *gin.Context) {
	provider, model := s.credentials.Active()
	c.JSON(http.StatusOK, gin.H{
		"active":    provider,
		"model":     model,
		"available": s.credentials.AnyAvailable(),
		"providers": s.credentials.Status(),
	})
}

// handleResetPool restores exhausted entries
func (s *Server) handleResetPool(c *gin.Context) {
	var req ResetPoolRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
			return
		}
	}

	if err := s.credentials.Reset(req.Provider); err != nil {
		abort(c, http.StatusNotFound, "UNKNOWN_PROVIDER", err)
		return
	}

	s.logger.Info("credential pool reset", zap.String("provider", req.Provider))
	c.JSON(http.StatusOK, gin.H{"providers": s.credentials.Status()})
}

// handleSwitchProvider changes the active provider
func (s *Server) handleSwitchProvider(c *gin.Context) {
	var req SwitchProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	if _, ok := s.credentials.Source(req.Provider); !ok {
		abort(c, http.StatusNotFound, "UNKNOWN_PROVIDER", errors.New("unknown provider: "+req.Provider))
		return
	}

	if err := s.credentials.Switch(c.Request.Context(), req.Provider, req.Model); err != nil {
		s.logger.Warn("provider switch failed",
			zap.String("provider", req.Provider),
			zap.Error(err))
		abort(c, http.StatusBadGateway, "SWITCH_FAILED", err)
		return
	}

	provider, model := s.credentials.Active()
	c.JSON(http.StatusOK, gin.H{
		"provider": provider,
		"model":    model,
	})
}

// handleListModels lists the models of ?provider=, or of the active one
func (s *Server) handleListModels(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		provider, _ = s.credentials.Active()
	}

	src, ok := s.credentials.Source(provider)
	if !ok {
		abort(c, http.StatusNotFound, "UNKNOWN_PROVIDER", errors.New("unknown provider: "+provider))
		return
	}

	models := []string{}
	if prober, ok := src.(credentials.Prober); ok {
		listed, err := prober.ListModels(c.Request.Context())
		if err != nil {
			abort(c, http.StatusBadGateway, "LIST_FAILED", err)
			return
		}
		models = listed
	} else if m := src.Model(); m != "" {
		models = append(models, m)
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": provider,
		"selected": src.Model(),
		"models":   models,
	})
}

// handleGetScaling returns the adopted concurrency policy
func (s *Server) handleGetScaling(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policy": s.scheduler.Policy(),
		"health": s.scheduler.Health().GetStatus(),
	})
}
