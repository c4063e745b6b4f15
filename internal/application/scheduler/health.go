package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically reports slot usage of the scheduler.
type HealthMonitor struct {
	scheduler *Scheduler
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// HealthStatus is a point-in-time view of the scheduler.
type HealthStatus struct {
	MaxConcurrency int       `json:"max_concurrency"`
	InFlight       int       `json:"in_flight"`
	LoadLevel      string    `json:"load_level"`
	Saturated      bool      `json:"saturated"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(scheduler *Scheduler, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		scheduler: scheduler,
		interval:  interval,
		logger:    logger,
	}
}

// Start starts the health monitor
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})

	go h.run(h.stopCh)
}

// Stop stops the health monitor
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

func (h *HealthMonitor) run(stopCh chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.logger.Info("scheduler health check",
		zap.Int("in_flight", status.InFlight),
		zap.Int("max_concurrency", status.MaxConcurrency),
		zap.String("load_level", status.LoadLevel))

	h.scheduler.metrics.RecordInFlight(status.InFlight, status.MaxConcurrency)

	if status.Saturated {
		h.logger.Warn("all slots are busy - new nodes are waiting",
			zap.Int("max_concurrency", status.MaxConcurrency))
	}
}

// GetStatus returns the current health status
func (h *HealthMonitor) GetStatus() *HealthStatus {
	inFlight, limit := h.scheduler.slots.usage()
	policy := h.scheduler.Policy()

	return &HealthStatus{
		MaxConcurrency: limit,
		InFlight:       inFlight,
		LoadLevel:      string(policy.LoadLevel),
		Saturated:      inFlight >= limit,
		Timestamp:      time.Now(),
	}
}
