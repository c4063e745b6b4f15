// Package noop provides a MetricsCollector that discards everything.
package noop

import (
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
)

// Collector discards all metrics.
type Collector struct{}

var _ ports.MetricsCollector = Collector{}

// New returns a collector that records nothing.
func New() Collector { return Collector{} }

func (Collector) RecordScaling(domain.ConcurrencyPolicy) {}
func (Collector) RecordResourceSnapshot(domain.ResourceSnapshot) {}
func (Collector) RecordNodeExecuted(string, string, time.Duration) {}
func (Collector) RecordHealingDecision(string) {}
func (Collector) RecordInFlight(int, int) {}
func (Collector) RecordCredentialStatus(string, []domain.EntryStatus) {}
func (Collector) RecordBackendCall(string, string, time.Duration, error) {}
func (Collector) RecordFallback(string, string) {}
func (Collector) RecordRunCompleted(string, time.Duration) {}
