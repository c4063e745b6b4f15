// Package orchestrator implements the run lifecycle on top of the scheduler.
//
// The orchestrator manager coordinates workflow runs by:
//   - Validating workflow structure before anything executes
//   - Managing run lifecycle (submit, status, cancel, timeout)
//   - Publishing run and node events to the event bus
//   - Persisting run records and their shared state via state storage
//
// Failed runs carry the remediation class of their terminal error so a
// report consumer can tell automatic recovery from required intervention.
package orchestrator
