// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Run submission, status and cancellation
//   - Credential pool diagnostics, reset and provider switching
//   - The current concurrency policy
//   - Health checks and Prometheus metrics
package http
