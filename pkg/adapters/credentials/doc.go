// Package credentials manages backend credentials with liveness tracking.
//
// A Pool is an ordered set of clients; order is failover priority. Entries
// are never removed, only marked EXHAUSTED (or COOLDOWN) until Reset.
// A LocalEndpoint is a single-entry pool for a local provider with an HTTP
// connectivity probe and model inventory. The Manager switches the active
// provider and model while keeping the same status contract.
package credentials
