// Package storage provides run state storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory, the default when Redis is disabled
package storage
