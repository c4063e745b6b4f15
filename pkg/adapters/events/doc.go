// Package events provides event bus implementations.
//
// Both implementations fan out: every subscriber of a topic receives every
// event published after it subscribed.
//
// Implementations:
//   - redis: Redis Streams read with XREAD
//   - memory: In-memory queues, the default when Redis is disabled
package events
