// Package scheduler drives node execution under a concurrency bound.
//
// The scheduler:
//   - Refreshes its concurrency limit from the resource monitor and
//     announces every change to an observer
//   - Bounds in-flight node executions with a resizable slot gate; waiters
//     block until a slot frees up or their context ends
//   - Merges each node output into the shared state and applies the
//     healing middleware under the same lock
//   - Walks workflows by following healer routes, node-requested routes and
//     static edges
//
// The health monitor periodically reports slot usage.
package scheduler
