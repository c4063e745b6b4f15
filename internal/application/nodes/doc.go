// Package nodes provides the built-in workflow nodes.
//
//   - LLMNode prompts a backend with a value read from the shared state
//   - HealerNode asks a backend to repair the failure recorded in the
//     state's error context
//   - ToolNode runs a tool behind the unsafe-operation gate
//
// Errors that need external intervention are returned as errors so the
// scheduler ends the branch. Everything else becomes a failed output and is
// handled by the healing middleware.
package nodes
