// Package llm provides the backend implementations behind the uniform
// generate contract.
//
// The factory resolves the configured backend once at startup.
// Supported providers:
//   - anthropic: hosted primary over a pool of API keys
//   - ollama: local secondary
//   - lmstudio: local alternate (OpenAI-compatible API)
//   - hybrid: ordered cascade over any of the above
//
// Every concrete backend is wrapped with call metrics before it is handed
// to the hybrid composite, so fallbacks show up per backend.
package llm
