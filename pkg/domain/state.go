package domain

import (
	"sync"
	"time"
)

// HealerNode is the node the healing middleware routes failed steps to.
const HealerNode = "healer"

// ErrorContext describes the failure that triggered a retry transition.
type ErrorContext struct {
	Message   string    `json:"message"`
	Category  string    `json:"category,omitempty"`
	Node      string    `json:"node,omitempty"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

// SharedState is the single mutable record threaded through a workflow run.
//
// The scheduler owns the object for the duration of a run. Nodes and the
// healing middleware mutate its fields; only the scheduler replaces it.
// Domain holds merge-able fields (agent_economy, token_credits, ...) that the
// core merges but never interprets.
type SharedState struct {
	mu sync.RWMutex

	RetryCount   int            `json:"retry_count"`
	NextNode     string         `json:"next_node,omitempty"`
	ErrorContext *ErrorContext  `json:"error_context,omitempty"`
	Domain       map[string]any `json:"domain,omitempty"`

	// routedByHealer records that NextNode was set by the middleware so a
	// later successful step can clear it.
	routedByHealer bool
}

// NewSharedState creates an empty state, optionally seeded with domain values.
func NewSharedState(domain map[string]any) *SharedState {
	s := &SharedState{Domain: make(map[string]any, len(domain))}
	for k, v := range domain {
		s.Domain[k] = v
	}
	return s
}

// Update runs fn with exclusive access to the state.
func (s *SharedState) Update(fn func(*SharedState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// View runs fn with shared read access to the state.
func (s *SharedState) View(fn func(*SharedState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s)
}

// Value returns a top-level domain value.
func (s *SharedState) Value(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Domain[key]
	return v, ok
}

// RouteToHealer sets NextNode to the healer and remembers who set it.
func (s *SharedState) RouteToHealer() {
	s.NextNode = HealerNode
	s.routedByHealer = true
}

// ClearHealerRoute unsets NextNode if it was set by RouteToHealer.
func (s *SharedState) ClearHealerRoute() {
	if s.routedByHealer || s.NextNode == HealerNode {
		s.NextNode = ""
	}
	s.routedByHealer = false
}

// MergeDomain deep-merges src into the domain area. Nested maps merge
// key-by-key and the last write wins at the leaf. Callers hold the lock.
func (s *SharedState) MergeDomain(src map[string]any) {
	if s.Domain == nil {
		s.Domain = make(map[string]any, len(src))
	}
	mergeMaps(s.Domain, src)
}

// Clone returns a deep copy of the state's maps. Leaf values are shared.
func (s *SharedState) Clone() *SharedState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &SharedState{
		RetryCount:     s.RetryCount,
		NextNode:       s.NextNode,
		Domain:         copyMap(s.Domain),
		routedByHealer: s.routedByHealer,
	}
	if s.ErrorContext != nil {
		ec := *s.ErrorContext
		c.ErrorContext = &ec
	}
	return c
}

func mergeMaps(dst, src map[string]any) {
	for k, sv := range src {
		srcMap, srcIsMap := asMap(sv)
		if !srcIsMap {
			dst[k] = sv
			continue
		}
		dstMap, dstIsMap := asMap(dst[k])
		if !dstIsMap {
			dstMap = make(map[string]any, len(srcMap))
		} else {
			dstMap = copyMap(dstMap)
		}
		mergeMaps(dstMap, srcMap)
		dst[k] = dstMap
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := asMap(v); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case NodeOutput:
		return map[string]any(m), true
	default:
		return nil, false
	}
}
