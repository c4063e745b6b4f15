package scheduler

import (
	"context"
	"sync"
)

// slots is a counting gate whose limit can change while it is in use.
// Lowering the limit never preempts holders; it only delays new acquisitions.
type slots struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	wake     chan struct{}
}

func newSlots(limit int) *slots {
	if limit < 1 {
		limit = 1
	}
	return &slots{limit: limit, wake: make(chan struct{})}
}

func (s *slots) acquire(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.inFlight < s.limit {
			s.inFlight++
			s.mu.Unlock()
			return nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

func (s *slots) release() {
	s.mu.Lock()
	s.inFlight--
	s.broadcast()
	s.mu.Unlock()
}

func (s *slots) setLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	s.mu.Lock()
	s.limit = limit
	s.broadcast()
	s.mu.Unlock()
}

func (s *slots) usage() (inFlight, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight, s.limit
}

// broadcast wakes every waiter. Callers hold mu.
func (s *slots) broadcast() {
	close(s.wake)
	s.wake = make(chan struct{})
}
