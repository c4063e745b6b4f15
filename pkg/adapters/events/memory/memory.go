package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"go.uber.org/zap"
)

const bufferSize = 256

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

type subscriber struct {
	id      uint64
	events  chan domain.Event
	handler ports.EventHandler
}

// InMemoryEventBus implements EventBus with per-subscriber queues. Every
// subscriber of a topic sees every event, in publish order.
type InMemoryEventBus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[uint64]*subscriber
	nextID      uint64
	closed      bool
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		logger:      logger,
		subscribers: make(map[string]map[uint64]*subscriber),
	}
}

// Publish queues event for every subscriber of topic. A subscriber whose
// queue is full misses the event.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		select {
		case sub.events <- event:
		default:
			e.logger.Warn("subscriber queue full, dropping event",
				zap.String("topic", topic),
				zap.String("event_id", event.ID))
		}
	}
	return nil
}

// Subscribe registers handler on topic until ctx is done
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.nextID++
	sub := &subscriber{
		id:      e.nextID,
		events:  make(chan domain.Event, bufferSize),
		handler: handler,
	}
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]*subscriber)
	}
	e.subscribers[topic][sub.id] = sub
	e.mu.Unlock()

	go e.deliver(ctx, topic, sub)
	return nil
}

// Close drops every subscription
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, subs := range e.subscribers {
		for _, sub := range subs {
			close(sub.events)
		}
	}
	e.subscribers = make(map[string]map[uint64]*subscriber)
	e.closed = true
	return nil
}

func (e *InMemoryEventBus) deliver(ctx context.Context, topic string, sub *subscriber) {
	defer e.unsubscribe(topic, sub.id)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.events:
			if !ok {
				return
			}
			if err := sub.handler(ctx, event); err != nil {
				e.logger.Debug("event handler error",
					zap.String("topic", topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}
	}
}

// unsubscribe removes a subscriber from a topic
func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	if sub, ok := subs[id]; ok {
		delete(subs, id)
		close(sub.events)
	}
	if len(subs) == 0 {
		delete(e.subscribers, topic)
	}
}
