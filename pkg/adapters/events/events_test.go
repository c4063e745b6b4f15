package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/events/memory"
	redisevents "github.com/aescanero/dagent/pkg/adapters/events/redis"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/aescanero/dagent/pkg/ports"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) handle(ctx context.Context, e domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.events))
	for _, e := range c.events {
		ids = append(ids, e.ID)
	}
	return ids
}

func buses(t *testing.T) map[string]ports.EventBus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ports.EventBus{
		"memory": memory.NewInMemoryEventBus(nil),
		"redis":  redisevents.NewStreamsEventBus(client, 1000, nil),
	}
}

func TestEventBus_FanOutInOrder(t *testing.T) {
	for name, bus := range buses(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, b := &collector{}, &collector{}
			require.NoError(t, bus.Subscribe(ctx, "runs", a.handle))
			require.NoError(t, bus.Subscribe(ctx, "runs", b.handle))

			want := []string{"e1", "e2", "e3"}
			for _, id := range want {
				require.NoError(t, bus.Publish(ctx, "runs", domain.Event{
					ID:        id,
					Type:      domain.EventNodeCompleted,
					RunID:     "run-1",
					Timestamp: time.Now(),
					Data:      map[string]any{"node": "coder"},
				}))
			}

			assert.Eventually(t, func() bool { return len(a.ids()) == 3 && len(b.ids()) == 3 }, 3*time.Second, 10*time.Millisecond)
			assert.Equal(t, want, a.ids())
			assert.Equal(t, want, b.ids())
		})
	}
}

func TestEventBus_TopicsAreSeparate(t *testing.T) {
	for name, bus := range buses(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			c := &collector{}
			require.NoError(t, bus.Subscribe(ctx, "scaling", c.handle))
			require.NoError(t, bus.Publish(ctx, "runs", domain.Event{ID: "other"}))
			require.NoError(t, bus.Publish(ctx, "scaling", domain.Event{ID: "mine", Type: domain.EventScaling}))

			assert.Eventually(t, func() bool { return len(c.ids()) == 1 }, 3*time.Second, 10*time.Millisecond)
			assert.Equal(t, []string{"mine"}, c.ids())
		})
	}
}

func TestInMemoryEventBus_CancelUnsubscribes(t *testing.T) {
	bus := memory.NewInMemoryEventBus(nil)
	ctx, cancel := context.WithCancel(context.Background())

	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, "runs", c.handle))
	cancel()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), "runs", domain.Event{ID: "late"}))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.ids())
	assert.NoError(t, bus.Close())
}
