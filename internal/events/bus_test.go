package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) add(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	var c collector
	bus.Subscribe(EventTaskDispatched, c.add)

	bus.Publish(EventTaskDispatched, "sess_1", map[string]any{"task_id": "task_123"})
	bus.Publish(EventTaskCompleted, "sess_1", nil)
	bus.Close()

	got := c.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, EventTaskDispatched, got[0].Type)
	assert.Equal(t, "sess_1", got[0].SessionID)
	assert.Equal(t, "task_123", got[0].Data["task_id"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(10)
	var all, one collector
	bus.Subscribe(EventAll, all.add)
	bus.Subscribe(EventPhaseStarted, one.add)

	bus.Publish(EventPhaseStarted, "s", nil)
	bus.Publish(EventPhaseCompleted, "s", nil)
	bus.Close()

	assert.Len(t, all.snapshot(), 2)
	assert.Len(t, one.snapshot(), 1)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var c collector
	unsub := bus.Subscribe(EventTaskCompleted, c.add)
	unsub()
	bus.Publish(EventTaskCompleted, "s", nil)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	block := make(chan struct{})
	var c collector
	bus.Subscribe(EventTaskCompleted, func(e Event) {
		<-block
		c.add(e)
	})

	for i := 0; i < 5; i++ {
		bus.Publish(EventTaskCompleted, "s", nil)
	}
	close(block)
	bus.Close()

	got := c.snapshot()
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 5)
}

func TestBus_RecoversSubscriberPanic(t *testing.T) {
	bus := NewBus(10)
	var c collector
	bus.Subscribe(EventTaskCompleted, func(e Event) {
		if e.SessionID == "boom" {
			panic("subscriber failure")
		}
		c.add(e)
	})

	bus.Publish(EventTaskCompleted, "boom", nil)
	bus.Publish(EventTaskCompleted, "ok", nil)
	bus.Close()

	got := c.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].SessionID)
}
