package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers events delivered to one subscriber
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := c.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d events, got %d", n, len(c.snapshot()))
	return nil
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	var c collector
	b.Subscribe("order", c.handle)

	for i := 0; i < 50; i++ {
		b.Publish(Event{Kind: KindNoteModified, Path: string(rune('a' + i%26))})
	}

	evs := c.waitFor(t, 50)
	for i, ev := range evs {
		assert.Equal(t, string(rune('a'+i%26)), ev.Path, "event %d out of order", i)
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	var first, second collector
	b.Subscribe("first", first.handle)
	b.Subscribe("second", second.handle)

	b.Publish(Event{Kind: KindJobCreated, Data: map[string]string{"jobId": "job-1"}})

	require.Len(t, first.waitFor(t, 1), 1)
	require.Len(t, second.waitFor(t, 1), 1)
	assert.Equal(t, "job-1", first.snapshot()[0].Data["jobId"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	var c collector
	b.Subscribe("tmp", c.handle)

	b.Publish(Event{Kind: KindNoteCreated})
	c.waitFor(t, 1)

	b.Unsubscribe("tmp")
	b.Publish(Event{Kind: KindNoteCreated})

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1)
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := New()
	defer b.Close()

	var c collector
	b.Subscribe("ts", c.handle)

	b.Publish(Event{Kind: KindSystemModified})
	evs := c.waitFor(t, 1)
	assert.False(t, evs[0].Timestamp.IsZero())
}

func TestQueueEntryIDBothShapes(t *testing.T) {
	assert.Equal(t, "job-abc12345", queueEntryID("b0-0001756000000000000-job-abc12345.md"))
	assert.Equal(t, "job-abc12345", queueEntryID("job-abc12345.md"))
	assert.Equal(t, "task-x1", queueEntryID("b3-0001756000000000000-task-x1.md"))
}
