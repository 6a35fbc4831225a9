package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestHub_DeliversInOrderToEverySubscriber(t *testing.T) {
	h := NewHub(time.Second)
	_, a := h.Subscribe(16)
	_, b := h.Subscribe(16)
	assert.Equal(t, 2, h.SubscriberCount())

	for i := 0; i < 10; i++ {
		h.Publish(Event{Type: EventTick, Step: i})
	}
	h.Close()

	for _, ch := range []<-chan Event{a, b} {
		events := drain(ch)
		require.Len(t, events, 10)
		for i, e := range events {
			assert.Equal(t, i, e.Step)
		}
	}
}

func TestHub_SubscriberSeesOnlyLaterEvents(t *testing.T) {
	h := NewHub(time.Second)
	h.Publish(Event{Type: EventSessionLoaded})

	_, ch := h.Subscribe(4)
	h.Publish(Event{Type: EventStepStarted})
	h.Close()

	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventStepStarted, events[0].Type)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(time.Second)
	id, ch := h.Subscribe(4)

	h.Unsubscribe(id)
	h.Unsubscribe(id)
	h.Publish(Event{Type: EventTick})
	h.Close()

	assert.Equal(t, 0, h.SubscriberCount())
	select {
	case e := <-ch:
		t.Fatalf("unexpected event after unsubscribe: %v", e)
	default:
	}
}

func TestHub_SlowSubscriberMissesEvents(t *testing.T) {
	h := NewHub(20 * time.Millisecond)
	_, slow := h.Subscribe(1)
	_, fast := h.Subscribe(8)

	for i := 0; i < 3; i++ {
		h.Publish(Event{Type: EventTick, Step: i})
	}
	h.Close()

	assert.Len(t, drain(fast), 3)
	slowEvents := drain(slow)
	require.Len(t, slowEvents, 1)
	assert.Equal(t, 0, slowEvents[0].Step)
}

func TestHub_ClosedHub(t *testing.T) {
	h := NewHub(0)
	h.Close()
	h.Close()

	h.Publish(Event{Type: EventTick})
	_, ch := h.Subscribe(1)
	_, ok := <-ch
	assert.False(t, ok, "subscribing to a closed hub yields a closed channel")
}
