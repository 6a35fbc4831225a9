package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// subscription represents a subscriber's subscription.
type subscription struct {
	id   string
	ch   chan Event
	quit chan struct{}
	from uint64 // first sequence number this subscriber receives
}

type queued struct {
	seq   uint64
	event Event
}

// Hub fans timer events out to subscribers.
// Publishing never blocks: events are queued in production order and a single
// dispatcher goroutine delivers them, so every subscriber sees the same order.
type Hub struct {
	mu            sync.Mutex
	subscriptions map[string]*subscription
	queue         []queued
	seq           uint64
	closed        bool

	wake        chan struct{}
	done        chan struct{}
	sendTimeout time.Duration
}

// NewHub creates a hub and starts its dispatcher.
// A subscriber that does not accept an event within sendTimeout misses it.
func NewHub(sendTimeout time.Duration) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = 500 * time.Millisecond
	}
	h := &Hub{
		subscriptions: make(map[string]*subscription),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		sendTimeout:   sendTimeout,
	}
	go h.dispatch()
	return h
}

// Subscribe adds a new subscription and returns its ID and channel.
// Only events published after Subscribe returns are delivered.
// The channel is closed when the hub closes.
func (h *Hub) Subscribe(buffer int) (string, <-chan Event) {
	if buffer <= 0 {
		buffer = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscription{
		id:   uuid.New().String(),
		ch:   make(chan Event, buffer),
		quit: make(chan struct{}),
		from: h.seq + 1,
	}
	if h.closed {
		close(sub.ch)
		return sub.id, sub.ch
	}
	h.subscriptions[sub.id] = sub
	return sub.id, sub.ch
}

// Unsubscribe removes a subscription. Its channel receives nothing further.
func (h *Hub) Unsubscribe(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscriptions[subscriptionID]; ok {
		delete(h.subscriptions, subscriptionID)
		close(sub.quit)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscriptions)
}

// Publish queues an event for delivery.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.seq++
	h.queue = append(h.queue, queued{seq: h.seq, event: e})
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Close delivers what is already queued, then closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.done
		return
	}
	h.closed = true
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	<-h.done
}

func (h *Hub) dispatch() {
	defer close(h.done)

	for range h.wake {
		for {
			h.mu.Lock()
			batch := h.queue
			h.queue = nil
			closed := h.closed
			subs := make([]*subscription, 0, len(h.subscriptions))
			for _, sub := range h.subscriptions {
				subs = append(subs, sub)
			}
			h.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					h.closeSubscriptions()
					return
				}
				break
			}

			for _, q := range batch {
				for _, sub := range subs {
					if q.seq >= sub.from {
						h.deliver(sub, q.event)
					}
				}
			}
		}
	}
}

func (h *Hub) deliver(sub *subscription, e Event) {
	select {
	case sub.ch <- e:
		return
	default:
	}

	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()

	select {
	case sub.ch <- e:
	case <-sub.quit:
	case <-timer.C:
		zlog.Warn().Msgf("playback: subscriber too slow, event dropped: subscription=%s event=%s", sub.id, e.Type)
	}
}

func (h *Hub) closeSubscriptions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subscriptions {
		delete(h.subscriptions, id)
		close(sub.ch)
	}
}
