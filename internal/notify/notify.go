// Package notify carries change notifications between open sessions so they
// can refetch authoritative state. Delivery is unordered, at-most-once and
// best-effort: an event is a hint to refetch, never the state itself.
package notify

import (
	"context"
	"sync"

	"github.com/bilgisen/anitory/internal/metrics"
	"github.com/rs/zerolog"
)

type EventType string

const (
	StoryUpdate EventType = "STORY_UPDATE"
	UserUpdate  EventType = "USER_UPDATE"
	DraftUpdate EventType = "DRAFT_UPDATE"
)

// Event is the message shape on the channel. DRAFT_UPDATE carries the draft
// key as payload. Origin identifies the publishing session so it can ignore
// its own events.
type Event struct {
	Type    EventType `json:"type"`
	Payload string    `json:"payload,omitempty"`
	Origin  string    `json:"origin,omitempty"`
}

// Notifier is the publish/subscribe port used by the storage layer and the
// realtime sessions.
type Notifier interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe registers handler and returns the func that removes it.
	Subscribe(handler func(Event)) (unsubscribe func())
}

const subscriberBuffer = 64

// Hub is the in-process Notifier. Each subscriber gets its own buffered
// queue and goroutine; events are dropped for a subscriber whose queue is
// full.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	log    zerolog.Logger
}

type subscriber struct {
	queue chan Event
	done  chan struct{}
}

var _ Notifier = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[int]*subscriber),
		log:  log,
	}
}

func (h *Hub) Publish(ctx context.Context, e Event) error {
	metrics.Notification(string(e.Type), "out")
	h.deliver(e)
	return nil
}

func (h *Hub) deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, s := range h.subs {
		select {
		case s.queue <- e:
		default:
			h.log.Warn().
				Int("subscriber", id).
				Str("type", string(e.Type)).
				Msg("Subscriber queue full, dropping event")
		}
	}
}

func (h *Hub) Subscribe(handler func(Event)) func() {
	s := &subscriber{
		queue: make(chan Event, subscriberBuffer),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = s
	h.mu.Unlock()

	go func() {
		for {
			select {
			case e := <-s.queue:
				h.handle(handler, e)
			case <-s.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(s.done)
		})
	}
}

// handle keeps a panicking handler from taking the hub down.
func (h *Hub) handle(handler func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("type", string(e.Type)).Msg("Notification handler panicked")
		}
	}()
	metrics.Notification(string(e.Type), "in")
	handler(e)
}

// Subscribers reports the number of registered handlers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type originKey struct{}

// WithOrigin tags ctx with the id of the session performing a write, so the
// events it causes carry that origin.
func WithOrigin(ctx context.Context, origin string) context.Context {
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the session id stored by WithOrigin, or "".
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}
