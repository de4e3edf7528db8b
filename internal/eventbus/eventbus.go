// Package eventbus fans out job- and workflow-update events to active
// subscribers without ever blocking a producer on a slow reader.
//
// The interface shape (Publish/Subscribe) is grounded on the domain event
// bus abstraction used elsewhere in this dependency graph for
// network-facing pub/sub; this implementation keeps everything in-process
// with bounded per-subscriber channels and a drop-oldest policy, per the
// scheduler's requirement that publishing a job or workflow update never
// blocks the caller.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/wsiflow/tilesched/pkg/model"
)

// Subscriber is an opaque sink belonging to one entity. It holds a bounded
// buffer and detaches only when the consumer closes it; when its buffer
// overflows it stays attached and loses its oldest queued event.
type Subscriber struct {
	ID       string
	EntityID string
	Events   <-chan model.Event

	bus    *Bus
	events chan model.Event

	// closeMu guards closed and is held across every send in deliver, not
	// just the Close transition, so a Close racing a concurrent Publish
	// can never land a send on a channel nobody will drain. The data
	// channel itself is never closed — only Done() signals detachment —
	// so deliver never risks a send-on-closed-channel panic.
	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// Done returns a channel that's closed once the subscriber has detached,
// for callers that want to select on it alongside Events.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscriber from the bus. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bus.remove(s)
	close(s.done)
}

// Bus fans out events per entity id. Each entity id owns an independent,
// unordered set of subscribers; delivery order is preserved per subscriber
// and per entity, never across entities.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[string]*Subscriber // entityID -> subscriberID -> Subscriber
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With("component", "eventbus"),
		subs:   make(map[string]map[string]*Subscriber),
	}
}

// Subscribe registers a new bounded-buffer subscriber for entityID.
// bufferSize <= 0 falls back to a buffer of 64 events.
func (b *Bus) Subscribe(_ context.Context, entityID string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	sub := &Subscriber{
		ID:       uuid.New().String(),
		EntityID: entityID,
		bus:      b,
		events:   make(chan model.Event, bufferSize),
		done:     make(chan struct{}),
	}
	sub.Events = sub.events

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[entityID] == nil {
		b.subs[entityID] = make(map[string]*Subscriber)
	}
	b.subs[entityID][sub.ID] = sub
	return sub
}

// Publish fans evt out to every current subscriber of entityID. It never
// blocks: a full subscriber buffer has its oldest event dropped to make
// room for evt, so a slow reader lags instead of stalling the publisher.
func (b *Bus) Publish(entityID string, evt model.Event) {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs[entityID]))
	for _, s := range b.subs[entityID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, evt)
	}
}

// deliver sends evt to s, unless s has closed in the meantime. Holding
// s.closeMu across the whole send (not just a closed-flag check) is what
// makes this safe: Close cannot complete — and so cannot hand the
// channel to the garbage collector or otherwise be assumed quiescent by a
// caller — while a send here is in flight, and no send here can start
// once Close has set closed.
func (b *Bus) deliver(s *Subscriber, evt model.Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.events <- evt:
		return
	default:
	}

	// Buffer full: drop the oldest queued event, then retry once. If a
	// concurrent reader drained in the meantime the retry still succeeds.
	// The retry is non-blocking too: should it find no room, evt itself is
	// dropped rather than blocking the publisher.
	select {
	case <-s.events:
		b.logger.Debug("subscriber lagging, dropped oldest event", "subscriber_id", s.ID, "entity_id", s.EntityID)
	default:
	}

	select {
	case s.events <- evt:
	default:
		b.logger.Debug("subscriber buffer contended, dropped event", "subscriber_id", s.ID, "entity_id", s.EntityID)
	}
}

func (b *Bus) remove(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.subs[s.EntityID]; ok {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(b.subs, s.EntityID)
		}
	}
}
