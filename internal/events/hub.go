// Package events is an in-memory pub/sub hub for dispatcher and owner loop
// lifecycle events.
//
// Dispatch events can arrive once per unit of work, while lifecycle and
// failure events are rare and matter more. The hub keeps them in separate
// rings so a burst of dispatches never evicts a binding or failure from the
// replay buffer.
package events

import (
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Type names an event published by the dispatcher stack.
type Type string

const (
	TypeOwnerBound     Type = "owner.bound"
	TypeOwnerNoOp      Type = "owner.noop"
	TypeDispatchSync   Type = "dispatch.sync"
	TypeDispatchPosted Type = "dispatch.posted"
	TypeWorkFailed     Type = "work.failed"
)

// Traffic reports whether t is per-dispatch traffic rather than a lifecycle
// or failure event.
func (t Type) Traffic() bool {
	return t == TypeDispatchSync || t == TypeDispatchPosted
}

type Event struct {
	ID   int64           `json:"id"`
	Type Type            `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

const (
	defaultCapacity = 100
	// minLifecycle keeps a useful lifecycle history even for tiny hubs.
	minLifecycle = 16
)

// Hub fans events out to subscribers and keeps recent ones for late joiners
// (SSE reconnects replay from Last-Event-ID).
type Hub struct {
	nextID atomic.Int64

	mu        sync.Mutex
	traffic   ring
	lifecycle ring

	subs      map[int]subscriber
	nextSubID int
	subBuffer int
}

type subscriber struct {
	ch    chan Event
	types []Type
}

func (s subscriber) wants(t Type) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// NewHub creates a hub retaining capacity dispatch events and at least as
// many lifecycle events. Subscriber channels buffer capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Hub{
		traffic:   newRing(capacity),
		lifecycle: newRing(max(capacity, minLifecycle)),
		subs:      make(map[int]subscriber),
		subBuffer: capacity,
	}
}

// Publish stamps data as the next event of type t and delivers it. A nil
// data publishes "{}".
func (h *Hub) Publish(t Type, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// IDs are taken under the lock so both rings stay ordered.
	ev := Event{
		ID:   h.nextID.Add(1),
		Type: t,
		At:   time.Now().UTC(),
		Data: payload,
	}
	if t.Traffic() {
		h.traffic.push(ev)
	} else {
		h.lifecycle.push(ev)
	}

	for _, sub := range h.subs {
		if !sub.wants(t) {
			continue
		}
		// Slow subscribers drop events rather than stall the owner loop.
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of future events, limited to types when any
// are given, and a cancel func that closes it.
func (h *Hub) Subscribe(types ...Type) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, h.subBuffer)
	h.subs[id] = subscriber{ch: ch, types: types}

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns retained events with ID > lastID in ID order.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.traffic.since(lastID)
	b := h.lifecycle.since(lastID)

	out := make([]Event, 0, len(a)+len(b))
	for len(a) > 0 && len(b) > 0 {
		if a[0].ID < b[0].ID {
			out, a = append(out, a[0]), a[1:]
		} else {
			out, b = append(out, b[0]), b[1:]
		}
	}
	out = append(out, a...)
	return append(out, b...)
}

// ring keeps the newest len(buf) events.
type ring struct {
	buf   []Event
	start int
	size  int
}

func newRing(capacity int) ring {
	return ring{buf: make([]Event, capacity)}
}

func (r *ring) push(ev Event) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = ev
		r.size++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(lastID int64) []Event {
	var out []Event
	for i := range r.size {
		if ev := r.buf[(r.start+i)%len(r.buf)]; ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
