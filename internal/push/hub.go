// Package push fans out zero-payload change notifications to connected
// browser clients over SSE and WebSocket.
package push

import (
	"errors"
	"sync"
	"sync/atomic"

	"equiscore/internal/logging"

	"github.com/google/uuid"
)

// EventDataUpdated tells clients to re-fetch /data.
const EventDataUpdated = "data_updated"

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("push: hub closed")

// Notification is what a subscriber receives. It carries no results data,
// only the event name and a sequence number usable as an SSE id.
type Notification struct {
	Event string
	Seq   uint64
}

// Subscription is one connected client.
type Subscription struct {
	ID string
	C  <-chan Notification

	ch    chan Notification
	done  chan struct{}
	once  sync.Once
	relay bool // forwards to another transport; not a client
}

// Done is closed when the subscription is removed or the hub shuts down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub tracks subscribers and broadcasts notifications to them.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	seq    atomic.Uint64

	delivered atomic.Uint64
	coalesced atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

// Subscribe registers a new client.
func (h *Hub) Subscribe() (*Subscription, error) {
	return h.subscribe(false)
}

// subscribeRelay registers a subscription that feeds another fan-out, such
// as the SSE server. Relays receive broadcasts but are not counted as clients.
func (h *Hub) subscribeRelay() (*Subscription, error) {
	return h.subscribe(true)
}

func (h *Hub) subscribe(relay bool) (*Subscription, error) {
	ch := make(chan Notification, 1)
	s := &Subscription{
		ID:    uuid.NewString(),
		C:     ch,
		ch:    ch,
		done:  make(chan struct{}),
		relay: relay,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.subs[s.ID] = s

	logging.PushDebug("subscriber %s joined (%d total)", s.ID, len(h.subs))
	return s, nil
}

// Unsubscribe removes a client. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	delete(h.subs, s.ID)
	n := len(h.subs)
	h.mu.Unlock()

	s.close()
	if ok {
		logging.PushDebug("subscriber %s left (%d total)", s.ID, n)
	}
}

// Broadcast sends event to every subscriber without blocking. A subscriber
// that has not consumed its previous notification keeps that one; since the
// payload is empty, one pending notification is as good as many.
func (h *Hub) Broadcast(event string) int {
	n := Notification{Event: event, Seq: h.seq.Add(1)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	sent := 0
	for _, s := range h.subs {
		select {
		case s.ch <- n:
			sent++
			h.delivered.Add(1)
		default:
			h.coalesced.Add(1)
		}
	}

	logging.Push("broadcast %s #%d to %d/%d subscribers", event, n.Seq, sent, len(h.subs))
	return sent
}

// Count returns the number of connected subscribers, relays excluded.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.subs {
		if !s.relay {
			n++
		}
	}
	return n
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// HubStats summarizes delivery counters.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Broadcasts  uint64 `json:"broadcasts"`
	Delivered   uint64 `json:"delivered"`
	Coalesced   uint64 `json:"coalesced"`
}

// Stats returns the current counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Subscribers: h.Count(),
		Broadcasts:  h.seq.Load(),
		Delivered:   h.delivered.Load(),
		Coalesced:   h.coalesced.Load(),
	}
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	logging.Push("hub closed, %d subscribers disconnected", len(subs))
}
