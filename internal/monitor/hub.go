// Package monitor exposes the session as it is being recorded: a live chart
// of the current window, its JSON form, a server-sent event tail of the
// decoded samples, and a gRPC service streaming samples and rotated windows.
package monitor

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/motion.report/internal/window"
)

// subscriberBuffer is the number of tail lines queued per subscriber before
// new lines are dropped for it.
const subscriberBuffer = 64

// windowBuffer is the number of rotated windows queued per window subscriber.
const windowBuffer = 4

// Hub holds the latest window snapshot and fans decoded samples out to tail
// subscribers. It is safe for concurrent use.
type Hub struct {
	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	windowSubs   map[string]chan *window.Window
	closing      bool

	mu         sync.Mutex
	current    *window.Window
	lastClosed *window.Window
	statsFunc  func() any
	published  int64
	dropped    int64
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]chan string),
		windowSubs:  make(map[string]chan *window.Window),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a tail subscriber. The returned channel is closed by
// Unsubscribe or Close.
func (h *Hub) Subscribe() (string, <-chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if h.closing {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(id string) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish sends line to every subscriber without blocking. Subscribers whose
// queue is full miss the line.
func (h *Hub) Publish(line string) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if h.closing {
		return
	}
	var dropped int64
	for _, ch := range h.subscribers {
		select {
		case ch <- line:
		default:
			dropped++
		}
	}
	h.mu.Lock()
	h.published++
	h.dropped += dropped
	h.mu.Unlock()
}

// Subscribers returns the number of active tail subscribers.
func (h *Hub) Subscribers() int {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	return len(h.subscribers)
}

// SubscribeWindows registers a subscriber for rotated windows. The returned
// channel is closed by UnsubscribeWindows or Close.
func (h *Hub) SubscribeWindows() (string, <-chan *window.Window) {
	id := randomID()
	ch := make(chan *window.Window, windowBuffer)
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if h.closing {
		close(ch)
		return id, ch
	}
	h.windowSubs[id] = ch
	return id, ch
}

// UnsubscribeWindows removes a window subscriber.
func (h *Hub) UnsubscribeWindows(id string) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if ch, ok := h.windowSubs[id]; ok {
		close(ch)
		delete(h.windowSubs, id)
	}
}

// WindowSubscribers returns the number of active window subscribers.
func (h *Hub) WindowSubscribers() int {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	return len(h.windowSubs)
}

// Close closes every subscriber channel. Later Publish calls are ignored.
func (h *Hub) Close() {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	h.closing = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	for id, ch := range h.windowSubs {
		close(ch)
		delete(h.windowSubs, id)
	}
}

// SetWindow replaces the current window. w must not be mutated afterwards.
func (h *Hub) SetWindow(w *window.Window) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = w
}

// Window returns the latest window snapshot, or nil.
func (h *Hub) Window() *window.Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// SetLastClosed records the most recently rotated window and hands it to the
// window subscribers. Subscribers whose queue is full miss it. w must not be
// mutated afterwards.
func (h *Hub) SetLastClosed(w *window.Window) {
	h.mu.Lock()
	h.lastClosed = w
	h.mu.Unlock()

	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if h.closing {
		return
	}
	for _, ch := range h.windowSubs {
		select {
		case ch <- w:
		default:
		}
	}
}

// LastClosed returns the most recently rotated window, or nil.
func (h *Hub) LastClosed() *window.Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastClosed
}

// SetStatsFunc installs the function whose result is shown as the session
// status on the debug page.
func (h *Hub) SetStatsFunc(f func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statsFunc = f
}

// Stats returns the current session status, or nil when none is installed.
func (h *Hub) Stats() any {
	h.mu.Lock()
	f := h.statsFunc
	h.mu.Unlock()
	if f == nil {
		return nil
	}
	return f()
}

// TailStats returns the number of published lines and of lines dropped for
// slow subscribers.
func (h *Hub) TailStats() (published, dropped int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.published, h.dropped
}
