// Package timeout provides named one-shot timers for protocol deadlines.
// Callers hold an opaque cookie per outstanding timer and may refresh it
// while the peer is still making progress.
package timeout

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Cookie = uuid.UUID

// NoCookie is the zero cookie; Refresh and Unregister ignore it.
var NoCookie = uuid.UUID{}

type entry struct {
	timer    *time.Timer
	duration time.Duration
}

// Handler fires registered callbacks on timer goroutines. Each Register
// creates exactly one live timer; firing, refreshing and unregistering are
// serialized per handler.
type Handler struct {
	mu      sync.Mutex
	entries map[Cookie]*entry
}

func New() *Handler {
	return &Handler{entries: make(map[Cookie]*entry)}
}

// Register arms a one-shot timer. The callback runs on the timer goroutine
// once the deadline passes, after the cookie has been retired.
func (h *Handler) Register(fn func(), d time.Duration) Cookie {
	h.mu.Lock()
	defer h.mu.Unlock()

	cookie := uuid.New()
	e := &entry{duration: d}
	e.timer = time.AfterFunc(d, func() {
		h.mu.Lock()
		_, live := h.entries[cookie]
		delete(h.entries, cookie)
		h.mu.Unlock()

		// A concurrent Unregister may have retired the cookie already.
		if live {
			fn()
		}
	})
	h.entries[cookie] = e
	return cookie
}

// Refresh re-arms the timer with its original duration. Unknown cookies are
// ignored; the timer may have fired or been unregistered in the meantime.
func (h *Handler) Refresh(cookie Cookie) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[cookie]; ok {
		e.timer.Reset(e.duration)
	}
}

// Unregister stops the timer. Safe to call with a cookie that already fired.
func (h *Handler) Unregister(cookie Cookie) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[cookie]; ok {
		e.timer.Stop()
		delete(h.entries, cookie)
	}
}
