package app

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"livequiz-service/internal/domain"
)

// outboundQueueSize bounds each handle's send queue. A stalled socket fills
// its own queue and gets evicted; it never blocks the room's command loop.
const outboundQueueSize = 32

// Handle wraps one live socket. The controller pushes events into its
// bounded queue; a dedicated writer pump on the transport side drains
// Outbound. Handles are never shared across rooms and never reused after
// Close.
type Handle struct {
	id            string
	participantID string
	role          domain.Role
	addr          string

	mu     sync.Mutex
	out    chan domain.Event
	closed bool

	lastPong atomic.Int64 // unix nanos
}

// NewHandle creates a handle for a participant's socket. addr is the
// client's source address, used to release its connection slot on teardown.
func NewHandle(participantID string, role domain.Role, addr string) *Handle {
	h := &Handle{
		id:            randomID(),
		participantID: participantID,
		role:          role,
		addr:          addr,
		out:           make(chan domain.Event, outboundQueueSize),
	}
	h.lastPong.Store(time.Now().UnixNano())
	return h
}

func (h *Handle) ID() string            { return h.id }
func (h *Handle) ParticipantID() string { return h.participantID }
func (h *Handle) Role() domain.Role     { return h.role }
func (h *Handle) Addr() string          { return h.addr }

// Outbound is drained by exactly one writer goroutine. It is closed when
// the handle closes.
func (h *Handle) Outbound() <-chan domain.Event { return h.out }

// Enqueue pushes an event without blocking. It reports false when the
// handle is closed or its queue is full; the caller drops the handle on
// overflow rather than stalling the room.
func (h *Handle) Enqueue(ev domain.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.out <- ev:
		return true
	default:
		return false
	}
}

// Close is idempotent. The outbound channel is closed so the writer pump
// terminates after draining what is already queued.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.out)
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// TouchPong records a liveness response from the client.
func (h *Handle) TouchPong() {
	h.lastPong.Store(time.Now().UnixNano())
}

// LastPong returns the time of the most recent liveness response.
func (h *Handle) LastPong() time.Time {
	return time.Unix(0, h.lastPong.Load())
}

func randomID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
