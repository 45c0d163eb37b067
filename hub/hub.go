package hub

import (
	"log/slog"
	"sync"

	"github.com/sentrycam/sentry-go/service/lgr"
	"github.com/sentrycam/sentry-go/service/metrics"
)

// Conn is a send-capable client handle. A frame payload and an alert payload
// share one outbound connection; implementations must keep the two shapes
// distinguishable to the receiver and must not block indefinitely on a send.
type Conn interface {
	SendFrame(payload []byte) error
	SendAlert(payload []byte) error
	Close() error
}

// Hub maintains the set of connected clients and fans out frames and alerts
// best-effort. A failing client is evicted; its failure never reaches the
// pipeline or the other clients.
type Hub struct {
	mu        sync.RWMutex
	conns     map[Conn]bool
	lastFrame []byte
	metrics   *metrics.Metrics
}

func New(m *metrics.Metrics) *Hub {
	return &Hub{
		conns:   make(map[Conn]bool),
		metrics: m,
	}
}

// Connect adds the client to the active set and, when a frame has already
// been produced, sends it immediately so the new client does not stare at a
// blank feed until the next broadcast. Alert history is not replayed.
func (h *Hub) Connect(c Conn) {
	h.mu.Lock()
	h.conns[c] = true
	last := h.lastFrame
	count := len(h.conns)
	h.mu.Unlock()

	h.metrics.ActiveConnections.Store(int64(count))
	lgr.Logger.Info(
		"client connected",
		slog.Int("clients", count),
	)

	if last != nil {
		if err := c.SendFrame(last); err != nil {
			h.evict(c, err)
		}
	}
}

// Disconnect removes the client from the active set. Idempotent.
func (h *Hub) Disconnect(c Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	if ok {
		delete(h.conns, c)
	}
	count := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}

	h.metrics.ActiveConnections.Store(int64(count))
	if err := c.Close(); err != nil {
		lgr.Logger.Debug("error closing client connection", slog.Any("error", err))
	}
	lgr.Logger.Info(
		"client disconnected",
		slog.Int("clients", count),
	)
}

// BroadcastFrame stores the payload as the catch-up frame and fans it out to
// a snapshot of the active set.
func (h *Hub) BroadcastFrame(payload []byte) {
	h.mu.Lock()
	h.lastFrame = payload
	h.mu.Unlock()

	for _, c := range h.snapshot() {
		if err := c.SendFrame(payload); err != nil {
			h.evict(c, err)
		}
	}
}

// BroadcastAlert fans the alert envelope out to a snapshot of the active set.
func (h *Hub) BroadcastAlert(payload []byte) {
	for _, c := range h.snapshot() {
		if err := c.SendAlert(payload); err != nil {
			h.evict(c, err)
		}
	}
}

// LastFrame returns the most recently broadcast frame payload, or nil.
func (h *Hub) LastFrame() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastFrame
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot copies the active set so a broadcast never iterates a map that
// connect/disconnect may be mutating.
func (h *Hub) snapshot() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) evict(c Conn, err error) {
	h.metrics.BroadcastFailures.Add(1)
	lgr.Logger.Warn(
		"dropping client after failed send",
		slog.Any("error", err),
	)
	h.Disconnect(c)
}
