package newchat

import (
	"sync"

	"go.uber.org/zap"

	"tripy/logger"
	"tripy/metrics"
)

// Client is one active session as the hub sees it.
type Client struct {
	ID     string
	TripID string
	UserID string
	Send   chan Frame
}

type broadcastMsg struct {
	TripID string
	Frame  Frame
}

// Hub is the registry of active sessions, grouped by trip. Sessions only
// ever register and unregister themselves; trip-wide frames fan out through
// broadcast.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	stop       chan struct{}
	done       chan struct{}
	once       sync.Once
	mu         sync.Mutex
	state      hubState
	active     int
	metrics    *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

type hubState int

const (
	hubIdle hubState = iota
	hubRunning
	hubStopped
)

// Run serves the hub until Stop. Calls after the first, or after Stop, return
// immediately.
func (h *Hub) Run() {
	h.mu.Lock()
	if h.state != hubIdle {
		h.mu.Unlock()
		return
	}
	h.state = hubRunning
	h.mu.Unlock()
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.TripID] == nil {
				h.rooms[c.TripID] = make(map[*Client]bool)
			}
			h.rooms[c.TripID][c] = true
			h.active++
			h.mu.Unlock()
			h.metrics.SessionOpened()

		case c := <-h.unregister:
			h.mu.Lock()
			if conns := h.rooms[c.TripID]; conns != nil && conns[c] {
				delete(conns, c)
				if len(conns) == 0 {
					delete(h.rooms, c.TripID)
				}
				close(c.Send)
				h.active--
				h.metrics.SessionClosed()
			}
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[m.TripID] {
				select {
				case c.Send <- m.Frame:
				default:
					logger.Get().Warn("session send buffer full, frame dropped",
						zap.String("session", c.ID), zap.String("type", m.Frame.Type))
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for trip, conns := range h.rooms {
				for c := range conns {
					close(c.Send)
					h.active--
					h.metrics.SessionClosed()
				}
				delete(h.rooms, trip)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every session's Send channel and ends Run.
func (h *Hub) Stop() {
	h.once.Do(func() {
		close(h.stop)
		h.mu.Lock()
		if h.state == hubIdle {
			h.state = hubStopped
			close(h.done)
		}
		h.mu.Unlock()
	})
	<-h.done
}

// Register adds c; it reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues f for every session on tripID.
func (h *Hub) Broadcast(tripID string, f Frame) {
	select {
	case h.broadcast <- broadcastMsg{TripID: tripID, Frame: f}:
	case <-h.done:
	}
}

// Active is the number of registered sessions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Sessions is the number of registered sessions on tripID.
func (h *Hub) Sessions(tripID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[tripID])
}
