package devtools

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/connect/pkg/connect"
	"github.com/vango-dev/connect/pkg/selector"
)

// EventType identifies what an Event reports.
type EventType string

const (
	EventMount    EventType = "mount"
	EventUnmount  EventType = "unmount"
	EventDerive   EventType = "derive"
	EventRender   EventType = "render"
	EventNotify   EventType = "notify"
	EventDispatch EventType = "dispatch"
)

// Event is sent to devtools clients via WebSocket.
type Event struct {
	Seq         uint64    `json:"seq"`
	Type        EventType `json:"type"`
	Consumer    string    `json:"consumer,omitempty"`
	Name        string    `json:"name,omitempty"`
	Change      string    `json:"change,omitempty"`
	Changed     bool      `json:"changed,omitempty"`
	Nested      int       `json:"nested,omitempty"`
	RenderCount int       `json:"renderCount,omitempty"`
	Action      string    `json:"action,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ConsumerInfo describes a mounted consumer.
type ConsumerInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RenderCount int    `json:"renderCount"`
	LastError   string `json:"lastError,omitempty"`
}

// Hub tracks mounted consumers and streams events to WebSocket clients.
// It implements connect.Observer.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]bool
	consumers map[uuid.UUID]*ConsumerInfo
	order     []uuid.UUID
	history   []Event
	limit     int
	seq       uint64

	// writeMu serializes writes; a websocket.Conn allows one writer.
	writeMu sync.Mutex

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

var _ connect.Observer = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins restricts WebSocket origins. Empty allows all.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// WithHistory sets how many recent events are kept for /history. Zero keeps
// none and a negative n keeps all. Default: 256.
func WithHistory(n int) HubOption {
	return func(h *Hub) {
		h.limit = n
	}
}

// WithHubLogger sets the logger. Default: slog.Default().
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// NewHub creates a new hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:   make(map[*websocket.Conn]bool),
		consumers: make(map[uuid.UUID]*ConsumerInfo),
		limit:     256,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// HandleWebSocket handles WebSocket upgrade and connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debug("devtools upgrade failed", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Publish records ev and sends it to all clients.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	h.seq++
	ev.Seq = h.seq
	if h.limit != 0 {
		h.history = append(h.history, ev)
		if h.limit > 0 && len(h.history) > h.limit {
			h.history = append(h.history[:0:0], h.history[len(h.history)-h.limit:]...)
		}
	}
	h.mu.Unlock()

	h.broadcast(ev)
}

// broadcast sends an event to all connected clients.
func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			client.Close()
		}
	}
}

// History returns the recent events, oldest first.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Event(nil), h.history...)
}

// Consumers returns the mounted consumers in mount order.
func (h *Hub) Consumers() []ConsumerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ConsumerInfo, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, *h.consumers[id])
	}
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

func (h *Hub) OnMount(info connect.Info) {
	h.mu.Lock()
	if _, ok := h.consumers[info.ID]; !ok {
		h.order = append(h.order, info.ID)
	}
	h.consumers[info.ID] = &ConsumerInfo{
		ID:          info.ID.String(),
		Name:        info.Name,
		RenderCount: info.RenderCount,
	}
	h.mu.Unlock()

	h.Publish(Event{Type: EventMount, Consumer: info.ID.String(), Name: info.Name, RenderCount: info.RenderCount})
}

func (h *Hub) OnUnmount(info connect.Info) {
	h.mu.Lock()
	delete(h.consumers, info.ID)
	for i, id := range h.order {
		if id == info.ID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	h.Publish(Event{Type: EventUnmount, Consumer: info.ID.String(), Name: info.Name})
}

func (h *Hub) OnDerive(info connect.Info, change selector.Change, changed bool, err error) {
	h.Publish(Event{
		Type:     EventDerive,
		Consumer: info.ID.String(),
		Name:     info.Name,
		Change:   change.String(),
		Changed:  changed,
		Error:    errString(err),
	})
}

func (h *Hub) OnRender(info connect.Info, err error) {
	h.mu.Lock()
	if c, ok := h.consumers[info.ID]; ok {
		c.RenderCount = info.RenderCount
		c.LastError = errString(err)
	}
	h.mu.Unlock()

	h.Publish(Event{
		Type:        EventRender,
		Consumer:    info.ID.String(),
		Name:        info.Name,
		RenderCount: info.RenderCount,
		Error:       errString(err),
	})
}

func (h *Hub) OnNotify(info connect.Info, nested int) {
	h.Publish(Event{Type: EventNotify, Consumer: info.ID.String(), Name: info.Name, Nested: nested})
}

// countsByName sums render counts per consumer name, sorted by name.
func (h *Hub) countsByName() []nameCount {
	h.mu.RLock()
	sums := make(map[string]int)
	for _, c := range h.consumers {
		sums[c.Name] += c.RenderCount
	}
	h.mu.RUnlock()

	out := make([]nameCount, 0, len(sums))
	for name, n := range sums {
		out = append(out, nameCount{Name: name, Renders: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type nameCount struct {
	Name    string `json:"name"`
	Renders int    `json:"renders"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
