package notify

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event types pushed to department dashboards.
const (
	EventRequestUpdate = "request_update"
	EventNewMessage    = "new_message"
	EventNewCheckout   = "new_checkout"
)

// Event is the state-changed signal sent to subscribed clients. It carries no
// payload beyond the affected department; dashboards re-fetch what they show.
type Event struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Department string `json:"department"`
	At         string `json:"at"`
}

// subscriber pairs a connection with its write lock. gorilla/websocket
// supports at most one concurrent writer per connection, so every send
// goes through write.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks WebSocket subscribers per department and fans events out to
// them. Delivery is best-effort: a failed write unsubscribes the client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]*subscriber
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*websocket.Conn]*subscriber)}
}

// Subscribe registers a connection under a department.
func (h *Hub) Subscribe(department string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[department] == nil {
		h.clients[department] = make(map[*websocket.Conn]*subscriber)
	}
	h.clients[department][conn] = &subscriber{conn: conn}
	log.Printf("websocket subscribed: %s", department)
}

// Unsubscribe removes a connection from a department.
func (h *Hub) Unsubscribe(department string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[department]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, department)
		}
		log.Printf("websocket unsubscribed: %s", department)
	}
}

// Publish sends a typed event to every subscriber of the given departments.
// Departments without subscribers are skipped silently; there is no delivery
// guarantee.
func (h *Hub) Publish(eventType string, departments ...string) {
	for _, department := range departments {
		event := Event{
			ID:         uuid.New().String(),
			Type:       eventType,
			Department: department,
			At:         time.Now().UTC().Format(time.RFC3339),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("marshal event: %v", err)
			continue
		}

		h.mu.RLock()
		subs := make([]*subscriber, 0, len(h.clients[department]))
		for _, sub := range h.clients[department] {
			subs = append(subs, sub)
		}
		h.mu.RUnlock()

		for _, sub := range subs {
			if err := sub.write(payload); err != nil {
				log.Printf("websocket write to %s failed: %v", department, err)
				h.Unsubscribe(department, sub.conn)
			}
		}
	}
}

// Online lists the departments that currently have at least one connected
// dashboard.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	departments := make([]string, 0, len(h.clients))
	for department := range h.clients {
		departments = append(departments, department)
	}
	sort.Strings(departments)
	return departments
}

// Subscribers reports how many connections a department currently has.
func (h *Hub) Subscribers(department string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[department])
}
