package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"email-task-extractor/internal/pipeline"
	"email-task-extractor/internal/routing"
)

// ExtractionEvent describes websocket payloads emitted when emails are processed.
type ExtractionEvent struct {
	Type         string           `json:"type"`
	ExtractionID string           `json:"extraction_id,omitempty"`
	Sender       string           `json:"sender,omitempty"`
	Summary      *routing.Summary `json:"summary,omitempty"`
	Urgent       []string         `json:"urgent,omitempty"`
	Message      string           `json:"message,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

const (
	eventExtraction = "extraction"
	eventCleared    = "history_cleared"
)

// EventFromResult summarises a processed email for subscribers.
func EventFromResult(res *pipeline.Result) ExtractionEvent {
	summary := res.Summary
	event := ExtractionEvent{
		Type:         eventExtraction,
		ExtractionID: res.ID,
		Sender:       res.Sender,
		Summary:      &summary,
	}
	for _, task := range routing.Filter(res.Tasks, routing.StatusUrgentReview) {
		event.Urgent = append(event.Urgent, task.Description)
	}
	return event
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// ExtractionNotifier keeps track of active websocket clients and broadcasts extraction events.
type ExtractionNotifier struct {
	mu        sync.Mutex
	clients   map[*wsClient]struct{}
	lastEvent *ExtractionEvent
}

// NewExtractionNotifier constructs a notifier instance.
func NewExtractionNotifier() *ExtractionNotifier {
	return &ExtractionNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and replays the latest event to it.
func (n *ExtractionNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	last := n.lastEvent
	n.mu.Unlock()

	if last != nil {
		_ = client.writeJSON(*last)
	}
	return client
}

// Unregister removes the websocket client from the notifier and closes the socket.
func (n *ExtractionNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the supplied event to all registered websocket clients.
func (n *ExtractionNotifier) Broadcast(event ExtractionEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	if event.Type == eventExtraction {
		snapshot := event
		n.lastEvent = &snapshot
	} else if event.Type == eventCleared {
		n.lastEvent = nil
	}
	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// Clients returns the number of connected subscribers.
func (n *ExtractionNotifier) Clients() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

// LastEvent returns a copy of the most recent extraction event.
func (n *ExtractionNotifier) LastEvent() *ExtractionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastEvent == nil {
		return nil
	}
	copy := *n.lastEvent
	return &copy
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
