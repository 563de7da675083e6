// events.go - WebSocket fan-out of batch events
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/devtoolbox/backend/internal/queue"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	subscriberBuffer  = 64
	keepAliveInterval = 30 * time.Second
)

// WSMessage is the envelope of every frame on the events socket
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error frame
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// BatchLookup finds live batches by id
type BatchLookup interface {
	Get(id string) (*queue.Batch, bool)
}

// EventHub fans batch events out to WebSocket subscribers
type EventHub struct {
	batches  BatchLookup
	upgrader websocket.Upgrader
	readLim  int64

	// touchEvery is how often an open socket refreshes its batch's last access
	touchEvery time.Duration

	mu   sync.RWMutex
	subs map[string]map[chan queue.Event]struct{}
}

// NewEventHub creates a hub. maxMessageKB bounds client frames.
func NewEventHub(batches BatchLookup, maxMessageKB int) *EventHub {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &EventHub{
		batches: batches,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		readLim:    int64(maxMessageKB) * 1024,
		touchEvery: keepAliveInterval,
		subs:       make(map[string]map[chan queue.Event]struct{}),
	}
}

// Notifier returns the queue notifier feeding this hub for one batch
func (h *EventHub) Notifier(_ string) queue.Notifier {
	return queue.NotifierFunc(h.Publish)
}

// Publish delivers e to every subscriber of its batch. Slow subscribers
// lose events rather than stalling the queue.
func (h *EventHub) Publish(e queue.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[e.BatchID] {
		select {
		case ch <- e:
		default:
			fmt.Printf("[Events %s] Dropping %s for slow subscriber\n", shortID(e.BatchID), e.Type)
		}
	}
}

// Subscribe registers a new listener for batchID
func (h *EventHub) Subscribe(batchID string) <-chan queue.Event {
	ch := make(chan queue.Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[batchID] == nil {
		h.subs[batchID] = make(map[chan queue.Event]struct{})
	}
	h.subs[batchID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a listener; unknown channels are ignored
func (h *EventHub) Unsubscribe(batchID string, sub <-chan queue.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[batchID] {
		if ch == sub {
			delete(h.subs[batchID], ch)
			close(ch)
		}
	}
	if len(h.subs[batchID]) == 0 {
		delete(h.subs, batchID)
	}
}

// CloseBatch disconnects every subscriber of a deleted batch
func (h *EventHub) CloseBatch(batchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[batchID] {
		close(ch)
	}
	delete(h.subs, batchID)
}

// Subscribers returns the number of listeners for batchID
func (h *EventHub) Subscribers(batchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[batchID])
}

// HandleBatchEvents upgrades to WebSocket and streams the batch's events
func (h *EventHub) HandleBatchEvents(c echo.Context) error {
	id := c.Param("id")
	batch, ok := h.batches.Get(id)
	if !ok {
		return NewNotFoundError("batch", id)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(h.readLim)

	events := h.Subscribe(id)
	defer h.Unsubscribe(id, events)

	fmt.Printf("[Events %s] Client connected\n", shortID(id))

	// Send welcome message with the current entries
	h.sendMessage(ws, WSMessage{
		Type:      MsgTypeConnected,
		ID:        id,
		Payload:   mustJSON(newBatchView(batch)),
		Timestamp: time.Now().UnixMilli(),
	})

	// Only this goroutine writes; the reader forwards replies.
	replies := make(chan WSMessage, 4)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("[Events %s] Connection error: %v\n", shortID(id), err)
				}
				return
			}
			reply := replyTo(msg)
			select {
			case replies <- reply:
			default:
			}
		}
	}()

	// An open socket keeps its batch from being cleaned up as idle
	keepAlive := time.NewTicker(h.touchEvery)
	defer keepAlive.Stop()

	for {
		select {
		case <-readerDone:
			fmt.Printf("[Events %s] Client disconnected\n", shortID(id))
			return nil
		case reply := <-replies:
			h.sendMessage(ws, reply)
		case <-keepAlive.C:
			h.batches.Get(id)
		case ev, ok := <-events:
			if !ok {
				// Batch deleted
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch closed"))
				return nil
			}
			h.sendMessage(ws, WSMessage{
				Type:      ev.Type,
				ID:        ev.EntryID,
				Payload:   mustJSON(ev),
				Timestamp: ev.Timestamp,
			})
		}
	}
}

// replyTo answers one client frame: pong for ping, an error otherwise.
func replyTo(msg WSMessage) WSMessage {
	now := time.Now().UnixMilli()
	if msg.Type == MsgTypePing {
		return WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: now}
	}
	return WSMessage{
		Type: MsgTypeError,
		ID:   msg.ID,
		Payload: mustJSON(WSErrorResponse{
			Message: fmt.Sprintf("unknown message type: %q", msg.Type),
			Code:    "UNKNOWN_MESSAGE_TYPE",
		}),
		Timestamp: now,
	}
}

// Helper methods

func (h *EventHub) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
