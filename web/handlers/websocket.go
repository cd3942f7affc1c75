package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// TurnEvent is broadcast to websocket subscribers after each completed turn,
// so dashboards and bot adapters can observe the conversation live.
type TurnEvent struct {
	Type      string `json:"type"` // "turn" or "image"
	UserID    string `json:"user_id"`
	ContextID string `json:"context_id"`
	Text      string `json:"text"`
	Reply     string `json:"reply"`
}

// WebSocketHub fans out turn events to connected clients.
type WebSocketHub struct {
	clients    map[clientConn]bool
	broadcast  chan interface{}
	register   chan clientConn
	unregister chan clientConn
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// clientConn abstracts the connection so tests can use a mock.
type clientConn interface {
	sendChannel() chan []byte
	close()
}

type wsClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) sendChannel() chan []byte { return c.send }

func (c *wsClient) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// NewWebSocketHub creates a hub; call Run in a goroutine to start it.
func NewWebSocketHub() *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:    make(map[clientConn]bool),
		broadcast:  make(chan interface{}, 256),
		register:   make(chan clientConn),
		unregister: make(chan clientConn),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes register/unregister/broadcast events until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws: client connected (total: %d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.sendChannel())
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws: client disconnected (total: %d)", total)

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("ws: failed to marshal event: %v", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.sendChannel() <- data:
				default:
					// Slow consumer; drop it rather than block the hub.
					close(client.sendChannel())
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *WebSocketHub) Stop() {
	h.cancel()
	h.mu.Lock()
	for client := range h.clients {
		close(client.sendChannel())
		client.close()
	}
	h.clients = make(map[clientConn]bool)
	h.mu.Unlock()
}

// Broadcast queues an event for every connected client. Drops when the
// broadcast channel is full; the feed is observational, not durable.
func (h *WebSocketHub) Broadcast(event interface{}) {
	select {
	case h.broadcast <- event:
	default:
		log.Println("ws: broadcast channel full, dropping event")
	}
}

// ServeHTTP upgrades the request to a websocket subscription.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) writePump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()
	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			return
		}
	}
}

// readPump drains inbound frames to detect disconnects.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
