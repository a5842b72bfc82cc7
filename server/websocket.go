package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
)

const clientWriteTimeout = 5 * time.Second

// WebsocketClientManager manages display client connections and
// broadcasting. All writes to a connection go through it, so a connection
// never has two concurrent writers.
type WebsocketClientManager struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex

	lastResult *protocol.SessionResultPayload
	resultMu   sync.RWMutex
}

// NewClientManager creates a new WebsocketClientManager instance.
func NewClientManager() *WebsocketClientManager {
	return &WebsocketClientManager{
		clients: make(map[*websocket.Conn]bool),
	}
}

// Register adds a new client connection.
func (cm *WebsocketClientManager) Register(conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[conn] = true
}

// Unregister removes a client connection.
func (cm *WebsocketClientManager) Unregister(conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, conn)
}

// Count returns the number of connected clients.
func (cm *WebsocketClientManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// CloseAll closes all client connections.
func (cm *WebsocketClientManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for client := range cm.clients {
		client.Close()
		delete(cm.clients, client)
	}
}

// LastResult returns the last broadcast session result.
func (cm *WebsocketClientManager) LastResult() *protocol.SessionResultPayload {
	cm.resultMu.RLock()
	defer cm.resultMu.RUnlock()
	return cm.lastResult
}

// Send writes one message to conn.
func (cm *WebsocketClientManager) Send(conn *websocket.Conn, message any) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	return conn.WriteJSON(message)
}

// broadcast sends a message to all connected clients.
func (cm *WebsocketClientManager) broadcast(message protocol.WebSocketMessage) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for client := range cm.clients {
		client.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		if err := client.WriteJSON(message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			client.Close()
			delete(cm.clients, client)
		}
	}
}

// BroadcastSessionStarted announces a new session to all clients.
func (cm *WebsocketClientManager) BroadcastSessionStarted(payload protocol.SessionStartedPayload) {
	cm.broadcast(protocol.WebSocketMessage{
		ID:      payload.SessionID,
		Type:    protocol.WSTypeSessionStarted,
		Payload: payload,
	})
}

// BroadcastState sends a state change of a running session.
func (cm *WebsocketClientManager) BroadcastState(sessionID string, state nfc.State) {
	cm.broadcast(protocol.WebSocketMessage{
		ID:   sessionID,
		Type: protocol.WSTypeSessionState,
		Payload: protocol.SessionStatePayload{
			SessionID: sessionID,
			State:     state.String(),
		},
	})
}

// BroadcastResult sends the terminal result of a session to all clients.
func (cm *WebsocketClientManager) BroadcastResult(r nfc.Result) {
	payload := ResultPayload(r)

	cm.resultMu.Lock()
	cm.lastResult = &payload
	cm.resultMu.Unlock()

	cm.broadcast(protocol.WebSocketMessage{
		ID:      payload.SessionID,
		Type:    protocol.WSTypeSessionResult,
		Payload: payload,
	})
}
