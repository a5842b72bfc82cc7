package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/ndefscan/protocol"
)

// HandlerFunc handles one request from a display client.
type HandlerFunc func(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error

// HandlerRegistry routes display client requests by message type.
type HandlerRegistry struct {
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
}

// NewHandlerRegistry creates a new handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler function for a specific message type.
// Returns an error if a handler for the same message type is already registered.
func (r *HandlerRegistry) Handle(messageType string, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if messageType == "" {
		return fmt.Errorf("message type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[messageType]; exists {
		return fmt.Errorf("handler for message type '%s' already registered", messageType)
	}
	r.handlers[messageType] = handler
	return nil
}

// Get retrieves a handler function by message type.
func (r *HandlerRegistry) Get(messageType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[messageType]
	return handler, ok
}

// MessageTypes returns all registered message types, sorted.
func (r *HandlerRegistry) MessageTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
