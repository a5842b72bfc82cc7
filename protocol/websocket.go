package protocol

import "time"

// WebSocket message types sent to display clients
const (
	WSTypeSessionStarted = "sessionStarted"
	WSTypeSessionState   = "sessionState"
	WSTypeSessionResult  = "sessionResult"
	WSTypeError          = "error"
)

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionStartedPayload announces a new session.
type SessionStartedPayload struct {
	SessionID    string    `json:"sessionID"`
	Radio        string    `json:"radio"`
	Technologies []string  `json:"technologies"`
	StartedAt    time.Time `json:"startedAt"`
}

// SessionStatePayload reports a state change of a running session.
type SessionStatePayload struct {
	SessionID string `json:"sessionID"`
	State     string `json:"state"`
}

// SessionResultPayload is broadcast once per session when it ends.
type SessionResultPayload struct {
	SessionID  string `json:"sessionID"`
	State      string `json:"state"` // "completed" or "failed"
	UID        string `json:"uid,omitempty"`
	Technology string `json:"technology,omitempty"`
	Type       string `json:"type,omitempty"`
	Source     string `json:"source,omitempty"`

	// Text is the one line shown to the user
	Text string `json:"text"`

	Value        *DisplayValuePayload  `json:"value,omitempty"`
	Values       []DisplayValuePayload `json:"values,omitempty"`
	Message      *NDEFMessagePayload   `json:"message,omitempty"`
	InterpretErr string                `json:"interpretError,omitempty"`

	Error     *string `json:"err"`
	ErrorCode string  `json:"errorCode,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
