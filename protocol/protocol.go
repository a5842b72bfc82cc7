// Package protocol provides the JSON messages exchanged with display clients
// and remote NFC devices. It is importable without pulling in the agent.
package protocol

import "time"

// ScanRequest is the body of POST /api/v1/scan. All fields are optional.
type ScanRequest struct {
	// Technologies restricts the session to these tag families
	// ("mifare", "iso7816", "iso15693", "felica" or "type2".."type5").
	Technologies []string `json:"technologies,omitempty"`

	// TimeoutMs overrides the agent's poll timeout
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

// ScanResponse is returned when a session has been started.
type ScanResponse struct {
	SessionID string    `json:"sessionID"`
	StartedAt time.Time `json:"startedAt"`
}

// DecodeRequest is the body of POST /api/v1/decode.
type DecodeRequest struct {
	// Data is an encoded NDEF message
	Data string `json:"data"`

	// Encoding is "hex" (default) or "base64"
	Encoding string `json:"encoding,omitempty"`
}

// DecodeResponse carries the decoded message, or the decode error.
type DecodeResponse struct {
	Message      *NDEFMessagePayload   `json:"message,omitempty"`
	Values       []DisplayValuePayload `json:"values,omitempty"`
	Text         string                `json:"text,omitempty"`
	InterpretErr string                `json:"interpretError,omitempty"`
	Error        string                `json:"error,omitempty"`
	ErrorCode    string                `json:"errorCode,omitempty"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit,omitempty"`
	BuildTime     string `json:"buildTime,omitempty"`
	Radio         string `json:"radio"`
	ActiveSession string `json:"activeSession,omitempty"`
	Clients       int    `json:"clients"`
	Devices       int    `json:"devices"`
}

// ErrorResponse is the body of a failed HTTP request.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// Error codes for HTTP and WebSocket error bodies
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidNDEF    = "INVALID_NDEF"
	ErrCodeSessionBusy    = "SESSION_BUSY"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// EncodeRequest is the body of POST /api/v1/encode.
type EncodeRequest struct {
	Records []RecordInput `json:"records"`

	// ChunkSize, when set, splits a single-record message into chunks of at
	// most this many payload bytes
	ChunkSize int `json:"chunkSize,omitempty"`
}

// RecordInput describes one record to encode.
type RecordInput struct {
	// Type is "text" (default), "uri", "mime" or "external"
	Type string `json:"type"`

	// Content is the text, URI, or MIME / external payload as a string
	Content string `json:"content"`

	// Language code for text records (default: "en")
	Language string `json:"language,omitempty"`

	// MimeType for mime records, or the domain:type name of external records
	MimeType string `json:"mimeType,omitempty"`
}

// EncodeResponse carries the encoded message.
type EncodeResponse struct {
	Hex    string `json:"hex"`
	Base64 string `json:"base64"`
	Length int    `json:"length"`
}
