package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/ndefscan/buildinfo"
	"github.com/dotside-studios/ndefscan/protocol"
)

// handleHealthCheck reports the agent's status.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, protocol.ErrCodeInvalidRequest, "Method not allowed")
		return
	}

	resp := protocol.HealthResponse{
		Status:    "ok",
		Version:   buildinfo.Version,
		Commit:    buildinfo.Commit,
		BuildTime: buildinfo.BuildTime,
		Clients:   s.clients.Count(),
	}
	if s.config.Scanner != nil {
		resp.Radio = s.config.Scanner.RadioName()
		resp.ActiveSession = s.config.Scanner.ActiveSession()
	}
	if s.config.DeviceCount != nil {
		resp.Devices = s.config.DeviceCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScan starts a read session. DELETE cancels the running one.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, protocol.ErrCodeUnauthorized, "Unauthorized: Invalid API secret")
		return
	}
	if s.config.Scanner == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.ErrCodeInternalError, "No radio configured")
		return
	}

	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		if !s.config.Scanner.CancelScan() {
			writeError(w, http.StatusNotFound, protocol.ErrCodeInvalidRequest, "No session is running")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		writeError(w, http.StatusMethodNotAllowed, protocol.ErrCodeInvalidRequest, "Method not allowed")
		return
	}

	var req protocol.ScanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, "Invalid scan request: "+err.Error())
			return
		}
	}

	resp, err := s.config.Scanner.StartScan(req)
	if err != nil {
		status, code := scanErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func scanErrorStatus(err error) (int, string) {
	if errors.Is(err, ErrSessionBusy) {
		return http.StatusConflict, protocol.ErrCodeSessionBusy
	}
	var invalid *InvalidScanError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest, protocol.ErrCodeInvalidRequest
	}
	return http.StatusInternalServerError, protocol.ErrCodeInternalError
}

// InvalidScanError reports a scan request the scanner cannot honour.
type InvalidScanError struct {
	Reason string
}

func (e *InvalidScanError) Error() string {
	return "invalid scan request: " + e.Reason
}

// handleDecode decodes a hex or base64 NDEF message without touching the radio.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, protocol.ErrCodeInvalidRequest, "Method not allowed")
		return
	}

	var req protocol.DecodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, "Invalid decode request: "+err.Error())
		return
	}

	resp, err := DecodeNDEF(req)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, protocol.DecodeResponse{
			Error:     err.Error(),
			ErrorCode: protocol.ErrCodeInvalidNDEF,
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEncode builds an NDEF message from record descriptions.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, protocol.ErrCodeInvalidRequest, "Method not allowed")
		return
	}

	var req protocol.EncodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, "Invalid encode request: "+err.Error())
		return
	}

	resp, err := EncodeNDEF(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWebSocket upgrades a display client connection, replays the last
// result, and serves scan and cancel requests until the client leaves.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		log.Printf("WebSocket connection rejected: invalid API secret")
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	s.clients.Register(conn)
	log.Printf("WebSocket client connected from %s", r.RemoteAddr)

	defer func() {
		s.clients.Unregister(conn)
		conn.Close()
		log.Printf("WebSocket client disconnected from %s", r.RemoteAddr)
	}()

	if last := s.clients.LastResult(); last != nil {
		s.clients.Send(conn, protocol.WebSocketMessage{
			ID:      last.SessionID,
			Type:    protocol.WSTypeSessionResult,
			Payload: last,
		})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.sendError(conn, "", protocol.ErrCodeInvalidRequest, "Invalid message format")
			continue
		}

		handler, ok := s.handlers.Get(req.Type)
		if !ok {
			s.sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, fmt.Sprintf("Unknown message type: %s (supported: %s)", req.Type, strings.Join(s.handlers.MessageTypes(), ", ")))
			continue
		}
		if err := handler(r.Context(), conn, req); err != nil {
			log.Printf("Handler error for message type '%s': %v", req.Type, err)
		}
	}
}

// handleScanRequest starts a session on behalf of a display client.
func (s *Server) handleScanRequest(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	var scanReq protocol.ScanRequest
	if err := decodePayload(req.Payload, &scanReq); err != nil {
		s.sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, "Invalid scan request payload")
		return err
	}

	resp, err := s.config.Scanner.StartScan(scanReq)
	if err != nil {
		_, code := scanErrorStatus(err)
		s.sendError(conn, req.ID, code, err.Error())
		return err
	}
	return s.clients.Send(conn, protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    WSRequestTypeScan,
		Success: true,
		Payload: resp,
	})
}

// handleCancelRequest cancels the running session on behalf of a display client.
func (s *Server) handleCancelRequest(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	if !s.config.Scanner.CancelScan() {
		s.sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, "No session is running")
		return nil
	}
	return s.clients.Send(conn, protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    WSRequestTypeCancel,
		Success: true,
	})
}

// sendError sends an error response to a display client.
func (s *Server) sendError(conn *websocket.Conn, requestID, errorCode, message string) {
	response := protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{
			"code": errorCode,
		},
	}
	if err := s.clients.Send(conn, response); err != nil {
		log.Printf("Failed to send error response: %v", err)
	}
}

// decodePayload re-decodes a generic JSON payload into v.
func decodePayload(payload map[string]any, v any) error {
	if payload == nil {
		return nil
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, v); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: message, ErrorCode: code})
}
