package remotenfc

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // phones connect from apps, not browsers
	},
}

// ServeHTTP handles a device WebSocket connection on /ws/device. The first
// message must be a registration; the connection then carries tag reports
// until it closes, which unregisters the device.
func (r *Radio) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("[remote] WebSocket upgrade error: %v", err)
		return
	}
	log.Printf("[remote] WebSocket connected from %s", req.RemoteAddr)

	device, err := r.register(conn)
	if err != nil {
		log.Printf("[remote] Registration failed: %v", err)
		conn.Close()
		return
	}
	defer r.UnregisterDevice(device.ID())

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var wsRequest protocol.WebSocketRequest
		if err := json.Unmarshal(message, &wsRequest); err != nil {
			log.Printf("[remote] Failed to parse message: %v", err)
			sendError(device, "", errCodeParseError, "Invalid message format")
			continue
		}
		if !device.Allow() {
			sendError(device, wsRequest.ID, errCodeRateLimited, "Too many messages")
			continue
		}
		if err := r.route(device, wsRequest); err != nil {
			log.Printf("[remote] Handler error for message type '%s': %v", wsRequest.Type, err)
		}
	}
}

func (r *Radio) register(conn *websocket.Conn) (*Device, error) {
	// Errors before registration go straight to the connection.
	unregistered := &Device{conn: conn}

	messageType, message, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read registration message: %w", err)
	}
	if messageType != websocket.TextMessage {
		sendError(unregistered, "", errCodeInvalidType, "Expected text message")
		return nil, fmt.Errorf("expected text message, got type %d", messageType)
	}

	var wsRequest protocol.WebSocketRequest
	if err := json.Unmarshal(message, &wsRequest); err != nil {
		sendError(unregistered, "", errCodeParseError, "Invalid message format")
		return nil, fmt.Errorf("parse registration message: %w", err)
	}
	if wsRequest.Type != protocol.MessageTypeRegisterDevice {
		sendError(unregistered, wsRequest.ID, errCodeInvalidType,
			fmt.Sprintf("Expected '%s' message", protocol.MessageTypeRegisterDevice))
		return nil, fmt.Errorf("expected '%s', got '%s'", protocol.MessageTypeRegisterDevice, wsRequest.Type)
	}

	var regReq protocol.DeviceRegistrationRequest
	if err := decodePayload(wsRequest.Payload, &regReq); err != nil {
		sendError(unregistered, wsRequest.ID, errCodeInvalidPayload, "Invalid registration request format")
		return nil, err
	}

	device, err := r.RegisterDevice(regReq, conn)
	if err != nil {
		sendError(unregistered, wsRequest.ID, errCodeInvalidRequest, err.Error())
		return nil, err
	}

	supported := make([]string, 0, len(nfc.AllTechnologies))
	for _, tech := range nfc.AllTechnologies {
		supported = append(supported, tech.String())
	}
	response := protocol.WebSocketResponse{
		ID:      wsRequest.ID,
		Type:    protocol.MessageTypeRegisterDeviceResponse,
		Success: true,
		Payload: protocol.DeviceRegistrationResponse{
			DeviceID: device.ID(),
			ServerInfo: protocol.ServerInfo{
				Version:      Version,
				SupportedNFC: supported,
			},
		},
	}
	if err := device.WriteJSON(response); err != nil {
		r.UnregisterDevice(device.ID())
		return nil, fmt.Errorf("send registration response: %w", err)
	}
	return device, nil
}

// route handles one message from a registered device.
func (r *Radio) route(device *Device, req protocol.WebSocketRequest) error {
	switch req.Type {
	case protocol.MessageTypeTagDetected:
		var data protocol.DeviceTagData
		if err := decodePayload(req.Payload, &data); err != nil {
			sendError(device, req.ID, errCodeInvalidPayload, "Invalid tag data format")
			return err
		}
		if data.DeviceID != device.ID() {
			sendError(device, req.ID, errCodeInvalidDevice, "deviceID does not match this connection")
			return fmt.Errorf("device %s posted tag for %q", device.ID(), data.DeviceID)
		}
		h, err := r.TagDetected(data)
		if err != nil {
			sendError(device, req.ID, errCodeInvalidRequest, err.Error())
			return err
		}
		log.Printf("[remote] Tag detected: device=%s, %s, %d NDEF bytes", device.ID(), h, len(data.NDEF))
		return nil

	case protocol.MessageTypeTagRemoved:
		var data protocol.DeviceTagRemovedData
		if err := decodePayload(req.Payload, &data); err != nil {
			sendError(device, req.ID, errCodeInvalidPayload, "Invalid tag removal format")
			return err
		}
		if data.DeviceID != device.ID() {
			sendError(device, req.ID, errCodeInvalidDevice, "deviceID does not match this connection")
			return fmt.Errorf("device %s posted removal for %q", device.ID(), data.DeviceID)
		}
		return r.TagRemoved(data)

	case protocol.MessageTypeDeviceHeartbeat:
		return r.UpdateHeartbeat(device.ID())

	default:
		sendError(device, req.ID, errCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
		return fmt.Errorf("unknown message type: %s", req.Type)
	}
}

// decodePayload re-decodes a generic JSON payload into v.
func decodePayload(payload map[string]any, v any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, v); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}

// sendError sends an error response to a device.
func sendError(device *Device, requestID string, errorCode string, message string) {
	response := protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.MessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{
			"code": errorCode,
		},
	}
	if err := device.WriteJSON(response); err != nil {
		log.Printf("[remote] Failed to send error response: %v", err)
	}
}
