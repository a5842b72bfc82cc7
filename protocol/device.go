package protocol

import "time"

// Message types on the /ws/device connection
const (
	MessageTypeRegisterDevice         = "registerDevice"
	MessageTypeRegisterDeviceResponse = "registerDeviceResponse"
	MessageTypeTagDetected            = "tagDetected"
	MessageTypeTagRemoved             = "tagRemoved"
	MessageTypeDeviceHeartbeat        = "deviceHeartbeat"
	MessageTypeError                  = "error"
)

// DeviceCapabilities defines the capabilities of a connected NFC device.
type DeviceCapabilities struct {
	CanRead bool   `json:"canRead"`
	NFCType string `json:"nfcType"` // "nfca", "nfcf", "nfcv", "isodep", etc.
}

// DeviceRegistrationRequest is sent by a device to register with the server.
type DeviceRegistrationRequest struct {
	DeviceName   string             `json:"deviceName"` // e.g., "Ana's Pixel 8"
	Platform     string             `json:"platform"`   // "ios" or "android"
	AppVersion   string             `json:"appVersion"`
	Capabilities DeviceCapabilities `json:"capabilities"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// DeviceRegistrationResponse is sent by server after successful registration.
type DeviceRegistrationResponse struct {
	DeviceID   string     `json:"deviceID"` // UUID
	ServerInfo ServerInfo `json:"serverInfo"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	Version      string   `json:"version"`
	SupportedNFC []string `json:"supportedNFC"` // technology names
}

// DeviceTagData is sent by a device when a tag enters its field.
type DeviceTagData struct {
	DeviceID   string    `json:"deviceID"`
	UID        string    `json:"uid"`        // hex, separators allowed
	Technology string    `json:"technology"` // technology name or NFC Forum type
	Type       string    `json:"type,omitempty"`
	ScannedAt  time.Time `json:"scannedAt"`

	// NDEF is the raw NDEF message the phone read, base64 in JSON.
	// Empty when the tag has none.
	NDEF []byte `json:"ndef,omitempty"`
}

// DeviceHeartbeat is sent by a device periodically.
type DeviceHeartbeat struct {
	DeviceID  string    `json:"deviceID"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceTagRemovedData is sent by a device when a tag leaves the NFC field.
type DeviceTagRemovedData struct {
	DeviceID  string    `json:"deviceID"`
	UID       string    `json:"uid"`
	RemovedAt time.Time `json:"removedAt"`
}
