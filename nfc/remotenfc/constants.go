package remotenfc

import (
	"time"

	"golang.org/x/time/rate"
)

// Device timing constants
const (
	DeviceTimeout   = 30 * time.Second // Device inactivity timeout
	CleanupInterval = 15 * time.Second // Cleanup check interval
	writeTimeout    = 5 * time.Second
)

// Inbound frames per device. Phones report a tag once per tap; anything
// faster is a misbehaving client.
const (
	frameRate  rate.Limit = 10
	frameBurst            = 20
)

// Error codes sent back to devices
const (
	errCodeReadError      = "READ_ERROR"
	errCodeParseError     = "PARSE_ERROR"
	errCodeInvalidType    = "INVALID_MESSAGE_TYPE"
	errCodeInvalidPayload = "INVALID_PAYLOAD"
	errCodeInvalidRequest = "INVALID_REQUEST"
	errCodeInvalidDevice  = "INVALID_DEVICE"
	errCodeRateLimited    = "RATE_LIMITED"
	errCodeUnknownType    = "UNKNOWN_TYPE"
)

// Version is reported to devices on registration.
var Version = "dev"
