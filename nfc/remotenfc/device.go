package remotenfc

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dotside-studios/ndefscan/protocol"
)

// Device is a registered phone connected over /ws/device.
type Device struct {
	id         string
	name       string
	platform   string
	appVersion string
	metadata   map[string]string

	conn    *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter

	mu       sync.RWMutex
	lastSeen time.Time
	active   bool
}

func newDevice(id string, req protocol.DeviceRegistrationRequest, conn *websocket.Conn) *Device {
	return &Device{
		id:         id,
		name:       req.DeviceName,
		platform:   req.Platform,
		appVersion: req.AppVersion,
		metadata:   req.Metadata,
		conn:       conn,
		limiter:    rate.NewLimiter(frameRate, frameBurst),
		lastSeen:   time.Now(),
		active:     true,
	}
}

// ID returns the device's unique identifier.
func (d *Device) ID() string {
	return d.id
}

// Platform returns "ios" or "android".
func (d *Device) Platform() string {
	return d.platform
}

func (d *Device) String() string {
	return fmt.Sprintf("%s [remote:%s]", d.name, d.id)
}

// Allow reports whether the device may send another frame now.
func (d *Device) Allow() bool {
	return d.limiter.Allow()
}

// UpdateLastSeen updates the device's last activity timestamp.
func (d *Device) UpdateLastSeen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = time.Now()
}

// LastSeen returns the last activity timestamp.
func (d *Device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// IsActive returns whether the device is still connected.
func (d *Device) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// WriteJSON sends v to the device. Writes from different goroutines are
// serialized.
func (d *Device) WriteJSON(v any) error {
	if d.conn == nil {
		return fmt.Errorf("device %s has no connection", d.id)
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return d.conn.WriteJSON(v)
}

// Close marks the device inactive and closes its connection.
func (d *Device) Close() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	d.active = false
	d.mu.Unlock()

	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
