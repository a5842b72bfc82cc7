// Package remotenfc turns phones connected over WebSocket into an nfc.Radio.
//
// A phone registers on /ws/device, then reports each tag it reads together
// with the raw NDEF message. Phones read NDEF with their own stack, so the
// radio serves reads natively and never relays raw frames.
package remotenfc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
)

// ErrTransceiveUnsupported is returned by Transceive: phones only report
// whole NDEF messages.
var ErrTransceiveUnsupported = errors.New("remotenfc: remote devices do not relay raw frames")

// remoteTag is the Target of handles created by the radio.
type remoteTag struct {
	deviceID string
	ndef     []byte
}

// Radio implements nfc.Radio and nfc.NDEFReader over registered phones.
type Radio struct {
	mu                sync.RWMutex
	devices           map[string]*Device // deviceID -> device
	closed            bool
	inactivityTimeout time.Duration

	// pending is the latest reported tag not yet handed to a session; a newer
	// report replaces it.
	pending *nfc.TagHandle
	// current is the tag handed to the running session.
	current  *nfc.TagHandle
	tagReady chan struct{}

	invalidations chan string
	stopCleanup   chan struct{}
}

// NewRadio creates a radio with no devices. A zero inactivityTimeout uses
// DeviceTimeout.
func NewRadio(inactivityTimeout time.Duration) *Radio {
	if inactivityTimeout == 0 {
		inactivityTimeout = DeviceTimeout
	}
	r := &Radio{
		devices:           make(map[string]*Device),
		inactivityTimeout: inactivityTimeout,
		tagReady:          make(chan struct{}, 1),
		invalidations:     make(chan string, 1),
		stopCleanup:       make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

func (r *Radio) String() string {
	return "remote"
}

// RegisterDevice validates req and registers a new device for conn.
func (r *Radio) RegisterDevice(req protocol.DeviceRegistrationRequest, conn *websocket.Conn) (*Device, error) {
	if req.DeviceName == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if req.Platform != "ios" && req.Platform != "android" {
		return nil, fmt.Errorf("invalid platform: %s (must be 'ios' or 'android')", req.Platform)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nfc.ErrRadioClosed
	}
	device := newDevice(uuid.New().String(), req, conn)
	r.devices[device.id] = device

	log.Printf("[remote] Device registered: %s (%s, %s)", device, req.Platform, req.AppVersion)
	return device, nil
}

// UnregisterDevice removes a device. A tag it reported that a session still
// holds is invalidated.
func (r *Radio) UnregisterDevice(deviceID string) error {
	r.mu.Lock()
	device, exists := r.devices[deviceID]
	if exists {
		delete(r.devices, deviceID)
		r.dropTagsLocked(deviceID, nil, "device disconnected")
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("device not found: %s", deviceID)
	}
	if err := device.Close(); err != nil {
		log.Printf("[remote] Error closing device %s: %v", deviceID, err)
	}
	log.Printf("[remote] Device unregistered: %s", device)
	return nil
}

// GetDevice retrieves a device by ID.
func (r *Radio) GetDevice(deviceID string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, exists := r.devices[deviceID]
	return device, exists
}

// DeviceCount returns the number of registered devices.
func (r *Radio) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// TagDetected records a tag reported by a device and wakes a polling
// session.
func (r *Radio) TagDetected(data protocol.DeviceTagData) (*nfc.TagHandle, error) {
	uid, err := protocol.UIDBytes(data.UID)
	if err != nil {
		return nil, fmt.Errorf("invalid UID format: %w", err)
	}
	tech, err := nfc.ParseTechnology(data.Technology)
	if err != nil {
		tech, err = nfc.ParseTechnology(protocol.InferTechnology(data.Technology + " " + data.Type))
		if err != nil {
			tech = nfc.TechUnknown
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	device, exists := r.devices[data.DeviceID]
	if !exists {
		return nil, fmt.Errorf("device not found: %s", data.DeviceID)
	}
	device.UpdateLastSeen()

	h := nfc.NewTagHandle(uid, tech)
	h.Type = data.Type
	h.Source = device.String()
	h.Target = remoteTag{deviceID: device.id, ndef: append([]byte(nil), data.NDEF...)}
	r.pending = h

	select {
	case r.tagReady <- struct{}{}:
	default:
	}
	return h, nil
}

// TagRemoved forgets a pending report of the tag and invalidates the
// session holding it.
func (r *Radio) TagRemoved(data protocol.DeviceTagRemovedData) error {
	uid, err := protocol.UIDBytes(data.UID)
	if err != nil {
		return fmt.Errorf("invalid UID format: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	device, exists := r.devices[data.DeviceID]
	if !exists {
		return fmt.Errorf("device not found: %s", data.DeviceID)
	}
	device.UpdateLastSeen()
	r.dropTagsLocked(data.DeviceID, uid, "tag removed")
	return nil
}

// UpdateHeartbeat updates device last-seen timestamp.
func (r *Radio) UpdateHeartbeat(deviceID string) error {
	device, exists := r.GetDevice(deviceID)
	if !exists {
		return fmt.Errorf("device not found: %s", deviceID)
	}
	device.UpdateLastSeen()
	return nil
}

// dropTagsLocked clears the pending tag and invalidates the current one if
// they came from deviceID (and, when uid is set, match it).
func (r *Radio) dropTagsLocked(deviceID string, uid []byte, reason string) {
	matches := func(h *nfc.TagHandle) bool {
		if h == nil {
			return false
		}
		t, ok := h.Target.(remoteTag)
		if !ok || t.deviceID != deviceID {
			return false
		}
		return uid == nil || bytes.Equal(h.UID, uid)
	}

	if matches(r.pending) {
		r.pending = nil
	}
	if matches(r.current) {
		if r.current.Valid() {
			select {
			case r.invalidations <- reason:
			default:
			}
		}
		r.current = nil
	}
}

// Poll waits for a device to report a tag.
func (r *Radio) Poll(ctx context.Context) (*nfc.TagHandle, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, nfc.ErrRadioClosed
		}
		if h := r.pending; h != nil {
			r.pending = nil
			r.current = h
			r.mu.Unlock()
			return h, nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.tagReady:
		}
	}
}

// Connect checks that the reporting device is still registered.
func (r *Radio) Connect(ctx context.Context, h *nfc.TagHandle) error {
	if err := nfc.CheckHandle("Connect", h); err != nil {
		return err
	}
	t, ok := h.Target.(remoteTag)
	if !ok {
		return fmt.Errorf("handle %s was not created by a remote device", h)
	}
	if _, exists := r.GetDevice(t.deviceID); !exists {
		return nfc.NewCardRemovedError(fmt.Errorf("device %s disconnected", t.deviceID))
	}
	return nil
}

// Transceive is not supported; see ReadNDEF.
func (r *Radio) Transceive(ctx context.Context, h *nfc.TagHandle, tx []byte) ([]byte, error) {
	if err := nfc.CheckHandle("Transceive", h); err != nil {
		return nil, err
	}
	return nil, ErrTransceiveUnsupported
}

// ReadNDEF returns the message the device reported with the tag.
func (r *Radio) ReadNDEF(ctx context.Context, h *nfc.TagHandle) ([]byte, error) {
	if err := nfc.CheckHandle("ReadNDEF", h); err != nil {
		return nil, err
	}
	t, ok := h.Target.(remoteTag)
	if !ok {
		return nil, nfc.ErrNativeReadUnavailable
	}
	if len(t.ndef) == 0 {
		return nil, nfc.ErrNoNDEFMessage
	}
	return append([]byte(nil), t.ndef...), nil
}

// Invalidations implements nfc.Radio.
func (r *Radio) Invalidations() <-chan string {
	return r.invalidations
}

// Close disconnects every device.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	devices := r.devices
	r.devices = make(map[string]*Device)
	r.pending = nil
	r.mu.Unlock()

	close(r.stopCleanup)
	// Wake a blocked Poll so it sees closed.
	select {
	case r.tagReady <- struct{}{}:
	default:
	}

	for id, device := range devices {
		if err := device.Close(); err != nil {
			log.Printf("[remote] Error closing device %s: %v", id, err)
		}
	}
	log.Printf("[remote] Radio closed")
	return nil
}

func (r *Radio) cleanupLoop() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.cleanupInactiveDevices(time.Now())
		case <-r.stopCleanup:
			return
		}
	}
}

// cleanupInactiveDevices removes devices that exceeded inactivity timeout.
func (r *Radio) cleanupInactiveDevices(now time.Time) {
	var stale []string
	r.mu.RLock()
	for id, device := range r.devices {
		if now.Sub(device.LastSeen()) > r.inactivityTimeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		log.Printf("[remote] Cleaning up inactive device %s", id)
		r.UnregisterDevice(id)
	}
}

var (
	_ nfc.Radio      = (*Radio)(nil)
	_ nfc.NDEFReader = (*Radio)(nil)
)
