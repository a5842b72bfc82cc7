package nfc

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TagHandle identifies one physical tag for the lifetime of one session.
//
// Radios create handles on detection; the session that receives the handle
// owns it and invalidates it when it reaches a terminal state. Radios must
// refuse to operate on an invalid handle.
type TagHandle struct {
	ID         string // Unique per detection
	UID        []byte
	Technology Technology
	Type       string // Radio-specific product name, e.g. "NTAG215"
	Source     string // Radio or device the tag was seen on

	// Target is radio-private state (a libnfc target, a PC/SC card, ...).
	Target any

	mu      sync.Mutex
	invalid bool
}

// NewTagHandle creates a valid handle with a fresh ID.
func NewTagHandle(uid []byte, tech Technology) *TagHandle {
	return &TagHandle{
		ID:         uuid.New().String(),
		UID:        append([]byte(nil), uid...),
		Technology: tech,
	}
}

// UIDString returns the UID as lowercase hex.
func (h *TagHandle) UIDString() string {
	if h == nil {
		return ""
	}
	return hex.EncodeToString(h.UID)
}

// Valid reports whether the handle may still be used.
func (h *TagHandle) Valid() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.invalid
}

// Invalidate marks the handle unusable. It is idempotent.
func (h *TagHandle) Invalidate() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.invalid = true
	h.mu.Unlock()
}

func (h *TagHandle) String() string {
	if h == nil {
		return "<no tag>"
	}
	if h.Type != "" {
		return fmt.Sprintf("%s %s (%s)", h.Technology, h.UIDString(), h.Type)
	}
	return fmt.Sprintf("%s %s", h.Technology, h.UIDString())
}

// CheckHandle returns an error if h is nil or has been invalidated. Radios
// call it before touching the hardware.
func CheckHandle(op string, h *TagHandle) error {
	if h == nil {
		return Errorf(ErrCodeSessionInvalidated, op, "no tag handle")
	}
	if !h.Valid() {
		return NewInvalidatedError(op, h.UIDString(), "tag handle is no longer valid")
	}
	return nil
}
