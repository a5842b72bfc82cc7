package nfc

import (
	"context"
	"fmt"
	"sync"
)

// MockRadio is a scripted Radio for tests and for running the agent without
// hardware.
//
// Each method uses its func field when set, otherwise the static fields.
// Every call is appended to CallLog.
//
// Example:
//
//	radio := NewMockRadio()
//	radio.Tag = NewTagHandle([]byte{0x04, 0xA1}, TechMiFare)
//	radio.NDEF = encodedMessage
//	session := NewSession(radio)
type MockRadio struct {
	// Tag is returned by Poll when PollFunc is nil. A nil Tag makes Poll
	// block until its context ends.
	Tag *TagHandle

	// PollError, if set, is returned by Poll
	PollError error

	// ConnectError, if set, is returned by Connect
	ConnectError error

	// NDEF, if non-nil, is returned by ReadNDEF; otherwise ReadNDEF declines
	// and the session runs the technology's read strategy.
	NDEF []byte

	// ReadError, if set, is returned by ReadNDEF
	ReadError error

	// Responses maps a hex-encoded command to its response for Transceive.
	Responses map[string][]byte

	// TransceiveError, if set, will be returned by Transceive()
	TransceiveError error

	PollFunc       func(ctx context.Context) (*TagHandle, error)
	ConnectFunc    func(ctx context.Context, h *TagHandle) error
	TransceiveFunc func(ctx context.Context, h *TagHandle, tx []byte) ([]byte, error)
	ReadNDEFFunc   func(ctx context.Context, h *TagHandle) ([]byte, error)

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	invalidations chan string
	closed        bool
	mu            sync.Mutex
}

// NewMockRadio creates a MockRadio with an empty script.
func NewMockRadio() *MockRadio {
	return &MockRadio{
		Responses:     make(map[string][]byte),
		CallLog:       make([]string, 0),
		invalidations: make(chan string, 4),
	}
}

func (m *MockRadio) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, call)
}

// Poll simulates waiting for a tag.
func (m *MockRadio) Poll(ctx context.Context) (*TagHandle, error) {
	m.record("Poll")
	if m.isClosed() {
		return nil, ErrRadioClosed
	}
	if m.PollFunc != nil {
		return m.PollFunc(ctx)
	}
	if m.PollError != nil {
		return nil, m.PollError
	}
	if m.Tag == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.Tag, nil
}

// Connect simulates selecting the tag.
func (m *MockRadio) Connect(ctx context.Context, h *TagHandle) error {
	m.record("Connect")
	if err := CheckHandle("Connect", h); err != nil {
		return err
	}
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, h)
	}
	return m.ConnectError
}

// Transceive answers from Responses.
func (m *MockRadio) Transceive(ctx context.Context, h *TagHandle, tx []byte) ([]byte, error) {
	m.record(fmt.Sprintf("Transceive(%X)", tx))
	if err := CheckHandle("Transceive", h); err != nil {
		return nil, err
	}
	if m.TransceiveFunc != nil {
		return m.TransceiveFunc(ctx, h, tx)
	}
	if m.TransceiveError != nil {
		return nil, m.TransceiveError
	}
	m.mu.Lock()
	resp, ok := m.Responses[fmt.Sprintf("%X", tx)]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mock: no response scripted for %X", tx)
	}
	return resp, nil
}

// ReadNDEF returns NDEF when scripted and declines otherwise.
func (m *MockRadio) ReadNDEF(ctx context.Context, h *TagHandle) ([]byte, error) {
	m.record("ReadNDEF")
	if err := CheckHandle("ReadNDEF", h); err != nil {
		return nil, err
	}
	if m.ReadNDEFFunc != nil {
		return m.ReadNDEFFunc(ctx, h)
	}
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if m.NDEF == nil {
		return nil, ErrNativeReadUnavailable
	}
	return m.NDEF, nil
}

// Respond scripts the response to a command.
func (m *MockRadio) Respond(cmd, resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[fmt.Sprintf("%X", cmd)] = resp
}

// Invalidate delivers an asynchronous invalidation to the running session.
func (m *MockRadio) Invalidate(reason string) {
	m.invalidations <- reason
}

// Invalidations implements Radio.
func (m *MockRadio) Invalidations() <-chan string {
	return m.invalidations
}

// Close marks the radio closed.
func (m *MockRadio) Close() error {
	m.record("Close")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("radio already closed")
	}
	m.closed = true
	return nil
}

func (m *MockRadio) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockRadio) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// BlockUntilDone is a PollFunc, ConnectFunc or ReadNDEFFunc body that waits
// for the context, leaving the test to drive the session with Dispatch.
func BlockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
