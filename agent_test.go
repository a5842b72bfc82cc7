package main

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/ndefscan/config"
	"github.com/dotside-studios/ndefscan/ndef"
	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
	"github.com/dotside-studios/ndefscan/server"
)

// recordingDisplay keeps everything an agent reports.
type recordingDisplay struct {
	mu      sync.Mutex
	started []protocol.SessionStartedPayload
	states  []nfc.State
	results chan nfc.Result
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{results: make(chan nfc.Result, 16)}
}

func (d *recordingDisplay) SessionStarted(p protocol.SessionStartedPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = append(d.started, p)
}

func (d *recordingDisplay) SessionState(_ string, state nfc.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, state)
}

func (d *recordingDisplay) SessionResult(r nfc.Result) {
	d.results <- r
}

func (d *recordingDisplay) startedSessions() []protocol.SessionStartedPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.SessionStartedPayload(nil), d.started...)
}

func (d *recordingDisplay) seenStates() []nfc.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]nfc.State(nil), d.states...)
}

func (d *recordingDisplay) waitResult(t *testing.T) nfc.Result {
	t.Helper()
	select {
	case r := <-d.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a session result")
		return nfc.Result{}
	}
}

func textNDEF(t *testing.T, text string) []byte {
	t.Helper()
	rec, err := ndef.NewTextRecord(text, "en")
	require.NoError(t, err)
	data, err := ndef.EncodeMessage(ndef.NewMessage(rec))
	require.NoError(t, err)
	return data
}

// freshTags returns a PollFunc presenting a new handle for the same tag on
// every poll.
func freshTags() func(context.Context) (*nfc.TagHandle, error) {
	return func(context.Context) (*nfc.TagHandle, error) {
		return nfc.NewTagHandle([]byte{0x04, 0xA1, 0xB2, 0xC3}, nfc.TechMiFare), nil
	}
}

func noTag(ctx context.Context) (*nfc.TagHandle, error) {
	return nil, nfc.BlockUntilDone(ctx)
}

func newTestAgent(t *testing.T, radio nfc.Radio) (*Agent, *recordingDisplay) {
	t.Helper()
	cfg := config.Default()
	agent, err := NewAgent(radio, "mock", &cfg)
	require.NoError(t, err)
	agent.Logger = log.New(io.Discard, "", 0)
	display := newRecordingDisplay()
	agent.AddDisplay(display)
	t.Cleanup(agent.Stop)
	return agent, display
}

func (a *Agent) isBackgroundActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil && a.activeBackground
}

func TestAgentStartScan(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = freshTags()
	radio.NDEF = textNDEF(t, "hello")
	agent, display := newTestAgent(t, radio)

	resp, err := agent.StartScan(protocol.ScanRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)

	r := display.waitResult(t)
	assert.Equal(t, resp.SessionID, r.SessionID)
	assert.Equal(t, nfc.StateCompleted, r.State)
	assert.Equal(t, "NFC Data: hello", r.DisplayText())

	started := display.startedSessions()
	require.Len(t, started, 1)
	assert.Equal(t, resp.SessionID, started[0].SessionID)
	assert.Equal(t, "mock", started[0].Radio)
	assert.Equal(t, []string{"mifare", "iso7816", "iso15693", "felica"}, started[0].Technologies)
	assert.Equal(t, []nfc.State{nfc.StatePolling, nfc.StateConnecting, nfc.StateConnected, nfc.StateReading}, display.seenStates())

	require.Eventually(t, func() bool { return agent.ActiveSession() == "" }, time.Second, 10*time.Millisecond)
}

func TestAgentStartScanBusyAndCancel(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = noTag
	agent, display := newTestAgent(t, radio)

	resp, err := agent.StartScan(protocol.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, agent.ActiveSession())

	_, err = agent.StartScan(protocol.ScanRequest{})
	assert.ErrorIs(t, err, server.ErrSessionBusy)

	assert.True(t, agent.CancelScan())
	r := display.waitResult(t)
	assert.Equal(t, nfc.StateFailed, r.State)
	assert.Equal(t, nfc.ErrCodeCancelled, nfc.GetErrorCode(r.Err))

	require.Eventually(t, func() bool { return agent.ActiveSession() == "" }, time.Second, 10*time.Millisecond)
	assert.False(t, agent.CancelScan(), "nothing left to cancel")
}

func TestAgentInvalidScanRequest(t *testing.T) {
	agent, _ := newTestAgent(t, nfc.NewMockRadio())

	tests := []struct {
		name string
		req  protocol.ScanRequest
	}{
		{name: "unknown technology", req: protocol.ScanRequest{Technologies: []string{"type2", "bluetooth"}}},
		{name: "negative timeout", req: protocol.ScanRequest{TimeoutMs: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agent.StartScan(tt.req)
			var invalid *server.InvalidScanError
			assert.ErrorAs(t, err, &invalid)
		})
	}
	assert.Empty(t, agent.ActiveSession())
}

func TestAgentScanRequestOverrides(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = freshTags()
	radio.NDEF = textNDEF(t, "hello")
	agent, display := newTestAgent(t, radio)

	_, err := agent.StartScan(protocol.ScanRequest{Technologies: []string{"felica"}})
	require.NoError(t, err)

	r := display.waitResult(t)
	assert.Equal(t, nfc.ErrCodeUnsupportedTag, nfc.GetErrorCode(r.Err))
	assert.Equal(t, []string{"felica"}, display.startedSessions()[0].Technologies)
}

func TestAgentScanRequestTimeout(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = noTag
	agent, display := newTestAgent(t, radio)

	_, err := agent.StartScan(protocol.ScanRequest{TimeoutMs: 50})
	require.NoError(t, err)

	r := display.waitResult(t)
	assert.Equal(t, nfc.ErrCodeNoTagFound, nfc.GetErrorCode(r.Err))
	assert.Equal(t, "No NFC tag found.", r.DisplayText())
}

func TestAgentScan(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = freshTags()
	radio.NDEF = textNDEF(t, "one shot")
	agent, display := newTestAgent(t, radio)

	r, err := agent.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nfc.StateCompleted, r.State)
	assert.Equal(t, "one shot", r.Value.Text)
	assert.Equal(t, r.SessionID, display.waitResult(t).SessionID)
}

func TestAgentScanInterrupted(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = noTag
	agent, _ := newTestAgent(t, radio)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r, err := agent.Scan(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, nfc.StateFailed, r.State)
}

func TestAgentRunReportsEachTagOnce(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = freshTags()
	radio.NDEF = textNDEF(t, "left on the reader")
	agent, display := newTestAgent(t, radio)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	r := display.waitResult(t)
	assert.Equal(t, "NFC Data: left on the reader", r.DisplayText())

	// Several more background reads of the same tag happen meanwhile.
	time.Sleep(3 * rescanDelay)
	assert.Empty(t, display.results, "repeated reads must not be reported")
	assert.Empty(t, display.startedSessions(), "background sessions are not announced")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAgentScanRequestPreemptsBackground(t *testing.T) {
	radio := nfc.NewMockRadio()
	radio.PollFunc = noTag
	agent, display := newTestAgent(t, radio)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	require.Eventually(t, agent.isBackgroundActive, time.Second, 10*time.Millisecond)
	assert.Empty(t, agent.ActiveSession(), "background sessions are not reported as active")
	assert.False(t, agent.CancelScan(), "background sessions cannot be cancelled by clients")

	resp, err := agent.StartScan(protocol.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, agent.ActiveSession())

	require.True(t, agent.CancelScan())
	r := display.waitResult(t)
	assert.Equal(t, resp.SessionID, r.SessionID, "the cancelled background session is not reported")
	assert.Equal(t, nfc.ErrCodeCancelled, nfc.GetErrorCode(r.Err))
}

func TestTechnologyNames(t *testing.T) {
	assert.Equal(t, []string{"mifare", "iso7816", "iso15693", "felica"}, technologyNames(nil))
	assert.Equal(t, []string{"felica"}, technologyNames([]nfc.Technology{nfc.TechFeliCa}))
}
