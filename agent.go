package main

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dotside-studios/ndefscan/config"
	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
	"github.com/dotside-studios/ndefscan/server"
)

// Agent timing
const (
	rescanDelay    = 500 * time.Millisecond // pause between background sessions
	preemptTimeout = 2 * time.Second        // wait for a cancelled background session
)

// Display receives the progress and results of sessions.
type Display interface {
	SessionStarted(protocol.SessionStartedPayload)
	SessionState(sessionID string, state nfc.State)
	SessionResult(nfc.Result)
}

// serverDisplay forwards sessions to the WebSocket clients of a server.
type serverDisplay struct {
	srv *server.Server
}

func (d serverDisplay) SessionStarted(p protocol.SessionStartedPayload) {
	d.srv.BroadcastSessionStarted(p)
}

func (d serverDisplay) SessionState(sessionID string, state nfc.State) {
	d.srv.BroadcastState(sessionID, state)
}

func (d serverDisplay) SessionResult(r nfc.Result) {
	d.srv.BroadcastResult(r)
}

// scanOptions are the per-session settings.
type scanOptions struct {
	technologies []nfc.Technology
	pollTimeout  time.Duration

	// background sessions are started by Run; their repeated reads and
	// cancellations are not reported
	background bool
}

// Agent owns the radio and runs one session at a time on it. Sessions are
// started by scan requests, by Run in continuous mode, or by Scan.
type Agent struct {
	Logger *log.Logger

	radio            nfc.Radio
	radioName        string
	technologies     []nfc.Technology
	pollTimeout      time.Duration
	operationTimeout time.Duration
	displays         []Display
	cache            *nfc.TagCache

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	active           *nfc.Session
	activeBackground bool
	pending          bool // a scan request is taking over the radio
	wg               sync.WaitGroup
}

// NewAgent creates an agent reading from radio with the session settings
// of cfg.
func NewAgent(radio nfc.Radio, radioName string, cfg *config.Config) (*Agent, error) {
	techs, err := cfg.AllowedTechnologies()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Agent{
		Logger:           log.New(os.Stderr, "[agent] ", log.LstdFlags),
		radio:            radio,
		radioName:        radioName,
		technologies:     techs,
		pollTimeout:      cfg.PollTimeout,
		operationTimeout: cfg.OperationTimeout,
		cache:            nfc.NewTagCache(nfc.DefaultPresenceWindow),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// AddDisplay registers a display for every later session.
func (a *Agent) AddDisplay(d Display) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.displays = append(a.displays, d)
}

func (a *Agent) currentDisplays() []Display {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Display(nil), a.displays...)
}

// RadioName implements server.Scanner.
func (a *Agent) RadioName() string {
	return a.radioName
}

// ActiveSession implements server.Scanner. Background sessions are not
// reported.
func (a *Agent) ActiveSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.activeBackground {
		return ""
	}
	return a.active.ID()
}

// StartScan implements server.Scanner. A background session still running
// is cancelled to free the radio; a requested one makes the call fail with
// server.ErrSessionBusy.
func (a *Agent) StartScan(req protocol.ScanRequest) (protocol.ScanResponse, error) {
	opts, err := a.requestOptions(req)
	if err != nil {
		return protocol.ScanResponse{}, err
	}

	a.mu.Lock()
	if a.pending || (a.active != nil && !a.activeBackground) {
		a.mu.Unlock()
		return protocol.ScanResponse{}, server.ErrSessionBusy
	}
	prev := a.active
	a.active = nil
	a.pending = true
	a.mu.Unlock()

	if prev != nil {
		a.Logger.Printf("Cancelling background session %s for scan request", prev.ID())
		prev.Cancel()
		select {
		case <-prev.Done():
		case <-time.After(preemptTimeout):
			a.Logger.Printf("Background session %s did not stop in time", prev.ID())
		}
	}

	s, err := a.start(opts)
	if err != nil {
		return protocol.ScanResponse{}, err
	}
	return protocol.ScanResponse{SessionID: s.ID(), StartedAt: time.Now()}, nil
}

// requestOptions merges a scan request with the agent defaults.
func (a *Agent) requestOptions(req protocol.ScanRequest) (scanOptions, error) {
	opts := scanOptions{
		technologies: a.technologies,
		pollTimeout:  a.pollTimeout,
	}
	if len(req.Technologies) > 0 {
		techs := make([]nfc.Technology, 0, len(req.Technologies))
		for _, name := range req.Technologies {
			tech, err := nfc.ParseTechnology(name)
			if err != nil {
				return opts, &server.InvalidScanError{Reason: err.Error()}
			}
			techs = append(techs, tech)
		}
		opts.technologies = techs
	}
	if req.TimeoutMs < 0 {
		return opts, &server.InvalidScanError{Reason: "timeoutMs must not be negative"}
	}
	if req.TimeoutMs > 0 {
		opts.pollTimeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	return opts, nil
}

// CancelScan implements server.Scanner. It cancels the requested session,
// if one is running.
func (a *Agent) CancelScan() bool {
	a.mu.Lock()
	s := a.active
	background := a.activeBackground
	a.mu.Unlock()

	if s == nil || background {
		return false
	}
	select {
	case <-s.Done():
		return false
	default:
	}
	s.Cancel()
	return true
}

// Scan runs one session and waits for its result.
func (a *Agent) Scan(ctx context.Context) (nfc.Result, error) {
	a.mu.Lock()
	if a.pending || a.active != nil {
		a.mu.Unlock()
		return nfc.Result{}, server.ErrSessionBusy
	}
	a.pending = true
	a.mu.Unlock()

	s, err := a.start(scanOptions{technologies: a.technologies, pollTimeout: a.pollTimeout})
	if err != nil {
		return nfc.Result{}, err
	}
	r, err := s.Wait(ctx)
	if err != nil {
		s.Cancel()
		<-s.Done()
		r, _ = s.Result()
	}
	return r, err
}

// Run keeps a background session polling until ctx is done, pausing
// between sessions and while a requested session holds the radio.
func (a *Agent) Run(ctx context.Context) error {
	a.Logger.Printf("Reading tags continuously on %s", a.radioName)
	for {
		s, err := a.tryStartBackground()
		switch {
		case errors.Is(err, server.ErrSessionBusy):
			a.waitIdle(ctx)
		case err != nil:
			return err
		default:
			select {
			case <-ctx.Done():
				s.Cancel()
				return ctx.Err()
			case <-s.Done():
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.ctx.Done():
			return nil
		case <-time.After(rescanDelay):
		}
	}
}

func (a *Agent) tryStartBackground() (*nfc.Session, error) {
	a.mu.Lock()
	if a.pending || a.active != nil {
		a.mu.Unlock()
		return nil, server.ErrSessionBusy
	}
	a.pending = true
	a.mu.Unlock()

	// A background session waits for a tag for as long as it takes.
	return a.start(scanOptions{technologies: a.technologies, background: true})
}

// waitIdle blocks until the running session ends.
func (a *Agent) waitIdle(ctx context.Context) {
	a.mu.Lock()
	s := a.active
	a.mu.Unlock()
	if s == nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-s.Done():
	}
}

// start creates and starts a session on the slot reserved by pending.
func (a *Agent) start(opts scanOptions) (*nfc.Session, error) {
	displays := a.currentDisplays()

	var s *nfc.Session
	s = nfc.NewSession(a.radio,
		nfc.WithAllowedTechnologies(opts.technologies...),
		nfc.WithPollTimeout(opts.pollTimeout),
		nfc.WithOperationTimeout(a.operationTimeout),
		nfc.WithLogger(a.Logger),
		nfc.WithStateObserver(func(state nfc.State) {
			if opts.background {
				return
			}
			for _, d := range displays {
				d.SessionState(s.ID(), state)
			}
		}),
		nfc.WithResultSink(func(r nfc.Result) {
			a.finish(s, opts.background, displays, r)
		}),
	)

	a.mu.Lock()
	a.active = s
	a.activeBackground = opts.background
	a.pending = false
	a.mu.Unlock()

	if !opts.background {
		started := protocol.SessionStartedPayload{
			SessionID:    s.ID(),
			Radio:        a.radioName,
			Technologies: technologyNames(opts.technologies),
			StartedAt:    time.Now(),
		}
		for _, d := range displays {
			d.SessionStarted(started)
		}
	}

	if err := s.Start(a.ctx); err != nil {
		a.mu.Lock()
		if a.active == s {
			a.active = nil
		}
		a.mu.Unlock()
		return nil, err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-s.Done()
	}()
	return s, nil
}

// finish runs on the session goroutine once the session has ended.
func (a *Agent) finish(s *nfc.Session, background bool, displays []Display, r nfc.Result) {
	a.mu.Lock()
	if a.active == s {
		a.active = nil
	}
	a.mu.Unlock()

	if background {
		if nfc.GetErrorCode(r.Err) == nfc.ErrCodeCancelled {
			return
		}
		if !a.cache.HasChanged(r.Handle.UIDString(), r.DisplayText()) {
			return
		}
	}
	for _, d := range displays {
		d.SessionResult(r)
	}
}

// Stop cancels the running session and waits for it to end.
func (a *Agent) Stop() {
	a.Logger.Println("Stopping agent...")
	a.cancel()
	a.wg.Wait()
	a.Logger.Println("Agent stopped successfully")
}

// technologyNames lists the technologies a session will read, every one in
// the dispatch table when techs is nil.
func technologyNames(techs []nfc.Technology) []string {
	table := nfc.DefaultDispatchTable()
	if techs != nil {
		table = table.Restrict(techs...)
	}
	techs = table.Technologies()
	names := make([]string, len(techs))
	for i, t := range techs {
		names[i] = t.String()
	}
	return names
}
