package nfc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotside-studios/ndefscan/ndef"
)

// Session timeouts
const (
	DefaultPollTimeout      = 60 * time.Second
	DefaultOperationTimeout = 5 * time.Second

	eventQueueSize = 16
)

// ResultSink receives the result of a session exactly once, on the session
// goroutine, right after the terminal transition. It must not wait on the
// session.
type ResultSink func(Result)

// Option configures a Session.
type Option func(*sessionConfig)

type sessionConfig struct {
	table       DispatchTable
	allowed     []Technology
	pollTimeout time.Duration
	opTimeout   time.Duration
	sink        ResultSink
	onState     func(State)
	logger      *log.Logger
}

// WithDispatchTable replaces the default technology dispatch table.
func WithDispatchTable(t DispatchTable) Option {
	return func(c *sessionConfig) { c.table = t }
}

// WithAllowedTechnologies restricts the dispatch table to techs; any other
// technology fails the session with ErrUnsupportedTag.
func WithAllowedTechnologies(techs ...Technology) Option {
	return func(c *sessionConfig) { c.allowed = techs }
}

// WithPollTimeout bounds how long the radio polls for a tag. Zero disables the bound.
func WithPollTimeout(d time.Duration) Option {
	return func(c *sessionConfig) { c.pollTimeout = d }
}

// WithOperationTimeout bounds each connect and read. Zero disables the bound.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *sessionConfig) { c.opTimeout = d }
}

// WithResultSink registers the consumer of the terminal result.
func WithResultSink(fn ResultSink) Option {
	return func(c *sessionConfig) { c.sink = fn }
}

// WithStateObserver registers fn to be told of every non-terminal state the
// session enters. Terminal states reach the ResultSink instead.
func WithStateObserver(fn func(State)) Option {
	return func(c *sessionConfig) { c.onState = fn }
}

// WithLogger sets the logger used for transitions.
func WithLogger(l *log.Logger) Option {
	return func(c *sessionConfig) { c.logger = l }
}

// Result is the terminal outcome of a session.
type Result struct {
	SessionID string
	State     State // StateCompleted or StateFailed
	Handle    *TagHandle

	Message      *ndef.Message
	Value        *ndef.DisplayValue // first record, nil if it could not be interpreted
	Values       []ndef.DisplayValue
	InterpretErr error

	Err error // *NFCError when State is StateFailed

	StartedAt  time.Time
	FinishedAt time.Time
}

// DisplayText renders the one line shown to the user for this result.
func (r Result) DisplayText() string {
	if r.State == StateCompleted {
		if r.Value == nil {
			return "NFC Data: Unknown data"
		}
		return "NFC Data: " + r.Value.String()
	}
	switch GetErrorCode(r.Err) {
	case ErrCodeNoTagFound:
		return "No NFC tag found."
	case ErrCodeConnectFailed:
		return "Failed to connect to tag"
	case ErrCodeUnsupportedTag:
		return "Unsupported NFC tag type."
	case ErrCodeReadFailed:
		if errors.Is(r.Err, ErrNoNDEFMessage) {
			return "No NDEF message found"
		}
		return "Error reading NFC data"
	default:
		return "Session ended. Please try again."
	}
}

// Session drives one radio through a single tag read.
//
// All transitions run on one goroutine that drains the event queue, so
// events are applied strictly in arrival order. Radio calls run on helper
// goroutines and report back as events. Dispatch and Cancel are safe for
// concurrent use.
type Session struct {
	id     string
	radio  Radio
	table  DispatchTable
	cfg    sessionConfig
	logger *log.Logger

	events chan Event
	done   chan struct{}

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu        sync.Mutex
	started   bool
	state     State
	handle    *TagHandle
	result    Result
	startedAt time.Time
}

// NewSession creates an idle session over radio.
func NewSession(radio Radio, opts ...Option) *Session {
	cfg := sessionConfig{
		pollTimeout: DefaultPollTimeout,
		opTimeout:   DefaultOperationTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.table == nil {
		cfg.table = DefaultDispatchTable()
	}
	table := cfg.table
	if cfg.allowed != nil {
		table = table.Restrict(cfg.allowed...)
	}
	logger := cfg.logger
	if logger == nil {
		logger = log.Default()
	}

	return &Session{
		id:     uuid.New().String(),
		radio:  radio,
		table:  table,
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, eventQueueSize),
		done:   make(chan struct{}),
		state:  StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the terminal result; ok is false until the session ends.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Terminal() {
		return Result{}, false
	}
	return s.result, true
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		r, _ := s.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Start moves an idle session to Polling and asks the radio for a tag.
// Cancelling ctx cancels the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session %s: already started (state %s)", s.id, state)
	}
	s.started = true
	s.startedAt = time.Now()
	s.ctx, s.cancelCtx = context.WithCancel(ctx)
	s.state = StatePolling
	s.mu.Unlock()

	// Reasons still buffered belong to an earlier session on this radio.
	s.drainInvalidations()

	s.logger.Printf("[session %s] %s -> %s", s.id, StateIdle, StatePolling)
	s.notifyState(StatePolling)

	go s.run()
	go s.watch(ctx)
	s.poll()
	return nil
}

// Dispatch queues ev for the transition function. An invalidation of an idle
// session fails it on the spot; other events for a session that has not
// started, or has already ended, are dropped.
func (s *Session) Dispatch(ev Event) {
	s.mu.Lock()
	started := s.started
	if !started && ev.Type == EventInvalidated {
		s.started = true
		s.startedAt = time.Now()
		s.ctx, s.cancelCtx = context.WithCancel(context.Background())
		s.mu.Unlock()
		s.fail(NewInvalidatedError("Session", "", ev.Reason))
		return
	}
	s.mu.Unlock()
	if !started {
		s.logger.Printf("[session %s] ignoring %s in state %s", s.id, ev, StateIdle)
		return
	}
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

// Cancel ends a running session with ErrCancelled. It does nothing on an
// idle or finished session.
func (s *Session) Cancel() {
	s.Dispatch(Event{Type: EventCancel})
}

func (s *Session) run() {
	for {
		if s.transition(<-s.events) {
			return
		}
	}
}

func (s *Session) drainInvalidations() {
	invalidations := s.radio.Invalidations()
	for {
		select {
		case reason, ok := <-invalidations:
			if !ok {
				return
			}
			s.logger.Printf("[session %s] dropping stale invalidation: %s", s.id, reason)
		default:
			return
		}
	}
}

// watch turns cancellation of the caller's context and radio invalidations
// into events.
func (s *Session) watch(parent context.Context) {
	invalidations := s.radio.Invalidations()
	for {
		select {
		case <-s.done:
			return
		case <-parent.Done():
			s.Dispatch(Event{Type: EventCancel})
			return
		case reason, ok := <-invalidations:
			if !ok {
				invalidations = nil
				continue
			}
			s.Dispatch(Invalidated(reason))
		}
	}
}

// transition applies ev and reports whether the session ended.
func (s *Session) transition(ev Event) bool {
	state := s.State()

	switch ev.Type {
	case EventInvalidated:
		s.fail(NewInvalidatedError("Session", s.handle.UIDString(), ev.Reason))
		return true
	case EventCancel:
		s.fail(NewCancelledError("Cancel"))
		return true
	}

	switch state {
	case StatePolling:
		switch ev.Type {
		case EventTagDetected:
			if ev.Handle == nil {
				break
			}
			s.mu.Lock()
			s.handle = ev.Handle
			s.mu.Unlock()
			s.setState(StateConnecting)
			s.connect(ev.Handle)
			return false
		case EventPollTimeout:
			s.fail(NewNoTagFoundError("Poll", ev.Err))
			return true
		}

	case StateConnecting:
		switch ev.Type {
		case EventConnectOK:
			s.setState(StateConnected)
			return s.dispatchRead()
		case EventConnectError:
			s.fail(NewConnectError("Connect", s.handle.UIDString(), ev.Err))
			return true
		}

	case StateReading:
		switch ev.Type {
		case EventBytesReceived:
			s.complete(ev.Data)
			return true
		case EventReadError:
			s.fail(NewReadError("Read", s.handle.UIDString(), ev.Err))
			return true
		}
	}

	s.logger.Printf("[session %s] ignoring %s in state %s", s.id, ev, state)
	return false
}

// dispatchRead picks the read strategy for the connected tag's technology.
func (s *Session) dispatchRead() bool {
	h := s.handle
	strategy, ok := s.table.Lookup(h.Technology)
	if !ok {
		s.fail(NewUnsupportedTagError("Dispatch", h.UIDString(), h.Technology))
		return true
	}
	s.setState(StateReading)
	s.read(h, strategy)
	return false
}

func (s *Session) complete(data []byte) {
	uid := s.handle.UIDString()
	msg, err := ndef.DecodeMessage(data)
	if err != nil {
		s.fail(NewReadError("Decode", uid, err))
		return
	}

	res := s.newResult(StateCompleted)
	res.Message = msg
	res.Values, _ = ndef.InterpretMessage(msg)

	first, _ := msg.First()
	if v, err := ndef.Interpret(first); err != nil {
		res.InterpretErr = err
		s.logger.Printf("[session %s] first record of tag %s not interpreted: %v", s.id, uid, err)
	} else {
		res.Value = &v
	}
	s.finish(res)
}

func (s *Session) fail(err *NFCError) {
	res := s.newResult(StateFailed)
	res.Err = err
	s.finish(res)
}

func (s *Session) newResult(state State) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{
		SessionID:  s.id,
		State:      state,
		Handle:     s.handle,
		StartedAt:  s.startedAt,
		FinishedAt: time.Now(),
	}
}

// finish performs the single terminal transition.
func (s *Session) finish(res Result) {
	s.mu.Lock()
	from := s.state
	s.state = res.State
	s.result = res
	h := s.handle
	s.mu.Unlock()

	h.Invalidate()
	s.cancelCtx()

	if res.Err != nil {
		s.logger.Printf("[session %s] %s -> %s: %v", s.id, from, res.State, res.Err)
	} else {
		s.logger.Printf("[session %s] %s -> %s (%d records)", s.id, from, res.State, len(res.Message.Records))
	}

	if s.cfg.sink != nil {
		s.cfg.sink(res)
	}
	close(s.done)
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	from := s.state
	s.state = next
	s.mu.Unlock()
	s.logger.Printf("[session %s] %s -> %s", s.id, from, next)
	s.notifyState(next)
}

func (s *Session) notifyState(state State) {
	if s.cfg.onState != nil {
		s.cfg.onState(state)
	}
}

func (s *Session) opContext(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(s.ctx)
	}
	return context.WithTimeout(s.ctx, d)
}

func (s *Session) poll() {
	go func() {
		ctx, cancel := s.opContext(s.cfg.pollTimeout)
		defer cancel()

		h, err := s.radio.Poll(ctx)
		if s.ctx.Err() != nil {
			// The session ended while polling.
			h.Invalidate()
			return
		}
		switch {
		case err != nil:
			s.Dispatch(PollTimeout(err))
		case h == nil:
			s.Dispatch(PollTimeout(errors.New("radio returned no tag")))
		default:
			s.Dispatch(TagDetected(h))
		}
	}()
}

func (s *Session) connect(h *TagHandle) {
	go func() {
		ctx, cancel := s.opContext(s.cfg.opTimeout)
		defer cancel()

		err := s.radio.Connect(ctx, h)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.Dispatch(ConnectError(err))
			return
		}
		s.Dispatch(ConnectOK())
	}()
}

func (s *Session) read(h *TagHandle, strategy ReadStrategy) {
	go func() {
		ctx, cancel := s.opContext(s.cfg.opTimeout)
		defer cancel()

		data, err := s.readNDEF(ctx, h, strategy)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.Dispatch(ReadError(err))
			return
		}
		s.Dispatch(BytesReceived(data))
	}()
}

func (s *Session) readNDEF(ctx context.Context, h *TagHandle, strategy ReadStrategy) ([]byte, error) {
	if reader, ok := s.radio.(NDEFReader); ok {
		data, err := reader.ReadNDEF(ctx, h)
		if !errors.Is(err, ErrNativeReadUnavailable) {
			return data, err
		}
	}
	return strategy(ctx, s.radio, h)
}
