package nfc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"
)

// PCSCRadio drives a contactless reader through PC/SC via ebfe/scard.
//
// Tag commands are wrapped in the reader's pseudo-APDUs: Type 2 READs become
// storage card reads, other native frames go through direct transmit, and
// ISO7816 APDUs pass through unchanged.
type PCSCRadio struct {
	ctx          *scard.Context
	reader       string
	pollInterval time.Duration

	mu   sync.Mutex
	card *scard.Card
	// awaitRemoval is set once a card has been handed out, so the same card
	// is not reported again until it leaves the field.
	awaitRemoval bool
	stopMonitor  chan struct{}
	closed       bool

	invalidations chan string
}

type pcscTarget struct {
	card *scard.Card
}

// OpenPCSCRadio establishes a PC/SC context on reader ("" picks the first
// contactless reader).
func OpenPCSCRadio(reader string) (*PCSCRadio, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}

	if reader == "" {
		readers, err := listPCSCReaders(ctx)
		if err != nil {
			ctx.Release()
			return nil, err
		}
		if len(readers) == 0 {
			ctx.Release()
			return nil, fmt.Errorf("no PC/SC readers found")
		}
		reader = readers[0]
	}
	log.Printf("[pcsc] using reader %s", reader)

	return &PCSCRadio{
		ctx:           ctx,
		reader:        reader,
		pollInterval:  DefaultPollInterval,
		invalidations: make(chan string, 1),
	}, nil
}

// ListPCSCReaders lists the contactless readers known to PC/SC.
func ListPCSCReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	defer ctx.Release()
	return listPCSCReaders(ctx)
}

func listPCSCReaders(ctx *scard.Context) ([]string, error) {
	var lastErr error
	for i := 0; i < DeviceEnumRetries; i++ {
		readers, err := ctx.ListReaders()
		if err == nil {
			return filterContactlessReaders(readers), nil
		}
		lastErr = err
		time.Sleep(time.Millisecond * 100)
	}
	return nil, fmt.Errorf("failed to list PC/SC readers after %d retries: %w", DeviceEnumRetries, lastErr)
}

func (r *PCSCRadio) String() string {
	return "pcsc " + r.reader
}

// Poll waits for a card in the reader, connects to it and identifies it.
func (r *PCSCRadio) Poll(ctx context.Context) (*TagHandle, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		h, err := r.scan()
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *PCSCRadio) scan() (*TagHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRadioClosed
	}

	present, err := r.cardPresent()
	if err != nil {
		return nil, fmt.Errorf("failed to check card presence: %w", err)
	}
	if !present {
		r.awaitRemoval = false
		r.disconnect()
		return nil, nil
	}
	if r.awaitRemoval {
		return nil, nil
	}
	r.disconnect()

	card, err := r.ctx.Connect(r.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		if err = pcscConnectError(r.reader, err); IsNoCardError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to connect to reader %s: %w", r.reader, err)
	}
	// The scard library panics on transmit with any other protocol.
	if proto := card.ActiveProtocol(); proto != scard.ProtocolT0 && proto != scard.ProtocolT1 {
		card.Disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("unsupported card protocol: %d", proto)
	}
	status, err := card.Status()
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("failed to get card status: %w", err)
	}

	r.card = card
	r.awaitRemoval = true

	product, tech := ClassifyATR(status.Atr)
	uid, err := r.transmitData(GetUIDAPDU())
	if err != nil {
		log.Printf("[pcsc] could not get UID: %v", err)
	}
	if product == "" && tech == TechMiFare {
		if version, err := r.transmitData(GetVersionAPDU()); err == nil {
			product = parseGetVersionResponse(version)
		}
	}
	log.Printf("[pcsc] card %X on %s, ATR %X (%s)", uid, r.reader, status.Atr, tech)

	h := NewTagHandle(uid, tech)
	h.Type = product
	h.Source = r.String()
	h.Target = pcscTarget{card: card}
	r.startRemovalMonitor(h)
	return h, nil
}

// cardPresent checks the reader state without waiting. Caller holds r.mu.
func (r *PCSCRadio) cardPresent() (bool, error) {
	states := []scard.ReaderState{
		{Reader: r.reader, CurrentState: scard.StateUnaware},
	}
	if err := r.ctx.GetStatusChange(states, 0); err != nil && !IsTimeoutError(err) {
		return false, err
	}
	return states[0].EventState&scard.StatePresent != 0, nil
}

// transmitData sends apdu to the current card and returns the response data
// of a 9000 reply. Caller holds r.mu.
func (r *PCSCRadio) transmitData(apdu []byte) ([]byte, error) {
	raw, err := r.card.Transmit(apdu)
	if err != nil {
		if isCardRemovedPCSCError(err) {
			return nil, NewCardRemovedError(err)
		}
		return nil, err
	}
	resp, err := ParseAPDUResponse(raw)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// disconnect releases the current card. Caller holds r.mu.
func (r *PCSCRadio) disconnect() {
	if r.stopMonitor != nil {
		close(r.stopMonitor)
		r.stopMonitor = nil
	}
	if r.card != nil {
		r.card.Disconnect(scard.LeaveCard)
		r.card = nil
	}
}

// startRemovalMonitor watches the reader until the card leaves the field and
// reports the removal while h is still in use. Caller holds r.mu.
func (r *PCSCRadio) startRemovalMonitor(h *TagHandle) {
	stop := make(chan struct{})
	r.stopMonitor = stop

	go func() {
		states := []scard.ReaderState{
			{Reader: r.reader, CurrentState: scard.StateUnaware},
		}
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !h.Valid() {
				return
			}

			err := r.ctx.GetStatusChange(states, removalCheckInterval)
			if err != nil {
				if errors.Is(err, scard.ErrCancelled) {
					return
				}
				if IsTimeoutError(err) {
					continue
				}
				log.Printf("[pcsc] monitor: %v, treating as removal", err)
				r.invalidateFor(h, stop, "reader disconnected")
				return
			}

			eventState := states[0].EventState
			// Only StateEmpty is definitive; StatePresent drops during transitions.
			if eventState&scard.StateEmpty != 0 {
				r.invalidateFor(h, stop, "tag removed")
				return
			}
			states[0].CurrentState = eventState &^ scard.StateChanged
		}
	}()
}

func (r *PCSCRadio) invalidateFor(h *TagHandle, stop chan struct{}, reason string) {
	select {
	case <-stop:
		return
	default:
	}
	if !h.Valid() {
		return
	}
	select {
	case r.invalidations <- reason:
	default:
	}
}

// Connect checks that h is the card the reader is connected to. The card
// is already connected by Poll.
func (r *PCSCRadio) Connect(ctx context.Context, h *TagHandle) error {
	if err := CheckHandle("Connect", h); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRadioClosed
	}
	t, ok := h.Target.(pcscTarget)
	if !ok {
		return fmt.Errorf("handle %s was not created by PC/SC", h)
	}
	if t.card != r.card {
		return NewCardRemovedError(fmt.Errorf("card %s is no longer connected", h.UIDString()))
	}
	return nil
}

// Transceive sends tx to the card, wrapped in the pseudo-APDU the reader
// needs for h's technology.
func (r *PCSCRadio) Transceive(ctx context.Context, h *TagHandle, tx []byte) ([]byte, error) {
	if err := CheckHandle("Transceive", h); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := h.Target.(pcscTarget)
	if !ok {
		return nil, fmt.Errorf("handle %s was not created by PC/SC", h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRadioClosed
	}
	if t.card != r.card {
		return nil, NewCardRemovedError(fmt.Errorf("device not connected"))
	}

	apdu, unwrap := wrapPCSCFrame(h.Technology, tx)
	if !unwrap {
		raw, err := r.card.Transmit(apdu)
		if err != nil {
			if isCardRemovedPCSCError(err) {
				return nil, NewCardRemovedError(err)
			}
			return nil, fmt.Errorf("pcsc transmit: %w", err)
		}
		return raw, nil
	}
	data, err := r.transmitData(apdu)
	if err != nil {
		return nil, fmt.Errorf("pcsc transmit: %w", err)
	}
	return data, nil
}

// wrapPCSCFrame returns the APDU carrying tx and whether the reply's status
// word must be checked and stripped before handing it back.
func wrapPCSCFrame(tech Technology, tx []byte) ([]byte, bool) {
	switch {
	case len(tx) > 0 && tx[0] == CLAPCSC:
		// Already a reader command.
		return tx, false
	case tech == TechISO7816:
		return tx, false
	case tech == TechMiFare && len(tx) == 2 && tx[0] == type2CmdRead:
		return StorageReadAPDU(tx[1], type2ReadSize), true
	default:
		return DirectTransmitAPDU(tx), true
	}
}

// ReadNDEF reads MIFARE Classic tags through sector authentication. Other
// tags are left to the read strategies.
func (r *PCSCRadio) ReadNDEF(ctx context.Context, h *TagHandle) ([]byte, error) {
	if err := CheckHandle("ReadNDEF", h); err != nil {
		return nil, err
	}
	if !IsClassic(h.Type) {
		return nil, ErrNativeReadUnavailable
	}
	return ReadClassic(ctx, r, h)
}

// Invalidations implements Radio.
func (r *PCSCRadio) Invalidations() <-chan string {
	return r.invalidations
}

// Close disconnects the card and releases the PC/SC context.
func (r *PCSCRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	// Unblock the removal monitor.
	r.ctx.Cancel()
	r.disconnect()
	return r.ctx.Release()
}

// pcscConnectError marks a failed connect to an empty reader as a noCardError.
func pcscConnectError(reader string, err error) error {
	if errors.Is(err, scard.ErrNoSmartcard) || errors.Is(err, scard.ErrRemovedCard) || IsNoCardError(err) {
		return &noCardError{ReaderName: reader, Cause: err}
	}
	return err
}

// isCardRemovedPCSCError checks if a PC/SC error indicates the card was removed.
// Uses typed error checking first, with string matching fallback.
func isCardRemovedPCSCError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) || // often means removed on macOS
		errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrUnpoweredCard) {
		return true
	}

	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "removed") ||
		strings.Contains(errLower, "reset") ||
		strings.Contains(errLower, "unpowered") ||
		strings.Contains(errLower, "no smart card") ||
		strings.Contains(errLower, "not transacted")
}

// filterContactlessReaders drops SAM slots from a reader list.
func filterContactlessReaders(readers []string) []string {
	var filtered []string
	for _, r := range readers {
		if strings.Contains(strings.ToUpper(r), "SAM") {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}
