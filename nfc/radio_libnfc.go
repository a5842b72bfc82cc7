package nfc

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

var (
	modISO14443A = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	modFeliCa    = nfc.Modulation{Type: nfc.Felica, BaudRate: nfc.Nbr212}
)

// LibnfcRadio drives a reader through libnfc. MIFARE tags found by
// libfreefare are read natively; other targets go through raw transceive.
// libnfc has no ISO15693 support.
type LibnfcRadio struct {
	dev          nfc.Device
	conn         string
	pollInterval time.Duration

	mu            sync.Mutex
	closed        bool
	invalidations chan string
}

// OpenLibnfcRadio opens the libnfc device at conn ("" picks the first one)
// and puts it in initiator mode.
func OpenLibnfcRadio(conn string) (*LibnfcRadio, error) {
	if conn == "" {
		devices, err := ListLibnfcDevices()
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no libnfc devices found")
		}
		conn = devices[0]
	}

	dev, err := nfc.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("open libnfc device %q: %w", conn, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("init libnfc device %q: %w", conn, err)
	}
	log.Printf("[libnfc] opened %s (%s)", dev, dev.Connection())

	return &LibnfcRadio{
		dev:           dev,
		conn:          conn,
		pollInterval:  DefaultPollInterval,
		invalidations: make(chan string, 1),
	}, nil
}

// ListLibnfcDevices returns the connection strings of attached readers.
func ListLibnfcDevices() ([]string, error) {
	var devices []string
	var err error
	for i := 0; i < DeviceEnumRetries; i++ {
		devices, err = nfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(time.Millisecond * 100)
	}
	return nil, fmt.Errorf("failed to list NFC devices after %d retries: %w", DeviceEnumRetries, err)
}

func (r *LibnfcRadio) String() string {
	return "libnfc " + r.conn
}

// Poll scans for tags every poll interval until one is found or ctx ends.
func (r *LibnfcRadio) Poll(ctx context.Context) (*TagHandle, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		h, err := r.scan()
		if err != nil {
			return nil, err
		}
		if h != nil {
			h.Source = r.String()
			return h, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// scan runs one detection round. It first asks libfreefare for MIFARE tags
// it can read natively, then lists ISO14443-A and FeliCa targets.
func (r *LibnfcRadio) scan() (*TagHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRadioClosed
	}

	ffTags, err := freefare.GetTags(r.dev)
	if err != nil {
		log.Printf("[libnfc] freefare.GetTags: %v", err)
	}
	for _, ffTag := range ffTags {
		switch t := ffTag.(type) {
		case freefare.UltralightTag:
			return r.freefareHandle(t, ultralightProduct(t)), nil
		case freefare.ClassicTag:
			product := ProductClassic1K
			if t.Type() == freefare.Classic4k {
				product = ProductClassic4K
			}
			return r.freefareHandle(t, product), nil
		}
	}

	targets, err := r.dev.InitiatorListPassiveTargets(modISO14443A)
	if err != nil {
		log.Printf("[libnfc] list ISO14443-A targets: %v", err)
	}
	for _, target := range targets {
		isoA, ok := target.(*nfc.ISO14443aTarget)
		if !ok || int(isoA.UIDLen) <= 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		product, tech := ClassifySAK(isoA.Sak)
		log.Printf("[libnfc] ISO14443-A target %X, SAK %02X (%s)", isoA.UID[:isoA.UIDLen], isoA.Sak, tech)
		h := NewTagHandle(isoA.UID[:isoA.UIDLen], tech)
		h.Type = product
		h.Target = libnfcTarget{target: target, mod: modISO14443A}
		return h, nil
	}

	targets, err = r.dev.InitiatorListPassiveTargets(modFeliCa)
	if err != nil {
		log.Printf("[libnfc] list FeliCa targets: %v", err)
	}
	for _, target := range targets {
		f, ok := target.(*nfc.FelicaTarget)
		if !ok {
			continue
		}
		h := NewTagHandle(f.ID[:], TechFeliCa)
		h.Type = ProductFeliCa
		h.Target = libnfcTarget{target: target, mod: modFeliCa}
		return h, nil
	}
	return nil, nil
}

func (r *LibnfcRadio) freefareHandle(t freefare.Tag, product string) *TagHandle {
	uid, err := hexUID(t.UID())
	if err != nil {
		log.Printf("[libnfc] bad UID %q from freefare: %v", t.UID(), err)
	}
	h := NewTagHandle(uid, ProductTechnology(product))
	h.Type = product
	h.Target = t
	return h
}

// libnfcTarget is the Target of handles created from a passive target listing.
type libnfcTarget struct {
	target nfc.Target
	mod    nfc.Modulation
}

func ultralightProduct(t freefare.UltralightTag) string {
	if t.Type() == freefare.UltralightC {
		return ProductUltralightC
	}
	return ProductUltralight
}

// Connect selects the tag.
func (r *LibnfcRadio) Connect(ctx context.Context, h *TagHandle) error {
	if err := CheckHandle("Connect", h); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRadioClosed
	}

	switch t := h.Target.(type) {
	case freefare.Tag:
		return t.Connect()
	case libnfcTarget:
		if _, err := r.dev.InitiatorSelectPassiveTarget(t.mod, h.UID); err != nil {
			return fmt.Errorf("select target %s: %w", h.UIDString(), err)
		}
		return nil
	default:
		return fmt.Errorf("handle %s was not created by libnfc", h)
	}
}

// Transceive sends a raw frame to the selected target.
func (r *LibnfcRadio) Transceive(ctx context.Context, h *TagHandle, tx []byte) ([]byte, error) {
	if err := CheckHandle("Transceive", h); err != nil {
		return nil, err
	}
	t, ok := h.Target.(libnfcTarget)
	if !ok {
		return nil, fmt.Errorf("transceive not supported for %s", h)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRadioClosed
	}

	var rx [262]byte
	n, err := r.dev.InitiatorTransceiveBytes(tx, rx[:], 0)
	if err != nil {
		if presErr := r.dev.InitiatorTargetIsPresent(t.target); presErr != nil {
			r.invalidate("tag removed")
		}
		return nil, fmt.Errorf("libnfc transceive: %w", err)
	}
	return append([]byte(nil), rx[:n]...), nil
}

// ReadNDEF reads Ultralight and NTAG tags page by page through libfreefare
// and MIFARE Classic tags through their MAD. Other tags are declined.
func (r *LibnfcRadio) ReadNDEF(ctx context.Context, h *TagHandle) ([]byte, error) {
	if err := CheckHandle("ReadNDEF", h); err != nil {
		return nil, err
	}
	switch t := h.Target.(type) {
	case freefare.UltralightTag:
		return ReadType2(ctx, &pageTransceiver{pages: &lockedPageReader{mu: &r.mu, tag: t}}, h)
	case freefare.ClassicTag:
		r.mu.Lock()
		defer r.mu.Unlock()
		return readClassicNDEF(t)
	default:
		return nil, ErrNativeReadUnavailable
	}
}

// Invalidations implements Radio.
func (r *LibnfcRadio) Invalidations() <-chan string {
	return r.invalidations
}

func (r *LibnfcRadio) invalidate(reason string) {
	select {
	case r.invalidations <- reason:
	default:
	}
}

// Close releases the device.
func (r *LibnfcRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.dev.Close()
}

// readClassicNDEF reads the NFC Forum application from the MAD sectors.
func readClassicNDEF(t freefare.ClassicTag) ([]byte, error) {
	mad, err := t.ReadMad()
	if err != nil {
		madSector := byte(0x00)
		if t.Type() == freefare.Classic4k {
			madSector = 0x10
		}
		if authErr := t.Authenticate(freefare.ClassicSectorLastBlock(madSector), KeyDefault, int(freefare.KeyA)); authErr == nil {
			// Factory fresh tag, never formatted.
			return nil, fmt.Errorf("classic: no MAD: %w", ErrNoNDEFMessage)
		}
		return nil, fmt.Errorf("classic: read MAD: %w", err)
	}

	buffer := make([]byte, 4096)
	n, err := t.ReadApplication(mad, freefare.MadNFCForumAid, buffer, KeyNFCForum, int(freefare.KeyA))
	if err != nil {
		return nil, fmt.Errorf("classic: read NDEF application: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("classic: %w", ErrNoNDEFMessage)
	}
	// The application is read whole, so the scan never asks for more.
	message, err := scanTLVArea(buffer[:n], n, nil)
	if err != nil {
		return nil, fmt.Errorf("classic: %w", err)
	}
	return message, nil
}

// pageReader reads one 4-byte page of a Type 2 tag.
type pageReader interface {
	ReadPage(page byte) ([4]byte, error)
}

type lockedPageReader struct {
	mu  *sync.Mutex
	tag freefare.UltralightTag
}

func (l *lockedPageReader) ReadPage(page byte) ([4]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tag.ReadPage(page)
}

// pageTransceiver answers Type 2 READ commands from single page reads, so
// ReadType2 can run over libraries that only expose ReadPage.
type pageTransceiver struct {
	pages pageReader
}

func (p *pageTransceiver) Transceive(ctx context.Context, _ *TagHandle, tx []byte) ([]byte, error) {
	if len(tx) != 2 || tx[0] != type2CmdRead {
		return nil, fmt.Errorf("page reader only supports READ, got %X", tx)
	}
	out := make([]byte, 0, type2ReadSize)
	for i := 0; i < type2ReadSize/type2PageSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := int(tx[1]) + i
		if page > type2MaxPage {
			break
		}
		b, err := p.pages.ReadPage(byte(page))
		if err != nil {
			if i == 0 {
				return nil, err
			}
			// READ wraps or NAKs past the end of memory; return what exists.
			break
		}
		out = append(out, b[:]...)
	}
	for len(out) < type2ReadSize {
		out = append(out, 0)
	}
	return out, nil
}

// hexUID parses the UID strings libfreefare reports.
func hexUID(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	return hex.DecodeString(s)
}
