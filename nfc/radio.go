package nfc

import (
	"context"
	"errors"
)

// Transceiver exchanges raw frames with a connected tag. Read strategies
// only see this part of a radio.
type Transceiver interface {
	Transceive(ctx context.Context, h *TagHandle, tx []byte) ([]byte, error)
}

// Radio is the hardware collaborator driven by a Session.
//
// Poll blocks until a tag enters the field or ctx ends; on timeout it returns
// an error matching context.DeadlineExceeded. Invalidations delivers reasons
// for asynchronous session loss (tag removed, reader unplugged); a radio
// without such notifications may return nil.
type Radio interface {
	Transceiver
	Poll(ctx context.Context) (*TagHandle, error)
	Connect(ctx context.Context, h *TagHandle) error
	Invalidations() <-chan string
	Close() error
}

// NDEFReader is implemented by radios that can read the NDEF message of some
// tags natively (a phone, or a reader library with tag-specific routines).
// ReadNDEF returns ErrNativeReadUnavailable when it has no native path for
// h; the session then falls back to the technology's read strategy.
type NDEFReader interface {
	ReadNDEF(ctx context.Context, h *TagHandle) ([]byte, error)
}

var (
	// ErrNativeReadUnavailable is returned by NDEFReader.ReadNDEF to decline a tag.
	ErrNativeReadUnavailable = errors.New("nfc: no native NDEF read for this tag")

	// ErrNoNDEFMessage is returned by read strategies for formatted tags that
	// carry no NDEF message.
	ErrNoNDEFMessage = errors.New("nfc: no NDEF message on tag")

	// ErrRadioClosed is returned by radios after Close.
	ErrRadioClosed = errors.New("nfc: radio closed")
)
