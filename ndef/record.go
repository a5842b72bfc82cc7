// Package ndef implements the NFC Forum Data Exchange Format: the binary
// record and message layout carried by NFC tags, plus interpretation of the
// well-known Text and URI record types.
package ndef

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TNF is the 3-bit Type Name Format field of a record header.
type TNF byte

const (
	TNFEmpty       TNF = 0x00 // Empty record, no type, id or payload
	TNFWellKnown   TNF = 0x01 // NFC Forum well-known type (RTD)
	TNFMIME        TNF = 0x02 // Media type (RFC 2046)
	TNFAbsoluteURI TNF = 0x03 // Absolute URI (RFC 3986)
	TNFExternal    TNF = 0x04 // NFC Forum external type
	TNFUnknown     TNF = 0x05 // Unknown payload type
	TNFUnchanged   TNF = 0x06 // Middle and terminating chunks
	TNFReserved    TNF = 0x07
)

func (t TNF) String() string {
	switch t {
	case TNFEmpty:
		return "Empty"
	case TNFWellKnown:
		return "WellKnown"
	case TNFMIME:
		return "MIME"
	case TNFAbsoluteURI:
		return "AbsoluteURI"
	case TNFExternal:
		return "External"
	case TNFUnknown:
		return "Unknown"
	case TNFUnchanged:
		return "Unchanged"
	default:
		return "Reserved"
	}
}

// Header flag bits: MB|ME|CF|SR|IL|TNF(3).
const (
	flagMB  byte = 0x80 // Message Begin
	flagME  byte = 0x40 // Message End
	flagCF  byte = 0x20 // Chunk Flag
	flagSR  byte = 0x10 // Short Record
	flagIL  byte = 0x08 // ID Length present
	tnfMask byte = 0x07

	// MaxShortPayload is the largest payload encoded with a 1-byte length.
	MaxShortPayload = 255
	maxFieldLength  = 255
)

// Record is a single NDEF record.
//
// ID distinguishes absent from empty: a nil ID is encoded without the IL
// flag, a non-nil empty ID is encoded with IL set and a zero length.
type Record struct {
	TNF     TNF
	Type    []byte
	ID      []byte
	Payload []byte

	MessageBegin bool
	MessageEnd   bool
	Chunked      bool // CF: the payload continues in the next record
}

// Equal reports whether two records carry the same fields.
func (r Record) Equal(o Record) bool {
	return r.TNF == o.TNF &&
		bytes.Equal(r.Type, o.Type) &&
		(r.ID == nil) == (o.ID == nil) &&
		bytes.Equal(r.ID, o.ID) &&
		bytes.Equal(r.Payload, o.Payload) &&
		r.MessageBegin == o.MessageBegin &&
		r.MessageEnd == o.MessageEnd &&
		r.Chunked == o.Chunked
}

// TypeString returns the record type as a string.
func (r Record) TypeString() string {
	return string(r.Type)
}

// IsWellKnown reports whether r is a well-known record of type rtd (e.g. "T").
func (r Record) IsWellKnown(rtd string) bool {
	return r.TNF == TNFWellKnown && string(r.Type) == rtd
}

func (r Record) String() string {
	return fmt.Sprintf("Record{TNF: %s, Type: %q, ID: %q, Payload: %d bytes}", r.TNF, r.Type, r.ID, len(r.Payload))
}

// DecodeRecord reads one physical record from c.
//
// The cursor is left after the record on success. On failure the cursor
// position is unspecified and the error is a MalformedRecord *Error, wrapping
// an OutOfBounds error when a field runs past the end of the buffer.
func DecodeRecord(c *Cursor) (Record, error) {
	const op = "DecodeRecord"
	start := c.Offset()

	header, err := c.ReadByte()
	if err != nil {
		return Record{}, wrapError(CodeMalformedRecord, op, start, "truncated header", err)
	}
	rec := Record{
		TNF:          TNF(header & tnfMask),
		MessageBegin: header&flagMB != 0,
		MessageEnd:   header&flagME != 0,
		Chunked:      header&flagCF != 0,
	}
	shortRecord := header&flagSR != 0
	hasID := header&flagIL != 0

	typeLen, err := c.ReadByte()
	if err != nil {
		return Record{}, wrapError(CodeMalformedRecord, op, start, "truncated type length", err)
	}

	var payloadLen uint64
	if shortRecord {
		b, err := c.ReadByte()
		if err != nil {
			return Record{}, wrapError(CodeMalformedRecord, op, start, "truncated short payload length", err)
		}
		payloadLen = uint64(b)
	} else {
		v, err := c.ReadUint32()
		if err != nil {
			return Record{}, wrapError(CodeMalformedRecord, op, start, "truncated payload length", err)
		}
		payloadLen = uint64(v)
	}

	var idLen byte
	if hasID {
		idLen, err = c.ReadByte()
		if err != nil {
			return Record{}, wrapError(CodeMalformedRecord, op, start, "truncated id length", err)
		}
	}

	if err := validateLayout(op, start, rec.TNF, int(typeLen), hasID, int(idLen), payloadLen); err != nil {
		return Record{}, err
	}

	declared := uint64(typeLen) + uint64(idLen) + payloadLen
	if declared > uint64(c.Remaining()) {
		cause := newError(CodeOutOfBounds, op, c.Offset(), "need %d bytes, %d remaining", declared, c.Remaining())
		return Record{}, wrapError(CodeMalformedRecord, op, start, "declared length exceeds buffer", cause)
	}

	if typeLen > 0 {
		rec.Type, _ = c.ReadBytes(int(typeLen))
	}
	if hasID {
		rec.ID, _ = c.ReadBytes(int(idLen))
	}
	if payloadLen > 0 {
		rec.Payload, _ = c.ReadBytes(int(payloadLen))
	}
	return rec, nil
}

// validateLayout rejects TNF and length combinations the NFC Forum layout forbids.
func validateLayout(op string, offset int, tnf TNF, typeLen int, hasID bool, idLen int, payloadLen uint64) error {
	switch tnf {
	case TNFReserved:
		return newError(CodeMalformedRecord, op, offset, "reserved TNF 0x07")
	case TNFEmpty:
		if typeLen != 0 || idLen != 0 || payloadLen != 0 || hasID {
			return newError(CodeMalformedRecord, op, offset, "empty record with type, id or payload")
		}
	case TNFUnknown, TNFUnchanged:
		if typeLen != 0 {
			return newError(CodeMalformedRecord, op, offset, "TNF %s must not carry a type (length %d)", tnf, typeLen)
		}
	default:
		if typeLen == 0 {
			return newError(CodeMalformedRecord, op, offset, "TNF %s requires a type", tnf)
		}
	}
	return nil
}

// EncodeRecord serializes r, including its own MB, ME and CF flags.
// The short record form is used when the payload fits in one length byte.
func EncodeRecord(r Record) ([]byte, error) {
	return appendRecord(nil, r)
}

func appendRecord(dst []byte, r Record) ([]byte, error) {
	const op = "EncodeRecord"

	if r.TNF > TNFReserved {
		return dst, newError(CodeMalformedRecord, op, -1, "TNF 0x%02X does not fit in 3 bits", byte(r.TNF))
	}
	if len(r.Type) > maxFieldLength {
		return dst, newError(CodeMalformedRecord, op, -1, "type length %d exceeds %d", len(r.Type), maxFieldLength)
	}
	if len(r.ID) > maxFieldLength {
		return dst, newError(CodeMalformedRecord, op, -1, "id length %d exceeds %d", len(r.ID), maxFieldLength)
	}
	if uint64(len(r.Payload)) > math.MaxUint32 {
		return dst, newError(CodeMalformedRecord, op, -1, "payload length %d exceeds 32 bits", len(r.Payload))
	}
	hasID := r.ID != nil
	if err := validateLayout(op, -1, r.TNF, len(r.Type), hasID, len(r.ID), uint64(len(r.Payload))); err != nil {
		return dst, err
	}

	header := byte(r.TNF) & tnfMask
	if r.MessageBegin {
		header |= flagMB
	}
	if r.MessageEnd {
		header |= flagME
	}
	if r.Chunked {
		header |= flagCF
	}
	short := len(r.Payload) <= MaxShortPayload
	if short {
		header |= flagSR
	}
	if hasID {
		header |= flagIL
	}

	dst = append(dst, header, byte(len(r.Type)))
	if short {
		dst = append(dst, byte(len(r.Payload)))
	} else {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(r.Payload)))
	}
	if hasID {
		dst = append(dst, byte(len(r.ID)))
	}
	dst = append(dst, r.Type...)
	dst = append(dst, r.ID...)
	dst = append(dst, r.Payload...)
	return dst, nil
}
