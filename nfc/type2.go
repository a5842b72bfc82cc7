package nfc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dotside-studios/ndefscan/ndef"
)

// NFC Forum Type 2 layout (MIFARE Ultralight, NTAG)
const (
	type2CmdRead  = 0x30
	type2PageSize = 4
	type2ReadSize = 16 // READ returns four pages
	type2CCPage   = 3
	type2CCMagic  = 0xE1
	type2MaxPage  = 0xFF
)

// Type2CC is the Capability Container stored in page 3.
type Type2CC struct {
	Magic       byte
	Version     byte
	DataAreaLen int // bytes, from CC byte 2 * 8
	Access      byte
}

func parseType2CC(b []byte) (Type2CC, error) {
	if len(b) < type2PageSize {
		return Type2CC{}, fmt.Errorf("capability container too short: %x", b)
	}
	cc := Type2CC{
		Magic:       b[0],
		Version:     b[1],
		DataAreaLen: int(b[2]) * 8,
		Access:      b[3],
	}
	if cc.Magic != type2CCMagic {
		return Type2CC{}, fmt.Errorf("capability container magic 0x%02X: %w", cc.Magic, ErrNoNDEFMessage)
	}
	// High nibble is the read access condition.
	if cc.Access>>4 != 0 {
		return Type2CC{}, fmt.Errorf("read access 0x%X denied", cc.Access>>4)
	}
	return cc, nil
}

func readType2Pages(ctx context.Context, t Transceiver, h *TagHandle, page int) ([]byte, error) {
	if page > type2MaxPage {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	resp, err := t.Transceive(ctx, h, []byte{type2CmdRead, byte(page)})
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}
	if len(resp) < type2ReadSize {
		return nil, fmt.Errorf("read page %d: short response (%d bytes)", page, len(resp))
	}
	return resp[:type2ReadSize], nil
}

// ReadType2 reads the NDEF TLV from the data area of a Type 2 tag, fetching
// pages until the TLV is complete.
func ReadType2(ctx context.Context, t Transceiver, h *TagHandle) ([]byte, error) {
	first, err := readType2Pages(ctx, t, h, type2CCPage)
	if err != nil {
		return nil, fmt.Errorf("type 2: %w", err)
	}
	cc, err := parseType2CC(first[:type2PageSize])
	if err != nil {
		return nil, fmt.Errorf("type 2: %w", err)
	}

	// The first READ already returned pages 4-6.
	area := append([]byte(nil), first[type2PageSize:]...)
	next := type2CCPage + type2ReadSize/type2PageSize

	message, err := scanTLVArea(area, cc.DataAreaLen, func() ([]byte, error) {
		b, err := readType2Pages(ctx, t, h, next)
		next += type2ReadSize / type2PageSize
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("type 2: %w", err)
	}
	return message, nil
}

// scanTLVArea looks for the NDEF TLV in area, extending it with more() while
// the TLV runs past the bytes read so far, up to limit bytes.
func scanTLVArea(area []byte, limit int, more func() ([]byte, error)) ([]byte, error) {
	for {
		value, err := ndef.FindTLV(area, ndef.TLVNDEF)
		switch {
		case err == nil:
			if len(value) == 0 {
				return nil, ErrNoNDEFMessage
			}
			return value, nil
		case errors.Is(err, ndef.ErrTLVNotFound):
			return nil, fmt.Errorf("%w: %w", ErrNoNDEFMessage, err)
		case !errors.Is(err, ndef.ErrOutOfBounds):
			return nil, err
		}
		if len(area) >= limit {
			return nil, fmt.Errorf("%w: data area of %d bytes exhausted: %w", ErrNoNDEFMessage, limit, err)
		}
		b, err := more()
		if err != nil {
			return nil, err
		}
		area = append(area, b...)
	}
}
