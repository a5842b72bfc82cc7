package ndef

import "errors"

// TLV block types used in the data area of Type 2 and Type 5 tags.
const (
	TLVNull        byte = 0x00
	TLVLockCtrl    byte = 0x01
	TLVMemCtrl     byte = 0x02
	TLVNDEF        byte = 0x03
	TLVProprietary byte = 0xFD
	TLVTerminator  byte = 0xFE
)

// ErrTLVNotFound is returned by FindTLV when a Terminator TLV is reached
// before a TLV of the requested type.
var ErrTLVNotFound = errors.New("ndef: TLV not found")

// EncodeTLV wraps value in a TLV of the given type followed by a Terminator.
// Values of 255 bytes or more use the 3-byte length form (0xFF + 2 bytes).
func EncodeTLV(tlvType byte, value []byte) []byte {
	out := make([]byte, 0, len(value)+5)
	out = append(out, tlvType)
	if len(value) < 0xFF {
		out = append(out, byte(len(value)))
	} else {
		out = append(out, 0xFF, byte(len(value)>>8), byte(len(value)))
	}
	out = append(out, value...)
	return append(out, TLVTerminator)
}

// FindTLV walks a TLV area and returns a copy of the value of the first TLV
// of type tlvType. Null TLVs are skipped.
//
// When the area stops in the middle of a TLV, or ends without a Terminator,
// the error matches ErrOutOfBounds, which tells a reader to fetch more of the
// tag memory.
func FindTLV(area []byte, tlvType byte) ([]byte, error) {
	const op = "FindTLV"
	c := NewCursor(area)
	for c.Remaining() > 0 {
		start := c.Offset()
		t, _ := c.ReadByte()
		switch t {
		case TLVNull:
			continue
		case TLVTerminator:
			if tlvType == TLVTerminator {
				return []byte{}, nil
			}
			return nil, ErrTLVNotFound
		}

		length, err := readTLVLength(c)
		if err != nil {
			return nil, wrapError(CodeOutOfBounds, op, start, "truncated TLV length", err)
		}
		value, err := c.ReadBytes(length)
		if err != nil {
			return nil, wrapError(CodeOutOfBounds, op, start, "truncated TLV value", err)
		}
		if t == tlvType {
			return value, nil
		}
	}
	return nil, newError(CodeOutOfBounds, op, c.Offset(), "TLV area ends without terminator")
}

func readTLVLength(c *Cursor) (int, error) {
	b, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return int(b), nil
	}
	hi, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	lo, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	return int(hi)<<8 | int(lo), nil
}
