package nfc

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
)

// ISO15693 / NFC Forum Type 5
const (
	iso15693FlagHighRate  = 0x02
	iso15693FlagAddressed = 0x20
	iso15693FlagError     = 0x01
	iso15693CmdReadSingle = 0x20
	iso15693UIDLen        = 8
	iso15693UIDMSB        = 0xE0

	type5CCMagic      = 0xE1
	type5CCMagicLarge = 0xE2 // two-byte block addressing
	type5MaxBlock     = 0xFF
)

// Type5CC is the Capability Container stored in the first block(s).
type Type5CC struct {
	Magic       byte
	Version     byte
	DataAreaLen int // bytes
	Length      int // 4 or 8
}

func parseType5CC(b []byte) (Type5CC, error) {
	if len(b) < 4 {
		return Type5CC{}, fmt.Errorf("capability container too short: %x", b)
	}
	cc := Type5CC{Magic: b[0], Version: b[1], Length: 4}
	if cc.Magic != type5CCMagic && cc.Magic != type5CCMagicLarge {
		return Type5CC{}, fmt.Errorf("capability container magic 0x%02X: %w", cc.Magic, ErrNoNDEFMessage)
	}
	// Bits 7-6 carry the major mapping version.
	if cc.Version>>6 != 1 {
		return Type5CC{}, fmt.Errorf("mapping version 0x%02X not supported", cc.Version)
	}
	if b[2] != 0 {
		cc.DataAreaLen = int(b[2]) * 8
		return cc, nil
	}
	// MLEN 0 means an 8-byte CC with the size in bytes 6-7.
	if len(b) < 8 {
		return Type5CC{}, fmt.Errorf("extended capability container too short: %x", b)
	}
	cc.Length = 8
	cc.DataAreaLen = int(binary.BigEndian.Uint16(b[6:8])) * 8
	return cc, nil
}

// iso15693WireUID returns the UID in transmission order (LSB first).
// Handles carry UIDs as printed on the tag, starting with 0xE0.
func iso15693WireUID(uid []byte) []byte {
	if len(uid) != iso15693UIDLen {
		return nil
	}
	if uid[0] == iso15693UIDMSB {
		out := slices.Clone(uid)
		slices.Reverse(out)
		return out
	}
	return uid
}

func readType5Block(ctx context.Context, t Transceiver, h *TagHandle, block int) ([]byte, error) {
	if block > type5MaxBlock {
		return nil, fmt.Errorf("block %d out of range", block)
	}
	cmd := []byte{iso15693FlagHighRate, iso15693CmdReadSingle}
	if uid := iso15693WireUID(h.UID); uid != nil {
		cmd[0] |= iso15693FlagAddressed
		cmd = append(cmd, uid...)
	}
	cmd = append(cmd, byte(block))

	resp, err := t.Transceive(ctx, h, cmd)
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, err)
	}
	if len(resp) < 1 {
		return nil, fmt.Errorf("read block %d: empty response", block)
	}
	if resp[0]&iso15693FlagError != 0 {
		code := byte(0)
		if len(resp) > 1 {
			code = resp[1]
		}
		return nil, fmt.Errorf("read block %d: tag error 0x%02X", block, code)
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("read block %d: no data", block)
	}
	return resp[1:], nil
}

// ReadType5 reads the NDEF TLV of an ISO15693 (NFC Forum Type 5) tag block by block.
func ReadType5(ctx context.Context, t Transceiver, h *TagHandle) ([]byte, error) {
	head, err := readType5Block(ctx, t, h, 0)
	if err != nil {
		return nil, fmt.Errorf("type 5: %w", err)
	}
	if len(head) < 4 {
		return nil, fmt.Errorf("type 5: block size %d too small", len(head))
	}
	block := 1
	if head[2] == 0 && len(head) < 8 {
		b, err := readType5Block(ctx, t, h, block)
		if err != nil {
			return nil, fmt.Errorf("type 5: %w", err)
		}
		head = append(head, b...)
		block++
	}
	cc, err := parseType5CC(head)
	if err != nil {
		return nil, fmt.Errorf("type 5: %w", err)
	}

	area := slices.Clone(head[cc.Length:])
	message, err := scanTLVArea(area, cc.DataAreaLen, func() ([]byte, error) {
		b, err := readType5Block(ctx, t, h, block)
		block++
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("type 5: %w", err)
	}
	return message, nil
}
