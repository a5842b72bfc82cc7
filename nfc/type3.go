package nfc

import (
	"context"
	"fmt"
)

// FeliCa / NFC Forum Type 3
const (
	felicaCmdCheck       = 0x06
	felicaRespCheck      = 0x07
	felicaIDmLen         = 8
	felicaBlockSize      = 16
	type3NDEFServiceCode = 0x000B // read without encryption
	type3AttrVersionMin  = 0x10
)

// Type3Attributes is the Attribute Information Block (block 0).
type Type3Attributes struct {
	Version byte
	Nbr     int // blocks per Check command
	Nmaxb   int // data area size in blocks
	WriteF  byte
	RWFlag  byte
	Ln      int // NDEF message length in bytes
}

func parseType3Attributes(b []byte) (Type3Attributes, error) {
	if len(b) < felicaBlockSize {
		return Type3Attributes{}, fmt.Errorf("attribute block too short: %x", b)
	}
	var sum int
	for _, v := range b[:14] {
		sum += int(v)
	}
	if want := int(b[14])<<8 | int(b[15]); sum != want {
		return Type3Attributes{}, fmt.Errorf("attribute block checksum %04X, want %04X: %w", want, sum, ErrNoNDEFMessage)
	}
	a := Type3Attributes{
		Version: b[0],
		Nbr:     int(b[1]),
		Nmaxb:   int(b[3])<<8 | int(b[4]),
		WriteF:  b[9],
		RWFlag:  b[10],
		Ln:      int(b[11])<<16 | int(b[12])<<8 | int(b[13]),
	}
	if a.Version < type3AttrVersionMin {
		return Type3Attributes{}, fmt.Errorf("mapping version 0x%02X not supported", a.Version)
	}
	if a.Nbr == 0 {
		a.Nbr = 1
	}
	return a, nil
}

// felicaCheckCommand builds a length-prefixed Check frame reading blocks of
// the NDEF service.
func felicaCheckCommand(idm []byte, blocks []int) []byte {
	cmd := []byte{0, felicaCmdCheck}
	cmd = append(cmd, idm...)
	cmd = append(cmd, 1, byte(type3NDEFServiceCode&0xFF), byte(type3NDEFServiceCode>>8))
	cmd = append(cmd, byte(len(blocks)))
	for _, b := range blocks {
		if b < 0x100 {
			cmd = append(cmd, 0x80, byte(b))
		} else {
			cmd = append(cmd, 0x00, byte(b), byte(b>>8))
		}
	}
	cmd[0] = byte(len(cmd))
	return cmd
}

func felicaCheck(ctx context.Context, t Transceiver, h *TagHandle, blocks []int) ([]byte, error) {
	resp, err := t.Transceive(ctx, h, felicaCheckCommand(h.UID, blocks))
	if err != nil {
		return nil, fmt.Errorf("check blocks %v: %w", blocks, err)
	}
	// len, 0x07, IDm(8), status1, status2, [count, data...]
	const header = 1 + 1 + felicaIDmLen + 2
	if len(resp) < header || resp[1] != felicaRespCheck {
		return nil, fmt.Errorf("check blocks %v: unexpected response %x", blocks, resp)
	}
	if s1, s2 := resp[10], resp[11]; s1 != 0 {
		return nil, fmt.Errorf("check blocks %v: status %02X%02X", blocks, s1, s2)
	}
	want := len(blocks) * felicaBlockSize
	if len(resp) < header+1+want || int(resp[header]) != len(blocks) {
		return nil, fmt.Errorf("check blocks %v: short response (%d bytes)", blocks, len(resp))
	}
	return resp[header+1 : header+1+want], nil
}

// ReadType3 reads the NDEF message of a FeliCa (NFC Forum Type 3) tag.
func ReadType3(ctx context.Context, t Transceiver, h *TagHandle) ([]byte, error) {
	if len(h.UID) != felicaIDmLen {
		return nil, fmt.Errorf("type 3: IDm must be %d bytes, got %d", felicaIDmLen, len(h.UID))
	}
	attrBlock, err := felicaCheck(ctx, t, h, []int{0})
	if err != nil {
		return nil, fmt.Errorf("type 3: %w", err)
	}
	attr, err := parseType3Attributes(attrBlock)
	if err != nil {
		return nil, fmt.Errorf("type 3: %w", err)
	}
	if attr.Ln == 0 {
		return nil, fmt.Errorf("type 3: %w", ErrNoNDEFMessage)
	}

	total := (attr.Ln + felicaBlockSize - 1) / felicaBlockSize
	if attr.Nmaxb > 0 && total > attr.Nmaxb {
		return nil, fmt.Errorf("type 3: Ln %d exceeds data area of %d blocks", attr.Ln, attr.Nmaxb)
	}

	data := make([]byte, 0, total*felicaBlockSize)
	for next := 1; next <= total; {
		n := min(attr.Nbr, total-next+1)
		blocks := make([]int, n)
		for i := range blocks {
			blocks[i] = next + i
		}
		b, err := felicaCheck(ctx, t, h, blocks)
		if err != nil {
			return nil, fmt.Errorf("type 3: %w", err)
		}
		data = append(data, b...)
		next += n
	}
	return data[:attr.Ln], nil
}
