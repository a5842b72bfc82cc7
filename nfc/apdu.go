package nfc

import (
	"context"
	"errors"
	"fmt"
)

// APDU status words
const (
	SW1Success     = 0x90
	SW2Success     = 0x00
	SW1MoreData    = 0x61 // More data available
	SW1WrongLength = 0x6C // Wrong Le field
)

// Command classes
const (
	CLAStandard = 0x00 // Standard ISO7816-4
	CLAPCSC     = 0xFF // PC/SC pseudo-APDU (reader commands)
)

// Instructions
const (
	INSGetData    = 0xCA // PC/SC GET DATA (UID)
	INSDirectCmd  = 0x00 // PC/SC direct transmit
	INSLoadKey    = 0x82 // PC/SC load authentication key
	INSAuth       = 0x86 // PC/SC general authenticate
	INSSelectFile = 0xA4
	INSReadBinary = 0xB0
)

// MIFARE Classic key types for general authenticate
const (
	MIFAREKeyA = 0x60
	MIFAREKeyB = 0x61
)

// SELECT P1/P2
const (
	p1SelectByID        byte = 0x00
	p1SelectByDFName    byte = 0x04
	p2SelectFirstOrOnly byte = 0x00
	p2SelectNoData      byte = 0x0C
)

// APDUResponse represents a parsed APDU response
type APDUResponse struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// IsSuccess returns true if the response indicates success (SW1=90, SW2=00)
func (r APDUResponse) IsSuccess() bool {
	return r.SW1 == SW1Success && r.SW2 == SW2Success
}

// Err returns an error if the response is not successful
func (r APDUResponse) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return &StatusError{SW1: r.SW1, SW2: r.SW2}
}

// StatusWord returns the 2-byte status word as uint16
func (r APDUResponse) StatusWord() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// StatusError is a non-9000 status word.
type StatusError struct {
	SW1, SW2 byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("APDU error: SW1=%02X SW2=%02X", e.SW1, e.SW2)
}

// ParseAPDUResponse splits a raw response into data and status word.
func ParseAPDUResponse(raw []byte) (APDUResponse, error) {
	if len(raw) < 2 {
		return APDUResponse{}, fmt.Errorf("APDU response too short: %x", raw)
	}
	return APDUResponse{
		Data: raw[:len(raw)-2],
		SW1:  raw[len(raw)-2],
		SW2:  raw[len(raw)-1],
	}, nil
}

// BuildAPDU constructs a short APDU command
func BuildAPDU(cla, ins, p1, p2 byte, data []byte, le *byte) []byte {
	cmd := []byte{cla, ins, p1, p2}

	if len(data) > 0 {
		cmd = append(cmd, byte(len(data)))
		cmd = append(cmd, data...)
	}

	if le != nil {
		cmd = append(cmd, *le)
	}

	return cmd
}

// SelectAIDAPDU selects an application by its DF name.
func SelectAIDAPDU(aid []byte) []byte {
	le := byte(0x00)
	return BuildAPDU(CLAStandard, INSSelectFile, p1SelectByDFName, p2SelectFirstOrOnly, aid, &le)
}

// SelectFileAPDU selects an elementary file by its 2-byte identifier.
func SelectFileAPDU(fid []byte) []byte {
	return BuildAPDU(CLAStandard, INSSelectFile, p1SelectByID, p2SelectNoData, fid, nil)
}

// ReadBinaryAPDU reads length bytes at a 15-bit offset of the selected file.
func ReadBinaryAPDU(offset uint16, length byte) []byte {
	p1 := byte((offset >> 8) & 0x7F)
	p2 := byte(offset)
	return BuildAPDU(CLAStandard, INSReadBinary, p1, p2, nil, &length)
}

// GetUIDAPDU returns the PC/SC pseudo-APDU for reading the card UID
func GetUIDAPDU() []byte {
	le := byte(0x00)
	return BuildAPDU(CLAPCSC, INSGetData, 0x00, 0x00, nil, &le)
}

// DirectTransmitAPDU wraps a native tag command for readers that only accept
// APDUs (ACR122U and compatible: FF 00 00 00 Lc [cmd]).
func DirectTransmitAPDU(cmd []byte) []byte {
	return BuildAPDU(CLAPCSC, INSDirectCmd, 0x00, 0x00, cmd, nil)
}

// LoadKeyAPDU loads a MIFARE key into a volatile reader key slot.
func LoadKeyAPDU(keySlot byte, key [6]byte) []byte {
	return BuildAPDU(CLAPCSC, INSLoadKey, 0x00, keySlot, key[:], nil)
}

// MIFAREAuthAPDU authenticates block with the key loaded in keySlot.
func MIFAREAuthAPDU(block byte, keyType byte, keySlot byte) []byte {
	// Version | 0x00 | Block | Key Type | Key Number
	data := []byte{0x01, 0x00, block, keyType, keySlot}
	return BuildAPDU(CLAPCSC, INSAuth, 0x00, 0x00, data, nil)
}

// StorageReadAPDU reads length bytes from a memory card block or page
// (PC/SC Part 3 READ BINARY).
func StorageReadAPDU(block byte, length byte) []byte {
	return BuildAPDU(CLAPCSC, INSReadBinary, 0x00, block, nil, &length)
}

// GetVersionAPDU wraps the NTAG/Ultralight EV1 GET_VERSION command.
func GetVersionAPDU() []byte {
	return DirectTransmitAPDU([]byte{0x60})
}

// exchangeAPDU sends cmd and returns the response data if the status word is 9000.
func exchangeAPDU(ctx context.Context, t Transceiver, h *TagHandle, step string, cmd []byte) ([]byte, error) {
	raw, err := t.Transceive(ctx, h, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	resp, err := ParseAPDUResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	return resp.Data, nil
}

// IsStatus reports whether err carries the given status word.
func IsStatus(err error, sw uint16) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return uint16(se.SW1)<<8|uint16(se.SW2) == sw
	}
	return false
}
