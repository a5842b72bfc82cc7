package nfc

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
)

// NFC Forum Type 4 identifiers
var (
	aidNDEFApp = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
	fidCC      = []byte{0xE1, 0x03}
)

const (
	type4CCLength        = 15
	type4NDEFFileCtrlTLV = 0x04
	type4MaxChunk        = 253 // largest Le used without extended APDUs
	type4MinMappingVer   = 0x20
	type4ReadAccessGrant = 0x00
	type4NLENFieldLength = 2
	type4DefaultMLe      = type4MaxChunk
)

const swFileNotFound uint16 = 0x6A82

// type4CC is the parsed Capability Container file.
type type4CC struct {
	MappingVersion byte
	MLe            uint16
	FileID         []byte
	MaxFileSize    uint16
	ReadAccess     byte
}

func parseType4CC(b []byte) (type4CC, error) {
	if len(b) < type4CCLength {
		return type4CC{}, fmt.Errorf("CC file too short (expected %d bytes, got %d)", type4CCLength, len(b))
	}
	cc := type4CC{
		MappingVersion: b[2],
		MLe:            binary.BigEndian.Uint16(b[3:5]),
	}
	if cc.MappingVersion < type4MinMappingVer {
		return type4CC{}, fmt.Errorf("CC mapping version %02X not supported", cc.MappingVersion)
	}
	if b[7] != type4NDEFFileCtrlTLV || b[8] < 6 {
		return type4CC{}, fmt.Errorf("NDEF File Control TLV not found in CC (T=%02X L=%02X)", b[7], b[8])
	}
	cc.FileID = append([]byte(nil), b[9:11]...)
	cc.MaxFileSize = binary.BigEndian.Uint16(b[11:13])
	cc.ReadAccess = b[13]

	if cc.MLe == 0 || cc.MLe > type4MaxChunk {
		cc.MLe = type4DefaultMLe
	}
	return cc, nil
}

// ReadType4 reads the NDEF file of an ISO7816 (NFC Forum Type 4) tag.
func ReadType4(ctx context.Context, t Transceiver, h *TagHandle) ([]byte, error) {
	if _, err := exchangeAPDU(ctx, t, h, "select NDEF application", SelectAIDAPDU(aidNDEFApp)); err != nil {
		if IsStatus(err, swFileNotFound) {
			return nil, fmt.Errorf("type 4: %w", ErrNoNDEFMessage)
		}
		return nil, fmt.Errorf("type 4: %w", err)
	}
	if _, err := exchangeAPDU(ctx, t, h, "select CC file", SelectFileAPDU(fidCC)); err != nil {
		return nil, fmt.Errorf("type 4: %w", err)
	}
	ccBytes, err := exchangeAPDU(ctx, t, h, "read CC file", ReadBinaryAPDU(0, type4CCLength))
	if err != nil {
		return nil, fmt.Errorf("type 4: %w", err)
	}
	cc, err := parseType4CC(ccBytes)
	if err != nil {
		return nil, fmt.Errorf("type 4: %w", err)
	}
	if cc.ReadAccess != type4ReadAccessGrant {
		return nil, fmt.Errorf("type 4: NDEF file %X is not readable (access %02X)", cc.FileID, cc.ReadAccess)
	}
	log.Printf("[type4] %s: NDEF file %X, max size %d, MLe %d", h.UIDString(), cc.FileID, cc.MaxFileSize, cc.MLe)

	if _, err := exchangeAPDU(ctx, t, h, "select NDEF file", SelectFileAPDU(cc.FileID)); err != nil {
		return nil, fmt.Errorf("type 4: %w", err)
	}
	nlenBytes, err := exchangeAPDU(ctx, t, h, "read NLEN", ReadBinaryAPDU(0, type4NLENFieldLength))
	if err != nil {
		return nil, fmt.Errorf("type 4: %w", err)
	}
	if len(nlenBytes) < type4NLENFieldLength {
		return nil, fmt.Errorf("type 4: NLEN response too short: %x", nlenBytes)
	}
	nlen := binary.BigEndian.Uint16(nlenBytes)
	if nlen == 0 {
		return nil, fmt.Errorf("type 4: %w", ErrNoNDEFMessage)
	}
	if cc.MaxFileSize > type4NLENFieldLength && nlen > cc.MaxFileSize-type4NLENFieldLength {
		return nil, fmt.Errorf("type 4: NLEN %d exceeds max NDEF file size %d", nlen, cc.MaxFileSize)
	}

	message := make([]byte, 0, nlen)
	offset := uint16(type4NLENFieldLength)
	for remaining := nlen; remaining > 0; {
		n := min(remaining, cc.MLe)
		chunk, err := exchangeAPDU(ctx, t, h, fmt.Sprintf("read NDEF at offset %d", offset), ReadBinaryAPDU(offset, byte(n)))
		if err != nil {
			return nil, fmt.Errorf("type 4: %w", err)
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("type 4: empty response at offset %d with %d bytes remaining", offset, remaining)
		}
		if len(chunk) > int(remaining) {
			chunk = chunk[:remaining]
		}
		message = append(message, chunk...)
		remaining -= uint16(len(chunk))
		offset += uint16(len(chunk))
	}
	return message, nil
}
