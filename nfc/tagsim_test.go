package nfc

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/ndefscan/ndef"
)

// Small tag emulators used as Transceiver by the read strategy tests.

type type2Sim struct {
	memory []byte
	reads  []int
}

// newType2Sim lays out a Type 2 memory image: 3 header pages, the CC in page
// 3 and area from page 4 on.
func newType2Sim(cc [4]byte, area []byte) *type2Sim {
	mem := make([]byte, 12, 16+len(area))
	mem = append(mem, cc[:]...)
	mem = append(mem, area...)
	return &type2Sim{memory: mem}
}

func (s *type2Sim) Transceive(_ context.Context, _ *TagHandle, tx []byte) ([]byte, error) {
	if len(tx) != 2 || tx[0] != type2CmdRead {
		return nil, fmt.Errorf("type2Sim: unexpected command %X", tx)
	}
	page := int(tx[1])
	s.reads = append(s.reads, page)
	out := make([]byte, type2ReadSize)
	if start := page * type2PageSize; start < len(s.memory) {
		copy(out, s.memory[start:])
	}
	return out, nil
}

type type4Sim struct {
	files    map[string][]byte
	noApp    bool
	selected []byte
	readLens []int
}

func (s *type4Sim) Transceive(_ context.Context, _ *TagHandle, tx []byte) ([]byte, error) {
	ok := []byte{0x90, 0x00}
	notFound := []byte{0x6A, 0x82}
	if len(tx) < 4 {
		return []byte{0x67, 0x00}, nil
	}
	switch tx[1] {
	case INSSelectFile:
		if tx[2] == p1SelectByDFName {
			if s.noApp {
				return notFound, nil
			}
			return ok, nil
		}
		f, found := s.files[hex.EncodeToString(tx[5:7])]
		if !found {
			return notFound, nil
		}
		s.selected = f
		return ok, nil
	case INSReadBinary:
		if s.selected == nil {
			return []byte{0x69, 0x86}, nil
		}
		offset := int(tx[2])<<8 | int(tx[3])
		le := int(tx[4])
		s.readLens = append(s.readLens, le)
		if offset > len(s.selected) {
			return []byte{0x6B, 0x00}, nil
		}
		end := min(offset+le, len(s.selected))
		return append(append([]byte(nil), s.selected[offset:end]...), ok...), nil
	}
	return []byte{0x6D, 0x00}, nil
}

// type4CCFile builds a CC file for NDEF file E104.
func type4CCFile(mle, maxSize uint16, readAccess byte) []byte {
	return []byte{
		0x00, 0x0F, 0x20,
		byte(mle >> 8), byte(mle),
		0x00, 0x3B,
		0x04, 0x06, 0xE1, 0x04,
		byte(maxSize >> 8), byte(maxSize),
		readAccess, 0x00,
	}
}

func newType4Sim(message []byte, mle uint16) *type4Sim {
	file := append([]byte{byte(len(message) >> 8), byte(len(message))}, message...)
	return &type4Sim{files: map[string][]byte{
		"e103": type4CCFile(mle, 0x0800, 0x00),
		"e104": file,
	}}
}

type type3Sim struct {
	idm    []byte
	blocks [][]byte
	status [2]byte
	checks [][]int
}

func (s *type3Sim) Transceive(_ context.Context, _ *TagHandle, tx []byte) ([]byte, error) {
	if len(tx) < 14 || int(tx[0]) != len(tx) || tx[1] != felicaCmdCheck {
		return nil, fmt.Errorf("type3Sim: bad frame %X", tx)
	}
	var blocks []int
	for i := 14; i < len(tx); {
		if tx[i]&0x80 != 0 {
			blocks = append(blocks, int(tx[i+1]))
			i += 2
		} else {
			blocks = append(blocks, int(tx[i+1])|int(tx[i+2])<<8)
			i += 3
		}
	}
	if len(blocks) != int(tx[13]) {
		return nil, fmt.Errorf("type3Sim: %d block elements, header says %d", len(blocks), tx[13])
	}
	s.checks = append(s.checks, blocks)

	resp := []byte{0, felicaRespCheck}
	resp = append(resp, s.idm...)
	resp = append(resp, s.status[0], s.status[1])
	if s.status[0] == 0 {
		resp = append(resp, byte(len(blocks)))
		for _, b := range blocks {
			if b >= len(s.blocks) {
				return nil, fmt.Errorf("type3Sim: block %d out of range", b)
			}
			resp = append(resp, s.blocks[b]...)
		}
	}
	resp[0] = byte(len(resp))
	return resp, nil
}

// type3AttributeBlock builds block 0 with a valid checksum.
func type3AttributeBlock(nbr byte, nmaxb uint16, ln int) []byte {
	b := []byte{
		0x10, nbr, 0x01,
		byte(nmaxb >> 8), byte(nmaxb),
		0, 0, 0, 0,
		0x00, 0x01,
		byte(ln >> 16), byte(ln >> 8), byte(ln),
		0, 0,
	}
	var sum int
	for _, v := range b[:14] {
		sum += int(v)
	}
	b[14], b[15] = byte(sum>>8), byte(sum)
	return b
}

func newType3Sim(idm []byte, nbr byte, message []byte) *type3Sim {
	nblocks := (len(message) + felicaBlockSize - 1) / felicaBlockSize
	s := &type3Sim{idm: idm, blocks: [][]byte{type3AttributeBlock(nbr, 13, len(message))}}
	padded := make([]byte, nblocks*felicaBlockSize)
	copy(padded, message)
	for i := 0; i < nblocks; i++ {
		s.blocks = append(s.blocks, padded[i*felicaBlockSize:(i+1)*felicaBlockSize])
	}
	return s
}

type type5Sim struct {
	wireUID   []byte
	blockSize int
	memory    []byte
	commands  [][]byte
}

func (s *type5Sim) Transceive(_ context.Context, _ *TagHandle, tx []byte) ([]byte, error) {
	s.commands = append(s.commands, append([]byte(nil), tx...))
	if len(tx) < 3 || tx[1] != iso15693CmdReadSingle {
		return []byte{0x01, 0x01}, nil
	}
	if tx[0]&iso15693FlagAddressed != 0 && (len(tx) != 11 || hex.EncodeToString(tx[2:10]) != hex.EncodeToString(s.wireUID)) {
		return nil, fmt.Errorf("type5Sim: addressed to %X", tx[2:len(tx)-1])
	}
	block := int(tx[len(tx)-1])
	start := block * s.blockSize
	if start >= len(s.memory) {
		return []byte{0x01, 0x10}, nil // block not available
	}
	out := make([]byte, s.blockSize)
	copy(out, s.memory[start:])
	return append([]byte{0x00}, out...), nil
}

func encodedText(t *testing.T, text string) []byte {
	t.Helper()
	rec, err := ndef.NewTextRecord(text, "en")
	require.NoError(t, err)
	b, err := ndef.EncodeMessage(ndef.NewMessage(rec))
	require.NoError(t, err)
	return b
}
