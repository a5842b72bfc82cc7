package nfc

import (
	"context"
	"fmt"
)

const (
	classicBlockSize    = 16
	classicFirstNDEF    = 4 // sector 0 holds the MAD
	classic1KBlocks     = 64
	classic4KBlocks     = 256
	classicLargeSectors = 128 // 4K blocks from here on are in 16-block sectors
)

// Keys tried on NDEF sectors, in order.
var classicNDEFKeys = [][6]byte{KeyNFCForum, KeyDefault}

// classicTrailer reports whether block is a sector trailer.
func classicTrailer(block int) bool {
	if block >= classicLargeSectors {
		return (block+1)%16 == 0
	}
	return (block+1)%4 == 0
}

// classicSector returns the sector holding block.
func classicSector(block int) int {
	if block >= classicLargeSectors {
		return 32 + (block-classicLargeSectors)/16
	}
	return block / 4
}

func classicTrailerOf(sector int) int {
	if sector >= 32 {
		return classicLargeSectors + (sector-32)*16 + 15
	}
	return sector*4 + 3
}

type classicReader struct {
	ctx        context.Context
	t          Transceiver
	h          *TagHandle
	lastSector int
}

func (c *classicReader) authenticate(sector int) error {
	trailer := byte(classicTrailerOf(sector))
	var lastErr error
	for _, key := range classicNDEFKeys {
		if _, err := exchangeAPDU(c.ctx, c.t, c.h, "load key", LoadKeyAPDU(0x00, key)); err != nil {
			if IsCardRemovedError(err) {
				return err
			}
			lastErr = err
			continue
		}
		_, err := exchangeAPDU(c.ctx, c.t, c.h, fmt.Sprintf("authenticate sector %d", sector), MIFAREAuthAPDU(trailer, MIFAREKeyA, 0x00))
		if err == nil {
			c.lastSector = sector
			return nil
		}
		if IsCardRemovedError(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("authentication failed for sector %d: %w", sector, lastErr)
}

func (c *classicReader) readBlock(block int) ([]byte, error) {
	if sector := classicSector(block); sector != c.lastSector {
		if err := c.authenticate(sector); err != nil {
			return nil, err
		}
	}
	data, err := exchangeAPDU(c.ctx, c.t, c.h, fmt.Sprintf("read block %d", block), StorageReadAPDU(byte(block), classicBlockSize))
	if err != nil {
		return nil, err
	}
	if len(data) < classicBlockSize {
		return nil, fmt.Errorf("read block %d: short response (%d bytes)", block, len(data))
	}
	return data[:classicBlockSize], nil
}

// ReadClassic reads the NDEF TLV of an NFC Forum formatted MIFARE Classic
// tag through a PC/SC reader, block by block from sector 1 on. Sector
// trailers are skipped and each sector is authenticated with key A.
func ReadClassic(ctx context.Context, t Transceiver, h *TagHandle) ([]byte, error) {
	maxBlocks := classic1KBlocks
	if h.Type == ProductClassic4K {
		maxBlocks = classic4KBlocks
	}
	dataLen := 0
	for b := classicFirstNDEF; b < maxBlocks; b++ {
		if !classicTrailer(b) {
			dataLen += classicBlockSize
		}
	}

	c := &classicReader{ctx: ctx, t: t, h: h, lastSector: -1}
	next := classicFirstNDEF
	more := func() ([]byte, error) {
		for next < maxBlocks && classicTrailer(next) {
			next++
		}
		if next >= maxBlocks {
			return nil, fmt.Errorf("block %d beyond end of tag", next)
		}
		b, err := c.readBlock(next)
		next++
		return b, err
	}

	first, err := more()
	if err != nil {
		return nil, fmt.Errorf("classic: %w", err)
	}
	message, err := scanTLVArea(first, dataLen, more)
	if err != nil {
		return nil, fmt.Errorf("classic: %w", err)
	}
	return message, nil
}
