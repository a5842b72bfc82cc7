package nfc

// PC/SC Part 3 standard byte (SS) values
const (
	atrStandardISO14443A3 = 0x03
	atrStandardISO15693   = 0x0B
	atrStandardFeliCa     = 0x11
)

// Card name byte found in the ATR historical bytes of contactless storage
// cards (PC/SC Part 3 format).
var atrCardNames = map[byte]string{
	0x01: ProductClassic1K,
	0x02: ProductClassic4K,
	0x03: ProductUltralight,
	0x26: ProductMini,
	0x3A: ProductUltralightC,
	0x3B: ProductFeliCa,
}

// ClassifyATR derives the product and technology of the card a PC/SC reader
// reports. The product is empty when the ATR says nothing beyond the
// technology.
func ClassifyATR(atr []byte) (string, Technology) {
	if len(atr) < 2 {
		return "", TechUnknown
	}

	histStart := findHistoricalBytesStart(atr)
	if histStart >= 0 && histStart < len(atr) {
		histBytes := atr[histStart:]

		// 80 4F 0C A0 00 00 03 06 SS C0 C1 ...
		for i := 0; i+10 < len(histBytes); i++ {
			if histBytes[i] != 0x80 || histBytes[i+1] != 0x4F ||
				histBytes[i+3] != 0xA0 || histBytes[i+4] != 0x00 ||
				histBytes[i+5] != 0x00 || histBytes[i+6] != 0x03 ||
				histBytes[i+7] != 0x06 {
				continue
			}
			switch histBytes[i+8] {
			case atrStandardFeliCa:
				return ProductFeliCa, TechFeliCa
			case atrStandardISO15693:
				return ProductISO15693, TechISO15693
			}
			if name, ok := atrCardNames[histBytes[i+10]]; ok {
				return name, ProductTechnology(name)
			}
			if histBytes[i+8] == atrStandardISO14443A3 {
				// Type 2 tag the reader has no name for, e.g. an NTAG.
				return "", TechMiFare
			}
		}
	}

	if containsISO14443_4Indicator(atr) {
		return ProductISO14443_4, TechISO7816
	}
	return "", TechUnknown
}

// findHistoricalBytesStart finds the start of historical bytes in ATR
func findHistoricalBytesStart(atr []byte) int {
	if len(atr) < 2 {
		return -1
	}

	// TS, T0 (low nibble = number of historical bytes), then interface
	// bytes announced by T0 and each TDi.
	ts := atr[0]
	if ts != 0x3B && ts != 0x3F {
		return -1
	}

	t0 := atr[1]
	if t0&0x0F == 0 {
		return -1
	}

	pos := 2
	td := t0
	for {
		if (td & 0x10) != 0 {
			pos++ // TAi present
		}
		if (td & 0x20) != 0 {
			pos++ // TBi present
		}
		if (td & 0x40) != 0 {
			pos++ // TCi present
		}
		if (td & 0x80) == 0 {
			break
		}
		if pos >= len(atr) {
			return -1
		}
		td = atr[pos] // TDi present, read it
		pos++
	}

	if pos >= len(atr) {
		return -1
	}
	return pos
}

// containsISO14443_4Indicator reports whether any TDi announces T=1, which
// PC/SC readers use for ISO14443-4 (T=CL) cards.
func containsISO14443_4Indicator(atr []byte) bool {
	if len(atr) < 3 {
		return false
	}

	pos := 2
	td := atr[1]
	for td&0x80 != 0 {
		if (td & 0x10) != 0 {
			pos++
		}
		if (td & 0x20) != 0 {
			pos++
		}
		if (td & 0x40) != 0 {
			pos++
		}
		if pos >= len(atr) {
			return false
		}
		td = atr[pos]
		pos++
		if td&0x0F == 0x01 {
			return true
		}
	}
	return false
}

// parseGetVersionResponse names an NXP Type 2 tag from its GET_VERSION
// response:
//
//	0: header, 1: vendor (0x04 = NXP), 2: product type (0x03 Ultralight,
//	0x04 NTAG), 3: subtype, 4-5: version, 6: storage size, 7: protocol
func parseGetVersionResponse(resp []byte) string {
	if len(resp) < 8 || resp[1] != 0x04 {
		return ""
	}

	switch resp[2] {
	case 0x03:
		return ProductUltralight
	case 0x04:
		switch resp[6] {
		case 0x0F:
			return ProductNtag213
		case 0x11:
			return ProductNtag215
		case 0x13:
			return ProductNtag216
		}
		return ProductNtag215
	default:
		return ""
	}
}

// ClassifySAK maps the SAK of an ISO14443-A target to a product and
// technology.
func ClassifySAK(sak byte) (string, Technology) {
	switch {
	case sak&0x20 != 0:
		return ProductISO14443_4, TechISO7816
	case sak == 0x08 || sak == 0x88:
		return ProductClassic1K, TechMiFare
	case sak == 0x18:
		return ProductClassic4K, TechMiFare
	case sak == 0x09:
		return ProductMini, TechMiFare
	case sak == 0x00:
		return ProductUltralight, TechMiFare
	default:
		return "", TechUnknown
	}
}
