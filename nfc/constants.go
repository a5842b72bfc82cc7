package nfc

import "time"

// Product names reported in TagHandle.Type
const (
	ProductClassic1K   = "MIFARE Classic 1K"
	ProductClassic4K   = "MIFARE Classic 4K"
	ProductMini        = "MIFARE Mini"
	ProductUltralight  = "MIFARE Ultralight"
	ProductUltralightC = "MIFARE Ultralight C"
	ProductNtag213     = "NTAG213"
	ProductNtag215     = "NTAG215"
	ProductNtag216     = "NTAG216"
	ProductDESFire     = "MIFARE DESFire"
	ProductISO14443_4  = "ISO14443-4"
	ProductFeliCa      = "FeliCa"
	ProductISO15693    = "ISO15693"
)

// Common MIFARE Classic keys
var (
	// KeyDefault is the factory default key (all 0xFF)
	KeyDefault = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// KeyNFCForum is the NFC Forum public key of NDEF sectors
	KeyNFCForum = [6]byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	// KeyMAD is the MAD (MIFARE Application Directory) key
	KeyMAD = [6]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
)

// Radio timing
const (
	DefaultPollInterval  = 250 * time.Millisecond
	DeviceEnumRetries    = 3
	removalCheckInterval = 500 * time.Millisecond
)

// ProductTechnology maps a product name to the technology whose read
// strategy serves it.
func ProductTechnology(product string) Technology {
	switch product {
	case ProductUltralight, ProductUltralightC, ProductNtag213, ProductNtag215, ProductNtag216,
		ProductClassic1K, ProductClassic4K, ProductMini:
		return TechMiFare
	case ProductDESFire, ProductISO14443_4:
		return TechISO7816
	case ProductFeliCa:
		return TechFeliCa
	case ProductISO15693:
		return TechISO15693
	default:
		return TechUnknown
	}
}

// IsClassic reports whether product is a MIFARE Classic variant, which has
// no Type 2 page layout and needs sector authentication.
func IsClassic(product string) bool {
	return product == ProductClassic1K || product == ProductClassic4K || product == ProductMini
}
