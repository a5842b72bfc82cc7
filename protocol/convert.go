package protocol

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var validHex = regexp.MustCompile(`^[0-9A-F]+$`)

// ParseUID normalizes a UID from various formats to colon-separated uppercase hex.
// Supports: "04:AB:CD:EF", "04ABCDEF", "04 AB CD EF", "04-AB-CD-EF"
// Returns: normalized colon-separated uppercase hex (e.g., "04:AB:CD:EF")
func ParseUID(uid string) (string, error) {
	b, err := UIDBytes(uid)
	if err != nil {
		return "", err
	}
	var result strings.Builder
	for i, v := range b {
		if i > 0 {
			result.WriteByte(':')
		}
		fmt.Fprintf(&result, "%02X", v)
	}
	return result.String(), nil
}

// UIDBytes parses a UID in any of the formats ParseUID accepts.
func UIDBytes(uid string) ([]byte, error) {
	if uid == "" {
		return nil, fmt.Errorf("empty UID")
	}

	cleaned := strings.ReplaceAll(uid, ":", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ToUpper(cleaned)

	if !validHex.MatchString(cleaned) {
		return nil, fmt.Errorf("UID contains invalid characters: %s", uid)
	}
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("UID has odd number of hex characters: %s", uid)
	}
	return hex.DecodeString(cleaned)
}

// InferTechnology maps the technology names phones report (Android tech
// classes, iOS tag types, product names) to the agent's technology names.
// It returns "" when nothing matches.
func InferTechnology(name string) string {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "FELICA"), strings.Contains(upper, "NFCF"), strings.Contains(upper, "ISO18092"):
		return "felica"
	case strings.Contains(upper, "15693"), strings.Contains(upper, "NFCV"):
		return "iso15693"
	case strings.Contains(upper, "ISODEP"), strings.Contains(upper, "7816"),
		strings.Contains(upper, "DESFIRE"), strings.Contains(upper, "TYPE4"):
		return "iso7816"
	case strings.Contains(upper, "MIFARE"), strings.Contains(upper, "NTAG"),
		strings.Contains(upper, "NFCA"), strings.Contains(upper, "ISO14443A"), strings.Contains(upper, "TYPE2"):
		return "mifare"
	default:
		return ""
	}
}
