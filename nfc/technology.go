package nfc

import (
	"fmt"
	"strings"
)

// Technology is the physical tag family reported by a radio on detection.
type Technology int

const (
	TechUnknown  Technology = iota
	TechMiFare              // ISO14443-3A memory tags: Ultralight, NTAG, Classic (NFC Forum Type 2)
	TechISO7816             // ISO14443-4 tags speaking APDUs (NFC Forum Type 4)
	TechISO15693            // Vicinity tags (NFC Forum Type 5)
	TechFeliCa              // JIS X 6319-4 (NFC Forum Type 3)
)

// AllTechnologies lists every known technology except TechUnknown.
var AllTechnologies = []Technology{TechMiFare, TechISO7816, TechISO15693, TechFeliCa}

func (t Technology) String() string {
	switch t {
	case TechMiFare:
		return "mifare"
	case TechISO7816:
		return "iso7816"
	case TechISO15693:
		return "iso15693"
	case TechFeliCa:
		return "felica"
	default:
		return "unknown"
	}
}

// ParseTechnology accepts the names produced by String, case-insensitively,
// plus the NFC Forum type names ("type2" ... "type5").
func ParseTechnology(s string) (Technology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mifare", "type2":
		return TechMiFare, nil
	case "iso7816", "type4":
		return TechISO7816, nil
	case "iso15693", "type5":
		return TechISO15693, nil
	case "felica", "type3":
		return TechFeliCa, nil
	case "unknown":
		return TechUnknown, nil
	default:
		return TechUnknown, fmt.Errorf("unknown tag technology %q", s)
	}
}

// ParseTechnologies parses a comma separated list; empty input yields nil.
func ParseTechnologies(list string) ([]Technology, error) {
	var techs []Technology
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseTechnology(part)
		if err != nil {
			return nil, err
		}
		techs = append(techs, t)
	}
	return techs, nil
}

func (t Technology) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Technology) UnmarshalText(b []byte) error {
	v, err := ParseTechnology(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
