package ndef

import "strings"

// uriPrefixes is the NFC Forum URI RTD identifier code table.
var uriPrefixes = [...]string{
	0x00: "",
	0x01: "http://www.",
	0x02: "https://www.",
	0x03: "http://",
	0x04: "https://",
	0x05: "tel:",
	0x06: "mailto:",
	0x07: "ftp://anonymous:anonymous@",
	0x08: "ftp://ftp.",
	0x09: "ftps://",
	0x0A: "sftp://",
	0x0B: "smb://",
	0x0C: "nfs://",
	0x0D: "ftp://",
	0x0E: "dav://",
	0x0F: "news:",
	0x10: "telnet://",
	0x11: "imap:",
	0x12: "rtsp://",
	0x13: "urn:",
	0x14: "pop:",
	0x15: "sip:",
	0x16: "sips:",
	0x17: "tftp:",
	0x18: "btspp://",
	0x19: "btl2cap://",
	0x1A: "btgoep://",
	0x1B: "tcpobex://",
	0x1C: "irdaobex://",
	0x1D: "file://",
	0x1E: "urn:epc:id:",
	0x1F: "urn:epc:tag:",
	0x20: "urn:epc:pat:",
	0x21: "urn:epc:raw:",
	0x22: "urn:epc:",
	0x23: "urn:nfc:",
}

// URIPrefix returns the expansion of an identifier code.
func URIPrefix(code byte) (string, bool) {
	if int(code) >= len(uriPrefixes) {
		return "", false
	}
	return uriPrefixes[code], true
}

// abbreviateURI picks the identifier code with the longest prefix of uri.
func abbreviateURI(uri string) (byte, string) {
	var best byte
	for code, prefix := range uriPrefixes {
		if len(prefix) > len(uriPrefixes[best]) && strings.HasPrefix(uri, prefix) {
			best = byte(code)
		}
	}
	return best, uri[len(uriPrefixes[best]):]
}

func decodeURIPayload(payload []byte) (string, error) {
	const op = "Interpret"
	if len(payload) < 1 {
		return "", newError(CodeMalformedRecord, op, -1, "URI record payload is empty")
	}
	prefix, ok := URIPrefix(payload[0])
	if !ok {
		return "", newError(CodeMalformedRecord, op, 0, "URI identifier code 0x%02X is reserved", payload[0])
	}
	return prefix + string(payload[1:]), nil
}

// NewURIRecord builds a well-known URI record, abbreviating the longest
// matching prefix.
func NewURIRecord(uri string) Record {
	code, rest := abbreviateURI(uri)
	payload := make([]byte, 0, 1+len(rest))
	payload = append(payload, code)
	payload = append(payload, rest...)
	return Record{
		TNF:     TNFWellKnown,
		Type:    []byte(RTDURI),
		Payload: payload,
	}
}
