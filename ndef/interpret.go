package ndef

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Well-known record type names.
const (
	RTDText        = "T"
	RTDURI         = "U"
	RTDSmartPoster = "Sp"
)

const (
	textUTF16Flag   = 0x80
	textLangLenMask = 0x3F
	maxLanguageLen  = textLangLenMask
)

// ValueKind classifies an interpreted record.
type ValueKind int

const (
	KindText ValueKind = iota + 1
	KindURI
	KindMIME
)

func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindURI:
		return "uri"
	case KindMIME:
		return "mime"
	default:
		return "unknown"
	}
}

// DisplayValue is the human-presentable form of a record.
type DisplayValue struct {
	Kind     ValueKind
	Text     string
	Language string // IANA language code of a text record
	Encoding string // "UTF-8" or "UTF-16" for text records
	URI      string
	MIMEType string
	Data     []byte // raw payload of a MIME record
}

func (v DisplayValue) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindURI:
		return v.URI
	case KindMIME:
		if strings.HasPrefix(v.MIMEType, "text/") && utf8.Valid(v.Data) {
			return string(v.Data)
		}
		return fmt.Sprintf("%s (%d bytes)", v.MIMEType, len(v.Data))
	default:
		return ""
	}
}

// Interpret converts a record into a DisplayValue. It supports well-known
// Text and URI records, MIME records and absolute URI records; other records
// yield ErrUnsupportedRecordType.
func Interpret(r Record) (DisplayValue, error) {
	switch r.TNF {
	case TNFWellKnown:
		switch string(r.Type) {
		case RTDText:
			return decodeTextPayload(r.Payload)
		case RTDURI:
			uri, err := decodeURIPayload(r.Payload)
			if err != nil {
				return DisplayValue{}, err
			}
			return DisplayValue{Kind: KindURI, URI: uri}, nil
		}
	case TNFMIME:
		return DisplayValue{
			Kind:     KindMIME,
			MIMEType: string(r.Type),
			Data:     append([]byte(nil), r.Payload...),
		}, nil
	case TNFAbsoluteURI:
		return DisplayValue{Kind: KindURI, URI: string(r.Type)}, nil
	}
	return DisplayValue{}, newError(CodeUnsupportedRecordType, "Interpret", -1, "no interpretation for %s record %q", r.TNF, r.Type)
}

// InterpretMessage interprets every record of m. It returns the values of
// the records that could be interpreted, in order, and the first error met.
func InterpretMessage(m *Message) ([]DisplayValue, error) {
	if m == nil {
		return nil, ErrEmptyMessage
	}
	var (
		values   []DisplayValue
		firstErr error
	)
	for i, r := range m.Records {
		v, err := Interpret(r)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("record %d: %w", i, err)
			}
			continue
		}
		values = append(values, v)
	}
	return values, firstErr
}

func decodeTextPayload(payload []byte) (DisplayValue, error) {
	const op = "Interpret"
	if len(payload) < 1 {
		return DisplayValue{}, newError(CodeMalformedRecord, op, -1, "text record payload is empty")
	}
	status := payload[0]
	langLen := int(status & textLangLenMask)
	if 1+langLen > len(payload) {
		return DisplayValue{}, newError(CodeMalformedRecord, op, 0, "language length %d exceeds payload of %d bytes", langLen, len(payload))
	}

	v := DisplayValue{
		Kind:     KindText,
		Language: string(payload[1 : 1+langLen]),
		Encoding: "UTF-8",
	}
	body := payload[1+langLen:]

	if status&textUTF16Flag != 0 {
		v.Encoding = "UTF-16"
		if len(body)%2 != 0 {
			return DisplayValue{}, newError(CodeMalformedRecord, op, 1+langLen, "UTF-16 text has odd length %d", len(body))
		}
		if off := loneSurrogate(body); off >= 0 {
			return DisplayValue{}, newError(CodeMalformedRecord, op, 1+langLen+off, "unpaired UTF-16 surrogate")
		}
		// Big-endian unless a byte order mark says otherwise.
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(body)
		if err != nil {
			return DisplayValue{}, wrapError(CodeMalformedRecord, op, 1+langLen, "invalid UTF-16 text", err)
		}
		v.Text = string(decoded)
		return v, nil
	}

	if !utf8.Valid(body) {
		return DisplayValue{}, newError(CodeMalformedRecord, op, 1+langLen, "invalid UTF-8 text")
	}
	v.Text = string(body)
	return v, nil
}

// loneSurrogate returns the offset in body of the first UTF-16 surrogate
// without its partner, or -1.
func loneSurrogate(body []byte) int {
	var order binary.ByteOrder = binary.BigEndian
	start := 0
	if len(body) >= 2 {
		switch {
		case body[0] == 0xFF && body[1] == 0xFE:
			order, start = binary.LittleEndian, 2
		case body[0] == 0xFE && body[1] == 0xFF:
			start = 2
		}
	}
	for i := start; i+1 < len(body); i += 2 {
		u := order.Uint16(body[i:])
		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			if i+3 >= len(body) {
				return i
			}
			if next := order.Uint16(body[i+2:]); next < 0xDC00 || next > 0xDFFF {
				return i
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return i
		}
	}
	return -1
}

// NewTextRecord builds a well-known UTF-8 Text record.
func NewTextRecord(text, language string) (Record, error) {
	if len(language) > maxLanguageLen {
		return Record{}, newError(CodeMalformedRecord, "NewTextRecord", -1, "language code %q longer than %d bytes", language, maxLanguageLen)
	}
	payload := make([]byte, 0, 1+len(language)+len(text))
	payload = append(payload, byte(len(language)))
	payload = append(payload, language...)
	payload = append(payload, text...)
	return Record{
		TNF:     TNFWellKnown,
		Type:    []byte(RTDText),
		Payload: payload,
	}, nil
}

// NewMIMERecord builds a media-type record.
func NewMIMERecord(mimeType string, data []byte) Record {
	return Record{
		TNF:     TNFMIME,
		Type:    []byte(mimeType),
		Payload: data,
	}
}

// NewExternalRecord builds an NFC Forum external type record, e.g.
// "example.com:mytype".
func NewExternalRecord(externalType string, data []byte) Record {
	return Record{
		TNF:     TNFExternal,
		Type:    []byte(externalType),
		Payload: data,
	}
}
