package ndef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textRecord(payload ...byte) Record {
	return Record{TNF: TNFWellKnown, Type: []byte(RTDText), Payload: payload}
}

func TestInterpretText(t *testing.T) {
	tests := []struct {
		name     string
		rec      Record
		text     string
		lang     string
		encoding string
	}{
		{
			name:     "utf-8",
			rec:      textRecord(append([]byte{0x02, 'e', 'n'}, "Hello"...)...),
			text:     "Hello",
			lang:     "en",
			encoding: "UTF-8",
		},
		{
			name:     "utf-8 multibyte",
			rec:      textRecord(append([]byte{0x02, 'f', 'r'}, "café"...)...),
			text:     "café",
			lang:     "fr",
			encoding: "UTF-8",
		},
		{
			name:     "no language",
			rec:      textRecord(append([]byte{0x00}, "x"...)...),
			text:     "x",
			encoding: "UTF-8",
		},
		{
			name:     "utf-16 big-endian default",
			rec:      textRecord(0x82, 'e', 'n', 0x00, 'H', 0x00, 'i'),
			text:     "Hi",
			lang:     "en",
			encoding: "UTF-16",
		},
		{
			name:     "utf-16 little-endian bom",
			rec:      textRecord(0x82, 'e', 'n', 0xFF, 0xFE, 'H', 0x00, 'i', 0x00),
			text:     "Hi",
			lang:     "en",
			encoding: "UTF-16",
		},
		{
			name:     "utf-16 big-endian bom",
			rec:      textRecord(0x80, 0xFE, 0xFF, 0x00, 'O', 0x00, 'K'),
			text:     "OK",
			encoding: "UTF-16",
		},
		{
			name:     "utf-16 surrogate pair",
			rec:      textRecord(0x80, 0xD8, 0x3D, 0xDE, 0x00),
			text:     "\U0001F600",
			encoding: "UTF-16",
		},
		{
			name:     "empty text",
			rec:      textRecord(0x02, 'e', 'n'),
			text:     "",
			lang:     "en",
			encoding: "UTF-8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Interpret(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, KindText, v.Kind)
			assert.Equal(t, tt.text, v.Text)
			assert.Equal(t, tt.lang, v.Language)
			assert.Equal(t, tt.encoding, v.Encoding)
			assert.Equal(t, tt.text, v.String())
		})
	}
}

func TestInterpretTextErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"empty payload", textRecord()},
		{"language past end", textRecord(0x05, 'e', 'n')},
		{"odd utf-16", textRecord(0x80, 0x00, 'H', 0x00)},
		{"invalid utf-8", textRecord(0x00, 0xFF, 0xFE, 0xFD)},
		{"lone high surrogate", textRecord(0x82, 'e', 'n', 0xD8, 0x00)},
		{"lone low surrogate le", textRecord(0x80, 0xFF, 0xFE, 0x00, 0xDC, 'A', 0x00)},
		{"high surrogate without low", textRecord(0x80, 0xD8, 0x3D, 0x00, 'A')},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Interpret(tt.rec)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestInterpretURI(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"no prefix", []byte("\x00custom:thing"), "custom:thing"},
		{"http www", []byte("\x01example.com"), "http://www.example.com"},
		{"https", []byte("\x04example.com/path"), "https://example.com/path"},
		{"tel", []byte("\x05+15551234"), "tel:+15551234"},
		{"mailto", []byte("\x06a@b.c"), "mailto:a@b.c"},
		{"last code", []byte("\x23ext:x"), "urn:nfc:ext:x"},
		{"prefix only", []byte{0x03}, "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Interpret(Record{TNF: TNFWellKnown, Type: []byte(RTDURI), Payload: tt.payload})
			require.NoError(t, err)
			assert.Equal(t, KindURI, v.Kind)
			assert.Equal(t, tt.want, v.URI)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestInterpretURIErrors(t *testing.T) {
	for _, payload := range [][]byte{nil, {0x24, 'x'}, {0xFF}} {
		_, err := Interpret(Record{TNF: TNFWellKnown, Type: []byte(RTDURI), Payload: payload})
		assert.ErrorIs(t, err, ErrMalformedRecord, "payload %x", payload)
	}
}

func TestInterpretMIMEAndAbsoluteURI(t *testing.T) {
	v, err := Interpret(NewMIMERecord("text/plain", []byte("note")))
	require.NoError(t, err)
	assert.Equal(t, KindMIME, v.Kind)
	assert.Equal(t, "text/plain", v.MIMEType)
	assert.Equal(t, []byte("note"), v.Data)
	assert.Equal(t, "note", v.String())

	v, err = Interpret(NewMIMERecord("image/png", []byte{0x89, 'P', 'N', 'G'}))
	require.NoError(t, err)
	assert.Equal(t, "image/png (4 bytes)", v.String())

	v, err = Interpret(Record{TNF: TNFAbsoluteURI, Type: []byte("https://example.com/a")})
	require.NoError(t, err)
	assert.Equal(t, KindURI, v.Kind)
	assert.Equal(t, "https://example.com/a", v.URI)
}

func TestInterpretUnsupported(t *testing.T) {
	tests := []Record{
		NewExternalRecord("example.com:t", []byte{1}),
		{TNF: TNFWellKnown, Type: []byte(RTDSmartPoster), Payload: []byte{0}},
		{TNF: TNFEmpty},
		{TNF: TNFUnknown, Payload: []byte{1}},
	}

	for _, rec := range tests {
		v, err := Interpret(rec)
		assert.ErrorIs(t, err, ErrUnsupportedRecordType, "record %v", rec)
		assert.Zero(t, v)
	}
}

func TestNewURIRecordAbbreviation(t *testing.T) {
	tests := []struct {
		uri  string
		code byte
		rest string
	}{
		{"https://www.example.com", 0x02, "example.com"},
		{"http://example.com", 0x03, "example.com"},
		{"urn:epc:id:sgtin:1", 0x1E, "sgtin:1"},
		{"urn:epc:other", 0x22, "other"},
		{"urn:isbn:1", 0x13, "isbn:1"},
		{"custom://x", 0x00, "custom://x"},
		{"", 0x00, ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			rec := NewURIRecord(tt.uri)
			require.NotEmpty(t, rec.Payload)
			assert.Equal(t, tt.code, rec.Payload[0])
			assert.Equal(t, tt.rest, string(rec.Payload[1:]))

			v, err := Interpret(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.uri, v.URI)
		})
	}
}

func TestNewTextRecord(t *testing.T) {
	rec, err := NewTextRecord("hello", "en-US")
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0x05}, "en-UShello"...), rec.Payload)

	_, err = NewTextRecord("x", string(make([]byte, 64)))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestInterpretMessage(t *testing.T) {
	text, err := NewTextRecord("hi", "en")
	require.NoError(t, err)

	m := NewMessage(text, NewExternalRecord("example.com:t", nil), NewURIRecord("https://a.b"))
	values, err := InterpretMessage(m)

	assert.ErrorIs(t, err, ErrUnsupportedRecordType)
	require.Len(t, values, 2)
	assert.Equal(t, "hi", values[0].Text)
	assert.Equal(t, "https://a.b", values[1].URI)
}
