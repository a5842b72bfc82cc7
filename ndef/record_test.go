package ndef

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	longPayload := bytes.Repeat([]byte{0xAB}, 300)

	tests := []struct {
		name string
		rec  Record
	}{
		{"text", Record{TNF: TNFWellKnown, Type: []byte("T"), Payload: []byte("\x02enhello"), MessageBegin: true, MessageEnd: true}},
		{"uri with id", Record{TNF: TNFWellKnown, Type: []byte("U"), ID: []byte("id1"), Payload: []byte("\x04example.com"), MessageBegin: true}},
		{"empty id present", Record{TNF: TNFMIME, Type: []byte("text/plain"), ID: []byte{}, Payload: []byte("x"), MessageEnd: true}},
		{"long payload", Record{TNF: TNFMIME, Type: []byte("application/octet-stream"), Payload: longPayload}},
		{"boundary short payload", Record{TNF: TNFExternal, Type: []byte("example.com:t"), Payload: bytes.Repeat([]byte{1}, 255)}},
		{"boundary long payload", Record{TNF: TNFExternal, Type: []byte("example.com:t"), Payload: bytes.Repeat([]byte{2}, 256)}},
		{"empty record", Record{TNF: TNFEmpty, MessageBegin: true, MessageEnd: true}},
		{"unknown", Record{TNF: TNFUnknown, Payload: []byte{1, 2, 3}}},
		{"chunk head", Record{TNF: TNFMIME, Type: []byte("a/b"), Payload: []byte("abc"), MessageBegin: true, Chunked: true}},
		{"chunk tail", Record{TNF: TNFUnchanged, Payload: []byte("def"), MessageEnd: true}},
		{"absolute uri", Record{TNF: TNFAbsoluteURI, Type: []byte("https://example.com/x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeRecord(tt.rec)
			require.NoError(t, err)

			c := NewCursor(encoded)
			decoded, err := DecodeRecord(c)
			require.NoError(t, err)
			assert.Zero(t, c.Remaining(), "decoder should consume the whole record")
			assert.True(t, tt.rec.Equal(decoded), "got %v, want %v", decoded, tt.rec)
		})
	}
}

func TestEncodeRecordLayout(t *testing.T) {
	t.Run("short record", func(t *testing.T) {
		rec := NewURIRecord("https://example.com")
		rec.MessageBegin, rec.MessageEnd = true, true

		got, err := EncodeRecord(rec)
		require.NoError(t, err)

		want := append([]byte{0xD1, 0x01, 0x0C, 'U', 0x04}, "example.com"...)
		assert.Equal(t, want, got)
	})

	t.Run("long record", func(t *testing.T) {
		rec := Record{TNF: TNFMIME, Type: []byte("a/b"), Payload: make([]byte, 300), MessageBegin: true, MessageEnd: true}
		got, err := EncodeRecord(rec)
		require.NoError(t, err)

		assert.Equal(t, []byte{0xC2, 0x03, 0x00, 0x00, 0x01, 0x2C, 'a', '/', 'b'}, got[:9])
		assert.Len(t, got, 9+300)
	})

	t.Run("id length", func(t *testing.T) {
		rec := Record{TNF: TNFWellKnown, Type: []byte("T"), ID: []byte("ab"), Payload: []byte{0x00}}
		got, err := EncodeRecord(rec)
		require.NoError(t, err)

		assert.Equal(t, []byte{0x19, 0x01, 0x01, 0x02, 'T', 'a', 'b', 0x00}, got)
	})
}

func TestDecodeRecordErrors(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		outOfBounds bool
	}{
		{"reserved tnf", []byte{0xD7, 0x00, 0x00}, false},
		{"empty with type", []byte{0xD0, 0x01, 0x00, 'a'}, false},
		{"empty with payload", []byte{0xD0, 0x00, 0x01, 'a'}, false},
		{"empty with id", []byte{0xD8, 0x00, 0x00, 0x00}, false},
		{"unknown with type", []byte{0xD5, 0x01, 0x00, 'a'}, false},
		{"unchanged with type", []byte{0x16, 0x01, 0x00, 'a'}, false},
		{"well-known without type", []byte{0xD1, 0x00, 0x00}, false},
		{"mime without type", []byte{0xD2, 0x00, 0x01, 0x00}, false},
		{"payload past end", []byte{0xD1, 0x01, 0x05, 'T', 0x01}, true},
		{"type past end", []byte{0xD1, 0x04, 0x00, 'T'}, true},
		{"header only", []byte{0xD1}, true},
		{"long length cut", []byte{0xC1, 0x01, 0x00, 0x00}, true},
		{"id length missing", []byte{0xD9, 0x01, 0x00}, true},
		{"huge long length", []byte{0xC1, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 'T'}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(NewCursor(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedRecord)
			assert.Equal(t, CodeMalformedRecord, Code(err))
			if tt.outOfBounds {
				assert.ErrorIs(t, err, ErrOutOfBounds)
			}
		})
	}
}

func TestEncodeRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"type too long", Record{TNF: TNFMIME, Type: bytes.Repeat([]byte{'a'}, 256)}},
		{"id too long", Record{TNF: TNFMIME, Type: []byte("a/b"), ID: bytes.Repeat([]byte{'i'}, 256)}},
		{"empty with payload", Record{TNF: TNFEmpty, Payload: []byte{1}}},
		{"well-known without type", Record{TNF: TNFWellKnown, Payload: []byte{1}}},
		{"unknown with type", Record{TNF: TNFUnknown, Type: []byte("x")}},
		{"reserved", Record{TNF: TNFReserved}},
		{"tnf out of range", Record{TNF: TNF(9), Type: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeRecord(tt.rec)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestDecodeRecordDoesNotAliasInput(t *testing.T) {
	buf := []byte{0xD1, 0x01, 0x02, 'T', 0x00, 'x'}
	rec, err := DecodeRecord(NewCursor(buf))
	require.NoError(t, err)

	buf[5] = 'y'
	assert.Equal(t, []byte{0x00, 'x'}, rec.Payload)
}

func TestErrorMessage(t *testing.T) {
	_, err := DecodeRecord(NewCursor([]byte{0xD7, 0x00, 0x00}))
	require.Error(t, err)
	assert.Equal(t, "ndef: DecodeRecord: reserved TNF 0x07 (offset 0)", err.Error())

	var codecErr *Error
	require.True(t, errors.As(err, &codecErr))
	assert.Equal(t, 0, codecErr.Offset)
}
