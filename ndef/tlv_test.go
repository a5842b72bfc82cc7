package ndef

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTLV(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		got := EncodeTLV(TLVNDEF, []byte{0x01, 0x02, 0x03, 0x04})
		assert.Equal(t, []byte{0x03, 0x04, 0x01, 0x02, 0x03, 0x04, 0xFE}, got)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, []byte{0x03, 0x00, 0xFE}, EncodeTLV(TLVNDEF, nil))
	})

	t.Run("long", func(t *testing.T) {
		value := make([]byte, 300)
		for i := range value {
			value[i] = byte(i)
		}
		got := EncodeTLV(TLVNDEF, value)

		require.Len(t, got, 1+3+300+1)
		assert.Equal(t, []byte{0x03, 0xFF, 0x01, 0x2C}, got[:4])
		assert.True(t, bytes.Equal(value, got[4:304]))
		assert.Equal(t, TLVTerminator, got[len(got)-1])
	})

	t.Run("255 uses long form", func(t *testing.T) {
		got := EncodeTLV(TLVNDEF, make([]byte, 255))
		assert.Equal(t, []byte{0x03, 0xFF, 0x00, 0xFF}, got[:4])
	})
}

func TestFindTLV(t *testing.T) {
	ndefValue := []byte{0xD1, 0x01, 0x01, 'U', 0x00}

	tests := []struct {
		name string
		area []byte
	}{
		{"plain", EncodeTLV(TLVNDEF, ndefValue)},
		{"leading nulls", append([]byte{0x00, 0x00}, EncodeTLV(TLVNDEF, ndefValue)...)},
		{"after lock and memory control", append([]byte{0x01, 0x03, 0xA0, 0x10, 0x44, 0x02, 0x03, 0x00, 0x00, 0x00}, EncodeTLV(TLVNDEF, ndefValue)...)},
		{"long form", append([]byte{TLVNDEF, 0xFF, 0x00, byte(len(ndefValue))}, ndefValue...)},
		{"padding after value", append(EncodeTLV(TLVNDEF, ndefValue), 0x00, 0x00, 0x00)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindTLV(tt.area, TLVNDEF)
			require.NoError(t, err)
			assert.Equal(t, ndefValue, got)
		})
	}
}

func TestFindTLVNotFound(t *testing.T) {
	tests := []struct {
		name string
		area []byte
	}{
		{"terminator first", []byte{0xFE, 0x03, 0x01, 0x00}},
		{"terminator after other tlvs", []byte{0x01, 0x01, 0x00, 0x00, 0xFE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindTLV(tt.area, TLVNDEF)
			assert.ErrorIs(t, err, ErrTLVNotFound)
		})
	}
}

func TestFindTLVTruncated(t *testing.T) {
	tests := []struct {
		name string
		area []byte
	}{
		{"length missing", []byte{0x03}},
		{"long length cut", []byte{0x03, 0xFF, 0x01}},
		{"value cut", []byte{0x03, 0x05, 0xD1, 0x01}},
		{"skipped tlv cut", []byte{0x01, 0x08, 0x00}},
		{"empty", nil},
		{"no terminator", []byte{0x01, 0x01, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindTLV(tt.area, TLVNDEF)
			assert.ErrorIs(t, err, ErrOutOfBounds)
		})
	}
}
