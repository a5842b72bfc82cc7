package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNoCardError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "typed noCardError",
			err:      &noCardError{ReaderName: "ACR122U"},
			expected: true,
		},
		{
			name:     "wrapped noCardError",
			err:      fmt.Errorf("failed: %w", &noCardError{ReaderName: "ACR122U"}),
			expected: true,
		},
		{
			name:     "string match - No smart card (uppercase)",
			err:      errors.New("scard: No smart card inserted"),
			expected: true,
		},
		{
			name:     "string match - card is not present",
			err:      errors.New("Card is not present"),
			expected: true,
		},
		{
			name:     "unrelated error",
			err:      errors.New("connection lost"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNoCardError(tt.err); got != tt.expected {
				t.Errorf("IsNoCardError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCardRemovedError(t *testing.T) {
	cause := errors.New("scard: card removed")
	err := fmt.Errorf("transceive: %w", NewCardRemovedError(cause))

	if !IsCardRemovedError(err) {
		t.Error("Expected IsCardRemovedError to match a wrapped removal")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected the cause to stay reachable")
	}
	if IsCardRemovedError(cause) {
		t.Error("A bare driver error is not a removal until the radio says so")
	}
	if got := NewCardRemovedError(nil).Error(); got != "card was removed" {
		t.Errorf("Unexpected message %q", got)
	}
}

func TestIsTimeoutError(t *testing.T) {
	if !IsTimeoutError(errors.New("libnfc: Operation timed out")) {
		t.Error("Expected timeout match")
	}
	if !IsTimeoutError(errors.New("scard: Timeout")) {
		t.Error("Expected timeout match")
	}
	if IsTimeoutError(errors.New("broken pipe")) || IsTimeoutError(nil) {
		t.Error("Unexpected timeout match")
	}
}

func TestClassifyATR(t *testing.T) {
	tests := []struct {
		name    string
		atr     []byte
		product string
		tech    Technology
	}{
		{
			name:    "classic 1k",
			atr:     []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x6A},
			product: ProductClassic1K,
			tech:    TechMiFare,
		},
		{
			name:    "ultralight",
			atr:     []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x68},
			product: ProductUltralight,
			tech:    TechMiFare,
		},
		{
			name: "unnamed type 2",
			atr:  []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x44, 0x00, 0x00, 0x00, 0x00, 0x2B},
			tech: TechMiFare,
		},
		{
			name:    "felica",
			atr:     []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x11, 0x00, 0x3B, 0x00, 0x00, 0x00, 0x00, 0x42},
			product: ProductFeliCa,
			tech:    TechFeliCa,
		},
		{
			name:    "iso15693",
			atr:     []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x0B, 0x00, 0x14, 0x00, 0x00, 0x00, 0x00, 0x77},
			product: ProductISO15693,
			tech:    TechISO15693,
		},
		{
			name:    "iso14443-4 from ATS",
			atr:     []byte{0x3B, 0x81, 0x80, 0x01, 0x80, 0x80},
			product: ProductISO14443_4,
			tech:    TechISO7816,
		},
		{
			name: "too short",
			atr:  []byte{0x3B},
		},
		{
			name: "contact card",
			atr:  []byte{0x3B, 0x02, 0x14, 0x50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, tech := ClassifyATR(tt.atr)
			if product != tt.product || tech != tt.tech {
				t.Errorf("ClassifyATR() = (%q, %s), want (%q, %s)", product, tech, tt.product, tt.tech)
			}
		})
	}
}

func TestClassifySAK(t *testing.T) {
	tests := []struct {
		sak     byte
		product string
		tech    Technology
	}{
		{0x00, ProductUltralight, TechMiFare},
		{0x08, ProductClassic1K, TechMiFare},
		{0x18, ProductClassic4K, TechMiFare},
		{0x20, ProductISO14443_4, TechISO7816},
		{0x28, ProductISO14443_4, TechISO7816},
		{0x40, "", TechUnknown},
	}
	for _, tt := range tests {
		product, tech := ClassifySAK(tt.sak)
		if product != tt.product || tech != tt.tech {
			t.Errorf("ClassifySAK(%02X) = (%q, %s), want (%q, %s)", tt.sak, product, tech, tt.product, tt.tech)
		}
	}
}

func TestParseGetVersionResponse(t *testing.T) {
	tests := []struct {
		resp []byte
		want string
	}{
		{[]byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x0F, 0x03}, ProductNtag213},
		{[]byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x11, 0x03}, ProductNtag215},
		{[]byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x13, 0x03}, ProductNtag216},
		{[]byte{0x00, 0x04, 0x03, 0x01, 0x01, 0x00, 0x0B, 0x03}, ProductUltralight},
		{[]byte{0x00, 0x05, 0x04, 0x02, 0x01, 0x00, 0x0F, 0x03}, ""},
		{[]byte{0x00, 0x04}, ""},
	}
	for _, tt := range tests {
		if got := parseGetVersionResponse(tt.resp); got != tt.want {
			t.Errorf("parseGetVersionResponse(%X) = %q, want %q", tt.resp, got, tt.want)
		}
	}
}

func TestProductTechnology(t *testing.T) {
	if ProductTechnology(ProductNtag215) != TechMiFare {
		t.Error("NTAG215 should be read as a Type 2 tag")
	}
	if ProductTechnology(ProductDESFire) != TechISO7816 {
		t.Error("DESFire should be read as a Type 4 tag")
	}
	if ProductTechnology("Topaz") != TechUnknown {
		t.Error("Unknown products have no technology")
	}
	if !IsClassic(ProductClassic4K) || IsClassic(ProductUltralight) {
		t.Error("IsClassic mismatch")
	}
}
