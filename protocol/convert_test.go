package protocol

import (
	"bytes"
	"testing"
)

func TestParseUID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"04:ab:cd:ef", "04:AB:CD:EF", false},
		{"04ABCDEF", "04:AB:CD:EF", false},
		{"04 AB CD EF", "04:AB:CD:EF", false},
		{"04-ab-cd-ef-12-34-56", "04:AB:CD:EF:12:34:56", false},
		{"", "", true},
		{"04ABC", "", true},
		{"zz", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseUID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUIDBytes(t *testing.T) {
	got, err := UIDBytes("04:A1:B2")
	if err != nil {
		t.Fatalf("UIDBytes() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x04, 0xA1, 0xB2}) {
		t.Errorf("UIDBytes() = %X", got)
	}
}

func TestInferTechnology(t *testing.T) {
	tests := map[string]string{
		"android.nfc.tech.NfcA":       "mifare",
		"NTAG215":                     "mifare",
		"MIFARE Classic 1K":           "mifare",
		"android.nfc.tech.IsoDep":     "iso7816",
		"MIFARE DESFire":              "iso7816",
		"android.nfc.tech.NfcF":       "felica",
		"FeliCa":                      "felica",
		"android.nfc.tech.NfcV":       "iso15693",
		"ISO15693":                    "iso15693",
		"android.nfc.tech.NfcBarcode": "",
	}
	for in, want := range tests {
		if got := InferTechnology(in); got != want {
			t.Errorf("InferTechnology(%q) = %q, want %q", in, got, want)
		}
	}
}
