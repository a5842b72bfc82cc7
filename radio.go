package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dotside-studios/ndefscan/buildinfo"
	"github.com/dotside-studios/ndefscan/config"
	"github.com/dotside-studios/ndefscan/ndef"
	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/nfc/remotenfc"
)

// demoTagInterval is how long the mock radio waits before presenting its
// demo tag again.
const demoTagInterval = 3 * time.Second

// openedRadio is the radio picked by the configuration.
type openedRadio struct {
	radio nfc.Radio
	name  string

	// remote is set for the remote radio; it also serves /ws/device
	remote *remotenfc.Radio
}

// openRadio opens the backend named by cfg.Radio.
func openRadio(cfg *config.Config) (*openedRadio, error) {
	switch cfg.Radio {
	case config.RadioLibNFC:
		r, err := nfc.OpenLibnfcRadio(cfg.Device)
		if err != nil {
			return nil, err
		}
		return &openedRadio{radio: r, name: r.String()}, nil

	case config.RadioPCSC:
		r, err := nfc.OpenPCSCRadio(cfg.Device)
		if err != nil {
			return nil, err
		}
		return &openedRadio{radio: r, name: r.String()}, nil

	case config.RadioRemote:
		remotenfc.Version = buildinfo.Version
		r := remotenfc.NewRadio(cfg.RemoteDeviceTimeout)
		return &openedRadio{radio: r, name: r.String(), remote: r}, nil

	case config.RadioMock:
		r, err := newDemoRadio(demoTagInterval)
		if err != nil {
			return nil, err
		}
		return &openedRadio{radio: r, name: "mock"}, nil

	default:
		return nil, fmt.Errorf("unknown radio %q", cfg.Radio)
	}
}

// listDevices prints the readers each hardware backend can see.
func listDevices() {
	if devices, err := nfc.ListLibnfcDevices(); err != nil {
		log.Printf("libnfc: %v", err)
	} else {
		for _, d := range devices {
			log.Printf("libnfc: %s", d)
		}
	}
	if readers, err := nfc.ListPCSCReaders(); err != nil {
		log.Printf("pcsc: %v", err)
	} else {
		for _, r := range readers {
			log.Printf("pcsc: %s", r)
		}
	}
}

// newDemoRadio returns a mock radio that presents a fresh MIFARE tag
// holding a text and a URI record every interval.
func newDemoRadio(interval time.Duration) (*nfc.MockRadio, error) {
	text, err := ndef.NewTextRecord("Hello from ndefscan", "en")
	if err != nil {
		return nil, err
	}
	data, err := ndef.EncodeMessage(ndef.NewMessage(text, ndef.NewURIRecord("https://nfc-forum.org")))
	if err != nil {
		return nil, err
	}

	radio := nfc.NewMockRadio()
	radio.NDEF = data
	radio.PollFunc = func(ctx context.Context) (*nfc.TagHandle, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		return nfc.NewTagHandle([]byte{0x04, 0xD3, 0x5A, 0x12, 0x6B, 0x80, 0x00}, nfc.TechMiFare), nil
	}
	return radio, nil
}
