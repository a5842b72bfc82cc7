package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/atotto/clipboard"

	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/protocol"
)

// Printer writes session results to the terminal and optionally copies the
// scanned value to the clipboard.
type Printer struct {
	out    io.Writer
	logger *log.Logger

	// copy is nil when clipboard copying is off
	copy func(string) error
}

// NewPrinter creates a printer writing results to out.
func NewPrinter(out io.Writer, copyToClipboard bool) *Printer {
	p := &Printer{
		out:    out,
		logger: log.New(os.Stderr, "[printer] ", log.LstdFlags),
	}
	if copyToClipboard {
		p.copy = clipboard.WriteAll
	}
	return p
}

func (p *Printer) SessionStarted(payload protocol.SessionStartedPayload) {
	p.logger.Printf("Waiting for a tag on %s (session %s)", payload.Radio, payload.SessionID)
}

func (p *Printer) SessionState(string, nfc.State) {}

// SessionResult prints the display line of r, followed by the other
// records of a multi-record message.
func (p *Printer) SessionResult(r nfc.Result) {
	fmt.Fprintln(p.out, r.DisplayText())
	if r.State != nfc.StateCompleted {
		return
	}
	if r.Handle != nil {
		p.logger.Printf("Tag %s", r.Handle)
	}
	// Values holds the first record too when it could be interpreted.
	rest := r.Values
	if r.Value != nil && len(rest) > 0 {
		rest = rest[1:]
	}
	for _, v := range rest {
		fmt.Fprintf(p.out, "  %s: %s\n", v.Kind, v)
	}
	if r.InterpretErr != nil {
		p.logger.Printf("Some records could not be interpreted: %v", r.InterpretErr)
	}

	if p.copy == nil || r.Value == nil {
		return
	}
	if err := p.copy(r.Value.String()); err != nil {
		p.logger.Printf("Failed to copy to clipboard: %v", err)
		return
	}
	p.logger.Printf("Copied value to clipboard")
}
