package nfc

import (
	"errors"
	"strings"
)

// Radio-layer errors. Radios return them from Poll, Connect and Transceive;
// the session turns them into NFCErrors.

// noCardError is returned when a reader is asked for a card and none is in
// the field. This is a normal condition while polling.
type noCardError struct {
	ReaderName string
	Cause      error
}

func (e *noCardError) Error() string {
	return "no card present in reader " + e.ReaderName
}

func (e *noCardError) Unwrap() error {
	return e.Cause
}

// IsNoCardError checks if an error indicates no card is present in the reader.
func IsNoCardError(err error) bool {
	if err == nil {
		return false
	}
	var noCard *noCardError
	if errors.As(err, &noCard) {
		return true
	}
	// PC/SC stacks word this differently.
	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "no card present") ||
		strings.Contains(errLower, "no smart card") ||
		strings.Contains(errLower, "card is not present")
}

// cardRemovedError indicates the card left the field during an operation.
type cardRemovedError struct {
	Cause error
}

func (e *cardRemovedError) Error() string {
	if e.Cause != nil {
		return "card was removed: " + e.Cause.Error()
	}
	return "card was removed"
}

func (e *cardRemovedError) Unwrap() error {
	return e.Cause
}

// NewCardRemovedError creates a card removed error.
func NewCardRemovedError(cause error) error {
	return &cardRemovedError{Cause: cause}
}

// IsCardRemovedError checks if an error indicates the card was removed during operation.
func IsCardRemovedError(err error) bool {
	if err == nil {
		return false
	}
	var cardRemoved *cardRemovedError
	return errors.As(err, &cardRemoved)
}

// IsTimeoutError reports whether a driver error is a timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "operation timed out") ||
		strings.Contains(errStr, "timeout")
}
