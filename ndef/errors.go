package ndef

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a class of codec failure for programmatic handling.
type ErrorCode int

const (
	// Codec errors (1-99)
	CodeOutOfBounds ErrorCode = iota + 1
	CodeMalformedRecord
	CodeTruncatedMessage
	CodeInvalidFraming
	CodeUnsupportedRecordType
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOutOfBounds:
		return "out of bounds"
	case CodeMalformedRecord:
		return "malformed record"
	case CodeTruncatedMessage:
		return "truncated message"
	case CodeInvalidFraming:
		return "invalid framing"
	case CodeUnsupportedRecordType:
		return "unsupported record type"
	default:
		return fmt.Sprintf("ndef error %d", int(c))
	}
}

// Error is returned by every decoding and encoding function in this package.
// Two errors match under errors.Is when their codes are equal, so callers can
// compare against the Err* values below.
type Error struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "DecodeRecord")
	Offset  int    // Byte offset into the input, -1 when not applicable
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("ndef: ")
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(e.Code.String())
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&sb, " (offset %d)", e.Offset)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinel values for errors.Is.
var (
	ErrOutOfBounds           = &Error{Code: CodeOutOfBounds, Offset: -1}
	ErrMalformedRecord       = &Error{Code: CodeMalformedRecord, Offset: -1}
	ErrTruncatedMessage      = &Error{Code: CodeTruncatedMessage, Offset: -1}
	ErrInvalidFraming        = &Error{Code: CodeInvalidFraming, Offset: -1}
	ErrUnsupportedRecordType = &Error{Code: CodeUnsupportedRecordType, Offset: -1}

	// ErrEmptyMessage is an InvalidFraming error: a message needs at least one record.
	ErrEmptyMessage = &Error{Code: CodeInvalidFraming, Offset: -1, Message: "message has no records"}
)

func newError(code ErrorCode, op string, offset int, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	}
}

func wrapError(code ErrorCode, op string, offset int, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Offset:  offset,
		Message: message,
		Cause:   cause,
	}
}

// Code extracts the ErrorCode from err, or 0 if err is not an *Error.
func Code(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
