package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of session error for programmatic handling.
type ErrorCode int

const (
	// Session errors (100-199)
	ErrCodeNoTagFound ErrorCode = iota + 100
	ErrCodeConnectFailed
	ErrCodeUnsupportedTag
	ErrCodeReadFailed
	ErrCodeCancelled
	ErrCodeSessionInvalidated
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNoTagFound:
		return "no tag found"
	case ErrCodeConnectFailed:
		return "connect failed"
	case ErrCodeUnsupportedTag:
		return "unsupported tag"
	case ErrCodeReadFailed:
		return "read failed"
	case ErrCodeCancelled:
		return "cancelled"
	case ErrCodeSessionInvalidated:
		return "session invalidated"
	default:
		return fmt.Sprintf("nfc error %d", int(c))
	}
}

// NFCError provides structured error information for programmatic handling.
// A session that fails reports exactly one NFCError.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Poll", "Connect")
	TagUID  string // Optional: UID of tag involved
	Reason  string // Optional: invalidation reason reported by the radio
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(e.Code.String())
	}
	if e.TagUID != "" {
		sb.WriteString(" (tag ")
		sb.WriteString(e.TagUID)
		sb.WriteString(")")
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinel values for errors.Is.
var (
	ErrNoTagFound         = &NFCError{Code: ErrCodeNoTagFound, Message: "no tag found"}
	ErrConnectFailed      = &NFCError{Code: ErrCodeConnectFailed, Message: "connect failed"}
	ErrUnsupportedTag     = &NFCError{Code: ErrCodeUnsupportedTag, Message: "unsupported tag"}
	ErrReadFailed         = &NFCError{Code: ErrCodeReadFailed, Message: "read failed"}
	ErrCancelled          = &NFCError{Code: ErrCodeCancelled, Message: "session cancelled"}
	ErrSessionInvalidated = &NFCError{Code: ErrCodeSessionInvalidated, Message: "session invalidated"}
)

// NewNoTagFoundError creates an error for a poll that found nothing.
func NewNoTagFoundError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeNoTagFound,
		Op:      op,
		Message: "no tag found",
		Cause:   cause,
	}
}

// NewConnectError creates an error for connection failures.
func NewConnectError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeConnectFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "connect failed",
		Cause:   cause,
	}
}

// NewUnsupportedTagError creates an error for tags no read strategy handles.
func NewUnsupportedTagError(op, tagUID string, tech Technology) *NFCError {
	return &NFCError{
		Code:    ErrCodeUnsupportedTag,
		Op:      op,
		TagUID:  tagUID,
		Message: fmt.Sprintf("unsupported tag technology %s", tech),
	}
}

// NewReadError creates an error for read failures.
func NewReadError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewCancelledError creates an error for sessions cancelled by the caller.
func NewCancelledError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeCancelled,
		Op:      op,
		Message: "session cancelled",
	}
}

// NewInvalidatedError creates an error for sessions ended by the radio.
func NewInvalidatedError(op, tagUID, reason string) *NFCError {
	return &NFCError{
		Code:    ErrCodeSessionInvalidated,
		Op:      op,
		TagUID:  tagUID,
		Reason:  reason,
		Message: "session invalidated",
	}
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// WrapError wraps an existing error with session context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
