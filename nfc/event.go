package nfc

import "fmt"

// EventType identifies an input of the session state machine.
type EventType int

const (
	EventTagDetected EventType = iota + 1
	EventPollTimeout
	EventConnectOK
	EventConnectError
	EventBytesReceived
	EventReadError
	EventInvalidated
	EventCancel
)

func (t EventType) String() string {
	switch t {
	case EventTagDetected:
		return "tagDetected"
	case EventPollTimeout:
		return "pollTimeout"
	case EventConnectOK:
		return "connectOk"
	case EventConnectError:
		return "connectError"
	case EventBytesReceived:
		return "bytesReceived"
	case EventReadError:
		return "readError"
	case EventInvalidated:
		return "invalidated"
	case EventCancel:
		return "cancel"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is queued on a Session and consumed by its transition function.
// Only the fields relevant to Type are set.
type Event struct {
	Type   EventType
	Handle *TagHandle // EventTagDetected
	Data   []byte     // EventBytesReceived
	Err    error      // EventPollTimeout, EventConnectError, EventReadError
	Reason string     // EventInvalidated
}

func (e Event) String() string {
	switch e.Type {
	case EventTagDetected:
		return fmt.Sprintf("%s(%s)", e.Type, e.Handle)
	case EventBytesReceived:
		return fmt.Sprintf("%s(%d bytes)", e.Type, len(e.Data))
	case EventInvalidated:
		return fmt.Sprintf("%s(%s)", e.Type, e.Reason)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s(%v)", e.Type, e.Err)
		}
		return e.Type.String()
	}
}

// TagDetected reports that the radio found h.
func TagDetected(h *TagHandle) Event { return Event{Type: EventTagDetected, Handle: h} }

// PollTimeout reports that polling ended without a tag. err may be nil.
func PollTimeout(err error) Event { return Event{Type: EventPollTimeout, Err: err} }

// ConnectOK reports a successful connection to the detected tag.
func ConnectOK() Event { return Event{Type: EventConnectOK} }

// ConnectError reports a failed connection.
func ConnectError(err error) Event { return Event{Type: EventConnectError, Err: err} }

// BytesReceived delivers the raw NDEF message read from the tag.
func BytesReceived(b []byte) Event { return Event{Type: EventBytesReceived, Data: b} }

// ReadError reports a failed read.
func ReadError(err error) Event { return Event{Type: EventReadError, Err: err} }

// Invalidated reports that the radio lost the session.
func Invalidated(reason string) Event { return Event{Type: EventInvalidated, Reason: reason} }
