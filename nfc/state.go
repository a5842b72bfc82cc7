package nfc

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateConnecting
	StateConnected
	StateReading
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
