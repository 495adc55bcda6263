package stream

// State is the connection state of a Stream.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closing
	Faulted
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Faulted:
		return "faulted"
	case Reconnecting:
		return "reconnecting"
	default:
		return "invalid"
	}
}

var transitions = map[State][]State{
	Idle:         {Connecting},
	Connecting:   {Open, Faulted, Idle},
	Open:         {Closing, Faulted},
	Closing:      {Idle},
	Faulted:      {Reconnecting, Idle},
	Reconnecting: {Connecting, Idle},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
