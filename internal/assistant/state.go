package assistant

// State is where the voice loop currently is in a turn.
type State int32

const (
	WaitForQuiet State = iota
	Listening
	Routing
	Acting
	Responding
	Speaking
	Terminated
)

func (s State) String() string {
	switch s {
	case WaitForQuiet:
		return "wait_for_quiet"
	case Listening:
		return "listening"
	case Routing:
		return "routing"
	case Acting:
		return "acting"
	case Responding:
		return "responding"
	case Speaking:
		return "speaking"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}
