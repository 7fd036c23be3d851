package pipeline

// State is the position of one submission in the pipeline.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateAbuseChecked
	StateUploaded
	StateNotified
	StateCompleted
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateAbuseChecked:
		return "abuse_checked"
	case StateUploaded:
		return "uploaded"
	case StateNotified:
		return "notified"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}

// next is the only forward step allowed from each non-terminal state.
var next = map[State]State{
	StateReceived:     StateValidated,
	StateValidated:    StateAbuseChecked,
	StateAbuseChecked: StateUploaded,
	StateUploaded:     StateNotified,
	StateNotified:     StateCompleted,
}

// canTransition reports whether from -> to is a legal edge: the single
// forward step, or Rejected/Failed from any non-terminal state.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateRejected || to == StateFailed {
		return true
	}
	return next[from] == to
}
