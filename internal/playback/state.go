package playback

// State is the controller's playback state.
type State int

const (
	// StateIdle means no document is loaded.
	StateIdle State = iota
	// StateReady means a document is loaded but the current page is not playing.
	StateReady
	// StatePlaying means audio for the current page was handed to the surface.
	StatePlaying
	// StateAdvancing means the page index is being updated.
	StateAdvancing
	// StateFinished means the last page finished playing.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateAdvancing:
		return "advancing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// stateMachine enforces the allowed transitions between states.
type stateMachine struct {
	current     State
	transitions map[State][]State
	onEnter     func(from, to State)
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:      {StateReady},
			StateReady:     {StatePlaying, StateAdvancing, StateIdle},
			StatePlaying:   {StateReady, StateAdvancing, StateFinished, StateIdle},
			StateAdvancing: {StateReady, StateIdle},
			StateFinished:  {StateReady, StateAdvancing, StateIdle},
		},
	}
}

// transition moves to the given state if allowed.
func (sm *stateMachine) transition(to State) bool {
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	from := sm.current
	sm.current = to
	if sm.onEnter != nil {
		sm.onEnter(from, to)
	}
	return true
}

// reset forces the machine back to Idle.
func (sm *stateMachine) reset() {
	sm.current = StateIdle
}
