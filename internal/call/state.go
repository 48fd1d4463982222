package call

import "fmt"

// State is one stage of a call's lifecycle.
type State int

const (
	// StateIdle means the call was created but its duplex channel has not
	// connected yet.
	StateIdle State = iota

	// StateConnecting means the duplex channel is opening and providers
	// are being acquired.
	StateConnecting

	// StateActive means audio is flowing in both directions.
	StateActive

	// StateEnding means termination was requested and in-flight synthesis
	// and playback are draining.
	StateEnding

	// StateError means a connection-level failure occurred; the failure is
	// surfaced to the client before the call reaches StateEnded.
	StateError

	// StateEnded is terminal. All resources are released and every
	// further feed or enqueue is rejected with ErrCallClosed.
	StateEnded
)

// String implements fmt.Stringer. The values double as the wire statuses
// reported by the call control surface.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateError:
		return "error"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is a lifecycle trigger applied to a call's state.
type Event int

const (
	// EventStart fires when a start request is accepted and resource
	// acquisition begins.
	EventStart Event = iota

	// EventChannelOpen fires when the duplex channel and providers are up.
	EventChannelOpen

	// EventFail fires on resource acquisition failure or a
	// connection-level error mid-call.
	EventFail

	// EventEndRequest fires on a graceful end request from either side.
	EventEndRequest

	// EventDrained fires when in-flight playback and synthesis have
	// drained, or when an error has been surfaced.
	EventDrained

	// EventTerminate is forced termination, allowed from every state.
	EventTerminate
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventChannelOpen:
		return "channel open"
	case EventFail:
		return "failure"
	case EventEndRequest:
		return "end request"
	case EventDrained:
		return "drained"
	case EventTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// transitions is the lifecycle table. EventTerminate is handled separately
// since it is allowed from every state.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateConnecting,
	},
	StateConnecting: {
		EventChannelOpen: StateActive,
		EventFail:        StateError,
	},
	StateActive: {
		EventEndRequest: StateEnding,
		EventFail:       StateError,
	},
	StateEnding: {
		EventDrained: StateEnded,
	},
	StateError: {
		EventDrained: StateEnded,
	},
}

// Transition applies one lifecycle event to a state. Disallowed events are
// rejected with a descriptive error, never silently ignored. Terminating an
// already ended call stays in StateEnded without error.
func Transition(s State, e Event) (State, error) {
	if e == EventTerminate {
		return StateEnded, nil
	}
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("call: invalid transition: %s event in %s state", e, s)
}
