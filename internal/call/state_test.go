package call_test

import (
	"testing"

	"github.com/hostline-ai/hostline/internal/call"
)

// allowed is the full lifecycle table. Anything absent must be rejected.
var allowed = map[call.State]map[call.Event]call.State{
	call.StateIdle: {
		call.EventStart: call.StateConnecting,
	},
	call.StateConnecting: {
		call.EventChannelOpen: call.StateActive,
		call.EventFail:        call.StateError,
	},
	call.StateActive: {
		call.EventEndRequest: call.StateEnding,
		call.EventFail:       call.StateError,
	},
	call.StateEnding: {
		call.EventDrained: call.StateEnded,
	},
	call.StateError: {
		call.EventDrained: call.StateEnded,
	},
	call.StateEnded: {},
}

var allStates = []call.State{
	call.StateIdle, call.StateConnecting, call.StateActive,
	call.StateEnding, call.StateError, call.StateEnded,
}

var allEvents = []call.Event{
	call.EventStart, call.EventChannelOpen, call.EventFail,
	call.EventEndRequest, call.EventDrained, call.EventTerminate,
}

// TestTransition_Table checks every state and event pair against the
// lifecycle table: listed pairs land on the listed state, everything else
// is rejected with an error, and forced termination is allowed everywhere.
func TestTransition_Table(t *testing.T) {
	for _, s := range allStates {
		for _, e := range allEvents {
			got, err := call.Transition(s, e)

			if e == call.EventTerminate {
				if err != nil {
					t.Errorf("%s + terminate: unexpected error %v", s, err)
				}
				if got != call.StateEnded {
					t.Errorf("%s + terminate: expected ended, got %s", s, got)
				}
				continue
			}

			want, ok := allowed[s][e]
			if ok {
				if err != nil {
					t.Errorf("%s + %s: unexpected error %v", s, e, err)
				}
				if got != want {
					t.Errorf("%s + %s: expected %s, got %s", s, e, want, got)
				}
				continue
			}
			if err == nil {
				t.Errorf("%s + %s: expected rejection, got %s", s, e, got)
			}
			if got != s {
				t.Errorf("%s + %s: rejected event changed state to %s", s, e, got)
			}
		}
	}
}

// TestState_String covers the wire status names.
func TestState_String(t *testing.T) {
	names := map[call.State]string{
		call.StateIdle:       "idle",
		call.StateConnecting: "connecting",
		call.StateActive:     "active",
		call.StateEnding:     "ending",
		call.StateError:      "error",
		call.StateEnded:      "ended",
	}
	for s, want := range names {
		if got := s.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
