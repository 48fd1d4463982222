// Package mock provides a scripted dialogue.Bridge for tests.
package mock

import (
	"context"
	"sync"

	"github.com/hostline-ai/hostline/internal/dialogue"
)

// RespondCall records one invocation of Respond.
type RespondCall struct {
	Ref  dialogue.ConversationRef
	Text string
}

// Bridge is a scripted dialogue.Bridge. Configure the exported fields before
// use; it records every Respond call.
type Bridge struct {
	// GreetingText is returned verbatim by Greeting. Leaving it empty
	// suppresses the greeting.
	GreetingText string

	// Responses are returned by successive Respond calls in order. Once
	// exhausted, the last entry repeats. With no entries Respond echoes
	// the input text.
	Responses []string

	// RespondErr, if set, is returned by every Respond call.
	RespondErr error

	// Release, if non-nil, gates each Respond call until it receives or
	// is closed. Lets tests hold a response in flight.
	Release chan struct{}

	mu    sync.Mutex
	calls []RespondCall
}

var _ dialogue.Bridge = (*Bridge)(nil)

// Greeting implements dialogue.Bridge.
func (b *Bridge) Greeting() string {
	return b.GreetingText
}

// Respond implements dialogue.Bridge.
func (b *Bridge) Respond(ctx context.Context, ref dialogue.ConversationRef, text string) (string, error) {
	if b.Release != nil {
		select {
		case <-b.Release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	b.mu.Lock()
	n := len(b.calls)
	b.calls = append(b.calls, RespondCall{Ref: ref, Text: text})
	b.mu.Unlock()

	if b.RespondErr != nil {
		return "", b.RespondErr
	}
	if len(b.Responses) == 0 {
		return text, nil
	}
	if n >= len(b.Responses) {
		n = len(b.Responses) - 1
	}
	return b.Responses[n], nil
}

// Calls returns a copy of all recorded Respond calls.
func (b *Bridge) Calls() []RespondCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RespondCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallTexts returns just the input text of every recorded Respond call.
func (b *Bridge) CallTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.Text
	}
	return out
}
