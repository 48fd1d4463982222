// Package dialogue defines the boundary between call sessions and the
// conversational agent that answers callers.
//
// A call session hands every final transcript to a [Bridge] and plays back
// whatever text comes out. The session never sees prompts, history or
// retrieval; those live behind the Bridge implementation.
package dialogue

import "context"

// ConversationRef identifies one caller's conversation across turns.
// Sessions pass their call ID; implementations use it to key history.
type ConversationRef string

// Bridge produces agent responses for a single deployment.
//
// Respond is invoked once per final transcript and may be called from
// multiple calls concurrently; implementations must be safe for concurrent
// use. A failed Respond affects only that turn, the conversation stays
// usable.
type Bridge interface {
	// Greeting returns the opening line spoken when a call becomes active.
	Greeting() string

	// Respond generates the agent's reply to one caller utterance.
	Respond(ctx context.Context, ref ConversationRef, text string) (string, error)
}

// Message roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation history.
type Turn struct {
	Role    string
	Content string
}
