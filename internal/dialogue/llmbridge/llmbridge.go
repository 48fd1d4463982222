// Package llmbridge implements dialogue.Bridge on top of
// github.com/mozilla-ai/any-llm-go, so the same hostess persona can run
// against OpenAI, Anthropic, Gemini or a local Ollama model.
//
// Each conversation keeps a rolling in-memory history capped at a fixed
// number of turns. Optionally a [Retriever] folds knowledge-base context
// into the system prompt and a [HistoryStore] persists every turn.
package llmbridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/hostline-ai/hostline/internal/dialogue"
)

// DefaultMaxTurns caps the in-memory history per conversation, counted in
// messages (a caller utterance and its reply are two).
const DefaultMaxTurns = 20

// Retriever supplies knowledge-base context for a caller utterance.
// Implemented by retrieval.Retriever.
type Retriever interface {
	Context(ctx context.Context, query string) (string, error)
}

// HistoryStore persists conversation turns. Implemented by history.Store.
// Begin is called once per conversation before the first Append.
type HistoryStore interface {
	Begin(ctx context.Context, callID string) (uuid.UUID, error)
	Append(ctx context.Context, callID, role, content string) error
}

// Bridge implements dialogue.Bridge. Safe for concurrent use.
type Bridge struct {
	backend     anyllmlib.Provider
	model       string
	persona     string
	system      string
	greeting    string
	temperature float64
	maxTokens   int
	maxTurns    int
	retriever   Retriever
	store       HistoryStore
	logger      *slog.Logger

	mu      sync.Mutex
	history map[dialogue.ConversationRef][]dialogue.Turn
	begun   map[dialogue.ConversationRef]bool
}

var _ dialogue.Bridge = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithPersona selects a built-in system prompt by name. New fails on an
// unknown name.
func WithPersona(name string) Option {
	return func(b *Bridge) { b.persona = name }
}

// WithSystemPrompt sets a custom system prompt, overriding any persona.
func WithSystemPrompt(prompt string) Option {
	return func(b *Bridge) { b.system = prompt }
}

// WithGreeting overrides the opening line.
func WithGreeting(text string) Option {
	return func(b *Bridge) { b.greeting = text }
}

// WithTemperature sets the sampling temperature. Zero leaves the model
// default in place.
func WithTemperature(t float64) Option {
	return func(b *Bridge) { b.temperature = t }
}

// WithMaxTokens caps the length of generated replies.
func WithMaxTokens(n int) Option {
	return func(b *Bridge) { b.maxTokens = n }
}

// WithMaxTurns overrides the per-conversation history cap.
func WithMaxTurns(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.maxTurns = n
		}
	}
}

// WithRetriever enables knowledge-base augmentation.
func WithRetriever(r Retriever) Option {
	return func(b *Bridge) { b.retriever = r }
}

// WithHistoryStore enables turn persistence.
func WithHistoryStore(s HistoryStore) Option {
	return func(b *Bridge) { b.store = s }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New creates a Bridge over the given any-llm-go backend. Without a persona
// or custom prompt the "default" hostess persona is used.
func New(backend anyllmlib.Provider, model string, opts ...Option) (*Bridge, error) {
	if backend == nil {
		return nil, fmt.Errorf("llmbridge: backend must not be nil")
	}
	if model == "" {
		return nil, fmt.Errorf("llmbridge: model must not be empty")
	}

	b := &Bridge{
		backend:  backend,
		model:    model,
		greeting: dialogue.DefaultGreeting,
		maxTurns: DefaultMaxTurns,
		history:  map[dialogue.ConversationRef][]dialogue.Turn{},
		begun:    map[dialogue.ConversationRef]bool{},
	}
	for _, o := range opts {
		o(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.system == "" {
		name := b.persona
		if name == "" {
			name = "default"
		}
		prompt, ok := dialogue.SystemPrompt(name)
		if !ok {
			return nil, fmt.Errorf("llmbridge: unknown persona %q; known: %s",
				name, strings.Join(dialogue.PromptNames(), ", "))
		}
		b.system = prompt
	}
	return b, nil
}

// NewBackend creates the underlying any-llm-go provider by name.
// providerName is one of: "openai", "anthropic", "gemini", "ollama".
// Without an API key option the backend falls back to its environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, etc.).
func NewBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("llmbridge: unsupported provider %q; supported: openai, anthropic, gemini, ollama", providerName)
	}
}

// Greeting implements dialogue.Bridge.
func (b *Bridge) Greeting() string {
	return b.greeting
}

// Respond implements dialogue.Bridge.
func (b *Bridge) Respond(ctx context.Context, ref dialogue.ConversationRef, text string) (string, error) {
	system := b.system
	if b.retriever != nil {
		ragCtx, err := b.retriever.Context(ctx, text)
		switch {
		case err != nil:
			// Answer without augmentation rather than failing the turn.
			b.logger.Warn("knowledge base lookup failed", "call_id", string(ref), "error", err)
		case ragCtx != "":
			system = system + "\n\n" + ragCtx
		}
	}

	b.mu.Lock()
	turns := append([]dialogue.Turn(nil), b.history[ref]...)
	b.mu.Unlock()

	params := anyllmlib.CompletionParams{
		Model:    b.model,
		Messages: buildMessages(system, turns, text),
	}
	if b.temperature != 0 {
		t := b.temperature
		params.Temperature = &t
	}
	if b.maxTokens > 0 {
		mt := b.maxTokens
		params.MaxTokens = &mt
	}

	resp, err := b.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmbridge: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmbridge: empty choices in response")
	}
	reply := resp.Choices[0].Message.ContentString()

	b.mu.Lock()
	b.history[ref] = trimTurns(append(b.history[ref],
		dialogue.Turn{Role: dialogue.RoleUser, Content: text},
		dialogue.Turn{Role: dialogue.RoleAssistant, Content: reply},
	), b.maxTurns)
	b.mu.Unlock()

	if b.store != nil {
		b.persist(ctx, ref, text, reply)
	}

	return reply, nil
}

// persist writes both turns of the exchange, opening the conversation row
// on first use. Persistence failures are logged, never surfaced to the call.
func (b *Bridge) persist(ctx context.Context, ref dialogue.ConversationRef, text, reply string) {
	b.mu.Lock()
	begun := b.begun[ref]
	b.mu.Unlock()
	if !begun {
		if _, err := b.store.Begin(ctx, string(ref)); err != nil {
			b.logger.Warn("open conversation record failed", "call_id", string(ref), "error", err)
			return
		}
		b.mu.Lock()
		b.begun[ref] = true
		b.mu.Unlock()
	}

	if err := b.store.Append(ctx, string(ref), dialogue.RoleUser, text); err != nil {
		b.logger.Warn("persist caller turn failed", "call_id", string(ref), "error", err)
	} else if err := b.store.Append(ctx, string(ref), dialogue.RoleAssistant, reply); err != nil {
		b.logger.Warn("persist agent turn failed", "call_id", string(ref), "error", err)
	}
}

// Forget drops the in-memory history of one conversation. Call it when the
// call ends; persisted history is unaffected.
func (b *Bridge) Forget(ref dialogue.ConversationRef) {
	b.mu.Lock()
	delete(b.history, ref)
	delete(b.begun, ref)
	b.mu.Unlock()
}

// buildMessages assembles the completion request: system prompt first, then
// prior turns in order, then the current utterance.
func buildMessages(system string, turns []dialogue.Turn, text string) []anyllmlib.Message {
	msgs := make([]anyllmlib.Message, 0, len(turns)+2)
	msgs = append(msgs, anyllmlib.Message{
		Role:    anyllmlib.RoleSystem,
		Content: system,
	})
	for _, t := range turns {
		msgs = append(msgs, anyllmlib.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, anyllmlib.Message{Role: dialogue.RoleUser, Content: text})
	return msgs
}

// trimTurns keeps the most recent max messages, always cutting at a user
// turn so the history never starts with a dangling assistant reply.
func trimTurns(turns []dialogue.Turn, max int) []dialogue.Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	cut := len(turns) - max
	for cut < len(turns) && turns[cut].Role != dialogue.RoleUser {
		cut++
	}
	return turns[cut:]
}
