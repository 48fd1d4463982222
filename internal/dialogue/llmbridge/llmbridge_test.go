package llmbridge

import (
	"strings"
	"testing"

	"github.com/hostline-ai/hostline/internal/dialogue"
)

// ── buildMessages ─────────────────────────────────────────────────────────────

// TestBuildMessages_SystemFirstUserLast checks message ordering.
func TestBuildMessages_SystemFirstUserLast(t *testing.T) {
	turns := []dialogue.Turn{
		{Role: dialogue.RoleUser, Content: "Есть столик на вечер?"},
		{Role: dialogue.RoleAssistant, Content: "Да, на какое время?"},
	}
	msgs := buildMessages("prompt", turns, "На восемь.")

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].ContentString() != "prompt" {
		t.Errorf("unexpected system message: %q %q", msgs[0].Role, msgs[0].ContentString())
	}
	if msgs[1].ContentString() != "Есть столик на вечер?" || msgs[2].ContentString() != "Да, на какое время?" {
		t.Errorf("history out of order: %q, %q", msgs[1].ContentString(), msgs[2].ContentString())
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.ContentString() != "На восемь." {
		t.Errorf("unexpected final message: %q %q", last.Role, last.ContentString())
	}
}

// TestBuildMessages_NoHistory checks the minimal two-message request.
func TestBuildMessages_NoHistory(t *testing.T) {
	msgs := buildMessages("prompt", nil, "Здравствуйте")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Errorf("unexpected roles: %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

// ── trimTurns ─────────────────────────────────────────────────────────────────

func makeTurns(pairs int) []dialogue.Turn {
	var turns []dialogue.Turn
	for i := 0; i < pairs; i++ {
		turns = append(turns,
			dialogue.Turn{Role: dialogue.RoleUser, Content: "q"},
			dialogue.Turn{Role: dialogue.RoleAssistant, Content: "a"},
		)
	}
	return turns
}

// TestTrimTurns_UnderCap checks that short histories pass through untouched.
func TestTrimTurns_UnderCap(t *testing.T) {
	turns := makeTurns(3)
	got := trimTurns(turns, 10)
	if len(got) != 6 {
		t.Errorf("expected 6 turns, got %d", len(got))
	}
}

// TestTrimTurns_CutsAtUserTurn checks that trimming never leaves a leading
// assistant reply.
func TestTrimTurns_CutsAtUserTurn(t *testing.T) {
	turns := makeTurns(5) // 10 messages
	got := trimTurns(turns, 3)
	if len(got) == 0 {
		t.Fatal("expected non-empty history")
	}
	if got[0].Role != dialogue.RoleUser {
		t.Errorf("expected history to start with a user turn, got %q", got[0].Role)
	}
	if len(got) > 3 {
		t.Errorf("expected at most 3 turns, got %d", len(got))
	}
}

// TestTrimTurns_NoCap checks that max <= 0 disables trimming.
func TestTrimTurns_NoCap(t *testing.T) {
	turns := makeTurns(8)
	if got := trimTurns(turns, 0); len(got) != 16 {
		t.Errorf("expected 16 turns, got %d", len(got))
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

// TestNew_RequiresBackend checks nil backend rejection.
func TestNew_RequiresBackend(t *testing.T) {
	if _, err := New(nil, "gpt-4o-mini"); err == nil {
		t.Error("expected error for nil backend")
	}
}

// TestNew_UnknownPersona checks persona validation.
func TestNew_UnknownPersona(t *testing.T) {
	backend, err := NewBackend("ollama")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if _, err := New(backend, "llama3", WithPersona("gibberish")); err == nil {
		t.Error("expected error for unknown persona")
	}
}

// TestNew_PersonaAndGreeting checks defaults and overrides.
func TestNew_PersonaAndGreeting(t *testing.T) {
	backend, err := NewBackend("ollama")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b, err := New(backend, "llama3", WithPersona("formal"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want, _ := dialogue.SystemPrompt("formal")
	if b.system != want {
		t.Errorf("expected formal persona prompt, got %q", b.system)
	}
	if b.Greeting() != dialogue.DefaultGreeting {
		t.Errorf("expected default greeting, got %q", b.Greeting())
	}

	b, err = New(backend, "llama3", WithGreeting("Алло!"), WithSystemPrompt("custom"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Greeting() != "Алло!" {
		t.Errorf("expected custom greeting, got %q", b.Greeting())
	}
	if b.system != "custom" {
		t.Errorf("expected custom prompt, got %q", b.system)
	}
}

// TestNewBackend_Unsupported checks the provider name switch.
func TestNewBackend_Unsupported(t *testing.T) {
	_, err := NewBackend("modem")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "modem") {
		t.Errorf("error should name the provider: %v", err)
	}
}

// TestForget drops one conversation's history and leaves others alone.
func TestForget(t *testing.T) {
	b := &Bridge{history: map[dialogue.ConversationRef][]dialogue.Turn{
		"call-a": makeTurns(2),
		"call-b": makeTurns(1),
	}}
	b.Forget("call-a")
	if _, ok := b.history["call-a"]; ok {
		t.Error("expected call-a history to be dropped")
	}
	if len(b.history["call-b"]) != 2 {
		t.Error("expected call-b history to survive")
	}
}
