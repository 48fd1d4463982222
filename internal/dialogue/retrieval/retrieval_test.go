package retrieval

import (
	"strings"
	"testing"
)

// TestBuildContext_Empty checks that no chunks yield no prompt fragment.
func TestBuildContext_Empty(t *testing.T) {
	if got := BuildContext(nil); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

// TestBuildContext_JoinsChunks checks ordering and separation.
func TestBuildContext_JoinsChunks(t *testing.T) {
	chunks := []Chunk{
		{Content: "Режим работы: с 10 до 23."},
		{Content: "Банкетный зал вмещает 40 гостей."},
	}
	got := BuildContext(chunks)
	first := strings.Index(got, chunks[0].Content)
	second := strings.Index(got, chunks[1].Content)
	if first < 0 || second < 0 {
		t.Fatalf("context missing chunk content: %q", got)
	}
	if first > second {
		t.Error("chunks out of order in context")
	}
	if !strings.Contains(got, "базы знаний") {
		t.Errorf("context missing instruction preamble: %q", got)
	}
}

// TestNew_Validation checks constructor argument checks.
func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil pool")
	}
}

// TestNewOpenAIEmbedder_RequiresKey checks API key validation and the
// model default.
func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", ""); err == nil {
		t.Error("expected error for empty apiKey")
	}
	e, err := NewOpenAIEmbedder("sk-test", "")
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	if e.model != DefaultEmbeddingModel {
		t.Errorf("expected default model, got %q", e.model)
	}
}
