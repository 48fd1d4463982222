package speechkit

import (
	"net/url"
	"testing"
	"time"

	"github.com/hostline-ai/hostline/pkg/provider/stt"
)

func assertEqual(t *testing.T, name, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", name, got, want)
	}
}

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key", "folder-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "general", q.Get("model"))
	assertEqual(t, "lang", "ru-RU", q.Get("lang"))
	assertEqual(t, "format", "lpcm", q.Get("format"))
	assertEqual(t, "sampleRateHertz", "16000", q.Get("sampleRateHertz"))
	assertEqual(t, "partialResults", "true", q.Get("partialResults"))
	assertEqual(t, "audioChannelCount", "1", q.Get("audioChannelCount"))
}

func TestBuildURL_ConfigOverridesProviderDefaults(t *testing.T) {
	p, err := New("key", "", WithModel("general:rc"), WithLanguage("ru-RU"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "kk-KK", Model: "general:deprecated"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "lang", "kk-KK", q.Get("lang"))
	assertEqual(t, "model", "general:deprecated", q.Get("model"))
	// SampleRate falls back to the wire default.
	assertEqual(t, "sampleRateHertz", "16000", q.Get("sampleRateHertz"))
}

// ---- JSON parsing tests ----

func newParseSession() *session {
	return &session{started: time.Now()}
}

func TestParseResponse_Final(t *testing.T) {
	raw := []byte(`{
		"result": {
			"alternatives": [{"text": "Здравствуйте", "confidence": 0.92}],
			"final": true
		}
	}`)

	tr, ok := newParseSession().parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for a valid result message")
	}
	if !tr.IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "Здравствуйте", tr.Text)
	if tr.Confidence != 0.92 {
		t.Errorf("confidence = %f, want 0.92", tr.Confidence)
	}
}

func TestParseResponse_Partial(t *testing.T) {
	raw := []byte(`{"result":{"alternatives":[{"text":"Здра","confidence":0.4}],"final":false}}`)
	tr, ok := newParseSession().parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if tr.IsFinal {
		t.Error("expected IsFinal=false for a partial result")
	}
	assertEqual(t, "text", "Здра", tr.Text)
}

func TestParseResponse_EmptyAlternatives(t *testing.T) {
	raw := []byte(`{"result":{"alternatives":[],"final":true}}`)
	if _, ok := newParseSession().parseResponse(raw); ok {
		t.Error("expected ok=false when alternatives is empty")
	}
}

func TestParseResponse_EmptyText(t *testing.T) {
	raw := []byte(`{"result":{"alternatives":[{"text":""}],"final":false}}`)
	if _, ok := newParseSession().parseResponse(raw); ok {
		t.Error("expected ok=false for empty transcript text")
	}
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	if _, ok := newParseSession().parseResponse([]byte(`{invalid`)); ok {
		t.Error("expected ok=false for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}
