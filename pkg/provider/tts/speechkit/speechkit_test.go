package speechkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestBuildURL(t *testing.T) {
	p, err := New("key-1", "folder-1", WithSampleRate(16000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(tts.VoiceProfile{ID: "alena"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()
	if got := q.Get("voice"); got != "alena" {
		t.Errorf("voice = %q, want %q", got, "alena")
	}
	if got := q.Get("format"); got != "lpcm" {
		t.Errorf("format = %q, want %q", got, "lpcm")
	}
	if got := q.Get("sampleRateHertz"); got != "16000" {
		t.Errorf("sampleRateHertz = %q, want %q", got, "16000")
	}
	if got := q.Get("folderId"); got != "folder-1" {
		t.Errorf("folderId = %q, want %q", got, "folder-1")
	}
}

// TestSynthesizeStream_AuthorizationHeader pins how credentials travel: the
// API key goes in the Authorization header, never in the URL where it would
// end up in access logs.
func TestSynthesizeStream_AuthorizationHeader(t *testing.T) {
	var gotAuth, gotQueryKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQueryKey = r.URL.Query().Get("apiKey")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	p, err := New("secret-key", "", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := make(chan string)
	close(text)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	audioCh, err := p.SynthesizeStream(ctx, text, tts.VoiceProfile{ID: "alena"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	for range audioCh {
	}

	if want := "Api-Key secret-key"; gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
	if gotQueryKey != "" {
		t.Errorf("apiKey leaked into the URL query: %q", gotQueryKey)
	}
}

func TestSynthesizeStream_RequiresVoiceID(t *testing.T) {
	p, err := New("key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := make(chan string)
	close(text)
	if _, err := p.SynthesizeStream(context.Background(), text, tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice.ID")
	}
}

func TestListVoices_ReturnsCopy(t *testing.T) {
	p, err := New("key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) == 0 {
		t.Fatal("expected a non-empty voice catalogue")
	}
	voices[0].ID = "mutated"
	again, _ := p.ListVoices(context.Background())
	if again[0].ID == "mutated" {
		t.Error("ListVoices must return a copy of the catalogue")
	}
}
