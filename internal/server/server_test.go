package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hostline-ai/hostline/internal/call"
	"github.com/hostline-ai/hostline/internal/config"
	"github.com/hostline-ai/hostline/internal/dialogue"
	dialoguemock "github.com/hostline-ai/hostline/internal/dialogue/mock"
	"github.com/hostline-ai/hostline/internal/server"
	sttmock "github.com/hostline-ai/hostline/pkg/provider/stt/mock"
	"github.com/hostline-ai/hostline/pkg/provider/tts"
	ttsmock "github.com/hostline-ai/hostline/pkg/provider/tts/mock"
)

type testEnv struct {
	srv      *httptest.Server
	registry *call.Registry
	sttProv  *sttmock.Provider
	sttSess  *sttmock.Session
	ttsProv  *ttsmock.Provider
	bridge   *dialoguemock.Bridge
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sttSess := sttmock.NewSession()
	env := &testEnv{
		registry: call.NewRegistry(),
		sttProv:  &sttmock.Provider{Session: sttSess},
		sttSess:  sttSess,
		ttsProv: &ttsmock.Provider{
			EchoText: true,
			Voices: []tts.VoiceProfile{
				{ID: "alena", Language: "ru-RU"},
				{ID: "filipp", Language: "ru-RU"},
			},
		},
		bridge: &dialoguemock.Bridge{},
	}

	cfg := config.Default()
	cfg.Calls.DrainTimeoutSeconds = 2

	s, err := server.New(cfg, server.Deps{
		Registry: env.registry,
		STT:      env.sttProv,
		TTS:      env.ttsProv,
		Bridge: func(call.StartOptions) (dialogue.Bridge, error) {
			return env.bridge, nil
		},
	})
	if err != nil {
		t.Fatalf("server.New() error: %v", err)
	}

	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) startCall(t *testing.T, body string) string {
	t.Helper()
	resp, err := http.Post(e.srv.URL+"/api/calls/start", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/calls/start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		CallID       string `json:"call_id"`
		Status       string `json:"status"`
		WebsocketURL string `json:"websocket_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if out.Status != "initialized" {
		t.Errorf("start status field = %q, want initialized", out.Status)
	}
	if want := "/api/calls/" + out.CallID + "/ws"; out.WebsocketURL != want {
		t.Errorf("websocket_url = %q, want %q", out.WebsocketURL, want)
	}
	return out.CallID
}

func TestStartCall_RegistersCall(t *testing.T) {
	env := newTestEnv(t)

	id := env.startCall(t, `{"voice":"filipp"}`)

	c, err := env.registry.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%q) error: %v", id, err)
	}
	if c.Options.Voice.ID != "filipp" {
		t.Errorf("call voice = %q, want filipp", c.Options.Voice.ID)
	}
	if got := c.State(); got != call.StateIdle {
		t.Errorf("new call state = %v, want idle", got)
	}
}

func TestStartCall_EmptyBodyUsesDefaults(t *testing.T) {
	env := newTestEnv(t)

	id := env.startCall(t, "")

	c, err := env.registry.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%q) error: %v", id, err)
	}
	if c.Options.Voice.ID != "alena" {
		t.Errorf("default voice = %q, want alena", c.Options.Voice.ID)
	}
}

func TestStartCall_UnknownVoice(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.srv.URL+"/api/calls/start", "application/json",
		strings.NewReader(`{"voice":"nonexistent"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCallStatus_UnknownCall(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/calls/no-such-call/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

// TestCallSubroutes_Resolve pins the per-call URL layout: the literal "ws"
// segment sits after the call ID so the status, end and websocket patterns
// stay unambiguous under ServeMux precedence.
func TestCallSubroutes_Resolve(t *testing.T) {
	env := newTestEnv(t)
	id := env.startCall(t, "")

	resp, err := http.Get(env.srv.URL + "/api/calls/" + id + "/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status route = %d, want 200", resp.StatusCode)
	}

	// A plain GET on the websocket route must reach the upgrade handler,
	// not fall through to a routing 404.
	resp, err = http.Get(env.srv.URL + "/api/calls/" + id + "/ws")
	if err != nil {
		t.Fatalf("GET ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		t.Fatal("websocket route did not resolve")
	}
}

func TestEndCall_UnknownCall(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.srv.URL+"/api/calls/no-such-call/end", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestActiveCalls_ListsRegistered(t *testing.T) {
	env := newTestEnv(t)

	first := env.startCall(t, "")
	second := env.startCall(t, "")

	resp, err := http.Get(env.srv.URL + "/api/calls/active")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		ActiveCalls []struct {
			CallID string `json:"call_id"`
		} `json:"active_calls"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 {
		t.Fatalf("count = %d, want 2", out.Count)
	}
	ids := map[string]bool{}
	for _, c := range out.ActiveCalls {
		ids[c.CallID] = true
	}
	if !ids[first] || !ids[second] {
		t.Errorf("active calls %v missing %s or %s", ids, first, second)
	}
}

func TestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/calls/config")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Voices   []string `json:"voices"`
		Personas []string `json:"personas"`
		Audio    struct {
			SampleRate int    `json:"sample_rate"`
			Channels   int    `json:"channels"`
			Format     string `json:"format"`
		} `json:"audio"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Voices) != 2 {
		t.Errorf("voices = %v, want 2 entries", out.Voices)
	}
	if len(out.Personas) == 0 {
		t.Error("personas list is empty")
	}
	if out.Audio.SampleRate != 16000 || out.Audio.Channels != 1 || out.Audio.Format != "pcm16" {
		t.Errorf("audio config = %+v, want 16000/1/pcm16", out.Audio)
	}
}

func TestWebSocket_UnknownCall(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/calls/no-such-call/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("expected dial error for unknown call, got nil")
	}
	if resp != nil && resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocket_CallLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.bridge.Responses = []string{"Могу предложить столик на двоих."}

	id := env.startCall(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/calls/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// First text frame is the listening status.
	ev := readEvent(ctx, t, conn)
	if ev.Type != "status" || ev.Status != "listening" {
		t.Fatalf("first event = %+v, want status/listening", ev)
	}

	// Stream some audio, then complete a transcript.
	if err := conn.Write(ctx, websocket.MessageBinary, bytes.Repeat([]byte{0, 1}, 1600)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	env.sttSess.EmitFinal("Здравствуйте, можно столик?")

	var sawTranscript, sawResponse, sawAudio bool
	for !sawTranscript || !sawResponse || !sawAudio {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v (saw transcript=%v response=%v audio=%v)",
				err, sawTranscript, sawResponse, sawAudio)
		}
		if typ == websocket.MessageBinary {
			sawAudio = true
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		switch ev.Type {
		case "transcription":
			if ev.Text == "Здравствуйте, можно столик?" && ev.IsFinal != nil && *ev.IsFinal {
				sawTranscript = true
			}
		case "agent_response":
			if ev.Text == "Могу предложить столик на двоих." {
				sawResponse = true
			}
		}
	}

	// Ping gets a pong.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	for {
		ev := readEvent(ctx, t, conn)
		if ev.Type == "pong" {
			break
		}
	}

	// end_call ends the call gracefully and closes the socket.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"end_call"}`)); err != nil {
		t.Fatalf("write end_call: %v", err)
	}
	waitForState(t, env.registry, id, call.StateEnded)
}

func TestEndCall_REST(t *testing.T) {
	env := newTestEnv(t)

	id := env.startCall(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/calls/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	waitForState(t, env.registry, id, call.StateActive)

	resp, err := http.Post(env.srv.URL+"/api/calls/"+id+"/end", "application/json", nil)
	if err != nil {
		t.Fatalf("POST end: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want 200", resp.StatusCode)
	}
	waitForState(t, env.registry, id, call.StateEnded)
}

type wireEvent struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Text    string `json:"text"`
	IsFinal *bool  `json:"is_final"`
	Message string `json:"message"`
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		return ev
	}
}

func waitForState(t *testing.T, reg *call.Registry, id string, want call.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c, err := reg.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", id, err)
		}
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	c, _ := reg.Lookup(id)
	t.Fatalf("call %s state = %v, want %v", id, c.State(), want)
}
