// Package speechkit provides a Yandex SpeechKit-backed TTS provider using
// the streaming synthesis WebSocket gateway. It implements the
// tts.Provider interface.
package speechkit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"

	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

const (
	defaultEndpoint   = "wss://tts.api.cloud.yandex.net/speech/v3/tts:stream"
	defaultSampleRate = 16000
)

// Voices lists the SpeechKit voices offered through the call control
// surface. The catalogue is static; SpeechKit has no discovery API.
var Voices = []tts.VoiceProfile{
	{ID: "alena", Name: "Алёна", Language: "ru-RU", Speed: 1.0, Metadata: map[string]string{"gender": "female"}},
	{ID: "filipp", Name: "Филипп", Language: "ru-RU", Speed: 1.0, Metadata: map[string]string{"gender": "male"}},
	{ID: "jane", Name: "Джейн", Language: "ru-RU", Speed: 1.0, Metadata: map[string]string{"gender": "female"}},
	{ID: "ermil", Name: "Ермил", Language: "ru-RU", Speed: 1.0, Metadata: map[string]string{"gender": "male"}},
	{ID: "marina", Name: "Марина", Language: "ru-RU", Speed: 1.0, Metadata: map[string]string{"gender": "female"}},
}

// Option is a functional option for configuring the SpeechKit Provider.
type Option func(*Provider)

// WithSampleRate sets the PCM output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the streaming gateway URL. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements tts.Provider backed by the SpeechKit streaming API.
type Provider struct {
	apiKey     string
	folderID   string
	endpoint   string
	sampleRate int
}

// New creates a SpeechKit TTS Provider. apiKey must be non-empty.
func New(apiKey, folderID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("speechkit: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		folderID:   folderID,
		endpoint:   defaultEndpoint,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// synthesisRequest is the JSON payload sent for each text fragment. An
// empty text with Eou set asks the gateway to flush and close the stream.
type synthesisRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Eou   bool    `json:"eou,omitempty"`
}

// synthesisResponse is a message received from the gateway.
type synthesisResponse struct {
	AudioChunk string `json:"audio_chunk"` // base64-encoded PCM16
	Final      bool   `json:"final"`
	Message    string `json:"message,omitempty"`
}

// SynthesizeStream opens a WebSocket to the synthesis gateway, pipes text
// fragments from the text channel, and returns a channel emitting raw PCM
// audio chunks.
//
// The returned audio channel is closed when synthesis completes, the
// backend fails mid-utterance, or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("speechkit: voice.ID must not be empty")
	}

	wsURL, err := p.buildURL(voice)
	if err != nil {
		return nil, fmt.Errorf("speechkit: build URL: %w", err)
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Api-Key "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("speechkit: dial: %w", err)
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var resp synthesisResponse
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}
				if resp.AudioChunk != "" {
					pcm, err := base64.StdEncoding.DecodeString(resp.AudioChunk)
					if err != nil {
						continue
					}
					select {
					case audioCh <- pcm:
					case <-ctx.Done():
						return
					}
				}
				if resp.Final {
					return
				}
			}
		}()

		// Forward text fragments to the gateway. Voice parameters ride on
		// the first fragment only.
		voiceID := voice.ID
		speed := voice.Speed
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					// End of utterance: ask the gateway to flush, then
					// wait for the reader to drain the remaining audio.
					eou, _ := json.Marshal(synthesisRequest{Eou: true})
					_ = conn.Write(ctx, websocket.MessageText, eou)
					<-readDone
					return
				}
				if fragment == "" {
					continue
				}
				payload, _ := json.Marshal(synthesisRequest{
					Text:  fragment,
					Voice: voiceID,
					Speed: speed,
				})
				voiceID, speed = "", 0
				if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// ListVoices returns the static SpeechKit voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, len(Voices))
	copy(out, Voices)
	return out, nil
}

// buildURL constructs the synthesis endpoint URL for the given voice.
func (p *Provider) buildURL(voice tts.VoiceProfile) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if p.folderID != "" {
		q.Set("folderId", p.folderID)
	}
	q.Set("voice", voice.ID)
	q.Set("format", "lpcm")
	q.Set("sampleRateHertz", strconv.Itoa(p.sampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
