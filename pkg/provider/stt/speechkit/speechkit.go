// Package speechkit provides a Yandex SpeechKit-backed STT provider using
// the streaming recognition WebSocket gateway. It implements the
// stt.Provider interface.
package speechkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hostline-ai/hostline/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://stt.api.cloud.yandex.net/speech/v3/stt:stream"
	defaultModel      = "general"
	defaultLanguage   = "ru-RU"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the SpeechKit Provider.
type Option func(*Provider)

// WithModel sets the recognition model (e.g. "general", "general:rc").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the streaming gateway URL. Used in tests to point
// the provider at a local server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider backed by the SpeechKit streaming API.
type Provider struct {
	apiKey   string
	folderID string
	endpoint string
	model    string
	language string
}

// New creates a SpeechKit Provider. apiKey must be non-empty; folderID may
// be empty when the key is service-account scoped.
func New(apiKey, folderID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("speechkit: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		folderID: folderID,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming recognition session. It respects
// cfg.SampleRate, cfg.Language, and cfg.Model.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("speechkit: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Api-Key "+p.apiKey)
	if p.folderID != "" {
		headers.Set("X-Folder-Id", p.folderID)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("speechkit: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
		started:  time.Now(),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("lang", lang)
	q.Set("format", "lpcm")
	q.Set("sampleRateHertz", strconv.Itoa(sr))
	q.Set("partialResults", "true")
	if cfg.Channels > 0 {
		q.Set("audioChannelCount", strconv.Itoa(cfg.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// recognitionResponse is the JSON structure the gateway sends for each
// recognition event.
type recognitionResponse struct {
	Result struct {
		Alternatives []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		Final bool `json:"final"`
	} `json:"result"`
}

// session is a live SpeechKit streaming session. It implements
// stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte
	started  time.Time

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu   sync.Mutex
	readErr error
	closed  bool
}

// SendAudio queues a PCM chunk for delivery to the recogniser.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("speechkit: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("speechkit: session is closed")
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Err reports the terminal stream error, if any. A session closed by the
// caller reports nil.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.closed {
		return nil
	}
	return s.readErr
}

// Close signals end-of-audio to the recogniser, waits for the loops to
// finish, and closes the connection.
func (s *session) Close() error {
	s.once.Do(func() {
		s.errMu.Lock()
		s.closed = true
		s.errMu.Unlock()

		close(s.done)
		// An eof control message asks the gateway to flush pending audio
		// and emit the last final before closing.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"eof"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop forwards staged audio chunks to the gateway as binary messages.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is still staged before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives recognition events and dispatches them to the partials
// and finals channels. A read failure on a session the caller did not close
// is recorded as the terminal stream error.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Caller-initiated close; not a stream failure.
			default:
				s.errMu.Lock()
				s.readErr = fmt.Errorf("speechkit: stream read: %w", err)
				s.errMu.Unlock()
			}
			return
		}

		t, ok := s.parseResponse(msg)
		if !ok {
			continue
		}

		if t.IsFinal {
			select {
			case s.finals <- t:
			case <-s.done:
			}
		} else {
			select {
			case s.partials <- t:
			case <-s.done:
			}
		}
	}
}

// parseResponse parses a raw gateway message into a Transcript. Returns
// ok=false for messages that should be ignored (keepalives, empty results).
func (s *session) parseResponse(data []byte) (stt.Transcript, bool) {
	var resp recognitionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if len(resp.Result.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := resp.Result.Alternatives[0]
	if alt.Text == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{
		Text:       alt.Text,
		IsFinal:    resp.Result.Final,
		Confidence: alt.Confidence,
		Timestamp:  time.Since(s.started),
	}, true
}
