package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hostline-ai/hostline/internal/dialogue"
	"github.com/hostline-ai/hostline/internal/observe"
	"github.com/hostline-ai/hostline/pkg/audio"
	"github.com/hostline-ai/hostline/pkg/audio/playback"
	"github.com/hostline-ai/hostline/pkg/provider/stt"
	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

// DefaultDrainTimeout bounds how long a graceful end waits for in-flight
// synthesis and playback before forcing termination.
const DefaultDrainTimeout = 30 * time.Second

// Duplex is the bidirectional channel to one caller. The server provides
// the websocket implementation; tests provide in-memory ones.
//
// Receive blocks for the next inbound message. Send methods must be safe
// for concurrent use; the session writes audio and events from independent
// goroutines.
type Duplex interface {
	Receive(ctx context.Context) (Inbound, error)
	SendAudio(ctx context.Context, pcm []byte) error
	SendEvent(ctx context.Context, ev ControlEvent) error
	Close() error
}

// forgetter is implemented by bridges that keep per-conversation state.
type forgetter interface {
	Forget(ref dialogue.ConversationRef)
}

// Session pumps one call: inbound audio into transcription, transcripts
// into the dialogue bridge, and synthesized replies back out through the
// playback sequencer. It owns every per-call resource and releases all of
// them on every exit path.
type Session struct {
	call    *Call
	duplex  Duplex
	sttProv stt.Provider
	ttsProv tts.Provider
	bridge  dialogue.Bridge
	logger  *slog.Logger
	metrics *observe.Metrics

	drainTimeout time.Duration
	maxQueued    int
	corrector    TranscriptCorrector

	mu          sync.Mutex
	sttSession  stt.SessionHandle
	sequencer   *playback.Sequencer
	cancel      context.CancelFunc
	stopInbound context.CancelFunc

	utterance atomic.Uint64
	audioMark atomic.Int64

	responses sync.WaitGroup
	endOnce   sync.Once
	termOnce  sync.Once
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithDrainTimeout overrides how long a graceful end waits for playback to
// drain.
func WithDrainTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// WithMaxQueuedSegments caps the playback queue. Zero keeps the sequencer
// default.
func WithMaxQueuedSegments(n int) SessionOption {
	return func(s *Session) { s.maxQueued = n }
}

// TranscriptCorrector rewrites a final transcript before it reaches the
// client and the dialogue bridge. Implemented by transcript.Corrector.
type TranscriptCorrector interface {
	Correct(text string) string
}

// WithTranscriptCorrector installs a corrector applied to final transcripts.
func WithTranscriptCorrector(c TranscriptCorrector) SessionOption {
	return func(s *Session) { s.corrector = c }
}

// NewSession binds a session to a registered call and its duplex channel.
// Fails with ErrCallClosed when the call already ended, or
// ErrDuplicateCall when another channel is attached.
func NewSession(c *Call, d Duplex, sttProv stt.Provider, ttsProv tts.Provider, bridge dialogue.Bridge, opts ...SessionOption) (*Session, error) {
	s := &Session{
		call:         c,
		duplex:       d,
		sttProv:      sttProv,
		ttsProv:      ttsProv,
		bridge:       bridge,
		drainTimeout: DefaultDrainTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("call_id", c.ID)
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if err := c.attach(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Run drives the call from connecting to its terminal state. It returns
// after all resources are released: the transcription stream, the
// sequencer and the duplex channel, in every exit path including failures
// during setup.
func (s *Session) Run(ctx context.Context) error {
	if err := s.call.transition(EventStart); err != nil {
		return ErrCallClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	defer s.teardown()

	handle, err := s.sttProv.StartStream(ctx, stt.StreamConfig{
		SampleRate: audio.WireSampleRate,
		Channels:   audio.WireChannels,
	})
	if err != nil {
		s.metrics.RecordProviderError(ctx, "stt", "start")
		return s.fail(ctx, fmt.Errorf("start transcription: %w", err))
	}

	seqOpts := []playback.Option{playback.WithOnIdle(func() {
		if s.call.State() == StateActive {
			_ = s.duplex.SendEvent(ctx, StatusEvent(StatusListening))
		}
	})}
	if s.maxQueued > 0 {
		seqOpts = append(seqOpts, playback.WithMaxQueued(s.maxQueued))
	}
	seq := playback.New(func(chunk []byte) {
		if err := s.duplex.SendAudio(ctx, chunk); err != nil {
			s.logger.Debug("outbound audio write failed", "error", err)
		}
	}, seqOpts...)

	s.mu.Lock()
	s.sttSession = handle
	s.sequencer = seq
	s.mu.Unlock()

	if err := s.call.transition(EventChannelOpen); err != nil {
		return ErrCallClosed
	}
	s.logger.Info("call active", "voice", s.call.Options.Voice.ID)
	_ = s.duplex.SendEvent(ctx, StatusEvent(StatusListening))

	if greeting := s.bridge.Greeting(); greeting != "" {
		s.responses.Add(1)
		go func() {
			defer s.responses.Done()
			s.deliver(ctx, greeting, time.Now())
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	inCtx, stopInbound := context.WithCancel(gctx)
	s.mu.Lock()
	s.stopInbound = stopInbound
	s.mu.Unlock()

	g.Go(func() error { return s.inboundLoop(inCtx, gctx) })
	g.Go(func() error { return s.outboundLoop(gctx, ctx) })
	err = g.Wait()

	switch state := s.call.State(); {
	case state == StateEnded:
		// Forced termination; the sequencer was already flushed.
		err = nil

	case state == StateEnding:
		s.finishGracefully(ctx, seq)
		err = nil

	case err != nil:
		if terr := s.call.transition(EventFail); terr == nil {
			s.logger.Error("call failed", "error", err)
			_ = s.duplex.SendEvent(ctx, ErrorEvent(err.Error()))
			_ = s.call.transition(EventDrained)
		}
		seq.Flush()

	default:
		// Transcript streams closed cleanly without an end request.
		if s.call.transition(EventEndRequest) == nil {
			s.finishGracefully(ctx, seq)
		}
	}

	return err
}

// finishGracefully lets in-flight responses and playback drain, then moves
// the call to its terminal state.
func (s *Session) finishGracefully(ctx context.Context, seq *playback.Sequencer) {
	drainCtx, done := context.WithTimeout(ctx, s.drainTimeout)
	defer done()

	s.awaitResponses(drainCtx)
	if err := seq.Drain(drainCtx); err != nil {
		s.logger.Warn("playback drain timed out", "error", err)
		seq.Flush()
	}
	_ = s.call.transition(EventDrained)
	s.logger.Info("call ended", "duration", s.call.Duration())
}

// teardown releases every per-call resource. Safe to call once from Run's
// defer; individual resources may already be closed.
func (s *Session) teardown() {
	s.mu.Lock()
	handle, seq := s.sttSession, s.sequencer
	s.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
	if seq != nil {
		_ = seq.Close()
	}
	_ = s.duplex.Close()
	if f, ok := s.bridge.(forgetter); ok {
		f.Forget(dialogue.ConversationRef(s.call.ID))
	}
	if s.call.State() != StateEnded {
		_ = s.call.transition(EventTerminate)
	}
}

// fail surfaces a connection-level failure and moves the call to its
// terminal state.
func (s *Session) fail(ctx context.Context, err error) error {
	if terr := s.call.transition(EventFail); terr == nil {
		s.logger.Error("call failed", "error", err)
		_ = s.duplex.SendEvent(ctx, ErrorEvent(err.Error()))
		_ = s.call.transition(EventDrained)
	}
	return err
}

// inboundLoop reads caller messages until the channel closes or the call
// leaves the active state. Malformed audio frames are dropped and counted,
// never fatal.
func (s *Session) inboundLoop(inCtx, ctx context.Context) error {
	for {
		in, err := s.duplex.Receive(inCtx)
		if err != nil {
			if st := s.call.State(); st == StateEnding || st == StateEnded {
				return nil
			}
			return fmt.Errorf("duplex channel: %w", err)
		}

		if in.Audio != nil {
			switch err := s.Feed(in.Audio); {
			case err == nil:
			case errors.Is(err, audio.ErrMalformedAudio):
				s.metrics.RecordMalformedFrame(ctx)
				s.logger.Debug("dropped malformed audio frame", "bytes", len(in.Audio))
			case errors.Is(err, ErrCallClosed):
				return nil
			default:
				return err
			}
			continue
		}

		switch in.Control {
		case ControlEndCall:
			s.End()
			return nil
		case ControlPing:
			_ = s.duplex.SendEvent(ctx, PongEvent())
		default:
			s.logger.Debug("ignoring unknown control event", "type", in.Control)
		}
	}
}

// outboundLoop forwards transcript events to the client and fires the
// dialogue bridge on finals. It exits when both transcript streams close;
// a terminal stream error is fatal to the call.
//
// Responses run on respCtx, the session context, rather than the loop
// context: the loops stop the moment an end is requested, but in-flight
// generation and synthesis must survive until the graceful drain finishes.
func (s *Session) outboundLoop(ctx, respCtx context.Context) error {
	s.mu.Lock()
	handle := s.sttSession
	s.mu.Unlock()

	partials, finals := handle.Partials(), handle.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.metrics.RecordTranscript(ctx, false)
			_ = s.duplex.SendEvent(ctx, TranscriptionEvent(t.Text, false))

		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			s.metrics.RecordTranscript(ctx, true)
			if mark := s.audioMark.Swap(0); mark != 0 {
				s.metrics.STTDuration.Record(ctx, time.Since(time.Unix(0, mark)).Seconds())
			}
			text := t.Text
			if s.corrector != nil {
				text = s.corrector.Correct(text)
			}
			_ = s.duplex.SendEvent(ctx, TranscriptionEvent(text, true))
			_ = s.duplex.SendEvent(ctx, StatusEvent(StatusProcessing))
			s.respond(respCtx, text)
		}
	}

	if err := handle.Err(); err != nil {
		s.metrics.RecordProviderError(ctx, "stt", "stream")
		return fmt.Errorf("transcription stream failed: %w", err)
	}
	return nil
}

// Feed pushes one caller audio frame into transcription. Returns
// ErrCallClosed once the call stops accepting inbound audio, or
// audio.ErrMalformedAudio for frames that fail PCM validation.
func (s *Session) Feed(frame []byte) error {
	switch s.call.State() {
	case StateEnding, StateError, StateEnded:
		return ErrCallClosed
	}
	if err := audio.ValidatePCM(frame); err != nil {
		return err
	}
	s.audioMark.CompareAndSwap(0, time.Now().UnixNano())

	s.mu.Lock()
	handle := s.sttSession
	s.mu.Unlock()
	if handle == nil {
		return ErrCallClosed
	}
	if err := handle.SendAudio(frame); err != nil {
		return fmt.Errorf("feed transcription: %w", err)
	}
	return nil
}

// respond generates and speaks the reply to one final transcript. It is
// fire-and-forget relative to the loops: inbound audio keeps flowing while
// the response is generated, and overlapping responses are permitted.
func (s *Session) respond(ctx context.Context, text string) {
	start := time.Now()
	s.responses.Add(1)
	go func() {
		defer s.responses.Done()

		reply, err := s.bridge.Respond(ctx, dialogue.ConversationRef(s.call.ID), text)
		s.metrics.DialogueDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.RecordProviderError(ctx, "dialogue", "respond")
			s.logger.Error("dialogue failed", "error", err)
			_ = s.duplex.SendEvent(ctx, ErrorEvent("failed to generate a response"))
			return
		}
		s.metrics.RecordAgentResponse(ctx)
		s.deliver(ctx, reply, start)
	}()
}

// deliver emits the agent_response event and then synthesizes the reply
// sentence by sentence, so playback of the first sentence starts while the
// rest is still being synthesized. A synthesis failure affects only this
// reply; the call continues.
func (s *Session) deliver(ctx context.Context, reply string, start time.Time) {
	_ = s.duplex.SendEvent(ctx, AgentResponseEvent(reply))
	_ = s.duplex.SendEvent(ctx, StatusEvent(StatusSpeaking))

	for i, sentence := range splitSentences(reply) {
		if err := s.Speak(ctx, sentence); err != nil {
			if errors.Is(err, ErrCallClosed) || ctx.Err() != nil {
				return
			}
			s.logger.Error("synthesis failed", "error", err)
			_ = s.duplex.SendEvent(ctx, ErrorEvent("failed to voice the response"))
			return
		}
		if i == 0 {
			s.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
		}
	}
}

// Speak synthesizes one utterance and queues it for ordered playback.
// Returns ErrCallClosed on a terminal call; a queue overflow wraps
// playback.ErrBackpressure.
func (s *Session) Speak(ctx context.Context, text string) error {
	if s.call.State() == StateEnded {
		return ErrCallClosed
	}
	s.mu.Lock()
	seq := s.sequencer
	s.mu.Unlock()
	if seq == nil {
		return ErrCallClosed
	}

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	start := time.Now()
	audioCh, err := s.ttsProv.SynthesizeStream(ctx, textCh, s.call.Options.Voice)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return fmt.Errorf("synthesize utterance: %w", err)
	}
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())

	seg := &playback.Segment{Utterance: s.utterance.Add(1), Audio: audioCh}
	if err := seq.Enqueue(seg); err != nil {
		go audio.Drain(audioCh)
		if errors.Is(err, playback.ErrSequencerClosed) {
			return ErrCallClosed
		}
		s.metrics.RecordDroppedSegment(ctx)
		return fmt.Errorf("enqueue playback segment: %w", err)
	}
	return nil
}

// End requests a graceful end: inbound audio stops, the transcription
// stream is flushed and closed, and in-flight synthesis and playback drain
// before the call reaches its terminal state.
func (s *Session) End() {
	s.endOnce.Do(func() {
		if err := s.call.transition(EventEndRequest); err != nil {
			s.Terminate()
			return
		}
		s.logger.Info("call ending")

		s.mu.Lock()
		stop, handle := s.stopInbound, s.sttSession
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if handle != nil {
			_ = handle.Close()
		}
	})
}

// Terminate forces the call to its terminal state immediately, discarding
// queued playback. Idempotent.
func (s *Session) Terminate() {
	s.termOnce.Do(func() {
		_ = s.call.transition(EventTerminate)
		s.logger.Info("call terminated")

		s.mu.Lock()
		seq, cancel := s.sequencer, s.cancel
		s.mu.Unlock()
		if seq != nil {
			seq.Flush()
		}
		if cancel != nil {
			cancel()
		}
	})
}

// awaitResponses blocks until all fire-and-forget response goroutines
// finish or ctx expires.
func (s *Session) awaitResponses(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.responses.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// splitSentences breaks a reply on sentence boundaries so each sentence
// becomes its own playback segment.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		switch r {
		case '.', '!', '?', '…':
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}
