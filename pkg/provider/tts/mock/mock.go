// Package mock provides test doubles for the tts package interfaces.
//
// The mock Provider consumes the full text channel per synthesis call and
// emits a configurable set of PCM chunks, optionally failing at stream
// start or part-way through an utterance.
package mock

import (
	"context"
	"sync"

	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

// SynthesizeCall records one invocation of Provider.SynthesizeStream.
type SynthesizeCall struct {
	// Text is the concatenation of all fragments read from the text channel.
	Text string
	// Voice is the profile passed to SynthesizeStream.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are the PCM chunks emitted for every synthesis call. When
	// nil, a single 4-byte chunk is emitted.
	Chunks [][]byte

	// StartErr, if non-nil, is returned from SynthesizeStream before any
	// audio is produced (SynthesisFailure at stream start).
	StartErr error

	// FailAfter, when > 0, closes the audio channel after that many
	// chunks, simulating a mid-utterance backend failure.
	FailAfter int

	// EchoText, when set, ignores Chunks and emits one chunk containing
	// the synthesised text bytes, so tests can correlate outbound audio
	// with the utterance that produced it.
	EchoText bool

	// Voices is returned from ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned from ListVoices.
	ListVoicesErr error

	// Calls records every synthesis invocation in order.
	Calls []SynthesizeCall

	// Release, when non-nil, gates chunk emission: the mock waits for one
	// receive on Release before emitting each chunk. Used to test
	// ordering under slow synthesis.
	Release chan struct{}
}

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream drains the text channel, records the call, and streams
// the configured chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	startErr := p.StartErr
	chunks := p.Chunks
	failAfter := p.FailAfter
	release := p.Release
	echo := p.EchoText
	p.mu.Unlock()

	if startErr != nil {
		// Drain text so the producer goroutine does not leak.
		go func() {
			for range text {
			}
		}()
		return nil, startErr
	}
	if chunks == nil {
		chunks = [][]byte{{0, 0, 0, 0}}
	}

	audio := make(chan []byte, len(chunks))
	go func() {
		defer close(audio)

		var full string
		for fragment := range text {
			full += fragment
		}
		p.mu.Lock()
		p.Calls = append(p.Calls, SynthesizeCall{Text: full, Voice: voice})
		p.mu.Unlock()

		if echo {
			chunks = [][]byte{[]byte(full)}
		}
		for i, c := range chunks {
			if failAfter > 0 && i >= failAfter {
				return // mid-utterance failure: channel closes early
			}
			if release != nil {
				select {
				case <-release:
				case <-ctx.Done():
					return
				}
			}
			select {
			case audio <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return audio, nil
}

// ListVoices returns the configured voice list.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	out := make([]tts.VoiceProfile, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// CallTexts returns the synthesised texts in invocation order.
func (p *Provider) CallTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}
