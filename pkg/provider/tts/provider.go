// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service behind a uniform
// streaming interface. The entry point is SynthesizeStream, which accepts a
// channel of text fragments and returns a channel of raw PCM audio chunks
// as they become available, so playback can begin before synthesis of the
// whole utterance has finished.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel across calls.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel emitting raw PCM16 audio chunks in synthesis
	// order. The returned channel is closed by the implementation when all
	// text has been synthesised, when ctx is cancelled, or when the
	// backend fails mid-utterance. In the failure case the chunks already
	// emitted remain valid and the caller plays them out.
	//
	// The caller must drain the audio channel to avoid blocking the
	// provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
