// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a real-time recognition service behind a narrow
// streaming contract. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio chunks and emits two streams of
// Transcript values: low-latency partials for UI feedback and
// authoritative finals that drive the dialogue bridge.
//
// Implementations must be safe for concurrent use. Audio input and
// transcript output channels are goroutine-safe by construction.
package stt

import "context"

// StreamConfig describes the audio format and recognition hints for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The duplex channel always
	// carries 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, which is what
	// every supported recogniser expects.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "ru-RU").
	// Empty lets the provider use its default.
	Language string

	// Model selects a provider-specific recognition model variant.
	Model string
}

// SessionHandle represents an open streaming recognition session. It is an
// interface so test code can substitute a mock without a live connection.
//
// Callers must call Close when the session is no longer needed; failing to
// do so leaks goroutines and the underlying network connection. All methods
// are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM16 audio to the recogniser.
	// It does not block on network I/O: chunks are staged on a bounded
	// internal queue. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting interim Transcript
	// values. Partials are advisory and superseded by the next event of
	// either kind. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative Transcript
	// values, one per utterance. Closed when the session ends.
	Finals() <-chan Transcript

	// Err reports why the session's transcript streams terminated. It
	// returns nil before the channels close and after a clean Close; a
	// non-nil error means the recogniser connection failed and the call
	// session must decide whether to end the call. The adapter itself
	// never retries.
	Err() error

	// Close signals end-of-audio, flushes pending input (the recogniser
	// may emit one last final), and releases all resources. Safe to call
	// more than once.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; one session is opened
// per active call and independent calls run in parallel.
type Provider interface {
	// StartStream opens a new streaming recognition session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns
	// the handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
