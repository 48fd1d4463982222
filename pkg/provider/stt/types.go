package stt

import "time"

// Transcript represents a recognition result from an STT provider. Both
// partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the recognised speech content.
	Text string

	// IsFinal indicates whether this is an authoritative result. Only
	// final transcripts trigger dialogue invocation.
	IsFinal bool

	// Confidence is the provider's confidence score (0.0–1.0). Zero when
	// the provider does not report one.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session
	// start.
	Timestamp time.Duration
}
