package tts

// VoiceProfile describes a synthesis voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "alena").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP-47 language tag of the voice.
	Language string

	// Speed adjusts the speaking rate (0.1–3.0, 1.0 = default).
	Speed float64

	// Metadata holds provider-specific voice attributes (gender, role).
	Metadata map[string]string
}
