package resilience

import (
	"context"

	"github.com/hostline-ai/hostline/pkg/provider/stt"
	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

// STTChain implements [stt.Provider] with failover across transcription
// backends. Only stream setup is covered; once a session is open, mid-stream
// failures surface through the session's Err as usual.
type STTChain struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates an [STTChain] preferring primary.
func NewSTTChain(primaryName string, primary stt.Provider, breaker BreakerConfig) *STTChain {
	return &STTChain{chain: NewChain(primaryName, primary, breaker)}
}

// Add registers an additional transcription backend tried after the primary.
func (c *STTChain) Add(name string, p stt.Provider) {
	c.chain.Add(name, p)
}

// StartStream opens a transcription session on the first healthy backend.
func (c *STTChain) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Try(c.chain, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// TTSChain implements [tts.Provider] with failover across synthesis
// backends.
type TTSChain struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSChain)(nil)

// NewTTSChain creates a [TTSChain] preferring primary.
func NewTTSChain(primaryName string, primary tts.Provider, breaker BreakerConfig) *TTSChain {
	return &TTSChain{chain: NewChain(primaryName, primary, breaker)}
}

// Add registers an additional synthesis backend tried after the primary.
func (c *TTSChain) Add(name string, p tts.Provider) {
	c.chain.Add(name, p)
}

// SynthesizeStream starts synthesis on the first healthy backend. Chunks
// already emitted stay valid if the stream later dies; that contract is the
// backend's, not the chain's.
func (c *TTSChain) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	return Try(c.chain, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices queries the first healthy backend.
func (c *TTSChain) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return Try(c.chain, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
