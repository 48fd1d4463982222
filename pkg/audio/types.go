package audio

import "time"

// WireSampleRate is the fixed sample rate of the duplex channel: PCM16
// little-endian mono at 16 kHz, the format the browser capture loop and
// both speech providers agree on.
const WireSampleRate = 16000

// WireChannels is the channel count on the wire. The pipeline is mono
// end to end.
const WireChannels = 1

// AudioFrame represents one chunk of audio flowing through the pipeline,
// either captured from the browser or synthesised for playback. Frames are
// immutable after creation and discarded once the next stage consumed them.
type AudioFrame struct {
	// Data is raw little-endian PCM16 audio.
	Data []byte

	// SampleRate in Hz. Always WireSampleRate on the duplex channel.
	SampleRate int

	// Channels is the channel count. Always 1 on the duplex channel.
	Channels int

	// Seq is a per-direction monotonic sequence number. It exists for
	// ordering assertions in tests and logs, not for retransmission.
	Seq uint64

	// Timestamp marks when this frame was captured or synthesised,
	// relative to call start.
	Timestamp time.Duration
}

// Samples returns the number of PCM16 samples in the frame.
func (f AudioFrame) Samples() int { return len(f.Data) / 2 }
