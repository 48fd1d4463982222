// Package audio provides the PCM framing layer shared by every stage of the
// voice pipeline: lossless conversion between the wire sample format (signed
// 16-bit little-endian PCM, mono) and the normalised floating-point
// representation used for level metering, plus the AudioFrame transport type.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedAudio is returned by Decode when the input byte length is not
// a multiple of the PCM16 sample size. Callers drop the offending frame and
// continue; a malformed frame is never fatal to a call.
var ErrMalformedAudio = errors.New("audio: malformed PCM16 data")

// Decode interprets b as little-endian signed 16-bit PCM and returns one
// normalised float per sample in the range [-1.0, 1.0].
//
// Negative samples are divided by 32768 and non-negative samples by 32767 so
// that both extremes of the int16 range map exactly to -1.0 and 1.0.
func Decode(b []byte) ([]float64, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d", ErrMalformedAudio, len(b))
	}
	n := len(b) / 2
	samples := make([]float64, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
		if s < 0 {
			samples[i] = float64(s) / 32768.0
		} else {
			samples[i] = float64(s) / 32767.0
		}
	}
	return samples, nil
}

// Encode converts normalised float samples back to little-endian PCM16
// bytes. Each sample is clamped to [-1.0, 1.0], scaled with the same
// asymmetric factors Decode uses, and rounded to the nearest integer.
//
// Encode is round-trip stable with Decode within one quantisation step.
func Encode(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(s * 32768.0))
		} else {
			v = int16(math.Round(s * 32767.0))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Level returns the mean absolute amplitude of samples, in [0.0, 1.0].
// It feeds UI-facing level meters only and never drives a control decision.
func Level(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(s)
	}
	return sum / float64(len(samples))
}

// ValidatePCM reports whether b is well-formed PCM16 without allocating.
// Equivalent to the framing check in Decode.
func ValidatePCM(b []byte) error {
	if len(b)%2 != 0 {
		return fmt.Errorf("%w: odd byte count %d", ErrMalformedAudio, len(b))
	}
	return nil
}
