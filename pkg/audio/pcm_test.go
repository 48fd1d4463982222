package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/hostline-ai/hostline/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestDecode_Extremes(t *testing.T) {
	b := samplesToBytes([]int16{-32768, 0, 32767})
	got, err := audio.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []float64{-1.0, 0.0, 1.0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecode_OddLength(t *testing.T) {
	_, err := audio.Decode([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, audio.ErrMalformedAudio) {
		t.Fatalf("err = %v, want ErrMalformedAudio", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	got, err := audio.Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d samples, want 0", len(got))
	}
}

func TestEncode_Clamping(t *testing.T) {
	b := audio.Encode([]float64{2.5, -3.0})
	if v := int16(binary.LittleEndian.Uint16(b)); v != 32767 {
		t.Errorf("over-range sample = %d, want 32767", v)
	}
	if v := int16(binary.LittleEndian.Uint16(b[2:])); v != -32768 {
		t.Errorf("under-range sample = %d, want -32768", v)
	}
}

func TestRoundTrip_WithinOneQuantisationStep(t *testing.T) {
	src := make([]int16, 0, 2048)
	for v := -32768; v <= 32767; v += 37 {
		src = append(src, int16(v))
	}
	samples, err := audio.Decode(samplesToBytes(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	back := audio.Encode(samples)
	for i, want := range src {
		got := int16(binary.LittleEndian.Uint16(back[i*2:]))
		if d := int32(got) - int32(want); d > 1 || d < -1 {
			t.Fatalf("sample %d: got %d, want %d (off by %d)", i, got, want, d)
		}
	}
}

func TestRoundTrip_FloatStability(t *testing.T) {
	// decode(encode(s)) must differ from s by no more than one
	// quantisation step per sample.
	src := []float64{-1.0, -0.5, -0.001, 0.0, 0.001, 0.5, 0.999, 1.0}
	decoded, err := audio.Decode(audio.Encode(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	const step = 1.0 / 32767.0
	for i := range src {
		if diff := math.Abs(decoded[i] - src[i]); diff > step {
			t.Errorf("sample %d: drift %v exceeds one step %v", i, diff, step)
		}
	}
}

func TestLevel(t *testing.T) {
	if got := audio.Level(nil); got != 0 {
		t.Errorf("Level(nil) = %v, want 0", got)
	}
	if got := audio.Level([]float64{0.5, -0.5}); got != 0.5 {
		t.Errorf("Level = %v, want 0.5", got)
	}
	if got := audio.Level([]float64{1.0, -1.0, 1.0, -1.0}); got != 1.0 {
		t.Errorf("Level = %v, want 1.0", got)
	}
}

func TestValidatePCM(t *testing.T) {
	if err := audio.ValidatePCM(make([]byte, 4096)); err != nil {
		t.Errorf("even length: %v", err)
	}
	if err := audio.ValidatePCM(make([]byte, 7)); !errors.Is(err, audio.ErrMalformedAudio) {
		t.Errorf("odd length err = %v, want ErrMalformedAudio", err)
	}
}
