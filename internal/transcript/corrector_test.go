package transcript_test

import (
	"testing"

	"github.com/hostline-ai/hostline/internal/transcript"
)

var vocabulary = []string{"Гастрономия", "борщ", "столик у окна"}

func TestCorrect_ExactMatchKeepsCanonicalCasing(t *testing.T) {
	t.Parallel()
	c := transcript.NewCorrector(vocabulary)

	got := c.Correct("ресторан гастрономия слушает")
	want := "ресторан Гастрономия слушает"
	if got != want {
		t.Errorf("Correct() = %q, want %q", got, want)
	}
}

func TestCorrect_NearMissSnapsToTerm(t *testing.T) {
	t.Parallel()
	c := transcript.NewCorrector(vocabulary)

	got := c.Correct("это гастрономея?")
	want := "это Гастрономия?"
	if got != want {
		t.Errorf("Correct() = %q, want %q", got, want)
	}
}

func TestCorrect_PreservesPunctuation(t *testing.T) {
	t.Parallel()
	c := transcript.NewCorrector(vocabulary)

	got := c.Correct("хочу боршч.")
	want := "хочу борщ."
	if got != want {
		t.Errorf("Correct() = %q, want %q", got, want)
	}
}

func TestCorrect_PhoneticSpellings(t *testing.T) {
	t.Parallel()
	c := transcript.NewCorrector([]string{"борщ", "свёкла"})

	cases := []struct{ in, want string }{
		{"один боршч", "один борщ"},   // шч spelling of щ
		{"свекла есть?", "свёкла есть?"}, // ё transcribed as е
	}
	for _, tc := range cases {
		if got := c.Correct(tc.in); got != tc.want {
			t.Errorf("Correct(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCorrect_MultiWordTerm(t *testing.T) {
	t.Parallel()
	c := transcript.NewCorrector(vocabulary)

	got := c.Correct("можно столик у окна пожалуйста")
	want := "можно столик у окна пожалуйста"
	if got != want {
		t.Errorf("Correct() = %q, want %q", got, want)
	}
}

func TestCorrect_UnrelatedTextUntouched(t *testing.T) {
	t.Parallel()
	c := transcript.NewCorrector(vocabulary)

	in := "добрый день, хочу забронировать на вечер"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
}

func TestCorrect_EmptyVocabularyIsIdentity(t *testing.T) {
	t.Parallel()
	c := transcript.NewCorrector(nil)

	in := "любой текст"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want %q", got, in)
	}
}

func TestCorrect_ThresholdBlocksLooseMatches(t *testing.T) {
	t.Parallel()
	// A threshold of 1.0 only allows exact (case-insensitive) matches.
	c := transcript.NewCorrector(vocabulary, transcript.WithThreshold(1.0))

	in := "это гастрономея?"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
}
