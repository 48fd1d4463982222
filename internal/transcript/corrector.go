// Package transcript post-processes recogniser output before it reaches the
// dialogue layer. Speech recognition reliably mangles proper nouns and menu
// vocabulary ("гаспрономия" for "Гастрономия"); the [Corrector] snaps such
// near-misses back to the canonical term so the agent and the persisted
// history see clean text.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the minimum Jaro-Winkler similarity for a token to be
// rewritten. Tuned conservatively: rewriting a word the caller actually said
// is worse than leaving a recognition error in place.
const DefaultThreshold = 0.92

// Option configures a Corrector.
type Option func(*Corrector)

// WithThreshold overrides the similarity threshold (0 < t <= 1).
func WithThreshold(t float64) Option {
	return func(c *Corrector) {
		if t > 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// Corrector rewrites near-miss tokens in a transcript to canonical
// vocabulary terms. Tokens are folded phonetically first (case, ё/е and
// the шч spelling of щ), then matched by Jaro-Winkler similarity, which
// behaves well for the Cyrillic single-word swaps SpeechKit tends to
// produce. Multi-word terms are matched against token windows of the
// same width.
//
// Corrector is immutable after construction and safe for concurrent use.
type Corrector struct {
	terms     []vocabTerm
	threshold float64
	maxWords  int
}

type vocabTerm struct {
	canonical string
	folded    string
	words     int
}

// NewCorrector builds a Corrector over the given vocabulary. Terms keep
// their casing in the output; matching is case-insensitive. Empty terms are
// skipped.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{threshold: DefaultThreshold, maxWords: 1}
	for _, term := range vocabulary {
		canonical := strings.TrimSpace(term)
		if canonical == "" {
			continue
		}
		folded := foldPhonetic(canonical)
		words := len(strings.Fields(folded))
		if words > c.maxWords {
			c.maxWords = words
		}
		c.terms = append(c.terms, vocabTerm{canonical: canonical, folded: folded, words: words})
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct returns text with near-miss vocabulary tokens replaced. Tokens
// that already equal a term (ignoring case) are rewritten to the canonical
// casing. Punctuation attached to a token survives the rewrite.
func (c *Corrector) Correct(text string) string {
	if len(c.terms) == 0 || text == "" {
		return text
	}
	tokens := strings.Fields(text)
	out := make([]string, len(tokens))
	copy(out, tokens)

	for width := c.maxWords; width >= 1; width-- {
		for i := 0; i+width <= len(tokens); i++ {
			window := strings.Join(tokens[i:i+width], " ")
			core, prefix, suffix := trimPunct(window)
			if core == "" {
				continue
			}
			if replacement, ok := c.match(core, width); ok {
				out[i] = prefix + replacement + suffix
				for j := i + 1; j < i+width; j++ {
					out[j] = ""
				}
				i += width - 1
			}
		}
	}

	result := make([]string, 0, len(out))
	for _, tok := range out {
		if tok != "" {
			result = append(result, tok)
		}
	}
	return strings.Join(result, " ")
}

// match finds the best vocabulary term of the given word count for input.
func (c *Corrector) match(input string, words int) (string, bool) {
	folded := foldPhonetic(input)
	var (
		best      string
		bestScore float64
	)
	for _, term := range c.terms {
		if term.words != words {
			continue
		}
		if term.folded == folded {
			return term.canonical, true
		}
		score := matchr.JaroWinkler(folded, term.folded, false)
		if score >= c.threshold && score > bestScore {
			best = term.canonical
			bestScore = score
		}
	}
	return best, best != ""
}

// phoneticFolds maps Cyrillic spellings the recogniser conflates onto one
// form. шч is the historical spelling of щ and is what SpeechKit emits
// when it misses the single letter; ё is routinely transcribed as е.
var phoneticFolds = strings.NewReplacer("шч", "щ", "ё", "е")

// foldPhonetic lowercases a token and collapses phonetically equivalent
// spellings so that near-misses like "боршч" compare equal to "борщ".
func foldPhonetic(s string) string {
	return phoneticFolds.Replace(strings.ToLower(s))
}

// trimPunct splits leading and trailing punctuation off a token so the
// rewrite preserves it.
func trimPunct(tok string) (core, prefix, suffix string) {
	const punct = ".,!?…:;«»\"'()"
	left := strings.TrimLeft(tok, punct)
	prefix = tok[:len(tok)-len(left)]
	core = strings.TrimRight(left, punct)
	suffix = left[len(core):]
	return core, prefix, suffix
}
