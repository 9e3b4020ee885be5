// Package phonetic implements the [transcript.PhoneticMatcher] interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word in the input and for each lexicon term. If any code from the
//     input overlaps with any code from a term, the term becomes a phonetic
//     candidate.
//
//  2. Jaro-Winkler ranking: Among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity (computed on the original strings,
//     case-insensitive) is selected — provided its score exceeds the
//     configurable phonetic threshold.
//
//     When no phonetic candidate is found, a secondary pass tests pure
//     Jaro-Winkler similarity against all terms using a higher fuzzy
//     threshold (default 0.85).
//
// Multi-word terms (e.g., "pari louys") are supported: the matcher computes
// phonetic codes for each word and considers the best pairwise score across
// all word pairs when ranking candidates.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is a phonetic lexicon matcher. It implements
// [transcript.PhoneticMatcher]. All methods are safe for concurrent use — the
// Matcher is read-only after construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
// Default thresholds are 0.70 for phonetic matches and 0.85 for fuzzy
// fallback matches.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// preparedTerm holds the precomputed lowercase form, token list, and Double
// Metaphone code set for a single lexicon term.
type preparedTerm struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// Lexicon is a precomputed view of a term list. Preparing the lexicon once
// and reusing it across [Matcher.Lookup] calls avoids recomputing phonetic
// codes for every n-gram window of the transcript.
//
// A Lexicon is read-only after construction and safe for concurrent use.
type Lexicon struct {
	terms    []preparedTerm
	maxWords int
}

// Prepare computes phonetic codes and token lists for every term and returns
// a reusable [Lexicon]. Empty or whitespace-only terms are skipped.
func Prepare(terms []string) *Lexicon {
	lex := &Lexicon{terms: make([]preparedTerm, 0, len(terms))}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		if len(tokens) > lex.maxWords {
			lex.maxWords = len(tokens)
		}
		lex.terms = append(lex.terms, preparedTerm{
			original: t,
			lower:    lower,
			tokens:   tokens,
			codes:    codesForTokens(tokens),
		})
	}
	return lex
}

// MaxWords returns the maximum number of whitespace-separated words in any
// term of the lexicon. Returns 0 for an empty lexicon.
func (l *Lexicon) MaxWords() int {
	return l.maxWords
}

// Len returns the number of usable terms in the lexicon.
func (l *Lexicon) Len() int {
	return len(l.terms)
}

// Result describes the outcome of a [Matcher.Lookup] call.
type Result struct {
	// Term is the best-matching lexicon term. Equals the input word unchanged
	// when Matched is false.
	Term string

	// Score is the Jaro-Winkler similarity of the accepted match, or 0 when
	// Matched is false.
	Score float64

	// Matched reports whether a sufficiently similar term was found.
	Matched bool

	// NearMiss reports that at least one term shared a phonetic code with the
	// input but scored below the acceptance threshold. Near misses are good
	// candidates for a second-opinion LLM pass.
	NearMiss bool
}

// Match attempts to find the term from lexicon that is most phonetically
// similar to word. It satisfies the [transcript.PhoneticMatcher] contract;
// callers doing repeated lookups against the same term list should use
// [Prepare] and [Matcher.Lookup] instead.
func (m *Matcher) Match(word string, lexicon []string) (corrected string, confidence float64, matched bool) {
	r := m.Lookup(word, Prepare(lexicon))
	return r.Term, r.Score, r.Matched
}

// Lookup scores word against every term in lex and returns the best match.
//
// word may be a single word or a space-separated phrase (n-gram). When word
// contains multiple tokens, the matcher checks whether any token phonetically
// aligns with any token in a multi-word term, then ranks by Jaro-Winkler on
// the full strings.
func (m *Matcher) Lookup(word string, lex *Lexicon) Result {
	if lex == nil || lex.Len() == 0 || strings.TrimSpace(word) == "" {
		return Result{Term: word}
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}

	var best candidate
	nearMiss := false

	for _, t := range lex.terms {
		phoneticMatch := codesOverlap(inputCodes, t.codes)

		// Compute the best Jaro-Winkler score for this term using several
		// comparison strategies to handle multi-word mismatches robustly.
		jwScore := bestJWScore(wordTokens, t.tokens, wordLower, t.lower)

		if phoneticMatch {
			if jwScore >= m.phoneticThreshold {
				if !best.phonetic || jwScore > best.score {
					best = candidate{term: t.original, score: jwScore, phonetic: true}
				}
			} else {
				nearMiss = true
			}
		} else if !best.phonetic {
			if jwScore >= m.fuzzyThreshold && jwScore > best.score {
				best = candidate{term: t.original, score: jwScore, phonetic: false}
			}
		}
	}

	if best.term != "" {
		return Result{Term: best.term, Score: best.score, Matched: true}
	}
	return Result{Term: word, NearMiss: nearMiss}
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or
// contains no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	// Iterate over the smaller set for efficiency.
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and the term using three strategies:
//
//  1. Full-string comparison (e.g., "bar ev" vs "parev").
//  2. Space-stripped comparison (e.g., "bar ev" vs "parev").
//  3. Best pairwise word comparison — the maximum JW score between the input
//     and any term token. Only applied to single-token inputs: for multi-token
//     windows a single aligned token would otherwise dominate the score and
//     swallow neighbouring words.
//
// longTolerance is passed as false to use standard Jaro-Winkler scoring.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	// Strategy 1: full strings.
	score := matchr.JaroWinkler(inputFull, termFull, false)

	// Strategy 2: concatenated (no spaces).
	if len(inputTokens) > 1 || len(termTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	// Strategy 3: best pairwise token score, single-token inputs only.
	if len(inputTokens) == 1 {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(inputFull, tt, false); s > score {
				score = s
			}
		}
	}

	return score
}
