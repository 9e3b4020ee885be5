// Package transcript defines the transcript correction pipeline used by
// HagopAI to fix recognition errors in romanized Western Armenian vocabulary.
//
// The speech recognizer runs against an English acoustic model, so
// transliterated Armenian words are frequently misheard — "parev" comes back
// as "bear of", "shnorhagal em" as "sorry girl am", and so on. The [Pipeline]
// applies a two-stage correction strategy to final transcripts before they
// reach the conversation layer:
//
//  1. Phonetic matching ([PhoneticMatcher]): fast, dictionary-based alignment
//     of misheard tokens against the known Armenian lexicon using
//     pronunciation similarity. Runs in-process with no network calls.
//
//  2. LLM-assisted correction: a language model resolves spans the phonetic
//     stage flagged as uncertain, using the full lexicon as context. Leaves
//     the text unchanged when it is not confident.
//
// Each [Correction] records which method produced the substitution and its
// confidence, so callers can audit, display, or selectively roll back changes.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/hagop-ai/hagopai/pkg/types"
)

// Correction captures a single word-level substitution made by the pipeline.
type Correction struct {
	// Original is the word (or phrase) as produced by the recognizer.
	Original string

	// Corrected is the lexicon term selected by the pipeline.
	Corrected string

	// Confidence is the pipeline's confidence in this substitution (0.0–1.0).
	// Values above 0.9 are considered high-confidence; values below 0.5
	// indicate the correction is speculative.
	Confidence float64

	// Method describes which correction stage produced this substitution.
	// Well-known values:
	//   "phonetic" — produced by a [PhoneticMatcher].
	//   "llm"      — produced by a language-model correction pass.
	Method string
}

// CorrectedTranscript is the output of a [Pipeline.Correct] call.
// It pairs the original [types.Transcript] with the fully corrected text and
// an itemised record of every substitution that was applied.
type CorrectedTranscript struct {
	// Original is the raw [types.Transcript] as received from the recognizer.
	Original types.Transcript

	// Corrected is the full corrected transcript text with all substitutions
	// applied. Suitable for downstream processing (conversation history, LLM
	// context).
	Corrected string

	// Corrections is the ordered list of word-level substitutions applied to
	// produce Corrected. An empty (non-nil) slice means no corrections were
	// necessary.
	Corrections []Correction
}

// Pipeline applies multi-stage corrections to a raw [types.Transcript],
// resolving recognition errors for transliterated Armenian vocabulary.
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes transcript using the provided lexicon and returns a
	// [CorrectedTranscript] containing the corrected text and an itemised
	// record of every substitution made.
	//
	// lexicon is the list of romanized Armenian terms the pipeline should
	// recognise within the transcript text. Terms may be single words
	// ("parev") or multi-word phrases ("pari louys").
	//
	// Returns a non-nil *CorrectedTranscript on success.
	// When no corrections are needed, Corrected equals transcript.Text and
	// Corrections is an empty (non-nil) slice.
	Correct(ctx context.Context, transcript types.Transcript, lexicon []string) (*CorrectedTranscript, error)
}

// PhoneticMatcher resolves a single word or phrase to a known lexicon term
// based on pronunciation similarity. It is the first stage of the correction
// pipeline and is designed to be fast enough for real-time use — no network
// calls, no LLM round-trips.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the term from lexicon that is most phonetically
	// similar to word.
	//
	// Return values:
	//   corrected  — the best-matching term from lexicon.
	//   confidence — similarity score in [0.0, 1.0] where 1.0 is a perfect match.
	//   matched    — true when a sufficiently similar term was found.
	//
	// When matched is false, corrected must equal word unchanged and confidence
	// must be 0. Implementations define their own similarity threshold for
	// deciding when a match is "sufficient".
	Match(word string, lexicon []string) (corrected string, confidence float64, matched bool)
}
