// Package llmcorrect implements a language-model-based transcript correction
// stage that resolves Armenian vocabulary mishearings not caught by the
// phonetic matcher.
//
// The [Corrector] sends the raw transcript text to an [llm.Provider] along
// with the known lexicon of romanized Western Armenian terms. The model is
// instructed (via a conservative system prompt) to fix only words that look
// like misheard Armenian vocabulary and to return a structured JSON response
// containing the corrected text and an itemised list of substitutions.
//
// This stage runs exclusively in the background — never on the real-time
// voice path — so the small latency penalty (100–200 ms) is acceptable.
// When the LLM response cannot be parsed, the corrector returns the original
// text unchanged rather than surfacing an error, ensuring pipeline
// robustness.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hagop-ai/hagopai/pkg/provider/llm"
	"github.com/hagop-ai/hagopai/pkg/types"
)

const (
	defaultTemperature = 0.1
)

// systemPromptTemplate is the base system prompt. The lexicon is appended at
// call time so each request carries the current lesson vocabulary.
const systemPromptTemplate = `You are a transcript correction assistant for a Western Armenian language-learning voice chat.

The learner speaks transliterated (romanized) Western Armenian mixed with English. The speech recognizer uses an English acoustic model, so Armenian words are often transcribed as similar-sounding English words.

Your task: restore misheard Armenian vocabulary in the provided transcript text.

Rules:
- ONLY correct words that appear to be mishearings of the known Armenian terms listed below.
- Do NOT change ordinary English words, grammar, punctuation, or sentence structure.
- Be conservative — if you are not confident a word is a misheard Armenian term, leave it unchanged.
- Corrected terms must match the romanized spelling from the vocabulary list exactly.

Known vocabulary:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected transcript>",
  "corrections": [
    {"original": "<original word>", "corrected": "<corrected word>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction captures a single word-level substitution produced by the LLM
// corrector. The pipeline maps these to [transcript.Correction] values with
// Method set to "llm".
type Correction struct {
	// Original is the word as it appeared in the input transcript.
	Original string

	// Corrected is the replacement term suggested by the LLM.
	Corrected string

	// Confidence is the LLM's reported confidence for this substitution (0.0–1.0).
	Confidence float64
}

// llmResponse is the expected JSON structure returned by the LLM.
type llmResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Lower values produce
// more deterministic corrections. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector uses an [llm.Provider] to restore misheard Armenian vocabulary in
// transcript text. It is safe for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: to use a
// specific model for correction, construct the [llm.Provider] with that
// model configured, rather than overriding per-request.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a new [Corrector] backed by the given [llm.Provider].
// Apply [Option] values to override the default temperature.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct sends text to the LLM with the lexicon as context and asks it to
// restore misheard Armenian vocabulary. uncertainSpans are highlighted in the
// user message as candidate spans that may be misheard.
//
// Every change the model makes is cross-checked against its own reported
// corrections list; undeclared edits are reverted so the model cannot
// silently rewrite the learner's words.
//
// When the LLM response is unparseable, Correct returns the original text
// unchanged with a nil corrections slice and a nil error (graceful
// degradation — the pipeline must continue).
//
// Context cancellation and network errors are returned as non-nil errors.
func (c *Corrector) Correct(
	ctx context.Context,
	text string,
	lexicon []string,
	uncertainSpans []string,
) (string, []Correction, error) {
	if len(lexicon) == 0 {
		return text, nil, nil
	}

	sysPrompt := buildSystemPrompt(lexicon)

	userMsg := text
	if len(uncertainSpans) > 0 {
		userMsg = fmt.Sprintf(
			"Transcript: %s\n\nUncertain spans that may be misheard Armenian: %s",
			text,
			strings.Join(uncertainSpans, ", "),
		)
	}

	req := llm.CompletionRequest{
		SystemPrompt: sysPrompt,
		Temperature:  c.temperature,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: userMsg},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return text, nil, fmt.Errorf("llm corrector: complete: %w", err)
	}

	corrected, corrections, parseErr := parseResponse(resp.Content, text)
	if parseErr != nil {
		// Unparseable response: return original unchanged, no error.
		return text, nil, nil //nolint:nilerr // intentional graceful fallback
	}

	verifiedText, verified := verifyCorrectedText(text, corrected, corrections)
	return verifiedText, verified, nil
}

// buildSystemPrompt formats the system prompt template with the lexicon.
func buildSystemPrompt(lexicon []string) string {
	var sb strings.Builder
	for _, term := range lexicon {
		sb.WriteString("- ")
		sb.WriteString(term)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse attempts to unmarshal the LLM output into an [llmResponse].
// It strips markdown code fences before parsing.
func parseResponse(content, originalText string) (string, []Correction, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return "", nil, fmt.Errorf("llm corrector: parse response: %w", err)
	}

	if r.CorrectedText == "" {
		return originalText, nil, nil
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == c.Corrected || c.Original == "" {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}

	return r.CorrectedText, corrections, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
