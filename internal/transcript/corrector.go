package transcript

import (
	"context"
	"strings"

	"github.com/hagop-ai/hagopai/internal/transcript/llmcorrect"
	"github.com/hagop-ai/hagopai/internal/transcript/phonetic"
	"github.com/hagop-ai/hagopai/pkg/types"
)

// PipelineOption is a functional option for configuring a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the first correction
// stage. When nil (the default), the phonetic stage is skipped entirely.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// WithLLMCorrector attaches an [llmcorrect.Corrector] as the second correction
// stage. When nil (the default), the LLM stage is skipped entirely.
func WithLLMCorrector(c *llmcorrect.Corrector) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmCorrector = c
	}
}

// CorrectionPipeline is the two-stage transcript correction implementation of
// [Pipeline]. Stages are optional and are applied in order:
//
//  1. [PhoneticMatcher] — fast, in-process phonetic lexicon alignment.
//  2. [llmcorrect.Corrector] — LLM-assisted correction for spans the phonetic
//     stage flagged as uncertain.
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic     PhoneticMatcher
	llmCorrector *llmcorrect.Corrector
}

// Ensure CorrectionPipeline satisfies the Pipeline interface at compile time.
var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline constructs a [CorrectionPipeline] with the supplied options.
// By default both stages are disabled (nil); use [WithPhoneticMatcher] and
// [WithLLMCorrector] to activate them.
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct applies the configured correction stages to transcript and returns a
// [CorrectedTranscript].
//
// Pipeline flow:
//  1. The transcript text is tokenised into whitespace-separated word tokens.
//  2. When a [PhoneticMatcher] is configured, every single-word token is tested
//     against the lexicon. Additionally, n-gram windows (up to the maximum
//     term word count) are tested to match multi-word terms like "pari louys".
//  3. Windows that shared a phonetic code with some term but scored below the
//     acceptance threshold are collected as uncertain spans.
//  4. When an [llmcorrect.Corrector] is configured and at least one uncertain
//     span exists (or the matcher provides no uncertainty information), the
//     LLM corrector is invoked on the phonetic-corrected text.
//  5. Phonetic and LLM corrections are merged into the final
//     [CorrectedTranscript].
//
// Context cancellation is respected: if ctx is Done before the LLM stage
// completes, an error is returned.
func (p *CorrectionPipeline) Correct(
	ctx context.Context,
	t types.Transcript,
	lexicon []string,
) (*CorrectedTranscript, error) {
	result := &CorrectedTranscript{
		Original:    t,
		Corrections: []Correction{},
	}

	// --- Stage 1: phonetic matching ---
	workingText := t.Text
	var phoneticCorrections []Correction
	var uncertain []string
	haveUncertainty := false

	if p.phonetic != nil && len(lexicon) > 0 {
		correctedText, corrections, near, detailed := p.applyPhonetic(t.Text, lexicon)
		workingText = correctedText
		phoneticCorrections = corrections
		uncertain = near
		haveUncertainty = detailed
	}

	// --- Stage 2: LLM correction ---
	var llmCorrections []Correction

	if p.llmCorrector != nil && len(lexicon) > 0 {
		// When the matcher cannot report uncertainty, we always run the LLM.
		// When it can, we only run if at least one span was flagged.
		if !haveUncertainty || len(uncertain) > 0 {
			correctedText, rawCorrections, err := p.llmCorrector.Correct(
				ctx,
				workingText,
				lexicon,
				uncertain,
			)
			if err != nil {
				return nil, err
			}
			workingText = correctedText
			for _, rc := range rawCorrections {
				llmCorrections = append(llmCorrections, Correction{
					Original:   rc.Original,
					Corrected:  rc.Corrected,
					Confidence: rc.Confidence,
					Method:     "llm",
				})
			}
		}
	}

	// --- Merge results ---
	result.Corrected = workingText
	result.Corrections = append(result.Corrections, phoneticCorrections...)
	result.Corrections = append(result.Corrections, llmCorrections...)

	return result, nil
}

// applyPhonetic runs the phonetic matching stage over the transcript text.
// It returns the corrected text, the list of corrections applied, the spans
// flagged as uncertain, and whether the matcher reported uncertainty at all.
//
// The algorithm:
//  1. Tokenise the text into words.
//  2. Determine the maximum number of words in any lexicon term.
//  3. At each token position, score every n-gram window from 1 up to
//     maxTermWords and accept the window with the highest match score. Ties
//     go to the longer window so that multi-word terms take precedence over
//     partial single-word matches.
//  4. Append matched (or unmatched) tokens to the output and advance the
//     cursor by the number of tokens consumed.
func (p *CorrectionPipeline) applyPhonetic(
	text string,
	lexicon []string,
) (string, []Correction, []string, bool) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil, nil, false
	}

	// When the matcher is the package-native implementation, prepare the
	// lexicon once and use the detailed lookup for all window comparisons.
	// Detailed lookups report near misses, which feed the LLM stage.
	var matchFn func(string) phonetic.Result
	var maxTermWords int
	detailed := false

	if pm, ok := p.phonetic.(*phonetic.Matcher); ok {
		lex := phonetic.Prepare(lexicon)
		maxTermWords = lex.MaxWords()
		detailed = true
		matchFn = func(word string) phonetic.Result {
			return pm.Lookup(word, lex)
		}
	} else {
		maxTermWords = maxWordCount(lexicon)
		matchFn = func(word string) phonetic.Result {
			term, conf, ok := p.phonetic.Match(word, lexicon)
			return phonetic.Result{Term: term, Score: conf, Matched: ok}
		}
	}

	if maxTermWords == 0 {
		return text, nil, nil, detailed
	}

	var output []string
	var corrections []Correction
	var uncertain []string

	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		var bestResult phonetic.Result
		var bestWindow string
		bestN := 0
		sawNearMiss := false

		for n := 1; n <= maxN; n++ {
			window := strings.Join(tokens[i:i+n], " ")
			r := matchFn(window)
			if !r.Matched {
				if r.NearMiss && n == 1 {
					sawNearMiss = true
				}
				continue
			}
			if bestN == 0 || r.Score >= bestResult.Score {
				bestResult = r
				bestWindow = window
				bestN = n
			}
		}

		if bestN == 0 {
			if sawNearMiss {
				uncertain = append(uncertain, tokens[i])
			}
			output = append(output, tokens[i])
			i++
			continue
		}

		// Emit the term tokens and record the correction. Exact hits (the
		// speaker already said the term correctly) are not corrections.
		termTokens := strings.Fields(bestResult.Term)
		output = append(output, termTokens...)
		if !strings.EqualFold(bestWindow, bestResult.Term) {
			corrections = append(corrections, Correction{
				Original:   bestWindow,
				Corrected:  bestResult.Term,
				Confidence: bestResult.Score,
				Method:     "phonetic",
			})
		}
		i += bestN
	}

	return strings.Join(output, " "), corrections, uncertain, detailed
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any lexicon term. Returns 1 when the lexicon is empty.
func maxWordCount(lexicon []string) int {
	max := 1
	for _, term := range lexicon {
		n := len(strings.Fields(term))
		if n > max {
			max = n
		}
	}
	return max
}
