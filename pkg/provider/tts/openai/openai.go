// Package openai provides a TTS provider backed by the OpenAI speech API.
// It implements the tts.Provider interface.
package openai

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hagop-ai/hagopai/pkg/provider/tts"
	"github.com/hagop-ai/hagopai/pkg/types"
)

const defaultModel = oai.SpeechModelTTS1

// knownVoices is the fixed OpenAI voice catalogue. The speech API has no
// list endpoint, so ListVoices returns this set.
var knownVoices = []types.VoiceProfile{
	{ID: "alloy", Name: "Alloy", Provider: "openai"},
	{ID: "echo", Name: "Echo", Provider: "openai"},
	{ID: "fable", Name: "Fable", Provider: "openai"},
	{ID: "onyx", Name: "Onyx", Provider: "openai"},
	{ID: "nova", Name: "Nova", Provider: "openai"},
	{ID: "shimmer", Name: "Shimmer", Provider: "openai"},
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the OpenAI speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = oai.SpeechModel(model)
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// Provider implements tts.Provider backed by the OpenAI speech API.
type Provider struct {
	client  oai.Client
	model   oai.SpeechModel
	baseURL string
}

// Compile-time interface check.
var _ tts.Provider = (*Provider)(nil)

// New creates a new OpenAI TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider. The returned payload is MP3-encoded
// audio, suitable for direct playback in a browser audio element.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("openai tts: text must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Model: p.model,
		Input: CleanForSpeech(text),
		Voice: oai.AudioSpeechNewParamsVoice(voiceOrDefault(voice.ID)),
	}
	if voice.SpeedFactor > 0 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return audio, nil
}

// SynthesizeStream implements tts.Provider. The OpenAI speech endpoint is not
// incremental, so the stream adapter buffers the full text, synthesizes once,
// and emits the result as a single chunk.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	audioCh := make(chan []byte, 1)

	go func() {
		defer close(audioCh)

		var sb strings.Builder
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					if sb.Len() == 0 {
						return
					}
					audio, err := p.Synthesize(ctx, sb.String(), voice)
					if err != nil {
						return
					}
					select {
					case audioCh <- audio:
					case <-ctx.Done():
					}
					return
				}
				sb.WriteString(fragment)
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// ListVoices implements tts.Provider by returning the fixed OpenAI catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	out := make([]types.VoiceProfile, len(knownVoices))
	copy(out, knownVoices)
	return out, nil
}

// voiceOrDefault maps an empty voice ID to the service default.
func voiceOrDefault(id string) string {
	if id == "" {
		return "alloy"
	}
	return id
}

// Markdown constructs that read badly when spoken aloud.
var (
	boldRe    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe  = regexp.MustCompile(`\*(.*?)\*`)
	codeRe    = regexp.MustCompile("`(.*?)`")
	listRe    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numListRe = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	headerRe  = regexp.MustCompile(`#{1,6}\s+`)
	spaceRe   = regexp.MustCompile(`\s+`)
	multiPunc = regexp.MustCompile(`([.!?])\s*[.!?]+`)
)

// CleanForSpeech strips markdown formatting and collapses whitespace so that
// synthesized speech does not read out asterisks and list markers.
func CleanForSpeech(text string) string {
	cleaned := boldRe.ReplaceAllString(text, "$1")
	cleaned = italicRe.ReplaceAllString(cleaned, "$1")
	cleaned = codeRe.ReplaceAllString(cleaned, "$1")
	cleaned = listRe.ReplaceAllString(cleaned, "")
	cleaned = numListRe.ReplaceAllString(cleaned, "")
	cleaned = headerRe.ReplaceAllString(cleaned, "")
	cleaned = spaceRe.ReplaceAllString(cleaned, " ")
	cleaned = multiPunc.ReplaceAllString(cleaned, "$1")
	return strings.TrimSpace(cleaned)
}
