// Package mock provides a mock implementation of the tts.Provider interface
// for testing.
package mock

import (
	"context"
	"sync"

	"github.com/hagop-ai/hagopai/pkg/provider/tts"
	"github.com/hagop-ai/hagopai/pkg/types"
)

// Provider is a configurable mock TTS provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is returned by Synthesize when SynthesizeErr is nil.
	SynthesizeResult []byte
	// SynthesizeErr, if set, is returned by Synthesize.
	SynthesizeErr error
	// SynthesizeDelay, if set, runs before Synthesize returns. Return the
	// delivered error to abort (used to simulate cancellation mid-synthesis).
	SynthesizeDelay func(ctx context.Context) error

	// StreamChunks are emitted one by one on the audio channel returned by
	// SynthesizeStream.
	StreamChunks [][]byte
	// StreamErr, if set, is returned by SynthesizeStream immediately.
	StreamErr error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile
	// ListVoicesErr, if set, is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every Synthesize invocation.
	SynthesizeCalls []SynthesizeCall
	// StreamCalls records every SynthesizeStream invocation.
	StreamCalls []types.VoiceProfile
}

// SynthesizeCall records the arguments of one Synthesize invocation.
type SynthesizeCall struct {
	Text  string
	Voice types.VoiceProfile
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	delay := p.SynthesizeDelay
	p.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return p.SynthesizeResult, nil
}

// SynthesizeStream implements tts.Provider. Text is drained in the background
// and the configured StreamChunks are emitted on the returned channel.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, voice)
	chunks := p.StreamChunks
	streamErr := p.StreamErr
	p.mu.Unlock()

	if streamErr != nil {
		return nil, streamErr
	}

	audioCh := make(chan []byte, len(chunks))
	go func() {
		defer close(audioCh)
		for range text {
			// drain
		}
		for _, c := range chunks {
			select {
			case audioCh <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.Voices, nil
}

// SynthesizeCallCount returns the number of Synthesize invocations.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}
