// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI's speech API
// or ElevenLabs) and presents a uniform interface. Synthesize produces the
// full audio for one reply; SynthesizeStream accepts a channel of text
// fragments and returns a channel of raw audio bytes as they become
// available, enabling low-latency pipelining between LLM output and playback.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/hagop-ai/hagopai/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to audio in one shot and returns the complete
	// encoded audio payload. This is the path used for voice-chat replies,
	// which are short by construction (the system prompt caps them at a few
	// sentences).
	//
	// Returns an error if synthesis fails or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)

	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw audio byte slices as they are
	// synthesised. The returned audio channel is closed by the implementation
	// when all text has been synthesised or when ctx is cancelled. The caller
	// must drain the audio channel to avoid blocking the provider's internal
	// goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered mid-synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
