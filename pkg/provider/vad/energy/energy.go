// Package energy implements a voice activity detector based on frame energy.
//
// Each PCM frame is reduced to a single loudness proxy — the root mean square
// of its samples, normalised to [0, 1] — and compared against the configured
// speech/silence thresholds. A short hangover keeps a segment open across
// brief intra-word pauses so that natural speech is not chopped into
// fragments.
//
// This detector is deliberately simple: no model download, no cgo, and
// deterministic behaviour in tests. It is the default backend; a
// model-based engine can be swapped in behind the same [vad.Engine]
// interface.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hagop-ai/hagopai/pkg/provider/vad"
)

// hangoverFrames is the number of consecutive sub-threshold frames tolerated
// before an active speech segment is considered ended. At 20 ms frames this
// is 200 ms, enough to bridge plosives and short word gaps.
const hangoverFrames = 10

// ErrSessionClosed is returned by ProcessFrame after the session is closed.
var ErrSessionClosed = errors.New("energy: session is closed")

// Engine creates energy-threshold VAD sessions. The zero value is ready to use.
type Engine struct{}

// Compile-time interface check.
var _ vad.Engine = (*Engine)(nil)

// New returns a new energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size %dms is invalid", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %.3f out of range [0, 1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %.3f out of range [0, %.3f]", cfg.SilenceThreshold, cfg.SpeechThreshold)
	}

	// Samples per frame; frames carry 2 bytes per int16 sample.
	samples := cfg.SampleRate * cfg.FrameSizeMs / 1000
	return &session{cfg: cfg, frameBytes: samples * 2}, nil
}

// session holds per-stream detection state. Not safe for concurrent use by
// multiple goroutines, matching the [vad.SessionHandle] contract.
type session struct {
	cfg        vad.Config
	frameBytes int

	mu       sync.Mutex
	inSpeech bool
	silent   int // consecutive sub-threshold frames while inSpeech
	closed   bool
}

// ProcessFrame implements [vad.SessionHandle].
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.VADEvent{}, ErrSessionClosed
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	score := rms(frame)

	switch {
	case score >= s.cfg.SpeechThreshold:
		s.silent = 0
		if !s.inSpeech {
			s.inSpeech = true
			return vad.VADEvent{Type: vad.VADSpeechStart, Probability: score}, nil
		}
		return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: score}, nil

	case s.inSpeech && score > s.cfg.SilenceThreshold:
		// Between thresholds: still speech while a segment is open.
		s.silent = 0
		return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: score}, nil

	case s.inSpeech:
		s.silent++
		if s.silent <= hangoverFrames {
			return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: score}, nil
		}
		s.inSpeech = false
		s.silent = 0
		return vad.VADEvent{Type: vad.VADSpeechEnd, Probability: score}, nil

	default:
		return vad.VADEvent{Type: vad.VADSilence, Probability: score}, nil
	}
}

// Reset implements [vad.SessionHandle].
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.silent = 0
}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rms computes the root mean square of a little-endian int16 PCM frame,
// normalised so that a full-scale square wave scores 1.0.
func rms(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
