// Package voice implements the conversation engine behind HagopAI's voice
// chat: a phase state machine that listens to the learner, detects the end
// of an utterance, obtains a tutor reply from the language model, speaks it
// through TTS, and (in continuous mode) resumes listening.
//
// The engine owns exactly one recognizer session and one VAD session at a
// time. Utterance finalization is driven by a silence timer armed on each
// final recognition result and suppressed while the voice-activity monitor
// still reports speech. Every scheduled timer and every in-flight provider
// call carries the generation counter it was created under and checks it
// before touching engine state, so a stop followed by a restart can never be
// resurrected by a slow callback from the previous run.
//
// Recognizer sessions that end unexpectedly while listening are restarted
// in place with a delay between attempts, up to a bounded budget. Language
// model and synthesis failures are classified (quota, auth, server, network)
// and always return the engine to Idle; they are never retried silently.
package voice

import (
	"context"

	"github.com/hagop-ai/hagopai/internal/progress"
)

// Phase is the engine's conversational state. Exactly one phase holds at a
// time.
type Phase int

const (
	// PhaseIdle means no voice session is active.
	PhaseIdle Phase = iota

	// PhaseListening means audio is being captured and recognized.
	PhaseListening

	// PhaseProcessing means a finalized utterance is with the language model.
	PhaseProcessing

	// PhaseSpeaking means the tutor's reply is being synthesized or played.
	PhaseSpeaking
)

// String returns the lowercase phase name used in logs and wire events.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Player delivers synthesized audio to the learner. The server implements
// this over the voice WebSocket; tests substitute fakes.
type Player interface {
	// Play delivers one complete reply's audio and blocks until playback has
	// finished (or ctx is cancelled). The engine uses the return as its
	// playback-completion signal.
	Play(ctx context.Context, audio []byte) error

	// Stop halts any in-progress playback immediately. Must be safe to call
	// when nothing is playing.
	Stop()
}

// ActivityRecorder receives conversation activity for progress tracking.
// *progress.Engine satisfies it; the engine treats recording failures as
// log-only and never lets them interrupt a conversation.
type ActivityRecorder interface {
	RecordChatActivity(ctx context.Context, a progress.ChatActivity) error
	RecordPhraseLearned(ctx context.Context) error
}
