package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hagop-ai/hagopai/internal/config"
	"github.com/hagop-ai/hagopai/internal/observe"
	"github.com/hagop-ai/hagopai/internal/progress"
	"github.com/hagop-ai/hagopai/internal/transcript"
	"github.com/hagop-ai/hagopai/pkg/provider/llm"
	"github.com/hagop-ai/hagopai/pkg/provider/stt"
	"github.com/hagop-ai/hagopai/pkg/provider/tts"
	"github.com/hagop-ai/hagopai/pkg/provider/vad"
	"github.com/hagop-ai/hagopai/pkg/types"
)

const (
	// defaultSystemPrompt is the tutor persona used when the configuration
	// does not override it.
	defaultSystemPrompt = "You are Hagop, a warm and patient Western Armenian language tutor. " +
		"The learner speaks to you by voice; their Armenian arrives transliterated in Latin letters. " +
		"Reply conversationally in short sentences, mix in transliterated Western Armenian phrases " +
		"with brief English explanations, and gently correct mistakes without lecturing."

	// engineSampleRate is the PCM rate the recognizer and VAD sessions run
	// at. The transport layer resamples browser audio down to this rate.
	engineSampleRate = 16000

	// vadFrameSizeMs is the analysis frame duration for the VAD session.
	vadFrameSizeMs = 20

	defaultSilenceTimeout = 2000 * time.Millisecond
	defaultSettleDelay    = 300 * time.Millisecond

	// defaultMaxRestarts bounds in-place recognizer restarts per listening
	// stretch. A successful final result resets the budget.
	defaultMaxRestarts = 5

	// defaultRestartDelay spaces recognizer restart attempts so a hard
	// provider failure cannot turn into a tight reconnect loop.
	defaultRestartDelay = 500 * time.Millisecond
)

// Engine is the voice conversation state machine. One Engine serves one
// learner session; create a new Engine per connected voice client.
//
// All exported methods are safe for concurrent use. Callbacks are invoked
// without internal locks held, so handlers may call back into the Engine.
type Engine struct {
	sttP   stt.Provider
	vadEng vad.Engine
	llmP   llm.Provider
	ttsP   tts.Provider
	player Player

	cfg       config.VoiceConfig
	voice     types.VoiceProfile
	corrector transcript.Pipeline
	lexicon   []string
	recorder  ActivityRecorder
	metrics   *observe.Metrics

	maxRestarts  int
	restartDelay time.Duration

	cbMu      sync.Mutex
	onTurn    func(types.Turn)
	onPhase   func(Phase)
	onPartial func(string)
	onError   func(*Error)

	mu           sync.Mutex
	phase        Phase
	gen          uint64
	runCtx       context.Context
	runCancel    context.CancelFunc
	sess         stt.SessionHandle
	vadSess      vad.SessionHandle
	voiceActive  bool
	partial      string
	pending      []string
	utterStart   time.Time
	history      []types.Message
	turns        int
	lastResponse string
	lastErr      *Error
	dispatching  bool
	restarts     int
	silenceTimer *time.Timer
	settleTimer  *time.Timer
	restartTimer *time.Timer
}

// Option configures an Engine during construction.
type Option func(*Engine)

// WithCorrector installs a transcript correction pipeline applied to each
// finalized utterance before it reaches the language model.
func WithCorrector(p transcript.Pipeline) Option {
	return func(e *Engine) { e.corrector = p }
}

// WithLexicon overrides the vocabulary passed to the transcript corrector.
// Defaults to [transcript.DefaultLexicon].
func WithLexicon(terms []string) Option {
	return func(e *Engine) { e.lexicon = terms }
}

// WithRecorder wires conversation activity into the progress engine.
func WithRecorder(r ActivityRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMetrics overrides the metrics sink. Defaults to the process-wide sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRestartPolicy tunes the recognizer restart budget and the delay
// between attempts.
func WithRestartPolicy(maxRestarts int, delay time.Duration) Option {
	return func(e *Engine) {
		e.maxRestarts = maxRestarts
		e.restartDelay = delay
	}
}

// New constructs an Engine from the given providers and configuration.
// The engine starts in [PhaseIdle]; call [Engine.Start] to begin listening.
func New(sttP stt.Provider, vadEng vad.Engine, llmP llm.Provider, ttsP tts.Provider, player Player, cfg config.VoiceConfig, opts ...Option) *Engine {
	e := &Engine{
		sttP:   sttP,
		vadEng: vadEng,
		llmP:   llmP,
		ttsP:   ttsP,
		player: player,
		cfg:    cfg,
		voice: types.VoiceProfile{
			ID:          cfg.Speaker.VoiceID,
			Provider:    cfg.Speaker.Provider,
			SpeedFactor: cfg.Speaker.SpeedFactor,
		},
		lexicon:      transcript.DefaultLexicon,
		maxRestarts:  defaultMaxRestarts,
		restartDelay: defaultRestartDelay,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// OnTurn registers a callback invoked after each completed exchange, once
// the assistant turn is in the history and before synthesis begins.
func (e *Engine) OnTurn(fn func(types.Turn)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onTurn = fn
}

// OnPhaseChange registers a callback invoked on every phase transition.
func (e *Engine) OnPhaseChange(fn func(Phase)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onPhase = fn
}

// OnPartial registers a callback invoked on every interim transcript update.
func (e *Engine) OnPartial(fn func(string)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onPartial = fn
}

// OnError registers a callback invoked whenever the engine records a
// classified error.
func (e *Engine) OnError(fn func(*Error)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onError = fn
}

// Phase returns the current conversational phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// PartialTranscript returns the latest interim recognition text. Cleared on
// each entry to Listening.
func (e *Engine) PartialTranscript() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.partial
}

// LastResponse returns the most recent assistant reply text.
func (e *Engine) LastResponse() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResponse
}

// LastError returns the most recent classified error, or nil. Cleared on
// the next successful Start.
func (e *Engine) LastError() *Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// History returns a copy of the conversation history in chronological order.
// After every completed exchange it holds matched user/assistant pairs.
func (e *Engine) History() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Message, len(e.history))
	copy(out, e.history)
	return out
}

// Start transitions Idle → Listening: it opens a VAD session and a
// recognizer stream and begins consuming recognition results. Returns an
// error if the engine is not Idle or a session cannot be opened.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.mu.Unlock()
		return fmt.Errorf("voice: start in phase %s", e.phase)
	}

	e.gen++
	gen := e.gen
	e.runCtx, e.runCancel = context.WithCancel(ctx)
	e.lastErr = nil
	e.partial = ""
	e.pending = nil
	e.utterStart = time.Time{}
	e.voiceActive = false
	e.restarts = 0

	if err := e.openSessionsLocked(); err != nil {
		e.runCancel()
		e.runCtx, e.runCancel = nil, nil
		e.mu.Unlock()
		verr := Classify(err)
		e.recordError(verr)
		return verr
	}
	e.phase = PhaseListening
	sess := e.sess
	e.mu.Unlock()

	go e.consume(gen, sess)
	e.firePhase(PhaseListening)
	return nil
}

// openSessionsLocked opens the VAD and recognizer sessions. Callers hold mu.
func (e *Engine) openSessionsLocked() error {
	vs, err := e.vadEng.NewSession(vad.Config{
		SampleRate:       engineSampleRate,
		FrameSizeMs:      vadFrameSizeMs,
		SpeechThreshold:  e.cfg.SpeechThreshold,
		SilenceThreshold: e.cfg.SilenceThreshold,
	})
	if err != nil {
		return fmt.Errorf("voice: open vad session: %w", err)
	}
	sess, err := e.sttP.StartStream(e.runCtx, stt.StreamConfig{
		SampleRate: engineSampleRate,
		Channels:   1,
		Language:   e.cfg.Language,
	})
	if err != nil {
		vs.Close()
		e.metrics.RecordProviderRequest(context.Background(), "stt", "stream", "error")
		return fmt.Errorf("voice: open recognizer: %w", err)
	}
	e.metrics.RecordProviderRequest(context.Background(), "stt", "stream", "ok")
	e.vadSess = vs
	e.sess = sess
	return nil
}

// Stop cancels the session from any phase: it invalidates all scheduled
// timers and in-flight callbacks, closes the recognizer and VAD sessions,
// halts playback, and returns the engine to Idle. Safe to call repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.phase == PhaseIdle {
		e.mu.Unlock()
		return
	}
	e.gen++
	if e.runCancel != nil {
		e.runCancel()
		e.runCtx, e.runCancel = nil, nil
	}
	e.stopTimersLocked()
	sess, vs := e.sess, e.vadSess
	e.sess, e.vadSess = nil, nil
	e.partial = ""
	e.pending = nil
	e.utterStart = time.Time{}
	e.voiceActive = false
	e.dispatching = false
	e.phase = PhaseIdle
	e.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	if vs != nil {
		vs.Close()
	}
	e.player.Stop()
	e.firePhase(PhaseIdle)
}

func (e *Engine) stopTimersLocked() {
	for _, t := range []*time.Timer{e.silenceTimer, e.settleTimer, e.restartTimer} {
		if t != nil {
			t.Stop()
		}
	}
	e.silenceTimer, e.settleTimer, e.restartTimer = nil, nil, nil
}

// PushAudio feeds one PCM frame (16 kHz mono, 20 ms) into the engine. While
// Listening, the frame is analysed for voice activity and forwarded to the
// recognizer; in any other phase it is dropped.
func (e *Engine) PushAudio(frame []byte) error {
	e.mu.Lock()
	if e.phase != PhaseListening || e.sess == nil {
		e.mu.Unlock()
		return nil
	}
	gen := e.gen
	sess := e.sess

	if e.vadSess != nil {
		ev, err := e.vadSess.ProcessFrame(frame)
		if err != nil {
			slog.Debug("voice: vad frame", "error", err)
		} else if ev.Type.IsSpeech() {
			e.voiceActive = true
			// Speech resumed: the pending utterance is not over yet.
			if e.silenceTimer != nil {
				e.silenceTimer.Stop()
				e.silenceTimer = nil
			}
		} else {
			wasActive := e.voiceActive
			e.voiceActive = false
			// Speech just ended with committed text waiting and no timer
			// armed (the timer was cancelled when speech resumed): re-arm so
			// the utterance still finalizes even if no further final result
			// arrives.
			if wasActive && len(e.pending) > 0 && e.silenceTimer == nil {
				e.armSilenceTimerLocked(gen)
			}
		}
	}
	e.mu.Unlock()

	if err := sess.SendAudio(frame); err != nil {
		e.recognizerFailed(gen, err)
		return fmt.Errorf("voice: send audio: %w", err)
	}
	return nil
}

// armSilenceTimerLocked (re)arms the utterance finalization timer. Callers
// hold mu.
func (e *Engine) armSilenceTimerLocked(gen uint64) {
	if e.silenceTimer != nil {
		e.silenceTimer.Stop()
	}
	e.silenceTimer = time.AfterFunc(e.silenceTimeout(), func() {
		e.silenceElapsed(gen)
	})
}

func (e *Engine) silenceTimeout() time.Duration {
	if e.cfg.SilenceTimeoutMs > 0 {
		return time.Duration(e.cfg.SilenceTimeoutMs) * time.Millisecond
	}
	return defaultSilenceTimeout
}

func (e *Engine) settleDelay() time.Duration {
	if e.cfg.SettleDelayMs > 0 {
		return time.Duration(e.cfg.SettleDelayMs) * time.Millisecond
	}
	return defaultSettleDelay
}

// consume drains recognition results from sess until both channels close.
// An unexpected end while this generation is still current counts as a
// transient recognizer failure.
func (e *Engine) consume(gen uint64, sess stt.SessionHandle) {
	partials := sess.Partials()
	finals := sess.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			e.handlePartial(gen, t)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			e.handleFinal(gen, t)
		}
	}
	e.recognizerEnded(gen)
}

func (e *Engine) handlePartial(gen uint64, t types.Transcript) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseListening {
		e.mu.Unlock()
		return
	}
	if e.utterStart.IsZero() {
		e.utterStart = time.Now()
	}
	e.partial = t.Text
	e.mu.Unlock()
	e.firePartial(t.Text)
}

func (e *Engine) handleFinal(gen uint64, t types.Transcript) {
	text := strings.TrimSpace(t.Text)
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseListening {
		e.mu.Unlock()
		return
	}
	if text != "" {
		if e.utterStart.IsZero() {
			e.utterStart = time.Now()
		}
		e.pending = append(e.pending, text)
		e.restarts = 0
	}
	if len(e.pending) > 0 {
		e.armSilenceTimerLocked(gen)
	}
	e.mu.Unlock()
}

// silenceElapsed fires when the silence timer expires. Finalization only
// proceeds when this generation is still current, the engine is Listening,
// the learner is not audibly speaking, and committed text is waiting.
func (e *Engine) silenceElapsed(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseListening || e.dispatching {
		e.mu.Unlock()
		return
	}
	e.silenceTimer = nil
	if e.voiceActive || len(e.pending) == 0 {
		e.mu.Unlock()
		return
	}

	// Leaving Listening: a scheduled recognizer restart must not fire into a
	// later listening stretch.
	if e.restartTimer != nil {
		e.restartTimer.Stop()
		e.restartTimer = nil
	}
	e.restarts = 0

	utterance := strings.Join(e.pending, " ")
	var recognized time.Duration
	if !e.utterStart.IsZero() {
		recognized = time.Since(e.utterStart)
		e.utterStart = time.Time{}
	}
	e.pending = nil
	e.partial = ""
	e.dispatching = true
	e.phase = PhaseProcessing
	sess, vs := e.sess, e.vadSess
	e.sess, e.vadSess = nil, nil
	runCtx := e.runCtx
	e.mu.Unlock()

	// The recognizer is idle during Processing and Speaking; a fresh session
	// opens if listening resumes.
	if sess != nil {
		sess.Close()
	}
	if vs != nil {
		vs.Close()
	}
	if recognized > 0 {
		e.metrics.RecordRecognitionDuration(runCtx, recognized)
	}
	e.firePhase(PhaseProcessing)
	go e.runTurn(runCtx, gen, utterance)
}

// runTurn executes one conversational turn: correct the utterance, append
// the user message, get the model reply, append it, synthesize, play.
func (e *Engine) runTurn(ctx context.Context, gen uint64, utterance string) {
	utterance = e.correctUtterance(ctx, utterance)

	// User turn committed before the model request is dispatched.
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.history = append(e.history, types.Message{Role: types.RoleUser, Content: utterance})
	messages := make([]types.Message, len(e.history))
	copy(messages, e.history)
	isFirstTurn := e.turns == 0
	e.mu.Unlock()

	llmStart := time.Now()
	resp, err := e.llmP.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: e.systemPrompt(),
		Messages:     messages,
	})
	e.metrics.RecordLLMDuration(ctx, time.Since(llmStart))
	if err != nil {
		e.metrics.RecordProviderRequest(ctx, "llm", "complete", "error")
		e.failTurn(gen, "llm", err)
		return
	}
	e.metrics.RecordProviderRequest(ctx, "llm", "complete", "ok")
	reply := strings.TrimSpace(resp.Content)

	// Assistant turn committed before synthesis is requested.
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseProcessing {
		e.mu.Unlock()
		return
	}
	e.history = append(e.history, types.Message{Role: types.RoleAssistant, Content: reply})
	e.lastResponse = reply
	e.turns++
	e.phase = PhaseSpeaking
	e.mu.Unlock()

	turn := types.Turn{User: utterance, Assistant: reply, Timestamp: time.Now()}
	e.firePhase(PhaseSpeaking)
	e.fireTurn(turn)
	e.metrics.RecordTurn(ctx)
	e.recordChat(ctx, utterance, isFirstTurn)

	ttsStart := time.Now()
	audio, err := e.ttsP.Synthesize(ctx, reply, e.voice)
	e.metrics.RecordTTSDuration(ctx, time.Since(ttsStart))
	if err != nil {
		e.metrics.RecordProviderRequest(ctx, "tts", "synthesize", "error")
		e.failTurn(gen, "tts", err)
		return
	}
	e.metrics.RecordProviderRequest(ctx, "tts", "synthesize", "ok")
	if err := e.player.Play(ctx, audio); err != nil {
		if ctx.Err() != nil {
			return
		}
		e.failTurn(gen, "playback", err)
		return
	}
	e.playbackFinished(gen)
}

// playbackFinished completes the Speaking phase: continuous mode schedules a
// resume after the settle delay, single-turn mode returns to Idle.
func (e *Engine) playbackFinished(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseSpeaking {
		e.mu.Unlock()
		return
	}
	e.dispatching = false
	if e.cfg.Continuous {
		e.settleTimer = time.AfterFunc(e.settleDelay(), func() {
			e.resumeListening(gen)
		})
		e.mu.Unlock()
		return
	}
	if e.runCancel != nil {
		e.runCancel()
		e.runCtx, e.runCancel = nil, nil
	}
	e.phase = PhaseIdle
	e.mu.Unlock()
	e.firePhase(PhaseIdle)
}

// resumeListening reopens the recognizer after the settle delay in
// continuous mode.
func (e *Engine) resumeListening(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseSpeaking {
		e.mu.Unlock()
		return
	}
	e.settleTimer = nil
	e.partial = ""
	e.pending = nil
	e.utterStart = time.Time{}
	e.voiceActive = false
	e.restarts = 0
	if err := e.openSessionsLocked(); err != nil {
		e.toIdleLocked(Classify(err))
		return
	}
	e.phase = PhaseListening
	sess := e.sess
	e.mu.Unlock()

	go e.consume(gen, sess)
	e.firePhase(PhaseListening)
}

// failTurn classifies a turn-fatal provider error and returns to Idle. The
// stage labels which pipeline stage failed on the error counter.
func (e *Engine) failTurn(gen uint64, stage string, err error) {
	verr := Classify(err)
	e.metrics.RecordProviderError(context.Background(), stage, string(verr.Kind))
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.dispatching = false
	e.toIdleLocked(verr)
}

// toIdleLocked transitions to Idle with a recorded error. Callers hold mu;
// it is released before callbacks fire.
func (e *Engine) toIdleLocked(verr *Error) {
	e.gen++
	if e.runCancel != nil {
		e.runCancel()
		e.runCtx, e.runCancel = nil, nil
	}
	e.stopTimersLocked()
	sess, vs := e.sess, e.vadSess
	e.sess, e.vadSess = nil, nil
	e.partial = ""
	e.pending = nil
	e.utterStart = time.Time{}
	e.voiceActive = false
	e.dispatching = false
	e.lastErr = verr
	e.phase = PhaseIdle
	e.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	if vs != nil {
		vs.Close()
	}
	e.player.Stop()
	e.recordError(verr)
	e.fireError(verr)
	e.firePhase(PhaseIdle)
}

// recognizerEnded handles the recognizer's channels closing. While the
// generation is still current and the engine is Listening this is treated
// as a transient failure and the recognizer restarts in place after a
// delay, up to the restart budget.
func (e *Engine) recognizerEnded(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseListening {
		e.mu.Unlock()
		return
	}
	e.sess = nil
	e.restarts++
	if e.restarts > e.maxRestarts {
		verr := &Error{Kind: KindRecognizer, Message: KindRecognizer.UserMessage()}
		e.metrics.RecordProviderError(context.Background(), "stt", string(KindRecognizer))
		e.toIdleLocked(verr)
		return
	}
	attempt := e.restarts
	e.restartTimer = time.AfterFunc(e.restartDelay, func() {
		e.restartRecognizer(gen)
	})
	e.mu.Unlock()
	slog.Debug("voice: recognizer ended, restarting", "attempt", attempt)
}

// recognizerFailed handles a hard error from the active recognizer session.
// Fatal classes (permission, network, auth) stop the session; anything else
// goes through the transient restart path.
func (e *Engine) recognizerFailed(gen uint64, err error) {
	verr := Classify(err)
	e.metrics.RecordProviderError(context.Background(), "stt", string(verr.Kind))
	switch verr.Kind {
	case KindPermission, KindNetwork, KindAuth:
		e.mu.Lock()
		if gen != e.gen || e.phase != PhaseListening {
			e.mu.Unlock()
			return
		}
		e.toIdleLocked(verr)
	default:
		e.mu.Lock()
		if gen != e.gen || e.phase != PhaseListening {
			e.mu.Unlock()
			return
		}
		sess := e.sess
		e.sess = nil
		e.mu.Unlock()
		if sess != nil {
			sess.Close()
		}
		// Close makes the consume goroutine observe the channel close and
		// drive the bounded restart path.
	}
}

// restartRecognizer reopens only the recognizer stream, keeping phase and
// VAD state intact.
func (e *Engine) restartRecognizer(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseListening {
		e.mu.Unlock()
		return
	}
	e.restartTimer = nil
	if e.sess != nil {
		// A recognizer is already live; only the restart path may open one.
		e.mu.Unlock()
		return
	}
	sess, err := e.sttP.StartStream(e.runCtx, stt.StreamConfig{
		SampleRate: engineSampleRate,
		Channels:   1,
		Language:   e.cfg.Language,
	})
	if err != nil {
		e.metrics.RecordProviderRequest(context.Background(), "stt", "stream", "error")
		e.toIdleLocked(Classify(fmt.Errorf("voice: restart recognizer: %w", err)))
		return
	}
	e.metrics.RecordProviderRequest(context.Background(), "stt", "stream", "ok")
	e.sess = sess
	e.mu.Unlock()

	go e.consume(gen, sess)
}

// correctUtterance runs the transcript correction pipeline and feeds
// phonetic hits into the phrase-learned counter. Correction is best-effort:
// on failure the raw utterance is used.
func (e *Engine) correctUtterance(ctx context.Context, utterance string) string {
	if e.corrector == nil {
		return utterance
	}
	corrected, err := e.corrector.Correct(ctx, types.Transcript{Text: utterance, IsFinal: true}, e.lexicon)
	if err != nil {
		slog.Warn("voice: transcript correction failed", "error", err)
		return utterance
	}
	if e.recorder != nil {
		for _, c := range corrected.Corrections {
			if c.Method == "phonetic" {
				if err := e.recorder.RecordPhraseLearned(ctx); err != nil {
					slog.Warn("voice: record phrase", "error", err)
				}
			}
		}
	}
	return corrected.Corrected
}

// recordChat reports the completed exchange to the progress engine.
func (e *Engine) recordChat(ctx context.Context, utterance string, firstTurn bool) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.RecordChatActivity(ctx, progress.ChatActivity{
		NewChat:             firstTurn,
		NewMessage:          true,
		TraditionalGreeting: containsGreeting(utterance),
	})
	if err != nil {
		slog.Warn("voice: record chat activity", "error", err)
	}
}

func (e *Engine) systemPrompt() string {
	if e.cfg.SystemPrompt != "" {
		return e.cfg.SystemPrompt
	}
	return defaultSystemPrompt
}

// traditionalGreetings are the transliterated greetings that count toward
// the greetings-used progress counter.
var traditionalGreetings = []string{"parev", "pari louys", "pari irigoun", "parov yegak"}

func containsGreeting(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, g := range traditionalGreetings {
		if strings.Contains(lower, g) {
			return true
		}
	}
	return false
}

func (e *Engine) recordError(verr *Error) {
	slog.Error("voice: session error", "kind", string(verr.Kind), "error", verr.Err)
}

func (e *Engine) firePhase(p Phase) {
	e.cbMu.Lock()
	fn := e.onPhase
	e.cbMu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (e *Engine) firePartial(text string) {
	e.cbMu.Lock()
	fn := e.onPartial
	e.cbMu.Unlock()
	if fn != nil {
		fn(text)
	}
}

func (e *Engine) fireTurn(t types.Turn) {
	e.cbMu.Lock()
	fn := e.onTurn
	e.cbMu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (e *Engine) fireError(verr *Error) {
	e.cbMu.Lock()
	fn := e.onError
	e.cbMu.Unlock()
	if fn != nil {
		fn(verr)
	}
}
