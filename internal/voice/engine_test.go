package voice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hagop-ai/hagopai/internal/config"
	"github.com/hagop-ai/hagopai/internal/observe"
	"github.com/hagop-ai/hagopai/internal/progress"
	"github.com/hagop-ai/hagopai/internal/transcript"
	"github.com/hagop-ai/hagopai/internal/transcript/phonetic"
	"github.com/hagop-ai/hagopai/internal/voice"
	"github.com/hagop-ai/hagopai/pkg/provider/llm"
	llmmock "github.com/hagop-ai/hagopai/pkg/provider/llm/mock"
	sttmock "github.com/hagop-ai/hagopai/pkg/provider/stt/mock"
	ttsmock "github.com/hagop-ai/hagopai/pkg/provider/tts/mock"
	"github.com/hagop-ai/hagopai/pkg/provider/vad"
	vadmock "github.com/hagop-ai/hagopai/pkg/provider/vad/mock"
	"github.com/hagop-ai/hagopai/pkg/types"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// fakePlayer records played audio and stop calls. If Block is set, Play
// waits until it is closed or ctx is cancelled.
type fakePlayer struct {
	mu     sync.Mutex
	Played [][]byte
	Stops  int
	Block  chan struct{}
	Err    error
}

func (p *fakePlayer) Play(ctx context.Context, audio []byte) error {
	p.mu.Lock()
	p.Played = append(p.Played, audio)
	block := p.Block
	err := p.Err
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.Stops++
	p.mu.Unlock()
}

func (p *fakePlayer) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

func (p *fakePlayer) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Stops
}

// fakeRecorder records progress calls made by the engine.
type fakeRecorder struct {
	mu         sync.Mutex
	Activities []progress.ChatActivity
	Phrases    int
}

func (r *fakeRecorder) RecordChatActivity(_ context.Context, a progress.ChatActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Activities = append(r.Activities, a)
	return nil
}

func (r *fakeRecorder) RecordPhraseLearned(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Phrases++
	return nil
}

func (r *fakeRecorder) snapshot() ([]progress.ChatActivity, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.ChatActivity(nil), r.Activities...), r.Phrases
}

// rig bundles an engine with all its test doubles.
type rig struct {
	engine *voice.Engine
	stt    *sttmock.Provider
	sess   *sttmock.Session
	vad    *vadmock.Engine
	llm    *llmmock.Provider
	tts    *ttsmock.Provider
	player *fakePlayer
}

func testConfig() config.VoiceConfig {
	return config.VoiceConfig{
		SilenceTimeoutMs: 30,
		SettleDelayMs:    10,
		SpeechThreshold:  0.02,
		SilenceThreshold: 0.01,
		Language:         "en",
	}
}

func newRig(t *testing.T, cfg config.VoiceConfig, opts ...voice.Option) *rig {
	t.Helper()
	sess := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	r := &rig{
		stt:    &sttmock.Provider{Session: sess},
		sess:   sess,
		vad:    &vadmock.Engine{},
		llm:    &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Lav em, shnorhagal em!"}},
		tts:    &ttsmock.Provider{SynthesizeResult: []byte("tts-audio")},
		player: &fakePlayer{},
	}
	r.engine = voice.New(r.stt, r.vad, r.llm, r.tts, r.player, cfg, opts...)
	t.Cleanup(r.engine.Stop)
	return r
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (r *rig) waitForPhase(t *testing.T, p voice.Phase) {
	t.Helper()
	waitFor(t, "phase "+p.String(), func() bool { return r.engine.Phase() == p })
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestStart_TransitionsToListening(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.engine.Phase(); got != voice.PhaseListening {
		t.Errorf("phase = %s, want listening", got)
	}
	if n := r.stt.StartStreamCallCount(); n != 1 {
		t.Errorf("StartStream calls = %d, want 1", n)
	}
	if len(r.stt.StartStreamCalls) > 0 {
		cfg := r.stt.StartStreamCalls[0].Cfg
		if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.Language != "en" {
			t.Errorf("stream config = %+v", cfg)
		}
	}
	if len(r.vad.Sessions) != 1 {
		t.Errorf("vad sessions = %d, want 1", len(r.vad.Sessions))
	}
}

func TestStart_WhileActiveFails(t *testing.T) {
	r := newRig(t, testConfig())
	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.engine.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while listening")
	}
}

func TestStart_RecognizerErrorClassified(t *testing.T) {
	r := newRig(t, testConfig())
	r.stt.StartStreamErr = errors.New("401 unauthorized")

	err := r.engine.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	var verr *voice.Error
	if !errors.As(err, &verr) || verr.Kind != voice.KindAuth {
		t.Errorf("error = %v, want auth-classified", err)
	}
	if r.engine.Phase() != voice.PhaseIdle {
		t.Errorf("phase = %s, want idle after failed start", r.engine.Phase())
	}
}

func TestPartialUpdates(t *testing.T) {
	r := newRig(t, testConfig())

	var mu sync.Mutex
	var partials []string
	r.engine.OnPartial(func(s string) {
		mu.Lock()
		partials = append(partials, s)
		mu.Unlock()
	})

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.PartialsCh <- types.Transcript{Text: "parev inch"}

	waitFor(t, "partial transcript", func() bool {
		return r.engine.PartialTranscript() == "parev inch"
	})
	mu.Lock()
	defer mu.Unlock()
	if len(partials) != 1 || partials[0] != "parev inch" {
		t.Errorf("OnPartial calls = %v", partials)
	}
}

func TestTurn_SingleTurnEndToEnd(t *testing.T) {
	r := newRig(t, testConfig())

	var mu sync.Mutex
	var turns []types.Turn
	var phases []voice.Phase
	r.engine.OnTurn(func(turn types.Turn) {
		mu.Lock()
		turns = append(turns, turn)
		mu.Unlock()
	})
	r.engine.OnPhaseChange(func(p voice.Phase) {
		mu.Lock()
		phases = append(phases, p)
		mu.Unlock()
	})

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev inchbes es", IsFinal: true}

	r.waitForPhase(t, voice.PhaseIdle)

	history := r.engine.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want user+assistant pair", len(history))
	}
	if history[0].Role != types.RoleUser || history[0].Content != "parev inchbes es" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != types.RoleAssistant || history[1].Content != "Lav em, shnorhagal em!" {
		t.Errorf("history[1] = %+v", history[1])
	}
	if r.engine.LastResponse() != "Lav em, shnorhagal em!" {
		t.Errorf("LastResponse = %q", r.engine.LastResponse())
	}
	if r.engine.LastError() != nil {
		t.Errorf("LastError = %v, want nil", r.engine.LastError())
	}
	if r.player.PlayCount() != 1 {
		t.Errorf("play count = %d, want 1", r.player.PlayCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(turns) != 1 || turns[0].User != "parev inchbes es" {
		t.Errorf("turns = %+v", turns)
	}
	want := []voice.Phase{voice.PhaseListening, voice.PhaseProcessing, voice.PhaseSpeaking, voice.PhaseIdle}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase[%d] = %s, want %s", i, phases[i], want[i])
		}
	}
}

func TestTurn_SystemPromptAndHistorySent(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	r.waitForPhase(t, voice.PhaseIdle)

	if n := r.engine.Phase(); n != voice.PhaseIdle {
		t.Fatalf("phase = %s", n)
	}
	if len(r.llm.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(r.llm.CompleteCalls))
	}
	req := r.llm.CompleteCalls[0].Req
	if req.SystemPrompt == "" {
		t.Error("system prompt missing from completion request")
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != types.RoleUser {
		t.Errorf("messages = %+v, want single user turn", req.Messages)
	}
}

func TestTurn_ContinuousResumesListening(t *testing.T) {
	cfg := testConfig()
	cfg.Continuous = true
	r := newRig(t, cfg)

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}

	waitFor(t, "listening resumed", func() bool {
		return r.stt.StartStreamCallCount() == 2 && r.engine.Phase() == voice.PhaseListening
	})
	if r.engine.PartialTranscript() != "" {
		t.Errorf("partial = %q, want cleared on re-entry", r.engine.PartialTranscript())
	}
}

func TestSilence_GatedOnVoiceActivity(t *testing.T) {
	r := newRig(t, testConfig())
	r.vad.Events = []vad.VADEvent{
		{Type: vad.VADSpeechStart, Probability: 0.9},
		{Type: vad.VADSilence, Probability: 0.0},
	}

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}

	// First frame scripts active speech: the silence timer is cancelled and
	// the utterance must not finalize while the learner is still talking.
	frame := make([]byte, 640)
	if err := r.engine.PushAudio(frame); err != nil {
		t.Fatalf("PushAudio: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if n := len(r.llm.CompleteCalls); n != 0 {
		t.Fatalf("dispatched %d turns while voice active, want 0", n)
	}
	if r.engine.Phase() != voice.PhaseListening {
		t.Fatalf("phase = %s, want still listening", r.engine.Phase())
	}

	// Second frame scripts silence: speech ended, the timer re-arms and the
	// utterance finalizes.
	if err := r.engine.PushAudio(frame); err != nil {
		t.Fatalf("PushAudio: %v", err)
	}
	r.waitForPhase(t, voice.PhaseIdle)
	if n := len(r.llm.CompleteCalls); n != 1 {
		t.Errorf("Complete calls = %d, want exactly one turn", n)
	}
}

func TestSilence_EmptyUtteranceNeverDispatches(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "   ", IsFinal: true}

	time.Sleep(100 * time.Millisecond)
	if n := len(r.llm.CompleteCalls); n != 0 {
		t.Errorf("dispatched %d turns from blank utterance", n)
	}
	if r.engine.Phase() != voice.PhaseListening {
		t.Errorf("phase = %s, want listening", r.engine.Phase())
	}
}

func TestMultipleFinals_JoinIntoOneUtterance(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	r.sess.FinalsCh <- types.Transcript{Text: "inchbes es", IsFinal: true}

	r.waitForPhase(t, voice.PhaseIdle)
	history := r.engine.History()
	if len(history) == 0 || history[0].Content != "parev inchbes es" {
		t.Errorf("history = %+v, want joined utterance", history)
	}
}

func TestLLMError_ReturnsIdleWithClassifiedError(t *testing.T) {
	r := newRig(t, testConfig())
	r.llm.CompleteErr = errors.New("429 rate limit exceeded")

	var mu sync.Mutex
	var errs []*voice.Error
	r.engine.OnError(func(e *voice.Error) {
		mu.Lock()
		errs = append(errs, e)
		mu.Unlock()
	})

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}

	r.waitForPhase(t, voice.PhaseIdle)
	last := r.engine.LastError()
	if last == nil || last.Kind != voice.KindQuota {
		t.Errorf("LastError = %+v, want quota", last)
	}
	if r.tts.SynthesizeCallCount() != 0 {
		t.Error("synthesis must not run after a model failure")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Errorf("OnError fired %d times, want 1", len(errs))
	}
}

func TestTTSError_ReturnsIdle(t *testing.T) {
	r := newRig(t, testConfig())
	r.tts.SynthesizeErr = errors.New("connection refused")

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}

	r.waitForPhase(t, voice.PhaseIdle)
	last := r.engine.LastError()
	if last == nil || last.Kind != voice.KindNetwork {
		t.Errorf("LastError = %+v, want network", last)
	}
	// The assistant turn stays in history; only playback was lost.
	if len(r.engine.History()) != 2 {
		t.Errorf("history length = %d, want 2", len(r.engine.History()))
	}
}

func TestStop_ReleasesEverything(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.engine.Stop()

	if r.engine.Phase() != voice.PhaseIdle {
		t.Errorf("phase = %s, want idle", r.engine.Phase())
	}
	waitFor(t, "stt session closed", func() bool { return r.sess.CloseCallCount >= 1 })
	if !r.vad.Sessions[0].Closed {
		t.Error("vad session not closed")
	}
	if r.player.StopCount() == 0 {
		t.Error("player not stopped")
	}

	// A final that was in flight when Stop ran must not resurrect the session.
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	time.Sleep(80 * time.Millisecond)
	if r.engine.Phase() != voice.PhaseIdle || len(r.engine.History()) != 0 {
		t.Error("stale final mutated a stopped engine")
	}
}

func TestStop_DuringProcessingDiscardsSlowReply(t *testing.T) {
	r := newRig(t, testConfig())
	release := make(chan struct{})
	r.llm.CompleteDelay = func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	r.waitForPhase(t, voice.PhaseProcessing)

	r.engine.Stop()
	close(release)

	time.Sleep(50 * time.Millisecond)
	if r.engine.Phase() != voice.PhaseIdle {
		t.Errorf("phase = %s, want idle", r.engine.Phase())
	}
	if got := r.engine.LastError(); got != nil {
		t.Errorf("LastError = %v, want nil after user stop", got)
	}
	if len(r.engine.History()) != 0 {
		t.Errorf("history = %+v, want discarded", r.engine.History())
	}
}

func TestRecognizer_RestartBudgetExhausted(t *testing.T) {
	// A session whose channels are already closed ends immediately, driving
	// the restart loop until the budget runs out.
	closedSess := &sttmock.Session{
		PartialsCh: make(chan types.Transcript),
		FinalsCh:   make(chan types.Transcript),
	}
	close(closedSess.PartialsCh)
	close(closedSess.FinalsCh)

	r := newRig(t, testConfig(), voice.WithRestartPolicy(2, time.Millisecond))
	r.stt.Session = closedSess

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.waitForPhase(t, voice.PhaseIdle)
	last := r.engine.LastError()
	if last == nil || last.Kind != voice.KindRecognizer {
		t.Errorf("LastError = %+v, want recognizer", last)
	}
	// Initial session plus one restart per budget unit.
	if n := r.stt.StartStreamCallCount(); n != 3 {
		t.Errorf("StartStream calls = %d, want 3", n)
	}
}

func TestRecognizer_PendingRestartDoesNotSurviveTurn(t *testing.T) {
	// A recognizer that dies right after delivering a final schedules a
	// delayed restart. When the silence timer dispatches the turn first and
	// continuous mode resumes listening, that stale restart must not open a
	// second session alongside the resumed one.
	first := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 1),
		FinalsCh:   make(chan types.Transcript, 1),
	}

	cfg := testConfig()
	cfg.Continuous = true
	r := newRig(t, cfg, voice.WithRestartPolicy(5, 60*time.Millisecond))
	r.stt.Session = first

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Later StartStream calls get fresh default sessions.
	r.stt.Session = nil

	first.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	close(first.PartialsCh)
	close(first.FinalsCh)

	waitFor(t, "listening resumed", func() bool {
		return r.stt.StartStreamCallCount() == 2 && r.engine.Phase() == voice.PhaseListening
	})

	// Wait out the scheduled restart delay; it must have been canceled when
	// the turn dispatched.
	time.Sleep(150 * time.Millisecond)

	if n := r.stt.StartStreamCallCount(); n != 2 {
		t.Errorf("StartStream calls = %d, want 2 (one active session at a time)", n)
	}
	if got := r.engine.Phase(); got != voice.PhaseListening {
		t.Errorf("phase = %v, want listening", got)
	}
}

// newTestMetrics backs a Metrics instance with a ManualReader so tests can
// inspect what the engine recorded.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return met, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func metricByName(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m, ok := metricByName(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a counter", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestTurn_RecordsPipelineMetrics(t *testing.T) {
	met, reader := newTestMetrics(t)
	r := newRig(t, testConfig(), voice.WithMetrics(met))

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	r.waitForPhase(t, voice.PhaseIdle)

	rm := collectMetrics(t, reader)

	for _, name := range []string{
		"hagopai.recognition.duration",
		"hagopai.llm.duration",
		"hagopai.tts.duration",
	} {
		m, ok := metricByName(rm, name)
		if !ok {
			t.Errorf("histogram %q not recorded", name)
			continue
		}
		hist, ok := m.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) == 0 {
			t.Errorf("histogram %q has no data points", name)
		}
	}
	// One recognizer stream, one completion, one synthesis.
	if got := counterTotal(t, rm, "hagopai.provider.requests"); got < 3 {
		t.Errorf("provider requests = %d, want at least 3", got)
	}
	if got := counterTotal(t, rm, "hagopai.provider.errors"); got != 0 {
		t.Errorf("provider errors = %d, want 0", got)
	}
}

func TestFailedTurn_RecordsProviderError(t *testing.T) {
	met, reader := newTestMetrics(t)
	r := newRig(t, testConfig(), voice.WithMetrics(met))
	r.llm.CompleteErr = errors.New("429 rate limit exceeded")

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	r.waitForPhase(t, voice.PhaseIdle)

	rm := collectMetrics(t, reader)
	if got := counterTotal(t, rm, "hagopai.provider.errors"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestProgress_ChatActivityRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	r := newRig(t, testConfig(), voice.WithRecorder(rec))

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "parev inchbes es", IsFinal: true}
	r.waitForPhase(t, voice.PhaseIdle)

	activities, _ := rec.snapshot()
	if len(activities) != 1 {
		t.Fatalf("activities = %d, want 1", len(activities))
	}
	a := activities[0]
	if !a.NewChat || !a.NewMessage || !a.TraditionalGreeting {
		t.Errorf("activity = %+v, want first-turn greeting", a)
	}
}

func TestCorrector_AppliedBeforeDispatch(t *testing.T) {
	rec := &fakeRecorder{}
	pipeline := transcript.NewPipeline(
		transcript.WithPhoneticMatcher(phonetic.New()),
	)
	r := newRig(t, testConfig(), voice.WithCorrector(pipeline), voice.WithRecorder(rec))

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.sess.FinalsCh <- types.Transcript{Text: "barev", IsFinal: true}
	r.waitForPhase(t, voice.PhaseIdle)

	history := r.engine.History()
	if len(history) == 0 || history[0].Content != "parev" {
		t.Errorf("history = %+v, want phonetically corrected utterance", history)
	}
	_, phrases := rec.snapshot()
	if phrases != 1 {
		t.Errorf("phrases learned = %d, want 1", phrases)
	}
}
