// Package app wires all HagopAI subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/hagop-ai/hagopai/internal/config"
	"github.com/hagop-ai/hagopai/internal/health"
	"github.com/hagop-ai/hagopai/internal/observe"
	"github.com/hagop-ai/hagopai/internal/progress"
	progressstore "github.com/hagop-ai/hagopai/internal/progress/store"
	"github.com/hagop-ai/hagopai/internal/resilience"
	"github.com/hagop-ai/hagopai/internal/server"
	"github.com/hagop-ai/hagopai/internal/transcript"
	"github.com/hagop-ai/hagopai/internal/transcript/llmcorrect"
	"github.com/hagop-ai/hagopai/internal/transcript/phonetic"
	"github.com/hagop-ai/hagopai/pkg/provider/llm"
	"github.com/hagop-ai/hagopai/pkg/provider/stt"
	"github.com/hagop-ai/hagopai/pkg/provider/tts"
	"github.com/hagop-ai/hagopai/pkg/provider/vad"
)

// defaultFlushInterval is how often accumulated session time is folded into
// persisted totals when the config does not say otherwise.
const defaultFlushInterval = 60 * time.Second

// shutdownGrace bounds how long the HTTP server may spend draining
// connections once Run's context is cancelled.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. All four slots are required.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine

	// Fallbacks are optional secondary providers tried when the primary
	// fails or its circuit breaker is open.
	LLMFallbacks []NamedLLM
	TTSFallbacks []NamedTTS
	STTFallbacks []NamedSTT
}

// NamedLLM pairs a fallback LLM provider with its registry name.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// NamedTTS pairs a fallback TTS provider with its registry name.
type NamedTTS struct {
	Name     string
	Provider tts.Provider
}

// NamedSTT pairs a fallback STT provider with its registry name.
type NamedSTT struct {
	Name     string
	Provider stt.Provider
}

// App owns all subsystem lifetimes and serves the HagopAI HTTP surface.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New, torn down in Shutdown.
	store       progress.Store
	progressEng *progress.Engine
	metrics     *observe.Metrics
	srv         *server.Server
	httpSrv     *http.Server
	scheduler   *gocron.Scheduler

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a progress store instead of building one from config.
func WithStore(s progress.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics sink instead of building one from the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: progress store connection,
// progress engine restore, provider fallback wrapping, and HTTP server
// construction. It does not start listening; Run does.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, fmt.Errorf("app: providers are required")
	}
	if providers.LLM == nil || providers.STT == nil || providers.TTS == nil || providers.VAD == nil {
		return nil, fmt.Errorf("app: llm, stt, tts and vad providers are all required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = m
	}

	if err := a.initProgress(ctx); err != nil {
		return nil, fmt.Errorf("app: init progress: %w", err)
	}

	a.initServer()

	return a, nil
}

// initProgress connects the configured store and restores the learner state.
func (a *App) initProgress(ctx context.Context) error {
	if a.store == nil {
		st, err := progressstore.New(ctx, a.cfg.Progress)
		if err != nil {
			return err
		}
		a.store = st
	}
	a.closers = append(a.closers, a.store.Close)

	eng, err := progress.New(ctx, a.store, progress.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.progressEng = eng
	return nil
}

// initServer wraps the providers in fallback groups and builds the HTTP and
// WebSocket surface.
func (a *App) initServer() {
	fbCfg := resilience.FallbackConfig{}

	llmGroup := resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, fbCfg)
	for _, fb := range a.providers.LLMFallbacks {
		llmGroup.AddFallback(fb.Name, fb.Provider)
	}

	ttsGroup := resilience.NewTTSFallback(a.providers.TTS, a.cfg.Providers.TTS.Name, fbCfg)
	for _, fb := range a.providers.TTSFallbacks {
		ttsGroup.AddFallback(fb.Name, fb.Provider)
	}

	sttGroup := resilience.NewSTTFallback(a.providers.STT, a.cfg.Providers.STT.Name, fbCfg)
	for _, fb := range a.providers.STTFallbacks {
		sttGroup.AddFallback(fb.Name, fb.Provider)
	}

	pipeOpts := []transcript.PipelineOption{
		transcript.WithPhoneticMatcher(phonetic.New()),
	}
	if a.cfg.Voice.LLMCorrection {
		pipeOpts = append(pipeOpts, transcript.WithLLMCorrector(llmcorrect.New(llmGroup)))
	}
	corrector := transcript.NewPipeline(pipeOpts...)

	deps := server.VoiceDeps{
		STT:       sttGroup,
		VAD:       a.providers.VAD,
		LLM:       llmGroup,
		TTS:       ttsGroup,
		Corrector: corrector,
	}

	h := health.New(
		health.Checker{Name: "progress_store", Check: a.checkStore},
	)

	a.srv = server.New(a.progressEng, deps, a.cfg.Voice,
		server.WithHealth(h),
		server.WithMetrics(a.metrics),
	)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           a.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// checkStore probes the progress store. A missing record is healthy; only a
// backend that cannot answer at all fails readiness.
func (a *App) checkStore(ctx context.Context) error {
	_, err := a.store.Load(ctx)
	if err != nil && !errors.Is(err, progress.ErrNotFound) && !errors.Is(err, progress.ErrIncompatible) {
		return err
	}
	return nil
}

// Run starts the session accounting, the periodic flush job, and the HTTP
// server, then blocks until ctx is cancelled or the server fails. On
// cancellation the HTTP server drains within shutdownGrace.
func (a *App) Run(ctx context.Context) error {
	if err := a.progressEng.StartSession(ctx); err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	a.startFlushJob()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tls := a.cfg.Server.TLS
		var err error
		if tls != nil {
			slog.Info("listening", "addr", a.httpSrv.Addr, "tls", true)
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.httpSrv.Addr)
			err = a.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		return gctx.Err()
	})

	return g.Wait()
}

// startFlushJob schedules the periodic session-time flush.
func (a *App) startFlushJob() {
	interval := defaultFlushInterval
	if a.cfg.Progress.SessionFlushIntervalSec > 0 {
		interval = time.Duration(a.cfg.Progress.SessionFlushIntervalSec) * time.Second
	}

	a.scheduler = gocron.NewScheduler(time.Local)
	a.scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.progressEng.FlushSession(ctx); err != nil {
			slog.Warn("session flush failed", "err", err)
		}
	})
	a.scheduler.StartAsync()
}

// Shutdown stops the flush job, settles the session time, and tears down all
// subsystems in reverse-init order. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.scheduler != nil {
			a.scheduler.Stop()
		}

		if err := a.progressEng.EndSession(ctx); err != nil {
			slog.Warn("end session error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// UpdateVoiceConfig applies hot-reloaded voice settings. New WebSocket
// connections pick them up; in-flight sessions are left alone.
func (a *App) UpdateVoiceConfig(cfg config.VoiceConfig) {
	a.srv.SetVoiceConfig(cfg)
}

// Progress exposes the progress engine, mainly for tests and diagnostics.
func (a *App) Progress() *progress.Engine { return a.progressEng }

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.srv.Handler() }
