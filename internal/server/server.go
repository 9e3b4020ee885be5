// Package server exposes HagopAI over HTTP: a JSON API for the progress and
// achievement engine, health and metrics endpoints, and the voice WebSocket
// that carries the live conversation (Opus audio up, JSON events and
// synthesized audio down).
package server

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hagop-ai/hagopai/internal/config"
	"github.com/hagop-ai/hagopai/internal/health"
	"github.com/hagop-ai/hagopai/internal/observe"
	"github.com/hagop-ai/hagopai/internal/progress"
	"github.com/hagop-ai/hagopai/internal/transcript"
	"github.com/hagop-ai/hagopai/pkg/provider/llm"
	"github.com/hagop-ai/hagopai/pkg/provider/stt"
	"github.com/hagop-ai/hagopai/pkg/provider/tts"
	"github.com/hagop-ai/hagopai/pkg/provider/vad"
)

// VoiceDeps bundles the providers each voice session is built from. One
// voice engine is created per WebSocket connection; the providers themselves
// are shared and must be safe for concurrent use.
type VoiceDeps struct {
	STT stt.Provider
	VAD vad.Engine
	LLM llm.Provider
	TTS tts.Provider

	// Corrector is the optional transcript correction pipeline applied to
	// finalized utterances.
	Corrector transcript.Pipeline
}

// Server is the HTTP and WebSocket surface of HagopAI.
type Server struct {
	progressEng *progress.Engine
	deps        VoiceDeps
	voiceCfg    config.VoiceConfig
	metrics     *observe.Metrics
	health      *health.Handler

	mu       sync.Mutex
	sessions map[*voiceSession]struct{}
}

// Option configures a Server during construction.
type Option func(*Server)

// WithHealth installs the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides the metrics sink. Defaults to the process-wide sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New constructs a Server. Achievement unlocks from the progress engine are
// broadcast to every connected voice session.
func New(progressEng *progress.Engine, deps VoiceDeps, voiceCfg config.VoiceConfig, opts ...Option) *Server {
	s := &Server{
		progressEng: progressEng,
		deps:        deps,
		voiceCfg:    voiceCfg,
		sessions:    make(map[*voiceSession]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.progressEng.Subscribe(s.broadcastUnlock)
	return s
}

// Handler returns the complete route table wrapped in the request metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/progress/lesson", s.handleLesson)
	mux.HandleFunc("POST /api/progress/chat", s.handleChat)
	mux.HandleFunc("POST /api/progress/cultural", s.handleCultural)
	mux.HandleFunc("POST /api/progress/customization", s.handleCustomization)
	mux.HandleFunc("POST /api/progress/feature", s.handleFeature)
	mux.HandleFunc("POST /api/progress/reset", s.handleReset)
	mux.HandleFunc("GET /api/progress", s.handleGetProgress)
	mux.HandleFunc("GET /api/achievements", s.handleAchievements)

	mux.HandleFunc("GET /ws/voice", s.handleVoiceWS)

	if s.health != nil {
		mux.HandleFunc("GET /healthz", s.health.Healthz)
		mux.HandleFunc("GET /readyz", s.health.Readyz)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// SetVoiceConfig replaces the voice settings applied to new connections.
// Sessions already in flight keep the settings they started with.
func (s *Server) SetVoiceConfig(cfg config.VoiceConfig) {
	s.mu.Lock()
	s.voiceCfg = cfg
	s.mu.Unlock()
}

// voiceConfig returns the current voice settings.
func (s *Server) voiceConfig() config.VoiceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceCfg
}

func (s *Server) addSession(vs *voiceSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[vs] = struct{}{}
}

func (s *Server) removeSession(vs *voiceSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, vs)
}

// broadcastUnlock pushes an achievement event to every live voice session.
func (s *Server) broadcastUnlock(u progress.Unlock) {
	s.mu.Lock()
	targets := make([]*voiceSession, 0, len(s.sessions))
	for vs := range s.sessions {
		targets = append(targets, vs)
	}
	s.mu.Unlock()
	for _, vs := range targets {
		vs.sendAchievement(u)
	}
}
