// Package mock provides test doubles for the vad.Engine and vad.SessionHandle
// interfaces.
//
// Use Engine to feed scripted detection events to the voice engine in unit
// tests and to verify session lifecycle (creation, Reset, Close) without a
// real detector.
package mock

import (
	"sync"

	"github.com/hagop-ai/hagopai/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine. Each NewSession call returns
// a fresh *Session preloaded with Events.
type Engine struct {
	mu sync.Mutex

	// Events is the script each created session plays back, one event per
	// ProcessFrame call. When the script is exhausted the session keeps
	// returning the last event (or VADSilence if Events is empty).
	Events []vad.VADEvent

	// NewSessionErr, if non-nil, is returned from NewSession.
	NewSessionErr error

	// Sessions records every session created, in order.
	Sessions []*Session
}

// Compile-time interface check.
var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := &Session{Config: cfg, events: append([]vad.VADEvent(nil), e.Events...)}
	e.Sessions = append(e.Sessions, s)
	return s, nil
}

// Session is a scripted vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Config is the configuration the session was created with.
	Config vad.Config

	// ProcessErr, if non-nil, is returned from every ProcessFrame call.
	ProcessErr error

	// FrameCount is the number of ProcessFrame calls observed.
	FrameCount int

	// ResetCount is the number of Reset calls observed.
	ResetCount int

	// Closed reports whether Close has been called.
	Closed bool

	events []vad.VADEvent
	next   int
}

// ProcessFrame implements vad.SessionHandle by replaying the scripted events.
func (s *Session) ProcessFrame(_ []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FrameCount++
	if s.ProcessErr != nil {
		return vad.VADEvent{}, s.ProcessErr
	}
	if len(s.events) == 0 {
		return vad.VADEvent{Type: vad.VADSilence}, nil
	}
	ev := s.events[s.next]
	if s.next < len(s.events)-1 {
		s.next++
	}
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
	s.next = 0
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
