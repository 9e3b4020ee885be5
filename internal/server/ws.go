package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/hagop-ai/hagopai/internal/progress"
	"github.com/hagop-ai/hagopai/internal/voice"
	"github.com/hagop-ai/hagopai/pkg/audio"
	"github.com/hagop-ai/hagopai/pkg/audio/opus"
	"github.com/hagop-ai/hagopai/pkg/types"
)

const (
	// browserSampleRate is the rate of the Opus audio the browser sends.
	browserSampleRate = 48000

	// engineSampleRate matches the voice engine's recognizer input rate.
	engineSampleRate = 16000

	// engineFrameBytes is one 20 ms mono 16-bit frame at engineSampleRate.
	engineFrameBytes = engineSampleRate / 50 * 2

	// playbackAckTimeout bounds the wait for the client's playback-finished
	// acknowledgement so a vanished client cannot pin a session in Speaking.
	playbackAckTimeout = 60 * time.Second
)

// clientMessage is a JSON control message from the browser.
type clientMessage struct {
	Type string `json:"type"` // "start", "stop", "played"
}

// serverEvent is a JSON event pushed to the browser.
type serverEvent struct {
	Type        string `json:"type"`
	Phase       string `json:"phase,omitempty"`
	Text        string `json:"text,omitempty"`
	User        string `json:"user,omitempty"`
	Assistant   string `json:"assistant,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Message     string `json:"message,omitempty"`
	ID          string `json:"id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category,omitempty"`
}

// voiceSession binds one WebSocket connection to one voice engine.
type voiceSession struct {
	id     string
	conn   *websocket.Conn
	engine *voice.Engine

	writeMu sync.Mutex

	ackMu  sync.Mutex
	ackCh  chan struct{}
	closed bool
}

// handleVoiceWS upgrades the connection and runs the session until the
// client disconnects.
func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket accept", "error", err)
		return
	}

	vs := &voiceSession{
		id:   uuid.NewString(),
		conn: conn,
	}
	opts := []voice.Option{
		voice.WithRecorder(s.progressEng),
		voice.WithMetrics(s.metrics),
	}
	if s.deps.Corrector != nil {
		opts = append(opts, voice.WithCorrector(s.deps.Corrector))
	}
	vs.engine = voice.New(s.deps.STT, s.deps.VAD, s.deps.LLM, s.deps.TTS, vs, s.voiceConfig(), opts...)

	vs.engine.OnPhaseChange(func(p voice.Phase) {
		vs.sendEvent(serverEvent{Type: "phase", Phase: p.String()})
	})
	vs.engine.OnPartial(func(text string) {
		vs.sendEvent(serverEvent{Type: "partial", Text: text})
	})
	vs.engine.OnTurn(func(t types.Turn) {
		vs.sendEvent(serverEvent{Type: "turn", User: t.User, Assistant: t.Assistant})
	})
	vs.engine.OnError(func(e *voice.Error) {
		vs.sendEvent(serverEvent{Type: "error", Kind: string(e.Kind), Message: e.Message})
	})

	s.addSession(vs)
	s.metrics.RecordSessionStart(r.Context())
	slog.Info("server: voice session opened", "session_id", vs.id)

	vs.run(r.Context())

	vs.engine.Stop()
	vs.markClosed()
	s.removeSession(vs)
	s.metrics.RecordSessionEnd(context.Background())
	slog.Info("server: voice session closed", "session_id", vs.id)
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

// run is the connection read loop: JSON control messages and binary Opus
// audio frames.
func (vs *voiceSession) run(ctx context.Context) {
	var (
		decoder *opus.Decoder
		pcmBuf  []byte
	)

	for {
		msgType, data, err := vs.conn.Read(ctx)
		if err != nil {
			return
		}

		switch msgType {
		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				vs.sendEvent(serverEvent{Type: "error", Kind: "protocol", Message: "malformed control message"})
				continue
			}
			vs.handleControl(ctx, msg)

		case websocket.MessageBinary:
			if vs.engine.Phase() != voice.PhaseListening {
				continue
			}
			if decoder == nil {
				decoder, err = opus.NewDecoder(browserSampleRate, 1)
				if err != nil {
					slog.Error("server: opus decoder", "error", err)
					return
				}
			}
			pcm48, err := decoder.Decode(data)
			if err != nil {
				slog.Debug("server: opus decode", "session_id", vs.id, "error", err)
				continue
			}
			pcmBuf = append(pcmBuf, audio.ResampleMono16(pcm48, browserSampleRate, engineSampleRate)...)
			for len(pcmBuf) >= engineFrameBytes {
				frame := pcmBuf[:engineFrameBytes]
				pcmBuf = pcmBuf[engineFrameBytes:]
				if err := vs.engine.PushAudio(frame); err != nil {
					slog.Debug("server: push audio", "session_id", vs.id, "error", err)
				}
			}
		}
	}
}

func (vs *voiceSession) handleControl(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case "start":
		if err := vs.engine.Start(ctx); err != nil {
			verr := voice.Classify(err)
			vs.sendEvent(serverEvent{Type: "error", Kind: string(verr.Kind), Message: verr.Message})
		}
	case "stop":
		vs.engine.Stop()
	case "played":
		vs.ackPlayback()
	default:
		vs.sendEvent(serverEvent{Type: "error", Kind: "protocol", Message: "unknown message type " + msg.Type})
	}
}

// ─── voice.Player implementation ─────────────────────────────────────────────

// Play sends the synthesized reply as one binary message and blocks until
// the client acknowledges playback, the context is cancelled, or the ack
// timeout passes.
func (vs *voiceSession) Play(ctx context.Context, audioData []byte) error {
	ack := make(chan struct{})
	vs.ackMu.Lock()
	vs.ackCh = ack
	vs.ackMu.Unlock()

	if err := vs.writeBinary(ctx, audioData); err != nil {
		return err
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(playbackAckTimeout):
		// Treat a silent client as done rather than wedging the session.
		return nil
	}
}

// Stop tells the client to halt any playing audio.
func (vs *voiceSession) Stop() {
	vs.ackPlayback()
	vs.sendEvent(serverEvent{Type: "cancel_audio"})
}

func (vs *voiceSession) ackPlayback() {
	vs.ackMu.Lock()
	defer vs.ackMu.Unlock()
	if vs.ackCh != nil {
		close(vs.ackCh)
		vs.ackCh = nil
	}
}

func (vs *voiceSession) markClosed() {
	vs.ackMu.Lock()
	vs.closed = true
	vs.ackMu.Unlock()
}

func (vs *voiceSession) isClosed() bool {
	vs.ackMu.Lock()
	defer vs.ackMu.Unlock()
	return vs.closed
}

func (vs *voiceSession) sendAchievement(u progress.Unlock) {
	vs.sendEvent(serverEvent{
		Type:        "achievement",
		ID:          u.Achievement.ID,
		Title:       u.Achievement.Title,
		Description: u.Achievement.Description,
		Icon:        u.Achievement.Icon,
		Category:    u.Achievement.Category,
	})
}

func (vs *voiceSession) sendEvent(ev serverEvent) {
	if vs.isClosed() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("server: marshal event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	vs.writeMu.Lock()
	defer vs.writeMu.Unlock()
	if err := vs.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("server: write event", "session_id", vs.id, "error", err)
	}
}

func (vs *voiceSession) writeBinary(ctx context.Context, data []byte) error {
	vs.writeMu.Lock()
	defer vs.writeMu.Unlock()
	return vs.conn.Write(ctx, websocket.MessageBinary, data)
}
