package server_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hagop-ai/hagopai/pkg/types"
)

type wsEvent struct {
	Type        string `json:"type"`
	Phase       string `json:"phase"`
	Text        string `json:"text"`
	User        string `json:"user"`
	Assistant   string `json:"assistant"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
}

// wsClient wraps a test connection to the voice WebSocket.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	ctx  context.Context

	events []wsEvent
	audio  [][]byte
}

func dialVoice(t *testing.T, ts *testServer) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/voice"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return &wsClient{t: t, conn: conn, ctx: ctx}
}

func (c *wsClient) send(msg string) {
	c.t.Helper()
	if err := c.conn.Write(c.ctx, websocket.MessageText, []byte(msg)); err != nil {
		c.t.Fatalf("write %q: %v", msg, err)
	}
}

// waitEvent reads messages until an event of the wanted type arrives.
// Binary audio frames are collected and acknowledged with a played message
// so the session's turn can complete.
func (c *wsClient) waitEvent(wantType string) wsEvent {
	c.t.Helper()
	for {
		msgType, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.t.Fatalf("read while waiting for %q event: %v (seen: %+v)", wantType, err, c.events)
		}
		if msgType == websocket.MessageBinary {
			c.audio = append(c.audio, data)
			c.send(`{"type":"played"}`)
			continue
		}
		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.t.Fatalf("unmarshal event %q: %v", data, err)
		}
		c.events = append(c.events, ev)
		if ev.Type == wantType {
			return ev
		}
	}
}

func (c *wsClient) sawPhase(phase string) bool {
	for _, ev := range c.events {
		if ev.Type == "phase" && ev.Phase == phase {
			return true
		}
	}
	return false
}

func TestVoiceWS_FullTurn(t *testing.T) {
	ts := newTestServer(t)
	c := dialVoice(t, ts)

	c.send(`{"type":"start"}`)
	ev := c.waitEvent("phase")
	if ev.Phase != "listening" {
		t.Fatalf("first phase = %q, want listening", ev.Phase)
	}

	ts.sttSess.FinalsCh <- types.Transcript{Text: "parev inchbes es", IsFinal: true}

	turn := c.waitEvent("turn")
	if turn.User != "parev inchbes es" || turn.Assistant != "Lav em!" {
		t.Errorf("turn = %+v", turn)
	}

	// Single-turn mode: after playback the session returns to idle.
	c.waitEvent("phase")
	for !c.sawPhase("idle") {
		c.waitEvent("phase")
	}
	if !c.sawPhase("processing") || !c.sawPhase("speaking") {
		t.Errorf("phases seen = %+v, want processing and speaking", c.events)
	}
	if len(c.audio) != 1 || string(c.audio[0]) != "tts-audio" {
		t.Errorf("audio frames = %d, want one synthesized payload", len(c.audio))
	}
}

func TestVoiceWS_PartialEvents(t *testing.T) {
	ts := newTestServer(t)
	c := dialVoice(t, ts)

	c.send(`{"type":"start"}`)
	c.waitEvent("phase")

	ts.sttSess.PartialsCh <- types.Transcript{Text: "parev inch"}
	ev := c.waitEvent("partial")
	if ev.Text != "parev inch" {
		t.Errorf("partial = %q", ev.Text)
	}
}

func TestVoiceWS_AchievementBroadcast(t *testing.T) {
	ts := newTestServer(t)
	c := dialVoice(t, ts)

	c.send(`{"type":"start"}`)
	c.waitEvent("phase")

	// A completed voice turn is the user's first chat, unlocking first_chat.
	ts.sttSess.FinalsCh <- types.Transcript{Text: "parev", IsFinal: true}
	ev := c.waitEvent("achievement")
	if ev.ID != "first_chat" {
		t.Errorf("achievement = %q, want first_chat", ev.ID)
	}
	if ev.Title != "First Conversation" {
		t.Errorf("title = %q, want First Conversation", ev.Title)
	}
	if ev.Description == "" {
		t.Error("achievement event missing description")
	}
	if ev.Category != "chat" {
		t.Errorf("category = %q, want chat", ev.Category)
	}
	if ev.Icon == "" {
		t.Error("achievement event missing icon")
	}
}

func TestVoiceWS_StopReturnsIdle(t *testing.T) {
	ts := newTestServer(t)
	c := dialVoice(t, ts)

	c.send(`{"type":"start"}`)
	c.waitEvent("phase")

	c.send(`{"type":"stop"}`)
	for !c.sawPhase("idle") {
		c.waitEvent("phase")
	}
}

func TestVoiceWS_UnknownControlRejected(t *testing.T) {
	ts := newTestServer(t)
	c := dialVoice(t, ts)

	c.send(`{"type":"teleport"}`)
	ev := c.waitEvent("error")
	if ev.Kind != "protocol" {
		t.Errorf("error kind = %q, want protocol", ev.Kind)
	}
}

func TestVoiceWS_StartErrorReported(t *testing.T) {
	ts := newTestServer(t)
	c := dialVoice(t, ts)

	c.send(`{"type":"start"}`)
	c.waitEvent("phase")
	// Starting again while listening is a client error, reported not fatal.
	c.send(`{"type":"start"}`)
	if ev := c.waitEvent("error"); ev.Message == "" {
		t.Error("error event missing message")
	}
}
