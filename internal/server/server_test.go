package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hagop-ai/hagopai/internal/config"
	"github.com/hagop-ai/hagopai/internal/health"
	"github.com/hagop-ai/hagopai/internal/progress"
	"github.com/hagop-ai/hagopai/internal/progress/store"
	"github.com/hagop-ai/hagopai/internal/server"
	"github.com/hagop-ai/hagopai/pkg/provider/llm"
	llmmock "github.com/hagop-ai/hagopai/pkg/provider/llm/mock"
	sttmock "github.com/hagop-ai/hagopai/pkg/provider/stt/mock"
	ttsmock "github.com/hagop-ai/hagopai/pkg/provider/tts/mock"
	vadmock "github.com/hagop-ai/hagopai/pkg/provider/vad/mock"
	"github.com/hagop-ai/hagopai/pkg/types"
)

type testServer struct {
	srv      *httptest.Server
	progress *progress.Engine
	sttSess  *sttmock.Session
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "progress.json"))
	eng, err := progress.New(context.Background(), st)
	if err != nil {
		t.Fatalf("progress.New: %v", err)
	}

	sess := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	deps := server.VoiceDeps{
		STT: &sttmock.Provider{Session: sess},
		VAD: &vadmock.Engine{},
		LLM: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Lav em!"}},
		TTS: &ttsmock.Provider{SynthesizeResult: []byte("tts-audio")},
	}
	voiceCfg := config.VoiceConfig{SilenceTimeoutMs: 30, Language: "en"}

	s := server.New(eng, deps, voiceCfg, server.WithHealth(health.New()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testServer{srv: ts, progress: eng, sttSess: sess}
}

func (ts *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResp[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestLessonEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/api/progress/lesson",
		`{"lesson_id":"greetings-1","completed":true,"time_spent_minutes":12,"score":85}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	p := decodeResp[progress.UserProgress](t, resp)
	if len(p.Learning.LessonsCompleted) != 1 {
		t.Errorf("LessonsCompleted = %v", p.Learning.LessonsCompleted)
	}
	if p.Learning.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", p.Learning.CurrentStreak)
	}
}

func TestLessonEndpoint_Validation(t *testing.T) {
	ts := newTestServer(t)

	if resp := ts.post(t, "/api/progress/lesson", `{"completed":true}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing lesson_id status = %d, want 400", resp.StatusCode)
	}
	if resp := ts.post(t, "/api/progress/lesson", `{not json`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
	if resp := ts.post(t, "/api/progress/lesson", `{"lesson_id":"x","bogus":1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestChatEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/api/progress/chat", `{"new_chat":true,"new_message":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	p := decodeResp[progress.UserProgress](t, resp)
	if p.Chat.TotalChats != 1 || p.Chat.TotalMessages != 1 {
		t.Errorf("chat counters = %+v", p.Chat)
	}
}

func TestCulturalEndpoint_RequiresInput(t *testing.T) {
	ts := newTestServer(t)
	if resp := ts.post(t, "/api/progress/cultural", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if resp := ts.post(t, "/api/progress/cultural", `{"topic":"holidays"}`); resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestFeatureEndpoint_EmptyRejected(t *testing.T) {
	ts := newTestServer(t)
	if resp := ts.post(t, "/api/progress/feature", `{"feature":""}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestResetEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.post(t, "/api/progress/chat", `{"new_chat":true}`)
	resp := ts.post(t, "/api/progress/reset", `{"all":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	p := decodeResp[progress.UserProgress](t, resp)
	if p.Chat.TotalChats != 0 {
		t.Errorf("TotalChats = %d after full reset", p.Chat.TotalChats)
	}
	if len(p.Usage.UnlockedAchievements) != 0 {
		t.Errorf("achievements survived full reset: %v", p.Usage.UnlockedAchievements)
	}
}

func TestGetProgress_IncludesDerivedStats(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/api/progress")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["average_session_length_minutes"]; !ok {
		t.Error("derived stats missing from progress response")
	}
}

func TestAchievementsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.post(t, "/api/progress/lesson", `{"lesson_id":"l1","completed":true}`)

	resp := ts.get(t, "/api/achievements")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	statuses := decodeResp[[]progress.AchievementStatus](t, resp)
	if len(statuses) != len(progress.Catalog()) {
		t.Fatalf("achievements = %d, want full catalog", len(statuses))
	}
	var firstLesson *progress.AchievementStatus
	for i := range statuses {
		if statuses[i].Achievement.ID == "first_lesson" {
			firstLesson = &statuses[i]
		}
	}
	if firstLesson == nil || !firstLesson.Unlocked {
		t.Errorf("first_lesson = %+v, want unlocked", firstLesson)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	if resp := ts.get(t, "/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", resp.StatusCode)
	}
	if resp := ts.get(t, "/readyz"); resp.StatusCode != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("content type = %q, want prometheus exposition", ct)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/progress/lesson")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on POST route = %d, want 405", resp.StatusCode)
	}
}

func TestGetProgress_AfterLessonPersists(t *testing.T) {
	ts := newTestServer(t)

	ts.post(t, "/api/progress/lesson", `{"lesson_id":"l1","completed":true,"time_spent_minutes":5}`)
	resp := ts.get(t, "/api/progress")
	var body struct {
		Learning progress.LearningProgress `json:"learning"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Learning.TotalTimeSpentMinutes != 5 {
		t.Errorf("TotalTimeSpentMinutes = %d, want 5", body.Learning.TotalTimeSpentMinutes)
	}
}

func init() {
	// Keep waits snappy if a handler deadlocks in CI.
	http.DefaultClient.Timeout = 10 * time.Second
}
