package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hagop-ai/hagopai/internal/progress"
)

// errorResponse is the JSON body for failed API requests.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

type lessonRequest struct {
	LessonID         string `json:"lesson_id"`
	Completed        bool   `json:"completed"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
	Score            int    `json:"score"`
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LessonID == "" {
		writeError(w, http.StatusBadRequest, "lesson_id is required")
		return
	}
	err := s.progressEng.RecordLessonProgress(r.Context(), req.LessonID, req.Completed, req.TimeSpentMinutes, req.Score)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.progressEng.Snapshot())
}

type chatRequest struct {
	NewChat             bool `json:"new_chat"`
	NewMessage          bool `json:"new_message"`
	FavoriteAdded       bool `json:"favorite_added"`
	TraditionalGreeting bool `json:"traditional_greeting"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.progressEng.RecordChatActivity(r.Context(), progress.ChatActivity{
		NewChat:             req.NewChat,
		NewMessage:          req.NewMessage,
		FavoriteAdded:       req.FavoriteAdded,
		TraditionalGreeting: req.TraditionalGreeting,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.progressEng.Snapshot())
}

type culturalRequest struct {
	EventID string `json:"event_id"`
	Topic   string `json:"topic"`
}

func (s *Server) handleCultural(w http.ResponseWriter, r *http.Request) {
	var req culturalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EventID == "" && req.Topic == "" {
		writeError(w, http.StatusBadRequest, "event_id or topic is required")
		return
	}
	if err := s.progressEng.RecordCulturalView(r.Context(), req.EventID, req.Topic); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.progressEng.Snapshot())
}

type customizationRequest struct {
	Theme                string `json:"theme"`
	AccessibilityFeature string `json:"accessibility_feature"`
}

func (s *Server) handleCustomization(w http.ResponseWriter, r *http.Request) {
	var req customizationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Theme == "" && req.AccessibilityFeature == "" {
		writeError(w, http.StatusBadRequest, "theme or accessibility_feature is required")
		return
	}
	if err := s.progressEng.RecordCustomization(r.Context(), req.Theme, req.AccessibilityFeature); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.progressEng.Snapshot())
}

type featureRequest struct {
	Feature string `json:"feature"`
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.progressEng.RecordFeatureUsage(r.Context(), req.Feature); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.progressEng.Snapshot())
}

type resetRequest struct {
	// All resets the entire aggregate and relocks every achievement.
	// False resets only the learning portion.
	All bool `json:"all"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var err error
	if req.All {
		err = s.progressEng.ResetAll(r.Context())
	} else {
		err = s.progressEng.ResetLearning(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.progressEng.Snapshot())
}

// progressResponse wraps the aggregate with derived statistics.
type progressResponse struct {
	*progress.UserProgress
	AverageSessionLengthMinutes float64 `json:"average_session_length_minutes"`
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	p := s.progressEng.Snapshot()
	writeJSON(w, http.StatusOK, progressResponse{
		UserProgress:                p,
		AverageSessionLengthMinutes: p.AverageSessionLengthMinutes(),
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.progressEng.Achievements())
}
