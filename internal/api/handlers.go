// Package api exposes the HTTP control surface for the dictation pipeline.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsdeck/scribe/internal/config"
	"github.com/opsdeck/scribe/internal/dictation"
	"github.com/opsdeck/scribe/internal/storage/sqlite"
	"github.com/opsdeck/scribe/internal/websocket"
	"github.com/opsdeck/scribe/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	dictationService  *dictation.Service
	transcriptStorage *sqlite.TranscriptStorage
	config            *config.Config
	logger            *logger.Logger
	wsServer          *websocket.Server
}

// NewHandler creates a new API handler
func NewHandler(dictationService *dictation.Service, transcriptStorage *sqlite.TranscriptStorage, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		dictationService:  dictationService,
		transcriptStorage: transcriptStorage,
		config:            cfg,
		logger:            log.Named("api-handler"),
		wsServer:          wsServer,
	}
}

// GetHealth returns service health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// StartDictation begins a new capture session
func (h *Handler) StartDictation(w http.ResponseWriter, r *http.Request) {
	if err := h.dictationService.Start(r.Context()); err != nil {
		if errors.Is(err, dictation.ErrAlreadyRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("Failed to start dictation", logger.Error(err))
		http.Error(w, "Failed to start dictation", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, h.dictationService.Status())
}

// StopDictation ends the active capture session
func (h *Handler) StopDictation(w http.ResponseWriter, r *http.Request) {
	if err := h.dictationService.Stop(); err != nil {
		if errors.Is(err, dictation.ErrNotRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("Failed to stop dictation", logger.Error(err))
		http.Error(w, "Failed to stop dictation", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, h.dictationService.Status())
}

// SetSpeaker changes the speaker attributed to upcoming segments
func (h *Handler) SetSpeaker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speaker string `json:"speaker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.dictationService.SetSpeaker(req.Speaker); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	WriteJSON(w, http.StatusOK, h.dictationService.Status())
}

// GetDictationStatus returns a snapshot of the pipeline
func (h *Handler) GetDictationStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.dictationService.Status())
}

// GetLiveTranscript returns the in-memory transcript of recent entries
func (h *Handler) GetLiveTranscript(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries := h.dictationService.Transcript(limit)
	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"count":     len(entries),
		"entries":   entries,
	})
}

// GetAllTranscripts returns persisted transcripts with pagination
func (h *Handler) GetAllTranscripts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	transcripts, err := h.transcriptStorage.GetTranscripts(limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcripts", logger.Error(err))
		http.Error(w, "Failed to retrieve transcripts", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp":   time.Now().UTC(),
		"count":       len(transcripts),
		"transcripts": transcripts,
	})
}

// GetTranscriptsBySpeaker returns persisted transcripts for a speaker
func (h *Handler) GetTranscriptsBySpeaker(w http.ResponseWriter, r *http.Request) {
	speaker := chi.URLParam(r, "speaker")
	if speaker == "" {
		http.Error(w, "Missing speaker", http.StatusBadRequest)
		return
	}

	limit, offset := parsePaginationParams(r)

	transcripts, err := h.transcriptStorage.GetTranscriptsBySpeaker(speaker, limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcripts by speaker", logger.Error(err))
		http.Error(w, "Failed to retrieve transcripts", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp":   time.Now().UTC(),
		"speaker":     speaker,
		"count":       len(transcripts),
		"transcripts": transcripts,
	})
}

// GetTranscriptsBySession returns persisted transcripts for a session
func (h *Handler) GetTranscriptsBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	limit, offset := parsePaginationParams(r)

	transcripts, err := h.transcriptStorage.GetTranscriptsBySession(sessionID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcripts by session", logger.Error(err))
		http.Error(w, "Failed to retrieve transcripts", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp":   time.Now().UTC(),
		"session_id":  sessionID,
		"count":       len(transcripts),
		"transcripts": transcripts,
	})
}

// GetTranscriptsByTimeRange returns persisted transcripts within a time range
func (h *Handler) GetTranscriptsByTimeRange(w http.ResponseWriter, r *http.Request) {
	startTime, endTime, err := parseTimeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit, offset := parsePaginationParams(r)

	transcripts, err := h.transcriptStorage.GetTranscriptsByTimeRange(startTime, endTime, limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcripts by time range", logger.Error(err))
		http.Error(w, "Failed to retrieve transcripts", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp":   time.Now().UTC(),
		"start_time":  startTime,
		"end_time":    endTime,
		"count":       len(transcripts),
		"transcripts": transcripts,
	})
}

// HandleWebSocket handles WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("WebSocket connection request received")
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Helper functions
func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100 // Default limit
	offset := 0  // Default offset

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

func parseTimeRangeParams(r *http.Request) (time.Time, time.Time, error) {
	startTimeStr := r.URL.Query().Get("start_time")
	endTimeStr := r.URL.Query().Get("end_time")

	if startTimeStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("missing start_time parameter")
	}

	startTime, err := time.Parse(time.RFC3339, startTimeStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time format (use RFC3339)")
	}

	endTime := time.Now()
	if endTimeStr != "" {
		endTime, err = time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time format (use RFC3339)")
		}
	}

	return startTime, endTime, nil
}
