package dictation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/scribe/internal/audio"
	"github.com/opsdeck/scribe/internal/config"
	"github.com/opsdeck/scribe/internal/storage/sqlite"
	"github.com/opsdeck/scribe/internal/transcription"
	"github.com/opsdeck/scribe/internal/vad"
	"github.com/opsdeck/scribe/internal/websocket"
	"github.com/opsdeck/scribe/pkg/logger"
)

var (
	// ErrAlreadyRunning is returned by Start when a session is active.
	ErrAlreadyRunning = errors.New("dictation session already running")
	// ErrNotRunning is returned by Stop when no session is active.
	ErrNotRunning = errors.New("no dictation session running")
)

// TranscriptStore persists finalized transcript entries.
type TranscriptStore interface {
	StoreTranscript(record *sqlite.TranscriptRecord) error
}

// Broadcaster pushes pipeline updates to connected clients.
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// DeviceFactory creates a fresh capture device for each session.
type DeviceFactory func() (audio.Device, error)

// Service is the control surface for the dictation pipeline. It manages
// the lifecycle of capture sessions and collects their transcript entries.
type Service struct {
	vadCfg      config.VADConfig
	factory     DeviceFactory
	transcriber transcription.Transcriber
	store       TranscriptStore
	broadcaster Broadcaster
	logger      *logger.Logger

	mu        sync.RWMutex
	current   *session
	lastQueue *queue
	speaker   string
	entries   []TranscriptEntry
}

// NewService creates a dictation service. store and broadcaster may be nil.
func NewService(cfg *config.Config, factory DeviceFactory, t transcription.Transcriber, store TranscriptStore, broadcaster Broadcaster, log *logger.Logger) *Service {
	return &Service{
		vadCfg:      cfg.VAD,
		factory:     factory,
		transcriber: t,
		store:       store,
		broadcaster: broadcaster,
		speaker:     cfg.Dictation.DefaultSpeaker,
		logger:      log.Named("dictation"),
	}
}

// Start begins a new capture session. A previous session's queue, if any,
// is abandoned: its pending segments are dropped and an in-flight result
// will be discarded. Returns ErrAlreadyRunning if a session is active.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if s.lastQueue != nil {
		s.lastQueue.Abandon()
		s.lastQueue = nil
	}

	detector, err := vad.NewDetector(vad.Config{
		SilenceThreshold:  s.vadCfg.SilenceThreshold,
		SilenceDuration:   time.Duration(s.vadCfg.SilenceDurationMs) * time.Millisecond,
		MinSpeechDuration: time.Duration(s.vadCfg.MinSpeechMs) * time.Millisecond,
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create speech detector: %w", err)
	}

	device, err := s.factory()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create audio device: %w", err)
	}

	q := newQueue(s.transcriber, s.handleResult, s.broadcastState, s.logger)
	sess := newSession(device, detector, q, s.currentSpeaker, s.broadcastLevel, s.broadcastState, s.logger)

	if err := sess.start(ctx); err != nil {
		s.mu.Unlock()
		return err
	}

	s.current = sess
	s.lastQueue = q
	s.mu.Unlock()

	s.logger.Info("Dictation session started", logger.String("session_id", sess.id))
	s.broadcastState()
	return nil
}

// Stop ends the active session. Speech in progress is flushed and, if long
// enough, enqueued as a final segment; the queue keeps draining in the
// background. Returns ErrNotRunning if no session is active.
func (s *Service) Stop() error {
	s.mu.Lock()
	sess := s.current
	if sess == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.current = nil
	s.mu.Unlock()

	err := sess.stop()
	s.logger.Info("Dictation session stopped", logger.String("session_id", sess.id))
	s.broadcastState()
	return err
}

// SetSpeaker changes the name attributed to segments assembled after the
// call. Segments already queued keep their original speaker.
func (s *Service) SetSpeaker(name string) error {
	if name == "" {
		return errors.New("speaker name must not be empty")
	}

	s.mu.Lock()
	s.speaker = name
	s.mu.Unlock()

	s.logger.Info("Speaker changed", logger.String("speaker", name))
	s.broadcastState()
	return nil
}

// Status returns a snapshot of the pipeline.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Speaker: s.speaker}
	if s.current != nil {
		st.Active = true
		st.SessionID = s.current.id
		startedAt := s.current.startedAt
		st.StartedAt = &startedAt
		st.Level, st.Speaking = s.current.snapshot()
	}
	if s.lastQueue != nil {
		st.QueueDepth = s.lastQueue.Depth()
		st.Transcribing = s.lastQueue.Transcribing()
	}
	return st
}

// Transcript returns the most recent entries, oldest first. A limit of
// zero or less returns everything.
func (s *Service) Transcript(limit int) []TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}

func (s *Service) currentSpeaker() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaker
}

// handleResult runs on the queue worker goroutine.
func (s *Service) handleResult(seg Segment, text string) {
	entry := TranscriptEntry{
		ID:        uuid.NewString(),
		SessionID: seg.SessionID,
		Speaker:   seg.Speaker,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	if s.store != nil {
		record := &sqlite.TranscriptRecord{
			ID:        entry.ID,
			SessionID: entry.SessionID,
			Speaker:   entry.Speaker,
			Content:   entry.Content,
			CreatedAt: entry.CreatedAt,
		}
		if err := s.store.StoreTranscript(record); err != nil {
			s.logger.Error("Failed to persist transcript entry",
				logger.String("id", entry.ID),
				logger.Error(err))
		}
	}

	s.logger.Info("Transcript entry added",
		logger.String("id", entry.ID),
		logger.String("speaker", entry.Speaker),
		logger.Int("length", len(entry.Content)))

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeTranscript,
			Data: map[string]any{
				"id":         entry.ID,
				"session_id": entry.SessionID,
				"speaker":    entry.Speaker,
				"content":    entry.Content,
				"created_at": entry.CreatedAt.Format(time.RFC3339),
			},
		})
	}
}

func (s *Service) broadcastLevel(level float64, at time.Time) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeLevel,
		Data: map[string]any{
			"level": level,
			"time":  at.Format(time.RFC3339Nano),
		},
	})
}

func (s *Service) broadcastState() {
	if s.broadcaster == nil {
		return
	}
	st := s.Status()
	s.broadcaster.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeState,
		Data: map[string]any{
			"active":       st.Active,
			"session_id":   st.SessionID,
			"speaker":      st.Speaker,
			"speaking":     st.Speaking,
			"transcribing": st.Transcribing,
			"queue_depth":  st.QueueDepth,
		},
	})
}
