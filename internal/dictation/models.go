// Package dictation turns a continuous audio capture into transcript
// entries. It watches the energy stream for speech, assembles the encoded
// chunks of each utterance into a playable segment, and feeds segments
// through a serialized transcription queue.
package dictation

import "time"

// Segment is a complete, self-contained encoded utterance awaiting
// transcription. Data always begins with the capture's header chunk so the
// provider can decode it standalone.
type Segment struct {
	SessionID  string
	Speaker    string
	Data       []byte
	Duration   time.Duration
	CapturedAt time.Time
}

// TranscriptEntry is one finalized piece of recognized speech.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is a point-in-time snapshot of the dictation pipeline.
type Status struct {
	Active       bool       `json:"active"`
	SessionID    string     `json:"session_id,omitempty"`
	Speaker      string     `json:"speaker"`
	Speaking     bool       `json:"speaking"`
	Level        float64    `json:"level"`
	Transcribing bool       `json:"transcribing"`
	QueueDepth   int        `json:"queue_depth"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}
