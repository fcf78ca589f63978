package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/opsdeck/scribe/pkg/logger"
)

// TranscriptRecord represents a finalized transcript entry in the database.
type TranscriptRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptStorage handles storage of transcript records
type TranscriptStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTranscriptStorage creates a new SQLite transcript storage
func NewTranscriptStorage(db *sql.DB, log *logger.Logger) *TranscriptStorage {
	storage := &TranscriptStorage{
		db:     db,
		logger: log.Named("sqlite-tx"),
	}

	if err := storage.initDB(); err != nil {
		log.Error("Failed to initialize transcript storage", logger.Error(err))
	}

	return storage
}

// initDB initializes the database tables
func (s *TranscriptStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_session_id ON transcripts(session_id)`)
	if err != nil {
		return fmt.Errorf("failed to create session_id index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_speaker ON transcripts(speaker)`)
	if err != nil {
		return fmt.Errorf("failed to create speaker index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_created_at ON transcripts(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// StoreTranscript stores a transcript record
func (s *TranscriptStorage) StoreTranscript(record *TranscriptRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO transcripts (id, session_id, speaker, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.Speaker,
		record.Content,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}

	return nil
}

// GetTranscripts returns all transcripts with pagination
func (s *TranscriptStorage) GetTranscripts(limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, content, created_at
		FROM transcripts
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	return scanTranscripts(rows)
}

// GetTranscriptsBySpeaker returns transcripts attributed to a speaker
func (s *TranscriptStorage) GetTranscriptsBySpeaker(speaker string, limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, content, created_at
		FROM transcripts
		WHERE speaker = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		speaker, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts by speaker: %w", err)
	}
	defer rows.Close()

	return scanTranscripts(rows)
}

// GetTranscriptsByTimeRange returns transcripts within a time range
func (s *TranscriptStorage) GetTranscriptsByTimeRange(startTime, endTime time.Time, limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, content, created_at
		FROM transcripts
		WHERE created_at BETWEEN ? AND ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		startTime.Format(time.RFC3339), endTime.Format(time.RFC3339), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts by time range: %w", err)
	}
	defer rows.Close()

	return scanTranscripts(rows)
}

// GetTranscriptsBySession returns transcripts produced by a dictation session
func (s *TranscriptStorage) GetTranscriptsBySession(sessionID string, limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, content, created_at
		FROM transcripts
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts by session: %w", err)
	}
	defer rows.Close()

	return scanTranscripts(rows)
}

func scanTranscripts(rows *sql.Rows) ([]*TranscriptRecord, error) {
	var records []*TranscriptRecord
	for rows.Next() {
		var record TranscriptRecord
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Speaker,
			&record.Content,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		record.CreatedAt = parsed

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcripts: %w", err)
	}

	return records, nil
}
