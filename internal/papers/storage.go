package papers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Processing status values written to the papers table
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrPaperNotFound is returned when no row exists for a paper id
var ErrPaperNotFound = errors.New("paper not found")

// Paper is the slice of a paper row this service owns
type Paper struct {
	ID               string         `db:"id"`
	QuestionsData    sql.NullString `db:"questions_data"`
	QuestionsCount   int            `db:"questions_count"`
	ProcessingStatus string         `db:"processing_status"`
	ProcessedAt      sql.NullTime   `db:"processed_at"`
}

// Storage writes extraction outcomes back to paper records
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS papers (
	id TEXT PRIMARY KEY,
	questions_data TEXT,
	questions_count INTEGER NOT NULL DEFAULT 0,
	processing_status TEXT NOT NULL,
	processed_at TIMESTAMP
)`

// EnsureSchema creates the papers table when it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create papers table: %w", err)
	}
	return nil
}

// MarkCompleted stores the extracted questions and their count
func (s *Storage) MarkCompleted(ctx context.Context, paperID string, questions json.RawMessage, count int) error {
	query := s.db.Rebind(`
		INSERT INTO papers (id, questions_data, questions_count, processing_status, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			questions_data = excluded.questions_data,
			questions_count = excluded.questions_count,
			processing_status = excluded.processing_status,
			processed_at = excluded.processed_at
	`)

	_, err := s.db.ExecContext(ctx, query, paperID, string(questions), count, StatusCompleted, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark paper completed: %w", err)
	}

	s.logger.Info("Paper marked completed",
		slog.String("paper_id", paperID),
		slog.Int("questions_count", count),
	)
	return nil
}

// MarkFailed records a failed processing attempt. Previously stored questions
// are left untouched.
func (s *Storage) MarkFailed(ctx context.Context, paperID string) error {
	query := s.db.Rebind(`
		INSERT INTO papers (id, processing_status, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			processing_status = excluded.processing_status,
			processed_at = excluded.processed_at
	`)

	if _, err := s.db.ExecContext(ctx, query, paperID, StatusFailed, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark paper failed: %w", err)
	}

	s.logger.Info("Paper marked failed", slog.String("paper_id", paperID))
	return nil
}

// GetPaper loads one paper row
func (s *Storage) GetPaper(ctx context.Context, paperID string) (*Paper, error) {
	query := s.db.Rebind(`
		SELECT id, questions_data, questions_count, processing_status, processed_at
		FROM papers
		WHERE id = ?
	`)

	var p Paper
	if err := s.db.GetContext(ctx, &p, query, paperID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaperNotFound
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return &p, nil
}
