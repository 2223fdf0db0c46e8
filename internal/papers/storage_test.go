package papers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/paper-processor/shared/database"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	s := NewStorage(sqlx.NewDb(mockDB, "postgres"), discardLogger())
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestStorage_MarkCompleted_Postgres(t *testing.T) {
	s, mock := newMockStorage(t)
	questions := json.RawMessage(`[{"question":"Q1"},{"question":"Q2"}]`)

	mock.ExpectExec(`INSERT INTO papers \(id, questions_data, questions_count, processing_status, processed_at\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5\)\s+ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("paper-1", string(questions), 2, StatusCompleted, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkCompleted(context.Background(), "paper-1", questions, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_MarkFailed_Postgres(t *testing.T) {
	tests := []struct {
		name    string
		execErr error
		wantErr bool
	}{
		{name: "success"},
		{name: "database error", execErr: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)

			exp := mock.ExpectExec(`INSERT INTO papers \(id, processing_status, processed_at\)`).
				WithArgs("paper-2", StatusFailed, fixedNow)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := s.MarkFailed(context.Background(), "paper-2")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to mark paper failed")
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_GetPaper_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`SELECT id, questions_data, questions_count, processing_status, processed_at\s+FROM papers\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "questions_data", "questions_count", "processing_status", "processed_at"}))

	_, err := s.GetPaper(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaperNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_SQLiteRoundTrip(t *testing.T) {
	client, err := database.NewClient(&database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, discardLogger())
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	s := NewStorage(client.GetDB(), discardLogger())
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema creation is idempotent")

	questions := json.RawMessage(`[{"question":"Q1","answer":"A1"}]`)
	require.NoError(t, s.MarkCompleted(ctx, "paper-1", questions, 1))

	p, err := s.GetPaper(ctx, "paper-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.ProcessingStatus)
	assert.Equal(t, 1, p.QuestionsCount)
	assert.JSONEq(t, string(questions), p.QuestionsData.String)
	assert.True(t, p.ProcessedAt.Valid)

	// a later failure keeps the stored questions
	require.NoError(t, s.MarkFailed(ctx, "paper-1"))
	p, err = s.GetPaper(ctx, "paper-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.ProcessingStatus)
	assert.Equal(t, 1, p.QuestionsCount)

	require.NoError(t, s.MarkFailed(ctx, "paper-2"))
	p, err = s.GetPaper(ctx, "paper-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.ProcessingStatus)
	assert.False(t, p.QuestionsData.Valid)
}
