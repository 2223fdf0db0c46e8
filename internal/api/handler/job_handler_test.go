package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/paper-processor/internal/api/dto"
	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	"github.com/cuongbtq/paper-processor/internal/processor/table"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	submitted []domain.SubmitRequest
	submitErr error
	table     *table.Table
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{table: table.New()}
}

func (p *fakeProcessor) Submit(_ context.Context, req domain.SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.submitted = append(p.submitted, req)
	return "job-" + strconv.Itoa(len(p.submitted)), nil
}

func (p *fakeProcessor) Status(jobID string) (domain.Record, error) {
	rec, ok := p.table.Get(jobID)
	if !ok {
		return domain.Record{}, domain.ErrJobNotFound
	}
	return rec, nil
}

func (p *fakeProcessor) List(filter table.Filter) []domain.Record {
	return p.table.List(filter)
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func newTestEngine(proc Processor, db HealthChecker) *gin.Engine {
	deps := &Dependencies{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Processor:   proc,
		Database:    db,
		ServiceName: "paper-processor",
	}
	jobs := NewJobHandler(deps)
	health := NewHealthHandler(deps)

	r := gin.New()
	r.GET("/health", health.Health)
	r.POST("/webhook/process-pdf", jobs.ProcessPDF)
	r.GET("/status/:processing_id", jobs.GetStatus)
	r.GET("/api/v1/jobs", jobs.ListJobs)
	return r
}

func do(t *testing.T, r http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w, decoded
}

func TestProcessPDF(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		submitErr   error
		wantCode    int
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "accepted",
			body:        `{"file_url":"http://x/test.pdf","filename":"test.pdf","paper_id":"p1","metadata":{"subject":"math"}}`,
			wantCode:    http.StatusOK,
			wantSuccess: true,
			wantMessage: "PDF processing started",
		},
		{
			name:        "missing filename",
			body:        `{"file_url":"http://x/test.pdf"}`,
			wantCode:    http.StatusBadRequest,
			wantMessage: "file_url and filename are required",
		},
		{
			name:        "docx rejected",
			body:        `{"file_url":"http://x/paper.docx","filename":"paper.docx"}`,
			wantCode:    http.StatusUnsupportedMediaType,
			wantMessage: "Only PDF files can be processed for question extraction",
		},
		{
			name:        "malformed json",
			body:        `{"file_url":`,
			wantCode:    http.StatusBadRequest,
			wantMessage: "Invalid request body",
		},
		{
			name:        "shutting down",
			body:        `{"file_url":"http://x/test.pdf","filename":"test.pdf"}`,
			submitErr:   domain.ErrShuttingDown,
			wantCode:    http.StatusServiceUnavailable,
			wantMessage: "Service is shutting down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := newFakeProcessor()
			proc.submitErr = tt.submitErr

			w, body := do(t, newTestEngine(proc, nil), http.MethodPost, "/webhook/process-pdf", tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantSuccess, body["success"])
			assert.Equal(t, tt.wantMessage, body["message"])

			if tt.wantSuccess {
				assert.Equal(t, "job-1", body["processing_id"])
				require.Len(t, proc.submitted, 1)
				assert.Equal(t, "p1", proc.submitted[0].ExternalRef)
				assert.Equal(t, "math", proc.submitted[0].Metadata["subject"])
			} else {
				assert.NotContains(t, body, "processing_id")
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	updated := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	proc := newFakeProcessor()
	proc.table.Set(domain.Record{
		JobID:     "downloading",
		State:     domain.Downloading{Percentage: 40, DownloadedBytes: 400, TotalBytes: 1000, ProgressText: "Downloaded 400 B of 1.0 kB (40%)"},
		Message:   "Downloading PDF file...",
		UpdatedAt: updated,
	})
	proc.table.Set(domain.Record{
		JobID:     "processing",
		State:     domain.Processing{Percentage: 50, CurrentItem: 1, TotalItems: 2, ProgressText: "Analyzing question 1 of 2 (50%)"},
		UpdatedAt: updated,
	})
	proc.table.Set(domain.Record{
		JobID:     "completed",
		State:     domain.Completed{ResultCount: 2},
		Message:   "Successfully extracted 2 questions",
		UpdatedAt: updated,
	})
	r := newTestEngine(proc, nil)

	t.Run("downloading", func(t *testing.T) {
		w, body := do(t, r, http.MethodGet, "/status/downloading", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "downloading", body["status"])
		assert.EqualValues(t, 40, body["downloadPercentage"])
		assert.EqualValues(t, 400, body["downloadedSize"])
		assert.EqualValues(t, 1000, body["totalSize"])
		assert.EqualValues(t, 0, body["percentage"])
		assert.Equal(t, "Downloaded 400 B of 1.0 kB (40%)", body["progress"])
		assert.Equal(t, "2026-05-01T10:00:00Z", body["timestamp"])
	})

	t.Run("processing", func(t *testing.T) {
		_, body := do(t, r, http.MethodGet, "/status/processing", "")
		assert.Equal(t, "processing", body["status"])
		assert.EqualValues(t, 50, body["percentage"])
		assert.EqualValues(t, 1, body["currentQuestion"])
		assert.EqualValues(t, 2, body["totalQuestions"])
		assert.EqualValues(t, 0, body["downloadPercentage"])
	})

	t.Run("completed has no stale progress", func(t *testing.T) {
		_, body := do(t, r, http.MethodGet, "/status/completed", "")
		assert.Equal(t, "completed", body["status"])
		assert.EqualValues(t, 2, body["questions_count"])
		assert.Nil(t, body["progress"])
		assert.EqualValues(t, 0, body["percentage"])
		assert.EqualValues(t, 0, body["downloadPercentage"])

		_, again := do(t, r, http.MethodGet, "/status/completed", "")
		assert.Equal(t, body, again)
	})

	t.Run("unknown id", func(t *testing.T) {
		w, body := do(t, r, http.MethodGet, "/status/does-not-exist", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, map[string]any{"success": false, "message": "not found"}, body)
	})
}

func TestListJobs(t *testing.T) {
	proc := newFakeProcessor()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		var state domain.State = domain.Queued{}
		if i%2 == 0 {
			state = domain.Completed{ResultCount: i}
		}
		proc.table.Set(domain.Record{
			JobID:     "job-" + strconv.Itoa(i),
			Filename:  "paper.pdf",
			State:     state,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	r := newTestEngine(proc, nil)

	get := func(t *testing.T, target string) dto.ListJobsResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	ids := func(resp dto.ListJobsResponse) []string {
		out := make([]string, len(resp.Jobs))
		for i, j := range resp.Jobs {
			out[i] = j.JobID
		}
		return out
	}

	t.Run("pages newest first", func(t *testing.T) {
		first := get(t, "/api/v1/jobs?page_size=2")
		assert.Equal(t, []string{"job-4", "job-3"}, ids(first))
		require.NotEmpty(t, first.NextCursor)

		second := get(t, "/api/v1/jobs?page_size=2&cursor="+first.NextCursor)
		assert.Equal(t, []string{"job-2", "job-1"}, ids(second))

		third := get(t, "/api/v1/jobs?page_size=2&cursor="+second.NextCursor)
		assert.Equal(t, []string{"job-0"}, ids(third))
		assert.Empty(t, third.NextCursor)
	})

	t.Run("status filter", func(t *testing.T) {
		resp := get(t, "/api/v1/jobs?status=completed")
		assert.Equal(t, []string{"job-4", "job-2", "job-0"}, ids(resp))
		for _, j := range resp.Jobs {
			assert.Equal(t, "completed", j.Status)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		for _, target := range []string{
			"/api/v1/jobs?status=running",
			"/api/v1/jobs?cursor=!!!!",
			"/api/v1/jobs?page_size=abc",
		} {
			w, body := do(t, r, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, target)
			assert.Equal(t, false, body["success"])
		}
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         HealthChecker
		wantCode   int
		wantStatus string
		wantDB     any
	}{
		{name: "no database", wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "database up", db: fakeHealth{}, wantCode: http.StatusOK, wantStatus: "healthy", wantDB: "healthy"},
		{name: "database down", db: fakeHealth{err: errors.New("dial tcp: refused")}, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy", wantDB: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, newTestEngine(newFakeProcessor(), tt.db), http.MethodGet, "/health", "")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, "paper-processor", body["service"])
			assert.Equal(t, tt.wantDB, body["database"])
		})
	}
}
