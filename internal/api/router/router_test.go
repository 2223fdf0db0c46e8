package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuongbtq/paper-processor/internal/api/handler"
	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	"github.com/cuongbtq/paper-processor/internal/processor/table"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubProcessor struct{}

func (stubProcessor) Submit(context.Context, domain.SubmitRequest) (string, error) {
	return "job-1", nil
}

func (stubProcessor) Status(string) (domain.Record, error) {
	return domain.Record{}, domain.ErrJobNotFound
}

func (stubProcessor) List(table.Filter) []domain.Record { return nil }

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(&handler.Dependencies{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Processor:   stubProcessor{},
		ServiceName: "paper-processor",
	})
}

func TestSetupRouter_Routes(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		method   string
		target   string
		body     string
		wantCode int
	}{
		{method: http.MethodGet, target: "/health", wantCode: http.StatusOK},
		{method: http.MethodPost, target: "/webhook/process-pdf", body: `{"file_url":"http://x/a.pdf","filename":"a.pdf"}`, wantCode: http.StatusOK},
		{method: http.MethodGet, target: "/status/unknown", wantCode: http.StatusNotFound},
		{method: http.MethodGet, target: "/api/v1/jobs", wantCode: http.StatusOK},
		{method: http.MethodGet, target: "/api/v1/nope", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/webhook/process-pdf", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{path: "/status/abc", status: http.StatusOK, want: slog.LevelDebug},
		{path: "/health", status: http.StatusOK, want: slog.LevelDebug},
		{path: "/webhook/process-pdf", status: http.StatusOK, want: slog.LevelInfo},
		{path: "/status/abc", status: http.StatusNotFound, want: slog.LevelWarn},
		{path: "/webhook/process-pdf", status: http.StatusUnsupportedMediaType, want: slog.LevelWarn},
		{path: "/health", status: http.StatusServiceUnavailable, want: slog.LevelError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, requestLevel(tt.path, tt.status), "%s %d", tt.path, tt.status)
	}
}
