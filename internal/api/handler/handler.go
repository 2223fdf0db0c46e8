package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	"github.com/cuongbtq/paper-processor/internal/processor/table"
)

// Processor is the job surface the handlers drive
type Processor interface {
	Submit(ctx context.Context, req domain.SubmitRequest) (string, error)
	Status(jobID string) (domain.Record, error)
	List(filter table.Filter) []domain.Record
}

// HealthChecker reports the health of a backing store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers.
// Database is nil when the paper store is disabled.
type Dependencies struct {
	Logger      *slog.Logger
	Processor   Processor
	Database    HealthChecker
	ServiceName string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	processor Processor
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		processor: deps.Processor,
	}
}
