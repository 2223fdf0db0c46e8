package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/paper-processor/internal/api/dto"
	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	"github.com/cuongbtq/paper-processor/internal/processor/table"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ProcessPDF handles POST /webhook/process-pdf
// Queues a PDF for question extraction and returns its processing id
func (h *JobHandler) ProcessPDF(c *gin.Context) {
	var req dto.ProcessPDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Invalid request body",
		})
		return
	}

	h.logger.Info("PDF processing requested",
		slog.String("filename", req.Filename),
		slog.String("paper_id", req.PaperID),
	)

	id, err := h.processor.Submit(c.Request.Context(), req.ToSubmitRequest())
	if err != nil {
		code, message := submitError(err)
		h.logger.Warn("Submission rejected",
			slog.String("filename", req.Filename),
			slog.String("error", err.Error()),
		)
		c.JSON(code, dto.ErrorResponse{Message: message})
		return
	}

	c.JSON(http.StatusOK, dto.ProcessPDFResponse{
		Success:      true,
		ProcessingID: id,
		Message:      "PDF processing started",
	})
}

func submitError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingField):
		return http.StatusBadRequest, "file_url and filename are required"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType, "Only PDF files can be processed for question extraction"
	case errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable, "Service is shutting down"
	default:
		return http.StatusInternalServerError, "Failed to start processing"
	}
}

// GetStatus handles GET /status/:processing_id
// Returns the current record of a job
func (h *JobHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("processing_id")

	rec, err := h.processor.Status(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "not found"})
			return
		}
		h.logger.Error("Failed to get status",
			slog.String("processing_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to get status"})
		return
	}

	c.JSON(http.StatusOK, dto.NewStatusResponse(rec))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	status := domain.Status(req.Status)
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid status"})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid cursor"})
		return
	}

	records := h.processor.List(table.Filter{
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})

	// one extra record signals another page
	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	jobs := make([]dto.JobDTO, len(records))
	for i, rec := range records {
		jobs[i] = dto.NewJobDTO(rec)
	}

	var nextCursor string
	if hasMore {
		last := records[len(records)-1]
		nextCursor = EncodeJobCursor(table.Cursor{CreatedAt: last.CreatedAt, JobID: last.JobID})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: nextCursor,
	})
}
