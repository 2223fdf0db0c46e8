package dto

import (
	"time"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
)

// ProcessPDFRequest is the webhook body
type ProcessPDFRequest struct {
	FileURL  string         `json:"file_url"`
	Filename string         `json:"filename"`
	PaperID  string         `json:"paper_id"`
	Metadata map[string]any `json:"metadata"`
}

// ToSubmitRequest converts the body into a processor submission
func (r ProcessPDFRequest) ToSubmitRequest() domain.SubmitRequest {
	return domain.SubmitRequest{
		FileURL:     r.FileURL,
		Filename:    r.Filename,
		ExternalRef: r.PaperID,
		Metadata:    r.Metadata,
	}
}

type ProcessPDFResponse struct {
	Success      bool   `json:"success"`
	ProcessingID string `json:"processing_id,omitempty"`
	Message      string `json:"message"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResponse is the polled view of one job. Fields that do not belong
// to the current state are zero, and progress is null.
type StatusResponse struct {
	Success            bool    `json:"success"`
	Status             string  `json:"status"`
	Message            string  `json:"message"`
	QuestionsCount     int     `json:"questions_count"`
	Progress           *string `json:"progress"`
	Percentage         int     `json:"percentage"`
	CurrentQuestion    int     `json:"currentQuestion"`
	TotalQuestions     int     `json:"totalQuestions"`
	DownloadPercentage int     `json:"downloadPercentage"`
	DownloadedSize     int64   `json:"downloadedSize"`
	TotalSize          int64   `json:"totalSize"`
	Timestamp          string  `json:"timestamp"`
}

// NewStatusResponse projects rec onto the response shape
func NewStatusResponse(rec domain.Record) StatusResponse {
	resp := StatusResponse{
		Success:   true,
		Status:    string(rec.Status()),
		Message:   rec.Message,
		Timestamp: rec.UpdatedAt.UTC().Format(time.RFC3339),
	}

	switch s := rec.State.(type) {
	case domain.Downloading:
		resp.Progress = textOrNil(s.ProgressText)
		resp.DownloadPercentage = s.Percentage
		resp.DownloadedSize = s.DownloadedBytes
		resp.TotalSize = s.TotalBytes
	case domain.Processing:
		resp.Progress = textOrNil(s.ProgressText)
		resp.Percentage = s.Percentage
		resp.CurrentQuestion = s.CurrentItem
		resp.TotalQuestions = s.TotalItems
	case domain.Completed:
		resp.QuestionsCount = s.ResultCount
	}

	return resp
}

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID     string `json:"job_id"`
	Filename  string `json:"filename"`
	FileURL   string `json:"file_url"`
	PaperID   string `json:"paper_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewJobDTO converts a record into its listing entry
func NewJobDTO(rec domain.Record) JobDTO {
	return JobDTO{
		JobID:     rec.JobID,
		Filename:  rec.Filename,
		FileURL:   rec.FileURL,
		PaperID:   rec.ExternalRef,
		Status:    string(rec.Status()),
		Message:   rec.Message,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
