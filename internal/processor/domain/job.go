package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// SupportedExtension is the only file type eligible for extraction
const SupportedExtension = ".pdf"

// Record is the publicly visible state of one job
type Record struct {
	JobID       string
	FileURL     string
	Filename    string
	ExternalRef string
	Metadata    map[string]any
	Message     string
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Status returns the status of the record's current state
func (r Record) Status() Status {
	if r.State == nil {
		return StatusQueued
	}
	return r.State.Status()
}

// SubmitRequest is the input to a new job
type SubmitRequest struct {
	FileURL     string         `json:"file_url"`
	Filename    string         `json:"filename"`
	ExternalRef string         `json:"paper_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate rejects requests that must never produce a job record
func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.FileURL) == "" || strings.TrimSpace(r.Filename) == "" {
		return ErrMissingField
	}

	if !strings.EqualFold(filepath.Ext(r.Filename), SupportedExtension) {
		return ErrUnsupportedFileType
	}

	return nil
}
