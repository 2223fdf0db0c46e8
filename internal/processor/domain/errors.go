package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when no record exists for a job id
	ErrJobNotFound = errors.New("job not found")

	// ErrMissingField is returned when file_url or filename is empty
	ErrMissingField = errors.New("file_url and filename are required")

	// ErrUnsupportedFileType is returned for any filename that is not a PDF
	ErrUnsupportedFileType = errors.New("only PDF files can be processed for question extraction")

	// ErrInvalidTransition is returned when a write would leave the state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDownloadTimeout is returned when the transfer exceeds its ceiling
	ErrDownloadTimeout = errors.New("download timeout")

	// ErrEmptyDownload is returned when the transfer produced zero bytes
	ErrEmptyDownload = errors.New("downloaded file is empty")

	// ErrLaunch is returned when the extraction program could not be started
	ErrLaunch = errors.New("failed to start PDF processor")

	// ErrExtractionTimeout is returned when the extraction program runs too long
	ErrExtractionTimeout = errors.New("extraction timeout")

	// ErrResultsUnparseable is returned when the results artifact is not a valid item list
	ErrResultsUnparseable = errors.New("error parsing processing results")

	// ErrPersistence is returned when results could not be written to the paper store
	ErrPersistence = errors.New("error saving questions to database")

	// ErrShuttingDown is returned by Submit once shutdown has begun
	ErrShuttingDown = errors.New("processor is shutting down")
)

// HTTPStatusError is returned when the remote file server answers with a non-2xx status
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// ExitError is returned when the extraction program exits with a non-zero code.
// Stderr holds the tail of its diagnostic stream.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("PDF processing failed with code %d", e.Code)
	}
	return fmt.Sprintf("PDF processing failed with code %d. Error: %s", e.Code, e.Stderr)
}
