package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	"github.com/cuongbtq/paper-processor/internal/processor/extractor"
	"github.com/cuongbtq/paper-processor/internal/processor/fetcher"
	"github.com/dustin/go-humanize"
)

const (
	msgDownloading = "Downloading PDF file..."
	msgProcessing  = "Extracting questions from PDF and analyzing with AI..."

	markFailedTimeout = 10 * time.Second
)

// job is the single writer of one record. Progress callbacks run on the
// pipeline goroutine, so it needs no locking.
type job struct {
	o      *Orchestrator
	rec    domain.Record
	logger *slog.Logger
}

// transition replaces the record with state. Edges outside the state machine
// are refused and logged.
func (j *job) transition(state domain.State, message string) bool {
	from, to := j.rec.Status(), state.Status()
	if !domain.CanTransition(from, to) {
		j.logger.Warn("Refusing status transition",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return false
	}

	next := j.rec
	next.State = state
	next.Message = message
	next.UpdatedAt = j.o.now()

	j.rec = next
	j.o.table.Set(next)

	if from != to {
		j.logger.Info("Job status changed",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("message", message),
		)
	}
	return true
}

func (o *Orchestrator) run(rec domain.Record) {
	defer o.wg.Done()

	j := &job{
		o:      o,
		rec:    rec,
		logger: o.logger.With(slog.String("job_id", rec.JobID)),
	}

	inputPath := filepath.Join(o.scratchDir, fmt.Sprintf("%s_%d.pdf", rec.JobID, o.now().UnixMilli()))
	defer o.cleanup(j, inputPath)

	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("Pipeline panicked", slog.Any("panic", r))
			o.fail(j, fmt.Errorf("unexpected panic: %v", r))
		}
	}()

	// wait for a slot while still queued
	if err := o.sem.Acquire(o.baseCtx, 1); err != nil {
		o.fail(j, fmt.Errorf("processing canceled: %w", err))
		return
	}
	defer o.sem.Release(1)

	if err := o.process(o.baseCtx, j, inputPath); err != nil {
		o.fail(j, err)
	}
}

func (o *Orchestrator) process(ctx context.Context, j *job, inputPath string) error {
	j.transition(domain.Downloading{ProgressText: "Starting download..."}, msgDownloading)

	downloaded, err := o.fetcher.Fetch(ctx, j.rec.FileURL, inputPath, func(p fetcher.Progress) {
		j.transition(domain.Downloading{
			Percentage:      p.Percentage,
			DownloadedBytes: p.DownloadedBytes,
			TotalBytes:      p.TotalBytes,
			ProgressText:    downloadText(p),
		}, msgDownloading)
	})
	if err != nil {
		return err
	}

	j.transition(domain.Downloading{
		Percentage:      100,
		DownloadedBytes: downloaded.Bytes,
		TotalBytes:      downloaded.Bytes,
		ProgressText:    fmt.Sprintf("Download completed (%s)", humanize.Bytes(uint64(downloaded.Bytes))),
	}, msgDownloading)

	j.logger.Info("PDF downloaded",
		slog.Int64("bytes", downloaded.Bytes),
		slog.String("md5", downloaded.MD5),
	)

	j.transition(domain.Processing{ProgressText: "Starting question extraction..."}, msgProcessing)

	result, err := o.extractor.Run(ctx, inputPath, func(ev extractor.Event) {
		j.transition(domain.Processing{
			Percentage:   ev.Percentage,
			CurrentItem:  ev.Current,
			TotalItems:   ev.Total,
			ProgressText: ev.Text(),
		}, msgProcessing)
	})
	if err != nil {
		return err
	}

	count := result.Count()
	stored := false
	if j.rec.ExternalRef != "" && count > 0 && o.papers != nil {
		if err := o.papers.MarkCompleted(ctx, j.rec.ExternalRef, result.Raw, count); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		stored = true
	}

	j.transition(domain.Completed{ResultCount: count}, completedMessage(count, stored))
	return nil
}

// fail records the failure and, when the job came from a paper, marks that
// paper failed. The secondary write never changes the job record.
func (o *Orchestrator) fail(j *job, err error) {
	reason := failureMessage(err)
	if !j.transition(domain.Failed{Reason: reason}, reason) {
		return
	}

	j.logger.Error("Job failed", slog.String("error", err.Error()))

	if j.rec.ExternalRef == "" || o.papers == nil {
		return
	}

	// the pipeline context may already be canceled
	ctx, cancel := context.WithTimeout(context.Background(), markFailedTimeout)
	defer cancel()

	if markErr := o.papers.MarkFailed(ctx, j.rec.ExternalRef); markErr != nil {
		j.logger.Warn("Failed to mark paper as failed",
			slog.String("paper_id", j.rec.ExternalRef),
			slog.String("error", markErr.Error()),
		)
	}
}

func (o *Orchestrator) cleanup(j *job, inputPath string) {
	for _, path := range []string{inputPath, o.extractor.ArtifactPath(inputPath)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("Failed to remove scratch file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func failureMessage(err error) string {
	var exitErr *domain.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Error()
	}
	return "Processing error: " + err.Error()
}

func completedMessage(count int, stored bool) string {
	switch {
	case count == 0:
		return "PDF processed but no questions found"
	case stored:
		return fmt.Sprintf("Successfully extracted and stored %d questions", count)
	default:
		return fmt.Sprintf("Successfully extracted %d questions", count)
	}
}

func downloadText(p fetcher.Progress) string {
	if p.TotalBytes <= 0 {
		return fmt.Sprintf("Downloaded %s", humanize.Bytes(uint64(p.DownloadedBytes)))
	}
	return fmt.Sprintf("Downloaded %s of %s (%d%%)",
		humanize.Bytes(uint64(p.DownloadedBytes)),
		humanize.Bytes(uint64(p.TotalBytes)),
		p.Percentage,
	)
}
