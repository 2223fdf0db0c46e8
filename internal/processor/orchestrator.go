package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
	"github.com/cuongbtq/paper-processor/internal/processor/extractor"
	"github.com/cuongbtq/paper-processor/internal/processor/fetcher"
	"github.com/cuongbtq/paper-processor/internal/processor/table"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// StatusTable holds the current record of every job
type StatusTable interface {
	Get(jobID string) (domain.Record, bool)
	Set(rec domain.Record)
	List(filter table.Filter) []domain.Record
}

// Fetcher downloads the submitted file
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string, onProgress fetcher.ProgressFunc) (*fetcher.Result, error)
}

// Extractor runs the extraction program against a downloaded file
type Extractor interface {
	Run(ctx context.Context, inputPath string, onProgress func(extractor.Event)) (*extractor.Result, error)
	ArtifactPath(inputPath string) string
}

// PaperStore records outcomes against the originating paper
type PaperStore interface {
	MarkCompleted(ctx context.Context, paperID string, questions json.RawMessage, count int) error
	MarkFailed(ctx context.Context, paperID string) error
}

// Config holds orchestrator settings
type Config struct {
	ScratchDir        string
	MaxConcurrentJobs int
}

// Dependencies holds the collaborators of the orchestrator. Papers may be nil,
// in which case results are only kept in the status table.
type Dependencies struct {
	Logger    *slog.Logger
	Table     StatusTable
	Fetcher   Fetcher
	Extractor Extractor
	Papers    PaperStore
}

// Orchestrator drives submitted jobs through fetch, extract and persist
type Orchestrator struct {
	logger     *slog.Logger
	table      StatusTable
	fetcher    Fetcher
	extractor  Extractor
	papers     PaperStore
	scratchDir string
	sem        *semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool

	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator
func New(cfg Config, deps Dependencies) *Orchestrator {
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = 1
	}
	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = "temp-processing"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		logger:     deps.Logger,
		table:      deps.Table,
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		papers:     deps.Papers,
		scratchDir: scratch,
		sem:        semaphore.NewWeighted(int64(limit)),
		baseCtx:    ctx,
		cancel:     cancel,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Submit validates req, records a queued job and starts its pipeline.
// It never waits for the pipeline; pipeline errors end up in the record.
func (o *Orchestrator) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return "", domain.ErrShuttingDown
	}

	now := o.now()
	rec := domain.Record{
		JobID:       o.newID(),
		FileURL:     req.FileURL,
		Filename:    req.Filename,
		ExternalRef: req.ExternalRef,
		Metadata:    req.Metadata,
		Message:     "Processing queued",
		State:       domain.Queued{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.table.Set(rec)

	o.logger.InfoContext(ctx, "Job queued",
		slog.String("job_id", rec.JobID),
		slog.String("filename", rec.Filename),
		slog.String("paper_id", rec.ExternalRef),
	)

	o.wg.Add(1)
	go o.run(rec)

	return rec.JobID, nil
}

// Status returns the current record of jobID
func (o *Orchestrator) Status(jobID string) (domain.Record, error) {
	rec, ok := o.table.Get(jobID)
	if !ok {
		return domain.Record{}, domain.ErrJobNotFound
	}
	return rec, nil
}

// List returns a page of records, newest first
func (o *Orchestrator) List(filter table.Filter) []domain.Record {
	return o.table.List(filter)
}

// Wait blocks until every started pipeline has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown stops accepting jobs, cancels running pipelines and waits for
// them to record their final state or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("All jobs finished")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}
