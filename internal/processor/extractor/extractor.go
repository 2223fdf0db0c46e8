package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
)

const (
	defaultOutputSuffix = "_answers.json"
	defaultTailBytes    = 4096
	maxLineBytes        = 1 << 20
)

// Config describes how the extraction program is invoked
type Config struct {
	Command      string
	Args         []string
	WorkDir      string
	OutputDir    string
	OutputSuffix string
	Timeout      time.Duration
	Parser       ProgressParser
	// StderrTailBytes caps how much diagnostic output is kept for error messages
	StderrTailBytes int
}

// Result is the outcome of a successful run. Found is false when the program
// exited cleanly without writing a results artifact.
type Result struct {
	Found        bool
	ArtifactPath string
	Questions    []Question
	Raw          json.RawMessage
}

// Count returns the number of extracted items
func (r *Result) Count() int {
	return len(r.Questions)
}

// Extractor runs the external extraction program against downloaded files
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor
func New(cfg Config, logger *slog.Logger) *Extractor {
	if cfg.OutputSuffix == "" {
		cfg.OutputSuffix = defaultOutputSuffix
	}
	if cfg.StderrTailBytes <= 0 {
		cfg.StderrTailBytes = defaultTailBytes
	}
	if cfg.Parser == nil {
		cfg.Parser = TqdmParser{}
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// ArtifactPath returns where the program writes results for inputPath
func (e *Extractor) ArtifactPath(inputPath string) string {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(e.cfg.OutputDir, stem+e.cfg.OutputSuffix)
}

// Run executes the program with the absolute input path as its last argument
// and reports each recognised progress line through onProgress.
func (e *Extractor) Run(ctx context.Context, inputPath string, onProgress func(Event)) (*Result, error) {
	absInput, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("resolve input path: %w", err)
	}

	artifact := e.ArtifactPath(absInput)
	if err := os.Remove(artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("Failed to remove stale results artifact",
			slog.String("path", artifact),
			slog.String("error", err.Error()),
		)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.cfg.Args...), absInput)
	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Dir = e.cfg.WorkDir
	cmd.Stdout = &lineLogger{logger: e.logger}
	cmd.WaitDelay = 5 * time.Second

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLaunch, err)
	}

	e.logger.Info("Starting extraction",
		slog.String("command", e.cfg.Command),
		slog.String("args", strings.Join(args, " ")),
		slog.String("work_dir", e.cfg.WorkDir),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLaunch, err)
	}

	tail := &tailBuffer{max: e.cfg.StderrTailBytes}
	e.scanProgress(io.TeeReader(stderr, tail), onProgress)

	waitErr := cmd.Wait()
	e.logger.Info("Extraction finished",
		slog.Duration("duration", time.Since(start)),
		slog.Int("exit_code", cmd.ProcessState.ExitCode()),
	)

	if waitErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", domain.ErrExtractionTimeout, e.cfg.Timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extraction canceled: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &domain.ExitError{Code: exitErr.ExitCode(), Stderr: tail.String()}
		}
		return nil, fmt.Errorf("extraction failed: %w", waitErr)
	}

	return e.readArtifact(artifact)
}

func (e *Extractor) scanProgress(r io.Reader, onProgress func(Event)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanSegments)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ev, ok := e.cfg.Parser.Parse(line)
		if !ok {
			e.logger.Debug("Extractor output", slog.String("line", line))
			continue
		}
		if onProgress != nil {
			onProgress(ev)
		}
	}

	if err := scanner.Err(); err != nil {
		e.logger.Warn("Stopped parsing extractor output", slog.String("error", err.Error()))
	}
	// keep the pipe drained so the program never blocks on a full buffer
	_, _ = io.Copy(io.Discard, r)
}

func (e *Extractor) readArtifact(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Info("No results artifact written", slog.String("path", path))
		return &Result{Found: false, ArtifactPath: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResultsUnparseable, err)
	}

	questions, err := DecodeResults(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Found:        true,
		ArtifactPath: path,
		Questions:    questions,
		Raw:          json.RawMessage(data),
	}, nil
}

// lineLogger logs the program's standard output at debug level
type lineLogger struct {
	logger *slog.Logger
}

func (l *lineLogger) Write(p []byte) (int, error) {
	if text := strings.TrimSpace(string(p)); text != "" {
		l.logger.Debug("Extractor stdout", slog.String("output", text))
	}
	return len(p), nil
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	max       int
	buf       []byte
	truncated bool
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	s := strings.TrimSpace(string(t.buf))
	if t.truncated {
		return "..." + s
	}
	return s
}
