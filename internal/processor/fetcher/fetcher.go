package fetcher

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
)

// DefaultTimeout bounds a whole transfer, headers included
const DefaultTimeout = 30 * time.Second

// Progress describes the transfer so far. Percentage stays 0 when the server
// did not declare a Content-Length.
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
	Percentage      int
}

// ProgressFunc receives one event per received chunk
type ProgressFunc func(Progress)

// Result describes a completed download
type Result struct {
	Path  string
	Bytes int64
	MD5   string
}

// Fetcher downloads remote files into local scratch storage
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Fetcher. A nil client falls back to http.DefaultClient.
func New(client *http.Client, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{client: client, timeout: timeout, logger: logger}
}

// Fetch streams url into dst. Any partial file is removed on failure.
func (f *Fetcher) Fetch(ctx context.Context, url, dst string, onProgress ProgressFunc) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res, err := f.fetch(ctx, url, dst, onProgress)
	if err != nil {
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Warn("Failed to remove partial download",
				slog.String("path", dst),
				slog.String("error", rmErr.Error()),
			)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", domain.ErrDownloadTimeout, f.timeout)
		}
		return nil, err
	}

	return res, nil
}

func (f *Fetcher) fetch(ctx context.Context, url, dst string, onProgress ProgressFunc) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to download file: %w", &domain.HTTPStatusError{Code: resp.StatusCode})
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	pw := &progressWriter{
		dst:        out,
		hash:       md5.New(),
		total:      resp.ContentLength,
		onProgress: onProgress,
	}

	_, copyErr := io.Copy(pw, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("failed to download file: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close file: %w", closeErr)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return nil, domain.ErrEmptyDownload
	}

	total := pw.total
	if total <= 0 {
		total = pw.written
	}
	if onProgress != nil {
		onProgress(Progress{DownloadedBytes: pw.written, TotalBytes: total, Percentage: 100})
	}

	res := &Result{
		Path:  dst,
		Bytes: info.Size(),
		MD5:   hex.EncodeToString(pw.hash.Sum(nil)),
	}

	f.logger.Info("File downloaded",
		slog.String("path", dst),
		slog.Int64("bytes", res.Bytes),
		slog.String("md5", res.MD5),
	)

	return res, nil
}

// progressWriter tees each chunk into the file and the digest and reports
// progress after every write
type progressWriter struct {
	dst        io.Writer
	hash       hash.Hash
	total      int64
	written    int64
	onProgress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.dst.Write(b)
	p.hash.Write(b[:n])
	p.written += int64(n)

	if p.onProgress != nil && n > 0 {
		ev := Progress{DownloadedBytes: p.written}
		if p.total > 0 {
			ev.TotalBytes = p.total
			ev.Percentage = int(p.written * 100 / p.total)
			if ev.Percentage > 100 {
				ev.Percentage = 100
			}
		}
		p.onProgress(ev)
	}

	return n, err
}
