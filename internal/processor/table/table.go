package table

import (
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/paper-processor/internal/processor/domain"
)

// Filter selects a page of records for listing
type Filter struct {
	Status   domain.Status
	PageSize int
	Cursor   *Cursor
}

// Cursor marks the last record of the previous page
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// Table is a process-wide map from job id to its current record.
// Writes replace the whole record; the last write wins.
type Table struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

// New creates an empty table
func New() *Table {
	return &Table{records: make(map[string]domain.Record)}
}

// Get returns the record for jobID
func (t *Table) Get(jobID string) (domain.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[jobID]
	return rec, ok
}

// Set replaces the record stored under rec.JobID
func (t *Table) Set(rec domain.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[rec.JobID] = rec
}

// Len returns the number of records held
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.records)
}

// List returns records ordered by CreatedAt desc, JobID desc. It fetches one
// record beyond PageSize so callers can tell whether another page exists.
func (t *Table) List(filter Filter) []domain.Record {
	t.mu.RLock()
	out := make([]domain.Record, 0, len(t.records))
	for _, rec := range t.records {
		if filter.Status != "" && rec.Status() != filter.Status {
			continue
		}
		if filter.Cursor != nil && !pastCursor(rec, filter.Cursor) {
			continue
		}
		out = append(out, rec)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].JobID > out[j].JobID
	})

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}

	return out
}

// pastCursor reports whether rec sorts strictly after the cursor position,
// i.e. (created_at, job_id) < (cursor.created_at, cursor.job_id)
func pastCursor(rec domain.Record, c *Cursor) bool {
	if rec.CreatedAt.Equal(c.CreatedAt) {
		return rec.JobID < c.JobID
	}
	return rec.CreatedAt.Before(c.CreatedAt)
}
