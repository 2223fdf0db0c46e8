package domain

// Status is the wire name of a job state
type Status string

// Job status constants
const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// IsTerminal reports whether no further transitions may follow s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// transitions lists every legal edge. Progress updates are self-edges.
var transitions = map[Status][]Status{
	StatusQueued:      {StatusDownloading, StatusFailed},
	StatusDownloading: {StatusDownloading, StatusProcessing, StatusFailed},
	StatusProcessing:  {StatusProcessing, StatusCompleted, StatusFailed},
}

// CanTransition reports whether a record in state from may move to state to
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State is the per-status payload of a job record. Each variant carries only
// the fields meaningful for its status.
type State interface {
	Status() Status
	isState()
}

// Queued is the initial state
type Queued struct{}

// Downloading carries byte-level fetch progress. TotalBytes is 0 when the
// server did not declare a size.
type Downloading struct {
	Percentage      int
	DownloadedBytes int64
	TotalBytes      int64
	ProgressText    string
}

// Processing carries extraction progress as reported by the extractor
type Processing struct {
	Percentage   int
	CurrentItem  int
	TotalItems   int
	ProgressText string
}

// Completed is terminal; ResultCount may be zero
type Completed struct {
	ResultCount int
}

// Failed is terminal
type Failed struct {
	Reason string
}

func (Queued) Status() Status      { return StatusQueued }
func (Downloading) Status() Status { return StatusDownloading }
func (Processing) Status() Status  { return StatusProcessing }
func (Completed) Status() Status   { return StatusCompleted }
func (Failed) Status() Status      { return StatusFailed }

func (Queued) isState()      {}
func (Downloading) isState() {}
func (Processing) isState()  {}
func (Completed) isState()   {}
func (Failed) isState()      {}
