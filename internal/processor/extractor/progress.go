package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Event is one structured progress update from the extraction program
type Event struct {
	Percentage int
	Current    int
	Total      int
	Message    string
}

// ProgressParser turns one diagnostic line into a progress event.
// ok is false for lines that carry no progress.
type ProgressParser interface {
	Parse(line string) (ev Event, ok bool)
}

// NewParser returns the parser for format: "tqdm", "json" or "auto"
func NewParser(format string) (ProgressParser, error) {
	switch format {
	case "tqdm":
		return TqdmParser{}, nil
	case "json":
		return JSONParser{}, nil
	case "auto", "":
		return chainParser{JSONParser{}, TqdmParser{}}, nil
	default:
		return nil, fmt.Errorf("unknown progress format: %q", format)
	}
}

var (
	tqdmPercentRe = regexp.MustCompile(`Analyzing questions:\s+(\d+)%`)
	tqdmCountRe   = regexp.MustCompile(`(\d+)/(\d+)`)
)

// TqdmParser matches tqdm bars such as
// "Analyzing questions:  40%|████      | 4/10 [00:02<00:03,  2.00it/s]"
type TqdmParser struct{}

func (TqdmParser) Parse(line string) (Event, bool) {
	m := tqdmPercentRe.FindStringSubmatch(line)
	if m == nil {
		return Event{}, false
	}

	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return Event{}, false
	}
	ev := Event{Percentage: pct}

	// the count follows the bar, so only look past the percentage
	rest := line[strings.Index(line, m[0])+len(m[0]):]
	if c := tqdmCountRe.FindStringSubmatch(rest); c != nil {
		ev.Current, _ = strconv.Atoi(c[1])
		ev.Total, _ = strconv.Atoi(c[2])
	}

	return ev, true
}

// JSONParser decodes newline-delimited events:
// {"percentage":40,"current":4,"total":10,"message":"..."}
type JSONParser struct{}

type jsonEvent struct {
	Percentage *int   `json:"percentage"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Message    string `json:"message"`
}

func (JSONParser) Parse(line string) (Event, bool) {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, false
	}

	var raw jsonEvent
	if err := json.Unmarshal(trimmed, &raw); err != nil || raw.Percentage == nil {
		return Event{}, false
	}

	return Event{
		Percentage: *raw.Percentage,
		Current:    raw.Current,
		Total:      raw.Total,
		Message:    raw.Message,
	}, true
}

// chainParser tries each parser in order
type chainParser []ProgressParser

func (c chainParser) Parse(line string) (Event, bool) {
	for _, p := range c {
		if ev, ok := p.Parse(line); ok {
			return ev, true
		}
	}
	return Event{}, false
}

// Text renders ev as the human-readable progress line shown to pollers
func (ev Event) Text() string {
	if ev.Message != "" {
		return ev.Message
	}
	if ev.Total > 0 {
		return fmt.Sprintf("Analyzing question %d of %d (%d%%)", ev.Current, ev.Total, ev.Percentage)
	}
	return fmt.Sprintf("Processing questions... %d%%", ev.Percentage)
}

// scanSegments is a bufio.SplitFunc that breaks on '\n' or '\r'. tqdm redraws
// its bar with carriage returns and never emits a newline until it closes.
func scanSegments(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
