package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects decision entries.
type Filter struct {
	RequestID string
	Outcome   string
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
	Limit     int       // keep only the last Limit matches; 0 = all
}

// Summary counts decisions by outcome.
type Summary struct {
	Total          int    `json:"total"`
	Selected       int    `json:"selected"`
	NoEligible     int    `json:"no_eligible_factor"`
	Truncated      int    `json:"truncated"`
	Failed         int    `json:"failed"`
	FirstTimestamp string `json:"first_timestamp,omitempty"`
	LastTimestamp  string `json:"last_timestamp,omitempty"`
}

// TailResult holds the matching entries and their summary.
type TailResult struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Tail reads the log and returns entries matching the filter, oldest first.
func Tail(path string, filter Filter) (*TailResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &TailResult{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !filter.matches(e) {
			continue
		}
		result.Entries = append(result.Entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}

	if filter.Limit > 0 && len(result.Entries) > filter.Limit {
		result.Entries = result.Entries[len(result.Entries)-filter.Limit:]
	}
	result.Summary = summarize(result.Entries)
	return result, nil
}

func (f Filter) matches(e Entry) bool {
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func summarize(entries []Entry) Summary {
	s := Summary{Total: len(entries)}
	for i, e := range entries {
		switch e.Outcome {
		case "selected":
			s.Selected++
		case "no_eligible_factor":
			s.NoEligible++
		case "truncated":
			s.Truncated++
		default:
			s.Failed++
		}
		if i == 0 {
			s.FirstTimestamp = e.Timestamp
		}
		s.LastTimestamp = e.Timestamp
	}
	return s
}
