package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/factorwatch/internal/audit"
)

// Config defines a webhook destination for decision outcomes.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // outcomes, e.g. ["no_eligible_factor", "failed"]
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Outcomes a webhook may subscribe to.
var Outcomes = []string{"selected", "no_eligible_factor", "truncated", "failed"}

var formats = []string{"", "generic", "slack", "pagerduty"}

// Validate returns one message per problem.
func (c Config) Validate() []string {
	var problems []string
	if strings.TrimSpace(c.URL) == "" {
		problems = append(problems, "url is required")
	} else if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		problems = append(problems, fmt.Sprintf("url %q must be http or https", c.URL))
	}
	if !contains(formats, c.Format) {
		problems = append(problems, fmt.Sprintf("unknown format %q", c.Format))
	}
	if len(c.Events) == 0 {
		problems = append(problems, "events must name at least one outcome")
	}
	for _, e := range c.Events {
		if !contains(Outcomes, e) {
			problems = append(problems, fmt.Sprintf("unknown event %q (want one of %s)", e, strings.Join(Outcomes, ", ")))
		}
	}
	return problems
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string   `json:"timestamp"`
	RequestID  string   `json:"request_id"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason"`
	Factors    []string `json:"factors"`
	Excluded   int      `json:"excluded"`
	Solutions  int      `json:"solutions"`
	Truncated  bool     `json:"truncated,omitempty"`
	PolicyHash string   `json:"policy_hash"`
}

// EventFrom summarizes an audit entry.
func EventFrom(e audit.Entry) Event {
	ts := e.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	return Event{
		Timestamp:  ts,
		RequestID:  e.RequestID,
		Outcome:    e.Outcome,
		Reason:     reasonFor(e),
		Factors:    e.Factors,
		Excluded:   len(e.Excluded),
		Solutions:  len(e.Solutions),
		Truncated:  e.Truncated,
		PolicyHash: e.PolicyHash,
	}
}

func reasonFor(e audit.Entry) string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Outcome == "no_eligible_factor":
		return fmt.Sprintf("all %d factors excluded", len(e.Factors))
	case e.Outcome == "truncated":
		return fmt.Sprintf("enumeration stopped after %d solutions", len(e.Solutions))
	default:
		return fmt.Sprintf("%d solutions", len(e.Solutions))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
