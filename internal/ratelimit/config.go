// Package ratelimit bounds how many decisions one client may request per
// time window.
package ratelimit

import "time"

// Limit allows MaxRequests per Window for each client.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

// Enabled returns true if the limit is configured.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}
