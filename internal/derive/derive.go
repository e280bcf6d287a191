// Package derive computes the per-request attribute constraints from
// environment, device and context bundles.
package derive

import (
	"fmt"
	"strings"
	"time"

	"github.com/thejerf/abtime"

	"github.com/ppiankov/factorwatch/internal/model"
)

// Config holds the derivation thresholds and the ranges each adjustment
// installs. Adjustments apply in field order; later ones override earlier
// ones on the same attribute.
type Config struct {
	Base model.Constraints `yaml:"base" json:"base"`

	// FailedAttemptsAbove triggers FailedAttempts when
	// context.recent_failed_attempts exceeds it.
	FailedAttemptsAbove int               `yaml:"failed_attempts_above" json:"failed_attempts_above"`
	FailedAttempts      model.Constraints `yaml:"failed_attempts" json:"failed_attempts"`

	// HighRating applies when context.request_security_rating equals HighRatingValue.
	HighRatingValue string            `yaml:"high_rating_value" json:"high_rating_value"`
	HighRating      model.Constraints `yaml:"high_rating" json:"high_rating"`

	// A last login within RecentLoginHours installs RecentLogin on
	// Intrusiveness, any older one StaleLogin.
	RecentLoginHours float64     `yaml:"recent_login_hours" json:"recent_login_hours"`
	RecentLogin      model.Range `yaml:"recent_login" json:"recent_login"`
	StaleLogin       model.Range `yaml:"stale_login" json:"stale_login"`
}

// DefaultConfig returns the stock derivation policy.
func DefaultConfig() Config {
	return Config{
		Base: model.Constraints{
			model.AttrSecurity:      model.R(6, 10),
			model.AttrIntrusiveness: model.R(0, 5),
			model.AttrPrivacy:       model.R(5, 10),
			model.AttrAccuracy:      model.R(6, 10),
		},
		FailedAttemptsAbove: 2,
		FailedAttempts: model.Constraints{
			model.AttrSecurity: model.R(8, 10),
		},
		HighRatingValue: "high",
		HighRating: model.Constraints{
			model.AttrSecurity: model.R(8, 10),
			model.AttrPrivacy:  model.R(7, 10),
			model.AttrAccuracy: model.R(8, 10),
		},
		RecentLoginHours: 1,
		RecentLogin:      model.R(0, 2),
		StaleLogin:       model.R(0, 4),
	}
}

// Validate reports every malformed range or threshold.
func (c Config) Validate() error {
	var problems []string
	check := func(section string, cs model.Constraints) {
		for _, attr := range cs.Attributes() {
			if r := cs[attr]; !r.Valid() {
				problems = append(problems, fmt.Sprintf("%s.%s: invalid range %s", section, attr, r))
			}
		}
	}
	check("base", c.Base)
	check("failed_attempts", c.FailedAttempts)
	check("high_rating", c.HighRating)
	if !c.RecentLogin.Valid() {
		problems = append(problems, fmt.Sprintf("recent_login: invalid range %s", c.RecentLogin))
	}
	if !c.StaleLogin.Valid() {
		problems = append(problems, fmt.Sprintf("stale_login: invalid range %s", c.StaleLogin))
	}
	if c.RecentLoginHours < 0 {
		problems = append(problems, fmt.Sprintf("recent_login_hours: must be >= 0, got %g", c.RecentLoginHours))
	}
	if c.FailedAttemptsAbove < 0 {
		problems = append(problems, fmt.Sprintf("failed_attempts_above: must be >= 0, got %d", c.FailedAttemptsAbove))
	}
	if len(problems) > 0 {
		return &model.ConfigurationError{Source: "constraints", Problems: problems}
	}
	return nil
}

// Adjustment records one override applied on top of the base ranges.
type Adjustment struct {
	Attribute string      `json:"attribute"`
	Range     model.Range `json:"range"`
	Reason    string      `json:"reason"`
}

// Deriver computes constraints. It holds no per-request state and is safe
// for concurrent use.
type Deriver struct {
	cfg   Config
	clock abtime.AbstractTime
}

// New returns a Deriver. A nil clock uses wall time.
func New(cfg Config, clock abtime.AbstractTime) *Deriver {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Deriver{cfg: cfg, clock: clock}
}

// Config returns the derivation policy in use.
func (d *Deriver) Config() Config { return d.cfg }

// Derive returns the attribute constraints for one request.
func (d *Deriver) Derive(env, device, ctx model.Bundle) model.Constraints {
	c, _ := d.Explain(env, device, ctx)
	return c
}

// Explain is Derive plus the list of overrides that were applied, in order.
func (d *Deriver) Explain(_, _, ctx model.Bundle) (model.Constraints, []Adjustment) {
	out := d.cfg.Base.Clone()
	if out == nil {
		out = model.Constraints{}
	}
	var adj []Adjustment
	apply := func(attr string, r model.Range, reason string) {
		out[attr] = r
		adj = append(adj, Adjustment{Attribute: attr, Range: r, Reason: reason})
	}

	if n := ctx.Float("recent_failed_attempts", 0); n > float64(d.cfg.FailedAttemptsAbove) {
		reason := fmt.Sprintf("recent_failed_attempts=%g > %d", n, d.cfg.FailedAttemptsAbove)
		for _, attr := range d.cfg.FailedAttempts.Attributes() {
			apply(attr, d.cfg.FailedAttempts[attr], reason)
		}
	}

	if rating := ctx.String("request_security_rating", "medium"); rating == d.cfg.HighRatingValue {
		reason := fmt.Sprintf("request_security_rating=%s", rating)
		for _, attr := range d.cfg.HighRating.Attributes() {
			apply(attr, d.cfg.HighRating[attr], reason)
		}
	}

	if raw, ok := lastLogin(ctx); ok {
		at, err := parseTimestamp(raw)
		switch {
		case err != nil:
			apply(model.AttrIntrusiveness, d.cfg.StaleLogin, fmt.Sprintf("last_login_time unparseable (%v), treated as not recent", err))
		default:
			hours := d.clock.Now().Sub(at).Hours()
			if hours < d.cfg.RecentLoginHours {
				apply(model.AttrIntrusiveness, d.cfg.RecentLogin, fmt.Sprintf("last login %.2fh ago < %gh", hours, d.cfg.RecentLoginHours))
			} else {
				apply(model.AttrIntrusiveness, d.cfg.StaleLogin, fmt.Sprintf("last login %.2fh ago >= %gh", hours, d.cfg.RecentLoginHours))
			}
		}
	}

	return out, adj
}

// lastLogin finds the last-login timestamp, preferring the nested
// device_usage entry. Null and blank values count as absent.
func lastLogin(ctx model.Bundle) (any, bool) {
	for _, b := range []model.Bundle{ctx.Map("device_usage"), ctx} {
		if v, ok := b["last_login_time"]; ok && !blank(v) {
			return v, true
		}
	}
	return nil, false
}

func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts RFC3339 and naive ISO timestamps. Naive values,
// including the "...Z"-suffixed form with the suffix stripped, are UTC.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		for _, layout := range timestampLayouts {
			if at, err := time.Parse(layout, s); err == nil {
				return at, nil
			}
		}
		if naive, found := strings.CutSuffix(s, "Z"); found {
			for _, layout := range timestampLayouts[1:] {
				if at, err := time.Parse(layout, naive); err == nil {
					return at, nil
				}
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	default:
		return time.Time{}, fmt.Errorf("timestamp has type %T", v)
	}
}
