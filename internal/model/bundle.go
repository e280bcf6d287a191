package model

import (
	"strconv"
	"strings"
)

// Bundle is an opaque key-value context bundle (environment, device or
// request context). Accessors coerce loosely: wrong types and absent
// keys fall back to the caller's default.
type Bundle map[string]any

// Has reports whether key is present with a non-nil value.
func (b Bundle) Has(key string) bool {
	if b == nil {
		return false
	}
	v, ok := b[key]
	return ok && v != nil
}

// String returns the string at key, or def.
func (b Bundle) String(key, def string) string {
	if s, ok := b[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the boolean at key, or def.
func (b Bundle) Bool(key string, def bool) bool {
	switch v := b[key].(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

// Float returns the number at key, or def. Numeric strings are accepted;
// a trailing percent sign is stripped.
func (b Bundle) Float(key string, def float64) float64 {
	if f, ok := toFloat(b[key]); ok {
		return f
	}
	return def
}

// Int returns the number at key truncated to int, or def.
func (b Bundle) Int(key string, def int) int {
	if f, ok := toFloat(b[key]); ok {
		return int(f)
	}
	return def
}

// Map returns the nested bundle at key. Absent or mistyped keys yield an
// empty bundle so lookups can be chained.
func (b Bundle) Map(key string) Bundle {
	switch v := b[key].(type) {
	case Bundle:
		return v
	case map[string]any:
		return Bundle(v)
	case map[any]any:
		out := make(Bundle, len(v))
		for k, val := range v {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	}
	return Bundle{}
}

// Strings returns the string list at key. Non-string elements are skipped.
func (b Bundle) Strings(key string) []string {
	switch v := b[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(n), "%")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
