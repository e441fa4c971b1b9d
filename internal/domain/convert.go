package domain

import (
	"strconv"
	"strings"
	"time"
)

// Boundary normalizers for loosely-typed agent payloads. Agent events arrive
// as open-ended JSON; numeric, date, and boolean fields are normalized here
// before any of the typed handlers see them. Empty string and null both map
// to nil.

// ToNumber coerces a decoded JSON value to a number. Returns nil when the
// value is absent, empty, or not numeric.
func ToNumber(v interface{}) *float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return &x
	case float32:
		f := float64(x)
		return &f
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// dateFormats are tried in order when parsing string dates.
var dateFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToDate coerces a decoded JSON value to a timestamp. Strings are parsed
// against a small set of formats; numbers are treated as unix seconds
// (milliseconds when the magnitude says so). Returns nil otherwise.
func ToDate(v interface{}) *time.Time {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return &x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		for _, f := range dateFormats {
			if t, err := time.Parse(f, s); err == nil {
				return &t
			}
		}
		return nil
	case float64:
		if x == 0 {
			return nil
		}
		// Past ~2286 as seconds; treat as milliseconds.
		if x > 1e12 {
			t := time.UnixMilli(int64(x)).UTC()
			return &t
		}
		t := time.Unix(int64(x), 0).UTC()
		return &t
	}
	return nil
}

// ToBoolean coerces a decoded JSON value to a bool. "yes", "y", "1" and
// "true" (any case) are true; any other non-empty string is false; nil and
// empty string are nil.
func ToBoolean(v interface{}) *bool {
	t, f := true, false
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return &x
	case float64:
		if x != 0 {
			return &t
		}
		return &f
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if s == "" {
			return nil
		}
		switch s {
		case "yes", "y", "1", "true":
			return &t
		}
		return &f
	}
	return nil
}
