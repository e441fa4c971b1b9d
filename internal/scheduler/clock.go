package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time so tests can pin it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// Location resolves an IANA time zone id, caching lookups. Unknown or empty
// ids fall back to UTC so a bad campaign config can't stall the tick.
func Location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	locMu.RLock()
	loc, ok := locCache[tz]
	locMu.RUnlock()
	if ok {
		return loc
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	locMu.Lock()
	locCache[tz] = loc
	locMu.Unlock()
	return loc
}

// LocalMidnight returns the start of t's calendar day in loc.
func LocalMidnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns the [start, end) of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := LocalMidnight(t, loc)
	return start, start.AddDate(0, 0, 1)
}

// SameLocalDay reports whether a and b fall on the same calendar day in loc.
func SameLocalDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// WithinActiveHours reports whether now falls inside the schedule's
// [start, end) window in its own time zone. Windows with end <= start are
// empty; input validation rejects them, this just honors that contract.
func WithinActiveHours(start, end int, now time.Time, loc *time.Location) bool {
	if end <= start {
		return false
	}
	h := now.In(loc).Hour()
	return h >= start && h < end
}
