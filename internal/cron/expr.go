package cron

import (
	"fmt"
	"strings"
	"time"
)

// Expression is a parsed five-field cron expression (spec.md §3/§4.3/§4.4).
type Expression struct {
	raw string

	minute []int
	hour   []int
	dom    []int
	month  []int
	dow    []int

	domWild bool
	dowWild bool
}

// maxSearchMinutes bounds the next-fire search to roughly two years of
// minutes (spec.md §4.4's "bounded iteration guard").
const maxSearchMinutes = 2 * 366 * 24 * 60

// ErrUnsatisfiable is returned by NextFire when the bounded search finds
// no matching instant (spec.md §4.4/§7).
var ErrUnsatisfiable = fmt.Errorf("cron: no matching instant within the search bound")

// Parse parses a five-field, whitespace-separated cron expression:
// minute hour day-of-month month day-of-week.
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrSyntax, len(fields))
	}

	minute, err := parseField(fields[0], minuteSpec)
	if err != nil {
		return nil, fmt.Errorf("minute: %w", err)
	}
	hour, err := parseField(fields[1], hourSpec)
	if err != nil {
		return nil, fmt.Errorf("hour: %w", err)
	}
	dom, err := parseField(fields[2], domSpec)
	if err != nil {
		return nil, fmt.Errorf("day-of-month: %w", err)
	}
	month, err := parseField(fields[3], monthSpec)
	if err != nil {
		return nil, fmt.Errorf("month: %w", err)
	}
	dow, err := parseField(fields[4], dowSpec)
	if err != nil {
		return nil, fmt.Errorf("day-of-week: %w", err)
	}

	e := &Expression{
		raw: expr, minute: minute, hour: hour, dom: dom, month: month, dow: dow,
	}
	e.domWild = isFullRange(dom, domSpec.min, domSpec.max)
	e.dowWild = isFullRange(dow, dowSpec.min, dowSpec.max)
	return e, nil
}

func isFullRange(vals []int, min, max int) bool {
	if len(vals) != max-min+1 {
		return false
	}
	for i, v := range vals {
		if v != min+i {
			return false
		}
	}
	return true
}

func contains(vals []int, v int) bool {
	// Sets here are small (<=60) and sorted; linear scan is simplest and
	// cheap enough at cron-tick granularity.
	for _, x := range vals {
		if x == v {
			return true
		}
		if x > v {
			return false
		}
	}
	return false
}

// String returns the original expression text.
func (e *Expression) String() string { return e.raw }

// dayMatches implements the POSIX day-of-month/day-of-week OR rule of
// spec.md §4.4: when both fields are restricted (non-wildcard), a day
// matches if EITHER is satisfied; when only one is restricted, only that
// one constrains; when both are wildcards, every day matches.
func (e *Expression) dayMatches(t time.Time) bool {
	domOK := contains(e.dom, t.Day())
	dowOK := contains(e.dow, int(t.Weekday()))

	switch {
	case e.domWild && e.dowWild:
		return true
	case e.domWild:
		return dowOK
	case e.dowWild:
		return domOK
	default:
		return domOK || dowOK
	}
}

// NextFire returns the earliest instant strictly satisfying the
// expression at or after `from`, normalized to the next whole minute
// (spec.md §4.4). All arithmetic is in UTC.
func (e *Expression) NextFire(from time.Time) (time.Time, error) {
	t := from.UTC()
	if t.Second() > 0 || t.Nanosecond() > 0 {
		t = t.Truncate(time.Minute).Add(time.Minute)
	} else {
		t = t.Truncate(time.Minute)
	}

	for steps := 0; steps < maxSearchMinutes; steps++ {
		if !contains(e.month, int(t.Month())) {
			t = firstOfNextMonth(t)
			continue
		}
		if !e.dayMatches(t) {
			t = startOfNextDay(t)
			continue
		}
		if !contains(e.hour, t.Hour()) {
			t = startOfNextHour(t)
			continue
		}
		if !contains(e.minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}
	return time.Time{}, ErrUnsatisfiable
}

func firstOfNextMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
}

func startOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

func startOfNextHour(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour()+1, 0, 0, 0, time.UTC)
}
