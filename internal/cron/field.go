// Package cron implements the weblet cron core: per-field expression
// expansion, next-fire search honoring the POSIX day-of-month/day-of-week
// OR rule, and a scheduler that dispatches due jobs onto a
// concurrency.TaskPool.
package cron

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrSyntax is returned for any malformed cron field or expression:
// wrong field count, out-of-range value, empty result, or an
// unparseable token (spec.md §4.3/§7).
var ErrSyntax = errors.New("cron: syntax error")

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var dowNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// fieldSpec describes the legal range and name table for one of the five
// cron fields.
type fieldSpec struct {
	min, max int
	names    map[string]int
	// alias7 normalizes day-of-week's "7" to 0 per spec.md §4.3/§9.
	alias7 bool
}

var (
	minuteSpec = fieldSpec{min: 0, max: 59}
	hourSpec   = fieldSpec{min: 0, max: 23}
	domSpec    = fieldSpec{min: 1, max: 31}
	monthSpec  = fieldSpec{min: 1, max: 12, names: monthNames}
	dowSpec    = fieldSpec{min: 0, max: 6, names: dowNames, alias7: true}
)

// parseField parses one comma-separated cron field into an ordered,
// deduplicated set of integers within spec's natural range.
func parseField(field string, spec fieldSpec) ([]int, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: empty field", ErrSyntax)
	}

	seen := make(map[int]struct{})
	for _, item := range strings.Split(field, ",") {
		vals, err := parseItem(item, spec)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			seen[v] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: field %q produced no values", ErrSyntax, field)
	}

	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

// parseItem parses one comma-list element: *, a-b, */n, a-b/n, x/n, a
// bare integer, or a case-insensitive name.
func parseItem(item string, spec fieldSpec) ([]int, error) {
	base := item
	step := 1
	hasStep := false
	if idx := strings.IndexByte(item, '/'); idx >= 0 {
		base = item[:idx]
		stepStr := item[idx+1:]
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: invalid step %q", ErrSyntax, stepStr)
		}
		step = n
		hasStep = true
	}

	var start, end int
	switch {
	case base == "*":
		start, end = spec.min, spec.max
	case strings.Contains(base, "-"):
		s, e, err := parseRange(base, spec)
		if err != nil {
			return nil, err
		}
		start, end = s, e
	default:
		v, err := resolveToken(base, spec)
		if err != nil {
			return nil, err
		}
		start, end = v, v
		if hasStep {
			// x/n: the implicit range runs from x to the field maximum.
			end = spec.max
		}
	}

	return expandRange(start, end, step, spec)
}

// parseRange parses "a-b", allowing wraparound when a > b (spec.md §4.3:
// "if a > b, the range wraps (union of [a, max] and [min, b])").
func parseRange(s string, spec fieldSpec) (start, end int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid range %q", ErrSyntax, s)
	}
	start, err = resolveToken(parts[0], spec)
	if err != nil {
		return 0, 0, err
	}
	end, err = resolveToken(parts[1], spec)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// expandRange materializes [start, end] with the given step, wrapping
// through spec's range when start > end.
func expandRange(start, end, step int, spec fieldSpec) ([]int, error) {
	if start < spec.min || start > spec.max || end < spec.min || end > spec.max {
		return nil, fmt.Errorf("%w: value out of range [%d,%d]", ErrSyntax, spec.min, spec.max)
	}

	var seq []int
	if start <= end {
		for v := start; v <= end; v++ {
			seq = append(seq, v)
		}
	} else {
		for v := start; v <= spec.max; v++ {
			seq = append(seq, v)
		}
		for v := spec.min; v <= end; v++ {
			seq = append(seq, v)
		}
	}

	out := make([]int, 0, len(seq))
	for i, v := range seq {
		if i%step == 0 {
			out = append(out, v)
		}
	}
	return out, nil
}

// resolveToken resolves a bare integer or a case-insensitive name to its
// field value, applying the day-of-week "7" alias when applicable.
func resolveToken(tok string, spec fieldSpec) (int, error) {
	tok = strings.TrimSpace(tok)
	if spec.names != nil {
		if v, ok := spec.names[strings.ToLower(tok)]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid token %q", ErrSyntax, tok)
	}
	if spec.alias7 && v == 7 {
		v = 0
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("%w: value %d out of range [%d,%d]", ErrSyntax, v, spec.min, spec.max)
	}
	return v, nil
}
