// Package redact rewrites sensitive spans of a record's message before
// delegating to a wrapped sink. A Matcher locates the spans, touching
// ranges are merged so no character leaks at a boundary, and each
// merged span is replaced with its encrypted form (or a fallback when
// encryption fails). Error and stack-trace payloads pass through
// untouched: only the message is scanned.
package redact

import (
	"regexp"
	"sort"
)

// Range is a half-open [Start, End) index pair into a message string.
type Range struct {
	Start int
	End   int
}

// Matcher locates sensitive ranges in a message.
type Matcher interface {
	// Scan returns zero or more ranges, in any order; overlap allowed.
	Scan(message string) []Range
	// Close releases matcher resources.
	Close() error
}

// mergeRanges sorts ranges by (start, end) and folds every range whose
// start falls at or before the previous range's end into it. Touching
// ranges merge exactly like overlapping ones, so no character ends up
// partially inside one range and outside another.
func mergeRanges(ranges []Range, limit int) []Range {
	var valid []Range
	for _, r := range ranges {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > limit {
			r.End = limit
		}
		if r.Start < r.End {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End < valid[j].End
	})
	merged := valid[:1]
	for _, r := range valid[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// pattern pairs a compiled expression with the submatch group whose
// span should be redacted; group 0 redacts the whole match.
type pattern struct {
	re    *regexp.Regexp
	group int
}

// RegexpMatcher scans with a fixed set of compiled patterns.
type RegexpMatcher struct {
	patterns []pattern
}

// NewDefaultMatcher returns the stock matcher: labeled key=value or
// key:value credentials (password, token, secret, api-key,
// authorization), case-insensitive, redacting the value span only, plus
// bare email addresses and phone numbers redacted whole.
func NewDefaultMatcher() *RegexpMatcher {
	return &RegexpMatcher{
		patterns: []pattern{
			{
				re:    regexp.MustCompile(`(?i)\b(password|passwd|pwd|token|secret|api[_-]?key|authorization)\b\s*[:=]\s*("[^"]*"|\S+)`),
				group: 2,
			},
			{
				re:    regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
				group: 0,
			},
			{
				re:    regexp.MustCompile(`\+?[0-9][0-9()\-\s]{6,}[0-9]`),
				group: 0,
			},
		},
	}
}

// NewRegexpMatcher builds a matcher redacting the whole span of every
// match of the given expressions.
func NewRegexpMatcher(exprs ...string) (*RegexpMatcher, error) {
	m := &RegexpMatcher{}
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, pattern{re: re})
	}
	return m, nil
}

// Scan implements Matcher.
func (m *RegexpMatcher) Scan(message string) []Range {
	var ranges []Range
	for _, p := range m.patterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(message, -1) {
			start, end := idx[2*p.group], idx[2*p.group+1]
			if start < 0 || end < 0 {
				continue
			}
			ranges = append(ranges, Range{Start: start, End: end})
		}
	}
	return ranges
}

// Close implements Matcher. Compiled patterns hold no resources.
func (m *RegexpMatcher) Close() error {
	return nil
}
