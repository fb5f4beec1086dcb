// Package csv dialect detection: delimiter sniffing and header heuristics.
package csv

import (
	"strings"
	"unicode"
)

// sniffSampleLines is how many leading lines delimiter detection samples.
const sniffSampleLines = 10

// candidate delimiters in tie-break priority order.
var sniffCandidates = []rune{',', ';', '\t', '|'}

// DetectDelimiter inspects up to the first ten lines of sample and returns
// the candidate delimiter (comma, semicolon, tab or pipe) with the most
// consistent per-line occurrence count, counting outside quoted sections.
// Ties break by priority comma > semicolon > tab > pipe; an empty or
// delimiter-free sample yields comma.
func DetectDelimiter(sample string, quote rune) rune {
	if quote == 0 {
		quote = '"'
	}
	lines := sampleLines(sample, sniffSampleLines)
	if len(lines) == 0 {
		return ','
	}

	best := ','
	bestScore := 0
	for _, delim := range sniffCandidates {
		counts := make([]int, 0, len(lines))
		for _, line := range lines {
			counts = append(counts, countDelimiter(line, delim, quote))
		}
		if counts[0] == 0 {
			continue
		}
		consistent := true
		for _, c := range counts[1:] {
			if c != counts[0] {
				consistent = false
				break
			}
		}
		score := counts[0]
		if consistent {
			score *= 10
		}
		// Strict > keeps the earlier, higher-priority candidate on ties.
		if score > bestScore {
			best = delim
			bestScore = score
		}
	}
	return best
}

// sampleLines returns up to max non-empty leading lines of s.
func sampleLines(s string, max int) []string {
	var lines []string
	for len(s) > 0 && len(lines) < max {
		i := strings.IndexAny(s, "\r\n")
		var line string
		if i < 0 {
			line, s = s, ""
		} else {
			line = s[:i]
			s = s[i+1:]
		}
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// countDelimiter counts delim occurrences in line, ignoring quoted sections.
func countDelimiter(line string, delim, quote rune) int {
	count := 0
	inQuotes := false
	for _, ch := range line {
		switch {
		case ch == quote:
			inQuotes = !inQuotes
		case ch == delim && !inQuotes:
			count++
		}
	}
	return count
}

// Sniffer detects the dialect of a CSV sample: delimiter and header presence.
type Sniffer struct {
	sample    string
	quote     rune
	delimiter rune
	hasHeader bool
	analyzed  bool
}

// NewSniffer creates a Sniffer for a sample of CSV data. Two or three lines
// of data give the best results.
func NewSniffer(sample string) *Sniffer {
	return &Sniffer{sample: sample, quote: '"'}
}

func (s *Sniffer) analyze() {
	if s.analyzed {
		return
	}
	s.delimiter = DetectDelimiter(s.sample, s.quote)
	s.hasHeader = s.detectHeader()
	s.analyzed = true
}

// DetectDelimiter returns the detected field delimiter.
func (s *Sniffer) DetectDelimiter() rune {
	s.analyze()
	return s.delimiter
}

// HasHeader reports whether the first row looks like a header.
func (s *Sniffer) HasHeader() bool {
	s.analyze()
	return s.hasHeader
}

// detectHeader compares the first line against the first data line: header
// cells tend to be identifier-like text, data cells tend to be numeric,
// date-like or contain '@'.
func (s *Sniffer) detectHeader() bool {
	lines := sampleLines(s.sample, sniffSampleLines)
	if len(lines) < 2 {
		return false
	}
	delim := s.DetectDelimiter()

	headerScore, dataScore := 0, 0
	for _, field := range splitQuoted(lines[0], delim, s.quote) {
		field = strings.TrimSpace(field)
		if looksLikeHeader(field) {
			headerScore++
		}
		if looksLikeData(field) {
			dataScore++
		}
	}
	return headerScore > dataScore
}

// looksLikeHeader reports whether a cell resembles a column name.
func looksLikeHeader(s string) bool {
	if s == "" || looksNumeric(s) {
		return false
	}
	for i, ch := range s {
		switch {
		case unicode.IsLetter(ch) || ch == '_':
		case i > 0 && (unicode.IsDigit(ch) || ch == ' '):
		default:
			return false
		}
	}
	return true
}

// looksLikeData reports whether a cell resembles a data value.
func looksLikeData(s string) bool {
	if s == "" {
		return false
	}
	if looksNumeric(s) || strings.Contains(s, "@") {
		return true
	}
	// ISO-style date.
	if len(s) == 10 && s[4] == '-' && s[7] == '-' && looksNumeric(s[:4]) {
		return true
	}
	return false
}

// looksNumeric reports whether s is a plain decimal number.
func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	hasDot := false
	hasDigit := false
	for _, ch := range s {
		switch {
		case ch == '.':
			if hasDot {
				return false
			}
			hasDot = true
		case unicode.IsDigit(ch):
			hasDigit = true
		default:
			return false
		}
	}
	return hasDigit
}

// splitQuoted splits a line by delim, respecting quotes.
func splitQuoted(line string, delim, quote rune) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false
	for _, ch := range line {
		switch {
		case ch == quote:
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case ch == delim && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

// HeaderConverter transforms header names before the rename map applies.
type HeaderConverter func(string) string

// LowercaseHeader converts headers to lowercase.
func LowercaseHeader(s string) string {
	return strings.ToLower(s)
}

// UppercaseHeader converts headers to uppercase.
func UppercaseHeader(s string) string {
	return strings.ToUpper(s)
}

// SnakeCaseHeader converts headers to snake_case.
func SnakeCaseHeader(s string) string {
	var result strings.Builder
	prevWasSpace := false
	for i, ch := range s {
		if ch == ' ' {
			if result.Len() > 0 && !prevWasSpace {
				result.WriteRune('_')
			}
			prevWasSpace = true
			continue
		}
		if unicode.IsUpper(ch) && i > 0 && !prevWasSpace {
			result.WriteRune('_')
		}
		result.WriteRune(unicode.ToLower(ch))
		prevWasSpace = false
	}
	return result.String()
}

// ColumnSelector restricts output to a subset of columns, by name or by
// zero-based position. Empty selectors include every column.
type ColumnSelector struct {
	// Names selects columns by (renamed) header name.
	Names []string
	// Indexes selects columns by position.
	Indexes []int
}

// ShouldInclude reports whether the named column at index is selected.
func (c *ColumnSelector) ShouldInclude(name string, index int) bool {
	if len(c.Names) == 0 && len(c.Indexes) == 0 {
		return true
	}
	for _, col := range c.Names {
		if col == name {
			return true
		}
	}
	for _, idx := range c.Indexes {
		if idx == index {
			return true
		}
	}
	return false
}
