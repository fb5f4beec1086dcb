// Output-side field formatting, quoting and injection defense.

package csv

import (
	"bytes"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// isFormulaTrigger reports whether b starts a spreadsheet formula when the
// field is opened in a spreadsheet application.
func isFormulaTrigger(b byte) bool {
	switch b {
	case '=', '+', '-', '@', '\t', '\r':
		return true
	}
	return false
}

// sanitizeFormula neutralizes spreadsheet formula execution by prefixing a
// single quote. A value already carrying the prefix starts with a single-quote
// character and is left alone, so repeated serialization never
// double-prefixes.
func sanitizeFormula(s string) string {
	if s != "" && isFormulaTrigger(s[0]) {
		return "'" + s
	}
	return s
}

// formatValue renders a typed value as its raw field text. Only string values
// are subject to injection prevention; the caller applies sanitizeFormula to
// strings alone.
func formatValue(v any) (s string, isString bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), false
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), false
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), false
	case int:
		return strconv.Itoa(val), false
	case int64:
		return strconv.FormatInt(val, 10), false
	case time.Time:
		return val.Format(time.RFC3339), false
	default:
		return toString(val), true
	}
}

func toString(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// writeField writes one field to buf, quoting when the value contains the
// delimiter, the quote character, CR or LF, and doubling embedded quotes.
func writeField(buf *bytes.Buffer, value string, opts *Options) {
	quote := opts.Quote
	needs := opts.AlwaysQuote ||
		strings.ContainsRune(value, opts.Delimiter) ||
		strings.ContainsRune(value, quote) ||
		strings.ContainsAny(value, "\n\r")

	if !needs {
		buf.WriteString(value)
		return
	}
	var q [utf8.UTFMax]byte
	qn := utf8.EncodeRune(q[:], quote)
	buf.Write(q[:qn])
	for _, r := range value {
		if r == quote {
			buf.Write(q[:qn])
		}
		buf.WriteRune(r)
	}
	buf.Write(q[:qn])
}

// renderField formats, sanitizes and writes a typed value.
func renderField(buf *bytes.Buffer, v any, opts *Options) {
	s, isString := formatValue(v)
	if isString && opts.PreventInjection {
		s = sanitizeFormula(s)
	}
	writeField(buf, s, opts)
}
