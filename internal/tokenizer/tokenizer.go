// Package tokenizer turns raw delimited text into logical rows of raw fields.
//
// The tokenizer is the lowest layer of the conversion pipeline. It honors
// RFC 4180 quoting (embedded delimiters, doubled quotes, raw newlines inside
// quoted fields), accepts \n, \r\n and lone \r as line terminators, strips a
// leading UTF-8 byte-order-mark, and enforces per-field and per-record size
// limits. Rows are produced lazily via Next; a malformed row yields a
// row-scoped *Error and the tokenizer resynchronizes to the next row boundary
// so subsequent rows parse cleanly.
package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Common row-scoped errors.
var (
	// ErrBareQuote indicates a quote character inside an unquoted field.
	ErrBareQuote = errors.New("bare quote in non-quoted field")
	// ErrUnterminatedQuote indicates a quoted field that never closed.
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
	// ErrFieldTooLarge indicates a field exceeded the configured MaxFieldSize.
	ErrFieldTooLarge = errors.New("field exceeds maximum size")
	// ErrRecordTooLarge indicates a row exceeded the configured MaxRecordSize.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
)

// snippetLimit bounds the raw-row snippet carried by Error.
const snippetLimit = 80

// Options configures the tokenizer.
type Options struct {
	// Comma is the field delimiter. Default: ','
	Comma rune
	// Quote is the quote character. Default: '"'
	Quote rune
	// Comment, if not 0, marks lines starting with it (outside quotes) as
	// comments to be skipped.
	Comment rune
	// TrimLeadingSpace drops leading white space in each unquoted field.
	TrimLeadingSpace bool
	// LazyQuotes tolerates bare quotes in unquoted fields and stray quotes
	// inside quoted fields instead of failing the row.
	LazyQuotes bool
	// MaxFieldSize is the maximum field size in bytes. 0 means no limit.
	MaxFieldSize int
	// MaxRecordSize is the maximum row size in bytes. 0 means no limit.
	MaxRecordSize int
}

// DefaultOptions returns the default tokenizer configuration.
func DefaultOptions() Options {
	return Options{
		Comma: ',',
		Quote: '"',
	}
}

// Row is one assembled logical row of raw, not-yet-typed fields.
type Row struct {
	// Fields are the raw field values in source order.
	Fields []string
	// Number is the 1-based logical row number, counting rows that failed
	// with a row-scoped error but not blank or comment lines.
	Number int
	// Line is the physical line the row started on (1-based).
	Line int
}

// Error is a row-scoped tokenization error with position information.
type Error struct {
	// Row is the 1-based logical row number of the failed row.
	Row int
	// StartLine is the physical line the row started on.
	StartLine int
	// Line is the physical line where the error was detected.
	Line int
	// Column is the 1-based column (in runes) on Line.
	Column int
	// Snippet holds up to 80 bytes of the offending row.
	Snippet string
	// Err is the underlying error.
	Err error
}

// Error formats the error with position information.
func (e *Error) Error() string {
	if e.StartLine == e.Line {
		return fmt.Sprintf("row %d: line %d, column %d: %v", e.Row, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("row %d: line %d (started line %d), column %d: %v",
		e.Row, e.Line, e.StartLine, e.Column, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Tokenizer assembles logical rows from an io.Reader. It is a lazy, finite,
// non-restartable sequence: call Next until it returns io.EOF. A Tokenizer is
// not safe for concurrent use.
type Tokenizer struct {
	src  *bufio.Reader
	opts Options

	line       int // current physical line, 1-based
	col        int // current column on line, 1-based, in runes
	rowNum     int // logical rows produced so far, including row errors
	bomChecked bool
	done       bool

	field []byte // scratch for the field being assembled
	raw   []byte // scratch for the raw row snippet
}

// New creates a Tokenizer reading from r.
func New(r io.Reader, opts Options) *Tokenizer {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.Quote == 0 {
		opts.Quote = '"'
	}
	return &Tokenizer{
		src:   bufio.NewReader(r),
		opts:  opts,
		line:  1,
		col:   1,
		field: make([]byte, 0, 64),
		raw:   make([]byte, 0, snippetLimit),
	}
}

// NewString creates a Tokenizer over an in-memory string.
func NewString(s string, opts Options) *Tokenizer {
	return New(strings.NewReader(s), opts)
}

// Line returns the physical line the tokenizer is currently positioned on.
func (t *Tokenizer) Line() int {
	return t.line
}

// Next returns the next logical row. It returns io.EOF when the input is
// exhausted, or a *Error for a malformed row. After a *Error the tokenizer
// has skipped past the bad row and Next may be called again.
func (t *Tokenizer) Next() (Row, error) {
	if t.done {
		return Row{}, io.EOF
	}
	if !t.bomChecked {
		t.stripBOM()
		t.bomChecked = true
	}

	// Skip blank and comment lines.
	for {
		r, _, err := t.src.ReadRune()
		if err != nil {
			t.done = true
			return Row{}, io.EOF
		}
		if r == '\n' || r == '\r' {
			t.unread()
			t.consumeNewline()
			continue
		}
		if t.opts.Comment != 0 && r == t.opts.Comment {
			t.skipLine()
			continue
		}
		t.unread()
		break
	}

	return t.readRow()
}

// readRow assembles one logical row starting at the current position.
func (t *Tokenizer) readRow() (Row, error) {
	t.rowNum++
	startLine := t.line
	t.raw = t.raw[:0]

	var fields []string
	rowSize := 0

	for {
		value, quoted, err := t.readField()
		if err != nil {
			return Row{}, t.rowError(startLine, err)
		}
		if t.opts.TrimLeadingSpace && !quoted {
			value = strings.TrimLeft(value, " \t")
		}
		if t.opts.MaxFieldSize > 0 && len(value) > t.opts.MaxFieldSize {
			return Row{}, t.rowError(startLine, ErrFieldTooLarge)
		}
		rowSize += len(value)
		if t.opts.MaxRecordSize > 0 && rowSize > t.opts.MaxRecordSize {
			return Row{}, t.rowError(startLine, ErrRecordTooLarge)
		}
		fields = append(fields, value)

		r, _, err := t.src.ReadRune()
		if err != nil {
			t.done = true
			return Row{Fields: fields, Number: t.rowNum, Line: startLine}, nil
		}
		if r == t.opts.Comma {
			t.advance(r)
			continue
		}
		// readField stops only at the delimiter, a line terminator or EOF,
		// so anything else here is a line terminator.
		t.unread()
		t.consumeNewline()
		return Row{Fields: fields, Number: t.rowNum, Line: startLine}, nil
	}
}

// readField reads a single field, stopping before the delimiter or newline
// that terminates it. The quoted return reports whether the field was quoted.
func (t *Tokenizer) readField() (string, bool, error) {
	r, _, err := t.src.ReadRune()
	if err != nil {
		return "", false, nil // empty trailing field at EOF
	}
	if t.opts.TrimLeadingSpace {
		// Leading blanks are skipped before quote detection so that
		// ` "a"` parses as a quoted field, matching encoding/csv.
		for (r == ' ' || r == '\t') && r != t.opts.Comma {
			t.advance(r)
			r, _, err = t.src.ReadRune()
			if err != nil {
				return "", false, nil
			}
		}
	}
	if r == t.opts.Quote {
		t.advance(r)
		v, err := t.readQuotedField()
		return v, true, err
	}
	t.unread()
	v, err := t.readUnquotedField()
	return v, false, err
}

// readUnquotedField consumes runes up to the next delimiter, newline or EOF.
func (t *Tokenizer) readUnquotedField() (string, error) {
	t.field = t.field[:0]
	for {
		r, _, err := t.src.ReadRune()
		if err != nil {
			return string(t.field), nil
		}
		if r == t.opts.Comma || r == '\n' || r == '\r' {
			t.unread()
			return string(t.field), nil
		}
		if r == t.opts.Quote && !t.opts.LazyQuotes {
			t.advance(r)
			return "", ErrBareQuote
		}
		t.advance(r)
		t.field = utf8.AppendRune(t.field, r)
	}
}

// readQuotedField consumes a quoted field. The opening quote has already been
// read. A doubled quote decodes to one literal quote; raw line terminators are
// part of the field value.
func (t *Tokenizer) readQuotedField() (string, error) {
	t.field = t.field[:0]
	for {
		r, _, err := t.src.ReadRune()
		if err != nil {
			if t.opts.LazyQuotes {
				return string(t.field), nil
			}
			return "", ErrUnterminatedQuote
		}
		if r == '\n' || r == '\r' {
			t.unread()
			nl := t.consumeEmbeddedNewline()
			t.field = append(t.field, nl...)
			continue
		}
		if r != t.opts.Quote {
			t.advance(r)
			t.field = utf8.AppendRune(t.field, r)
			continue
		}
		t.advance(r)
		next, _, err := t.src.ReadRune()
		if err != nil {
			return string(t.field), nil // closing quote at EOF
		}
		if next == t.opts.Quote {
			// Doubled quote decodes to a literal quote.
			t.advance(next)
			t.field = utf8.AppendRune(t.field, next)
			continue
		}
		t.unread()
		if next == t.opts.Comma || next == '\n' || next == '\r' {
			return string(t.field), nil
		}
		if t.opts.LazyQuotes {
			t.field = utf8.AppendRune(t.field, r)
			continue
		}
		return "", ErrBareQuote
	}
}

// consumeEmbeddedNewline consumes one line terminator inside a quoted field
// and returns the bytes it consisted of, preserving \n vs \r\n vs \r.
func (t *Tokenizer) consumeEmbeddedNewline() []byte {
	r, _, err := t.src.ReadRune()
	if err != nil {
		return nil
	}
	t.line++
	t.col = 1
	if r == '\n' {
		return []byte{'\n'}
	}
	// r == '\r'
	next, _, err := t.src.ReadRune()
	if err == nil {
		if next == '\n' {
			return []byte{'\r', '\n'}
		}
		t.unread()
	}
	return []byte{'\r'}
}

// consumeNewline consumes a line terminator outside quotes.
func (t *Tokenizer) consumeNewline() {
	r, _, err := t.src.ReadRune()
	if err != nil {
		t.done = true
		return
	}
	t.line++
	t.col = 1
	if r == '\r' {
		next, _, err := t.src.ReadRune()
		if err != nil {
			t.done = true
			return
		}
		if next != '\n' {
			t.unread()
		}
	}
}

// rowError builds a *Error for the current row and resynchronizes the input
// to the next row boundary so the following row parses cleanly.
func (t *Tokenizer) rowError(startLine int, err error) error {
	e := &Error{
		Row:       t.rowNum,
		StartLine: startLine,
		Line:      t.line,
		Column:    t.col,
		Snippet:   string(t.raw),
		Err:       err,
	}
	t.resync()
	return e
}

// resync skips input until the next row boundary. Quote state is intentionally
// not tracked: after a grammar error the recovery point is the next physical
// line terminator.
func (t *Tokenizer) resync() {
	for {
		r, _, err := t.src.ReadRune()
		if err != nil {
			t.done = true
			return
		}
		if r == '\n' || r == '\r' {
			t.unread()
			t.consumeNewline()
			return
		}
	}
}

// skipLine consumes the remainder of the current physical line.
func (t *Tokenizer) skipLine() {
	for {
		r, _, err := t.src.ReadRune()
		if err != nil {
			t.done = true
			return
		}
		if r == '\n' || r == '\r' {
			t.unread()
			t.consumeNewline()
			return
		}
	}
}

// advance records that r was consumed, updating position and the row snippet.
func (t *Tokenizer) advance(r rune) {
	t.col++
	if len(t.raw) < snippetLimit {
		t.raw = utf8.AppendRune(t.raw, r)
	}
}

// unread pushes the last rune back onto the reader.
func (t *Tokenizer) unread() {
	_ = t.src.UnreadRune()
}

// stripBOM removes a leading UTF-8 byte-order-mark, if present.
func (t *Tokenizer) stripBOM() {
	b, err := t.src.Peek(3)
	if err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = t.src.Discard(3)
	}
}
