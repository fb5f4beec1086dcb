// Package csv row-to-record binding and the row-error policy.
package csv

import (
	"fmt"
	"strings"
)

// Stats summarizes one conversion: rows seen, rows skipped and warnings
// issued under the configured error policy.
type Stats struct {
	// Rows is the number of logical data rows encountered, including rows
	// that errored or were dropped.
	Rows int
	// Skipped counts rows omitted under ErrorModeSkip.
	Skipped int
	// Warnings counts rows reported under ErrorModeWarn.
	Warnings int
	// Dropped counts rows excluded by the transform hook.
	Dropped int
}

// warnEvent is a deferred ErrorModeWarn invocation. Pooled parsing collects
// them per chunk and replays them in row order after the merge, so the
// caller's handler never runs concurrently.
type warnEvent struct {
	err error
	raw []string
	row int
}

// binder applies header binding, rename, selection, coercion, the transform
// hook and schema validation to raw rows, honoring the error policy.
type binder struct {
	opts   *Options
	header []string // kept output column names, shared by all records
	keep   []bool   // per source column
	width  int      // expected source row width
	bound  bool

	deferWarns bool
	warns      []warnEvent
	stats      Stats
}

func newBinder(opts *Options) *binder {
	return &binder{opts: opts}
}

// setHeader binds the source header: header transform, duplicate renaming,
// rename map and column selection, in that order.
func (b *binder) setHeader(raw []string) {
	names := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, name := range raw {
		if b.opts.HeaderTransform != nil {
			name = b.opts.HeaderTransform(name)
		}
		if name == "" {
			name = fmt.Sprintf("column%d", i+1)
		}
		// Duplicate names get an occurrence suffix so the mapping from
		// name to value stays unambiguous.
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		if renamed, ok := b.opts.Rename[name]; ok {
			name = renamed
		}
		names[i] = name
	}

	b.width = len(raw)
	b.keep = make([]bool, len(names))
	b.header = make([]string, 0, len(names))
	for i, name := range names {
		if b.opts.Select == nil || b.opts.Select.ShouldInclude(name, i) {
			b.keep[i] = true
			b.header = append(b.header, name)
		}
	}
	b.bound = true
}

// synthesize binds a positional header column1..columnN.
func (b *binder) synthesize(n int) {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("column%d", i+1)
	}
	b.setHeader(names)
}

// Header returns the kept output column names.
func (b *binder) Header() []string {
	return b.header
}

// bind converts one raw row into a Record. produced is false when the row was
// dropped by the transform hook; err is a row-scoped error to feed through
// the error policy.
func (b *binder) bind(fields []string, rowNumber int) (rec Record, produced bool, err error) {
	if len(fields) != b.width {
		return Record{}, false, &ParseError{
			RowNumber: rowNumber,
			Snippet:   strings.Join(fields, string(b.opts.Delimiter)),
			Err:       fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), b.width),
		}
	}

	values := make([]any, 0, len(b.header))
	for i, field := range fields {
		if !b.keep[i] {
			continue
		}
		values = append(values, coerceValue(field, b.opts))
	}
	rec = Record{columns: b.header, values: values}

	if b.opts.Transform != nil {
		keep, terr := b.opts.Transform(&rec)
		if terr != nil {
			if _, ok := terr.(*ValidationError); !ok {
				terr = &ValidationError{RowNumber: rowNumber, Message: terr.Error()}
			}
			return Record{}, false, terr
		}
		if !keep {
			b.stats.Dropped++
			return Record{}, false, nil
		}
	}

	if b.opts.Schema != nil {
		if verr := b.opts.Schema.validate(&rec, rowNumber); verr != nil {
			return Record{}, false, verr
		}
	}
	return rec, true, nil
}

// handleRowError feeds a row-scoped error through the policy. A non-nil
// return aborts the conversion (ErrorModeFail); otherwise the row is warned
// about or skipped and processing continues.
func (b *binder) handleRowError(err error, raw []string, rowNumber int) error {
	switch b.opts.OnError {
	case ErrorModeWarn:
		b.stats.Warnings++
		if b.deferWarns {
			b.warns = append(b.warns, warnEvent{err: err, raw: raw, row: rowNumber})
			return nil
		}
		b.emitWarn(err, raw, rowNumber)
		return nil
	case ErrorModeSkip:
		b.stats.Skipped++
		return nil
	default:
		return err
	}
}

// emitWarn delivers one warning to the caller's handler, or to the logger
// when no handler is configured.
func (b *binder) emitWarn(err error, raw []string, rowNumber int) {
	if b.opts.ErrorHandler != nil {
		b.opts.ErrorHandler(err, raw, rowNumber)
		return
	}
	b.opts.Logger.Warn("csv: row error", "row", rowNumber, "error", err)
}
