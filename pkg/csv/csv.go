// Package csv converts between delimited text (CSV/TSV and friends) and
// ordered typed records.
//
// The package is a pure transformation engine: it defines no network or file
// protocol and is invoked with in-memory data or streams. It parses an
// arbitrary delimited-text grammar (quoting, escaping, embedded newlines,
// mixed line endings, optional delimiter auto-detection), coerces raw fields
// to typed values, defends serialized output against spreadsheet formula
// injection, and for large inputs distributes the work across a reusable
// worker pool without breaking row order or header semantics.
//
// # Thread safety
//
// All conversion functions are safe for concurrent use. Each call resolves
// its own immutable option set and shares no mutable state with other calls
// beyond the lazily created worker pool.
//
// # Single-shot parsing
//
//	result, err := csv.Parse("name,age\nAlice,30\nBob,25")
//	if err != nil {
//	    // handle error
//	}
//	for _, rec := range result.Records {
//	    name, _ := rec.GetByName("name")
//	    fmt.Println(name)
//	}
//
// # Streaming
//
// Scanner pulls one record at a time with bounded memory; ParseStream and
// RenderStream expose the same pipeline as channel stages. See also the
// NDJSON variants for line-delimited JSON.
//
// # Parallel conversion
//
// ParseParallel and RenderParallel split large inputs into ordered chunks
// executed on a shared worker pool; results always come back in input order.
// Below the size thresholds both run inline and match the single-threaded
// output exactly.
package csv

import (
	"io"

	"github.com/Linol-Hamelton/jtcsv-sub006/internal/tokenizer"
)

// ParseResult is the materialized outcome of a parse. Exactly one of Records
// (FastPathObject) or Rows (FastPathCompact) is populated.
type ParseResult struct {
	// Header is the bound column names in order, after rename and
	// selection.
	Header []string
	// Records holds one typed Record per surviving row.
	Records []Record
	// Rows holds positional values per surviving row in compact mode.
	Rows [][]any
	// Stats summarizes rows seen, skipped, warned and dropped.
	Stats Stats
}

// sampleLimit bounds the input prefix handed to delimiter detection.
const sampleLimit = 8 * 1024

func sampleOf(input string) string {
	if len(input) > sampleLimit {
		return input[:sampleLimit]
	}
	return input
}

// Parse converts delimited text into records using DefaultOptions: delimiter
// auto-detection, first row as header, all values as strings.
func Parse(input string) (*ParseResult, error) {
	return ParseWithOptions(input, DefaultOptions())
}

// ParseWithOptions converts delimited text into records. Invalid options are
// rejected before any input is read. FastPathStream is not valid here; use
// NewScanner or ParseStream instead.
func ParseWithOptions(input string, opts Options) (*ParseResult, error) {
	ropts, err := opts.resolve(sampleOf(input))
	if err != nil {
		return nil, err
	}
	if ropts.FastPath == FastPathStream {
		return nil, &OptionsError{Field: "FastPath", Message: "stream mode requires NewScanner or ParseStream"}
	}
	tok := tokenizer.NewString(input, ropts.tokenizerOptions())
	out, err := parseRows(tok, &ropts, nil, false)
	if err != nil {
		return nil, err
	}
	return out.result(), nil
}

// ParseReader converts delimited text from an io.Reader in a single shot.
// For bounded-memory processing of large streams use NewScanner.
func ParseReader(r io.Reader, opts Options) (*ParseResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseWithOptions(string(data), opts)
}

// chunkOutput is the intermediate result of one pipeline run: a whole input
// inline, or a single chunk of a pooled call.
type chunkOutput struct {
	header   []string
	records  []Record
	rows     [][]any
	stats    Stats
	rowsSeen int // data rows consumed, for chunk renumbering
	warns    []warnEvent
}

func (out *chunkOutput) result() *ParseResult {
	return &ParseResult{
		Header:  out.header,
		Records: out.records,
		Rows:    out.rows,
		Stats:   out.stats,
	}
}

// parseRows drives the tokenizer-to-record pipeline with resolved options.
// presetHeader, when non-nil, is the raw source header bound before the
// first row (pooled chunks after chunk 0). deferWarns collects warn-policy
// events instead of invoking the handler, for replay after a pooled merge.
func parseRows(tok *tokenizer.Tokenizer, opts *Options, presetHeader []string, deferWarns bool) (*chunkOutput, error) {
	b := newBinder(opts)
	b.deferWarns = deferWarns
	if presetHeader != nil {
		b.setHeader(presetHeader)
	}

	out := &chunkOutput{}
	dataRow := 0
	for {
		row, err := tok.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			perr := wrapRowError(err)
			if !b.bound && opts.HasHeaders {
				// A malformed header row leaves every later row
				// unbindable; no policy can recover it.
				return nil, perr
			}
			dataRow++
			if pe, ok := perr.(*ParseError); ok {
				pe.RowNumber = dataRow
			}
			if abort := b.handleRowError(perr, nil, dataRow); abort != nil {
				return nil, abort
			}
			continue
		}
		if !b.bound {
			if opts.HasHeaders {
				b.setHeader(row.Fields)
				continue
			}
			b.synthesize(len(row.Fields))
		}
		dataRow++
		rec, produced, rerr := b.bind(row.Fields, dataRow)
		if rerr != nil {
			if abort := b.handleRowError(rerr, row.Fields, dataRow); abort != nil {
				return nil, abort
			}
			continue
		}
		if !produced {
			continue
		}
		if opts.FastPath == FastPathCompact {
			out.rows = append(out.rows, rec.Values())
		} else {
			out.records = append(out.records, rec)
		}
	}

	out.header = b.Header()
	out.stats = b.stats
	out.stats.Rows = dataRow
	out.rowsSeen = dataRow
	out.warns = b.warns
	return out, nil
}
