package csv

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Linol-Hamelton/jtcsv-sub006/internal/pool"
	"github.com/Linol-Hamelton/jtcsv-sub006/internal/tokenizer"
)

// maxChunksPerWorker caps chunk fan-out so merge bookkeeping stays small.
const maxChunksPerWorker = 4

var (
	sharedPoolOnce sync.Once
	sharedPoolInst *pool.Pool
)

// sharedPool lazily builds the process-wide pool reused across calls. Its
// size and observability wiring are fixed by the first pooled call.
func sharedPool(opts *Options) *pool.Pool {
	sharedPoolOnce.Do(func() {
		popts := []pool.Option{pool.WithLogger(opts.Logger)}
		m := pool.NewMetrics()
		if opts.Metrics != nil {
			if err := m.Register(opts.Metrics); err != nil {
				opts.Logger.Warn("csv: pool metrics registration failed", "error", err)
			}
		}
		popts = append(popts, pool.WithMetrics(m))
		sharedPoolInst = pool.New(pool.DefaultSize(), popts...)
	})
	return sharedPoolInst
}

// poolFor returns the pool to run on and a release func. An explicit
// WorkerCount that differs from the default gets a dedicated pool torn down
// after the call.
func poolFor(opts *Options) (*pool.Pool, func()) {
	if opts.WorkerCount == pool.DefaultSize() {
		return sharedPool(opts), func() {}
	}
	popts := []pool.Option{pool.WithLogger(opts.Logger)}
	m := pool.NewMetrics()
	if opts.Metrics != nil {
		if err := m.Register(opts.Metrics); err != nil {
			opts.Logger.Warn("csv: pool metrics registration failed", "error", err)
		}
	}
	p := pool.New(opts.WorkerCount, append(popts, pool.WithMetrics(m))...)
	return p, p.Close
}

// ParseParallel converts delimited text into records, splitting inputs above
// ParallelThreshold into row-aligned chunks executed on the worker pool.
// Output order, row numbering, header binding and the error policy match
// ParseWithOptions exactly; inputs below the threshold run inline. Cancelling
// ctx abandons chunks that have not started and returns ctx.Err().
func ParseParallel(ctx context.Context, input string, opts Options) (*ParseResult, error) {
	ropts, err := opts.resolve(sampleOf(input))
	if err != nil {
		return nil, err
	}
	if ropts.FastPath == FastPathStream {
		return nil, &OptionsError{Field: "FastPath", Message: "stream mode requires NewScanner or ParseStream"}
	}
	if !poolWorthwhile(len(input), &ropts) {
		return parseInline(input, &ropts)
	}

	header, body, err := splitHeader(input, &ropts)
	if err == io.EOF {
		return parseInline(input, &ropts)
	}
	if err != nil {
		return nil, err
	}
	chunks := splitChunks(body, &ropts)
	if len(chunks) < 2 {
		return parseInline(input, &ropts)
	}

	tasks := make([]pool.Task, len(chunks))
	for i, chunk := range chunks {
		chunk := chunk
		// Each task gets its own copy of the resolved options; nothing
		// mutable is shared across the worker boundary.
		topts := ropts
		tasks[i] = pool.Task{
			Index: i,
			Run: func(ctx context.Context) (any, error) {
				tok := tokenizer.NewString(chunk, topts.tokenizerOptions())
				return parseRows(tok, &topts, header, true)
			},
		}
	}

	p, release := poolFor(&ropts)
	defer release()
	results, err := p.Execute(ctx, tasks, poolProgress(&ropts))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The pool is draining or gone; the conversion still has to
		// happen, so run it on the calling goroutine.
		ropts.Logger.Warn("csv: worker pool unavailable, parsing inline",
			"error", &ResourceError{Err: err})
		return parseInline(input, &ropts)
	}
	return mergeChunks(results, &ropts)
}

func poolWorthwhile(size int, opts *Options) bool {
	if !opts.UseWorkers || opts.WorkerCount < 2 || size < opts.ParallelThreshold {
		return false
	}
	// Chunk boundary scanning is byte-oriented; multi-byte delimiters or
	// quotes cannot be split safely.
	return opts.Delimiter < utf8.RuneSelf && opts.Quote < utf8.RuneSelf
}

func poolProgress(opts *Options) func(pool.Progress) {
	if opts.OnProgress == nil {
		return nil
	}
	return func(p pool.Progress) {
		opts.OnProgress(Progress{
			Processed:  p.Processed,
			Total:      p.Total,
			Percentage: p.Percentage,
		})
	}
}

func parseInline(input string, opts *Options) (*ParseResult, error) {
	tok := tokenizer.NewString(input, opts.tokenizerOptions())
	out, err := parseRows(tok, opts, nil, false)
	if err != nil {
		return nil, err
	}
	return out.result(), nil
}

// mergeChunks stitches ordered chunk outputs back together: records are
// concatenated, row numbers in errors and warnings are shifted by the rows
// consumed in earlier chunks, and deferred warnings replay in row order on
// the calling goroutine.
func mergeChunks(results []pool.Result, opts *Options) (*ParseResult, error) {
	merged := &chunkOutput{}
	var warns []warnEvent
	offset := 0
	for _, res := range results {
		if res.Err != nil {
			err := shiftRowError(res.Err, offset)
			switch err.(type) {
			case *ParseError, *ValidationError:
				// Row-scoped failures surface exactly as the inline
				// path would raise them.
			default:
				err = &WorkerError{Chunk: res.Index, TaskID: res.TaskID, Err: err}
			}
			return nil, err
		}
		out := res.Value.(*chunkOutput)
		if merged.header == nil {
			merged.header = out.header
		}
		merged.records = append(merged.records, out.records...)
		merged.rows = append(merged.rows, out.rows...)
		merged.stats.Rows += out.stats.Rows
		merged.stats.Skipped += out.stats.Skipped
		merged.stats.Warnings += out.stats.Warnings
		merged.stats.Dropped += out.stats.Dropped
		for _, w := range out.warns {
			w.row += offset
			warns = append(warns, w)
		}
		offset += out.rowsSeen
	}

	rb := newBinder(opts)
	for _, w := range warns {
		rb.emitWarn(shiftedWarnErr(w.err, w.row), w.raw, w.row)
	}
	return merged.result(), nil
}

func shiftRowError(err error, offset int) error {
	switch e := err.(type) {
	case *ParseError:
		e.RowNumber += offset
	case *ValidationError:
		e.RowNumber += offset
	}
	return err
}

// shiftedWarnErr rewrites the row number carried inside a deferred warning's
// error to the merged numbering.
func shiftedWarnErr(err error, row int) error {
	switch e := err.(type) {
	case *ParseError:
		e.RowNumber = row
	case *ValidationError:
		e.RowNumber = row
	}
	return err
}

const bomPrefix = "\xef\xbb\xbf"

// splitHeader isolates the raw header row so every chunk binds the same
// columns. Without headers it measures the first row's width and returns
// synthetic positional names; the body then includes the first row.
func splitHeader(input string, opts *Options) (header []string, body string, err error) {
	if !opts.HasHeaders {
		tok := tokenizer.NewString(input, opts.tokenizerOptions())
		row, err := tok.Next()
		if err == io.EOF {
			return nil, "", io.EOF
		}
		if err != nil {
			return nil, "", wrapRowError(err)
		}
		return syntheticHeader(len(row.Fields)), input, nil
	}

	end := headerSpan(input, opts)
	if end < 0 {
		return nil, "", io.EOF
	}
	tok := tokenizer.NewString(input[:end], opts.tokenizerOptions())
	row, err := tok.Next()
	if err == io.EOF {
		return nil, "", io.EOF
	}
	if err != nil {
		return nil, "", wrapRowError(err)
	}
	return row.Fields, input[end:], nil
}

func syntheticHeader(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "column" + strconv.Itoa(i+1)
	}
	return names
}

// headerSpan returns the byte offset just past the first logical row,
// skipping a BOM, blank lines and comment lines. It returns -1 when the
// input holds no row.
func headerSpan(input string, opts *Options) int {
	i := 0
	if strings.HasPrefix(input, bomPrefix) {
		i = len(bomPrefix)
	}
	// Skip blank and comment physical lines.
	for i < len(input) {
		end := physicalLineEnd(input, i)
		line := strings.TrimSuffix(input[i:end], "\n")
		line = strings.TrimSuffix(line, "\r")
		if line == "" || (opts.Comment != 0 && strings.HasPrefix(line, string(opts.Comment))) {
			i = end
			continue
		}
		break
	}
	if i >= len(input) {
		return -1
	}
	return scanRowEnd(input, i, opts)
}

// physicalLineEnd returns the offset just past the line terminator of the
// physical line starting at from.
func physicalLineEnd(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\n':
			return i + 1
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				return i + 2
			}
			return i + 1
		}
	}
	return len(s)
}

// scanRowEnd returns the offset just past the terminator of the logical row
// starting at from, honoring quoted fields with embedded newlines.
func scanRowEnd(s string, from int, opts *Options) int {
	quote := byte(opts.Quote)
	delim := byte(opts.Delimiter)
	inQuotes := false
	atFieldStart := true
	for i := from; i < len(s); i++ {
		c := s[i]
		if inQuotes {
			if c == quote {
				if i+1 < len(s) && s[i+1] == quote {
					i++
					continue
				}
				inQuotes = false
			}
			continue
		}
		switch c {
		case quote:
			// A quote only opens a quoted field at the field start;
			// mid-field quotes are literal.
			if atFieldStart {
				inQuotes = true
			}
			atFieldStart = false
		case delim:
			atFieldStart = true
		case '\n':
			return i + 1
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				return i + 2
			}
			return i + 1
		default:
			atFieldStart = false
		}
	}
	return len(s)
}

// splitChunks cuts body into row-aligned chunks near a target size in one
// quote-aware pass.
func splitChunks(body string, opts *Options) []string {
	if body == "" {
		return nil
	}
	target := opts.ChunkSize
	if target <= 0 {
		target = len(body)/opts.WorkerCount + 1
	}
	if floor := len(body)/(opts.WorkerCount*maxChunksPerWorker) + 1; target < floor {
		target = floor
	}

	quote := byte(opts.Quote)
	delim := byte(opts.Delimiter)
	var chunks []string
	start := 0
	inQuotes := false
	atFieldStart := true
	i := 0
	for i < len(body) {
		c := body[i]
		if inQuotes {
			if c == quote {
				if i+1 < len(body) && body[i+1] == quote {
					i += 2
					continue
				}
				inQuotes = false
			}
			i++
			continue
		}
		switch c {
		case quote:
			if atFieldStart {
				inQuotes = true
			}
			atFieldStart = false
			i++
		case delim:
			atFieldStart = true
			i++
		case '\n', '\r':
			j := i + 1
			if c == '\r' && j < len(body) && body[j] == '\n' {
				j++
			}
			if j-start >= target {
				chunks = append(chunks, body[start:j])
				start = j
			}
			atFieldStart = true
			i = j
		default:
			atFieldStart = false
			i++
		}
	}
	if start < len(body) {
		chunks = append(chunks, body[start:])
	}
	return chunks
}

// RenderParallel serializes records, splitting sets above RecordThreshold
// into contiguous slices rendered on the worker pool and concatenated in
// order. Output is byte-identical to Render.
func RenderParallel(ctx context.Context, records []Record, opts Options) (string, error) {
	ropts, err := opts.resolve("")
	if err != nil {
		return "", err
	}
	if !ropts.UseWorkers || ropts.WorkerCount < 2 || len(records) < ropts.RecordThreshold {
		return renderInline(records, &ropts)
	}

	var header []string
	if len(records) > 0 {
		header = records[0].Columns()
	}
	per := len(records)/(ropts.WorkerCount*maxChunksPerWorker) + 1
	if per < 1 {
		per = 1
	}
	var spans [][]Record
	for at := 0; at < len(records); at += per {
		end := at + per
		if end > len(records) {
			end = len(records)
		}
		spans = append(spans, records[at:end])
	}
	if len(spans) < 2 {
		return renderInline(records, &ropts)
	}

	tasks := make([]pool.Task, len(spans))
	for i, span := range spans {
		span := span
		topts := ropts
		tasks[i] = pool.Task{
			Index: i,
			Run: func(ctx context.Context) (any, error) {
				buf := getBuffer()
				defer putBuffer(buf)
				if err := renderRecords(buf, header, span, &topts); err != nil {
					return nil, err
				}
				return buf.String(), nil
			},
		}
	}

	p, release := poolFor(&ropts)
	defer release()
	results, err := p.Execute(ctx, tasks, poolProgress(&ropts))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		ropts.Logger.Warn("csv: worker pool unavailable, rendering inline",
			"error", &ResourceError{Err: err})
		return renderInline(records, &ropts)
	}

	buf := getBuffer()
	defer putBuffer(buf)
	if err := renderHeader(buf, header, &ropts); err != nil {
		return "", err
	}
	for _, res := range results {
		if res.Err != nil {
			return "", res.Err
		}
		buf.WriteString(res.Value.(string))
	}
	return buf.String(), nil
}

func renderInline(records []Record, opts *Options) (string, error) {
	var header []string
	if len(records) > 0 {
		header = records[0].Columns()
	}
	buf := getBuffer()
	defer putBuffer(buf)
	if err := renderHeader(buf, header, opts); err != nil {
		return "", err
	}
	if err := renderRecords(buf, header, records, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}
