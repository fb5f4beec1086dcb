package csv

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/Linol-Hamelton/jtcsv-sub006/internal/tokenizer"
)

// Scanner pulls typed records from a delimited-text stream one at a time
// with bounded memory, in the manner of bufio.Scanner:
//
//	sc, err := csv.NewScanner(r, csv.DefaultOptions())
//	for sc.Scan() {
//	    rec := sc.Record()
//	    ...
//	}
//	if err := sc.Err(); err != nil {
//	    ...
//	}
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	tok     *tokenizer.Tokenizer
	b       *binder
	opts    Options
	rec     Record
	err     error
	done    bool
	dataRow int
}

// NewScanner builds a Scanner over r. When the delimiter is left zero it is
// detected from a buffered prefix of the stream without consuming it.
func NewScanner(r io.Reader, opts Options) (*Scanner, error) {
	br := bufio.NewReaderSize(r, sampleLimit)
	sample, err := br.Peek(sampleLimit)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	ropts, err := opts.resolve(string(sample))
	if err != nil {
		return nil, err
	}
	return &Scanner{
		tok:  tokenizer.New(br, ropts.tokenizerOptions()),
		b:    newBinder(&ropts),
		opts: ropts,
	}, nil
}

// Scan advances to the next surviving record. It returns false at end of
// input or on a fatal error; Err reports which.
func (s *Scanner) Scan() bool {
	if s.done {
		return false
	}
	for {
		row, err := s.tok.Next()
		if err == io.EOF {
			s.done = true
			return false
		}
		if err != nil {
			perr := wrapRowError(err)
			if !s.b.bound && s.opts.HasHeaders {
				return s.fail(perr)
			}
			s.dataRow++
			if pe, ok := perr.(*ParseError); ok {
				pe.RowNumber = s.dataRow
			}
			if abort := s.b.handleRowError(perr, nil, s.dataRow); abort != nil {
				return s.fail(abort)
			}
			continue
		}
		if !s.b.bound {
			if s.opts.HasHeaders {
				s.b.setHeader(row.Fields)
				continue
			}
			s.b.synthesize(len(row.Fields))
		}
		s.dataRow++
		rec, produced, rerr := s.b.bind(row.Fields, s.dataRow)
		if rerr != nil {
			if abort := s.b.handleRowError(rerr, row.Fields, s.dataRow); abort != nil {
				return s.fail(abort)
			}
			continue
		}
		if !produced {
			continue
		}
		s.rec = rec
		return true
	}
}

func (s *Scanner) fail(err error) bool {
	s.err = err
	s.done = true
	return false
}

// Record returns the record produced by the last successful Scan.
func (s *Scanner) Record() Record { return s.rec }

// Err returns the fatal error that stopped scanning, if any. io.EOF is not
// reported as an error.
func (s *Scanner) Err() error { return s.err }

// Header returns the bound column names. It is empty until the header row
// (or the first data row, without headers) has been consumed.
func (s *Scanner) Header() []string { return s.b.Header() }

// Close stops the scanner; subsequent Scan calls return false. It does not
// close the underlying reader.
func (s *Scanner) Close() error {
	s.done = true
	return nil
}

// Stats returns counters for the rows consumed so far.
func (s *Scanner) Stats() Stats {
	st := s.b.stats
	st.Rows = s.dataRow
	return st
}

// Item is one element of a streaming parse: a record, or the fatal error
// that ended the stream. At most one Item carries a non-nil Err and it is
// always the last one before the channel closes.
type Item struct {
	Record Record
	Err    error
}

// ParseStream parses r as a channel pipeline stage. The returned channel is
// closed when input is exhausted, a fatal error is emitted, or ctx is
// cancelled.
func ParseStream(ctx context.Context, r io.Reader, opts Options) (<-chan Item, error) {
	sc, err := NewScanner(r, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan Item)
	go func() {
		defer close(out)
		for sc.Scan() {
			select {
			case out <- Item{Record: sc.Record()}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case out <- Item{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Encoder serializes records to a delimited-text stream incrementally. The
// header line is written from the first record's columns unless WriteHeader
// was called first. Flush must be called after the last Write.
type Encoder struct {
	w      *bufio.Writer
	opts   Options
	buf    bytes.Buffer
	header []string
	bound  bool
}

// NewEncoder builds an Encoder over w. A zero Delimiter renders as comma.
func NewEncoder(w io.Writer, opts Options) (*Encoder, error) {
	ropts, err := opts.resolve("")
	if err != nil {
		return nil, err
	}
	return &Encoder{
		w:    bufio.NewWriter(w),
		opts: ropts,
	}, nil
}

// WriteHeader binds and, when HasHeaders is set, emits an explicit header.
func (e *Encoder) WriteHeader(header []string) error {
	if e.bound {
		return &OptionsError{Field: "header", Message: "header already written"}
	}
	e.header = append([]string(nil), header...)
	e.bound = true
	e.buf.Reset()
	if err := renderHeader(&e.buf, e.header, &e.opts); err != nil {
		return err
	}
	_, err := e.w.Write(e.buf.Bytes())
	return err
}

// Write serializes one record. The first record binds the header when
// WriteHeader was not called.
func (e *Encoder) Write(rec Record) error {
	if !e.bound {
		if err := e.WriteHeader(rec.Columns()); err != nil {
			return err
		}
	}
	e.buf.Reset()
	if err := renderRecords(&e.buf, e.header, []Record{rec}, &e.opts); err != nil {
		return err
	}
	_, err := e.w.Write(e.buf.Bytes())
	return err
}

// WriteRow serializes one positional row against the bound header.
func (e *Encoder) WriteRow(row []any) error {
	if !e.bound {
		return &OptionsError{Field: "header", Message: "WriteRow requires WriteHeader first"}
	}
	if len(row) > len(e.header) && len(e.header) > 0 {
		return &ValidationError{Message: "row has more values than header columns"}
	}
	e.buf.Reset()
	renderRow(&e.buf, row, len(e.header), &e.opts)
	_, err := e.w.Write(e.buf.Bytes())
	return err
}

// Flush writes buffered output to the underlying writer.
func (e *Encoder) Flush() error { return e.w.Flush() }

// RenderStream drains records from in and writes delimited text to w,
// stopping early when ctx is cancelled.
func RenderStream(ctx context.Context, in <-chan Record, w io.Writer, opts Options) error {
	enc, err := NewEncoder(w, opts)
	if err != nil {
		return err
	}
	for {
		select {
		case rec, ok := <-in:
			if !ok {
				return enc.Flush()
			}
			if err := enc.Write(rec); err != nil {
				return err
			}
		case <-ctx.Done():
			enc.Flush()
			return ctx.Err()
		}
	}
}
