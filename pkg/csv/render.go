package csv

import (
	"bytes"
	"sync"
)

// bufferPool recycles render buffers across calls.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	// Oversized buffers are dropped so one huge render does not pin
	// memory for the life of the pool.
	if buf.Cap() > 1<<20 {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// Render serializes records to delimited text. The header line comes from
// the first record's columns when HasHeaders is set; records whose columns
// differ from it are emitted by name, missing columns as empty fields.
func Render(records []Record, opts Options) (string, error) {
	ropts, err := opts.resolve("")
	if err != nil {
		return "", err
	}
	var header []string
	if len(records) > 0 {
		header = records[0].Columns()
	}
	buf := getBuffer()
	defer putBuffer(buf)
	if err := renderHeader(buf, header, &ropts); err != nil {
		return "", err
	}
	if err := renderRecords(buf, header, records, &ropts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderRows serializes positional rows under an explicit header. Rows
// shorter than the header are padded with empty fields; longer rows are an
// error.
func RenderRows(header []string, rows [][]any, opts Options) (string, error) {
	ropts, err := opts.resolve("")
	if err != nil {
		return "", err
	}
	buf := getBuffer()
	defer putBuffer(buf)
	if err := renderHeader(buf, header, &ropts); err != nil {
		return "", err
	}
	for i, row := range rows {
		if len(row) > len(header) && len(header) > 0 {
			return "", &ValidationError{
				RowNumber: i + 1,
				Message:   "row has more values than header columns",
			}
		}
		renderRow(buf, row, len(header), &ropts)
	}
	return buf.String(), nil
}

func lineEnding(opts *Options) string {
	if opts.UseCRLF {
		return "\r\n"
	}
	return "\n"
}

func renderHeader(buf *bytes.Buffer, header []string, opts *Options) error {
	if !opts.HasHeaders || len(header) == 0 {
		return nil
	}
	for i, name := range header {
		if i > 0 {
			buf.WriteRune(opts.Delimiter)
		}
		renderField(buf, name, opts)
	}
	buf.WriteString(lineEnding(opts))
	return nil
}

func renderRecords(buf *bytes.Buffer, header []string, records []Record, opts *Options) error {
	for i := range records {
		rec := &records[i]
		if sameColumns(rec, header) {
			renderRow(buf, rec.Values(), len(header), opts)
			continue
		}
		// Column order diverged; emit by name against the header.
		for j, name := range header {
			if j > 0 {
				buf.WriteRune(opts.Delimiter)
			}
			v, ok := rec.GetByName(name)
			if !ok {
				v = ""
			}
			renderField(buf, v, opts)
		}
		buf.WriteString(lineEnding(opts))
	}
	return nil
}

// renderRow writes one data line, padding to width when the row is shorter.
func renderRow(buf *bytes.Buffer, row []any, width int, opts *Options) {
	n := len(row)
	if width > n {
		n = width
	}
	if n == 0 {
		buf.WriteString(lineEnding(opts))
		return
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteRune(opts.Delimiter)
		}
		var v any
		if i < len(row) {
			v = row[i]
		} else {
			v = ""
		}
		renderField(buf, v, opts)
	}
	buf.WriteString(lineEnding(opts))
}

func sameColumns(rec *Record, header []string) bool {
	cols := rec.Columns()
	if len(cols) != len(header) {
		return false
	}
	for i := range cols {
		if cols[i] != header[i] {
			return false
		}
	}
	return true
}
