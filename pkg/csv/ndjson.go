package csv

import (
	"context"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// ParseNDJSON converts newline-delimited JSON objects into records. Key
// order within each object is preserved; the result header is the union of
// keys in first-seen order. Values keep their JSON types (string, float64,
// bool, nil); nested objects and arrays come through as decoded values and
// are re-encoded as JSON when rendered to delimited text.
func ParseNDJSON(input string, opts Options) (*ParseResult, error) {
	ropts, err := opts.resolve("")
	if err != nil {
		return nil, err
	}

	stats := Stats{}
	var records []Record
	var header []string
	seen := map[string]bool{}

	row := 0
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		row++
		stats.Rows = row

		rec, err := decodeLine(line)
		if err != nil {
			verr := &ValidationError{RowNumber: row, Message: err.Error()}
			switch ropts.OnError {
			case ErrorModeSkip:
				stats.Skipped++
				continue
			case ErrorModeWarn:
				stats.Warnings++
				if ropts.ErrorHandler != nil {
					ropts.ErrorHandler(verr, []string{line}, row)
				} else if ropts.Logger != nil {
					ropts.Logger.Warn("ndjson row error", "row", row, "err", verr)
				}
				continue
			default:
				return nil, verr
			}
		}
		for _, c := range rec.Columns() {
			if !seen[c] {
				seen[c] = true
				header = append(header, c)
			}
		}
		records = append(records, rec)
	}

	return &ParseResult{Header: header, Records: records, Stats: stats}, nil
}

// decodeLine parses a single NDJSON line into an ordered record.
func decodeLine(line string) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	t, err := dec.Token()
	if err != nil {
		return Record{}, err
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return Record{}, fmt.Errorf("line is not a JSON object")
	}
	rec, err := decodeObject(dec)
	if err != nil {
		return Record{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Record{}, fmt.Errorf("trailing data after JSON object")
	}
	return rec, nil
}

// decodeObject consumes an object body after its opening brace, keeping key
// order.
func decodeObject(dec *json.Decoder) (Record, error) {
	var cols []string
	var vals []any
	for {
		t, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		if d, ok := t.(json.Delim); ok && d == '}' {
			return NewRecord(cols, vals)
		}
		key, ok := t.(string)
		if !ok {
			return Record{}, fmt.Errorf("object key is not a string")
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Record{}, err
		}
		cols = append(cols, key)
		vals = append(vals, v)
	}
}

// decodeValue consumes one JSON value. Nested objects lose key order; that
// only matters for top-level records.
func decodeValue(dec *json.Decoder) (any, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := t.(json.Delim)
	if !ok {
		return t, nil
	}
	switch d {
	case '{':
		m := map[string]any{}
		for {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if dd, ok := kt.(json.Delim); ok && dd == '}' {
				return m, nil
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key is not a string")
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			m[key] = v
		}
	case '[':
		var arr []any
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil { // closing bracket
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
}

// RenderNDJSON serializes records as newline-delimited JSON objects with
// key order preserved.
func RenderNDJSON(records []Record, opts Options) (string, error) {
	if _, err := opts.resolve(""); err != nil {
		return "", err
	}
	buf := getBuffer()
	defer putBuffer(buf)
	for i := range records {
		line, err := json.Marshal(&records[i])
		if err != nil {
			return "", err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

// RenderNDJSONStream drains records from in and writes newline-delimited
// JSON to w, stopping early when ctx is cancelled.
func RenderNDJSONStream(ctx context.Context, in <-chan Record, w io.Writer) error {
	for {
		select {
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			line, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			line = append(line, '\n')
			if _, err := w.Write(line); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
