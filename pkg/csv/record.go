// Package csv typed record model.
package csv

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Record is one typed, column-bound row: an ordered mapping from column name
// to value. Values are string, float64, bool, time.Time (via explicit
// converters only) or nil. Column order is the header order and survives
// round trips, including JSON marshaling.
type Record struct {
	columns []string
	values  []any
}

// NewRecord builds a Record from parallel column and value slices.
func NewRecord(columns []string, values []any) (Record, error) {
	if len(columns) != len(values) {
		return Record{}, fmt.Errorf("csv: %d columns but %d values", len(columns), len(values))
	}
	return Record{columns: columns, values: values}, nil
}

// Columns returns the column names in order. The returned slice must not be
// modified; it may be shared between records of one parse.
func (r Record) Columns() []string {
	return r.columns
}

// Len returns the number of columns.
func (r Record) Len() int {
	return len(r.values)
}

// Get returns the value at the given position.
func (r Record) Get(index int) (any, bool) {
	if index < 0 || index >= len(r.values) {
		return nil, false
	}
	return r.values[index], true
}

// GetByName returns the value of the named column.
func (r Record) GetByName(name string) (any, bool) {
	for i, col := range r.columns {
		if col == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// String returns the named column as a string. Non-string values report ok
// false.
func (r Record) String(name string) (string, bool) {
	v, ok := r.GetByName(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set replaces the value of the named column, appending a new column when the
// name is absent. Appending copies the column slice so records sharing a
// header are unaffected.
func (r *Record) Set(name string, value any) {
	for i, col := range r.columns {
		if col == name {
			r.values[i] = value
			return
		}
	}
	cols := make([]string, len(r.columns), len(r.columns)+1)
	copy(cols, r.columns)
	r.columns = append(cols, name)
	r.values = append(r.values, value)
}

// Delete removes the named column from the record. It reports whether the
// column was present.
func (r *Record) Delete(name string) bool {
	for i, col := range r.columns {
		if col == name {
			cols := make([]string, 0, len(r.columns)-1)
			cols = append(cols, r.columns[:i]...)
			r.columns = append(cols, r.columns[i+1:]...)
			r.values = append(r.values[:i], r.values[i+1:]...)
			return true
		}
	}
	return false
}

// Values returns the values in column order. The slice is the record's
// backing storage.
func (r Record) Values() []any {
	return r.values
}

// MarshalJSON encodes the record as a JSON object preserving column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
