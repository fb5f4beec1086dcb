// Package csv structural validation of typed records.
package csv

import (
	"fmt"
	"time"
)

// ColumnType names the primitive type a schema column expects.
type ColumnType string

const (
	// TypeString accepts string values.
	TypeString ColumnType = "string"
	// TypeNumber accepts float64 values.
	TypeNumber ColumnType = "number"
	// TypeBool accepts bool values.
	TypeBool ColumnType = "bool"
	// TypeDate accepts time.Time values.
	TypeDate ColumnType = "date"
	// TypeAny accepts any non-nil value.
	TypeAny ColumnType = "any"
)

// ColumnDefinition describes one schema column.
type ColumnDefinition struct {
	// Name is the output column name (after rename).
	Name string
	// Type is the expected primitive type. Empty means TypeAny.
	Type ColumnType
	// Required rejects records where the column is missing, nil or an
	// empty string.
	Required bool
	// Converter, if set, replaces the column's raw value before the type
	// check. It runs on string values only.
	Converter Converter
}

// Schema is an ordered set of column definitions applied to each record
// after the transform hook.
type Schema struct {
	columns []ColumnDefinition
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{}
}

// AddColumn appends a column definition. Returns the schema for chaining.
func (s *Schema) AddColumn(col ColumnDefinition) *Schema {
	s.columns = append(s.columns, col)
	return s
}

// AddSimpleColumn appends an optional column of the given type.
func (s *Schema) AddSimpleColumn(name string, colType ColumnType) *Schema {
	return s.AddColumn(ColumnDefinition{Name: name, Type: colType})
}

// AddRequiredColumn appends a required column of the given type.
func (s *Schema) AddRequiredColumn(name string, colType ColumnType) *Schema {
	return s.AddColumn(ColumnDefinition{Name: name, Type: colType, Required: true})
}

// Columns returns the column definitions in order.
func (s *Schema) Columns() []ColumnDefinition {
	return s.columns
}

// validate checks rec against the schema, applying column converters, and
// returns the first violation as a *ValidationError.
func (s *Schema) validate(rec *Record, rowNumber int) error {
	for _, col := range s.columns {
		v, ok := rec.GetByName(col.Name)
		if !ok || v == nil || v == "" {
			if col.Required {
				return &ValidationError{
					RowNumber: rowNumber,
					Column:    col.Name,
					Message:   "required value is missing",
				}
			}
			continue
		}
		if col.Converter != nil {
			if raw, isStr := v.(string); isStr {
				converted, err := col.Converter.Convert(raw)
				if err != nil {
					return &ValidationError{
						RowNumber: rowNumber,
						Column:    col.Name,
						Message:   err.Error(),
					}
				}
				rec.Set(col.Name, converted)
				v = converted
			}
		}
		if err := checkType(v, col.Type); err != nil {
			return &ValidationError{
				RowNumber: rowNumber,
				Column:    col.Name,
				Message:   err.Error(),
			}
		}
	}
	return nil
}

// checkType verifies that a typed value matches the declared column type.
func checkType(v any, colType ColumnType) error {
	switch colType {
	case "", TypeAny:
		return nil
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case TypeNumber:
		switch v.(type) {
		case float64, int64, int:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case TypeDate:
		if _, ok := v.(time.Time); !ok {
			return fmt.Errorf("expected date, got %T", v)
		}
	default:
		return fmt.Errorf("unknown column type %q", colType)
	}
	return nil
}
