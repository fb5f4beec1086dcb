// Package csv raw-field coercion and explicit type converters.
package csv

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// coerceValue converts one raw field into its typed value according to the
// resolved options. Dates are never inferred here; they only arrive through
// explicit converters or the transform hook.
func coerceValue(field string, opts *Options) any {
	if len(opts.NullValues) > 0 {
		for _, nv := range opts.NullValues {
			if field == nv {
				return nil
			}
		}
	}
	if opts.ParseBooleans {
		if strings.EqualFold(field, "true") {
			return true
		}
		if strings.EqualFold(field, "false") {
			return false
		}
	}
	if opts.ParseNumbers {
		trimmed := strings.TrimSpace(field)
		if isStrictNumber(trimmed) {
			if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
				return f
			}
		}
	}
	return field
}

// isStrictNumber reports whether s matches the numeric grammar: optional
// sign, digits, optional fraction, optional exponent. Integers with a leading
// zero and more than one digit stay strings so identifiers such as zip codes
// and phone numbers are not corrupted.
func isStrictNumber(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[i] == '+' || s[i] == '-' {
		i++
	}
	intStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	intLen := i - intStart
	if intLen == 0 {
		return false
	}
	hasFraction := false
	if i < len(s) && s[i] == '.' {
		hasFraction = true
		i++
		fracStart := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == fracStart {
			return false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		expStart := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == expStart {
			return false
		}
	}
	if i != len(s) {
		return false
	}
	// Leading-zero guard: "007" stays a string, "0", "0.5" and "0e3" do not.
	if intLen > 1 && s[intStart] == '0' && !hasFraction {
		return false
	}
	return true
}

// Converter transforms a raw string field into a typed value. Converters are
// the explicit path for types the engine never infers, dates in particular,
// and are meant to be applied from a TransformFunc or a schema column.
type Converter interface {
	Convert(value string) (any, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(string) (any, error)

// Convert implements Converter.
func (f ConverterFunc) Convert(value string) (any, error) {
	return f(value)
}

// IntConverter converts fields to int64.
type IntConverter struct {
	// Base is the numeric base. Default: 10
	Base int
}

// Convert implements Converter.
func (c IntConverter) Convert(value string) (any, error) {
	if value == "" {
		return int64(0), nil
	}
	base := c.Base
	if base == 0 {
		base = 10
	}
	return strconv.ParseInt(strings.TrimSpace(value), base, 64)
}

// FloatConverter converts fields to float64.
type FloatConverter struct{}

// Convert implements Converter.
func (c FloatConverter) Convert(value string) (any, error) {
	if value == "" {
		return float64(0), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

// BoolConverter converts fields to bool. Beyond the strict true/false of the
// automatic coercion it also accepts 1/0, yes/no, y/n, on/off and t/f.
type BoolConverter struct{}

// Convert implements Converter.
func (c BoolConverter) Convert(value string) (any, error) {
	if value == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y", "on", "t":
		return true, nil
	case "false", "0", "no", "n", "off", "f":
		return false, nil
	default:
		return false, fmt.Errorf("cannot convert %q to bool", value)
	}
}

// DateConverter converts fields to time.Time.
type DateConverter struct {
	// Format is the reference layout. Default: "2006-01-02"
	Format string
	// Location is the parsing timezone. Default: UTC
	Location *time.Location
}

// Convert implements Converter.
func (c DateConverter) Convert(value string) (any, error) {
	if value == "" {
		return time.Time{}, nil
	}
	format := c.Format
	if format == "" {
		format = "2006-01-02"
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(format, strings.TrimSpace(value), loc)
}

// DateTimeConverter converts fields to time.Time with a time component.
type DateTimeConverter struct {
	// Format is the reference layout. Default: "2006-01-02 15:04:05"
	Format string
	// Location is the parsing timezone. Default: UTC
	Location *time.Location
}

// Convert implements Converter.
func (c DateTimeConverter) Convert(value string) (any, error) {
	if value == "" {
		return time.Time{}, nil
	}
	format := c.Format
	if format == "" {
		format = "2006-01-02 15:04:05"
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(format, strings.TrimSpace(value), loc)
}

// ConverterRegistry manages named converters for column-level configuration.
type ConverterRegistry struct {
	converters map[string]Converter
}

// NewConverterRegistry creates a registry with the built-in converters
// registered under "int", "float", "bool", "date" and "datetime".
func NewConverterRegistry() *ConverterRegistry {
	r := &ConverterRegistry{converters: make(map[string]Converter)}
	r.Register("int", IntConverter{})
	r.Register("float", FloatConverter{})
	r.Register("bool", BoolConverter{})
	r.Register("date", DateConverter{})
	r.Register("datetime", DateTimeConverter{})
	return r
}

// Register adds a converter under name.
func (r *ConverterRegistry) Register(name string, conv Converter) {
	r.converters[name] = conv
}

// Get retrieves a converter by name.
func (r *ConverterRegistry) Get(name string) (Converter, bool) {
	conv, ok := r.converters[name]
	return conv, ok
}
