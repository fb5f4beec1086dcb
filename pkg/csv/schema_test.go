package csv

import (
	"errors"
	"testing"
	"time"
)

// TestSchemaValidate tests required columns, type checks and converters.
func TestSchemaValidate(t *testing.T) {
	t.Run("required missing", func(t *testing.T) {
		s := NewSchema().AddRequiredColumn("id", TypeString)
		rec, _ := NewRecord([]string{"id"}, []any{""})
		err := s.validate(&rec, 3)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("got %T, want *ValidationError", err)
		}
		if verr.RowNumber != 3 || verr.Column != "id" {
			t.Errorf("got row %d column %q", verr.RowNumber, verr.Column)
		}
	})

	t.Run("optional missing passes", func(t *testing.T) {
		s := NewSchema().AddSimpleColumn("note", TypeString)
		rec, _ := NewRecord([]string{"id"}, []any{"1"})
		if err := s.validate(&rec, 1); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		s := NewSchema().AddSimpleColumn("age", TypeNumber)
		rec, _ := NewRecord([]string{"age"}, []any{"abc"})
		if err := s.validate(&rec, 1); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("number accepts int64", func(t *testing.T) {
		s := NewSchema().AddSimpleColumn("n", TypeNumber)
		rec, _ := NewRecord([]string{"n"}, []any{int64(5)})
		if err := s.validate(&rec, 1); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("converter replaces value before type check", func(t *testing.T) {
		s := NewSchema().AddColumn(ColumnDefinition{
			Name:      "when",
			Type:      TypeDate,
			Converter: DateConverter{},
		})
		rec, _ := NewRecord([]string{"when"}, []any{"2024-06-15"})
		if err := s.validate(&rec, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		v, _ := rec.GetByName("when")
		if _, ok := v.(time.Time); !ok {
			t.Errorf("value not converted: %T", v)
		}
	})

	t.Run("converter failure", func(t *testing.T) {
		s := NewSchema().AddColumn(ColumnDefinition{
			Name:      "when",
			Converter: DateConverter{},
		})
		rec, _ := NewRecord([]string{"when"}, []any{"not a date"})
		var verr *ValidationError
		if err := s.validate(&rec, 7); !errors.As(err, &verr) {
			t.Fatalf("got %v", err)
		} else if verr.RowNumber != 7 {
			t.Errorf("row: got %d", verr.RowNumber)
		}
	})
}

// TestSchemaInParse tests schema validation wired into the parse pipeline.
func TestSchemaInParse(t *testing.T) {
	opts := DefaultOptions()
	opts.ParseNumbers = true
	opts.Schema = NewSchema().
		AddRequiredColumn("id", TypeNumber).
		AddColumn(ColumnDefinition{Name: "joined", Type: TypeDate, Converter: DateConverter{}})

	result, err := ParseWithOptions("id,joined\n1,2024-01-02\n", opts)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := result.Records[0].GetByName("joined")
	ts, ok := v.(time.Time)
	if !ok || ts.Year() != 2024 {
		t.Errorf("joined: got %v (%T)", v, v)
	}
}
