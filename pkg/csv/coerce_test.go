package csv

import (
	"testing"
	"time"
)

// TestCoerceValue_Numbers tests the strict numeric grammar including the
// leading-zero identifier guard.
func TestCoerceValue_Numbers(t *testing.T) {
	opts := DefaultOptions()
	opts.ParseNumbers = true

	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"integer", "42", float64(42)},
		{"negative", "-7", float64(-7)},
		{"signed plus", "+3", float64(3)},
		{"decimal", "3.14", 3.14},
		{"exponent", "1e3", float64(1000)},
		{"negative exponent", "2.5E-2", 0.025},
		{"zero", "0", float64(0)},
		{"zero point five", "0.5", 0.5},
		{"zero exponent", "0e3", float64(0)},
		{"leading zero identifier", "007", "007"},
		{"leading zero long", "0123456", "0123456"},
		{"signed leading zero", "-007", "-007"},
		{"text", "abc", "abc"},
		{"trailing garbage", "42x", "42x"},
		{"lone dot", ".", "."},
		{"lone sign", "-", "-"},
		{"empty", "", ""},
		{"dot without fraction", "1.", "1."},
		{"surrounded by spaces", " 42 ", float64(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceValue(tt.input, &opts); got != tt.want {
				t.Errorf("coerceValue(%q): got %v (%T), want %v (%T)",
					tt.input, got, got, tt.want, tt.want)
			}
		})
	}
}

// TestCoerceValue_Booleans tests strict case-insensitive boolean coercion.
func TestCoerceValue_Booleans(t *testing.T) {
	opts := DefaultOptions()
	opts.ParseBooleans = true

	tests := []struct {
		input string
		want  any
	}{
		{"true", true},
		{"TRUE", true},
		{"False", false},
		{"yes", "yes"},
		{"1", "1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := coerceValue(tt.input, &opts); got != tt.want {
			t.Errorf("coerceValue(%q): got %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestCoerceValue_NullValues tests that null markers win over other
// coercions.
func TestCoerceValue_NullValues(t *testing.T) {
	opts := DefaultOptions()
	opts.ParseNumbers = true
	opts.NullValues = []string{"", "NA", "null"}

	if got := coerceValue("NA", &opts); got != nil {
		t.Errorf("NA: got %v, want nil", got)
	}
	if got := coerceValue("", &opts); got != nil {
		t.Errorf("empty: got %v, want nil", got)
	}
	if got := coerceValue("42", &opts); got != float64(42) {
		t.Errorf("42: got %v, want 42", got)
	}
}

// TestCoerceValue_Disabled tests that values stay strings by default.
func TestCoerceValue_Disabled(t *testing.T) {
	opts := DefaultOptions()
	if got := coerceValue("42", &opts); got != "42" {
		t.Errorf("got %v, want the raw string", got)
	}
	if got := coerceValue("true", &opts); got != "true" {
		t.Errorf("got %v, want the raw string", got)
	}
}

// TestConverters tests the explicit converter set.
func TestConverters(t *testing.T) {
	t.Run("int", func(t *testing.T) {
		v, err := IntConverter{}.Convert("42")
		if err != nil || v != int64(42) {
			t.Errorf("got %v, %v", v, err)
		}
		if _, err := (IntConverter{}).Convert("x"); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("int base 16", func(t *testing.T) {
		v, err := IntConverter{Base: 16}.Convert("ff")
		if err != nil || v != int64(255) {
			t.Errorf("got %v, %v", v, err)
		}
	})
	t.Run("float", func(t *testing.T) {
		v, err := FloatConverter{}.Convert("2.5")
		if err != nil || v != 2.5 {
			t.Errorf("got %v, %v", v, err)
		}
	})
	t.Run("bool extended forms", func(t *testing.T) {
		for _, s := range []string{"yes", "Y", "on", "1", "t"} {
			v, err := BoolConverter{}.Convert(s)
			if err != nil || v != true {
				t.Errorf("%q: got %v, %v", s, v, err)
			}
		}
		for _, s := range []string{"no", "N", "off", "0", "f"} {
			v, err := BoolConverter{}.Convert(s)
			if err != nil || v != false {
				t.Errorf("%q: got %v, %v", s, v, err)
			}
		}
		if _, err := (BoolConverter{}).Convert("maybe"); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("date", func(t *testing.T) {
		v, err := DateConverter{}.Convert("2024-06-15")
		if err != nil {
			t.Fatal(err)
		}
		ts := v.(time.Time)
		if ts.Year() != 2024 || ts.Month() != time.June || ts.Day() != 15 {
			t.Errorf("got %v", ts)
		}
	})
	t.Run("datetime custom format", func(t *testing.T) {
		v, err := DateTimeConverter{Format: "02/01/2006 15:04"}.Convert("15/06/2024 10:30")
		if err != nil {
			t.Fatal(err)
		}
		if v.(time.Time).Hour() != 10 {
			t.Errorf("got %v", v)
		}
	})
}

// TestConverterRegistry tests the built-in registrations.
func TestConverterRegistry(t *testing.T) {
	reg := NewConverterRegistry()
	for _, name := range []string{"int", "float", "bool", "date", "datetime"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("missing built-in converter %q", name)
		}
	}
	if _, ok := reg.Get("nope"); ok {
		t.Error("unexpected converter")
	}
	reg.Register("custom", ConverterFunc(func(s string) (any, error) {
		return s + "!", nil
	}))
	conv, _ := reg.Get("custom")
	v, _ := conv.Convert("hi")
	if v != "hi!" {
		t.Errorf("got %v", v)
	}
}
