// Package csv conversion options and eager validation.
package csv

import (
	"bytes"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/Linol-Hamelton/jtcsv-sub006/internal/pool"
	"github.com/Linol-Hamelton/jtcsv-sub006/internal/tokenizer"
)

// FastPathMode selects the output shape of a parse.
type FastPathMode int

const (
	// FastPathObject produces one Record per row (default).
	FastPathObject FastPathMode = iota
	// FastPathCompact produces a shared header plus positional value rows.
	FastPathCompact
	// FastPathStream is only valid for the streaming constructors; the
	// single-shot entry points reject it.
	FastPathStream
)

// String returns the string representation of FastPathMode.
func (m FastPathMode) String() string {
	switch m {
	case FastPathObject:
		return "object"
	case FastPathCompact:
		return "compact"
	case FastPathStream:
		return "stream"
	default:
		return fmt.Sprintf("FastPathMode(%d)", m)
	}
}

// TransformFunc is the per-record transform hook. It runs after coercion and
// before schema validation, may mutate the record in place, and returns false
// to drop the row. An error counts as a row-scoped validation failure.
type TransformFunc func(r *Record) (keep bool, err error)

// Progress reports completion of one chunk of a pooled conversion.
type Progress struct {
	// Processed is the number of completed chunks.
	Processed int
	// Total is the chunk count of the call.
	Total int
	// Percentage is Processed/Total scaled to 0..100.
	Percentage float64
}

// Size thresholds above which the pooled entry points actually engage the
// worker pool. Below them execution stays inline on the caller.
const (
	// DefaultParallelThresholdBytes applies to the parse direction.
	DefaultParallelThresholdBytes = 1 << 20
	// DefaultParallelThresholdRecords applies to the serialize direction.
	DefaultParallelThresholdRecords = 10_000
)

// Options configures a conversion. Options are resolved once per call and
// copied by value across worker boundaries; the engine never mutates a
// caller's Options.
//
// The zero value is not useful; start from DefaultOptions.
type Options struct {
	// Delimiter is the field delimiter. 0 means auto-detect from the first
	// lines of input (comma, semicolon, tab or pipe).
	Delimiter rune
	// Quote is the quote character. Default: '"'
	Quote rune
	// Comment, if not 0, marks lines beginning with it as comments.
	Comment rune
	// HasHeaders treats the first row as the header. When false, column
	// names column1..columnN are synthesized. Default: true
	HasHeaders bool
	// ParseNumbers coerces fields matching the strict numeric grammar to
	// float64. Default: false
	ParseNumbers bool
	// ParseBooleans coerces fields equal to true/false (case-insensitive)
	// to bool. Default: false
	ParseBooleans bool
	// NullValues lists raw field values that coerce to nil. Default: none
	NullValues []string
	// TrimLeadingSpace drops leading white space in unquoted fields.
	TrimLeadingSpace bool
	// RFC4180 enforces strict RFC 4180 quoting. When false, bare quotes in
	// unquoted fields and stray quotes in quoted fields are tolerated.
	// Default: true
	RFC4180 bool
	// PreventInjection prefixes string values starting with a formula
	// trigger character on output. Default: true
	PreventInjection bool
	// OnError selects the row-error policy. Default: ErrorModeFail
	OnError ErrorMode
	// ErrorHandler receives row errors under ErrorModeWarn. When nil,
	// warnings are logged through Logger.
	ErrorHandler ErrorHandler
	// MaxFieldSize limits a single field in bytes. 0 means unbounded.
	MaxFieldSize int
	// MaxRecordSize limits a whole row in bytes. 0 means unbounded.
	MaxRecordSize int
	// FastPath selects the parse output shape. Default: FastPathObject
	FastPath FastPathMode
	// Rename maps source column names to output column names.
	Rename map[string]string
	// HeaderTransform, if set, rewrites each header name before Rename.
	HeaderTransform HeaderConverter
	// Select restricts output to matching columns.
	Select *ColumnSelector
	// Transform is the per-record transform hook.
	Transform TransformFunc
	// Schema, if set, validates each record after the transform hook.
	Schema *Schema
	// UseCRLF terminates output lines with \r\n instead of \n.
	UseCRLF bool
	// AlwaysQuote forces quoting of every output field.
	AlwaysQuote bool
	// UseWorkers allows the pooled entry points to engage the worker pool
	// above the size thresholds. Default: true
	UseWorkers bool
	// WorkerCount sizes the pool. 0 means available cores minus one.
	WorkerCount int
	// ChunkSize is the per-chunk input size in bytes for pooled parsing.
	// 0 derives it from input size and worker count.
	ChunkSize int
	// ParallelThreshold is the input size in bytes above which pooled
	// parsing engages. 0 means DefaultParallelThresholdBytes.
	ParallelThreshold int
	// RecordThreshold is the record count above which pooled serialization
	// engages. 0 means DefaultParallelThresholdRecords.
	RecordThreshold int
	// OnProgress, if set, is invoked per completed chunk of a pooled call.
	OnProgress func(Progress)
	// Logger receives pool and warning logs. nil means slog.Default.
	Logger *slog.Logger
	// Metrics, if set, registers the worker pool collectors.
	Metrics prometheus.Registerer
}

// DefaultOptions returns the default conversion configuration: delimiter
// auto-detection, headers on, strict grammar, injection prevention on, fail on
// the first row error, workers allowed above the size thresholds.
func DefaultOptions() Options {
	return Options{
		Delimiter:        0,
		Quote:            '"',
		HasHeaders:       true,
		RFC4180:          true,
		PreventInjection: true,
		OnError:          ErrorModeFail,
		FastPath:         FastPathObject,
		UseWorkers:       true,
	}
}

// validDelim reports whether r can serve as a field delimiter.
func validDelim(r rune) bool {
	return r != 0 && r != '\r' && r != '\n' && utf8.ValidRune(r) && r != utf8.RuneError
}

// Validate checks the options for invalid combinations. It never touches the
// input; invalid configurations fail before any work begins.
func (o Options) Validate() error {
	if o.Delimiter != 0 && !validDelim(o.Delimiter) {
		return &OptionsError{Field: "Delimiter", Message: "invalid delimiter"}
	}
	if o.Quote != 0 && !validDelim(o.Quote) {
		return &OptionsError{Field: "Quote", Message: "invalid quote character"}
	}
	if o.Quote != 0 && o.Quote == o.Delimiter {
		return &OptionsError{Field: "Quote", Message: "quote character same as delimiter"}
	}
	if o.Comment != 0 && !validDelim(o.Comment) {
		return &OptionsError{Field: "Comment", Message: "invalid comment character"}
	}
	if o.Comment != 0 && (o.Comment == o.Delimiter || o.Comment == o.Quote) {
		return &OptionsError{Field: "Comment", Message: "comment character collides with delimiter or quote"}
	}
	switch o.OnError {
	case ErrorModeFail, ErrorModeWarn, ErrorModeSkip:
	default:
		return &OptionsError{Field: "OnError", Message: fmt.Sprintf("unknown error mode %d", o.OnError)}
	}
	switch o.FastPath {
	case FastPathObject, FastPathCompact, FastPathStream:
	default:
		return &OptionsError{Field: "FastPath", Message: fmt.Sprintf("unknown fast-path mode %d", o.FastPath)}
	}
	if o.MaxFieldSize < 0 {
		return &OptionsError{Field: "MaxFieldSize", Message: "must not be negative"}
	}
	if o.MaxRecordSize < 0 {
		return &OptionsError{Field: "MaxRecordSize", Message: "must not be negative"}
	}
	if o.WorkerCount < 0 {
		return &OptionsError{Field: "WorkerCount", Message: "must not be negative"}
	}
	return nil
}

// resolve validates o and fills in every runtime default, sniffing the
// delimiter from sample when auto-detection is requested. The returned
// Options are the immutable per-call configuration.
func (o Options) resolve(sample string) (Options, error) {
	if err := o.Validate(); err != nil {
		return o, err
	}
	if o.Quote == 0 {
		o.Quote = '"'
	}
	if o.Delimiter == 0 {
		o.Delimiter = DetectDelimiter(sample, o.Quote)
	}
	if o.WorkerCount == 0 {
		o.WorkerCount = pool.DefaultSize()
	}
	if o.ParallelThreshold == 0 {
		o.ParallelThreshold = DefaultParallelThresholdBytes
	}
	if o.RecordThreshold == 0 {
		o.RecordThreshold = DefaultParallelThresholdRecords
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}

// tokenizerOptions maps resolved Options onto the tokenizer configuration.
func (o *Options) tokenizerOptions() tokenizer.Options {
	return tokenizer.Options{
		Comma:            o.Delimiter,
		Quote:            o.Quote,
		Comment:          o.Comment,
		TrimLeadingSpace: o.TrimLeadingSpace,
		LazyQuotes:       !o.RFC4180,
		MaxFieldSize:     o.MaxFieldSize,
		MaxRecordSize:    o.MaxRecordSize,
	}
}

// optionsDoc is the serialized form accepted by OptionsFromJSON and
// OptionsFromYAML. Absent fields keep their defaults; unknown enum values are
// rejected.
type optionsDoc struct {
	Delimiter         string            `json:"delimiter" yaml:"delimiter"`
	Quote             string            `json:"quote" yaml:"quote"`
	Comment           string            `json:"comment" yaml:"comment"`
	HasHeaders        *bool             `json:"hasHeaders" yaml:"hasHeaders"`
	ParseNumbers      *bool             `json:"parseNumbers" yaml:"parseNumbers"`
	ParseBooleans     *bool             `json:"parseBooleans" yaml:"parseBooleans"`
	NullValues        []string          `json:"nullValues" yaml:"nullValues"`
	TrimLeadingSpace  *bool             `json:"trimLeadingSpace" yaml:"trimLeadingSpace"`
	RFC4180           *bool             `json:"rfc4180" yaml:"rfc4180"`
	PreventInjection  *bool             `json:"preventCsvInjection" yaml:"preventCsvInjection"`
	OnError           string            `json:"onError" yaml:"onError"`
	MaxFieldSize      *int              `json:"maxFieldSize" yaml:"maxFieldSize"`
	MaxRecordSize     *int              `json:"maxRowSize" yaml:"maxRowSize"`
	FastPath          string            `json:"fastPathMode" yaml:"fastPathMode"`
	Rename            map[string]string `json:"rename" yaml:"rename"`
	UseCRLF           *bool             `json:"useCRLF" yaml:"useCRLF"`
	AlwaysQuote       *bool             `json:"alwaysQuote" yaml:"alwaysQuote"`
	UseWorkers        *bool             `json:"useWorkers" yaml:"useWorkers"`
	WorkerCount       *int              `json:"workerCount" yaml:"workerCount"`
	ChunkSize         *int              `json:"chunkSize" yaml:"chunkSize"`
	ParallelThreshold *int              `json:"parallelThreshold" yaml:"parallelThreshold"`
	RecordThreshold   *int              `json:"recordThreshold" yaml:"recordThreshold"`
}

// OptionsFromJSON decodes an options document from JSON bytes on top of the
// defaults. Unknown fields and unknown enum values are rejected.
func OptionsFromJSON(data []byte) (Options, error) {
	var doc optionsDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Options{}, &OptionsError{Field: "json", Message: err.Error()}
	}
	return doc.apply(DefaultOptions())
}

// OptionsFromYAML decodes an options document from YAML bytes on top of the
// defaults. Unknown fields and unknown enum values are rejected.
func OptionsFromYAML(data []byte) (Options, error) {
	var doc optionsDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Options{}, &OptionsError{Field: "yaml", Message: err.Error()}
	}
	return doc.apply(DefaultOptions())
}

// apply overlays the document onto base and validates the result.
func (d optionsDoc) apply(base Options) (Options, error) {
	o := base
	var err error
	if o.Delimiter, err = runeField("delimiter", d.Delimiter, o.Delimiter); err != nil {
		return o, err
	}
	if o.Quote, err = runeField("quote", d.Quote, o.Quote); err != nil {
		return o, err
	}
	if o.Comment, err = runeField("comment", d.Comment, o.Comment); err != nil {
		return o, err
	}
	setBool(&o.HasHeaders, d.HasHeaders)
	setBool(&o.ParseNumbers, d.ParseNumbers)
	setBool(&o.ParseBooleans, d.ParseBooleans)
	setBool(&o.TrimLeadingSpace, d.TrimLeadingSpace)
	setBool(&o.RFC4180, d.RFC4180)
	setBool(&o.PreventInjection, d.PreventInjection)
	setBool(&o.UseCRLF, d.UseCRLF)
	setBool(&o.AlwaysQuote, d.AlwaysQuote)
	setBool(&o.UseWorkers, d.UseWorkers)
	setInt(&o.MaxFieldSize, d.MaxFieldSize)
	setInt(&o.MaxRecordSize, d.MaxRecordSize)
	setInt(&o.WorkerCount, d.WorkerCount)
	setInt(&o.ChunkSize, d.ChunkSize)
	setInt(&o.ParallelThreshold, d.ParallelThreshold)
	setInt(&o.RecordThreshold, d.RecordThreshold)
	if d.NullValues != nil {
		o.NullValues = d.NullValues
	}
	if d.Rename != nil {
		o.Rename = d.Rename
	}
	switch d.OnError {
	case "":
	case "throw", "fail", "error":
		o.OnError = ErrorModeFail
	case "warn":
		o.OnError = ErrorModeWarn
	case "skip":
		o.OnError = ErrorModeSkip
	default:
		return o, &OptionsError{Field: "onError", Message: fmt.Sprintf("unknown mode %q", d.OnError)}
	}
	switch d.FastPath {
	case "":
	case "object":
		o.FastPath = FastPathObject
	case "compact":
		o.FastPath = FastPathCompact
	case "stream":
		o.FastPath = FastPathStream
	default:
		return o, &OptionsError{Field: "fastPathMode", Message: fmt.Sprintf("unknown mode %q", d.FastPath)}
	}
	if err := o.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

func runeField(name, s string, fallback rune) (rune, error) {
	if s == "" {
		return fallback, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError {
		return 0, &OptionsError{Field: name, Message: fmt.Sprintf("%q is not a single character", s)}
	}
	return r, nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
