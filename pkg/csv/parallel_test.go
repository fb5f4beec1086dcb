package csv

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func buildInput(rows int) string {
	var sb strings.Builder
	sb.WriteString("id,name,note\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&sb, "%d,name-%d,\"note, with comma %d\"\n", i, i, i)
	}
	return sb.String()
}

// pooledOptions forces the pool on for small inputs so the chunked path is
// exercised without megabytes of fixture data.
func pooledOptions(chunkSize int) Options {
	opts := DefaultOptions()
	opts.Delimiter = ','
	opts.ParallelThreshold = 1
	opts.ChunkSize = chunkSize
	opts.WorkerCount = 4
	return opts
}

// TestParseParallel_MatchesInline tests that pooled parsing is
// indistinguishable from inline parsing across chunk counts.
func TestParseParallel_MatchesInline(t *testing.T) {
	input := buildInput(200)

	inlineOpts := DefaultOptions()
	inlineOpts.Delimiter = ','
	want, err := ParseWithOptions(input, inlineOpts)
	if err != nil {
		t.Fatal(err)
	}

	for _, chunkSize := range []int{len(input) * 2, len(input)/2 + 1, 256, 64} {
		t.Run(fmt.Sprintf("chunk=%d", chunkSize), func(t *testing.T) {
			got, err := ParseParallel(context.Background(), input, pooledOptions(chunkSize))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got.Header, want.Header) {
				t.Errorf("header: got %v, want %v", got.Header, want.Header)
			}
			if !reflect.DeepEqual(got.Records, want.Records) {
				t.Errorf("records diverge: got %d, want %d", len(got.Records), len(want.Records))
			}
			if got.Stats != want.Stats {
				t.Errorf("stats: got %+v, want %+v", got.Stats, want.Stats)
			}
		})
	}
}

// TestParseParallel_BelowThresholdInline tests that small inputs never touch
// the pool.
func TestParseParallel_BelowThresholdInline(t *testing.T) {
	opts := DefaultOptions()
	opts.Delimiter = ','
	// Defaults: threshold is 1 MiB, this input is far below it.
	result, err := ParseParallel(context.Background(), "a,b\n1,2\n", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 1 {
		t.Errorf("got %d records", len(result.Records))
	}
}

// TestParseParallel_WorkersDisabled tests the UseWorkers opt-out.
func TestParseParallel_WorkersDisabled(t *testing.T) {
	opts := pooledOptions(64)
	opts.UseWorkers = false
	input := buildInput(100)
	got, err := ParseParallel(context.Background(), input, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Records) != 100 {
		t.Errorf("got %d records", len(got.Records))
	}
}

// TestParseParallel_RowNumbering tests that a failing row in a later chunk
// reports its global row number.
func TestParseParallel_RowNumbering(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b\n")
	for i := 1; i <= 100; i++ {
		if i == 77 {
			sb.WriteString("onlyonefield\n")
			continue
		}
		fmt.Fprintf(&sb, "x%d,y%d\n", i, i)
	}

	_, err := ParseParallel(context.Background(), sb.String(), pooledOptions(64))
	if !errors.Is(err, ErrFieldCount) {
		t.Fatalf("got %v, want ErrFieldCount", err)
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("got %T", err)
	}
	if perr.RowNumber != 77 {
		t.Errorf("row number: got %d, want 77", perr.RowNumber)
	}
}

// TestParseParallel_WarnReplayOrder tests that deferred warnings arrive in
// global row order with corrected numbers.
func TestParseParallel_WarnReplayOrder(t *testing.T) {
	badRows := map[int]bool{10: true, 40: true, 90: true}
	var sb strings.Builder
	sb.WriteString("a,b\n")
	for i := 1; i <= 100; i++ {
		if badRows[i] {
			sb.WriteString("short\n")
			continue
		}
		fmt.Fprintf(&sb, "x%d,y%d\n", i, i)
	}

	var warned []int
	opts := pooledOptions(64)
	opts.OnError = ErrorModeWarn
	opts.ErrorHandler = func(err error, raw []string, row int) {
		warned = append(warned, row)
	}

	result, err := ParseParallel(context.Background(), sb.String(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Records) != 97 {
		t.Errorf("got %d records, want 97", len(result.Records))
	}
	if !reflect.DeepEqual(warned, []int{10, 40, 90}) {
		t.Errorf("warned rows: got %v, want [10 40 90]", warned)
	}
	if result.Stats.Warnings != 3 {
		t.Errorf("warnings: got %d", result.Stats.Warnings)
	}
}

// TestParseParallel_QuotedNewlinesAcrossChunks tests that chunk splitting
// never cuts inside a quoted field.
func TestParseParallel_QuotedNewlinesAcrossChunks(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,text\n")
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&sb, "%d,\"line one\nline two of %d\"\n", i, i)
	}
	input := sb.String()

	inlineOpts := DefaultOptions()
	inlineOpts.Delimiter = ','
	want, err := ParseWithOptions(input, inlineOpts)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseParallel(context.Background(), input, pooledOptions(48))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Records, want.Records) {
		t.Errorf("records diverge: got %d, want %d", len(got.Records), len(want.Records))
	}
}

// TestParseParallel_NoHeaders tests synthetic headers across chunks.
func TestParseParallel_NoHeaders(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&sb, "a%d,b%d\n", i, i)
	}
	opts := pooledOptions(64)
	opts.HasHeaders = false

	got, err := ParseParallel(context.Background(), sb.String(), opts)
	if err != nil {
		t.Fatal(err)
	}
	assertHeader(t, got.Header, []string{"column1", "column2"})
	if len(got.Records) != 100 {
		t.Errorf("got %d records", len(got.Records))
	}
	if v, _ := got.Records[99].GetByName("column1"); v != "a100" {
		t.Errorf("column1: got %v", v)
	}
}

// TestSplitChunks tests row alignment of the chunk splitter.
func TestSplitChunks(t *testing.T) {
	opts := DefaultOptions()
	opts.Delimiter = ','
	opts.Quote = '"'
	opts.WorkerCount = 4

	body := "a,b\nc,\"multi\nline\"\ne,f\ng,h\n"
	opts.ChunkSize = 8
	chunks := splitChunks(body, &opts)

	if strings.Join(chunks, "") != body {
		t.Fatalf("chunks do not reassemble the body: %q", chunks)
	}
	for i, c := range chunks {
		if !strings.HasSuffix(c, "\n") {
			t.Errorf("chunk %d does not end on a row boundary: %q", i, c)
		}
		if strings.Contains(c, "\"multi\n") && !strings.Contains(c, "line\"") {
			t.Errorf("chunk %d splits a quoted field: %q", i, c)
		}
	}
}

// TestRenderParallel_MatchesInline tests byte equality of pooled and inline
// serialization.
func TestRenderParallel_MatchesInline(t *testing.T) {
	result, err := ParseWithOptions(buildInput(500), func() Options {
		o := DefaultOptions()
		o.Delimiter = ','
		return o
	}())
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Delimiter = ','
	want, err := Render(result.Records, opts)
	if err != nil {
		t.Fatal(err)
	}

	opts.RecordThreshold = 1
	opts.WorkerCount = 4
	got, err := RenderParallel(context.Background(), result.Records, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Error("pooled render differs from inline render")
	}
}

// TestRenderParallel_BelowThresholdInline tests the record-count threshold.
func TestRenderParallel_BelowThresholdInline(t *testing.T) {
	rec, _ := NewRecord([]string{"a"}, []any{"1"})
	opts := DefaultOptions()
	opts.Delimiter = ','
	out, err := RenderParallel(context.Background(), []Record{rec}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if out != "a\n1\n" {
		t.Errorf("got %q", out)
	}
}

// TestParseParallel_Progress tests chunk progress callbacks.
func TestParseParallel_Progress(t *testing.T) {
	var calls []Progress
	opts := pooledOptions(64)
	opts.OnProgress = func(p Progress) {
		calls = append(calls, p)
	}
	if _, err := ParseParallel(context.Background(), buildInput(200), opts); err != nil {
		t.Fatal(err)
	}
	if len(calls) == 0 {
		t.Fatal("no progress callbacks")
	}
	last := calls[len(calls)-1]
	if last.Processed != last.Total || last.Percentage != 100 {
		t.Errorf("final progress: %+v", last)
	}
}
