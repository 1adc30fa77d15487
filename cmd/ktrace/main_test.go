package main

import (
	"bytes"
	"strings"
	"testing"

	"hwkern/kernos/trace"
)

func sampleTrace(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w, err := trace.NewWriter(&buf, trace.CompressionZstd, trace.Header{CPUs: 2})
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}
	for i, r := range []trace.Record{
		{Kind: "create", Object: "thread", Cap: 3, Label: "shell"},
		{Kind: "dispatch", CPU: 1, Object: "thread", Cap: 3, Label: "shell"},
		{Kind: "submit", Object: "signal_context", Cap: 5, Label: "kbd", Arg: 1, Arg2: 1},
		{Kind: "dispatch", Object: "thread", Cap: 4, Label: "pager"},
	} {
		r.Seq = uint64(i + 1)
		if err := w.Write(r); err != nil {
			t.Fatalf("Write() = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	return &buf
}

func TestDumpFilters(t *testing.T) {
	var out bytes.Buffer
	if err := dump(&out, sampleTrace(t), options{kinds: []string{"dispatch"}, cpu: -1}); err != nil {
		t.Fatalf("dump() = %v", err)
	}
	s := out.String()
	if !strings.HasPrefix(s, "# hwkern-trace v1 cpus=2\n") {
		t.Fatalf("header line missing: %q", s)
	}
	if strings.Count(s, "dispatch") != 2 || strings.Contains(s, "create") {
		t.Fatalf("kind filter: %q", s)
	}
	if !strings.HasSuffix(s, "# 4 records\n") {
		t.Fatalf("trailer missing: %q", s)
	}

	out.Reset()
	if err := dump(&out, sampleTrace(t), options{label: "shell", cpu: 1}); err != nil {
		t.Fatalf("dump() = %v", err)
	}
	if n := strings.Count(out.String(), "\"shell\""); n != 1 {
		t.Fatalf("label+cpu filter matched %d records: %q", n, out.String())
	}
}

func TestDumpSummary(t *testing.T) {
	var out bytes.Buffer
	if err := dump(&out, sampleTrace(t), options{summary: true, cpu: -1}); err != nil {
		t.Fatalf("dump() = %v", err)
	}
	want := "create     1\ndispatch   2\nsubmit     1\n"
	if !strings.Contains(out.String(), want) {
		t.Fatalf("summary = %q, want %q", out.String(), want)
	}
}

func TestRunUsage(t *testing.T) {
	if err := run(nil, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("run() without a file succeeded")
	}
	if err := run([]string{"--bogus", "x"}, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("run() accepted an unknown flag")
	}
}
