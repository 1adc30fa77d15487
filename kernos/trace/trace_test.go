package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hwkern/kernos/kernel"
)

func TestRecorderRing(t *testing.T) {
	r := NewRecorder(3)
	for i := 1; i <= 5; i++ {
		r.Record(kernel.Event{Seq: uint64(i), Kind: kernel.EvSubmit})
	}
	evs := r.Events()
	if len(evs) != 3 || evs[0].Seq != 3 || evs[2].Seq != 5 {
		t.Fatalf("Events() = %+v, want seq 3..5", evs)
	}
	if r.Total() != 5 || r.Count(kernel.EvSubmit) != 5 {
		t.Fatalf("Total()/Count() = %d/%d, want 5/5", r.Total(), r.Count(kernel.EvSubmit))
	}
}

func TestStreamDetectsCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, c, Header{CPUs: 2})
		if err != nil {
			t.Fatalf("NewWriter(%s) = %v", c, err)
		}
		for i := 1; i <= 3; i++ {
			if err := w.Write(Record{Seq: uint64(i), Kind: "dispatch", Label: "t"}); err != nil {
				t.Fatalf("Write() = %v", err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close() = %v", err)
		}

		h, recs, err := ReadAll(&buf)
		if err != nil {
			t.Fatalf("ReadAll(%s) = %v", c, err)
		}
		if h.CPUs != 2 || len(recs) != 3 || recs[2].Seq != 3 {
			t.Fatalf("ReadAll(%s) = %+v, %d records", c, h, len(recs))
		}
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	r := Record{Seq: 9, Tick: 4, CPU: 1, Kind: "deliver", Object: "signal-context", Cap: 3, Arg: 5, Arg2: 0x42}
	a, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	b, _ := Marshal(r)
	if !bytes.Equal(a, b) {
		t.Fatal("Marshal() not deterministic")
	}
	var got Record
	if err := Unmarshal(a, &got); err != nil || got != r {
		t.Fatalf("Unmarshal() = %+v/%v, want %+v", got, err, r)
	}
}

func TestReaderRejectsForeignData(t *testing.T) {
	if _, _, err := ReadAll(strings.NewReader("not a trace")); err == nil {
		t.Fatal("expected error for foreign data")
	}
}

func TestKernelTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.trace")
	w, err := Create(path, CompressionZstd, Header{CPUs: 1})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	rec := NewRecorder(64)
	rec.Attach(w)

	k, err := kernel.New(kernel.Options{Tracer: rec})
	if err != nil {
		t.Fatalf("kernel.New() = %v", err)
	}
	defer k.Close()
	r, err := k.CreateObject(kernel.KindSignalReceiver, kernel.ReceiverArgs{Label: "r"})
	if err != nil {
		t.Fatalf("CreateObject() = %v", err)
	}
	sc, err := k.CreateObject(kernel.KindSignalContext, kernel.ContextArgs{Label: "c", Receiver: r, Imprint: 0x42})
	if err != nil {
		t.Fatalf("CreateObject() = %v", err)
	}
	if err := k.Submit(sc, 2); err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if w.Records() != 3 {
		t.Fatalf("Records() = %d, want 3", w.Records())
	}
	if rec.Err() != nil {
		t.Fatalf("recorder error: %v", rec.Err())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer f.Close()
	_, recs, err := ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("trace has %d records, want 3", len(recs))
	}
	last := recs[2]
	if last.Kind != "submit" || last.Object != "signal-context" || last.Arg != 2 || last.Arg2 != 0x42 {
		t.Fatalf("last record = %s", last)
	}
}
