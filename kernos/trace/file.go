package trace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the stream wrapping a trace file.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression parses a compression name. Empty means none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd, CompressionLZ4:
		return Compression(name), nil
	default:
		return "", fmt.Errorf("unknown trace compression: %q", name)
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Writer appends records to a trace stream.
type Writer struct {
	buf     *bufio.Writer
	enc     *cbor.Encoder
	closers []io.Closer
	n       uint64
}

// NewWriter writes h and returns a writer appending records to w.
func NewWriter(w io.Writer, c Compression, h Header) (*Writer, error) {
	tw := &Writer{}
	switch c {
	case "", CompressionNone:
	case CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		tw.closers = append(tw.closers, zw)
		w = zw
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		tw.closers = append(tw.closers, lw)
		w = lw
	default:
		return nil, fmt.Errorf("unknown trace compression: %q", c)
	}
	tw.buf = bufio.NewWriter(w)
	tw.enc = encMode.NewEncoder(tw.buf)

	h.Magic = Magic
	h.Version = Version
	if err := tw.enc.Encode(h); err != nil {
		return nil, fmt.Errorf("writing trace header: %w", err)
	}
	return tw, nil
}

// Create creates the trace file path.
func Create(path string, c Compression, h Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, c, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closers = append(w.closers, f)
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(r Record) error {
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("writing trace record %d: %w", r.Seq, err)
	}
	w.n++
	return nil
}

// Records returns the number of records written.
func (w *Writer) Records() uint64 { return w.n }

// Flush pushes buffered records into the underlying stream.
func (w *Writer) Flush() error { return w.buf.Flush() }

// Close flushes the stream and closes everything the writer opened.
func (w *Writer) Close() error {
	errs := []error{w.buf.Flush()}
	for _, c := range w.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Reader decodes a trace stream.
type Reader struct {
	dec    *cbor.Decoder
	header Header
	close  func()
}

// NewReader detects the compression of r and reads the header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading trace: %w", err)
	}

	tr := &Reader{close: func() {}}
	var src io.Reader = br
	switch {
	case bytes.Equal(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		src = zr
		tr.close = zr.Close
	case bytes.Equal(magic, lz4Magic):
		src = lz4.NewReader(br)
	}

	tr.dec = decMode.NewDecoder(src)
	if err := tr.dec.Decode(&tr.header); err != nil {
		tr.close()
		return nil, fmt.Errorf("reading trace header: %w", err)
	}
	if tr.header.Magic != Magic {
		tr.close()
		return nil, fmt.Errorf("not a trace file (magic %q)", tr.header.Magic)
	}
	if tr.header.Version != Version {
		tr.close()
		return nil, fmt.Errorf("trace version %d, want %d", tr.header.Version, Version)
	}
	return tr, nil
}

// Header returns the trace header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close releases decompressor resources.
func (r *Reader) Close() { r.close() }

// ReadAll reads a whole trace stream.
func ReadAll(src io.Reader) (Header, []Record, error) {
	r, err := NewReader(src)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()
	var recs []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Header(), recs, nil
		}
		if err != nil {
			return r.Header(), recs, err
		}
		recs = append(recs, rec)
	}
}
