// Package trace records kernel events into a ring and, optionally, a trace
// file of CBOR records.
//
// A trace file is a CBOR header followed by one CBOR record per event,
// optionally wrapped in a zstd or lz4 stream. Records use core
// deterministic encoding, so equal event sequences produce equal files.
package trace

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"hwkern/kernos/kernel"
)

// Magic identifies a trace file header.
const Magic = "hwkern-trace"

// Version is the trace record format version.
const Version = 1

// Header is the first item of a trace file.
type Header struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
	CPUs    int    `cbor:"3,keyasint,omitempty"`
}

// Record is the file form of a kernel event. Kinds are stored by name so
// files stay readable across renumbering.
type Record struct {
	Seq    uint64 `cbor:"1,keyasint"`
	Tick   uint64 `cbor:"2,keyasint"`
	CPU    int    `cbor:"3,keyasint"`
	Kind   string `cbor:"4,keyasint"`
	Object string `cbor:"5,keyasint,omitempty"`
	Cap    uint32 `cbor:"6,keyasint,omitempty"`
	Label  string `cbor:"7,keyasint,omitempty"`
	Arg    uint64 `cbor:"8,keyasint,omitempty"`
	Arg2   uint64 `cbor:"9,keyasint,omitempty"`
}

// FromEvent converts a kernel event.
func FromEvent(ev kernel.Event) Record {
	r := Record{
		Seq:   ev.Seq,
		Tick:  ev.Tick,
		CPU:   ev.CPU,
		Kind:  ev.Kind.String(),
		Cap:   uint32(ev.Cap),
		Label: ev.Label,
		Arg:   ev.Arg,
		Arg2:  ev.Arg2,
	}
	if ev.Object != kernel.KindInvalid {
		r.Object = ev.Object.String()
	}
	return r
}

// String formats r as one line.
func (r Record) String() string {
	s := fmt.Sprintf("%8d t=%-8d cpu=%-2d %-9s", r.Seq, r.Tick, r.CPU, r.Kind)
	if r.Object != "" {
		s += fmt.Sprintf(" %s#%d", r.Object, r.Cap)
	}
	if r.Label != "" {
		s += fmt.Sprintf(" %q", r.Label)
	}
	if r.Arg != 0 || r.Arg2 != 0 {
		s += fmt.Sprintf(" arg=%d arg2=%#x", r.Arg, r.Arg2)
	}
	return s
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("trace: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("trace: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes one record.
func Marshal(r Record) ([]byte, error) {
	return encMode.Marshal(r)
}

// Unmarshal decodes one record.
func Unmarshal(data []byte, r *Record) error {
	return decMode.Unmarshal(data, r)
}
