// Command ktrace prints a kernel event trace written with --trace.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/pflag"

	"hwkern/kernos/trace"
)

type options struct {
	kinds   []string
	label   string
	cpu     int
	summary bool
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fatalf("ktrace: %v", err)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("ktrace", pflag.ContinueOnError)
	flagSet.StringSliceVar(&opts.kinds, "kind", nil, "only print events of these kinds (repeatable)")
	flagSet.StringVar(&opts.label, "label", "", "only print events of objects with this label")
	flagSet.IntVar(&opts.cpu, "cpu", -1, "only print events of this cpu")
	flagSet.BoolVar(&opts.summary, "summary", false, "print event counts per kind instead of events")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: ktrace [flags] <file|->")
	}

	src := stdin
	if path := flagSet.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	return dump(stdout, src, opts)
}

func (o options) match(r trace.Record) bool {
	if o.cpu >= 0 && r.CPU != o.cpu {
		return false
	}
	if o.label != "" && r.Label != o.label {
		return false
	}
	if len(o.kinds) == 0 {
		return true
	}
	for _, k := range o.kinds {
		if r.Kind == k {
			return true
		}
	}
	return false
}

// dump writes the matching records of the trace read from src.
func dump(w io.Writer, src io.Reader, opts options) error {
	r, err := trace.NewReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	fmt.Fprintf(w, "# %s v%d cpus=%d\n", h.Magic, h.Version, h.CPUs)

	counts := make(map[string]uint64)
	var total uint64
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", total, err)
		}
		total++
		if !opts.match(rec) {
			continue
		}
		if opts.summary {
			counts[rec.Kind]++
			continue
		}
		fmt.Fprintln(w, rec.String())
	}

	if opts.summary {
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "%-10s %d\n", k, counts[k])
		}
	}
	fmt.Fprintf(w, "# %d records\n", total)
	return nil
}
