// Package util holds cross-cutting helpers shared by the backend packages:
// the core's own configuration knobs, a parallel error collector, a small
// generic stack and the x86-64 name mangler. None of this reaches into
// os.Args, environment variables or the filesystem -- the CLI driver that
// owns those is an external collaborator (spec.md §1, §6).
package util

import (
	"fmt"
	"io"
)

// Vendor identifies the target platform for name mangling purposes
// (spec.md §6: Darwin and Windows prefix runtime symbols with an underscore).
type Vendor int

const (
	Linux Vendor = iota
	Darwin
	Windows
)

// Options carries the knobs the backend core itself consumes.
type Options struct {
	// Threads bounds how many procedures CompileModule may process concurrently.
	// 0 or 1 means sequential, deterministic compilation (spec.md §5).
	Threads int

	// Verbose, when true, causes per-stage diagnostics (the block count after
	// linearisation, the stack-slot count after allocation) to be written to
	// Log.
	Verbose bool

	// Log receives verbose diagnostics; nil disables them regardless of
	// Verbose. Defaults are the caller's responsibility -- the core never
	// opens a file or writes to stdout on its own.
	Log io.Writer

	// TargetVendor selects the name-mangling convention (spec.md §6).
	TargetVendor Vendor
}

// Logf writes a verbose diagnostic line if Verbose is set and Log is non-nil.
func (o Options) Logf(format string, args ...interface{}) {
	if !o.Verbose || o.Log == nil {
		return
	}
	fmt.Fprintf(o.Log, format+"\n", args...)
}
