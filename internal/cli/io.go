package cli

import (
	"fmt"
	"io"
	"sync"
)

// IO handles command output. Stdout carries narration and the summary;
// warnings and errors go to stderr.
//
// Warnings are collected during the run and printed together by
// [IO.Finish] so they are not interleaved with narration.
type IO struct {
	mu       sync.Mutex
	out      io.Writer
	errOut   io.Writer
	warnings []string
}

// NewIO creates a new IO instance.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Out returns a writer that serializes with the other IO methods.
func (o *IO) Out() io.Writer {
	return lockedWriter{o}
}

// Warn records a warning to print at [IO.Finish].
func (o *IO) Warn(format string, a ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.warnings = append(o.warnings, fmt.Sprintf(format, a...))
}

// Println writes to stdout.
func (o *IO) Println(a ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish prints collected warnings to stderr and returns how many there
// were.
func (o *IO) Finish() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	return len(o.warnings)
}

type lockedWriter struct{ o *IO }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.o.mu.Lock()
	defer w.o.mu.Unlock()

	return w.o.out.Write(p)
}
