package main

import (
	"fmt"
	"io"
)

// IO is the command output surface: plain stdout/stderr writers.
// Failures are reported through reportError, not buffered warnings.
type IO struct {
	out    io.Writer
	errOut io.Writer
}

// NewIO wraps the output/error streams a command writes to.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

func (o *IO) ErrPrintf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.errOut, format, a...)
}
