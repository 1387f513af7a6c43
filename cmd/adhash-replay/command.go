package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/adhash-engine/adhash/internal/errs"
)

// Command defines one adhash-replay subcommand: flags are parsed, then
// Exec runs with the remaining positional args.
type Command struct {
	Flags *flag.FlagSet
	Usage string
	Short string
	Exec  func(ctx context.Context, io *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the one-line summary shown in the top-level usage list.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-40s %s", c.Usage, c.Short)
}

// Run parses flags and executes the command, returning the process exit
// code. errs.Kind values drive the code; anything else is a generic
// failure (exit 1).
func (c *Command) Run(ctx context.Context, io *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})
	jsonErrors := c.Flags.Bool("json-errors", false, "emit failures as JSON envelopes on stderr")

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.printHelp(io)
			return 0
		}

		io.ErrPrintln("error:", err)

		return 2
	}

	if err := c.Exec(ctx, io, c.Flags.Args()); err != nil {
		return reportError(io, err, *jsonErrors)
	}

	return 0
}

func (c *Command) printHelp(io *IO) {
	io.Println("Usage: adhash-replay", c.Usage)
	io.Println()
	io.Println(c.Short)

	if c.Flags != nil && c.Flags.HasFlags() {
		io.Println()
		io.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		io.Printf("%s", buf.String())
	}
}

// reportError prints err to stderr, as a one-line JSON envelope when
// jsonMode is set, and returns the exit code its errs.Kind maps to.
func reportError(io *IO, err error, jsonMode bool) int {
	kind, ok := errs.KindOf(err)
	if !ok {
		if jsonMode {
			io.ErrPrintln(errorEnvelope("unknown", err.Error(), ""))
		} else {
			io.ErrPrintln("error:", err)
		}

		return 1
	}

	if jsonMode {
		var hint string

		var typed *errs.Error
		if errors.As(err, &typed) {
			hint = typed.Hint
		}

		io.ErrPrintln(errorEnvelope(kind.String(), err.Error(), hint))
	} else {
		io.ErrPrintf("error: kind=%s detail=%v\n", kind, err)
	}

	return kind.ExitCode()
}

// errorEnvelope renders the machine-readable stderr envelope.
func errorEnvelope(kind, detail, hint string) string {
	env := map[string]string{"kind": kind, "detail": detail}
	if hint != "" {
		env["hint"] = hint
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Sprintf(`{"kind":%q,"detail":"error envelope encoding failed"}`, kind)
	}

	return string(data)
}
