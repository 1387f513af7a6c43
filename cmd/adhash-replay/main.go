// Command adhash-replay drives the adaptive hash map engine against an
// operation stream, verifies and repairs snapshots, profiles workloads,
// and hosts an interactive shell. main() stays thin: parse os.Args,
// install signal handling, delegate dispatch and error-to-exit-code
// mapping to Run.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	os.Exit(Run(os.Stdout, os.Stderr, os.Args, sigCh))
}

// Run is the testable entry point: parses the global command name, builds
// the command table, dispatches, and runs the chosen command to
// completion or cancellation via ctx.
func Run(out, errOut io.Writer, args []string, sigCh <-chan os.Signal) int {
	io := NewIO(out, errOut)

	commands := allCommands()
	ordered := commandList(commands)

	if len(args) < 2 {
		printUsage(io, ordered)
		return 2
	}

	name := args[1]

	if name == "-h" || name == "--help" {
		printUsage(io, ordered)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		io.ErrPrintln("error: unknown command:", name)
		printUsage(io, ordered)

		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, io, args[2:])
	}()

	select {
	case code := <-done:
		return code
	case <-sigCh:
		io.ErrPrintln("interrupted, cancelling...")
		cancel()

		return <-done
	}
}

func allCommands() map[string]*Command {
	out := make(map[string]*Command)

	for _, cmd := range []*Command{
		runCommand(),
		verifyCommand(),
		dnaCommand(),
		replCommand(),
	} {
		out[cmd.Name()] = cmd
	}

	return out
}

func commandList(m map[string]*Command) []*Command {
	order := []string{"run", "verify", "dna", "repl"}

	out := make([]*Command, 0, len(order))
	for _, name := range order {
		if cmd, ok := m[name]; ok {
			out = append(out, cmd)
		}
	}

	return out
}

func printUsage(io *IO, commands []*Command) {
	io.Println("adhash-replay - adaptive hash map replay driver")
	io.Println()
	io.Println("Usage: adhash-replay <command> [flags]")
	io.Println()
	io.Println("Commands:")

	for _, cmd := range commands {
		io.Println(cmd.HelpLine())
	}

	io.Println()
	io.Println("Run 'adhash-replay <command> --help' for command-specific flags.")
}
