package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/adhash-engine/adhash/internal/hashmap"
)

// replCommand starts an interactive liner-backed shell for ad hoc
// put/get/del against a live AdaptiveMap.
func replCommand() *Command {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	backend := fs.String("backend", "chained", "starting backend: chained or robinhood")

	return &Command{
		Flags: fs,
		Usage: "repl [flags]",
		Short: "interactive shell for put/get/del against an in-memory adaptive map",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			kind := hashmap.BackendChained
			if *backend == "robinhood" {
				kind = hashmap.BackendRobinHood
			}

			m, err := hashmap.NewAdaptiveMap(kind, hashmap.DefaultPolicy(), hashmap.Hooks{
				OnMigrated: func(from, to string) { io.Println("[migrated]", from, "->", to) },
			})
			if err != nil {
				return err
			}

			return (&repl{m: m, out: io}).run()
		},
	}
}

type repl struct {
	m     *hashmap.AdaptiveMap
	out   *IO
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".adhash_replay_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	r.out.Println("adhash-replay repl - backend:", r.m.Label())
	r.out.Println("Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("adhash> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				r.out.Println("bye")
				break
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.out.Println("bye")
			r.saveHistory()

			return nil
		case "help", "?":
			r.printHelp()
		case "put":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		case "del", "delete":
			r.cmdDel(args)
		case "len":
			r.out.Println(r.m.Len())
		case "info":
			r.cmdInfo()
		default:
			r.out.Printf("unknown command: %s (type 'help')\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *repl) completer(line string) []string {
	commands := []string{"put", "get", "del", "delete", "len", "info", "help", "exit", "quit", "q"}

	lower := strings.ToLower(line)

	var out []string

	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

func (r *repl) printHelp() {
	r.out.Println("commands:")
	r.out.Println("  put <key> <value>   insert or update")
	r.out.Println("  get <key>           retrieve")
	r.out.Println("  del <key>           delete")
	r.out.Println("  len                 live entry count")
	r.out.Println("  info                backend label and health signals")
	r.out.Println("  exit / quit / q     leave the shell")
}

func (r *repl) cmdPut(args []string) {
	if len(args) < 2 {
		r.out.Println("usage: put <key> <value>")
		return
	}

	if err := r.m.Put(args[0], []byte(strings.Join(args[1:], " "))); err != nil {
		r.out.Println("error:", err)
		return
	}

	r.out.Println("ok")
}

func (r *repl) cmdGet(args []string) {
	if len(args) < 1 {
		r.out.Println("usage: get <key>")
		return
	}

	v, ok := r.m.Get(args[0])
	if !ok {
		r.out.Println("(not found)")
		return
	}

	r.out.Println(string(v))
}

func (r *repl) cmdDel(args []string) {
	if len(args) < 1 {
		r.out.Println("usage: del <key>")
		return
	}

	r.out.Println(r.m.Delete(args[0]))
}

func (r *repl) cmdInfo() {
	hs := r.m.HealthSignals()

	r.out.Printf(
		"backend=%s migrating=%v size=%d capacity=%d load_factor=%.3f max_group_len=%d avg_probe=%.3f tombstone_ratio=%.3f\n",
		r.m.Label(), r.m.IsMigrating(), hs.Size, hs.Capacity, hs.LoadFactor, hs.MaxGroupLen, hs.AvgProbeEstimate, hs.TombstoneRatio,
	)
}
