package main

import (
	"context"
	"encoding/json"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/adhash-engine/adhash/internal/dna"
	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/replay"
)

// dnaCommand runs the workload DNA analyzer over an operation stream and
// prints its report.
func dnaCommand() *Command {
	fs := flag.NewFlagSet("dna", flag.ContinueOnError)

	input := fs.String("input", "", "operation stream CSV file (required)")
	output := fs.String("output", "", "write the report as JSON to this path instead of printing text")
	topK := fs.Int("top-k", 10, "number of hot keys to report")
	maxTracked := fs.Int("max-tracked-keys", 256, "heavy-hitter sketch capacity")

	return &Command{
		Flags: fs,
		Usage: "dna --input FILE [flags]",
		Short: "analyze an operation stream's shape (op mix, skew, hotspots)",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execDNA(io, *input, *output, *topK, *maxTracked)
		},
	}
}

func execDNA(io *IO, input, output string, topK, maxTracked int) error {
	if input == "" {
		return errs.New(errs.KindBadInput, "--input is required")
	}

	f, err := os.Open(input)
	if err != nil {
		return errs.New(errs.KindIoError, "open input stream", errs.Cause(err))
	}
	defer f.Close()

	ops, err := replay.ReadStream(f, replay.Limits{})
	if err != nil {
		return err
	}

	opts := dna.DefaultOptions()
	opts.TopK = topK
	opts.MaxTrackedKeys = maxTracked

	report := dna.Analyze(ops, opts)

	if output == "" {
		io.Printf("%s", report.String())
		io.Printf("recommended backend: %s\n", report.RecommendBackend())

		return nil
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errs.New(errs.KindIoError, "encode dna report", errs.Cause(err))
	}

	if err := os.WriteFile(output, data, 0o644); err != nil {
		return errs.New(errs.KindIoError, "write dna report", errs.Cause(err))
	}

	io.Println("dna report written to", output)

	return nil
}
