package main

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/iofs"
	"github.com/adhash-engine/adhash/internal/snapshot"
)

// verifyCommand loads a snapshot and runs the post-load invariant
// verifier against it, optionally repairing Robin Hood tombstone drift.
func verifyCommand() *Command {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)

	path := fs.String("snapshot", "", "snapshot file to verify (required)")
	repair := fs.Bool("repair", false, "compact and rewrite if the verifier finds a fixable inconsistency")
	maxPayload := fs.Int64("max-payload-bytes", 256<<20, "reject snapshots whose declared payload exceeds this size")

	return &Command{
		Flags: fs,
		Usage: "verify --snapshot FILE [flags]",
		Short: "check a snapshot's post-load invariants, optionally repairing it",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execVerify(io, *path, *repair, *maxPayload)
		},
	}
}

func execVerify(io *IO, path string, repair bool, maxPayload int64) error {
	if path == "" {
		return errs.New(errs.KindBadInput, "--snapshot is required")
	}

	fsys := iofs.NewReal()
	opts := snapshot.Options{MaxPayloadBytes: maxPayload}

	if repair {
		report, err := snapshot.RepairRobinHoodFile(fsys, path, opts)
		if err != nil {
			return err
		}

		printReport(io, report)

		return nil
	}

	report, err := snapshot.VerifyFile(fsys, path, opts)
	if err != nil {
		return err
	}

	printReport(io, report)

	return nil
}

func printReport(io *IO, r snapshot.Report) {
	io.Printf("kind=%s backend=%s consistent=%v repaired=%v detail=%q\n",
		r.Kind, r.Backend, r.Consistent, r.Repaired, r.Detail)
}
