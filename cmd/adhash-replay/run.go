package main

import (
	"context"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/adhash-engine/adhash/internal/config"
	"github.com/adhash-engine/adhash/internal/dna"
	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
	"github.com/adhash-engine/adhash/internal/iofs"
	"github.com/adhash-engine/adhash/internal/replay"
	"github.com/adhash-engine/adhash/internal/snapshot"
	"github.com/adhash-engine/adhash/internal/telemetry"
)

// runCommand executes one operation stream against a fresh AdaptiveMap.
func runCommand() *Command {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)

	input := fs.String("input", "", "operation stream CSV file (required)")
	backend := fs.String("backend", "chained", "starting backend: chained, robinhood, or adaptive (dna-recommended)")
	snapshotOut := fs.String("snapshot-out", "", "write a snapshot of the final map to this path")
	tickLog := fs.String("tick-log", "", "append-only newline-JSON tick log path")
	compactInterval := fs.Int("compact-interval", 0, "proactively compact every N ops (0 disables)")
	configPath := fs.String("config", "", "explicit JWCC config file path")
	preset := fs.String("preset", "", "named workload preset: read-heavy, write-heavy, mixed (overrides config file)")

	return &Command{
		Flags: fs,
		Usage: "run --input FILE [flags]",
		Short: "replay an operation stream against an adaptive hash map",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execRun(ctx, io, *input, *backend, *snapshotOut, *tickLog, *compactInterval, *configPath, *preset)
		},
	}
}

func execRun(ctx context.Context, io *IO, input, backend, snapshotOut, tickLogPath string, compactInterval int, configPath, preset string) error {
	if input == "" {
		return errs.New(errs.KindBadInput, "--input is required")
	}

	workDir, err := os.Getwd()
	if err != nil {
		return errs.New(errs.KindIoError, "resolve working directory", errs.Cause(err))
	}

	cfg, _, err := config.Load(workDir, configPath, os.Environ())
	if err != nil {
		return err
	}

	if preset != "" {
		cfg, err = config.ApplyPreset(cfg, preset)
		if err != nil {
			return err
		}

		cfg.Preset = preset
	}

	if compactInterval > 0 {
		cfg.Replay.CompactionInterval = compactInterval
	}

	f, err := os.Open(input)
	if err != nil {
		return errs.New(errs.KindIoError, "open input stream", errs.Cause(err))
	}
	defer f.Close()

	ops, err := replay.ReadStream(f, replay.Limits{
		MaxRows:  cfg.Replay.MaxInputRows,
		MaxBytes: cfg.Replay.MaxInputBytes,
	})
	if err != nil {
		return err
	}

	startKind, err := resolveStartKind(backend, ops, cfg)
	if err != nil {
		return err
	}

	fsys := iofs.NewReal()

	bus := telemetry.NewBus(64, 256)

	var tl *telemetry.TickLog

	if tickLogPath != "" {
		tl, err = telemetry.NewTickLog(fsys, tickLogPath, 0)
		if err != nil {
			return err
		}
	}

	hooks := hashmap.Hooks{
		OnInvariantViolation: func(detail string) { io.ErrPrintln("invariant violation:", detail) },
		OnWarn:               func(detail string) { io.ErrPrintln("warning:", detail) },
	}

	m, err := hashmap.NewAdaptiveMap(startKind, cfg.Policy, hooks)
	if err != nil {
		return err
	}

	engine := replay.NewEngine(m, replay.Config{
		SampleEveryNth:     cfg.Replay.SampleEveryNth,
		ReservoirCapacity:  cfg.Replay.ReservoirCapacity,
		TickEveryOps:       cfg.Replay.TickEveryOps,
		IdleAfter:          time.Duration(cfg.Replay.IdleAfterSeconds) * time.Second,
		CompactionInterval: cfg.Replay.CompactionInterval,
		BucketPresetName:   cfg.Replay.BucketPresetName,
		Watchdog: replay.Watchdog{
			LoadFactorWarn:     cfg.Watchdog.LoadFactorWarn,
			AvgProbeWarn:       cfg.Watchdog.AvgProbeWarn,
			TombstoneRatioWarn: cfg.Watchdog.TombstoneRatioWarn,
		},
	}, replay.SystemClock{})

	final, runErr := engine.Run(ctx, ops)

	for _, t := range engine.Ticks() {
		bus.Publish(t)

		if tl != nil {
			if err := tl.Append(t); err != nil {
				return err
			}
		}
	}

	io.Printf("ops=%d backend=%s migrations=%d compactions=%d load_factor=%.3f\n",
		final.TotalOps, final.BackendLabel, final.MigrationsTotal, final.CompactionsTotal, final.LoadFactor)

	if runErr != nil {
		return runErr
	}

	if snapshotOut != "" {
		if err := snapshot.SaveAdaptiveMap(fsys, snapshotOut, m, snapshot.Options{
			Gzip:            cfg.Snapshot.Gzip,
			MaxPayloadBytes: cfg.Snapshot.MaxPayloadBytes,
		}); err != nil {
			return err
		}

		io.Println("snapshot written to", snapshotOut)
	}

	return nil
}

// resolveStartKind turns the --backend flag into a concrete starting
// BackendKind; "adaptive" runs the workload DNA analyzer first and takes
// its recommendation.
func resolveStartKind(backend string, ops []replay.Op, cfg config.Config) (hashmap.BackendKind, error) {
	switch backend {
	case "chained":
		return hashmap.BackendChained, nil
	case "robinhood":
		return hashmap.BackendRobinHood, nil
	case "adaptive":
		opts := dna.DefaultOptions()
		opts.ReferenceBuckets = cfg.Policy.SeedChained.Buckets

		report := dna.Analyze(ops, opts)
		if report.RecommendBackend() == "robinhood" {
			return hashmap.BackendRobinHood, nil
		}

		return hashmap.BackendChained, nil
	default:
		return 0, errs.New(errs.KindBadInput, "--backend must be chained, robinhood, or adaptive")
	}
}
