// Package config loads the replay engine's configuration: backend policy
// thresholds, replay sampling/tick settings, and snapshot limits. Files are
// JWCC (JSON with comments and trailing commas): hujson.Standardize then
// encoding/json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/adhash-engine/adhash/internal/errs"
	"github.com/adhash-engine/adhash/internal/hashmap"
)

// FileName is the default project config file name.
const FileName = ".adhash.json"

// Replay carries the replay engine's sampling and emission settings.
type Replay struct {
	SampleEveryNth     int    `json:"sample_every_nth"`
	ReservoirCapacity  int    `json:"reservoir_capacity"`
	TickEveryOps       int    `json:"tick_every_ops"`
	IdleAfterSeconds   int    `json:"idle_after_seconds"`
	CompactionInterval int    `json:"compaction_interval_ops"` // 0 disables proactive compaction
	BucketPresetName   string `json:"latency_bucket_preset"`
	MaxInputRows       int    `json:"max_input_rows"`
	MaxInputBytes      int64  `json:"max_input_bytes"`
}

// Watchdog carries the optional alert thresholds evaluated against each
// tick.
type Watchdog struct {
	LoadFactorWarn     float64 `json:"load_factor_warn,omitempty"`
	AvgProbeWarn       float64 `json:"avg_probe_warn,omitempty"`
	TombstoneRatioWarn float64 `json:"tombstone_ratio_warn,omitempty"`
}

// Snapshot carries the binary snapshot codec's limits.
type Snapshot struct {
	MaxPayloadBytes int64 `json:"max_payload_bytes"`
	Gzip            bool  `json:"gzip"`
}

// Config is the full on-disk configuration, merged from defaults, a global
// user file, a project file, and CLI overrides, in that precedence order.
type Config struct {
	StartBackend string         `json:"start_backend"`    // "chained" or "robinhood"
	Preset       string         `json:"preset,omitempty"` // named workload preset, applied before file/CLI overrides
	Policy       hashmap.Policy `json:"policy"`
	Replay       Replay         `json:"replay"`
	Watchdog     Watchdog       `json:"watchdog"`
	Snapshot     Snapshot       `json:"snapshot"`
}

// Default returns the engine's built-in configuration.
func Default() Config {
	return Config{
		StartBackend: "chained",
		Policy:       hashmap.DefaultPolicy(),
		Replay: Replay{
			SampleEveryNth:     128,
			ReservoirCapacity:  1000,
			TickEveryOps:       1024,
			IdleAfterSeconds:   5,
			CompactionInterval: 0,
			BucketPresetName:   "default",
			MaxInputRows:       10_000_000,
			MaxInputBytes:      1 << 30,
		},
		Snapshot: Snapshot{
			MaxPayloadBytes: 256 << 20,
			Gzip:            false,
		},
	}
}

// Validate rejects out-of-range settings with *BadConfig, beyond what
// hashmap.Policy.Validate already checks.
func (c Config) Validate() error {
	if c.StartBackend != "chained" && c.StartBackend != "robinhood" {
		return errs.New(errs.KindBadConfig, fmt.Sprintf("start_backend must be chained or robinhood, got %q", c.StartBackend))
	}

	if err := c.Policy.Validate(); err != nil {
		return err
	}

	if c.Replay.SampleEveryNth <= 0 {
		return errs.New(errs.KindBadConfig, "replay.sample_every_nth must be > 0")
	}

	if c.Replay.ReservoirCapacity <= 0 {
		return errs.New(errs.KindBadConfig, "replay.reservoir_capacity must be > 0")
	}

	if c.Replay.TickEveryOps <= 0 {
		return errs.New(errs.KindBadConfig, "replay.tick_every_ops must be > 0")
	}

	if c.Replay.MaxInputRows <= 0 {
		return errs.New(errs.KindBadConfig, "replay.max_input_rows must be > 0")
	}

	if c.Replay.MaxInputBytes <= 0 {
		return errs.New(errs.KindBadConfig, "replay.max_input_bytes must be > 0")
	}

	if c.Snapshot.MaxPayloadBytes <= 0 {
		return errs.New(errs.KindBadConfig, "snapshot.max_payload_bytes must be > 0")
	}

	return nil
}

// Sources tracks which config files actually contributed to a load, for
// diagnostics.
type Sources struct {
	Global  string
	Project string
}

// Load resolves configuration with precedence, highest wins:
//  1. Default()
//  2. Global user config ($XDG_CONFIG_HOME/adhash/config.json or ~/.config/adhash/config.json)
//  3. Project config file at workDir/FileName, or an explicit configPath
//
// CLI overrides are the caller's responsibility to apply after Load returns.
func Load(workDir, configPath string, env []string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	globalCfg, globalPath, err := loadGlobal(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath

	cfg, err = merge(cfg, globalCfg)
	if err != nil {
		return Config{}, Sources{}, err
	}

	projectCfg, projectPath, err := loadProject(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath

	cfg, err = merge(cfg, projectCfg)
	if err != nil {
		return Config{}, Sources{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "adhash", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "adhash", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "adhash", "config.json")
}

func loadGlobal(env []string) (patch, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return patch{}, "", nil
	}

	p, loaded, err := loadFile(path, false)
	if err != nil {
		return patch{}, "", err
	}

	if !loaded {
		return patch{}, "", nil
	}

	return p, path, nil
}

func loadProject(workDir, configPath string) (patch, string, error) {
	var (
		file      string
		mustExist bool
	)

	if configPath != "" {
		file = configPath
		if !filepath.IsAbs(file) {
			file = filepath.Join(workDir, file)
		}

		mustExist = true

		if _, err := os.Stat(file); err != nil {
			return patch{}, "", errs.New(errs.KindBadConfig, "config file not found: "+configPath)
		}
	} else {
		file = filepath.Join(workDir, FileName)
	}

	p, loaded, err := loadFile(file, mustExist)
	if err != nil {
		return patch{}, "", err
	}

	if !loaded {
		return patch{}, "", nil
	}

	return p, file, nil
}

func loadFile(path string, mustExist bool) (patch, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled, same trust level as the CLI itself
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return patch{}, false, nil
		}

		return patch{}, false, errs.New(errs.KindIoError, "cannot read config file: "+path, errs.Cause(err))
	}

	p, err := parse(data)
	if err != nil {
		return patch{}, false, errs.New(errs.KindBadConfig, "invalid config file "+path, errs.Cause(err))
	}

	return p, true, nil
}

// patch is a partial Config: every field is a pointer so "absent" and "zero
// value" are distinguishable during the merge.
type patch struct {
	StartBackend *string         `json:"start_backend"`
	Preset       *string         `json:"preset"`
	Policy       *hashmap.Policy `json:"policy"`
	Replay       *Replay         `json:"replay"`
	Watchdog     *Watchdog       `json:"watchdog"`
	Snapshot     *Snapshot       `json:"snapshot"`
}

func parse(data []byte) (patch, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return patch{}, fmt.Errorf("invalid JWCC: %w", err)
	}

	var p patch

	if err := json.Unmarshal(standardized, &p); err != nil {
		return patch{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return p, nil
}

func merge(base Config, p patch) (Config, error) {
	if p.Preset != nil {
		applied, err := ApplyPreset(base, *p.Preset)
		if err != nil {
			return Config{}, err
		}

		base = applied
		base.Preset = *p.Preset
	}

	if p.StartBackend != nil {
		base.StartBackend = *p.StartBackend
	}

	if p.Policy != nil {
		base.Policy = *p.Policy
	}

	if p.Replay != nil {
		base.Replay = *p.Replay
	}

	if p.Watchdog != nil {
		base.Watchdog = *p.Watchdog
	}

	if p.Snapshot != nil {
		base.Snapshot = *p.Snapshot
	}

	return base, nil
}

// StartKind maps StartBackend to a hashmap.BackendKind.
func (c Config) StartKind() hashmap.BackendKind {
	if c.StartBackend == "robinhood" {
		return hashmap.BackendRobinHood
	}

	return hashmap.BackendChained
}
