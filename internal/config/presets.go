package config

import "github.com/adhash-engine/adhash/internal/errs"

// Preset bundles a starting backend and watchdog thresholds tuned for
// a named workload shape (read-heavy, write-heavy, mixed). Selecting a
// preset seeds Config before file/CLI overrides are applied.
type Preset struct {
	StartBackend string
	Watchdog     Watchdog
}

// presets mirrors the three workload shapes the original config toolkit
// shipped. Thresholds are looser for read-heavy (rarely touches tombstone
// ratio) and tighter for write-heavy (tombstones and load factor climb fast).
var presets = map[string]Preset{
	"read-heavy": {
		StartBackend: "robinhood",
		Watchdog: Watchdog{
			LoadFactorWarn:     0.85,
			AvgProbeWarn:       4,
			TombstoneRatioWarn: 0.35,
		},
	},
	"write-heavy": {
		StartBackend: "chained",
		Watchdog: Watchdog{
			LoadFactorWarn:     0.70,
			AvgProbeWarn:       3,
			TombstoneRatioWarn: 0.20,
		},
	},
	"mixed": {
		StartBackend: "chained",
		Watchdog: Watchdog{
			LoadFactorWarn:     0.75,
			AvgProbeWarn:       3.5,
			TombstoneRatioWarn: 0.25,
		},
	},
}

// PresetNames lists the named presets in a stable order, for CLI help text.
func PresetNames() []string {
	return []string{"read-heavy", "write-heavy", "mixed"}
}

// ApplyPreset looks up a named preset and overlays it onto cfg, leaving
// fields the preset doesn't touch (policy, replay sampling, snapshot limits)
// untouched. Returns *BadConfig for an unknown name.
func ApplyPreset(cfg Config, name string) (Config, error) {
	p, ok := presets[name]
	if !ok {
		return Config{}, errs.New(errs.KindBadConfig, "unknown config preset: "+name)
	}

	cfg.StartBackend = p.StartBackend
	cfg.Watchdog = p.Watchdog

	return cfg, nil
}
