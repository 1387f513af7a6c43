package replay

import "fmt"

// Alert is a single watchdog trigger attached to a tick.
type Alert struct {
	Kind   string  `json:"kind"`
	Detail string  `json:"detail"`
	Value  float64 `json:"value"`
	Warn   float64 `json:"warn"`
}

// Watchdog evaluates a tick's backend signals against optional thresholds.
// A zero threshold means "disabled" (matches config.Watchdog's omitempty
// JSON fields).
type Watchdog struct {
	LoadFactorWarn     float64
	AvgProbeWarn       float64
	TombstoneRatioWarn float64
}

// Evaluate returns every alert triggered by the given signals, in a stable
// order (load factor, avg probe, tombstone ratio).
func (w Watchdog) Evaluate(loadFactor, avgProbe, tombstoneRatio float64) []Alert {
	var alerts []Alert

	if w.LoadFactorWarn > 0 && loadFactor > w.LoadFactorWarn {
		alerts = append(alerts, Alert{
			Kind:   "load_factor_warn",
			Detail: fmt.Sprintf("load factor %.3f exceeds warn threshold %.3f", loadFactor, w.LoadFactorWarn),
			Value:  loadFactor,
			Warn:   w.LoadFactorWarn,
		})
	}

	if w.AvgProbeWarn > 0 && avgProbe > w.AvgProbeWarn {
		alerts = append(alerts, Alert{
			Kind:   "avg_probe_warn",
			Detail: fmt.Sprintf("avg probe estimate %.3f exceeds warn threshold %.3f", avgProbe, w.AvgProbeWarn),
			Value:  avgProbe,
			Warn:   w.AvgProbeWarn,
		})
	}

	if w.TombstoneRatioWarn > 0 && tombstoneRatio > w.TombstoneRatioWarn {
		alerts = append(alerts, Alert{
			Kind:   "tombstone_ratio_warn",
			Detail: fmt.Sprintf("tombstone ratio %.3f exceeds warn threshold %.3f", tombstoneRatio, w.TombstoneRatioWarn),
			Value:  tombstoneRatio,
			Warn:   w.TombstoneRatioWarn,
		})
	}

	return alerts
}
