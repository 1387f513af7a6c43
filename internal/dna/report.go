package dna

import (
	"fmt"
	"strings"
)

// String renders a human-readable summary of the report.
func (r Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "workload dna: %d ops (put=%.1f%% get=%.1f%% del=%.1f%%, mutation=%.1f%%)\n",
		r.TotalOps, r.OpMix.PutFrac*100, r.OpMix.GetFrac*100, r.OpMix.DelFrac*100, r.OpMix.MutationFraction*100)
	fmt.Fprintf(&b, "  unique keys: ~%d (entropy %.2f bits, normalized %.2f)\n",
		r.EstimatedUniqueKeys, r.KeySpaceDepthBits, r.KeyEntropyNormalized)
	fmt.Fprintf(&b, "  key length: min=%.0f mean=%.1f max=%.0f\n",
		r.KeyLengthStats.Min, r.KeyLengthStats.Mean, r.KeyLengthStats.Max)
	fmt.Fprintf(&b, "  value length: min=%.0f mean=%.1f max=%.0f\n",
		r.ValueLengthStats.Min, r.ValueLengthStats.Mean, r.ValueLengthStats.Max)
	fmt.Fprintf(&b, "  numeric keys=%.1f%% sequential=%.1f%% adjacent-dup=%.1f%%\n",
		r.NumericKeyFraction*100, r.SequentialStepFraction*100, r.AdjacentDuplicateFraction*100)
	fmt.Fprintf(&b, "  buckets (M0=%d): p50=%.0f p90=%.0f p99=%.0f mean=%.2f hotspots=%d\n",
		r.Buckets.ReferenceBuckets, r.Buckets.DepthP50, r.Buckets.DepthP90, r.Buckets.DepthP99,
		r.Buckets.MeanDepth, len(r.Buckets.Hotspots))

	if len(r.TopHotKeys) > 0 {
		b.WriteString("  top keys:")

		for i, hk := range r.TopHotKeys {
			if i >= 5 {
				fmt.Fprintf(&b, " ... (+%d more)", len(r.TopHotKeys)-5)
				break
			}

			fmt.Fprintf(&b, " %s(~%d)", hk.Key, hk.ApproxCount)
		}

		b.WriteString("\n")
	}

	return b.String()
}

// RecommendBackend suggests a starting backend kind name ("chained" or
// "robinhood") from the report's collision-risk signals, consumed by a
// driver deciding AdaptiveMap's initial backend before the control loop
// has had a chance to observe live health signals.
func (r Report) RecommendBackend() string {
	if len(r.Buckets.Hotspots) > 0 || r.KeyEntropyNormalized < 0.5 {
		return "robinhood"
	}

	return "chained"
}
