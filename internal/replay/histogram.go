package replay

import "math"

// BucketPreset names a fixed vector of upper bounds in milliseconds,
// terminating conceptually in +Inf.
type BucketPreset struct {
	Name   string
	Bounds []float64 // ascending, finite; +Inf bucket is implicit
}

var presets = map[string]BucketPreset{
	"default": {Name: "default", Bounds: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}},
	"fine":    {Name: "fine", Bounds: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 4, 8, 16, 32, 64, 128, 256}},
	"coarse":  {Name: "coarse", Bounds: []float64{1, 5, 25, 100, 500, 2500}},
}

// Preset looks up a named bucket preset, falling back to "default" for an
// unknown name rather than failing the replay run over a cosmetic setting.
func Preset(name string) BucketPreset {
	if p, ok := presets[name]; ok {
		return p
	}

	return presets["default"]
}

// CumulativeHistogram counts, for each upper bound (plus an implicit +Inf
// bucket), how many of the given values are <= that bound. Counts are
// monotonically non-decreasing and the final (+Inf) bucket equals
// len(values).
type CumulativeHistogram struct {
	Bounds []float64
	Counts []int // len(Counts) == len(Bounds)+1, last entry is the +Inf bucket
}

// BuildHistogram buckets values against preset, producing cumulative
// counts.
func BuildHistogram(preset BucketPreset, values []float64) CumulativeHistogram {
	counts := make([]int, len(preset.Bounds)+1)

	for _, v := range values {
		placed := false

		for i, b := range preset.Bounds {
			if v <= b {
				counts[i]++
				placed = true

				break
			}
		}

		if !placed {
			counts[len(preset.Bounds)]++
		}
	}

	// Convert per-bucket counts into cumulative counts along ascending bound.
	cumulative := make([]int, len(counts))
	running := 0

	for i, c := range counts {
		running += c
		cumulative[i] = running
	}

	return CumulativeHistogram{Bounds: preset.Bounds, Counts: cumulative}
}

// Total returns the +Inf bucket count, i.e. the number of samples histogrammed.
func (h CumulativeHistogram) Total() int {
	if len(h.Counts) == 0 {
		return 0
	}

	return h.Counts[len(h.Counts)-1]
}

// ProbeHistogram tallies occupied-slot probe distances into a sparse map,
// as sampled from a RobinHoodTable.
type ProbeHistogram map[int]int

// KeyHeatmap is a fixed-size grid summarizing per-slot occupancy of the
// active backend by folding consecutive slots into cells. Rows*Cols is
// the target cell count; SlotSpan is how many original slots each cell
// summarizes.
type KeyHeatmap struct {
	Rows          int
	Cols          int
	Matrix        [][]int
	Max           int
	Total         int
	SlotSpan      int
	OriginalSlots int
}

// BuildKeyHeatmap folds occupancy (one bool per physical slot, true if
// occupied) into a Rows x Cols grid with roughly targetCells cells.
func BuildKeyHeatmap(occupancy []bool, cols int, targetCells int) KeyHeatmap {
	n := len(occupancy)
	if n == 0 || cols <= 0 || targetCells <= 0 {
		return KeyHeatmap{Cols: cols, OriginalSlots: n}
	}

	span := int(math.Ceil(float64(n) / float64(targetCells)))
	if span < 1 {
		span = 1
	}

	cellCount := int(math.Ceil(float64(n) / float64(span)))
	rows := int(math.Ceil(float64(cellCount) / float64(cols)))

	matrix := make([][]int, rows)
	for i := range matrix {
		matrix[i] = make([]int, cols)
	}

	maxVal, total := 0, 0

	for cell := 0; cell < cellCount; cell++ {
		start := cell * span
		end := start + span

		if end > n {
			end = n
		}

		count := 0

		for _, occ := range occupancy[start:end] {
			if occ {
				count++
			}
		}

		r, c := cell/cols, cell%cols
		matrix[r][c] = count

		if count > maxVal {
			maxVal = count
		}

		total += count
	}

	return KeyHeatmap{
		Rows:          rows,
		Cols:          cols,
		Matrix:        matrix,
		Max:           maxVal,
		Total:         total,
		SlotSpan:      span,
		OriginalSlots: n,
	}
}
