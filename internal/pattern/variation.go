package pattern

import (
	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
)

// variationDeltaOverhead is the extra cost, in cells, of a reference
// that carries a non-zero transpose/volume delta over a plain one.
const variationDeltaOverhead = 2

// mergeVariations folds two accepted candidates of equal length whose
// cells differ only by a constant note transpose and/or a constant
// volume delta, so the later one references the earlier one's pattern
// with a non-zero Transpose/VolumeDelta instead of interning a
// near-duplicate pattern. A fold is accepted only when the merged form
// (one pattern plus delta-carrying references) is strictly smaller than
// keeping both patterns with plain references: both forms share the
// representative pattern and the candidate's reference count, so the
// comparison reduces to delta overhead across the candidate's
// references versus the candidate's own pattern cells. Disabled by
// default (cfg.EnableVariations); Detect only calls this when the
// caller opts in.
func mergeVariations(cells []apu.Cell, candidates []accepted, cfg config.Config) []accepted {
	out := make([]accepted, len(candidates))
	copy(out, candidates)

	for i := range out {
		if out[i].baseCells != nil {
			continue // already folded into an earlier representative
		}
		repCells := cellsAt(cells, out[i])
		for j := i + 1; j < len(out); j++ {
			if out[j].baseCells != nil || out[j].length != out[i].length {
				continue
			}
			if variationDeltaOverhead*len(out[j].positions) >= out[j].length {
				continue
			}
			candCells := cellsAt(cells, out[j])
			transpose, volDelta, ok := constantOffset(repCells, candCells, cfg)
			if !ok {
				continue
			}
			out[j].baseCells = repCells
			out[j].transpose = transpose
			out[j].volumeDelta = volDelta
		}
	}
	return out
}

func cellsAt(cells []apu.Cell, a accepted) []apu.Cell {
	first := a.positions[0]
	return cells[first : first+uint32(a.length)]
}

// constantOffset reports whether cand is rep shifted by one constant note
// transpose and one constant volume delta, both within configured bounds.
// DPCM cells (SampleIndex >= 0) never qualify: samples cannot be
// transposed or re-leveled after the fact.
func constantOffset(rep, cand []apu.Cell, cfg config.Config) (transpose int8, volumeDelta int8, ok bool) {
	haveOffset := false
	for i := range rep {
		r, c := rep[i], cand[i]
		if r.Silent != c.Silent || r.Retrigger != c.Retrigger {
			return 0, 0, false
		}
		if r.SampleIndex >= 0 || c.SampleIndex >= 0 {
			return 0, 0, false
		}
		if r.Silent {
			continue
		}

		noteDelta := int(c.Note) - int(r.Note)
		volDelta := int(c.Volume) - int(r.Volume)
		if !haveOffset {
			transpose, volumeDelta = int8(noteDelta), int8(volDelta)
			haveOffset = true
			continue
		}
		if int(transpose) != noteDelta || int(volumeDelta) != volDelta {
			return 0, 0, false
		}
	}
	if !haveOffset {
		return 0, 0, false // both entirely silent; no meaningful offset, leave as a separate pattern
	}
	if int(transpose) > cfg.MaxTranspose || int(transpose) < -cfg.MaxTranspose {
		return 0, 0, false
	}
	if int(volumeDelta) > cfg.MaxVolumeDelta || int(volumeDelta) < -cfg.MaxVolumeDelta {
		return 0, 0, false
	}
	return transpose, volumeDelta, true
}
