package pattern

import (
	"sort"

	"github.com/mzanolli/nesrom/internal/apu"
)

// scored is a Phase 2 candidate with its compression gain computed.
type scored struct {
	group
	gain int
}

// scoreCandidates computes each candidate's compression gain: occurrences
// x length - length - per_reference_overhead x occurrences. Candidates
// with non-positive gain cost more to reference than to leave as residual
// and are discarded.
func scoreCandidates(groups []group, perRefOverhead int) []scored {
	var out []scored
	for _, g := range groups {
		occurrences := len(g.positions)
		gain := occurrences*g.length - g.length - perRefOverhead*occurrences
		if gain <= 0 {
			continue
		}
		out = append(out, scored{group: g, gain: gain})
	}

	// Descending gain, with ties broken toward longer patterns; first
	// position and hash break any remaining ties so selection order is
	// fully deterministic.
	sort.Slice(out, func(i, j int) bool {
		if out[i].gain != out[j].gain {
			return out[i].gain > out[j].gain
		}
		if out[i].length != out[j].length {
			return out[i].length > out[j].length
		}
		if out[i].positions[0] != out[j].positions[0] {
			return out[i].positions[0] < out[j].positions[0]
		}
		return out[i].hash < out[j].hash
	})
	return out
}

// accepted is a Phase 3 candidate after non-overlap resolution: the
// subset of its original occurrences that were actually accepted.
type accepted struct {
	length    int
	hash      string
	positions []uint32 // subset of group.positions that didn't overlap prior acceptances

	// Set by mergeVariations when cfg.EnableVariations folds this
	// candidate into an earlier representative's pattern instead of
	// interning its own content. baseCells is the representative's cell
	// content to intern/match against; transpose and volumeDelta are
	// carried onto every Reference built from this candidate.
	baseCells   []apu.Cell
	transpose   int8
	volumeDelta int8
}

// selectNonOverlapping walks candidates in descending gain order; for
// each, it accepts every occurrence whose interval does not intersect an
// already-accepted interval. A candidate left with zero accepted
// occurrences is discarded entirely.
func selectNonOverlapping(candidates []scored, totalFrames int) ([]accepted, []bool) {
	covered := make([]bool, totalFrames)
	var out []accepted

	for _, c := range candidates {
		var acceptedPositions []uint32
		for _, pos := range c.positions {
			end := int(pos) + c.length
			if end > totalFrames {
				continue
			}
			if isCovered(covered, int(pos), end) {
				continue
			}
			markCovered(covered, int(pos), end)
			acceptedPositions = append(acceptedPositions, pos)
		}
		if len(acceptedPositions) == 0 {
			continue
		}
		out = append(out, accepted{length: c.length, hash: c.hash, positions: acceptedPositions})
	}
	return out, covered
}

func isCovered(covered []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if covered[i] {
			return true
		}
	}
	return false
}

func markCovered(covered []bool, start, end int) {
	for i := start; i < end; i++ {
		covered[i] = true
	}
}
