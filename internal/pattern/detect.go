package pattern

import (
	"sort"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
)

// Detect runs pattern detection end to end: candidate enumeration, gain
// scoring, non-overlapping selection, residual emission, and (optionally)
// variation merging, against one channel's dense cell timeline.
//
// Pattern detection is infallible by construction: the degenerate
// compressed form (no patterns, all frames in residual) is always a
// valid fallback, so Detect returns a value, never an error.
func Detect(lib *Library, cells []apu.Cell, cfg config.Config, d *diag.Diagnostics) Compressed {
	if len(cells) == 0 || cfg.DisablePatterns {
		return Compressed{Residual: allResidual(cells)}
	}

	if len(cells) <= cfg.SampleCap {
		return detectDirect(lib, cells, cfg, d)
	}
	return detectSampled(lib, cells, cfg, d)
}

// detectDirect runs all four phases directly against the full timeline.
func detectDirect(lib *Library, cells []apu.Cell, cfg config.Config, d *diag.Diagnostics) Compressed {
	groups := enumerateCandidates(cells, cfg, d)
	scoredCandidates := scoreCandidates(groups, cfg.PerRefOverhead)
	acceptedCandidates, covered := selectNonOverlapping(scoredCandidates, len(cells))

	if cfg.EnableVariations {
		acceptedCandidates = mergeVariations(cells, acceptedCandidates, cfg)
	}

	refs := internAndBuildReferences(lib, cells, acceptedCandidates)
	residual := buildResidual(cells, covered)

	return Compressed{References: refs, Residual: residual}
}

// detectSampled handles inputs exceeding a configurable sample cap: the
// detector runs candidate enumeration on a stratified sample of the
// timeline to cap compute time, then applies the resulting pattern
// library to the full timeline as a dictionary pass. The stratified
// sample takes evenly-spaced windows across the timeline so the pattern
// library it produces reflects the whole song's repetition structure,
// not just its opening.
func detectSampled(lib *Library, cells []apu.Cell, cfg config.Config, d *diag.Diagnostics) Compressed {
	sample := stratifiedSample(cells, cfg.SampleCap)
	groups := enumerateCandidates(sample, cfg, d)
	scoredCandidates := scoreCandidates(groups, cfg.PerRefOverhead)
	acceptedOnSample, _ := selectNonOverlapping(scoredCandidates, len(sample))

	// Build the pattern library from the sample's accepted candidates,
	// then apply it as a dictionary pass over the FULL timeline.
	internAndBuildReferences(lib, sample, acceptedOnSample)

	return dictionaryPass(lib, cells, cfg)
}

// dictionaryPass greedily matches the (now-frozen) library's patterns
// against the full timeline, longest pattern first at each position, to
// compress a timeline too large to run full candidate enumeration on.
func dictionaryPass(lib *Library, cells []apu.Cell, cfg config.Config) Compressed {
	patterns := append([]Pattern(nil), lib.Patterns()...)
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Length > patterns[j].Length })

	covered := make([]bool, len(cells))
	var refs []Reference

	for pos := 0; pos < len(cells); {
		if covered[pos] {
			pos++
			continue
		}
		matched := false
		for _, p := range patterns {
			end := pos + int(p.Length)
			if end > len(cells) {
				continue
			}
			if isCovered(covered, pos, end) {
				continue
			}
			if cellsEqual(cells[pos:end], p.Cells) {
				markCovered(covered, pos, end)
				refs = append(refs, Reference{Frame: uint32(pos), PatternID: p.ID})
				pos = end
				matched = true
				break
			}
		}
		if !matched {
			pos++
		}
	}

	residual := buildResidual(cells, covered)
	sort.Slice(refs, func(i, j int) bool { return refs[i].Frame < refs[j].Frame })
	return Compressed{References: refs, Residual: residual}
}

func cellsEqual(a, b []apu.Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// stratifiedSample takes evenly spaced, evenly sized contiguous windows
// totalling roughly `cap` frames, concatenated in timeline order so
// position-adjacent candidate enumeration still sees locally-contiguous
// cells within each stratum.
func stratifiedSample(cells []apu.Cell, sampleCap int) []apu.Cell {
	if sampleCap <= 0 || sampleCap >= len(cells) {
		return cells
	}
	strata := 10
	windowSize := sampleCap / strata
	if windowSize < 1 {
		windowSize = 1
	}
	step := len(cells) / strata

	var out []apu.Cell
	for i := 0; i < strata; i++ {
		start := i * step
		end := start + windowSize
		if end > len(cells) {
			end = len(cells)
		}
		if start >= end {
			continue
		}
		out = append(out, cells[start:end]...)
	}
	return out
}

// internAndBuildReferences assigns canonical pattern IDs in ascending
// (length, first_position) order, independent of the gain-based
// selection order candidates were accepted in, and builds the Reference
// list in original-timeline-position order.
func internAndBuildReferences(lib *Library, cells []apu.Cell, acceptedCandidates []accepted) []Reference {
	canonical := append([]accepted(nil), acceptedCandidates...)
	sort.Slice(canonical, func(i, j int) bool {
		if canonical[i].length != canonical[j].length {
			return canonical[i].length < canonical[j].length
		}
		return canonical[i].positions[0] < canonical[j].positions[0]
	})

	type refWithFrame struct {
		frame uint32
		ref   Reference
	}
	var withFrame []refWithFrame

	for _, c := range canonical {
		internCells := c.baseCells
		if internCells == nil {
			firstPos := c.positions[0]
			internCells = cells[firstPos : firstPos+uint32(c.length)]
		}
		id := lib.intern(internCells)
		for _, pos := range c.positions {
			withFrame = append(withFrame, refWithFrame{
				frame: pos,
				ref: Reference{
					Frame:       pos,
					PatternID:   id,
					Transpose:   c.transpose,
					VolumeDelta: c.volumeDelta,
				},
			})
		}
	}

	sort.Slice(withFrame, func(i, j int) bool { return withFrame[i].frame < withFrame[j].frame })

	refs := make([]Reference, len(withFrame))
	for i, rf := range withFrame {
		refs[i] = rf.ref
	}
	return refs
}

func allResidual(cells []apu.Cell) []ResidualEntry {
	out := make([]ResidualEntry, len(cells))
	for i, c := range cells {
		out[i] = ResidualEntry{Frame: uint32(i), Cell: c}
	}
	return out
}
