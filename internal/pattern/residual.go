package pattern

import "github.com/mzanolli/nesrom/internal/apu"

// buildResidual collects every frame not covered by an accepted reference
// into a residual entry, preserving original timeline order.
func buildResidual(cells []apu.Cell, covered []bool) []ResidualEntry {
	var out []ResidualEntry
	for i, cell := range cells {
		if i < len(covered) && covered[i] {
			continue
		}
		out = append(out, ResidualEntry{Frame: uint32(i), Cell: cell})
	}
	return out
}
