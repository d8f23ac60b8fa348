// Package pattern finds maximal repeating frame sequences inside a
// channel's dense timeline and emits a compressed representation
// (pattern library + references + residual) that reconstructs the input
// bit-exactly. Candidates are bucketed by content signature and assigned
// canonical first-occurrence IDs, so output is identical across worker
// counts.
package pattern

import "github.com/mzanolli/nesrom/internal/apu"

// Pattern is an immutable, content-addressed run of cells shared by one
// or more references.
type Pattern struct {
	ID     uint32
	Length uint16
	Cells  []apu.Cell
}

// Reference points one frame position at a pattern, with an optional
// per-occurrence transpose and volume delta.
type Reference struct {
	Frame       uint32
	PatternID   uint32
	Transpose   int8
	VolumeDelta int8
}

// ResidualEntry is one frame left uncompressed because no accepted
// pattern covers it.
type ResidualEntry struct {
	Frame uint32
	Cell  apu.Cell
}

// Compressed is one channel's detection result: the references that
// cover most of the timeline, plus whatever residual frames remain.
type Compressed struct {
	References []Reference
	Residual   []ResidualEntry
}

// Library is the append-only pattern library shared across all five
// channels within one compile, so identical patterns on different
// channels share one ID.
type Library struct {
	patterns []Pattern
	byHash   map[string]uint32 // content hash -> pattern ID, for dedup across channels
}

// NewLibrary returns an empty, append-only pattern Library.
func NewLibrary() *Library {
	return &Library{byHash: make(map[string]uint32)}
}

// Patterns returns the library's patterns in ID order.
func (l *Library) Patterns() []Pattern {
	return l.patterns
}

// intern returns the ID of the pattern matching these cells, creating a
// new library entry if no matching content exists yet. Two patterns with
// identical cell contents always share one ID.
func (l *Library) intern(cells []apu.Cell) uint32 {
	h := cellSignature(cells)
	if id, ok := l.byHash[h]; ok {
		return id
	}
	id := uint32(len(l.patterns))
	l.patterns = append(l.patterns, Pattern{ID: id, Length: uint16(len(cells)), Cells: append([]apu.Cell(nil), cells...)})
	l.byHash[h] = id
	return id
}
