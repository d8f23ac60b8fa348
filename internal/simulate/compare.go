package simulate

import "github.com/mzanolli/nesrom/internal/apu"

// MismatchError reports the first frame at which a reconstructed
// timeline diverges from the reference it was checked against.
type MismatchError struct {
	Frame int
	Got   apu.Cell
	Want  apu.Cell
}

func (e *MismatchError) Error() string {
	return "reconstructed cell does not match original at this frame"
}

// CompareTimelines checks the round-trip law: decompressing a compressed
// channel must reproduce the original dense Cell sequence exactly, frame
// for frame. Cells are compared directly rather than via their register
// writes; the fixed write order in RegisterWrites is a derived view of
// the same Cell, so the comparison is equivalent.
func CompareTimelines(original, reconstructed []apu.Cell) error {
	if len(original) != len(reconstructed) {
		n := len(original)
		if len(reconstructed) < n {
			n = len(reconstructed)
		}
		return &MismatchError{Frame: n}
	}
	for i := range original {
		if !original[i].Equal(reconstructed[i]) {
			return &MismatchError{Frame: i, Got: reconstructed[i], Want: original[i]}
		}
	}
	return nil
}
