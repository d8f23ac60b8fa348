package pattern

import (
	"testing"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
)

func acceptedAt(cells []apu.Cell, length int, positions ...uint32) accepted {
	return accepted{length: length, hash: cellSignature(cells[positions[0] : positions[0]+uint32(length)]), positions: positions}
}

func TestConstantOffset_DetectsUniformTransposeAndVolume(t *testing.T) {
	cfg := config.Default()
	rep := []apu.Cell{noteCell(60), noteCell(64), silentCell()}
	cand := []apu.Cell{noteCell(63), noteCell(67), silentCell()}
	cand[0].Volume, cand[1].Volume = 10, 10
	rep[0].Volume, rep[1].Volume = 8, 8

	transpose, volDelta, ok := constantOffset(rep, cand, cfg)
	if !ok {
		t.Fatal("expected a uniform offset to be detected")
	}
	if transpose != 3 || volDelta != 2 {
		t.Fatalf("offset = (%d, %d), want (3, 2)", transpose, volDelta)
	}
}

func TestConstantOffset_RejectsNonUniformAndOutOfBounds(t *testing.T) {
	cfg := config.Default()

	rep := []apu.Cell{noteCell(60), noteCell(64)}
	skewed := []apu.Cell{noteCell(63), noteCell(68)} // +3 then +4
	if _, _, ok := constantOffset(rep, skewed, cfg); ok {
		t.Fatal("non-uniform transpose must not merge")
	}

	tooFar := []apu.Cell{noteCell(74), noteCell(78)} // +14 exceeds MaxTranspose 12
	if _, _, ok := constantOffset(rep, tooFar, cfg); ok {
		t.Fatal("transpose beyond the configured bound must not merge")
	}
}

// TestMergeVariations_SizeRule checks the combined-size acceptance rule:
// folding a candidate into a representative pays delta overhead per
// reference and saves the candidate's pattern cells, so a short pattern
// with many occurrences stays separate while a long pattern with few
// occurrences merges.
func TestMergeVariations_SizeRule(t *testing.T) {
	cfg := config.Default()

	longBase := []apu.Cell{
		noteCell(60), noteCell(62), noteCell(64), noteCell(65),
		noteCell(67), noteCell(69), noteCell(71), noteCell(72),
	}
	var cells []apu.Cell
	cells = append(cells, longBase...)
	for _, c := range longBase {
		c.Note += 2
		c.Timer = apu.TimerFor(apu.Pulse1, c.Note)
		cells = append(cells, c)
	}

	rep := acceptedAt(cells, 8, 0)
	cand := acceptedAt(cells, 8, 8)

	merged := mergeVariations(cells, []accepted{rep, cand}, cfg)
	if merged[1].baseCells == nil {
		t.Fatal("one reference with deltas (overhead 2) is smaller than 8 pattern cells; expected a merge")
	}
	if merged[1].transpose != 2 {
		t.Fatalf("merged transpose = %d, want 2", merged[1].transpose)
	}

	// Same content, but the candidate now occurs five times: 5 delta-
	// carrying references outweigh the 8 cells its own pattern costs.
	manyCand := acceptedAt(cells, 8, 8, 8, 8, 8, 8)
	merged = mergeVariations(cells, []accepted{rep, manyCand}, cfg)
	if merged[1].baseCells != nil {
		t.Fatal("five references' delta overhead exceeds the candidate pattern's 8 cells; expected no merge")
	}
}

func TestMergeVariations_NeverMergesDPCMCells(t *testing.T) {
	cfg := config.Default()
	dpcm := func(idx int) apu.Cell {
		return apu.Cell{SampleIndex: idx, ControlByte: apu.DPCMControlByte(14, false), Retrigger: true}
	}
	cells := []apu.Cell{
		dpcm(0), dpcm(0), dpcm(0), dpcm(0), dpcm(0), dpcm(0), dpcm(0), dpcm(0),
		dpcm(1), dpcm(1), dpcm(1), dpcm(1), dpcm(1), dpcm(1), dpcm(1), dpcm(1),
	}
	rep := acceptedAt(cells, 8, 0)
	cand := acceptedAt(cells, 8, 8)

	merged := mergeVariations(cells, []accepted{rep, cand}, cfg)
	if merged[1].baseCells != nil {
		t.Fatal("samples cannot be transposed or re-leveled; DPCM cells must never merge")
	}
}
