package pattern

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
)

func noteCell(note uint8) apu.Cell {
	return apu.Cell{Note: note, Volume: 8, Timer: apu.TimerFor(apu.Pulse1, note), ControlByte: 0x98, SampleIndex: -1}
}

func silentCell() apu.Cell {
	return apu.SilentCell(apu.Pulse1)
}

// decompress reconstructs the original dense timeline from a Compressed
// channel and the pattern library, for verifying the round-trip law.
func decompress(c Compressed, lib *Library, totalFrames int) []apu.Cell {
	byID := make(map[uint32]Pattern)
	for _, p := range lib.Patterns() {
		byID[p.ID] = p
	}

	out := make([]apu.Cell, totalFrames)
	for _, ref := range c.References {
		p := byID[ref.PatternID]
		for i, cell := range p.Cells {
			frame := int(ref.Frame) + i
			if ref.Transpose != 0 && !cell.Silent {
				cell.Note = uint8(int(cell.Note) + int(ref.Transpose))
				cell.Timer = apu.TimerFor(apu.Pulse1, cell.Note) // every pattern in this file's tests is built from noteCell/Pulse1 cells
			}
			if ref.VolumeDelta != 0 && !cell.Silent {
				cell.Volume = uint8(int(cell.Volume) + int(ref.VolumeDelta))
			}
			out[frame] = cell
		}
	}
	for _, r := range c.Residual {
		out[r.Frame] = r.Cell
	}
	return out
}

// TestDetect_HighRepetitionCompressesHeavily checks that a
// 16-frame pattern repeated 5,000 times compresses to one pattern plus
// roughly 5,000 references, at least 50x smaller than the uncompressed
// timeline.
func TestDetect_HighRepetitionCompressesHeavily(t *testing.T) {
	unit := []apu.Cell{
		noteCell(60), noteCell(60), noteCell(60), noteCell(60),
		noteCell(64), noteCell(64), noteCell(64), noteCell(64),
		noteCell(67), noteCell(67), noteCell(67), noteCell(67),
		silentCell(), silentCell(), silentCell(), silentCell(),
	}
	var cells []apu.Cell
	for i := 0; i < 5000; i++ {
		cells = append(cells, unit...)
	}

	cfg := config.Default()
	cfg.MinPatternLength = 16
	cfg.MaxPatternLength = 16
	lib := NewLibrary()
	d := diag.New()

	compressed := Detect(lib, cells, cfg, d)

	if len(lib.Patterns()) != 1 {
		t.Fatalf("expected exactly one pattern, got %d", len(lib.Patterns()))
	}
	if len(compressed.References) < 4990 {
		t.Fatalf("expected ~5000 references, got %d", len(compressed.References))
	}
	if len(compressed.Residual) > 16 {
		t.Fatalf("expected a near-empty residual, got %d entries", len(compressed.Residual))
	}

	uncompressedCells := len(cells)
	compressedUnits := len(lib.Patterns())*16 + len(compressed.References) + len(compressed.Residual)
	if uncompressedCells/compressedUnits < 50 {
		t.Fatalf("expected >= 50x compression, got %dx (%d -> %d)", uncompressedCells/compressedUnits, uncompressedCells, compressedUnits)
	}

	reconstructed := decompress(compressed, lib, len(cells))
	for i := range cells {
		if !reconstructed[i].Equal(cells[i]) {
			t.Fatalf("frame %d: reconstructed %+v, want %+v", i, reconstructed[i], cells[i])
		}
	}
}

func TestDetect_NoRepetitionIsAllResidual(t *testing.T) {
	cells := []apu.Cell{noteCell(60), noteCell(62), noteCell(64), noteCell(65), noteCell(67)}
	cfg := config.Default()
	cfg.MinPatternLength = 2
	lib := NewLibrary()
	d := diag.New()

	compressed := Detect(lib, cells, cfg, d)
	if len(compressed.References) != 0 {
		t.Fatalf("expected no references for a non-repeating timeline, got %d", len(compressed.References))
	}
	if len(compressed.Residual) != len(cells) {
		t.Fatalf("expected every frame in residual, got %d of %d", len(compressed.Residual), len(cells))
	}
}

func TestDetect_SharesOnePatternAcrossChannels(t *testing.T) {
	unit := []apu.Cell{noteCell(60), noteCell(60), noteCell(60)}
	var cellsA, cellsB []apu.Cell
	for i := 0; i < 10; i++ {
		cellsA = append(cellsA, unit...)
		cellsB = append(cellsB, unit...)
	}

	cfg := config.Default()
	cfg.MinPatternLength = 3
	cfg.MaxPatternLength = 3
	lib := NewLibrary()
	d := diag.New()

	Detect(lib, cellsA, cfg, d)
	Detect(lib, cellsB, cfg, d)

	if len(lib.Patterns()) != 1 {
		t.Fatalf("expected one pattern shared across both channels' timelines, got %d", len(lib.Patterns()))
	}
}

// TestProperty_RoundTripIsLossless checks decompress(Detect(T)) == T over
// randomly generated timelines built from a small alphabet of cells, so
// repetition (and therefore pattern detection) actually occurs.
func TestProperty_RoundTripIsLossless(t *testing.T) {
	alphabet := []apu.Cell{noteCell(60), noteCell(62), noteCell(64), silentCell()}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("decompressing a compressed timeline reproduces the original", prop.ForAll(
		func(indices []uint8) bool {
			if len(indices) == 0 {
				return true
			}
			cells := make([]apu.Cell, len(indices))
			for i, idx := range indices {
				cells[i] = alphabet[int(idx)%len(alphabet)]
			}

			cfg := config.Default()
			cfg.MinPatternLength = 2
			cfg.MaxPatternLength = 8
			lib := NewLibrary()
			d := diag.New()

			compressed := Detect(lib, cells, cfg, d)
			reconstructed := decompress(compressed, lib, len(cells))

			for i := range cells {
				if !reconstructed[i].Equal(cells[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, gen.UInt8()),
	))

	properties.TestingRun(t)
}

// TestDetect_DeterministicAcrossWorkerCounts verifies output is
// bit-identical regardless of MaxWorkers.
func TestDetect_DeterministicAcrossWorkerCounts(t *testing.T) {
	unit := []apu.Cell{noteCell(60), noteCell(62), noteCell(64), noteCell(65)}
	var cells []apu.Cell
	for i := 0; i < 200; i++ {
		cells = append(cells, unit...)
	}

	var results []Compressed
	for _, workers := range []int{1, 2, 4, 16} {
		cfg := config.Default()
		cfg.MinPatternLength = 4
		cfg.MaxPatternLength = 4
		cfg.MaxWorkers = workers
		lib := NewLibrary()
		d := diag.New()
		results = append(results, Detect(lib, cells, cfg, d))
	}

	for i := 1; i < len(results); i++ {
		if len(results[i].References) != len(results[0].References) {
			t.Fatalf("worker-count run %d produced %d references, want %d", i, len(results[i].References), len(results[0].References))
		}
		for j := range results[0].References {
			if results[i].References[j] != results[0].References[j] {
				t.Fatalf("worker-count run %d reference %d = %+v, want %+v", i, j, results[i].References[j], results[0].References[j])
			}
		}
	}
}
