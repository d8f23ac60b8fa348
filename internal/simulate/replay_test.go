package simulate

import (
	"testing"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
	"github.com/mzanolli/nesrom/internal/pattern"
)

func TestReplayChannel_ReconstructsOriginalTimeline(t *testing.T) {
	cell := apu.Cell{Note: 64, Volume: 10, ControlByte: 0x9A, SampleIndex: -1}
	silent := apu.SilentCell(apu.Pulse1)

	var cells []apu.Cell
	for i := 0; i < 50; i++ {
		cells = append(cells, cell, cell, cell, silent)
	}

	cfg := config.Default()
	cfg.MinPatternLength = 4
	cfg.MaxPatternLength = 4
	lib := pattern.NewLibrary()
	compressed := pattern.Detect(lib, cells, cfg, diag.New())

	reconstructed := ReplayChannel(apu.Pulse1, lib, compressed, uint32(len(cells)))

	if err := CompareTimelines(cells, reconstructed); err != nil {
		t.Fatalf("reconstruction mismatch: %v", err)
	}
}

func TestReplayChannel_TriangleVariationUsesTriangleTimerTable(t *testing.T) {
	triangleCell := func(note uint8) apu.Cell {
		return apu.Cell{Note: note, Volume: 15, Timer: apu.TimerFor(apu.Triangle, note), ControlByte: 0xFF, SampleIndex: -1}
	}
	silent := apu.SilentCell(apu.Triangle)

	base := []apu.Cell{
		triangleCell(40), triangleCell(42), triangleCell(44), silent,
		triangleCell(40), triangleCell(42), triangleCell(44), silent,
	}
	transposed := []apu.Cell{
		triangleCell(43), triangleCell(45), triangleCell(47), silent,
		triangleCell(43), triangleCell(45), triangleCell(47), silent,
	}

	var cells []apu.Cell
	for i := 0; i < 3; i++ {
		cells = append(cells, base...)
	}
	for i := 0; i < 3; i++ {
		cells = append(cells, transposed...)
	}

	cfg := config.Default()
	cfg.MinPatternLength = 8
	cfg.MaxPatternLength = 8
	cfg.EnableVariations = true
	lib := pattern.NewLibrary()
	compressed := pattern.Detect(lib, cells, cfg, diag.New())

	reconstructed := ReplayChannel(apu.Triangle, lib, compressed, uint32(len(cells)))
	if err := CompareTimelines(cells, reconstructed); err != nil {
		t.Fatalf("reconstruction mismatch (transposed triangle cell reconstructed with the wrong timer table): %v", err)
	}
}

func TestRegisterWrites_FixedOrder(t *testing.T) {
	cell := apu.Cell{Note: 60, Volume: 8, Timer: 0x123, ControlByte: 0x98, SampleIndex: -1}
	writes := RegisterWrites(apu.Pulse1, cell)
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes for a tone channel, got %d", len(writes))
	}
	regs := apu.RegisterAddressesFor(apu.Pulse1)
	if writes[0].Addr != regs.TimerLo || writes[1].Addr != regs.TimerHi || writes[2].Addr != regs.Control {
		t.Fatalf("writes not in timer-low, timer-high, control order: %+v", writes)
	}
}

func TestRegisterWrites_DPCMStartWritesSampleRegisters(t *testing.T) {
	cell := apu.Cell{SampleIndex: 3, ControlByte: apu.DPCMControlByte(14, false), Retrigger: true}
	writes := RegisterWrites(apu.Dpcm, cell)
	if len(writes) != 4 {
		t.Fatalf("expected 4 writes for a DPCM start cell, got %d", len(writes))
	}
	wantAddrs := []uint16{0x4010, 0x4011, 0x4012, 0x4013}
	for i, w := range writes {
		if w.Addr != wantAddrs[i] {
			t.Fatalf("write %d at $%04X, want $%04X", i, w.Addr, wantAddrs[i])
		}
	}
	if writes[0].Value != 0x0E {
		t.Fatalf("$4010 = %#02x, want rate index 14 with no loop bit", writes[0].Value)
	}

	cell.Retrigger = false
	if got := RegisterWrites(apu.Dpcm, cell); len(got) != 0 {
		t.Fatalf("expected no writes while a sample keeps playing, got %+v", got)
	}
}

func TestCompareTimelines_DetectsMismatch(t *testing.T) {
	a := []apu.Cell{{Note: 60}, {Note: 62}}
	b := []apu.Cell{{Note: 60}, {Note: 64}}
	err := CompareTimelines(a, b)
	if err == nil {
		t.Fatal("expected a mismatch error")
	}
	mismatch, ok := err.(*MismatchError)
	if !ok || mismatch.Frame != 1 {
		t.Fatalf("got %+v, want mismatch at frame 1", err)
	}
}
