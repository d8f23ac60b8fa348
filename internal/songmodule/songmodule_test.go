package songmodule

import (
	"testing"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/pattern"
)

func TestAssemble_ChannelByID(t *testing.T) {
	lib := pattern.NewLibrary()
	channels := []ChannelData{
		{Channel: apu.Pulse1, Compressed: pattern.Compressed{}},
		{Channel: apu.Triangle, Compressed: pattern.Compressed{}},
	}
	sm := Assemble(lib, channels, nil, 100, nil, false, 0)

	cd, ok := sm.ChannelByID(apu.Pulse1)
	if !ok || cd.Channel != apu.Pulse1 {
		t.Fatalf("expected Pulse1 channel data, got %+v ok=%v", cd, ok)
	}
	if _, ok := sm.ChannelByID(apu.Noise); ok {
		t.Fatalf("expected no Noise channel data")
	}
}

func TestDetectLoopPoint_FindsVerbatimRecurrence(t *testing.T) {
	note := apu.Cell{Note: 60, Volume: 8, ControlByte: 0x98}
	silent := apu.SilentCell(apu.Pulse1)

	// marker at frame 4; frames [4..12) recur verbatim starting at frame 20.
	cells := make([]apu.Cell, 40)
	for i := range cells {
		cells[i] = silent
	}
	tail := []apu.Cell{note, note, note, silent, note, silent, note, note}
	copy(cells[4:12], tail)
	copy(cells[20:28], tail)

	channelCells := map[apu.Channel][]apu.Cell{apu.Pulse1: cells}
	loopFrame, ok := DetectLoopPoint(channelCells, 4, uint32(len(cells)))
	if !ok {
		t.Fatal("expected a loop point to be detected")
	}
	if loopFrame != 4 {
		t.Fatalf("loopFrame = %d, want 4", loopFrame)
	}
}

func TestAssemble_WiresMarkerIntoLoopDetection(t *testing.T) {
	note := apu.Cell{Note: 60, Volume: 8, ControlByte: 0x98}
	silent := apu.SilentCell(apu.Pulse1)

	cells := make([]apu.Cell, 40)
	for i := range cells {
		cells[i] = silent
	}
	tail := []apu.Cell{note, note, note, silent, note, silent, note, note}
	copy(cells[4:12], tail)
	copy(cells[20:28], tail)

	lib := pattern.NewLibrary()
	channelCells := map[apu.Channel][]apu.Cell{apu.Pulse1: cells}
	sm := Assemble(lib, nil, nil, uint32(len(cells)), channelCells, true, 4)

	if !sm.HasLoop {
		t.Fatal("expected Assemble to detect and wire in the loop point")
	}
	if sm.LoopFrame != 4 {
		t.Fatalf("LoopFrame = %d, want 4", sm.LoopFrame)
	}
}

func TestDetectLoopPoint_NoRecurrenceReturnsFalse(t *testing.T) {
	cells := make([]apu.Cell, 20)
	for i := range cells {
		cells[i] = apu.Cell{Note: uint8(i), Volume: 8, ControlByte: 0x98}
	}
	channelCells := map[apu.Channel][]apu.Cell{apu.Pulse1: cells}
	_, ok := DetectLoopPoint(channelCells, 2, uint32(len(cells)))
	if ok {
		t.Fatal("expected no loop point for a non-repeating timeline")
	}
}
