// Package simulate implements a minimal APU register-write replay
// engine: it decompresses a SongModule's per-channel pattern references
// and residual entries frame by frame, emitting the same fixed-order
// register writes the code emitter's driver performs, so the
// reconstruction round-trip invariant can be checked without assembling
// or running any 6502 code.
package simulate

import (
	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/pattern"
)

// RegisterWrite is one (address, value) write the driver would perform.
type RegisterWrite struct {
	Addr  uint16
	Value byte
}

// ReplayChannel decompresses one channel's Compressed timeline against
// its shared pattern.Library and returns the dense Cell-per-frame
// reconstruction, exactly mirroring what the Code Emitter's driver
// routine decodes at runtime from the reference and residual lists.
func ReplayChannel(channel apu.Channel, lib *pattern.Library, compressed pattern.Compressed, totalFrames uint32) []apu.Cell {
	byID := make(map[uint32]pattern.Pattern, len(lib.Patterns()))
	for _, p := range lib.Patterns() {
		byID[p.ID] = p
	}

	out := make([]apu.Cell, totalFrames)
	for _, ref := range compressed.References {
		p, ok := byID[ref.PatternID]
		if !ok {
			continue
		}
		for i, cell := range p.Cells {
			frame := ref.Frame + uint32(i)
			if frame >= totalFrames {
				break
			}
			out[frame] = applyVariation(cell, channel, ref.Transpose, ref.VolumeDelta)
		}
	}
	for _, r := range compressed.Residual {
		if r.Frame < totalFrames {
			out[r.Frame] = r.Cell
		}
	}
	return out
}

// applyVariation reconstructs the cell a merged-variation reference
// actually plays: the pattern's stored cell, shifted by the reference's
// transpose and volume delta. Pitch reconstruction dispatches through
// the same per-channel table TimerFor uses directly, since Triangle's
// timer table differs from Pulse's and Noise has no timer-by-note
// concept at all.
func applyVariation(c apu.Cell, channel apu.Channel, transpose, volumeDelta int8) apu.Cell {
	if c.Silent || (transpose == 0 && volumeDelta == 0) {
		return c
	}
	if transpose != 0 {
		c.Note = uint8(int(c.Note) + int(transpose))
		switch channel {
		case apu.Noise:
			c.Timer = uint16(apu.NoiseBandFor(c.Note))
		default:
			c.Timer = apu.TimerFor(channel, c.Note)
		}
	}
	if volumeDelta != 0 {
		newVolume := int(c.Volume) + int(volumeDelta)
		if newVolume < 0 {
			newVolume = 0
		}
		if newVolume > 15 {
			newVolume = 15
		}
		c.Volume = uint8(newVolume)
		if apu.HasVolumeControl(channel) {
			c.ControlByte = (c.ControlByte &^ 0x0F) | c.Volume
		}
	}
	return c
}

// RegisterWrites converts one frame's Cell into the fixed write order
// the driver emits. Tone/Noise channels write timer-low, timer-high,
// control. DPCM writes nothing unless the cell starts a sample, in
// which case it writes $4010-$4013 in register order; the address and
// length bytes resolve from per-sample tables at link time, so the
// replay stands the sample index in for both.
func RegisterWrites(c apu.Channel, cell apu.Cell) []RegisterWrite {
	if c == apu.Dpcm {
		if cell.SampleIndex < 0 || !cell.Retrigger {
			return nil
		}
		return []RegisterWrite{
			{Addr: 0x4010, Value: cell.ControlByte},
			{Addr: 0x4011, Value: apu.DPCMDirectLoad},
			{Addr: 0x4012, Value: byte(cell.SampleIndex)},
			{Addr: 0x4013, Value: byte(cell.SampleIndex)},
		}
	}
	regs := apu.RegisterAddressesFor(c)
	return []RegisterWrite{
		{Addr: regs.TimerLo, Value: byte(cell.Timer)},
		{Addr: regs.TimerHi, Value: byte(cell.Timer>>8) | lengthCounterLoad(cell)},
		{Addr: regs.Control, Value: cell.ControlByte},
	}
}

func lengthCounterLoad(cell apu.Cell) byte {
	if cell.Silent {
		return 0
	}
	return 0x08 // fixed mid-length load; actual duration is driven by the reference/residual list, not the length counter
}
