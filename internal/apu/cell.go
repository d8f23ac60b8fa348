package apu

// Cell is the register-level state for one channel at one frame. Triangle
// has no independent volume field; rather than model that as a second
// type, Volume is simply pinned to 0 or 15 for Triangle and the emitter
// ignores it when encoding the linear-counter control byte.
type Cell struct {
	Note         uint8 // MIDI note actually sounding, 0 if silent
	Silent       bool
	Volume       uint8 // 0..15
	Timer        uint16
	ControlByte  uint8
	Retrigger    bool
	SampleIndex  int // DPCM only; -1 if not applicable
}

// DPCMDirectLoad is the $4011 value written when a sample starts: a
// mid-level bias so the delta decoder has headroom in both directions.
const DPCMDirectLoad = 0x40

// DPCMControlByte packs a sample's loop flag and 4-bit rate index into
// the $4010 register value.
func DPCMControlByte(rateIndex uint8, loop bool) uint8 {
	b := rateIndex & 0x0F
	if loop {
		b |= 0x40
	}
	return b
}

// SilentCell returns the canonical cell for "nothing sounding on this
// channel this frame."
func SilentCell(c Channel) Cell {
	return Cell{
		Silent:      true,
		ControlByte: SilentControlByte(c),
		SampleIndex: -1,
	}
}

// Equal reports whether two cells encode identically, the basis for
// content addressing: two patterns with identical cell contents must
// share one pattern id.
func (c Cell) Equal(o Cell) bool {
	return c == o
}
