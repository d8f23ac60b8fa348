// Package tempo implements the MIDI tick <-> 60 Hz frame mapping.
//
// A TempoMap is built once from the tempo-change list produced by the
// external MIDI parser and is read-only thereafter. Frame positions are
// computed by accumulating exact tick*microseconds products and dividing
// once per change-point, rather than multiplying a running float tempo
// by elapsed ticks, to avoid the accumulated rounding drift a naive
// implementation would exhibit over a long piece.
package tempo

import "fmt"

const (
	framesPerSecond        = 60
	microsecondsPerSecond  = 1_000_000
)

// Entry is one tempo change.
type Entry struct {
	Tick                   uint32
	MicrosecondsPerQuarter uint32
}

// segment is a precomputed piecewise-linear run between two tempo changes:
// starting at StartTick/StartFrame, frames advance at Num/Den frames per
// tick (an exact rational, not a float, so repeated lookups are
// reproducible bit-for-bit).
type segment struct {
	startTick  uint32
	startFrame uint32
	num        uint64 // frames-per-tick numerator
	den        uint64 // frames-per-tick denominator
}

// Map is the monotone tick->frame / frame->tick mapping.
type Map struct {
	ticksPerQuarter uint16
	segments        []segment // sorted by startTick
}

// InvalidTempoMapError reports a tempo map that fails to build.
type InvalidTempoMapError struct {
	Reason string
}

func (e *InvalidTempoMapError) Error() string {
	return fmt.Sprintf("invalid tempo map: %s", e.Reason)
}

// Build constructs a Map from an ordered, non-empty list of tempo changes
// plus the file's ticks-per-quarter resolution. The first entry must be
// at tick 0, and every tempo must be strictly positive.
func Build(entries []Entry, ticksPerQuarter uint16) (*Map, error) {
	if len(entries) == 0 {
		return nil, &InvalidTempoMapError{Reason: "no tempo entries supplied"}
	}
	if entries[0].Tick != 0 {
		return nil, &InvalidTempoMapError{Reason: "initial tempo entry is missing (first entry is not at tick 0)"}
	}
	if ticksPerQuarter == 0 {
		return nil, &InvalidTempoMapError{Reason: "ticks-per-quarter must be positive"}
	}
	for i, e := range entries {
		if e.MicrosecondsPerQuarter == 0 {
			return nil, &InvalidTempoMapError{Reason: fmt.Sprintf("tempo entry %d has non-positive microseconds-per-quarter", i)}
		}
		if i > 0 && entries[i].Tick < entries[i-1].Tick {
			return nil, &InvalidTempoMapError{Reason: fmt.Sprintf("tempo entry %d is out of tick order", i)}
		}
	}

	m := &Map{ticksPerQuarter: ticksPerQuarter}

	var curFrame uint32
	for i, e := range entries {
		// frames per tick = 60 * microsPerQuarter / (1e6 * ticksPerQuarter)
		num := uint64(framesPerSecond) * uint64(e.MicrosecondsPerQuarter)
		den := uint64(microsecondsPerSecond) * uint64(ticksPerQuarter)
		seg := segment{
			startTick:  e.Tick,
			startFrame: curFrame,
			num:        num,
			den:        den,
		}
		m.segments = append(m.segments, seg)

		if i+1 < len(entries) {
			deltaTicks := uint64(entries[i+1].Tick - e.Tick)
			curFrame += exactRoundEven(deltaTicks*num, den)
		}
	}

	return m, nil
}

// segmentFor returns the segment governing the given tick (the last
// segment whose startTick <= tick).
func (m *Map) segmentFor(tick uint32) (segment, int) {
	idx := 0
	for i, s := range m.segments {
		if s.startTick > tick {
			break
		}
		idx = i
	}
	return m.segments[idx], idx
}

// TickToFrame converts an absolute MIDI tick to a 60 Hz frame index.
// Monotone and idempotent: repeated calls with non-decreasing ticks never
// produce a decreasing frame sequence. Ties round to even to avoid
// systematic drift.
func (m *Map) TickToFrame(tick uint32) uint32 {
	seg, _ := m.segmentFor(tick)
	deltaTicks := uint64(tick - seg.startTick)
	return seg.startFrame + exactRoundEven(deltaTicks*seg.num, seg.den)
}

// FrameToTick is the right inverse of TickToFrame within +/-1 tick.
func (m *Map) FrameToTick(frame uint32) uint32 {
	idx := 0
	for i, s := range m.segments {
		if s.startFrame > frame {
			break
		}
		idx = i
	}
	seg := m.segments[idx]
	if seg.num == 0 {
		return seg.startTick
	}
	deltaFrames := uint64(frame - seg.startFrame)
	// invert: deltaTicks * num / den ~= deltaFrames  =>  deltaTicks ~= deltaFrames*den/num
	deltaTicks := exactRoundEven(deltaFrames*seg.den, seg.num)
	return seg.startTick + uint32(deltaTicks)
}

// exactRoundEven computes round(num/den) with ties rounding to even,
// using only integer arithmetic so the result is reproducible across
// platforms and avoids systematic drift.
func exactRoundEven(num, den uint64) uint32 {
	if den == 0 {
		return 0
	}
	q := num / den
	rem := num % den
	twice := rem * 2
	switch {
	case twice < den:
		// round down
	case twice > den:
		q++
	default:
		// exact tie: round to even
		if q%2 != 0 {
			q++
		}
	}
	return uint32(q)
}
