package songmodule

import "github.com/mzanolli/nesrom/internal/apu"

// loopProbeFrames is how many frames of content following the marker must
// match a later occurrence before the marker is trusted as a real loop
// point rather than a coincidental single-frame match.
const loopProbeFrames = 8

// DetectLoopPoint finds a playback loop point: when a marker frame is
// supplied (from a MIDI marker meta-event upstream) and every channel's
// cell content starting at that frame recurs verbatim later in the song,
// the song loops back to the marker instead of ending at the top-level
// frame horizon.
//
// markerFrame is the frame the marker meta-event falls on after tempo
// conversion. A stray or one-off marker (no matching recurrence) leaves
// the song ending at totalFrames, unmodified.
func DetectLoopPoint(channelCells map[apu.Channel][]apu.Cell, markerFrame uint32, totalFrames uint32) (loopFrame uint32, ok bool) {
	if markerFrame >= totalFrames {
		return 0, false
	}
	probeLen := loopProbeFrames
	if remaining := totalFrames - markerFrame; remaining < uint32(probeLen) {
		probeLen = int(remaining)
	}
	if probeLen == 0 {
		return 0, false
	}

	for recurrence := markerFrame + 1; recurrence+uint32(probeLen) <= totalFrames; recurrence++ {
		if probeMatchesAt(channelCells, markerFrame, recurrence, uint32(probeLen)) {
			return markerFrame, true
		}
	}
	return 0, false
}

func probeMatchesAt(channelCells map[apu.Channel][]apu.Cell, markerFrame, recurrence, probeLen uint32) bool {
	for _, cells := range channelCells {
		for i := uint32(0); i < probeLen; i++ {
			if !cells[markerFrame+i].Equal(cells[recurrence+i]) {
				return false
			}
		}
	}
	return true
}
