// Package songmodule assembles the shared pattern library and the
// per-channel references and residuals into one SongModule aggregate,
// the unit the Code Emitter serializes to ROM.
package songmodule

import (
	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/pattern"
)

// ChannelData is one channel's compressed frame timeline: its pattern
// references and residual. The pattern library those references name is
// shared and stored once on SongModule.
type ChannelData struct {
	Channel    apu.Channel
	Compressed pattern.Compressed
}

// DPCMSample is one decoded entry from the DPCM sample index document: a
// percussion MIDI note mapped to a pre-encoded DPCM sample's bytes,
// playback rate index, and loop flag.
type DPCMSample struct {
	MIDINote  uint8  `json:"midi_note"`
	Name      string `json:"name"`
	Data      []byte `json:"-"` // populated by the loader, not the JSON index itself
	RateIndex uint8  `json:"rate_index"`
	Loop      bool   `json:"loop_flag"`
}

// SongModule is the compiled song, ready for the Code Emitter: the shared
// pattern library, each channel's compressed timeline, the DPCM sample
// set, total length, and an optional loop point.
type SongModule struct {
	Library      *pattern.Library
	Channels     []ChannelData
	DPCMSamples  []DPCMSample
	TotalFrames  uint32

	// LoopFrame, when HasLoop is true, is the frame the playback driver
	// jumps back to once TotalFrames is reached. Set for MIDI inputs
	// whose marker meta-event names content that recurs verbatim later
	// in the song (see DetectLoopPoint).
	HasLoop   bool
	LoopFrame uint32
}

// Assemble builds a SongModule from per-channel compressed timelines
// already sharing one pattern.Library, so identical patterns on
// different channels share one library entry. When haveMarker is true,
// it runs loop detection against the dense per-channel timelines the
// caller decoded the compressed timelines from, and sets HasLoop/
// LoopFrame accordingly.
func Assemble(lib *pattern.Library, channels []ChannelData, samples []DPCMSample, totalFrames uint32, channelCells map[apu.Channel][]apu.Cell, haveMarker bool, markerFrame uint32) *SongModule {
	sm := &SongModule{
		Library:     lib,
		Channels:    channels,
		DPCMSamples: samples,
		TotalFrames: totalFrames,
	}
	if haveMarker {
		if loopFrame, ok := DetectLoopPoint(channelCells, markerFrame, totalFrames); ok {
			sm.HasLoop = true
			sm.LoopFrame = loopFrame
		}
	}
	return sm
}

// ChannelByID returns the compressed data for one channel, or the zero
// value and false if that channel has no entry.
func (s *SongModule) ChannelByID(c apu.Channel) (ChannelData, bool) {
	for _, cd := range s.Channels {
		if cd.Channel == c {
			return cd, true
		}
	}
	return ChannelData{}, false
}
