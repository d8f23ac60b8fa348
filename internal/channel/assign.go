// Package channel implements the Channel Mapper: assigning MIDI tracks
// to the NES's five fixed channels under polyphony and pitch-range
// constraints, and reducing polyphony within an assigned track down to
// that channel's monophonic (or, for DPCM, single-sample) capacity.
package channel

import (
	"sort"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
	"github.com/mzanolli/nesrom/internal/model"
)

// TrackInput is one input MIDI track as seen by the Channel Mapper: its
// normalised events, summary statistics, and any caller hints.
type TrackInput struct {
	Events   []model.NoteEvent
	Summary  model.TrackSummary
	Required bool // caller demands this track be assigned a channel, not dropped
	DPCMSampleIndex int // >=0 if a matching DPCM sample exists for this track
}

// Assignment maps each of the five NES channels to an ordered,
// non-overlapping list of NoteEvents.
type Assignment map[apu.Channel][]model.NoteEvent

// UnassignableTrackError reports that a track is explicitly required but
// no channel will accept it.
type UnassignableTrackError struct {
	TrackIndex int
}

func (e *UnassignableTrackError) Error() string {
	return "track has no channel willing to accept it"
}

// Assign routes MIDI tracks onto the five NES channels.
func Assign(tracks []TrackInput, cfg config.Config, d *diag.Diagnostics) (Assignment, error) {
	result := make(Assignment)
	for _, c := range apu.All {
		result[c] = nil
	}

	var percussionTracks, melodicTracks []int
	for i, t := range tracks {
		if t.Summary.IsPercussion {
			percussionTracks = append(percussionTracks, i)
		} else {
			melodicTracks = append(melodicTracks, i)
		}
	}

	// Step 2: sort melodic tracks by descending priority score, then
	// assign highest -> Pulse1, next -> Pulse2, lowest -> Triangle.
	sort.SliceStable(melodicTracks, func(a, b int) bool {
		return tracks[melodicTracks[a]].Summary.PriorityScore() > tracks[melodicTracks[b]].Summary.PriorityScore()
	})

	melodicSlots := []struct {
		channel  apu.Channel
		strategy config.PolyphonyStrategy
	}{
		{apu.Pulse1, cfg.Pulse1Strategy},
		{apu.Pulse2, cfg.Pulse2Strategy},
		{apu.Triangle, cfg.TriangleStrategy},
	}

	splitConfigured := cfg.Pulse1Strategy == config.StrategyPitchRangeSplit ||
		cfg.Pulse2Strategy == config.StrategyPitchRangeSplit ||
		cfg.TriangleStrategy == config.StrategyPitchRangeSplit

	assignedTracks := 0
	if splitConfigured && len(melodicTracks) > 0 {
		// Pitch-range split projects one polyphonic track onto all three
		// melodic channels at once, so the top-priority track becomes the
		// single source and its bands land on complementary channels.
		src := tracks[melodicTracks[0]]
		for _, slot := range melodicSlots {
			result[slot.channel] = ReducePolyphony(src.Events, config.StrategyPitchRangeSplit, slot.channel, cfg)
		}
		assignedTracks = 1
	} else {
		for slotIdx, slot := range melodicSlots {
			if slotIdx >= len(melodicTracks) {
				break
			}
			trackIdx := melodicTracks[slotIdx]
			result[slot.channel] = ReducePolyphony(tracks[trackIdx].Events, slot.strategy, slot.channel, cfg)
			assignedTracks++
		}
	}

	// Tracks beyond the consumed melodic slots are dropped with a
	// warning, unless marked Required, in which case assignment fails.
	for i := assignedTracks; i < len(melodicTracks); i++ {
		trackIdx := melodicTracks[i]
		if tracks[trackIdx].Required {
			return nil, &UnassignableTrackError{TrackIndex: trackIdx}
		}
		d.Add(diag.StageChannel, diag.KindDroppedTrack, trackIdx,
			"melodic track dropped: no remaining melodic channel slot")
	}

	// Percussion routes to Noise unless a DPCM sample index exists; when
	// both would fire at the same frame, DPCM wins and the Noise event is
	// dropped.
	var noiseEvents, dpcmEvents []model.NoteEvent
	for _, trackIdx := range percussionTracks {
		t := tracks[trackIdx]
		if t.DPCMSampleIndex >= 0 {
			dpcmEvents = append(dpcmEvents, t.Events...)
		} else {
			noiseEvents = append(noiseEvents, t.Events...)
		}
	}
	dpcm := ReducePolyphony(dpcmEvents, config.StrategyPriority, apu.Dpcm, cfg)
	noise := ReducePolyphony(noiseEvents, config.StrategyPriority, apu.Noise, cfg)
	result[apu.Noise] = dropDPCMCollisions(noise, dpcm)
	result[apu.Dpcm] = dpcm

	for c, events := range result {
		if !nonOverlapping(events) {
			return nil, &diag.FatalError{Kind: diag.FatalInternalInvariant, Stage: diag.StageChannel,
				Index: int(c), Err: errOverlap}
		}
	}

	return result, nil
}

var errOverlap = overlapError{}

type overlapError struct{}

func (overlapError) Error() string { return "channel assignment produced overlapping note intervals" }

// dropDPCMCollisions removes every Noise event that fires on the same
// frame as a DPCM event: the two percussive channels trigger on start
// frames, and when both trigger at once the sample wins.
func dropDPCMCollisions(noise, dpcm []model.NoteEvent) []model.NoteEvent {
	if len(dpcm) == 0 || len(noise) == 0 {
		return noise
	}
	dpcmFrames := make(map[uint32]bool, len(dpcm))
	for _, e := range dpcm {
		dpcmFrames[e.Frame] = true
	}
	out := noise[:0:0]
	for _, e := range noise {
		if dpcmFrames[e.Frame] {
			continue
		}
		out = append(out, e)
	}
	return out
}

func nonOverlapping(events []model.NoteEvent) bool {
	sorted := append([]model.NoteEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Overlaps(sorted[i-1]) {
			return false
		}
	}
	return true
}
