package channel

import (
	"sort"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/model"
)

// ReducePolyphony reduces polyphony within a single assigned track using
// one of three strategies (Priority, Pitch-range-split, Arpeggiation),
// chosen per track. Pitch-range-split is the odd one out in that it can
// route notes to *other* channels (notes >= threshold go to Pulse1,
// 48-59 to Pulse2, below 48 to Triangle), so its result only includes
// notes that belong on the
// `target` channel; callers applying pitch-range-split to all three
// melodic slots with the same source track will get complementary,
// non-overlapping subsets.
func ReducePolyphony(events []model.NoteEvent, strategy config.PolyphonyStrategy, target apu.Channel, cfg config.Config) []model.NoteEvent {
	switch strategy {
	case config.StrategyPitchRangeSplit:
		return pitchRangeSplit(events, target, cfg.PitchSplitThreshold)
	case config.StrategyArpeggiate:
		return arpeggiate(events, cfg.ArpeggiationRate)
	default:
		return priorityReduce(events)
	}
}

// priorityReduce implements the default Triangle strategy: keep the
// lowest-pitched concurrent note, drop the rest. Concurrency is
// determined by building chords from events that overlap in frame space.
func priorityReduce(events []model.NoteEvent) []model.NoteEvent {
	return reduceConcurrent(events, func(candidate, winner model.NoteEvent) bool {
		return candidate.MIDINote < winner.MIDINote
	})
}

// pitchRangeSplit partitions concurrent notes by a pitch threshold:
// notes >= threshold go to Pulse1, 48..threshold-1
// go to Pulse2, below 48 go to Triangle. Within each resulting subset,
// any residual concurrency (a chord whose notes all land in the same
// band) is further reduced by priority, since a single NES channel is
// still monophonic. The within-band reduction favours the extreme pitch
// that channel's register exists to carry: Pulse1/Pulse2 keep the
// highest note of the chord (the lead line sits on top), Triangle keeps
// the lowest (the bass line sits on the bottom), matching the
// descending-priority assignment order (highest pitch centroid ->
// Pulse1 ... lowest -> Triangle).
func pitchRangeSplit(events []model.NoteEvent, target apu.Channel, threshold uint8) []model.NoteEvent {
	var subset []model.NoteEvent
	for _, e := range events {
		band := bandFor(e.MIDINote, threshold)
		if band == target {
			subset = append(subset, e)
		}
	}
	if target == apu.Triangle {
		return priorityReduce(subset)
	}
	return reduceConcurrent(subset, func(candidate, winner model.NoteEvent) bool {
		return candidate.MIDINote > winner.MIDINote
	})
}

// reduceConcurrent collapses each chord (maximal group of overlapping
// events) to the single event `keep` picks as the winner, comparing each
// challenger against the current winner in turn.
func reduceConcurrent(events []model.NoteEvent, keep func(candidate, winner model.NoteEvent) bool) []model.NoteEvent {
	chords := groupConcurrent(events)
	var out []model.NoteEvent
	for _, chord := range chords {
		winner := chord[0]
		for _, e := range chord[1:] {
			if keep(e, winner) {
				winner = e
			}
		}
		out = append(out, winner)
	}
	return sortedByFrame(out)
}

func bandFor(note uint8, threshold uint8) apu.Channel {
	switch {
	case note >= threshold:
		return apu.Pulse1
	case note >= 48:
		return apu.Pulse2
	default:
		return apu.Triangle
	}
}

// arpeggiate cycles through a chord's notes at a fixed per-frame rate:
// notes are assigned consecutive sub-slices of the chord's duration,
// cycling through the chord's notes at rateFrames frames per note. Each
// chord is treated independently with no carried cycle phase, so the
// cycle restarts on every chord change.
func arpeggiate(events []model.NoteEvent, rateFrames int) []model.NoteEvent {
	if rateFrames < 1 {
		rateFrames = 1
	}
	chords := groupConcurrent(events)
	var out []model.NoteEvent
	for _, chord := range chords {
		sort.Slice(chord, func(i, j int) bool { return chord[i].MIDINote > chord[j].MIDINote })
		start := chord[0].Frame
		end := chord[0].End()
		for _, e := range chord {
			if e.Frame < start {
				start = e.Frame
			}
			if e.End() > end {
				end = e.End()
			}
		}

		n := len(chord)
		frame := start
		idx := 0
		for frame < end {
			note := chord[idx%n]
			segEnd := frame + uint32(rateFrames)
			if segEnd > end {
				segEnd = end
			}
			duration := segEnd - frame
			if duration < 1 {
				duration = 1
			}
			out = append(out, model.NoteEvent{
				Frame:          frame,
				MIDINote:       note.MIDINote,
				Velocity:       note.Velocity,
				DurationFrames: duration,
			})
			frame = segEnd
			idx++
		}
	}
	return sortedByFrame(out)
}

// groupConcurrent partitions a track's events into maximal chords: sets
// of events whose frame intervals transitively overlap. Within a chord,
// exactly one reduction strategy decides what survives.
func groupConcurrent(events []model.NoteEvent) [][]model.NoteEvent {
	if len(events) == 0 {
		return nil
	}
	sorted := sortedByFrame(events)

	var chords [][]model.NoteEvent
	current := []model.NoteEvent{sorted[0]}
	currentEnd := sorted[0].End()

	for _, e := range sorted[1:] {
		if e.Frame < currentEnd {
			current = append(current, e)
			if e.End() > currentEnd {
				currentEnd = e.End()
			}
			continue
		}
		chords = append(chords, current)
		current = []model.NoteEvent{e}
		currentEnd = e.End()
	}
	chords = append(chords, current)
	return chords
}

func sortedByFrame(events []model.NoteEvent) []model.NoteEvent {
	out := append([]model.NoteEvent(nil), events...)
	sort.Slice(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
	return out
}
