// Package midiin implements the Event Normaliser: pairing note-on/
// note-off events into NoteEvents on the 60 Hz frame grid, plus a thin
// byte-level MIDI parser boundary adapter (smf.go) that turns raw
// Standard MIDI File bytes into the RawEvent stream this file consumes.
package midiin

import (
	"sort"

	"github.com/mzanolli/nesrom/internal/diag"
	"github.com/mzanolli/nesrom/internal/model"
	"github.com/mzanolli/nesrom/internal/tempo"
)

// RawEventKind distinguishes the three event types the normaliser cares
// about; everything else the external parser might surface (controller
// changes, program changes, ...) is out of scope and dropped upstream of
// this package.
type RawEventKind int

const (
	RawNoteOn RawEventKind = iota
	RawNoteOff
	RawTempoChange
)

// RawEvent is one tick-stamped event from the per-track stream of
// note-on/off and tempo-change events the external byte-level parser
// produces.
type RawEvent struct {
	Tick                   uint32
	Kind                   RawEventKind
	Note                   uint8
	Velocity               uint8
	MicrosecondsPerQuarter uint32 // RawTempoChange only
}

// Track is one input MIDI track's raw event stream plus its MIDI channel
// (used by the Channel Mapper's percussion classification: MIDI channel
// 10 is the General MIDI percussion channel).
type Track struct {
	Index       int
	MIDIChannel uint8
	Events      []RawEvent
}

// unpairedThresholdFraction is the failure threshold: more than 5% of a
// track's note events unmatched aborts the compile.
const unpairedThresholdFraction = 0.05

// UnpairedEventsExceedThresholdError reports that a track's unpaired
// note-on/off count exceeded the 5% threshold.
type UnpairedEventsExceedThresholdError struct {
	TrackIndex   int
	Unpaired     int
	TotalEvents  int
}

func (e *UnpairedEventsExceedThresholdError) Error() string {
	return "unpaired note events exceed 5% threshold in track"
}

// Normalise converts one track's raw event stream into a time-ordered
// NoteEvent sequence plus its TrackSummary.
//
// Rules implemented:
//   - a note-on at velocity 0 is a note-off (also folded upstream in
//     RawEvent construction, see smf.go)
//   - unmatched note-offs are discarded with a recoverable diagnostic
//   - overlapping same-pitch note-ons extend the earlier note (the later
//     note-on is ignored while the pitch is already sounding)
//   - durations below 1 frame are promoted to 1 frame
func Normalise(track Track, tm *tempo.Map, d *diag.Diagnostics) ([]model.NoteEvent, model.TrackSummary, error) {
	open := make(map[uint8]*openNote)

	var events []model.NoteEvent
	var unpaired int
	var totalNoteEvents int

	var pitchSum int64
	var pitchLow uint8 = 255
	var pitchHigh uint8
	var noteCount int
	var firstFrame, lastFrame uint32
	haveFrames := false

	concurrent := 0
	maxConcurrent := 0

	for _, ev := range track.Events {
		switch ev.Kind {
		case RawNoteOn:
			totalNoteEvents++
			frame := tm.TickToFrame(ev.Tick)
			if ev.Velocity == 0 {
				// note-on at velocity 0 is a note-off, per MIDI convention;
				// smf.go already folds these, but the RawEvent stream is an
				// external interface and other parsers may not.
				if !finishNote(open, ev.Note, frame, &events) {
					unpaired++
					d.Add(diag.StageNormal, diag.KindUnpairedEvent, track.Index,
						"note-on at velocity 0 for MIDI note %d at frame %d has no matching note-on", ev.Note, frame)
					continue
				}
				if concurrent > 0 {
					concurrent--
				}
				continue
			}
			if _, sounding := open[ev.Note]; sounding {
				// Overlapping same-pitch note-on: extend the earlier note,
				// ignore this one.
				continue
			}
			open[ev.Note] = &openNote{startFrame: frame, velocity: ev.Velocity}
			concurrent++
			if concurrent > maxConcurrent {
				maxConcurrent = concurrent
			}

			pitchSum += int64(ev.Note)
			noteCount++
			if ev.Note < pitchLow {
				pitchLow = ev.Note
			}
			if ev.Note > pitchHigh {
				pitchHigh = ev.Note
			}
			if !haveFrames {
				firstFrame, lastFrame = frame, frame
				haveFrames = true
			} else if frame > lastFrame {
				lastFrame = frame
			}

		case RawNoteOff:
			totalNoteEvents++
			frame := tm.TickToFrame(ev.Tick)
			if !finishNote(open, ev.Note, frame, &events) {
				unpaired++
				d.Add(diag.StageNormal, diag.KindUnpairedEvent, track.Index,
					"note-off for MIDI note %d at frame %d has no matching note-on", ev.Note, frame)
				continue
			}
			if concurrent > 0 {
				concurrent--
			}
		}
	}

	// Any still-open notes at end of track are unmatched note-ons; drop
	// with a diagnostic rather than letting them sound forever.
	for note := range open {
		unpaired++
		d.Add(diag.StageNormal, diag.KindUnpairedEvent, track.Index,
			"note-on for MIDI note %d has no matching note-off", note)
	}

	if totalNoteEvents > 0 {
		fraction := float64(unpaired) / float64(totalNoteEvents)
		if fraction > unpairedThresholdFraction {
			return nil, model.TrackSummary{}, &UnpairedEventsExceedThresholdError{
				TrackIndex:  track.Index,
				Unpaired:    unpaired,
				TotalEvents: totalNoteEvents,
			}
		}
	}

	// Promote zero/sub-frame durations to 1 frame so every note is audible.
	for i := range events {
		if events[i].DurationFrames < 1 {
			events[i].DurationFrames = 1
		}
	}

	// Events are appended in note-off order; with overlapping pitches that
	// is not start order, and downstream stages require a time-ordered
	// sequence.
	sort.SliceStable(events, func(i, j int) bool { return events[i].Frame < events[j].Frame })

	summary := model.TrackSummary{
		TrackIndex:   track.Index,
		PitchLow:     pitchLow,
		PitchHigh:    pitchHigh,
		MaxPolyphony: maxConcurrent,
		IsPercussion: track.MIDIChannel == 9, // MIDI channel 10 is index 9
		NoteCount:    noteCount,
	}
	if noteCount > 0 {
		summary.AveragePitch = float64(pitchSum) / float64(noteCount)
	}
	if haveFrames && lastFrame > firstFrame {
		seconds := float64(lastFrame-firstFrame) / 60.0
		if seconds > 0 {
			summary.NoteDensity = float64(noteCount) / seconds
		}
	}

	return events, summary, nil
}

// finishNote closes the open note at `note`, if any, appending a
// NoteEvent to *events. Returns false if no note-on was open for that
// pitch (an unmatched note-off).
func finishNote(open map[uint8]*openNote, note uint8, endFrame uint32, events *[]model.NoteEvent) bool {
	o, ok := open[note]
	if !ok {
		return false
	}
	delete(open, note)

	var duration uint32
	if endFrame > o.startFrame {
		duration = endFrame - o.startFrame
	}
	*events = append(*events, model.NoteEvent{
		Frame:          o.startFrame,
		MIDINote:       note,
		Velocity:       o.velocity,
		DurationFrames: duration,
	})
	return true
}

type openNote struct {
	startFrame uint32
	velocity   uint8
}
