// Package model holds the data types shared across multiple pipeline
// stages: NoteEvent and TrackSummary. Types owned entirely by one stage
// (FrameCell, channel.Assignment, Pattern, SongModule, ...) live in that
// stage's own package instead.
package model

// NoteEvent is immutable once produced by the Event Normaliser. A
// DurationFrames of zero is a note-off marker that should never escape
// the Event Normaliser, which pairs note-on/off into a single NoteEvent
// with a positive duration; it is retained here only so intermediate
// normalisation code has a zero value to build up from.
type NoteEvent struct {
	Frame           uint32
	MIDINote        uint8
	Velocity        uint8
	DurationFrames  uint32
}

// End returns the frame just past this note's sounding interval, i.e. the
// exclusive upper bound of [Frame, End), the interval a channel's
// assigned notes must be pairwise disjoint within.
func (n NoteEvent) End() uint32 {
	return n.Frame + n.DurationFrames
}

// Overlaps reports whether two note intervals intersect in frame space.
func (n NoteEvent) Overlaps(o NoteEvent) bool {
	return n.Frame < o.End() && o.Frame < n.End()
}

// TrackSummary is computed once per input MIDI track by the Event
// Normaliser and consumed by the Channel Mapper.
type TrackSummary struct {
	TrackIndex      int
	AveragePitch    float64
	PitchLow        uint8
	PitchHigh       uint8
	NoteDensity     float64 // notes per second
	MaxPolyphony    int
	IsPercussion    bool
	NoteCount       int
}

// PriorityScore combines pitch centroid (weighted double) and note
// density into the single ordering value the Channel Mapper's descending-priority
// assignment sorts tracks by. Higher pitch centroid and higher density
// both push a track toward being assigned first, i.e. toward Pulse1.
func (s TrackSummary) PriorityScore() float64 {
	return s.AveragePitch*2 + s.NoteDensity
}
