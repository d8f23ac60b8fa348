// Package diag implements a fatal/recoverable error split.
//
// Fatal conditions abort a compile and surface as a typed error; recoverable
// conditions (dropped tracks, out-of-range pitches, unpaired note events)
// accumulate on a Diagnostics value that rides alongside a successful
// result. Diagnostics never carry fatal conditions and fatal errors never
// appear in a Diagnostics list.
package diag

import "fmt"

// Stage names recoverable and fatal diagnostics by pipeline stage, so a
// caller can tell "the channel mapper dropped this" from "the frame
// generator dropped this" without parsing message text.
type Stage string

const (
	StageTempo   Stage = "tempo"
	StageNormal  Stage = "normalise"
	StageChannel Stage = "channel"
	StageFrame   Stage = "frame"
	StagePattern Stage = "pattern"
	StageEmit    Stage = "emit"
)

// Kind enumerates the recoverable-diagnostic categories.
type Kind string

const (
	KindDroppedTrack    Kind = "dropped_track"
	KindUnpairedEvent   Kind = "unpaired_event"
	KindPitchOutOfRange Kind = "pitch_out_of_range"
	KindPatternAbandon  Kind = "pattern_chunk_abandoned"
	KindOther           Kind = "other"
)

// Entry is one recoverable diagnostic.
type Entry struct {
	Stage   Stage
	Kind    Kind
	Index   int // track index, frame index, or chunk index, per Stage
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s (index=%d): %s", e.Stage, e.Kind, e.Index, e.Message)
}

// Diagnostics is the accumulating, non-fatal channel: a separate,
// accumulating record so that warnings do not masquerade as errors.
type Diagnostics struct {
	entries []Entry
}

// New returns an empty Diagnostics accumulator.
func New() *Diagnostics {
	return &Diagnostics{}
}

// Add appends a recoverable diagnostic.
func (d *Diagnostics) Add(stage Stage, kind Kind, index int, format string, args ...any) {
	d.entries = append(d.entries, Entry{
		Stage:   stage,
		Kind:    kind,
		Index:   index,
		Message: fmt.Sprintf(format, args...),
	})
}

// Entries returns all accumulated diagnostics in insertion order.
func (d *Diagnostics) Entries() []Entry {
	return d.entries
}

// Len reports how many diagnostics have accumulated.
func (d *Diagnostics) Len() int {
	return len(d.entries)
}

// CountKind reports how many diagnostics of a given kind have accumulated.
func (d *Diagnostics) CountKind(kind Kind) int {
	n := 0
	for _, e := range d.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Merge appends another Diagnostics' entries onto d, preserving order.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.entries = append(d.entries, other.entries...)
}

// FatalKind enumerates the fatal-error taxonomy.
type FatalKind string

const (
	FatalInvalidInput       FatalKind = "InvalidInput"
	FatalUnassignableTrack  FatalKind = "UnassignableTrack"
	FatalRomSizeExceeded    FatalKind = "RomSizeExceeded"
	FatalInternalInvariant  FatalKind = "InternalInvariant"
	FatalInvalidTempoMap    FatalKind = "InvalidTempoMap"
	FatalUnpairedThreshold  FatalKind = "UnpairedEventsExceedThreshold"
)

// FatalError is a structured, stage-tagged fatal error: it aborts the
// compile and surfaces to the caller with structured context (file,
// stage, index).
type FatalError struct {
	Kind  FatalKind
	Stage Stage
	File  string
	Index int
	Err   error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at stage %s (file=%q index=%d): %v", e.Kind, e.Stage, e.File, e.Index, e.Err)
	}
	return fmt.Sprintf("%s at stage %s (file=%q index=%d)", e.Kind, e.Stage, e.File, e.Index)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal constructs a FatalError, wrapping an underlying cause if any.
func NewFatal(kind FatalKind, stage Stage, file string, index int, err error) *FatalError {
	return &FatalError{Kind: kind, Stage: stage, File: file, Index: index, Err: err}
}
