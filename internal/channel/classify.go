package channel

import "github.com/mzanolli/nesrom/internal/model"

// ClassifyPercussion determines the percussion flag for a track that was
// not already flagged by TrackSummary.IsPercussion (MIDI channel 10). A
// track qualifies when every note it plays maps to a known drum-kit slot
// in the DPCM sample index, a common authoring pattern for drum tracks
// exported off channel 10.
func ClassifyPercussion(events []model.NoteEvent, drumNotes map[uint8]bool) bool {
	if len(events) == 0 || len(drumNotes) == 0 {
		return false
	}
	for _, e := range events {
		if !drumNotes[e.MIDINote] {
			return false
		}
	}
	return true
}
