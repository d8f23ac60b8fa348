package midiin

import (
	"bytes"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mzanolli/nesrom/internal/tempo"
)

// ReadSMF is the boundary adapter over the byte-level MIDI parser,
// implemented thinly over gitlab.com/gomidi/midi/v2's SMF reader. It
// re-shapes smf.Track events into RawEvents and also returns the file's
// ticks-per-quarter resolution, its tempo changes, and the tick of the
// first marker meta-event, if any.
func ReadSMF(data []byte) (tracks []Track, ticksPerQuarter uint16, tempoEntries []tempo.Entry, markerTick uint32, haveMarker bool, err error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, 0, nil, 0, false, fmt.Errorf("parse SMF: %w", err)
	}

	ticksPerQuarter = 480
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		ticksPerQuarter = mt.Resolution()
	}

	tempoEntries = append(tempoEntries, tempo.Entry{Tick: 0, MicrosecondsPerQuarter: 500000})
	haveExplicitInitialTempo := false

	tracks = make([]Track, 0, len(s.Tracks))
	for ti, trk := range s.Tracks {
		var currentTick int64
		var midiChannel uint8
		haveChannel := false
		track := Track{Index: ti}

		for _, ev := range trk {
			currentTick += int64(ev.Delta)
			msg := ev.Message

			if isMarkerMeta(msg) && !haveMarker {
				markerTick = uint32(currentTick)
				haveMarker = true
				continue
			}

			if isTempoMeta(msg) {
				micros := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if micros > 0 {
					if currentTick == 0 && !haveExplicitInitialTempo {
						tempoEntries[0].MicrosecondsPerQuarter = micros
						haveExplicitInitialTempo = true
					} else {
						tempoEntries = append(tempoEntries, tempo.Entry{
							Tick:                   uint32(currentTick),
							MicrosecondsPerQuarter: micros,
						})
					}
				}
				continue
			}

			if len(msg) < 3 {
				continue
			}
			status := msg[0]
			note := msg[1]
			velocity := msg[2]

			if status>>4 == 0x9 {
				if !haveChannel {
					midiChannel = status & 0x0F
					haveChannel = true
				}
				kind := RawNoteOn
				if velocity == 0 {
					kind = RawNoteOff
				}
				track.Events = append(track.Events, RawEvent{Tick: uint32(currentTick), Kind: kind, Note: note, Velocity: velocity})
			} else if status>>4 == 0x8 {
				if !haveChannel {
					midiChannel = status & 0x0F
					haveChannel = true
				}
				track.Events = append(track.Events, RawEvent{Tick: uint32(currentTick), Kind: RawNoteOff, Note: note})
			}
		}

		track.MIDIChannel = midiChannel
		tracks = append(tracks, track)
	}

	return tracks, ticksPerQuarter, sortedTempoEntries(tempoEntries), markerTick, haveMarker, nil
}

func isTempoMeta(msg []byte) bool {
	return len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03
}

// isMarkerMeta reports a marker meta-event (0xFF 0x06), the named
// loop-point convention several trackers emit a single instance of at the
// start of a song's repeating section.
func isMarkerMeta(msg []byte) bool {
	return len(msg) >= 2 && msg[0] == 0xFF && msg[1] == 0x06
}

// sortedTempoEntries returns tempo entries ordered by tick, which
// tempo.Build requires; tempo changes across tracks in a format-1 MIDI
// file are not guaranteed to already be globally ordered once merged.
func sortedTempoEntries(entries []tempo.Entry) []tempo.Entry {
	out := append([]tempo.Entry(nil), entries...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Tick < out[j-1].Tick; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
