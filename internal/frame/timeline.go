package frame

import (
	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/channel"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
	"github.com/mzanolli/nesrom/internal/model"
	"github.com/mzanolli/nesrom/internal/songmodule"
)

// Timeline is a dense vector of Cells indexed by frame, one per channel.
type Timeline []apu.Cell

// pulseDutyDefault is the 50% duty index (control byte $98: duty=50%,
// const-vol, vol=8).
const pulseDutyDefault = 2

// Generate expands a channel.Assignment into a dense per-channel
// Timeline covering every frame from 0 to the song's end. samples is
// the DPCM sample set DPCM-channel notes resolve against; nil when no
// drum samples are available.
func Generate(assignment channel.Assignment, samples []songmodule.DPCMSample, cfg config.Config, d *diag.Diagnostics) (map[apu.Channel]Timeline, uint32) {
	totalFrames := songLength(assignment)

	out := make(map[apu.Channel]Timeline, len(apu.All))
	for _, c := range apu.All {
		out[c] = generateChannel(c, assignment[c], totalFrames, samples, cfg, d)
	}
	return out, totalFrames
}

func songLength(assignment channel.Assignment) uint32 {
	var max uint32
	for _, events := range assignment {
		for _, e := range events {
			if e.End() > max {
				max = e.End()
			}
		}
	}
	return max
}

func generateChannel(c apu.Channel, events []model.NoteEvent, totalFrames uint32, samples []songmodule.DPCMSample, cfg config.Config, d *diag.Diagnostics) Timeline {
	tl := make(Timeline, totalFrames)
	for i := range tl {
		tl[i] = apu.SilentCell(c)
	}

	if c == apu.Dpcm {
		generateDPCM(tl, events, totalFrames, samples, d)
		return tl
	}

	var prevNote uint8
	havePrevNote := false

	for _, e := range events {
		resolved, shifted, ok := apu.ResolveNote(c, e.MIDINote)
		if !ok {
			d.Add(diag.StageFrame, diag.KindPitchOutOfRange, int(e.Frame),
				"MIDI note %d on channel %s is out of range even after octave shifting; note dropped", e.MIDINote, c)
			continue
		}
		if shifted {
			d.Add(diag.StageFrame, diag.KindPitchOutOfRange, int(e.Frame),
				"MIDI note %d on channel %s octave-shifted to %d to fit playable range", e.MIDINote, c, resolved)
		}

		retrigger := havePrevNote && prevNote == resolved
		havePrevNote = true
		prevNote = resolved

		for f := e.Frame; f < e.End() && f < totalFrames; f++ {
			cell := encodeCell(c, resolved, e.Velocity, f-e.Frame, e.DurationFrames, cfg)
			cell.Retrigger = retrigger && f == e.Frame
			tl[f] = cell
		}
	}

	return tl
}

// generateDPCM fills the DPCM channel's timeline: each note resolves to
// the sample set entry matching its MIDI note, the cell carries that
// sample's library index and $4010 control value, and the note's first
// frame is flagged as the sample start. Notes with no matching sample
// are dropped with a diagnostic.
func generateDPCM(tl Timeline, events []model.NoteEvent, totalFrames uint32, samples []songmodule.DPCMSample, d *diag.Diagnostics) {
	for _, e := range events {
		idx := dpcmSampleFor(samples, e.MIDINote)
		if idx < 0 {
			d.Add(diag.StageFrame, diag.KindOther, int(e.Frame),
				"no DPCM sample for MIDI note %d; note dropped", e.MIDINote)
			continue
		}
		s := samples[idx]
		for f := e.Frame; f < e.End() && f < totalFrames; f++ {
			tl[f] = apu.Cell{
				Note:        e.MIDINote,
				ControlByte: apu.DPCMControlByte(s.RateIndex, s.Loop),
				Retrigger:   f == e.Frame,
				SampleIndex: idx,
			}
		}
	}
}

func dpcmSampleFor(samples []songmodule.DPCMSample, midiNote uint8) int {
	for i, s := range samples {
		if s.MIDINote == midiNote {
			return i
		}
	}
	return -1
}

func encodeCell(c apu.Channel, note, velocity uint8, framesSinceStart, totalDuration uint32, cfg config.Config) apu.Cell {
	switch c {
	case apu.Pulse1, apu.Pulse2:
		return encodePulseCell(note, velocity, framesSinceStart, totalDuration, cfg)
	case apu.Triangle:
		return encodeTriangleCell(note)
	case apu.Noise:
		return encodeNoiseCell(note, velocity, framesSinceStart, totalDuration, cfg)
	default:
		return apu.SilentCell(c)
	}
}

func volumeFor(velocity uint8, framesSinceStart, totalDuration uint32, env config.ADSR, useADSR bool) uint8 {
	if useADSR {
		return VolumeAt(env, framesSinceStart, totalDuration, velocity)
	}
	return ConstantVolume(velocity)
}

func encodePulseCell(note, velocity uint8, framesSinceStart, totalDuration uint32, cfg config.Config) apu.Cell {
	volume := volumeFor(velocity, framesSinceStart, totalDuration, cfg.PulseADSR, cfg.UseADSR)
	control := uint8(pulseDutyDefault<<6) | 0x10 | volume
	return apu.Cell{
		Note:        note,
		Volume:      volume,
		Timer:       apu.TimerFor(apu.Pulse1, note),
		ControlByte: control,
		SampleIndex: -1,
	}
}

func encodeTriangleCell(note uint8) apu.Cell {
	// Continuous linear-counter reload with control flag set: triangle is
	// either sounding at full volume or silent; silence is the dedicated
	// $00 cell from apu.SilentCell, never produced here.
	return apu.Cell{
		Note:        note,
		Volume:      15,
		Timer:       apu.TimerFor(apu.Triangle, note),
		ControlByte: 0xFF,
		SampleIndex: -1,
	}
}

func encodeNoiseCell(note, velocity uint8, framesSinceStart, totalDuration uint32, cfg config.Config) apu.Cell {
	volume := volumeFor(velocity, framesSinceStart, totalDuration, cfg.NoiseADSR, cfg.UseADSR)
	control := uint8(0x10) | volume
	return apu.Cell{
		Note:        note,
		Volume:      volume,
		Timer:       uint16(apu.NoiseBandFor(note)),
		ControlByte: control,
		SampleIndex: -1,
	}
}

