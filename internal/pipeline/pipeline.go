// Package pipeline is the wiring entry point: a small Compile function
// that calls the Tempo Map, Event Normaliser, Channel Mapper, Frame
// Generator, and Pattern Detector in order and is the one place in the
// repository that knows the full stage sequence. Individual stages are
// unit-tested in their own packages; pipeline_test.go exercises the
// whole sequence against concrete end-to-end scenarios.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/channel"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
	"github.com/mzanolli/nesrom/internal/frame"
	"github.com/mzanolli/nesrom/internal/midiin"
	"github.com/mzanolli/nesrom/internal/model"
	"github.com/mzanolli/nesrom/internal/pattern"
	"github.com/mzanolli/nesrom/internal/songmodule"
	"github.com/mzanolli/nesrom/internal/tempo"
)

// Compile runs every stage, in order, over one Standard MIDI File,
// returning the assembled SongModule and its accumulated recoverable
// diagnostics. dpcmSamples is the optional, out-of-band DPCM sample set;
// pass nil when no drum samples are available, in which case every
// percussion track routes to Noise. Cancellation is cooperative at
// stage boundaries: a cancelled ctx aborts between stages, never
// mid-stage, so partial work is discarded without corrupting outputs.
func Compile(ctx context.Context, cfg config.Config, midiPath string, dpcmSamples []songmodule.DPCMSample) (*songmodule.SongModule, *diag.Diagnostics, error) {
	d := diag.New()

	data, err := os.ReadFile(midiPath)
	if err != nil {
		return nil, d, fmt.Errorf("read MIDI file %q: %w", midiPath, err)
	}

	rawTracks, ticksPerQuarter, tempoEntries, markerTick, haveMarker, err := midiin.ReadSMF(data)
	if err != nil {
		return nil, d, fmt.Errorf("parse MIDI: %w", err)
	}

	tm, err := tempo.Build(tempoEntries, ticksPerQuarter)
	if err != nil {
		return nil, d, diag.NewFatal(diag.FatalInvalidTempoMap, diag.StageTempo, midiPath, 0, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, d, err
	}

	tracks, err := normaliseAll(rawTracks, tm, d, dpcmSamples)
	if err != nil {
		return nil, d, err
	}
	if err := ctx.Err(); err != nil {
		return nil, d, err
	}

	assignment, err := channel.Assign(tracks, cfg, d)
	if err != nil {
		return nil, d, fmt.Errorf("assign channels: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, d, err
	}

	timelines, totalFrames := frame.Generate(assignment, dpcmSamples, cfg, d)
	if err := ctx.Err(); err != nil {
		return nil, d, err
	}

	lib := pattern.NewLibrary()
	channelCells := make(map[apu.Channel][]apu.Cell, len(apu.All))
	var channelData []songmodule.ChannelData
	for _, c := range apu.All {
		cells := []apu.Cell(timelines[c])
		channelCells[c] = cells
		compressed := pattern.Detect(lib, cells, cfg, d)
		channelData = append(channelData, songmodule.ChannelData{Channel: c, Compressed: compressed})
	}

	markerFrame := uint32(0)
	if haveMarker {
		markerFrame = tm.TickToFrame(markerTick)
	}

	sm := songmodule.Assemble(lib, channelData, dpcmSamples, totalFrames, channelCells, haveMarker, markerFrame)
	return sm, d, nil
}

func normaliseAll(rawTracks []midiin.Track, tm *tempo.Map, d *diag.Diagnostics, dpcmSamples []songmodule.DPCMSample) ([]channel.TrackInput, error) {
	drumNotes := make(map[uint8]bool, len(dpcmSamples))
	for _, s := range dpcmSamples {
		drumNotes[s.MIDINote] = true
	}

	var tracks []channel.TrackInput
	for _, rt := range rawTracks {
		events, summary, err := midiin.Normalise(rt, tm, d)
		if err != nil {
			return nil, fmt.Errorf("normalise track %d: %w", rt.Index, err)
		}
		if len(events) == 0 {
			continue
		}
		if !summary.IsPercussion && channel.ClassifyPercussion(events, drumNotes) {
			summary.IsPercussion = true
		}
		tracks = append(tracks, channel.TrackInput{
			Events:          events,
			Summary:         summary,
			DPCMSampleIndex: dpcmSampleIndexFor(summary, dpcmSamples),
		})
	}
	return tracks, nil
}

// dpcmSampleIndexFor returns the index into dpcmSamples matching this
// track's lowest percussion pitch (PitchLow), or -1 if none matches; absent a
// match, percussion routes to Noise instead.
func dpcmSampleIndexFor(summary model.TrackSummary, dpcmSamples []songmodule.DPCMSample) int {
	if !summary.IsPercussion {
		return -1
	}
	for i, s := range dpcmSamples {
		if s.MIDINote == summary.PitchLow {
			return i
		}
	}
	return -1
}
