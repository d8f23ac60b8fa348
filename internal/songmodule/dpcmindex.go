package songmodule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// dpcmIndexEntry is the on-disk shape of one DPCM sample index entry: an
// external document mapping a MIDI note to pre-encoded sample bytes
// provided out of band.
type dpcmIndexEntry struct {
	MIDINote  uint8  `json:"midi_note"`
	Name      string `json:"name"`
	File      string `json:"file"` // path to raw DPCM-encoded sample bytes, relative to the index file
	RateIndex uint8  `json:"rate_index"`
	Loop      bool   `json:"loop_flag"`
}

// LoadDPCMIndex reads a DPCM sample index document and the sample bytes
// it references, returning one DPCMSample per entry.
func LoadDPCMIndex(indexPath string) ([]DPCMSample, error) {
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("read DPCM index %q: %w", indexPath, err)
	}

	var entries []dpcmIndexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode DPCM index %q: %w", indexPath, err)
	}

	samples := make([]DPCMSample, 0, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(filepath.Dir(indexPath), e.File))
		if err != nil {
			return nil, fmt.Errorf("read DPCM sample %q for note %d: %w", e.File, e.MIDINote, err)
		}
		samples = append(samples, DPCMSample{
			MIDINote:  e.MIDINote,
			Name:      e.Name,
			Data:      data,
			RateIndex: e.RateIndex,
			Loop:      e.Loop,
		})
	}
	return samples, nil
}
