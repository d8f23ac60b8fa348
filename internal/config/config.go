// Package config holds the compiler-wide configuration exposed rather
// than hard-coded: maximum pattern length, arpeggiation rate, ADSR
// defaults, polyphony-reduction thresholds, sample cap, and mapper choice.
//
// Loaded from an optional TOML file with github.com/BurntSushi/toml and
// overridable by CLI flags in cmd/nesrom, matching cobra's usual
// flag-overrides-file-overrides-default precedence.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// PolyphonyStrategy selects one of the three polyphony-reduction
// strategies.
type PolyphonyStrategy string

const (
	StrategyPriority       PolyphonyStrategy = "priority"
	StrategyPitchRangeSplit PolyphonyStrategy = "pitch_range_split"
	StrategyArpeggiate     PolyphonyStrategy = "arpeggiate"
)

// ADSR holds one channel's default envelope shape, in frames: a
// configurable attack / decay / sustain-level / release.
type ADSR struct {
	AttackFrames  int     `toml:"attack_frames"`
	DecayFrames   int     `toml:"decay_frames"`
	SustainLevel  float64 `toml:"sustain_level"` // 0..1, fraction of peak volume
	ReleaseFrames int     `toml:"release_frames"`
}

// Mapper names the cartridge mapper the Code Emitter targets. MMC1 is
// the default.
type Mapper string

const (
	MapperMMC1 Mapper = "mmc1"
)

// Config is the full compiler configuration.
type Config struct {
	// Channel Mapper.
	PitchSplitThreshold uint8             `toml:"pitch_split_threshold"` // default 60
	ArpeggiationRate    int               `toml:"arpeggiation_rate"`     // frames per note, default 1
	TriangleStrategy    PolyphonyStrategy `toml:"triangle_strategy"`     // default "priority"
	Pulse1Strategy      PolyphonyStrategy `toml:"pulse1_strategy"`
	Pulse2Strategy      PolyphonyStrategy `toml:"pulse2_strategy"`

	// Frame Generator.
	PulseADSR    ADSR `toml:"pulse_adsr"`
	NoiseADSR    ADSR `toml:"noise_adsr"`
	UseADSR      bool `toml:"use_adsr"` // false => constant-volume envelope (default)

	// Pattern Detector.
	MinPatternLength int  `toml:"min_pattern_length"` // default 3
	MaxPatternLength int  `toml:"max_pattern_length"` // default 32
	PerRefOverhead   int  `toml:"per_reference_overhead"`
	SampleCap        int  `toml:"sample_cap"` // default 15000 frames
	EnableVariations bool `toml:"enable_variations"`
	MaxTranspose     int  `toml:"max_transpose"`  // default 12
	MaxVolumeDelta   int  `toml:"max_volume_delta"` // default 4
	WorkerChunkTimeoutSeconds int `toml:"worker_chunk_timeout_seconds"` // default 30
	MaxWorkers       int  `toml:"max_workers"`

	// Code Emitter.
	Mapper           Mapper `toml:"mapper"`
	PRGBankCountMax  int    `toml:"prg_bank_count_max"` // 128 KiB / 16 KiB = 8 banks default
	DebugOverlay     bool   `toml:"debug_overlay"`
	DisablePatterns  bool   `toml:"disable_patterns"`
}

// Default returns the compiler's default configuration.
func Default() Config {
	return Config{
		PitchSplitThreshold: 60,
		ArpeggiationRate:    1,
		TriangleStrategy:    StrategyPriority,
		Pulse1Strategy:      StrategyPriority,
		Pulse2Strategy:      StrategyPriority,

		PulseADSR: ADSR{AttackFrames: 2, DecayFrames: 4, SustainLevel: 0.75, ReleaseFrames: 6},
		NoiseADSR: ADSR{AttackFrames: 0, DecayFrames: 2, SustainLevel: 0.6, ReleaseFrames: 4},
		UseADSR:   false,

		MinPatternLength: 3,
		MaxPatternLength: 32,
		PerRefOverhead:   2,
		SampleCap:        15000,
		EnableVariations: false,
		MaxTranspose:     12,
		MaxVolumeDelta:   4,
		WorkerChunkTimeoutSeconds: 30,
		MaxWorkers:       0, // 0 => runtime.NumCPU()

		Mapper:          MapperMMC1,
		PRGBankCountMax: 8, // 128 KiB / 16 KiB banks
		DebugOverlay:    false,
		DisablePatterns: false,
	}
}

// Load reads a TOML config file on top of Default(), so an absent or
// partial file still yields sensible defaults for unset fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %q: %w", path, err)
	}
	return cfg, nil
}
