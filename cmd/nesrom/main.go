// Package main is the entry point for the nesrom CLI.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
	"github.com/mzanolli/nesrom/internal/emit"
	"github.com/mzanolli/nesrom/internal/pipeline"
	"github.com/mzanolli/nesrom/internal/songmodule"
)

var (
	configPath   string
	dpcmIndex    string
	outDir       string
	noCompress   bool
	debugOverlay bool
	mapperName   string
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nesrom",
	Short: "Compile a Standard MIDI File into an NES music ROM",
	Long: `nesrom compiles a Standard MIDI File into CA65 assembly, an ld65
linker configuration, and an iNES header targeting the MMC1 mapper.

Example:
  nesrom compile song.mid -o build/`,
}

var compileCmd = &cobra.Command{
	Use:   "compile <input.mid>",
	Short: "Compile a MIDI file into a playable NES ROM source tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&outDir, "out", "o", "build", "Output directory for song.asm, linker.cfg, and header.bin")
	compileCmd.Flags().StringVar(&configPath, "config", "", "Optional TOML configuration file")
	compileCmd.Flags().StringVar(&dpcmIndex, "dpcm-index", "", "Optional DPCM sample index JSON document")
	compileCmd.Flags().BoolVar(&noCompress, "no-compress", false, "Disable pattern detection; emit every frame as a residual")
	compileCmd.Flags().BoolVar(&debugOverlay, "debug-overlay", false, "Emit the on-screen debug overlay routine")
	compileCmd.Flags().StringVar(&mapperName, "mapper", "mmc1", "Target cartridge mapper")

	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	midiPath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.DisablePatterns = cfg.DisablePatterns || noCompress
	cfg.DebugOverlay = cfg.DebugOverlay || debugOverlay

	var dpcmSamples []songmodule.DPCMSample
	if dpcmIndex != "" {
		dpcmSamples, err = songmodule.LoadDPCMIndex(dpcmIndex)
		if err != nil {
			return fmt.Errorf("load DPCM index: %w", err)
		}
		slog.Info("loaded DPCM sample index", "path", dpcmIndex, "samples", len(dpcmSamples))
	}

	slog.Info("compiling", "input", midiPath, "mapper", mapperName, "patterns_enabled", !cfg.DisablePatterns)

	sm, diagnostics, err := pipeline.Compile(cmd.Context(), cfg, midiPath, dpcmSamples)
	for _, e := range diagnostics.Entries() {
		slog.Warn(e.String())
	}
	if err != nil {
		return fmt.Errorf("compile %q: %w", midiPath, err)
	}

	prgBanks, err := emit.PRGBankCount(emit.EncodedSize(sm)+emit.DriverFootprint, cfg.PRGBankCountMax)
	if romErr := (*emit.RomSizeExceededError)(nil); errors.As(err, &romErr) && !cfg.DisablePatterns {
		// One retry with the detector tightened: a smaller sample cap and
		// variation merging enabled, per the emitter's size-recovery
		// contract.
		slog.Warn("encoded song exceeds PRG capacity, retrying with aggressive compression",
			"encoded_bytes", romErr.EncodedSize, "prg_capacity", romErr.PRGCapacity)
		retryCfg := cfg
		retryCfg.SampleCap = cfg.SampleCap / 4
		retryCfg.EnableVariations = true

		var retryDiag *diag.Diagnostics
		sm, retryDiag, err = pipeline.Compile(cmd.Context(), retryCfg, midiPath, dpcmSamples)
		if retryDiag != nil {
			for _, e := range retryDiag.Entries() {
				slog.Warn(e.String())
			}
		}
		if err != nil {
			return fmt.Errorf("recompile %q with aggressive compression: %w", midiPath, err)
		}
		prgBanks, err = emit.PRGBankCount(emit.EncodedSize(sm)+emit.DriverFootprint, cfg.PRGBankCountMax)
	}
	if err != nil {
		return fmt.Errorf("size ROM: %w", err)
	}

	asmSource, err := emit.EmitASM(sm, mapperName, prgBanks, cfg.DebugOverlay)
	if err != nil {
		return fmt.Errorf("emit assembly: %w", err)
	}
	header := emit.INESHeader(prgBanks, 1)
	linkerCfg := emit.LinkerConfig(prgBanks)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", outDir, err)
	}
	outputs := []struct {
		name string
		data []byte
	}{
		{"song.asm", []byte(asmSource)},
		{"linker.cfg", []byte(linkerCfg)},
		{"header.bin", header[:]},
	}
	for _, o := range outputs {
		if err := writeFileAtomic(filepath.Join(outDir, o.name), o.data); err != nil {
			return fmt.Errorf("write %s: %w", o.name, err)
		}
	}

	slog.Info("compiled", "total_frames", sm.TotalFrames, "prg_banks", prgBanks, "patterns", len(sm.Library.Patterns()), "out", outDir)
	return nil
}

// writeFileAtomic writes to a temp file in the target directory, then
// renames over the destination, so a failed compile never leaves a
// truncated output behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
