package emit

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/pattern"
	"github.com/mzanolli/nesrom/internal/songmodule"
)

// asmData is the template context for the CA65 assembly source.
type asmData struct {
	Mapper         string
	MMC1Control32K uint8
	PRGBanks       int
	Patterns       []patternRecord
	Channels       []channelRecord
	HasLoop        bool
	LoopFrame      uint32
	TotalFrames    uint32
	DebugOverlay   bool

	PulseTimerLo    []byte
	PulseTimerHi    []byte
	TriangleTimerLo []byte
	TriangleTimerHi []byte

	DPCMSamples []dpcmSampleRecord
}

type patternRecord struct {
	ID     uint32
	Length uint16
	Bytes  []byte
}

type referenceRecord struct {
	FrameDelta  uint32
	PatternID   uint32
	Transpose   int8
	VolumeDelta int8
}

type residualRecord struct {
	FrameDelta uint32
	Bytes      []byte
}

// channelKind distinguishes the four register layouts a channelRecord's
// data can take: Pulse1/Pulse2 and Triangle share a layout (note, timer
// lo/hi, control), Noise has its own period-band reconstruction rule,
// and DPCM's first byte is a sample index (with a start flag) rather than
// a note.
const (
	kindPulse = iota
	kindTriangle
	kindNoise
	kindDPCM
)

type channelRecord struct {
	Name       string
	Kind       int
	HasVolume  bool
	ControlAddr,
	TimerLoAddr,
	TimerHiAddr uint16
	References []referenceRecord
	Residuals  []residualRecord
}

// dpcmSampleRecord is one DPCM sample's emitted form: the raw delta
// bytes plus the $4013 length byte (byte count / 16) precomputed in Go;
// the $4012 address byte is a link-time expression over the sample's
// label.
type dpcmSampleRecord struct {
	Index      int
	LengthByte byte
	Data       []byte
}

// asmTemplate emits data tables, a frame-driven driver routine, a reset
// handler, and interrupt vectors. Each record shape (length-prefixed
// pattern records, delta-encoded reference/residual lists terminated by a
// sentinel) is spelled out as a named CA65 directive block so the driver
// routine below can walk them with simple indexed addressing. The driver
// itself walks all channels through one shared routine indexed by
// channel number in X, the zero-page-array-of-structs idiom common to
// small NES sound drivers, rather than one generated proc per channel.
var templateFuncs = template.FuncMap{"bytesToHex": bytesToHex}

var asmTemplate = template.Must(template.New("song.asm").Funcs(templateFuncs).Parse(`; Generated NES music ROM. Do not edit by hand.
.segment "HEADER"
.byte "NES", $1A
.byte {{.PRGBanks}} ; 16 KiB PRG bank count
.byte $00 ; CHR-RAM, no CHR-ROM banks
.byte $10 ; mapper {{.Mapper}} low nibble, horizontal mirroring
.byte $00
.byte $00, $00, $00, $00, $00, $00, $00, $00

mmc1_control_32k = ${{printf "%02X" .MMC1Control32K}}
num_channels     = {{len .Channels}}

.segment "RODATA"

song_total_frames: .word {{.TotalFrames}}
song_has_loop:     .byte {{if .HasLoop}}1{{else}}0{{end}}
song_loop_frame:   .word {{.LoopFrame}}

; 128-entry timer tables split into low/high bytes, identical to
; apu.TimerFor's pulse/triangle tables. The driver re-derives a
; transposed cell's timer from these at runtime instead of storing one
; timer per possible transpose, since pattern bytes only ever carry the
; untransposed note.
pulse_timer_lo:
	.byte {{bytesToHex .PulseTimerLo}}
pulse_timer_hi:
	.byte {{bytesToHex .PulseTimerHi}}
triangle_timer_lo:
	.byte {{bytesToHex .TriangleTimerLo}}
triangle_timer_hi:
	.byte {{bytesToHex .TriangleTimerHi}}

pattern_library:
{{- range .Patterns}}
pattern_{{.ID}}:
	.word {{.Length}}
	.byte {{bytesToHex .Bytes}}
{{- end}}

{{range .Channels}}
{{.Name}}_references:
{{- range .References}}
	.word {{.FrameDelta}}
	.word pattern_{{.PatternID}}
	.byte {{.Transpose}}, {{.VolumeDelta}}
{{- end}}
	.word $FFFF ; sentinel

{{.Name}}_residual:
{{- range .Residuals}}
	.word {{.FrameDelta}}
	.byte {{bytesToHex .Bytes}}
{{- end}}
	.word $FFFF ; sentinel
{{end}}

; --- Per-channel driver tables ------------------------------------------
; Parallel arrays indexed by channel number (0..num_channels-1, in the
; same order as the channel blocks above), so advance_channel below can
; be one shared routine instead of one generated proc per channel.
ref_table_lo:
{{- range .Channels}}
	.byte <{{.Name}}_references
{{- end}}
ref_table_hi:
{{- range .Channels}}
	.byte >{{.Name}}_references
{{- end}}
res_table_lo:
{{- range .Channels}}
	.byte <{{.Name}}_residual
{{- end}}
res_table_hi:
{{- range .Channels}}
	.byte >{{.Name}}_residual
{{- end}}
channel_ctrl_lo:
{{- range .Channels}}
	.byte <${{printf "%04X" .ControlAddr}}
{{- end}}
channel_ctrl_hi:
{{- range .Channels}}
	.byte >${{printf "%04X" .ControlAddr}}
{{- end}}
channel_timerlo_lo:
{{- range .Channels}}
	.byte <${{printf "%04X" .TimerLoAddr}}
{{- end}}
channel_timerlo_hi:
{{- range .Channels}}
	.byte >${{printf "%04X" .TimerLoAddr}}
{{- end}}
channel_timerhi_lo:
{{- range .Channels}}
	.byte <${{printf "%04X" .TimerHiAddr}}
{{- end}}
channel_timerhi_hi:
{{- range .Channels}}
	.byte >${{printf "%04X" .TimerHiAddr}}
{{- end}}
channel_kind:
{{- range .Channels}}
	.byte {{.Kind}}
{{- end}}
channel_has_volume:
{{- range .Channels}}
	.byte {{if .HasVolume}}1{{else}}0{{end}}
{{- end}}

{{if .DPCMSamples}}
; DPCM sample address/length tables, indexed by sample number: $4012
; takes (address - $C000) / 64 and $4013 takes byte_length / 16. The
; address bytes resolve from the sample labels at link time; samples
; live in their own 64-byte-aligned segment.
dpcm_addr_table:
{{- range .DPCMSamples}}
	.byte <((dpcm_sample_{{.Index}} - $C000) / 64)
{{- end}}
dpcm_len_table:
{{- range .DPCMSamples}}
	.byte {{.LengthByte}}
{{- end}}

.segment "DPCM"
{{- range .DPCMSamples}}
.align 64
dpcm_sample_{{.Index}}:
	.byte {{bytesToHex .Data}}
{{- end}}
{{else}}
dpcm_addr_table: .byte $00
dpcm_len_table:  .byte $00
{{end}}
; --- Driver -----------------------------------------------------------
.segment "CODE"

; nmi_handler runs once per 60 Hz frame: it steps every channel for the
; CURRENT frame_counter value, then advances the counter, so frame 0 is
; played on the very first NMI after music_init.
.proc nmi_handler
	pha
	txa
	pha
	tya
	pha

	lda song_done
	bne nmi_exit

	ldx #0
nmi_channel_loop:
	cpx #num_channels
	beq nmi_channel_loop_done
	jsr advance_channel
	inx
	jmp nmi_channel_loop
nmi_channel_loop_done:
{{if .DebugOverlay}}	jsr debug_overlay_render
{{end}}
	inc frame_counter
	bne check_song_end
	inc frame_counter+1
check_song_end:
	lda frame_counter
	cmp song_total_frames
	bne nmi_exit
	lda frame_counter+1
	cmp song_total_frames+1
	bne nmi_exit

	lda song_has_loop
	beq song_stop

	; loop: re-seed every cursor at the top of the stream and jump the
	; frame counter to the loop point; records dated before the loop
	; frame drain one per frame until the cursors pass it.
	jsr channels_init
	lda song_loop_frame
	sta frame_counter
	lda song_loop_frame+1
	sta frame_counter+1
	jmp nmi_exit

song_stop:
	lda #$00
	sta $4015
	lda #1
	sta song_done

nmi_exit:
	pla
	tay
	pla
	tax
	pla
	rti
.endproc

; advance_channel steps channel X one frame: if a pattern is actively
; streaming it emits this frame's cell from it, otherwise it checks
; whether a reference or residual entry is due (frame_counter has reached
; its start frame) and starts consuming it. Tone and noise channels write
; timer-low, timer-high, then control, in that fixed order; DPCM writes
; $4010-$4013 only on a cell that starts a sample. Mirrors
; internal/simulate.RegisterWrites.
.proc advance_channel
	lda pat_left_lo,x
	ora pat_left_hi,x
	bne stream_active_cell

	; due when frame_counter >= ref_next (16-bit unsigned)
	lda frame_counter+1
	cmp ref_next_hi,x
	bcc try_residual
	bne ref_due
	lda frame_counter
	cmp ref_next_lo,x
	bcc try_residual
ref_due:
	jmp start_reference

try_residual:
	lda frame_counter+1
	cmp res_next_hi,x
	bcc advance_channel_done
	bne res_due
	lda frame_counter
	cmp res_next_lo,x
	bcc advance_channel_done
res_due:
	jmp emit_residual

advance_channel_done:
	rts

start_reference:
	; ref_ptr,x addresses the 6-byte reference record due this frame:
	; bytes 0-1 (already consumed into ref_next) are the frame delta,
	; bytes 2-3 the pattern's address, byte 4 transpose, byte 5 volume
	; delta.
	lda ref_ptr_lo,x
	sta scratch_ptr
	lda ref_ptr_hi,x
	sta scratch_ptr+1

	ldy #2
	lda (scratch_ptr),y
	sta scratch_ptr2
	iny
	lda (scratch_ptr),y
	sta scratch_ptr2+1
	iny
	lda (scratch_ptr),y
	sta cur_transpose,x
	iny
	lda (scratch_ptr),y
	sta cur_voldelta,x

	; the pattern record is length-prefixed: its first word is the cell
	; count, immediately followed by that many 4-byte cells.
	ldy #0
	lda (scratch_ptr2),y
	sta pat_left_lo,x
	iny
	lda (scratch_ptr2),y
	sta pat_left_hi,x
	clc
	lda scratch_ptr2
	adc #2
	sta pat_ptr_lo,x
	lda scratch_ptr2+1
	adc #0
	sta pat_ptr_hi,x

	; advance past the consumed record and pre-read the next one's frame
	; delta, accumulating it into ref_next (or latching the $FFFF
	; sentinel so an exhausted channel never comes due again).
	clc
	lda scratch_ptr
	adc #6
	sta ref_ptr_lo,x
	sta scratch_ptr
	lda scratch_ptr+1
	adc #0
	sta ref_ptr_hi,x
	sta scratch_ptr+1

	ldy #0
	lda (scratch_ptr),y
	sta temp_delta_lo
	iny
	lda (scratch_ptr),y
	sta temp_delta_hi
	lda temp_delta_lo
	cmp #$FF
	bne ref_not_sentinel
	lda temp_delta_hi
	cmp #$FF
	bne ref_not_sentinel
	lda #$FF
	sta ref_next_lo,x
	sta ref_next_hi,x
	jmp stream_active_cell
ref_not_sentinel:
	clc
	lda ref_next_lo,x
	adc temp_delta_lo
	sta ref_next_lo,x
	lda ref_next_hi,x
	adc temp_delta_hi
	sta ref_next_hi,x
	jmp stream_active_cell

emit_residual:
	lda res_ptr_lo,x
	sta scratch_ptr
	lda res_ptr_hi,x
	sta scratch_ptr+1

	; a residual record is [frame_delta:word][cell:4 bytes], stored
	; exactly as it plays: residual frames never carry a transpose or
	; volume delta.
	ldy #2
	lda (scratch_ptr),y
	sta write_byte0
	iny
	lda (scratch_ptr),y
	sta write_byte1
	iny
	lda (scratch_ptr),y
	sta write_byte2
	iny
	lda (scratch_ptr),y
	sta write_byte3
	jsr write_cell_raw

	clc
	lda scratch_ptr
	adc #6
	sta res_ptr_lo,x
	sta scratch_ptr
	lda scratch_ptr+1
	adc #0
	sta res_ptr_hi,x
	sta scratch_ptr+1

	ldy #0
	lda (scratch_ptr),y
	sta temp_delta_lo
	iny
	lda (scratch_ptr),y
	sta temp_delta_hi
	lda temp_delta_lo
	cmp #$FF
	bne res_not_sentinel
	lda temp_delta_hi
	cmp #$FF
	bne res_not_sentinel
	lda #$FF
	sta res_next_lo,x
	sta res_next_hi,x
	rts
res_not_sentinel:
	clc
	lda res_next_lo,x
	adc temp_delta_lo
	sta res_next_lo,x
	lda res_next_hi,x
	adc temp_delta_hi
	sta res_next_hi,x
	rts

stream_active_cell:
	lda pat_ptr_lo,x
	sta scratch_ptr
	lda pat_ptr_hi,x
	sta scratch_ptr+1

	ldy #0
	lda (scratch_ptr),y
	sta write_byte0
	iny
	lda (scratch_ptr),y
	sta write_byte1
	iny
	lda (scratch_ptr),y
	sta write_byte2
	iny
	lda (scratch_ptr),y
	sta write_byte3

	lda cur_transpose,x
	ora cur_voldelta,x
	beq emit_pattern_cell
	jsr apply_variation
emit_pattern_cell:
	jsr write_cell_raw

	clc
	lda pat_ptr_lo,x
	adc #4
	sta pat_ptr_lo,x
	lda pat_ptr_hi,x
	adc #0
	sta pat_ptr_hi,x

	lda pat_left_lo,x
	bne dec_pat_left_lo
	dec pat_left_hi,x
dec_pat_left_lo:
	dec pat_left_lo,x
	rts
.endproc

; apply_variation rewrites the staged write_byte0..3 for a transpose
; and/or volume delta carried by the active reference. Silent cells and
; DPCM cells never vary: silence stays canonical ($30/$00) regardless of
; the reference's deltas, and samples cannot be transposed or re-leveled.
.proc apply_variation
	lda channel_kind,x
	cmp #3
	beq av_done

	lda channel_kind,x
	bne av_nonpulse_silent_check
	lda write_byte3
	cmp #$30
	beq av_done
	bne av_go
av_nonpulse_silent_check:
	lda write_byte3
	beq av_done
av_go:

	; transpose the 7-bit note, preserving the retrigger flag in bit 7
	lda write_byte0
	and #$80
	sta scratch_flag
	lda write_byte0
	and #$7F
	clc
	adc cur_transpose,x
	and #$7F
	ora scratch_flag
	sta write_byte0

	lda channel_kind,x
	cmp #2
	beq av_noise

	lda write_byte0
	and #$7F
	tay
	lda channel_kind,x
	cmp #1
	beq av_triangle_table
	lda pulse_timer_lo,y
	sta write_byte1
	lda pulse_timer_hi,y
	jmp av_store_timer_hi
av_triangle_table:
	lda triangle_timer_lo,y
	sta write_byte1
	lda triangle_timer_hi,y
av_store_timer_hi:
	ora #$08 ; re-apply the length-counter load the cell encoder bakes in
	sta write_byte2
	jmp av_volume

av_noise:
	; Noise has no timer-by-note table: its period band is derived
	; directly from the note, mirroring apu.NoiseBandFor.
	lda write_byte0
	and #$7F
	lsr a
	lsr a
	lsr a
	sta scratch_byte
	lda #15
	sec
	sbc scratch_byte
	sta write_byte1
	lda #$08
	sta write_byte2

av_volume:
	lda channel_has_volume,x
	beq av_done

	lda write_byte3
	and #$0F
	clc
	adc cur_voldelta,x
	bmi av_clamp_zero
	cmp #16
	bcc av_volume_store
	lda #15
	jmp av_volume_store
av_clamp_zero:
	lda #0
av_volume_store:
	sta scratch_byte
	lda write_byte3
	and #$F0
	ora scratch_byte
	sta write_byte3

av_done:
	rts
.endproc

; write_cell_raw writes the staged write_byte0..3 to channel X's
; registers through indirect pointers built from the channel_* address
; tables, so one routine serves every channel regardless of its fixed
; $4000-series base address.
.proc write_cell_raw
	lda channel_kind,x
	cmp #3
	beq write_dpcm

	; tone/noise layout: [note+retrigger][timer_lo][timer_hi][control]
	lda channel_timerlo_lo,x
	sta scratch_ptr2
	lda channel_timerlo_hi,x
	sta scratch_ptr2+1
	ldy #0
	lda write_byte1
	sta (scratch_ptr2),y

	; timer-high doubles as the length-counter load and resets the tone
	; phase when rewritten; it is skipped while unchanged unless the
	; cell's retrigger bit (note byte bit 7) demands the rewrite.
	lda write_byte0
	bmi timer_hi_write
	lda write_byte2
	cmp last_timer_hi,x
	beq timer_hi_done
timer_hi_write:
	lda channel_timerhi_lo,x
	sta scratch_ptr2
	lda channel_timerhi_hi,x
	sta scratch_ptr2+1
	lda write_byte2
	sta (scratch_ptr2),y
	sta last_timer_hi,x
timer_hi_done:

	lda channel_ctrl_lo,x
	sta scratch_ptr2
	lda channel_ctrl_hi,x
	sta scratch_ptr2+1
	lda write_byte3
	sta (scratch_ptr2),y
{{if .DebugOverlay}}	lda write_byte3
	sta dbg_activity,x
{{end}}	rts

write_dpcm:
	; dpcm layout: [sample_index+start][direct_load][control][unused];
	; $4012/$4013 come from the per-sample tables, and a cell without
	; the start bit leaves the playing sample alone.
	lda write_byte0
	bpl dpcm_done
	and #$7F
	tay
	lda write_byte2
	sta $4010
	lda write_byte1
	sta $4011
	lda dpcm_addr_table,y
	sta $4012
	lda dpcm_len_table,y
	sta $4013
	; edge the DPCM enable bit so the unit reloads the sample address
	lda #%00001111
	sta $4015
	lda #%00011111
	sta $4015
{{if .DebugOverlay}}	lda write_byte2
	sta dbg_activity,x
{{end}}dpcm_done:
	rts
.endproc

; channels_init seeds every channel's decode cursor from ref_table/
; res_table: ref_ptr/res_ptr point at the first record, and ref_next/
; res_next are pre-loaded with that record's (absolute, since it is the
; first) frame delta.
.proc channels_init
	ldx #0
ci_loop:
	cpx #num_channels
	beq ci_done

	lda ref_table_lo,x
	sta ref_ptr_lo,x
	lda ref_table_hi,x
	sta ref_ptr_hi,x
	lda ref_ptr_lo,x
	sta scratch_ptr
	lda ref_ptr_hi,x
	sta scratch_ptr+1
	ldy #0
	lda (scratch_ptr),y
	sta ref_next_lo,x
	iny
	lda (scratch_ptr),y
	sta ref_next_hi,x

	lda res_table_lo,x
	sta res_ptr_lo,x
	lda res_table_hi,x
	sta res_ptr_hi,x
	lda res_ptr_lo,x
	sta scratch_ptr
	lda res_ptr_hi,x
	sta scratch_ptr+1
	ldy #0
	lda (scratch_ptr),y
	sta res_next_lo,x
	iny
	lda (scratch_ptr),y
	sta res_next_hi,x

	lda #0
	sta pat_left_lo,x
	sta pat_left_hi,x
	sta cur_transpose,x
	sta cur_voldelta,x
	lda #$FF
	sta last_timer_hi,x

	inx
	jmp ci_loop
ci_done:
	rts
.endproc

.proc reset_handler
	sei
	cld
	ldx #$40
	stx $4017 ; APU frame IRQ off
	ldx #$FF
	txs
	inx
	stx $2000 ; NMI off while initialising
	stx $2001
	stx $4010 ; DPCM IRQ off

:	bit $2002
	bpl :-

	lda #0
	tax
clear_ram:
	sta $0000,x
	sta $0100,x
	sta $0200,x
	sta $0300,x
	sta $0400,x
	sta $0500,x
	sta $0600,x
	sta $0700,x
	inx
	bne clear_ram

:	bit $2002
	bpl :-

	; MMC1 control: reset the shift register, then clock the five
	; control bits in serially, LSB first.
	lda #$80
	sta $8000
	lda #mmc1_control_32k
	.repeat 5
	sta $8000
	lsr a
	.endrepeat

	lda #%00001111 ; enable pulse 1/2, triangle, noise
	sta $4015

	jsr music_init

	lda #$80 ; NMI on
	sta $2000

:	jmp :-
.endproc

.proc music_init
	lda #0
	sta frame_counter
	sta frame_counter+1
	sta song_done
	jsr channels_init
	rts
.endproc

.proc irq_handler
	rti
.endproc

{{if .DebugOverlay}}
; debug_overlay_render repaints one nametable row with per-channel
; activity (the high nibble of each channel's most recent control/rate
; write) plus the low byte of the frame counter. Runs inside vblank,
; after the frame's register writes; never touches an APU register.
.proc debug_overlay_render
	lda $2002
	lda #$20
	sta $2006
	lda #$62
	sta $2006
	ldx #0
ov_loop:
	cpx #num_channels
	beq ov_frame
	lda dbg_activity,x
	lsr a
	lsr a
	lsr a
	lsr a
	sta $2007
	inx
	jmp ov_loop
ov_frame:
	lda frame_counter
	sta $2007
	lda #0
	sta $2005
	sta $2005
	rts
.endproc
{{end}}

.segment "ZEROPAGE"
frame_counter:   .res 2
song_done:       .res 1
ref_ptr_lo:      .res num_channels
ref_ptr_hi:      .res num_channels
ref_next_lo:     .res num_channels
ref_next_hi:     .res num_channels
res_ptr_lo:      .res num_channels
res_ptr_hi:      .res num_channels
res_next_lo:     .res num_channels
res_next_hi:     .res num_channels
pat_ptr_lo:      .res num_channels
pat_ptr_hi:      .res num_channels
pat_left_lo:     .res num_channels
pat_left_hi:     .res num_channels
cur_transpose:   .res num_channels
cur_voldelta:    .res num_channels
last_timer_hi:   .res num_channels
scratch_ptr:     .res 2
scratch_ptr2:    .res 2
scratch_byte:    .res 1
scratch_flag:    .res 1
temp_delta_lo:   .res 1
temp_delta_hi:   .res 1
write_byte0:     .res 1
write_byte1:     .res 1
write_byte2:     .res 1
write_byte3:     .res 1
{{if .DebugOverlay}}dbg_activity:    .res num_channels
{{end}}
.segment "VECTORS"
.addr nmi_handler
.addr reset_handler
.addr irq_handler
`))

func bytesToHex(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("$%02X", v)
	}
	if len(parts) == 0 {
		return "$00"
	}
	return strings.Join(parts, ", ")
}

// cellBytes encodes one apu.Cell in a fixed 4-byte record. Tone/Noise
// channels store [note, timer-low, timer-high, control]: the note byte
// carries the retrigger flag in bit 7 (MIDI notes fit in 7 bits), and a
// sounding cell's timer-high byte carries the length-counter load bits
// the driver writes verbatim. DPCM cells store [sample-index+start,
// direct-load, control, unused]: bit 7 of the first byte marks the
// note's start frame, where the driver reloads $4010-$4013 from the
// sample tables and restarts the sample.
func cellBytes(c apu.Cell) []byte {
	if c.SampleIndex >= 0 {
		b0 := byte(c.SampleIndex) & 0x7F
		if c.Retrigger {
			b0 |= 0x80
		}
		return []byte{b0, apu.DPCMDirectLoad, c.ControlByte, 0}
	}
	noteByte := c.Note & 0x7F
	if c.Retrigger {
		noteByte |= 0x80
	}
	timerHi := byte(c.Timer >> 8)
	if !c.Silent {
		timerHi |= lengthCounterLoad
	}
	return []byte{noteByte, byte(c.Timer), timerHi, c.ControlByte}
}

// lengthCounterLoad is the length-counter index baked into every
// sounding cell's timer-high byte; note durations are driven by the
// reference/residual stream, so a single long-enough load serves every
// note.
const lengthCounterLoad = 0x08

// channelKindFor and its address-table counterpart let EmitASM build the
// generic driver's per-channel metadata rows straight from apu's
// register and capability tables instead of duplicating them.
func channelKindFor(c apu.Channel) int {
	switch c {
	case apu.Triangle:
		return kindTriangle
	case apu.Noise:
		return kindNoise
	case apu.Dpcm:
		return kindDPCM
	default:
		return kindPulse
	}
}

// EmitASM renders a SongModule to CA65 assembly text for a cartridge
// with the given PRG bank count (see PRGBankCount).
func EmitASM(sm *songmodule.SongModule, mapperName string, prgBanks int, debugOverlay bool) (string, error) {
	var patterns []patternRecord
	for _, p := range sm.Library.Patterns() {
		var b []byte
		for _, c := range p.Cells {
			b = append(b, cellBytes(c)...)
		}
		patterns = append(patterns, patternRecord{ID: p.ID, Length: uint16(len(p.Cells)), Bytes: b})
	}

	order := []apu.Channel{apu.Pulse1, apu.Pulse2, apu.Triangle, apu.Noise, apu.Dpcm}
	var channels []channelRecord
	for _, c := range order {
		cd, ok := sm.ChannelByID(c)
		if !ok {
			continue
		}
		regs := apu.RegisterAddressesFor(c)
		channels = append(channels, channelRecord{
			Name:        strings.ToLower(c.String()),
			Kind:        channelKindFor(c),
			HasVolume:   apu.HasVolumeControl(c),
			ControlAddr: regs.Control,
			TimerLoAddr: regs.TimerLo,
			TimerHiAddr: regs.TimerHi,
			References:  toReferenceRecords(cd.Compressed.References),
			Residuals:   toResidualRecords(cd.Compressed.Residual),
		})
	}

	var dpcmRecords []dpcmSampleRecord
	for i, s := range sm.DPCMSamples {
		dpcmRecords = append(dpcmRecords, dpcmSampleRecord{
			Index:      i,
			LengthByte: byte(len(s.Data) / 16),
			Data:       s.Data,
		})
	}

	pulseLo, pulseHi := make([]byte, 128), make([]byte, 128)
	triLo, triHi := make([]byte, 128), make([]byte, 128)
	for note := 0; note < 128; note++ {
		pt := apu.TimerFor(apu.Pulse1, uint8(note))
		tt := apu.TimerFor(apu.Triangle, uint8(note))
		pulseLo[note], pulseHi[note] = byte(pt), byte(pt>>8)
		triLo[note], triHi[note] = byte(tt), byte(tt>>8)
	}

	data := asmData{
		Mapper:          mapperName,
		MMC1Control32K:  MMC1ControlValue32KiB,
		PRGBanks:        prgBanks,
		Patterns:        patterns,
		Channels:        channels,
		HasLoop:         sm.HasLoop,
		LoopFrame:       sm.LoopFrame,
		TotalFrames:     sm.TotalFrames,
		DebugOverlay:    debugOverlay,
		PulseTimerLo:    pulseLo,
		PulseTimerHi:    pulseHi,
		TriangleTimerLo: triLo,
		TriangleTimerHi: triHi,
		DPCMSamples:     dpcmRecords,
	}

	var out strings.Builder
	if err := asmTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render assembly: %w", err)
	}
	return out.String(), nil
}

// EncodedSize computes the actual PRG-ROM footprint of the data EmitASM
// renders: pattern bytes (each prefixed by its 2-byte length) plus each
// channel's 6-byte reference and residual records, including their
// sentinels. This is independent of how verbose the rendered assembly
// text is (labels, mnemonics, comments), which is why callers sizing the
// ROM must use this (plus DriverFootprint) instead of the length of
// EmitASM's output.
func EncodedSize(sm *songmodule.SongModule) int {
	size := 0
	for _, p := range sm.Library.Patterns() {
		size += 2 // length prefix
		for _, c := range p.Cells {
			size += len(cellBytes(c))
		}
	}
	for _, c := range apu.All {
		cd, ok := sm.ChannelByID(c)
		if !ok {
			continue
		}
		size += len(cd.Compressed.References)*6 + 2 // + sentinel
		size += len(cd.Compressed.Residual)*6 + 2   // + sentinel
	}
	for _, s := range sm.DPCMSamples {
		size += ((len(s.Data)+63)/64)*64 + 2 // 64-byte-aligned sample + addr/len table bytes
	}
	return size
}

func toReferenceRecords(refs []pattern.Reference) []referenceRecord {
	sorted := append([]pattern.Reference(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	out := make([]referenceRecord, len(sorted))
	var prevFrame uint32
	for i, r := range sorted {
		delta := r.Frame
		if i > 0 {
			delta = r.Frame - prevFrame
		}
		out[i] = referenceRecord{FrameDelta: delta, PatternID: r.PatternID, Transpose: r.Transpose, VolumeDelta: r.VolumeDelta}
		prevFrame = r.Frame
	}
	return out
}

func toResidualRecords(entries []pattern.ResidualEntry) []residualRecord {
	out := make([]residualRecord, len(entries))
	var prevFrame uint32
	for i, e := range entries {
		delta := e.Frame
		if i > 0 {
			delta = e.Frame - prevFrame
		}
		out[i] = residualRecord{FrameDelta: delta, Bytes: cellBytes(e.Cell)}
		prevFrame = e.Frame
	}
	return out
}
