// Package apu holds the NES APU domain model shared by the Frame
// Generator, Channel Mapper, and Code Emitter: the five-channel tagged
// variant, NTSC pitch tables, register address table, and a small
// per-channel capability set (encode, silence, pitch lookup, volume
// control, register addresses) in place of a class hierarchy.
//
// These tables are process-wide, read-only constants computed once at
// package init; nothing in this package mutates after init.
package apu

// Channel is a tagged variant over the five NES audio channels. Go has no
// sum types, so this is the conventional idiomatic rendition: a small int
// enum dispatched on by a switch in each consumer.
type Channel int

const (
	Pulse1 Channel = iota
	Pulse2
	Triangle
	Noise
	Dpcm
)

func (c Channel) String() string {
	switch c {
	case Pulse1:
		return "Pulse1"
	case Pulse2:
		return "Pulse2"
	case Triangle:
		return "Triangle"
	case Noise:
		return "Noise"
	case Dpcm:
		return "Dpcm"
	default:
		return "Unknown"
	}
}

// All lists the five NES channels in register order, the order the Code
// Emitter's driver writes them in each frame.
var All = [5]Channel{Pulse1, Pulse2, Triangle, Noise, Dpcm}

// RegisterAddresses is the fixed APU register base address per channel.
type RegisterAddresses struct {
	Control uint16 // duty/loop/const-vol/volume (Pulse, Triangle) or control (Noise, DPCM)
	Sweep   uint16 // Pulse only; 0 if not applicable
	TimerLo uint16
	TimerHi uint16 // also carries length-counter-load on Pulse/Triangle/Noise
}

var registerTable = [5]RegisterAddresses{
	Pulse1:   {Control: 0x4000, Sweep: 0x4001, TimerLo: 0x4002, TimerHi: 0x4003},
	Pulse2:   {Control: 0x4004, Sweep: 0x4005, TimerLo: 0x4006, TimerHi: 0x4007},
	Triangle: {Control: 0x4008, Sweep: 0, TimerLo: 0x400A, TimerHi: 0x400B},
	Noise:    {Control: 0x400C, Sweep: 0, TimerLo: 0x400E, TimerHi: 0x400F},
	Dpcm:     {Control: 0x4010, Sweep: 0, TimerLo: 0x4012, TimerHi: 0x4013}, // TimerLo carries direct-load at $4011 in practice; see emit package
}

// RegisterAddressesFor returns the register base addresses for one channel.
func RegisterAddressesFor(c Channel) RegisterAddresses {
	return registerTable[c]
}

// StatusBit is the channel-enable bit position in $4015.
func StatusBit(c Channel) uint8 {
	return uint8(c)
}

// HasVolumeControl reports whether a channel has an independent volume
// field. Triangle has none; its audibility is controlled solely by the
// linear-counter/length mechanism.
func HasVolumeControl(c Channel) bool {
	return c != Triangle && c != Dpcm
}

// SilentControlByte is the canonical control-byte value a channel emits
// when nothing is sounding. Triangle's silent value is $00, not $80:
// $80 would leave the channel audible via its linear counter.
func SilentControlByte(c Channel) uint8 {
	switch c {
	case Triangle:
		return 0x00
	case Pulse1, Pulse2:
		return 0x30
	default:
		return 0x00
	}
}

// PlayableRange gives the lowest/highest MIDI note each tone channel can
// represent given its 11-bit timer range. DPCM and Noise are driven by
// sample/period index rather than a MIDI-note range, so they return
// (0, 127) as a non-constraining range.
func PlayableRange(c Channel) (low, high uint8) {
	switch c {
	case Pulse1, Pulse2:
		return 33, 108
	case Triangle:
		return 21, 96
	default:
		return 0, 127
	}
}
