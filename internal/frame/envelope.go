// Package frame implements the Frame Generator: expanding mapped note
// events into a dense 60 Hz timeline of APU register values per channel,
// applying a four-stage attack/decay/sustain/release envelope (or a
// constant-volume default) scaled by MIDI velocity.
package frame

import "github.com/mzanolli/nesrom/internal/config"

// VolumeAt evaluates an ADSR envelope at `framesSinceStart` into a note
// whose total audible duration is `totalDuration` frames. The result is
// the product of the envelope curve and the scaled MIDI velocity,
// clamped to 0..15.
func VolumeAt(env config.ADSR, framesSinceStart, totalDuration uint32, velocity uint8) uint8 {
	scaledVelocity := float64(velocity) / 127.0

	var envelopeFraction float64
	attack := uint32(env.AttackFrames)
	decay := uint32(env.DecayFrames)
	release := uint32(env.ReleaseFrames)
	sustainLevel := env.SustainLevel
	if sustainLevel < 0 {
		sustainLevel = 0
	}
	if sustainLevel > 1 {
		sustainLevel = 1
	}

	releaseStart := uint32(0)
	if totalDuration > release {
		releaseStart = totalDuration - release
	}

	switch {
	case framesSinceStart >= totalDuration:
		envelopeFraction = 0
	case attack > 0 && framesSinceStart < attack:
		envelopeFraction = float64(framesSinceStart+1) / float64(attack)
	case decay > 0 && framesSinceStart < attack+decay:
		progress := float64(framesSinceStart-attack+1) / float64(decay)
		envelopeFraction = 1 - progress*(1-sustainLevel)
	case framesSinceStart >= releaseStart && release > 0 && totalDuration > release:
		progress := float64(framesSinceStart-releaseStart+1) / float64(release)
		start := sustainLevel
		if attack == 0 && decay == 0 {
			start = 1
		}
		envelopeFraction = start * (1 - progress)
	default:
		if attack == 0 && decay == 0 {
			envelopeFraction = 1
		} else {
			envelopeFraction = sustainLevel
		}
	}

	if envelopeFraction < 0 {
		envelopeFraction = 0
	}
	if envelopeFraction > 1 {
		envelopeFraction = 1
	}

	vol := envelopeFraction * scaledVelocity * 15.0
	return clampVolume(vol)
}

// ConstantVolume is the default envelope when ADSR is not configured for
// a channel: velocity scaled directly to 0..15 with no attack/decay/
// release shaping.
func ConstantVolume(velocity uint8) uint8 {
	return clampVolume(float64(velocity) / 127.0 * 15.0)
}

func clampVolume(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return uint8(v + 0.5)
}
