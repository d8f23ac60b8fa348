package tempo

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBuild_RejectsEmpty(t *testing.T) {
	if _, err := Build(nil, 480); err == nil {
		t.Fatal("expected error for empty tempo entries")
	}
}

func TestBuild_RejectsMissingInitialTempo(t *testing.T) {
	entries := []Entry{{Tick: 10, MicrosecondsPerQuarter: 500000}}
	if _, err := Build(entries, 480); err == nil {
		t.Fatal("expected error when first entry is not at tick 0")
	}
}

func TestBuild_RejectsNonPositiveTempo(t *testing.T) {
	entries := []Entry{{Tick: 0, MicrosecondsPerQuarter: 0}}
	if _, err := Build(entries, 480); err == nil {
		t.Fatal("expected error for zero microseconds-per-quarter")
	}
}

func TestTickToFrame_MiddleCQuarterAt120BPM(t *testing.T) {
	// 120 BPM => 500000 microseconds per quarter note.
	entries := []Entry{{Tick: 0, MicrosecondsPerQuarter: 500000}}
	m, err := Build(entries, 480)
	if err != nil {
		t.Fatal(err)
	}
	if f := m.TickToFrame(0); f != 0 {
		t.Fatalf("tick 0 -> frame %d, want 0", f)
	}
	// A quarter note (480 ticks) at 120 BPM is 0.5s = 30 frames.
	if f := m.TickToFrame(480); f != 30 {
		t.Fatalf("tick 480 -> frame %d, want 30", f)
	}
}

func TestFrameToTick_IsApproxRightInverse(t *testing.T) {
	entries := []Entry{
		{Tick: 0, MicrosecondsPerQuarter: 500000},
		{Tick: 1920, MicrosecondsPerQuarter: 750000},
	}
	m, err := Build(entries, 480)
	if err != nil {
		t.Fatal(err)
	}
	for tick := uint32(0); tick < 4000; tick += 37 {
		frame := m.TickToFrame(tick)
		backTick := m.FrameToTick(frame)
		if got := m.TickToFrame(backTick); got != frame {
			t.Fatalf("tick %d -> frame %d -> tick %d -> frame %d, want frame %d back", tick, frame, backTick, got, frame)
		}
	}
}

func TestProperty_TickToFrameIsNonDecreasing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("tick_to_frame is non-decreasing across a random tempo map", prop.ForAll(
		func(tempos []uint32, ticks []uint32) bool {
			entries := make([]Entry, 0, len(tempos)+1)
			entries = append(entries, Entry{Tick: 0, MicrosecondsPerQuarter: 500000})
			tick := uint32(0)
			for i, t := range tempos {
				tick += (t % 5000) + 1
				micros := 200000 + (tempos[i] % 1500000)
				if micros == 0 {
					micros = 1
				}
				entries = append(entries, Entry{Tick: tick, MicrosecondsPerQuarter: micros})
			}

			m, err := Build(entries, 480)
			if err != nil {
				return false
			}

			sortedTicks := append([]uint32(nil), ticks...)
			for i := 1; i < len(sortedTicks); i++ {
				sortedTicks[i] = sortedTicks[i-1] + (ticks[i] % 10000)
			}

			prevFrame := uint32(0)
			for i, tk := range sortedTicks {
				f := m.TickToFrame(tk)
				if i > 0 && f < prevFrame {
					return false
				}
				prevFrame = f
			}
			return true
		},
		gen.SliceOfN(5, gen.UInt32Range(1, 2000000)),
		gen.SliceOfN(30, gen.UInt32Range(0, 50000)),
	))

	properties.TestingRun(t)
}
