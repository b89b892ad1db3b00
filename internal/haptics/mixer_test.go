package haptics

import (
	"math/rand"
	"testing"

	"github.com/guidoenr/hapticbridge/internal/params"
)

func mixerDefaults() *params.Parameters {
	p := params.Defaults()
	return &p
}

func runTicks(m *Mixer, n int, in TickInput, p *params.Parameters) OutputFrame {
	var out OutputFrame
	for i := 0; i < n; i++ {
		out = m.Tick(in, p)
	}
	return out
}

func TestMixerPrefersFreshFeedback(t *testing.T) {
	m := NewMixer(1)
	p := mixerDefaults()
	in := TickInput{
		Dt:       tick120,
		FFB:      FFBSample{L: 0.6, R: 0.8},
		FFBFresh: true,
		Features: FeatureFrame{Road: 0.7, Tactile: 0.4, TactileHz: 120},
	}
	out := runTicks(m, 240, in, p)
	if out.Source != SourceReal {
		t.Fatalf("source=%q want real", out.Source)
	}
	if m.GateOpen() {
		t.Fatalf("audio gate must stay closed under real feedback")
	}
	if out.RumbleL < 0.5 || out.RumbleR < out.RumbleL {
		t.Fatalf("expected settled body with right >= left: L=%f R=%f", out.RumbleL, out.RumbleR)
	}
	if out.AudInt == 0 || out.AudLowInt == 0 || out.AudHighInt == 0 {
		t.Fatalf("descriptor should follow features unmasked: %+v", out)
	}
}

func TestMixerImpactBoostsRealFeedback(t *testing.T) {
	p := mixerDefaults()
	plain, boosted := NewMixer(1), NewMixer(1)
	base := TickInput{Dt: tick120, FFB: FFBSample{L: 0.4, R: 0.4}, FFBFresh: true}
	hit := base
	hit.Features.Impact = 0.6

	a := runTicks(plain, 240, base, p)
	b := runTicks(boosted, 240, hit, p)
	if b.RumbleL <= a.RumbleL || b.RumbleR <= a.RumbleR {
		t.Fatalf("impact boost missing: plain=%+v boosted=%+v", a, b)
	}

	p.Mixer.FFBImpactBoost = 0
	plain, boosted = NewMixer(1), NewMixer(1)
	a = runTicks(plain, 240, base, p)
	b = runTicks(boosted, 240, hit, p)
	if a.RumbleL != b.RumbleL || a.RumbleR != b.RumbleR {
		t.Fatalf("zero boost should ignore impact: plain=%+v boosted=%+v", a, b)
	}
}

func TestMixerWithoutFallbackIsSilent(t *testing.T) {
	m := NewMixer(1)
	p := mixerDefaults()
	p.Mixer.AudioFallback = false
	in := TickInput{Dt: tick120, Features: FeatureFrame{Road: 0.9, Impact: 0.8, Tactile: 0.7}}
	for i := 0; i < 240; i++ {
		out := m.Tick(in, p)
		if out != (OutputFrame{Source: SourceNone}) {
			t.Fatalf("tick %d: expected silence, got %+v", i, out)
		}
	}
}

func TestMixerAudioPathRespectsPulseWindows(t *testing.T) {
	m := NewMixer(3)
	p := mixerDefaults()
	in := TickInput{Dt: 0.002, Features: FeatureFrame{Road: 0.6, Tactile: 0.5, TactileHz: 150, Impact: 0.1}}

	sawAudio, sawLow, sawHigh := false, false, false
	for i := 0; i < 1000; i++ {
		out := m.Tick(in, p)
		g := m.lastGate
		if out.Source == SourceAudio {
			sawAudio = true
		}
		if (out.Source == SourceAudio) != g.Open {
			t.Fatalf("tick %d: source %q disagrees with gate", i, out.Source)
		}
		if !g.LoOn && (out.AudLowInt != 0 || out.AudLowHz != 0) {
			t.Fatalf("tick %d: low band outside window: %+v", i, out)
		}
		if !g.HiOn && (out.AudHighInt != 0 || out.AudHighHz != 0) {
			t.Fatalf("tick %d: high band outside window: %+v", i, out)
		}
		if !g.LoOn && !g.HiOn && (out.AudInt != 0 || out.AudHz != 0) {
			t.Fatalf("tick %d: descriptor outside any window: %+v", i, out)
		}
		if g.LoOn {
			sawLow = true
		}
		if g.HiOn {
			sawHigh = true
		}
	}
	if !sawAudio || !sawLow || !sawHigh {
		t.Fatalf("audio path never pulsed: audio=%v low=%v high=%v", sawAudio, sawLow, sawHigh)
	}
}

func TestMixerReturnsToRest(t *testing.T) {
	m := NewMixer(1)
	p := mixerDefaults()
	loud := TickInput{
		Dt:       tick120,
		Features: FeatureFrame{Road: 0.8, Impact: 0.7, Engine: 0.5, Tactile: 0.6, TactileHz: 90},
		Controls: Controls{Brake: 0.9, BrakePressed: true},
	}
	runTicks(m, 240, loud, p)
	runTicks(m, 60, TickInput{Dt: tick120, FFB: FFBSample{L: 1, R: 1}, FFBFresh: true}, p)

	out := runTicks(m, 600, TickInput{Dt: tick120}, p)
	if out != (OutputFrame{Source: SourceNone}) {
		t.Fatalf("expected exact rest after 5s of silence, got %+v", out)
	}
}

func TestMixerClockFollowsClampedDt(t *testing.T) {
	m := NewMixer(1)
	p := mixerDefaults()
	m.Tick(TickInput{Dt: 1}, p)
	m.Tick(TickInput{Dt: -1}, p)
	want := secondsToDuration(maxDt) + secondsToDuration(minDt)
	if m.Clock() != want {
		t.Fatalf("clock=%s want %s", m.Clock(), want)
	}
}

func TestMixerOutputsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m := NewMixer(5)
	p := mixerDefaults()
	r := func() float64 { return rng.Float64()*2 - 0.5 }
	inHz := func(v, lo, hi float64) bool { return v == 0 || (v >= lo && v <= hi) }

	for i := 0; i < 20000; i++ {
		in := TickInput{
			Dt: rng.Float64() * 0.06,
			Features: FeatureFrame{
				Road: r(), Engine: r(), Impact: r(), Tactile: r(),
				TactileHz: rng.Float64() * 300, Skid: r(),
			},
			FFB:      FFBSample{L: r(), R: r()},
			FFBFresh: rng.Intn(3) == 0,
			Controls: Controls{Brake: r(), Throttle: r(), BrakePressed: rng.Intn(2) == 0},
		}
		if i%1000 == 0 {
			p.Mixer.Intensity = rng.Float64() * 2
		}
		out := m.Tick(in, p)
		for _, v := range []float64{out.RumbleL, out.RumbleR, out.Impact, out.TrigL, out.TrigR,
			out.AudInt, out.AudLowInt, out.AudHighInt} {
			if !(v >= 0 && v <= 1) {
				t.Fatalf("tick %d: value out of range: %+v", i, out)
			}
		}
		if !inHz(out.AudLowHz, LowHzMin, LowHzMax) || !inHz(out.AudHighHz, HighHzMin, HighHzMax) ||
			!inHz(out.AudHz, LowHzMin, HighHzMax) {
			t.Fatalf("tick %d: frequency out of range: %+v", i, out)
		}
		switch out.Source {
		case SourceNone, SourceReal, SourceAudio:
		default:
			t.Fatalf("tick %d: unknown source %q", i, out.Source)
		}
	}
}
