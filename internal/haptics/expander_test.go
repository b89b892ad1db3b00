package haptics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/guidoenr/hapticbridge/internal/params"
)

const tick120 = 1.0 / 120.0

func expanderDefaults() *params.ExpanderParams {
	p := params.Defaults().Expander
	return &p
}

func TestExpanderOutputsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := NewExpander()
	p := expanderDefaults()
	r := func() float64 { return rng.Float64()*2 - 0.5 }

	for i := 0; i < 20000; i++ {
		c := Controls{
			Brake:           r(),
			Throttle:        r(),
			Speed01:         r(),
			BrakePressed:    rng.Intn(2) == 0,
			ThrottlePressed: rng.Intn(2) == 0,
			Offroad:         rng.Intn(4) == 0,
		}
		dt := rng.Float64()*0.1 - 0.01
		if i%500 == 0 {
			dt = math.NaN()
		}
		out := e.Process(dt, r(), r(), c, p)
		for name, v := range map[string]float64{
			"bodyL": out.BodyL, "bodyR": out.BodyR, "trigL": out.TrigL, "trigR": out.TrigR, "impact": out.Impact,
		} {
			if !(v >= 0 && v <= 1) {
				t.Fatalf("tick %d: %s=%f out of [0,1]", i, name, v)
			}
		}
		s := e.State()
		for name, v := range map[string]float64{
			"hpEnvelope": s.HPEnvelope, "impactEnvelope": s.ImpactEnvelope, "engine": s.Engine,
			"absPhase": s.ABSPhase, "slipPhase": s.SlipPhase, "low": s.Low, "high": s.High,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("tick %d: state %s not finite", i, name)
			}
		}
		if s.ImpactEnvelope < 0 || s.ImpactEnvelope > 1 {
			t.Fatalf("tick %d: impact envelope %f out of range", i, s.ImpactEnvelope)
		}
		if s.ABSPhase < 0 || s.ABSPhase >= twoPi || s.SlipPhase < 0 || s.SlipPhase >= twoPi {
			t.Fatalf("tick %d: phase out of range abs=%f slip=%f", i, s.ABSPhase, s.SlipPhase)
		}
	}
}

func TestExpanderSteadyRumbleFavoursRightBody(t *testing.T) {
	e := NewExpander()
	p := expanderDefaults()
	maxStep := alpha(tick120, p.OutAttackTau) + 1e-9

	var prev Body
	sumDiff := 0.0
	for i := 0; i < 240; i++ {
		out := e.Process(tick120, 0.6, 0.8, Controls{}, p)
		if out.BodyR < out.BodyL {
			t.Fatalf("tick %d: bodyR=%f below bodyL=%f", i, out.BodyR, out.BodyL)
		}
		if d := math.Abs(out.BodyL - prev.BodyL); d > maxStep {
			t.Fatalf("tick %d: bodyL stepped %f > %f", i, d, maxStep)
		}
		if d := math.Abs(out.BodyR - prev.BodyR); d > maxStep {
			t.Fatalf("tick %d: bodyR stepped %f > %f", i, d, maxStep)
		}
		sumDiff += out.BodyR - out.BodyL
		prev = out
	}
	if sumDiff <= 0 {
		t.Fatalf("expected bodyR to sit above bodyL, cumulative diff=%f", sumDiff)
	}
	if prev.BodyL < 0.5 || prev.BodyR < 0.5 {
		t.Fatalf("expected settled body near 0.59, got L=%f R=%f", prev.BodyL, prev.BodyR)
	}
	if prev.TrigL != 0 || prev.TrigR != 0 {
		t.Fatalf("triggers should stay silent without pedals, got L=%f R=%f", prev.TrigL, prev.TrigR)
	}
}

func TestExpanderReturnsToExactRest(t *testing.T) {
	e := NewExpander()
	p := expanderDefaults()
	for i := 0; i < 240; i++ {
		e.Process(tick120, 0.6, 0.8, Controls{Brake: 0.7, BrakePressed: true, Offroad: true}, p)
	}
	var out Body
	for i := 0; i < 600; i++ {
		out = e.Process(tick120, 0, 0, Controls{}, p)
	}
	if out != (Body{}) {
		t.Fatalf("expected exact rest, got %+v", out)
	}
}

func TestExpanderImpactRisesAndDecays(t *testing.T) {
	e := NewExpander()
	p := expanderDefaults()

	fired := -1
	var impacts []float64
	for i := 0; i < 120; i++ {
		in := 0.0
		if i < 3 {
			in = 1.0
		}
		out := e.Process(tick120, in, in, Controls{}, p)
		impacts = append(impacts, out.Impact)
		if fired < 0 && out.Impact > 0 {
			fired = i
		}
	}
	if fired < 0 || fired > 2 {
		t.Fatalf("impact should fire on the derivative spike, fired at %d", fired)
	}
	if impacts[fired] < 0.5 {
		t.Fatalf("impact peak too small: %f", impacts[fired])
	}
	for i := fired + 1; i < len(impacts); i++ {
		if impacts[i] > impacts[i-1] {
			t.Fatalf("impact re-fired at tick %d (%f > %f)", i, impacts[i], impacts[i-1])
		}
	}
	if got := impacts[fired+36]; got >= 0.01 {
		t.Fatalf("impact after 300ms=%f want <0.01", got)
	}
}

func TestImpactRefractoryBlocksDoubleFire(t *testing.T) {
	p := expanderDefaults()
	var s RumbleState

	if !s.stepImpact(10, tick120, p) {
		t.Fatalf("first spike should fire")
	}
	peak := s.ImpactEnvelope
	// 9 ticks at 120 Hz is 75ms, inside the 80ms refractory window.
	for i := 1; i <= 9; i++ {
		if s.stepImpact(10, tick120, p) {
			t.Fatalf("spike at tick %d fired inside refractory window", i)
		}
		if s.ImpactEnvelope >= peak {
			t.Fatalf("envelope grew without a trigger at tick %d", i)
		}
		peak = s.ImpactEnvelope
	}
	if !s.stepImpact(10, tick120, p) {
		t.Fatalf("spike after refractory window should fire")
	}
}

func TestImpactBelowThresholdNeverFires(t *testing.T) {
	p := expanderDefaults()
	var s RumbleState
	for i := 0; i < 100; i++ {
		if s.stepImpact(p.ImpactDerivThreshold, tick120, p) {
			t.Fatalf("derivative equal to threshold must not fire")
		}
	}
	if s.ImpactEnvelope != 0 {
		t.Fatalf("envelope=%f want 0", s.ImpactEnvelope)
	}
}

func squareWave(i int) float64 {
	if (i/8)%2 == 0 {
		return 1
	}
	return 0
}

func TestABSPulsesOnlyWhileBraking(t *testing.T) {
	e := NewExpander()
	p := expanderDefaults()
	c := ControlsFromAxes(1, 0, 0.5, false)
	advanced := false
	for i := 0; i < 120; i++ {
		out := e.Process(tick120, squareWave(i), squareWave(i), c, p)
		if out.TrigR != 0 {
			t.Fatalf("tick %d: slip trigger active while braking: %f", i, out.TrigR)
		}
		advanced = advanced || e.State().ABSPhase != 0
	}
	if !advanced {
		t.Fatalf("abs oscillator never advanced")
	}
	if s := e.State(); s.SlipPhase != 0 {
		t.Fatalf("slip oscillator drifted while inactive: %f", s.SlipPhase)
	}
}

func TestSlipPulsesOnlyWhileAccelerating(t *testing.T) {
	e := NewExpander()
	p := expanderDefaults()
	c := ControlsFromAxes(0, 1, 0.5, false)
	advanced := false
	for i := 0; i < 120; i++ {
		out := e.Process(tick120, squareWave(i), squareWave(i), c, p)
		if out.TrigL != 0 {
			t.Fatalf("tick %d: abs trigger active while accelerating: %f", i, out.TrigL)
		}
		advanced = advanced || e.State().SlipPhase != 0
	}
	if !advanced {
		t.Fatalf("slip oscillator never advanced")
	}
	if s := e.State(); s.ABSPhase != 0 {
		t.Fatalf("abs oscillator drifted while inactive: %f", s.ABSPhase)
	}
}

func TestOffroadBoostsRightChannels(t *testing.T) {
	p := expanderDefaults()
	on, off := NewExpander(), NewExpander()
	var a, b Body
	for i := 0; i < 40; i++ {
		a = on.Process(tick120, squareWave(i), squareWave(i), Controls{Offroad: true}, p)
		b = off.Process(tick120, squareWave(i), squareWave(i), Controls{}, p)
	}
	if a.BodyR <= b.BodyR {
		t.Fatalf("offroad bodyR=%f should exceed %f", a.BodyR, b.BodyR)
	}
	if a.BodyL != b.BodyL {
		t.Fatalf("offroad must not touch bodyL: %f vs %f", a.BodyL, b.BodyL)
	}
}

func TestClampDt(t *testing.T) {
	cases := map[float64]float64{
		-1:     minDt,
		0:      minDt,
		0.01:   0.01,
		0.05:   0.05,
		0.2:    maxDt,
		0.0001: minDt,
	}
	for in, want := range cases {
		if got := clampDt(in); got != want {
			t.Fatalf("clampDt(%f)=%f want=%f", in, got, want)
		}
	}
	if got := clampDt(math.NaN()); got != minDt {
		t.Fatalf("clampDt(NaN)=%f want=%f", got, minDt)
	}
}
