package haptics

import (
	"math"
	"time"

	"github.com/guidoenr/hapticbridge/internal/params"
)

// TickInput is everything the dispatcher reads on one control tick.
type TickInput struct {
	Dt       float64
	Features FeatureFrame
	// FFB is used only when FFBFresh is set; stale feedback counts as none.
	FFB      FFBSample
	FFBFresh bool
	Controls Controls
}

// Mixer owns the per-target engine state and produces one OutputFrame per
// tick. It must only be used from the control-tick goroutine.
type Mixer struct {
	expander *Expander
	gate     *Gate
	clock    time.Duration
	lastGate GateResult
}

// NewMixer returns a Mixer at rest. seed drives pulse jitter.
func NewMixer(seed int64) *Mixer {
	return &Mixer{
		expander: NewExpander(),
		gate:     NewGate(seed),
	}
}

// Clock returns the accumulated tick time.
func (m *Mixer) Clock() time.Duration {
	return m.clock
}

// GateOpen reports whether the audio burst gate was open on the last tick.
func (m *Mixer) GateOpen() bool {
	return m.lastGate.Open
}

// Tick picks the rumble source, runs the gate, combiner and expander, and
// assembles the frame.
func (m *Mixer) Tick(in TickInput, p *params.Parameters) OutputFrame {
	dt := clampDt(in.Dt)
	m.clock += secondsToDuration(dt)

	feat := scaleFeatures(in.Features.Clamped(), &p.Audio)
	intensity := p.Mixer.Intensity
	bands := Combine(feat, intensity)

	var rumbleL, rumbleR float64
	src := SourceNone
	m.lastGate = GateResult{}

	switch {
	case in.FFBFresh:
		src = SourceReal
		boost := p.Mixer.FFBImpactBoost * intensity * feat.Impact
		rumbleL = clamp01(clamp01(in.FFB.L) + boost)
		rumbleR = clamp01(clamp01(in.FFB.R) + boost)
		m.gate.Close()
	case p.Mixer.AudioFallback:
		candL, candR := audioCandidates(feat)
		res := m.gate.Evaluate(m.clock, GateInput{
			CandL:  candL,
			CandR:  candR,
			Impact: feat.Impact,
			Engine: feat.Engine,
			Road:   feat.Road,
		}, &p.Gate)
		m.lastGate = res
		if res.Open {
			src = SourceAudio
		}
		if p.Gate.ForwardRumble {
			rumbleL, rumbleR = res.RumbleL, res.RumbleR
		}
		bands = bands.Mask(res.LoOn, res.HiOn)
	default:
		m.gate.Close()
		bands = bands.Mask(false, false)
	}

	body := m.expander.Process(dt, rumbleL, rumbleR, in.Controls, &p.Expander)

	return OutputFrame{
		RumbleL:    body.BodyL,
		RumbleR:    body.BodyR,
		Impact:     body.Impact,
		TrigL:      body.TrigL,
		TrigR:      body.TrigR,
		AudInt:     bands.AudInt,
		AudHz:      bands.AudHz,
		AudLowInt:  bands.LowInt,
		AudLowHz:   bands.LowHz,
		AudHighInt: bands.HighInt,
		AudHighHz:  bands.HighHz,
		Source:     src,
	}
}

// scaleFeatures applies the per-category gains.
func scaleFeatures(f FeatureFrame, a *params.AudioParams) FeatureFrame {
	f.Road = clamp01(f.Road * a.RoadGain)
	f.Engine = clamp01(f.Engine * a.EngineGain)
	f.Impact = clamp01(f.Impact * a.ImpactGain)
	return f
}

// audioCandidates maps features to the pre-gate rumble pair.
func audioCandidates(f FeatureFrame) (float64, float64) {
	bodyR := math.Max(f.Road, 0.5*f.Engine)
	bodyL := math.Max(0.8*f.Road, 0.3*f.Engine)
	return math.Max(bodyL, 0.35*f.Impact), math.Max(bodyR, 0.45*f.Impact)
}
