package haptics

import (
	"math"

	"github.com/guidoenr/hapticbridge/internal/params"
)

const twoPi = 2 * math.Pi

// RumbleState is the persistent filter, event and oscillator state of one
// Expander. All fields stay finite; envelopes stay within [0,1] except the
// band-split signals, which track their [0,1] inputs.
type RumbleState struct {
	SmoothedL, SmoothedR float64

	Low         float64
	prevLow     float64
	HighLowpass float64
	High        float64
	HPEnvelope  float64

	ImpactEnvelope            float64
	ImpactRefractoryRemaining float64

	ABSPhase  float64
	SlipPhase float64

	Engine float64

	BodyL, BodyR, TrigL, TrigR float64
}

// Body is the Expander output for one tick.
type Body struct {
	BodyL  float64
	BodyR  float64
	TrigL  float64
	TrigR  float64
	Impact float64
}

// Expander maps a two-channel rumble signal plus driver controls to body,
// trigger and impact channels.
type Expander struct {
	state RumbleState
}

// NewExpander returns an Expander at rest.
func NewExpander() *Expander {
	return &Expander{}
}

// Reset returns the Expander to rest.
func (e *Expander) Reset() {
	e.state = RumbleState{}
}

// State returns a copy of the current state.
func (e *Expander) State() RumbleState {
	return e.state
}

// Process advances the Expander by dt seconds.
func (e *Expander) Process(dt, rumbleL, rumbleR float64, c Controls, p *params.ExpanderParams) Body {
	s := &e.state
	dt = clampDt(dt)
	rumbleL = clamp01(rumbleL)
	rumbleR = clamp01(rumbleR)
	lt := clamp01(c.Brake)
	rt := clamp01(c.Throttle)

	aSm := alpha(dt, p.SmoothTau)
	s.SmoothedL += aSm * (rumbleL - s.SmoothedL)
	s.SmoothedR += aSm * (rumbleR - s.SmoothedR)

	mixLow := p.LowBiasL*s.SmoothedL + (1-p.LowBiasL)*s.SmoothedR
	mixHigh := (1-p.HighBiasR)*s.SmoothedL + p.HighBiasR*s.SmoothedR

	aHigh := alpha(dt, p.HighTau)
	s.Low += alpha(dt, p.LowTau) * (mixLow - s.Low)
	s.HighLowpass += aHigh * (mixHigh - s.HighLowpass)
	s.High += aHigh * ((mixHigh - s.HighLowpass) - s.High)
	s.HPEnvelope += alpha(dt, p.HPEnvTau) * (math.Abs(s.High) - s.HPEnvelope)

	lowDeriv := (s.Low - s.prevLow) / math.Max(minDt, dt)
	s.prevLow = s.Low
	s.stepImpact(lowDeriv, dt, p)

	braking := lt > rt || c.BrakePressed
	accel := rt > lt || c.ThrottlePressed

	absAmp := 0.0
	if braking && s.HPEnvelope > p.ABSGate {
		s.ABSPhase = advancePhase(s.ABSPhase, p.ABSFreqHz, dt)
		absAmp = pulseAmp(s.ABSPhase, p.ABSDepth, s.HPEnvelope, p.ABSGate)
	}
	slipAmp := 0.0
	if accel && s.HPEnvelope > p.SlipGate {
		s.SlipPhase = advancePhase(s.SlipPhase, p.SlipFreqHz, dt)
		slipAmp = pulseAmp(s.SlipPhase, p.SlipDepth, s.HPEnvelope, p.SlipGate)
	}

	s.Engine += alpha(dt, p.EngineTau) * (s.HPEnvelope - s.Engine)

	low := math.Max(0, s.Low)
	bodyL := p.BodyLowGain*low + p.BodyHighGain*0.25*s.HPEnvelope + p.BodyImpactL*s.ImpactEnvelope
	bodyR := p.BodyLowGain*low + p.BodyHighGain*s.HPEnvelope + p.BodyImpactR*s.ImpactEnvelope + p.EngineGain*s.Engine
	trigL := p.TrigABSGain * absAmp
	trigR := p.TrigSlipGain * slipAmp
	if braking {
		trigL += p.TrigAssistLow * low
	}
	if accel {
		trigR += p.TrigAssistLow * low
	}
	if c.Offroad {
		bodyR += p.OffroadBodyBoost * s.HPEnvelope
		trigR += p.OffroadTrigBoost * s.HPEnvelope
	}

	aAtk := alpha(dt, p.OutAttackTau)
	aDec := alpha(dt, p.OutDecayTau)
	s.BodyL = smoothOut(s.BodyL, bodyL, aAtk, aDec)
	s.BodyR = smoothOut(s.BodyR, bodyR, aAtk, aDec)
	s.TrigL = smoothOut(s.TrigL, trigL, aAtk, aDec)
	s.TrigR = smoothOut(s.TrigR, trigR, aAtk, aDec)

	s.settle()

	g := p.GlobalGain
	return Body{
		BodyL:  clamp01(g * s.BodyL),
		BodyR:  clamp01(g * s.BodyR),
		TrigL:  clamp01(g * s.TrigL),
		TrigR:  clamp01(g * s.TrigR),
		Impact: clamp01(s.ImpactEnvelope),
	}
}

// stepImpact runs the derivative detector and reports whether it fired.
func (s *RumbleState) stepImpact(lowDeriv, dt float64, p *params.ExpanderParams) bool {
	fired := false
	s.ImpactRefractoryRemaining = math.Max(0, s.ImpactRefractoryRemaining-dt)
	if lowDeriv > p.ImpactDerivThreshold && s.ImpactRefractoryRemaining <= 0 {
		s.ImpactEnvelope = math.Min(1, s.ImpactEnvelope+p.ImpactGain)
		s.ImpactRefractoryRemaining = p.ImpactRefractory
		fired = true
	}
	s.ImpactEnvelope -= alpha(dt, p.ImpactDecayTau) * s.ImpactEnvelope
	return fired
}

func (s *RumbleState) settle() {
	s.SmoothedL = snap(s.SmoothedL)
	s.SmoothedR = snap(s.SmoothedR)
	s.Low = snap(s.Low)
	s.prevLow = snap(s.prevLow)
	s.HighLowpass = snap(s.HighLowpass)
	s.High = snap(s.High)
	s.HPEnvelope = snap(s.HPEnvelope)
	s.ImpactEnvelope = snap(s.ImpactEnvelope)
	s.Engine = snap(s.Engine)
	s.BodyL = snap(s.BodyL)
	s.BodyR = snap(s.BodyR)
	s.TrigL = snap(s.TrigL)
	s.TrigR = snap(s.TrigR)
}

func advancePhase(phase, hz, dt float64) float64 {
	phase += twoPi * hz * dt
	if phase >= twoPi {
		phase = math.Mod(phase, twoPi)
	}
	return phase
}

// pulseAmp is a raised sine scaled by how far env clears the gate.
func pulseAmp(phase, depth, env, gate float64) float64 {
	s := 0.5 * (math.Sin(phase) + 1)
	return s * depth * (env - gate) / math.Max(1e-6, 1-gate)
}

// smoothOut follows target with a fast attack and a slower decay.
func smoothOut(prev, target, aAtk, aDec float64) float64 {
	if target >= prev {
		return prev + aAtk*(target-prev)
	}
	return prev + aDec*(target-prev)
}
