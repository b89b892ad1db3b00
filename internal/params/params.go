package params

import (
	"math"
	"time"
)

// ExpanderParams tunes the band-split envelope and event layer.
type ExpanderParams struct {
	SmoothTau    float64 `json:"smoothTau"`
	LowTau       float64 `json:"lowTau"`
	HighTau      float64 `json:"highTau"`
	HPEnvTau     float64 `json:"hpEnvTau"`
	OutAttackTau float64 `json:"outAttackTau"`
	OutDecayTau  float64 `json:"outDecayTau"`

	ImpactDerivThreshold float64 `json:"impactDerivThreshold"`
	ImpactGain           float64 `json:"impactGain"`
	ImpactDecayTau       float64 `json:"impactDecayTau"`
	ImpactRefractory     float64 `json:"impactRefractory"`

	ABSFreqHz  float64 `json:"absFreqHz"`
	ABSDepth   float64 `json:"absDepth"`
	ABSGate    float64 `json:"absGate"`
	SlipFreqHz float64 `json:"slipFreqHz"`
	SlipDepth  float64 `json:"slipDepth"`
	SlipGate   float64 `json:"slipGate"`

	EngineGain float64 `json:"engineGain"`
	EngineTau  float64 `json:"engineTau"`

	BodyLowGain  float64 `json:"bodyLowGain"`
	BodyHighGain float64 `json:"bodyHighGain"`
	BodyImpactL  float64 `json:"bodyImpactL"`
	BodyImpactR  float64 `json:"bodyImpactR"`

	TrigABSGain   float64 `json:"trigAbsGain"`
	TrigSlipGain  float64 `json:"trigSlipGain"`
	TrigAssistLow float64 `json:"trigAssistLow"`

	LowBiasL  float64 `json:"lowBiasL"`
	HighBiasR float64 `json:"highBiasR"`

	OffroadBodyBoost float64 `json:"offroadBodyBoost"`
	OffroadTrigBoost float64 `json:"offroadTrigBoost"`

	GlobalGain float64 `json:"globalGain"`
}

// GateParams tunes the audio burst gate and its two pulse trains.
type GateParams struct {
	OnThreshold    float64 `json:"onThreshold"`
	OffThreshold   float64 `json:"offThreshold"`
	ImpactOn       float64 `json:"impactOn"`
	ImpactOff      float64 `json:"impactOff"`
	MaxBurstMs     float64 `json:"maxBurstMs"`
	MinOpenMs      float64 `json:"minOpenMs"`
	RearmMs        float64 `json:"rearmMs"`
	LowBaseHz      float64 `json:"lowBaseHz"`
	LowSpanHz      float64 `json:"lowSpanHz"`
	HighBaseHz     float64 `json:"highBaseHz"`
	HighSpanHz     float64 `json:"highSpanHz"`
	WindowMinMs    float64 `json:"windowMinMs"`
	WindowMaxMs    float64 `json:"windowMaxMs"`
	JitterFraction float64 `json:"jitterFraction"`
	ForwardRumble  bool    `json:"forwardRumble"`
}

// AudioParams holds the per-category gains and analyzer normalisation.
type AudioParams struct {
	RoadGain      float64 `json:"roadGain"`
	EngineGain    float64 `json:"engineGain"`
	ImpactGain    float64 `json:"impactGain"`
	MusicSuppress float64 `json:"musicSuppress"`
	FlatThreshold float64 `json:"flatThreshold"`
	FluxGate      float64 `json:"fluxGate"`
	RoadNorm      float64 `json:"roadNorm"`
	EngineNorm    float64 `json:"engineNorm"`
	ImpactNorm    float64 `json:"impactNorm"`
	TactileNorm   float64 `json:"tactileNorm"`
	SkidNorm      float64 `json:"skidNorm"`
}

// MixerParams controls source selection in the dispatcher.
type MixerParams struct {
	Intensity      float64 `json:"intensity"`
	FFBImpactBoost float64 `json:"ffbImpactBoost"`
	FFBFreshnessMs float64 `json:"ffbFreshnessMs"`
	AudioFallback  bool    `json:"audioFallback"`
}

// Parameters is the full set of runtime tunables. Values are treated as an
// immutable snapshot once handed to a Store.
type Parameters struct {
	Expander ExpanderParams `json:"expander"`
	Gate     GateParams     `json:"gate"`
	Audio    AudioParams    `json:"audio"`
	Mixer    MixerParams    `json:"mixer"`
}

// Defaults returns the tuned values the engine ships with.
func Defaults() Parameters {
	return Parameters{
		Expander: ExpanderParams{
			SmoothTau:    0.015,
			LowTau:       0.090,
			HighTau:      0.015,
			HPEnvTau:     0.025,
			OutAttackTau: 0.004,
			OutDecayTau:  0.030,

			ImpactDerivThreshold: 5.0,
			ImpactGain:           0.65,
			ImpactDecayTau:       0.060,
			ImpactRefractory:     0.080,

			ABSFreqHz:  12.0,
			ABSDepth:   0.85,
			ABSGate:    0.10,
			SlipFreqHz: 10.0,
			SlipDepth:  0.75,
			SlipGate:   0.08,

			EngineGain: 0.20,
			EngineTau:  0.200,

			BodyLowGain:  0.9,
			BodyHighGain: 0.35,
			BodyImpactL:  0.45,
			BodyImpactR:  0.65,

			TrigABSGain:   1.00,
			TrigSlipGain:  0.90,
			TrigAssistLow: 0.12,

			LowBiasL:  0.70,
			HighBiasR: 0.70,

			OffroadBodyBoost: 0.08,
			OffroadTrigBoost: 0.05,

			GlobalGain: 1.0,
		},
		Gate: GateParams{
			OnThreshold:    0.12,
			OffThreshold:   0.05,
			ImpactOn:       0.12,
			ImpactOff:      0.10,
			MaxBurstMs:     600,
			MinOpenMs:      300,
			RearmMs:        300,
			LowBaseHz:      6,
			LowSpanHz:      12,
			HighBaseHz:     14,
			HighSpanHz:     18,
			WindowMinMs:    16,
			WindowMaxMs:    28,
			JitterFraction: 0.10,
			ForwardRumble:  true,
		},
		Audio: AudioParams{
			RoadGain:      1.0,
			EngineGain:    1.0,
			ImpactGain:    1.0,
			MusicSuppress: 0.6,
			FlatThreshold: 0.25,
			FluxGate:      0.002,
			RoadNorm:      0.020,
			EngineNorm:    0.015,
			ImpactNorm:    0.010,
			TactileNorm:   0.015,
			SkidNorm:      0.008,
		},
		Mixer: MixerParams{
			Intensity:      1.0,
			FFBImpactBoost: 0.25,
			FFBFreshnessMs: 300,
			AudioFallback:  true,
		},
	}
}

// Sanitize clamps every tunable into the range the engine can use safely.
// NaN values fall back to the default for that field.
func (p Parameters) Sanitize() Parameters {
	d := Defaults()

	e := &p.Expander
	de := d.Expander
	e.SmoothTau = clampOr(e.SmoothTau, 0, 1, de.SmoothTau)
	e.LowTau = clampOr(e.LowTau, 0, 1, de.LowTau)
	e.HighTau = clampOr(e.HighTau, 0, 1, de.HighTau)
	e.HPEnvTau = clampOr(e.HPEnvTau, 0, 1, de.HPEnvTau)
	e.OutAttackTau = clampOr(e.OutAttackTau, 0, 1, de.OutAttackTau)
	e.OutDecayTau = clampOr(e.OutDecayTau, 0, 1, de.OutDecayTau)
	e.ImpactDerivThreshold = clampOr(e.ImpactDerivThreshold, 0, 1000, de.ImpactDerivThreshold)
	e.ImpactGain = clampOr(e.ImpactGain, 0, 1, de.ImpactGain)
	e.ImpactDecayTau = clampOr(e.ImpactDecayTau, 0, 2, de.ImpactDecayTau)
	e.ImpactRefractory = clampOr(e.ImpactRefractory, 0, 2, de.ImpactRefractory)
	e.ABSFreqHz = clampOr(e.ABSFreqHz, 0, 100, de.ABSFreqHz)
	e.ABSDepth = clampOr(e.ABSDepth, 0, 1, de.ABSDepth)
	e.ABSGate = clampOr(e.ABSGate, 0, 0.99, de.ABSGate)
	e.SlipFreqHz = clampOr(e.SlipFreqHz, 0, 100, de.SlipFreqHz)
	e.SlipDepth = clampOr(e.SlipDepth, 0, 1, de.SlipDepth)
	e.SlipGate = clampOr(e.SlipGate, 0, 0.99, de.SlipGate)
	e.EngineGain = clampOr(e.EngineGain, 0, 2, de.EngineGain)
	e.EngineTau = clampOr(e.EngineTau, 0, 5, de.EngineTau)
	e.BodyLowGain = clampOr(e.BodyLowGain, 0, 2, de.BodyLowGain)
	e.BodyHighGain = clampOr(e.BodyHighGain, 0, 2, de.BodyHighGain)
	e.BodyImpactL = clampOr(e.BodyImpactL, 0, 2, de.BodyImpactL)
	e.BodyImpactR = clampOr(e.BodyImpactR, 0, 2, de.BodyImpactR)
	e.TrigABSGain = clampOr(e.TrigABSGain, 0, 2, de.TrigABSGain)
	e.TrigSlipGain = clampOr(e.TrigSlipGain, 0, 2, de.TrigSlipGain)
	e.TrigAssistLow = clampOr(e.TrigAssistLow, 0, 2, de.TrigAssistLow)
	e.LowBiasL = clampOr(e.LowBiasL, 0, 1, de.LowBiasL)
	e.HighBiasR = clampOr(e.HighBiasR, 0, 1, de.HighBiasR)
	e.OffroadBodyBoost = clampOr(e.OffroadBodyBoost, 0, 1, de.OffroadBodyBoost)
	e.OffroadTrigBoost = clampOr(e.OffroadTrigBoost, 0, 1, de.OffroadTrigBoost)
	e.GlobalGain = clampOr(e.GlobalGain, 0, 4, de.GlobalGain)

	g := &p.Gate
	dg := d.Gate
	g.OnThreshold = clampOr(g.OnThreshold, 0, 1, dg.OnThreshold)
	g.OffThreshold = clampOr(g.OffThreshold, 0, 1, dg.OffThreshold)
	if g.OffThreshold > g.OnThreshold {
		g.OffThreshold = g.OnThreshold
	}
	g.ImpactOn = clampOr(g.ImpactOn, 0, 1, dg.ImpactOn)
	g.ImpactOff = clampOr(g.ImpactOff, 0, 1, dg.ImpactOff)
	if g.ImpactOff > g.ImpactOn {
		g.ImpactOff = g.ImpactOn
	}
	g.MaxBurstMs = clampOr(g.MaxBurstMs, 0, 10_000, dg.MaxBurstMs)
	// A dwell longer than the burst hold would keep the gate open past it.
	g.MinOpenMs = clampOr(g.MinOpenMs, 0, g.MaxBurstMs, dg.MinOpenMs)
	g.RearmMs = clampOr(g.RearmMs, 0, 10_000, dg.RearmMs)
	g.LowBaseHz = clampOr(g.LowBaseHz, 0.5, 100, dg.LowBaseHz)
	g.LowSpanHz = clampOr(g.LowSpanHz, 0, 100, dg.LowSpanHz)
	g.HighBaseHz = clampOr(g.HighBaseHz, 0.5, 100, dg.HighBaseHz)
	g.HighSpanHz = clampOr(g.HighSpanHz, 0, 100, dg.HighSpanHz)
	g.WindowMinMs = clampOr(g.WindowMinMs, 1, 500, dg.WindowMinMs)
	g.WindowMaxMs = clampOr(g.WindowMaxMs, 1, 500, dg.WindowMaxMs)
	if g.WindowMaxMs < g.WindowMinMs {
		g.WindowMaxMs = g.WindowMinMs
	}
	g.JitterFraction = clampOr(g.JitterFraction, 0, 0.10, dg.JitterFraction)

	a := &p.Audio
	da := d.Audio
	a.RoadGain = clampOr(a.RoadGain, 0, 2, da.RoadGain)
	a.EngineGain = clampOr(a.EngineGain, 0, 2, da.EngineGain)
	a.ImpactGain = clampOr(a.ImpactGain, 0, 2, da.ImpactGain)
	a.MusicSuppress = clampOr(a.MusicSuppress, 0, 1, da.MusicSuppress)
	a.FlatThreshold = clampOr(a.FlatThreshold, 0, 1, da.FlatThreshold)
	a.FluxGate = clampOr(a.FluxGate, 0, 1, da.FluxGate)
	a.RoadNorm = clampOr(a.RoadNorm, 1e-6, 10, da.RoadNorm)
	a.EngineNorm = clampOr(a.EngineNorm, 1e-6, 10, da.EngineNorm)
	a.ImpactNorm = clampOr(a.ImpactNorm, 1e-6, 10, da.ImpactNorm)
	a.TactileNorm = clampOr(a.TactileNorm, 1e-6, 10, da.TactileNorm)
	a.SkidNorm = clampOr(a.SkidNorm, 1e-6, 10, da.SkidNorm)

	m := &p.Mixer
	dm := d.Mixer
	m.Intensity = clampOr(m.Intensity, 0, 2, dm.Intensity)
	m.FFBImpactBoost = clampOr(m.FFBImpactBoost, 0, 1, dm.FFBImpactBoost)
	m.FFBFreshnessMs = clampOr(m.FFBFreshnessMs, 10, 5000, dm.FFBFreshnessMs)
	return p
}

// MaxBurst returns the gate hold duration as a time.Duration.
func (g GateParams) MaxBurst() time.Duration {
	return millis(g.MaxBurstMs)
}

// MinOpen is how long the gate stays open before a quiet tick may close it.
func (g GateParams) MinOpen() time.Duration {
	return millis(g.MinOpenMs)
}

// Rearm is how long a closed gate ignores energy before it may reopen.
func (g GateParams) Rearm() time.Duration {
	return millis(g.RearmMs)
}

// FFBFreshness is the age after which a feedback sample counts as stale.
func (m MixerParams) FFBFreshness() time.Duration {
	return millis(m.FFBFreshnessMs)
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func clampOr(v, minVal, maxVal, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
