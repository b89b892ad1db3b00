package analyzer

import (
	"github.com/guidoenr/hapticbridge/internal/haptics"
	"github.com/guidoenr/hapticbridge/internal/params"
)

// silenceFloor is the per-bin magnitude below which a band counts as empty.
const silenceFloor = 1e-7

// rawBands are the un-smoothed spectral measurements of one window.
type rawBands struct {
	road      float64
	engine    float64
	tactile   float64
	tactileHz float64
	flux      float64
	flatness  float64
	skid      float64
}

// envelopes holds the follower state between windows.
type envelopes struct {
	road    float64
	engine  float64
	flux    float64
	tactile float64
	skid    float64
}

// step smooths raw into the followers and normalises them into a frame.
// Tonal, steady content (music) has its road and impact cues pulled down.
func (e *envelopes) step(raw rawBands, dt float64, tune params.AudioParams) haptics.FeatureFrame {
	e.road = follow(e.road, raw.road, dt, 0.008, 0.050)
	e.engine = follow(e.engine, raw.engine, dt, 0.040, 0.150)
	e.flux = follow(e.flux, raw.flux, dt, 0.005, 0.060)
	e.tactile = follow(e.tactile, raw.tactile, dt, 0.005, 0.040)
	e.skid = follow(e.skid, raw.skid, dt, 0.010, 0.080)

	suppress := 1.0
	if raw.flatness < tune.FlatThreshold && e.flux < tune.FluxGate {
		suppress = 1 - 0.65*tune.MusicSuppress
	}

	f := haptics.FeatureFrame{
		Road:     clamp(e.road/tune.RoadNorm*suppress, 0, 1),
		Engine:   clamp(e.engine/tune.EngineNorm, 0, 1),
		Impact:   clamp(e.flux/tune.ImpactNorm*suppress, 0, 1),
		Tactile:  clamp(e.tactile/tune.TactileNorm, 0, 1),
		Flatness: clamp(raw.flatness, 0, 1),
		Flux:     clamp(e.flux/tune.ImpactNorm, 0, 1),
		Skid:     clamp(e.skid/tune.SkidNorm, 0, 1),
	}
	if f.Tactile > 0 {
		f.TactileHz = raw.tactileHz
	}
	return f.Clamped()
}

// follow is a one-pole follower with separate attack and decay times.
func follow(current, input, dt, attack, decay float64) float64 {
	tau := decay
	if input > current {
		tau = attack
	}
	next := current + dt/(tau+dt)*(input-current)
	if next < 1e-9 {
		return 0
	}
	return next
}
