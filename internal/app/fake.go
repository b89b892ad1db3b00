package app

import (
	"math"
	"math/rand"

	"github.com/guidoenr/hapticbridge/internal/haptics"
)

// fakeGenerator produces plausible driving features without an audio
// device: a wandering road texture, an engine that revs up and down, and the
// occasional kerb strike.
type fakeGenerator struct {
	rng         *rand.Rand
	phaseRoad   float64
	phaseEngine float64
	phaseSkid   float64
	impact      float64
}

func newFakeGenerator(seed int64) *fakeGenerator {
	return &fakeGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (f *fakeGenerator) Next(delta float64) haptics.FeatureFrame {
	f.phaseRoad += delta * 0.7
	f.phaseEngine += delta * 0.25
	f.phaseSkid += delta * 1.3

	road := 0.35 + 0.3*math.Sin(f.phaseRoad) + f.rng.Float64()*0.1
	engine := 0.4 + 0.35*math.Sin(f.phaseEngine+0.5)
	skid := math.Max(0, math.Sin(f.phaseSkid)-0.7) * 2

	if f.rng.Float64() < 0.01 {
		f.impact = 0.6 + f.rng.Float64()*0.4
	}
	f.impact *= math.Exp(-delta / 0.06)

	tactile := clamp01(0.6*road + 0.4*f.impact)
	tactileHz := 0.0
	if tactile > 0.05 {
		tactileHz = 90 + 120*clamp01(engine)
	}

	return haptics.FeatureFrame{
		Road:      clamp01(road),
		Engine:    clamp01(engine),
		Impact:    clamp01(f.impact),
		Tactile:   tactile,
		TactileHz: tactileHz,
		Flatness:  0.5,
		Flux:      clamp01(f.impact),
		Skid:      clamp01(skid),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
