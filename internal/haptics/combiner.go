package haptics

import "math"

// Band frequency limits in Hz.
const (
	LowHzMin  = 12.0
	LowHzMax  = 46.0
	HighHzMin = 45.0
	HighHzMax = 230.0
)

// Bands is the compact two-band descriptor sent alongside the rumble.
type Bands struct {
	AudInt  float64
	AudHz   float64
	LowInt  float64
	LowHz   float64
	HighInt float64
	HighHz  float64

	impactTerm float64
}

// Combine folds a feature frame into the low/high band descriptor. Engine
// hum is discounted everywhere unless nothing more salient is present.
func Combine(f FeatureFrame, intensity float64) Bands {
	road := clamp01(f.Road)
	impact := clamp01(f.Impact)
	tactile := clamp01(f.Tactile)
	engine := clamp01(f.Engine)
	skid := clamp01(f.Skid)
	intensity = clamp(intensity, 0, 2)

	var b Bands

	lowCore := math.Max(0.90*road, 0.75*impact)
	if engine > 0.18 {
		lowCore = math.Max(0, lowCore-0.55*(engine-0.18))
	}
	lowSrc := math.Max(lowCore, 0.55*impact)
	b.LowInt = clamp01(intensity * lowSrc)
	if b.LowInt > 0.01 {
		b.LowHz = clamp(16+30*math.Pow(lowSrc, 0.6), LowHzMin, LowHzMax)
	}

	highCore := max3(tactile, 0.70*impact, 0.65*skid)
	if highCore <= 0.05 && engine > 0.35 {
		highCore = math.Max(highCore, 0.25*engine)
	}
	highSrc := math.Max(highCore, 0.60*impact)
	b.HighInt = clamp01(intensity * highSrc)
	if impact > 0.22 {
		b.HighInt = math.Max(b.HighInt, clamp01(intensity*(0.35+0.65*impact)))
	}
	if b.HighInt > 0.015 {
		b.HighHz = highBandHz(f.TactileHz, engine, skid)
	}

	b.impactTerm = clamp01(intensity * impact)
	b.finish()
	return b
}

// Mask silences whichever band is outside its pulse window and recomputes
// the combined scalar. With both bands off the descriptor is all zero.
func (b Bands) Mask(lowOn, highOn bool) Bands {
	if !lowOn {
		b.LowInt, b.LowHz = 0, 0
	}
	if !highOn {
		b.HighInt, b.HighHz = 0, 0
	}
	if !lowOn && !highOn {
		b.impactTerm = 0
	}
	b.finish()
	return b
}

func highBandHz(tactileHz, engine, skid float64) float64 {
	if tactileHz >= 50 && tactileHz <= 320 {
		return clamp(tactileHz, HighHzMin, 220)
	}
	return clamp(120+110*math.Pow(math.Max(engine, skid), 0.65), HighHzMin, HighHzMax)
}

func (b *Bands) finish() {
	b.AudInt = max3(b.LowInt, b.HighInt, b.impactTerm)
	b.AudHz = blendHz(b.LowInt, b.LowHz, b.HighInt, b.HighHz)
}

// blendHz picks the dominant band's frequency, or a 0.58/0.42 high/low
// blend when neither dominates by more than 25%.
func blendHz(lowInt, lowHz, highInt, highHz float64) float64 {
	switch {
	case highInt > 1.25*lowInt && highHz > 0:
		return highHz
	case lowInt > 1.25*highInt && lowHz > 0:
		return lowHz
	case lowHz > 0 && highHz > 0:
		return 0.58*highHz + 0.42*lowHz
	case highHz > 0:
		return highHz
	default:
		return lowHz
	}
}
