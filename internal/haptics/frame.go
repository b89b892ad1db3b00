// Package haptics turns force-feedback and audio features into tactile
// output frames for a remote controller. Everything here runs on the control
// tick: no I/O, no allocation, no errors. Inputs are clamped, never rejected.
package haptics

// FeatureFrame is one snapshot from the spectral analyzer.
type FeatureFrame struct {
	Road      float64 `json:"road"`
	Engine    float64 `json:"engine"`
	Impact    float64 `json:"impact"`
	Tactile   float64 `json:"tactile"`
	TactileHz float64 `json:"tactileHz"`
	Flatness  float64 `json:"flatness"`
	Flux      float64 `json:"flux"`
	Skid      float64 `json:"skid"`
}

// maxTactileHz bounds TactileHz to the audible range.
const maxTactileHz = 20000

// Clamped returns a copy with every field forced into its valid domain.
// TactileHz is only checked for being a usable frequency; the combiner
// decides which peaks it trusts.
func (f FeatureFrame) Clamped() FeatureFrame {
	f.Road = clamp01(f.Road)
	f.Engine = clamp01(f.Engine)
	f.Impact = clamp01(f.Impact)
	f.Tactile = clamp01(f.Tactile)
	f.Skid = clamp01(f.Skid)
	f.Flux = clamp01(f.Flux)
	f.Flatness = clamp(f.Flatness, 0, 1)
	if !(f.TactileHz > 0 && f.TactileHz < maxTactileHz) {
		f.TactileHz = 0
	}
	return f
}

// Controls is the per-tick driver state from the telemetry layer.
type Controls struct {
	Brake           float64 `json:"brake"`
	Throttle        float64 `json:"throttle"`
	Speed01         float64 `json:"speed"`
	BrakePressed    bool    `json:"brakePressed"`
	ThrottlePressed bool    `json:"throttlePressed"`
	Offroad         bool    `json:"offroad"`
}

// pedalPressedAt is the axis level above which a pedal counts as pressed.
const pedalPressedAt = 0.4

// ControlsFromAxes builds Controls from raw pedal axes.
func ControlsFromAxes(brake, throttle, speed01 float64, offroad bool) Controls {
	brake = clamp01(brake)
	throttle = clamp01(throttle)
	return Controls{
		Brake:           brake,
		Throttle:        throttle,
		Speed01:         clamp01(speed01),
		BrakePressed:    brake > pedalPressedAt,
		ThrottlePressed: throttle > pedalPressedAt,
		Offroad:         offroad,
	}
}

// FFBSample is a two-channel rumble value pushed back by the game.
type FFBSample struct {
	L float64 `json:"l"`
	R float64 `json:"r"`
}

// Source names where a tick's rumble came from.
type Source string

const (
	SourceNone  Source = "none"
	SourceReal  Source = "real"
	SourceAudio Source = "audio"
)

// OutputFrame is the wire contract delivered to the remote device once per
// tick. Intensities are in [0,1]; Hz fields are 0 for "no tone".
type OutputFrame struct {
	RumbleL    float64 `json:"rumbleL"`
	RumbleR    float64 `json:"rumbleR"`
	Impact     float64 `json:"impact"`
	TrigL      float64 `json:"trigL"`
	TrigR      float64 `json:"trigR"`
	AudInt     float64 `json:"audInt"`
	AudHz      float64 `json:"audHz"`
	AudLowInt  float64 `json:"audLowInt"`
	AudLowHz   float64 `json:"audLowHz"`
	AudHighInt float64 `json:"audHighInt"`
	AudHighHz  float64 `json:"audHighHz"`
	Source     Source  `json:"src"`
}

// Sink receives every OutputFrame. Implementations must not block the tick.
type Sink interface {
	Deliver(OutputFrame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(OutputFrame)

// Deliver calls f(frame).
func (f SinkFunc) Deliver(frame OutputFrame) { f(frame) }
